package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/custody-guard/internal/approval"
	"github.com/xela07ax/custody-guard/internal/audit"
	"github.com/xela07ax/custody-guard/internal/console/handler"
	"github.com/xela07ax/custody-guard/internal/console/server"
	"github.com/xela07ax/custody-guard/internal/console/service"
	"github.com/xela07ax/custody-guard/internal/custody"
	"github.com/xela07ax/custody-guard/internal/domain"
	"github.com/xela07ax/custody-guard/internal/gateway"
	"github.com/xela07ax/custody-guard/internal/guardian"
	"github.com/xela07ax/custody-guard/internal/infra"
	"github.com/xela07ax/custody-guard/internal/infra/auth"
	"github.com/xela07ax/custody-guard/internal/marketdata"
	"github.com/xela07ax/custody-guard/internal/repository/postgres"
	"github.com/xela07ax/custody-guard/internal/strategy"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the policy gate and operator console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин: cancel останавливает
	// слушателей Redis и воркер журнала
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Инфраструктура и ресурсы
	pool, err := postgres.NewPool(appCtx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(appCtx, pool); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := guardian.NewMetrics(reg)

	// 2. Ядро движка: стор состояния, guardrails, Risk Engine
	store := guardian.NewStore(logger)
	engine := guardian.NewEngine(store, metrics, logger)
	guardrails := guardian.NewGuardrails(store)

	// Защелка kill-switch: прогрев из Redis и подписка на сигналы
	haltSync := guardian.NewHaltSync(store, rdb, logger)
	if err := haltSync.Init(appCtx); err != nil {
		logger.Error("halt latch warm-up failed, starting with local state", zap.Error(err))
	}
	go haltSync.StartListener(appCtx)

	// Кэш конфигураций guardian-ов: дефолт из пресета, холодная загрузка из БД
	defaults, err := domain.ResolvePreset(cfg.Engine.DefaultPreset)
	if err != nil {
		return err
	}
	configRepo := postgres.NewConfigRepo(pool)
	configCache := guardian.NewConfigCache(configRepo, rdb, defaults, logger)
	if err := configCache.Refresh(appCtx); err != nil {
		return fmt.Errorf("guardian config cold load: %w", err)
	}
	go configCache.StartListener(appCtx)

	// 3. Журнал решений: асинхронная пакетная запись в Postgres
	auditRepo := postgres.NewAuditRepo(pool)
	ledger := audit.NewLedger(auditRepo, logger,
		cfg.Engine.AuditBufferSize, cfg.Engine.AuditFlushInterval, metrics.AuditBufferFill)
	ledger.Start()
	defer ledger.Stop()

	// 4. Кастоди-клиент за слоем надежности
	var custodyClient custody.Client
	if cfg.Custody.Mock {
		logger.Warn("custody backend is mocked, no real execution will happen")
		custodyClient = &custody.MockClient{}
	} else {
		custodyClient = custody.NewHTTPClient(
			cfg.Custody.BaseURL, cfg.Custody.APIKey, cfg.Custody.Timeout, logger)
	}
	custodyClient = custody.NewReliabilityWrapper(custodyClient, custody.ReliabilityOptions{
		CBMaxRequests: cfg.Custody.CBMaxRequests,
		CBInterval:    cfg.Custody.CBInterval,
		CBTimeout:     cfg.Custody.CBTimeout,
		CallTimeout:   cfg.Custody.Timeout,
		Gauge:         metrics.CircuitBreakerState,
	})

	// Рыночные данные для проверки стратегий
	var feed marketdata.Feed
	if cfg.MarketData.Mock {
		feed = demoFeed()
	} else {
		feed = marketdata.NewHTTPFeed(cfg.MarketData.BaseURL, cfg.MarketData.Timeout, logger)
	}

	// 5. Конвейер гейтинга + HITL workflow (взаимная ссылка через сеттер)
	gw := gateway.New(engine, guardrails, configCache, custodyClient, ledger, metrics, logger,
		gateway.Options{
			Guardrails:           cfg.Guardrails,
			ApprovalThresholdUsd: cfg.Engine.ApprovalThresholdUsd,
			CustodyTimeout:       cfg.Custody.Timeout,
		})
	workflow := approval.NewWorkflow(postgres.NewApprovalRepo(pool), gw, ledger, logger)
	gw.AttachProposer(workflow)

	checker := strategy.NewChecker(engine, feed, logger)

	// 6. Операторская консоль: RS256 auth + chi-роуты
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		return fmt.Errorf("auth private key: %w", err)
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return fmt.Errorf("auth public key: %w", err)
	}

	userRepo := postgres.NewUserRepo(pool)
	if pass := os.Getenv("CONSOLE_ADMIN_PASSWORD"); pass != "" {
		hash, err := service.HashPassword(pass, cfg.Auth.BcryptCost)
		if err != nil {
			return err
		}
		if err := userRepo.SeedAdmin(appCtx, "admin", hash); err != nil {
			return err
		}
	}

	authService := service.NewAuthService(userRepo, privateKey, cfg.Auth.TokenTTL)
	guardianService := service.NewGuardianService(configRepo, configCache, rdb, logger)

	console := server.New(cfg, logger, auth.NewBaseValidator(publicKey),
		handler.NewAuthHandler(authService),
		handler.NewActionsHandler(gw),
		handler.NewGuardiansHandler(guardianService, engine, configCache, haltSync),
		handler.NewApprovalHandler(workflow),
		handler.NewAuditHandler(ledger),
		handler.NewStrategiesHandler(checker),
	)

	// Метрики на отдельном порту
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      console,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("custody guard started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("shutting down...")

	// Даем 5 секунд на завершение запросов, журнал допишется в defer
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("custody guard exited properly")
	return nil
}

// demoFeed — фиксированные котировки для запуска без поставщика данных.
func demoFeed() marketdata.Feed {
	now := time.Now().UTC()
	return &marketdata.StaticFeed{Quotes: map[string]marketdata.Quote{
		"BTC": {Symbol: "BTC", Price: 64_000, FundingRate: 0.0003, BasisSpread: 0.002, Volume24h: 1.2e9, Delta: 0.12, PnlUsd: -150, Timestamp: now},
		"ETH": {Symbol: "ETH", Price: 3_100, FundingRate: 0.0002, BasisSpread: 0.003, Volume24h: 6.1e8, Delta: -0.07, PnlUsd: 80, Timestamp: now},
		"SOL": {Symbol: "SOL", Price: 150, FundingRate: 0.00005, BasisSpread: 0.006, Volume24h: 2.4e8, Delta: 0.01, PnlUsd: 0, Timestamp: now},
	}}
}
