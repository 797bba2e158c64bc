package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/custody-guard/internal/console/handler"
	"github.com/xela07ax/custody-guard/internal/infra"
	"github.com/xela07ax/custody-guard/internal/infra/auth"
	"go.uber.org/zap"
)

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	validator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler       *handler.AuthHandler       // /auth/token
	actionsHandler    *handler.ActionsHandler    // /v1/actions (гейтинг)
	guardiansHandler  *handler.GuardiansHandler  // /v1/guardians (конфиг, состояние, halt)
	approvalHandler   *handler.ApprovalHandler   // /v1/approvals (HITL)
	auditHandler      *handler.AuditHandler      // /v1/audit (журнал решений)
	strategiesHandler *handler.StrategiesHandler // /v1/strategies
}

// New инициализирует сервер операторской консоли со всеми зависимостями
func New(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	actionsH *handler.ActionsHandler,
	guardiansH *handler.GuardiansHandler,
	approvalH *handler.ApprovalHandler,
	auditH *handler.AuditHandler,
	strategiesH *handler.StrategiesHandler,
) *Server {
	s := &Server{
		router:            chi.NewRouter(),
		logger:            logger.Named("console-api"),
		cfg:               cfg,
		validator:         validator,
		authHandler:       authH,
		actionsHandler:    actionsH,
		guardiansHandler:  guardiansH,
		approvalHandler:   approvalH,
		auditHandler:      auditH,
		strategiesHandler: strategiesH,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (требует RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.validator, s.logger))

		// Гейтинг действий: единственная дверь к кастоди
		r.Post("/v1/actions/execute", s.actionsHandler.Execute)

		// Конфигурация и состояние guardian-ов
		r.Route("/v1/guardians", func(r chi.Router) {
			r.Get("/config", s.guardiansHandler.GetConfig)
			r.Put("/config", s.guardiansHandler.PutConfig)
			r.Get("/state", s.guardiansHandler.GetState)
			r.Post("/halt", s.guardiansHandler.Halt)     // Kill-switch
			r.Post("/resume", s.guardiansHandler.Resume) // Единственный путь из halted
		})

		// Human-in-the-loop (очередь заявок)
		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.approvalHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.approvalHandler.GetDetails)
				r.Post("/decide", s.approvalHandler.Decide)
				r.Delete("/", s.approvalHandler.Cancel)
			})
		})

		// Журнал решений
		r.Route("/v1/audit", func(r chi.Router) {
			r.Get("/", s.auditHandler.GetLogs)
			r.Get("/stats", s.auditHandler.GetStats)
			r.Get("/export", s.auditHandler.Export) // CSV
		})

		// Пригодность стратегий
		r.Post("/v1/strategies/{name}/eligibility", s.strategiesHandler.Eligibility)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
