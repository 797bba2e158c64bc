package guardian

/*
Файл haltsync.go синхронизирует защелку kill-switch между инстансами
шлюза. Защелка живет в локальном Store (Hot Path — только память);
Redis используется как шина сигналов и как персистентный слепок
состояния для прогрева при старте.

Контракт: TriggerHalt/Resume пишут ключ в Redis и публикуют сигнал;
каждый инстанс слушает канал и применяет сигнал к своему стору.
Потеря Redis не открывает торговлю: локальная защелка остается.
*/

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/custody-guard/internal/infra"
	"go.uber.org/zap"
)

type HaltSync struct {
	state  *Store
	rdb    *redis.Client
	logger *zap.Logger
}

func NewHaltSync(state *Store, rdb *redis.Client, logger *zap.Logger) *HaltSync {
	return &HaltSync{
		state:  state,
		rdb:    rdb,
		logger: logger.Named("haltsync"),
	}
}

// Init прогревает локальную защелку из Redis при старте: если другой
// инстанс уже остановил торговлю, новый поднимется уже остановленным.
func (h *HaltSync) Init(ctx context.Context) error {
	reason, err := h.rdb.Get(ctx, infra.RedisKeyHaltReason).Result()
	if err != nil {
		if err == redis.Nil {
			return nil // Защелка не взведена
		}
		return err
	}
	h.state.TriggerHalt(reason)
	h.logger.Warn("halt latch restored from redis", zap.String("reason", reason))
	return nil
}

// TriggerHalt взводит защелку локально и транслирует сигнал остальным.
// Локальный стор обновляется первым: даже при недоступном Redis этот
// инстанс уже не пропустит ни одного действия.
func (h *HaltSync) TriggerHalt(ctx context.Context, reason string) {
	h.state.TriggerHalt(reason)

	if err := h.rdb.Set(ctx, infra.RedisKeyHaltReason, reason, 0).Err(); err != nil {
		h.logger.Error("failed to persist halt latch", zap.Error(err))
	}
	payload := "on|" + reason
	if err := h.rdb.Publish(ctx, infra.RedisChanHaltSignal, payload).Err(); err != nil {
		h.logger.Error("halt signal delivery failed", zap.Error(err))
	}
}

// Resume снимает защелку локально и у всех подписчиков.
func (h *HaltSync) Resume(ctx context.Context) {
	h.state.ResumeTrading()

	if err := h.rdb.Del(ctx, infra.RedisKeyHaltReason).Err(); err != nil {
		h.logger.Error("failed to clear halt latch key", zap.Error(err))
	}
	if err := h.rdb.Publish(ctx, infra.RedisChanHaltSignal, "off|").Err(); err != nil {
		h.logger.Error("resume signal delivery failed", zap.Error(err))
	}
}

// StartListener подписывается на сигналы halt/resume от других инстансов.
func (h *HaltSync) StartListener(ctx context.Context) {
	listenResilient(ctx, h.rdb, h.logger, infra.RedisChanHaltSignal,
		func() error { return h.Init(ctx) }, // Синхронизация при переподключении
		func(payload string) {
			status, reason, _ := strings.Cut(payload, "|")
			switch status {
			case "on":
				h.state.TriggerHalt(reason)
			case "off":
				h.state.ResumeTrading()
			default:
				h.logger.Error("invalid halt signal format", zap.String("payload", payload))
			}
		},
	)
}

// listenResilient — универсальный цикл "живучей" подписки на сигналы
// Redis: переподключение, ресинхронизация при реконнекте, логирование.
func listenResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func() error, // Callback для синхронизации при переподключении
	onMessage func(payload string), // Callback для обработки сообщения
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		if err := onReconnect(); err != nil {
			logger.Error("sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				onMessage(msg.Payload)
			}
		}

		pubsub.Close()
		time.Sleep(time.Second)
	}
}
