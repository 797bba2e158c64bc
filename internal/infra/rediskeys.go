package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "cguard"
)

// Ключи состояния
const (
	// RedisKeyHaltReason хранит причину взведенной защелки kill-switch.
	// Отсутствие ключа означает, что торговля открыта.
	RedisKeyHaltReason = RedisNamespace + ":halt:reason"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanHaltSignal — трансляция halt/resume между инстансами шлюза.
	RedisChanHaltSignal = RedisNamespace + ":halt-signal"

	// RedisChanConfigUpdate — сигнал "перечитай конфигурации guardian-ов".
	RedisChanConfigUpdate = RedisNamespace + ":config-update"
)
