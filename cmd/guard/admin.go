package main

/*
Админ-команды halt/resume работают напрямую через Redis: защелку
нужно уметь дернуть, даже когда консоль недоступна. Запущенные
инстансы шлюза применят сигнал через своих слушателей.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/xela07ax/custody-guard/internal/infra"
)

func adminRedis(cmd *cobra.Command) (*redis.Client, context.Context, context.CancelFunc) {
	addr, _ := cmd.Flags().GetString("redis")
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	return rdb, ctx, cancel
}

func newHaltCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "halt",
		Short: "Trip the kill-switch latch on all gate instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return fmt.Errorf("--reason is required")
			}
			rdb, ctx, cancel := adminRedis(cmd)
			defer cancel()
			defer rdb.Close()

			if err := rdb.Set(ctx, infra.RedisKeyHaltReason, reason, 0).Err(); err != nil {
				return fmt.Errorf("persist halt latch: %w", err)
			}
			if err := rdb.Publish(ctx, infra.RedisChanHaltSignal, "on|"+reason).Err(); err != nil {
				return fmt.Errorf("publish halt signal: %w", err)
			}
			fmt.Println("trading halted:", reason)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why trading is being halted")
	cmd.Flags().String("redis", "localhost:6379", "redis address")
	return cmd
}

func newResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Clear the kill-switch latch and resume trading",
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb, ctx, cancel := adminRedis(cmd)
			defer cancel()
			defer rdb.Close()

			if err := rdb.Del(ctx, infra.RedisKeyHaltReason).Err(); err != nil {
				return fmt.Errorf("clear halt latch: %w", err)
			}
			if err := rdb.Publish(ctx, infra.RedisChanHaltSignal, "off|").Err(); err != nil {
				return fmt.Errorf("publish resume signal: %w", err)
			}
			fmt.Println("trading resumed")
			return nil
		},
	}
	cmd.Flags().String("redis", "localhost:6379", "redis address")
	return cmd
}
