// worker 消费借阅生命周期事件并写入审计日志
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/xiebiao/library/internal/infrastructure/config"
	"github.com/xiebiao/library/internal/infrastructure/messaging"
	"github.com/xiebiao/library/pkg/logger"
	"github.com/xiebiao/library/pkg/mq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zl, err := logger.New(logger.Options{
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		Output:       cfg.Log.Output,
		EnableCaller: cfg.Log.EnableCaller,
	})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	logger.SetGlobal(zl)
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl.Named("audit")); err != nil {
		zl.Fatal("审计消费者异常退出", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	if !cfg.MQ.Enabled {
		return errors.New("mq.enabled为false,审计消费者无事可做")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.MQ.Exchange, cfg.MQ.ExchangeType,
		cfg.MQ.AuditQueue, messaging.RoutingKeys())
	if err != nil {
		return err
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			zl.Warn("关闭MQ连接失败", zap.Error(err))
		}
	}()

	zl.Info("审计消费者启动",
		zap.String("exchange", cfg.MQ.Exchange),
		zap.String("queue", cfg.MQ.AuditQueue),
		zap.Strings("routing_keys", messaging.RoutingKeys()),
	)
	if err := consumer.Consume(ctx, messaging.AuditHandler(zl)); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	zl.Info("审计消费者已停止")
	return nil
}
