// Package messaging 借阅生命周期事件的发布与消费
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/xiebiao/library/internal/application/ports"
	"github.com/xiebiao/library/pkg/circuitbreaker"
	"github.com/xiebiao/library/pkg/logger"
	"github.com/xiebiao/library/pkg/metrics"
)

// Broker 消息通道,*mq.Publisher实现该接口
type Broker interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
}

// EventPublisher 实现ports.EventPublisher
// 事件类型即routing key;Broker不可用时由熔断器快速失败
type EventPublisher struct {
	broker  Broker
	breaker *circuitbreaker.Breaker
}

// NewEventPublisher 创建事件发布者
func NewEventPublisher(broker Broker, breaker *circuitbreaker.Breaker) *EventPublisher {
	if breaker == nil {
		breaker = circuitbreaker.New("mq-publisher", circuitbreaker.DefaultConfig())
	}
	return &EventPublisher{broker: broker, breaker: breaker}
}

func (p *EventPublisher) Publish(ctx context.Context, e ports.Event) error {
	err := p.breaker.Execute(func() error {
		return p.broker.Publish(ctx, e.Type, e)
	})
	metrics.MessagesPublishedTotal.WithLabelValues(e.Type, metrics.ResultLabel(err)).Inc()
	if err != nil {
		return fmt.Errorf("发布事件%s失败: %w", e.Type, err)
	}
	return nil
}

// RoutingKeys 审计消费者订阅的全部事件
func RoutingKeys() []string {
	return []string{
		ports.EventCheckoutCreated,
		ports.EventCheckoutReturned,
		ports.EventCheckoutStatusChanged,
		ports.EventCheckoutCompleted,
	}
}

// AuditHandler 把事件写入审计日志
// 解析失败返回错误,消费者丢弃该消息
func AuditHandler(log *zap.Logger) func(routingKey string, body []byte) error {
	if log == nil {
		log = logger.L()
	}
	return func(routingKey string, body []byte) error {
		var e ports.Event
		if err := json.Unmarshal(body, &e); err != nil {
			return fmt.Errorf("解析事件失败: %w", err)
		}
		if e.Type != routingKey {
			log.Warn("事件类型与routing key不一致", zap.String("routing_key", routingKey), zap.String("type", e.Type))
		}
		log.Info("借阅事件",
			zap.String("type", e.Type),
			zap.Uint("checkout_id", e.CheckoutID),
			zap.Uint("book_id", e.BookID),
			zap.Uint("user_id", e.UserID),
			zap.String("status", e.Status),
			zap.Uint("archive_id", e.ArchiveID),
			zap.Time("occurred_at", e.OccurredAt),
		)
		return nil
	}
}
