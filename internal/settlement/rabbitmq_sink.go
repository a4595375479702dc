package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQSinkConfig 描述 RabbitMQ 投递目标。
type RabbitMQSinkConfig struct {
	URL   string
	Queue string
}

// RabbitMQSink 将结算报文投递到持久化队列，消息体为 pacs.008 XML。
type RabbitMQSink struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMQSink 建立连接并声明持久化队列。
func NewRabbitMQSink(cfg RabbitMQSinkConfig) (*RabbitMQSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "aegis.settlement.pacs008"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &RabbitMQSink{conn: conn, ch: ch, queue: queue}, nil
}

// Publish 实现 Sink。channel 不支持并发发布，因此加锁。
func (s *RabbitMQSink) Publish(ctx context.Context, advice Advice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	return s.ch.PublishWithContext(ctx, "", s.queue, false, false, publishing(advice))
}

func publishing(advice Advice) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/xml",
		DeliveryMode: amqp.Persistent,
		MessageId:    advice.MessageID,
		Timestamp:    advice.CreatedAt,
		Type:         "pacs.008.001.08",
		Headers: amqp.Table{
			"tx_hash":   advice.TxHash,
			"operation": advice.Operation,
		},
		Body: []byte(advice.Document),
	}
}

// Close 关闭 RabbitMQ 连接。
func (s *RabbitMQSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		_ = s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}
