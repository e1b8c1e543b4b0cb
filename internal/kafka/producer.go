package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer *kafka.Writer
	Topics Topics
	Logger *logger.Logger
}

func NewProducer(brokers []string, topics Topics, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

type orderEvent struct {
	Type      string        `json:"type"`
	Order     *models.Order `json:"order"`
	Timestamp time.Time     `json:"timestamp"`
}

type ticketsEvent struct {
	Type      string          `json:"type"`
	OrderID   string          `json:"order_id"`
	Tickets   []models.Ticket `json:"tickets"`
	Timestamp time.Time       `json:"timestamp"`
}

func (p *Producer) publish(topic, key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	err = p.Writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		return err
	}
	p.Logger.LogKafka("PUBLISH", topic, key)
	return nil
}

func (p *Producer) PublishOrderCreated(order *models.Order) error {
	return p.publish(p.Topics.OrderCreated, order.OrderID, orderEvent{Type: "order.created", Order: order, Timestamp: time.Now()})
}

func (p *Producer) PublishOrderPaid(order *models.Order) error {
	return p.publish(p.Topics.OrderPaid, order.OrderID, orderEvent{Type: "order.paid", Order: order, Timestamp: time.Now()})
}

func (p *Producer) PublishOrderFailed(order *models.Order) error {
	return p.publish(p.Topics.OrderFailed, order.OrderID, orderEvent{Type: "order.failed", Order: order, Timestamp: time.Now()})
}

func (p *Producer) PublishTicketsIssued(orderID string, tickets []models.Ticket) error {
	return p.publish(p.Topics.TicketsIssued, orderID, ticketsEvent{Type: "tickets.issued", OrderID: orderID, Tickets: tickets, Timestamp: time.Now()})
}

func (p *Producer) Close() error {
	if p.Writer == nil {
		return nil
	}
	if err := p.Writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
