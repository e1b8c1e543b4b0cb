package kafka

import (
	"net"
	"strconv"
	"strings"

	"github.com/segmentio/kafka-go"
)

// Topic names for order lifecycle events consumed by downstream services
// (notifications, analytics). Overridable via config.
const (
	TopicOrderCreated  = "order-created"
	TopicOrderPaid     = "order-paid"
	TopicOrderFailed   = "order-failed"
	TopicTicketsIssued = "tickets-issued"
)

// Topics holds the resolved topic names a producer publishes to.
type Topics struct {
	OrderCreated  string
	OrderPaid     string
	OrderFailed   string
	TicketsIssued string
}

func DefaultTopics() Topics {
	return Topics{
		OrderCreated:  TopicOrderCreated,
		OrderPaid:     TopicOrderPaid,
		OrderFailed:   TopicOrderFailed,
		TicketsIssued: TopicTicketsIssued,
	}
}

func (t Topics) All() []string {
	return []string{t.OrderCreated, t.OrderPaid, t.OrderFailed, t.TicketsIssued}
}

// EnsureTopicsExist creates the given topics on the cluster controller if
// they are missing. An already-existing topic is not an error.
func EnsureTopicsExist(brokers []string, topics []string) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	var configs []kafka.TopicConfig
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}

	if err := controllerConn.CreateTopics(configs...); err != nil &&
		!strings.Contains(err.Error(), "already exists") {
		return err
	}
	return nil
}
