package ports

import "context"

// BusPublisher writes one message to a topic. Messages sharing a partition
// key keep their relative order.
type BusPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte, partitionKey string) error
}

type BusMessage struct {
	Topic   string
	Key     string
	Payload []byte
}

type BusConsumer interface {
	Poll(ctx context.Context, max int) ([]BusMessage, error)
}
