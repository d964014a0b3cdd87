package signaling

import "context"

// Relay is a broadcast pub/sub transport keyed by channel name.
// Every subscriber on a channel, including the publisher, receives each message.
type Relay interface {
	Publish(ctx context.Context, channel string, msg []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers messages in publish order until Close.
// Messages is closed once the subscription ends.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
