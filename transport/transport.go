// Package transport abstracts the broker connection used to reach loggers.
// The command handler only depends on the Transport interface; adapters wrap
// concrete MQTT clients.
package transport

import (
	"context"
	"fmt"
)

// QoS is the MQTT quality of service level.
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

func (q QoS) String() string {
	switch q {
	case AtMostOnce:
		return "at-most-once"
	case AtLeastOnce:
		return "at-least-once"
	case ExactlyOnce:
		return "exactly-once"
	default:
		return fmt.Sprintf("qos(%d)", byte(q))
	}
}

// MessageHandler receives messages for a subscription. It runs on the
// transport's event loop and must not block.
type MessageHandler func(topic string, payload []byte)

// Transport is the capability set the command handler needs from a broker
// connection.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	Publish(ctx context.Context, topic string, payload []byte, qos QoS) error
	Subscribe(ctx context.Context, topic string, qos QoS, handler MessageHandler) error
	Unsubscribe(ctx context.Context, topic string) error
}

// Kind names a transport adapter.
type Kind string

const (
	KindGeneric  Kind = "generic"
	KindCloudIoT Kind = "aws"
)

// SubscribeQoS returns the QoS used for response subscriptions on an
// adapter kind.
func SubscribeQoS(kind Kind) QoS {
	if kind == KindCloudIoT {
		return ExactlyOnce
	}
	return AtLeastOnce
}
