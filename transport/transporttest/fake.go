// Package transporttest provides an in-memory transport.Transport for tests.
package transporttest

import (
	"context"
	"sync"
	"time"

	"loggerctl/transport"
)

// Operation kinds recorded by Fake.
const (
	OpConnect     = "connect"
	OpSubscribe   = "subscribe"
	OpPublish     = "publish"
	OpUnsubscribe = "unsubscribe"
	OpDisconnect  = "disconnect"
)

// Op is one recorded call.
type Op struct {
	Kind    string
	Topic   string
	Payload []byte
	QoS     transport.QoS
}

// Reply is a message the fake delivers after a publish.
type Reply struct {
	Topic   string
	Payload []byte
	Delay   time.Duration
}

// Fake records every call and delivers scripted replies to subscribed
// handlers from its own goroutine, the way a broker event loop would.
type Fake struct {
	ConnectErr   error
	SubscribeErr error
	PublishErr   error

	// Replies are delivered in order after each successful publish.
	Replies []Reply

	mu       sync.Mutex
	ops      []Op
	handlers map[string]transport.MessageHandler
	wg       sync.WaitGroup
}

var _ transport.Transport = (*Fake)(nil)

func New(replies ...Reply) *Fake {
	return &Fake{Replies: replies}
}

func (f *Fake) record(op Op) {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
}

func (f *Fake) Connect(ctx context.Context) error {
	f.record(Op{Kind: OpConnect})
	return f.ConnectErr
}

func (f *Fake) Disconnect() {
	f.record(Op{Kind: OpDisconnect})
}

func (f *Fake) Publish(ctx context.Context, topic string, payload []byte, qos transport.QoS) error {
	f.record(Op{Kind: OpPublish, Topic: topic, Payload: append([]byte(nil), payload...), QoS: qos})
	if f.PublishErr != nil {
		return f.PublishErr
	}
	if len(f.Replies) == 0 {
		return nil
	}
	replies := append([]Reply(nil), f.Replies...)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for _, r := range replies {
			if r.Delay > 0 {
				time.Sleep(r.Delay)
			}
			f.Deliver(r.Topic, r.Payload)
		}
	}()
	return nil
}

func (f *Fake) Subscribe(ctx context.Context, topic string, qos transport.QoS, handler transport.MessageHandler) error {
	f.record(Op{Kind: OpSubscribe, Topic: topic, QoS: qos})
	if f.SubscribeErr != nil {
		return f.SubscribeErr
	}
	f.mu.Lock()
	if f.handlers == nil {
		f.handlers = make(map[string]transport.MessageHandler)
	}
	f.handlers[topic] = handler
	f.mu.Unlock()
	return nil
}

func (f *Fake) Unsubscribe(ctx context.Context, topic string) error {
	f.record(Op{Kind: OpUnsubscribe, Topic: topic})
	f.mu.Lock()
	delete(f.handlers, topic)
	f.mu.Unlock()
	return nil
}

// Deliver hands payload to the handler subscribed to topic. Messages for
// topics without a subscription are dropped.
func (f *Fake) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h != nil {
		h(topic, payload)
	}
}

// Wait blocks until every scripted delivery has finished.
func (f *Fake) Wait() {
	f.wg.Wait()
}

// Ops returns a copy of the recorded calls.
func (f *Fake) Ops() []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Op(nil), f.ops...)
}

// Kinds returns the kinds of the recorded calls in order.
func (f *Fake) Kinds() []string {
	ops := f.Ops()
	kinds := make([]string, len(ops))
	for i, op := range ops {
		kinds[i] = op.Kind
	}
	return kinds
}

// Subscribed reports whether topic currently has a handler.
func (f *Fake) Subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[topic]
	return ok
}
