// Package command describes the wire contract of every logger command: the
// topics it is published and answered on, the payload it carries, and how a
// reply is classified into a Response.
//
// Descriptors never perform I/O. The same descriptor can be reused for any
// number of invocations; control.Handler runs the actual exchange.
package command

import (
	"encoding/json"
	"fmt"
)

// Descriptor is the capability set shared by every command kind.
type Descriptor interface {
	// Name is the command segment used in every topic, e.g. "fileControl".
	Name() string
	PublishTopic() string
	ResponseTopic() string
	StateTopic() string

	// BuildPayload validates args and returns the object to publish.
	BuildPayload(args Args) (Payload, error)

	// Classify turns one message received on the response topic into a
	// Response. A nil Response with a nil error means the message is
	// unrelated and the caller should keep waiting. A non-nil error is a
	// protocol violation.
	Classify(topic string, raw []byte) (*Response, error)
}

// StateMatcher is implemented by commands whose failures are only reported
// as free text on the state topic. The handler subscribes to StateTopic for
// the duration of the call whenever the descriptor implements it.
type StateMatcher interface {
	// MatchState returns nil for messages that say nothing about the call,
	// including bodies that are not JSON objects.
	MatchState(raw []byte) *Response
}

// Option customizes a descriptor at construction time.
type Option func(*options)

type options struct {
	responseSuffix string
}

// WithResponseSuffix narrows the response topic to
// {group}/cr/{device}/{name}/{suffix}.
func WithResponseSuffix(suffix string) Option {
	return func(o *options) {
		o.responseSuffix = suffix
	}
}

// base holds the immutable topic set and the default classification rule.
type base struct {
	name          string
	target        Target
	publishTopic  string
	responseTopic string
	stateTopic    string
}

func newBase(name string, target Target, opts []Option) base {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return base{
		name:          name,
		target:        target,
		publishTopic:  publishTopic(target, name),
		responseTopic: responseTopic(target, name, o.responseSuffix),
		stateTopic:    stateTopic(target),
	}
}

func (b base) Name() string          { return b.name }
func (b base) Target() Target        { return b.target }
func (b base) PublishTopic() string  { return b.publishTopic }
func (b base) ResponseTopic() string { return b.responseTopic }
func (b base) StateTopic() string    { return b.stateTopic }

// Classify applies the default rule: an "error" key is a failure, a
// "success" key is a success, anything else is unrelated.
func (b base) Classify(topic string, raw []byte) (*Response, error) {
	body, ok := decodeObject(raw)
	if !ok {
		return nil, nil
	}
	if r := errorResponse(body); r != nil {
		return r, nil
	}
	if _, ok := body["success"]; ok {
		return &Response{Success: true, Payload: body}, nil
	}
	return nil, nil
}

func decodeObject(raw []byte) (map[string]any, bool) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		return nil, false
	}
	return body, true
}

func errorResponse(body map[string]any) *Response {
	v, ok := body["error"]
	if !ok {
		return nil
	}
	return &Response{Success: false, Payload: body, Error: errorText(v)}
}

func errorText(v any) string {
	switch e := v.(type) {
	case string:
		return e
	case nil:
		return "null"
	default:
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprint(e)
		}
		return string(b)
	}
}
