package command

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Args carries the arguments of one command invocation. Positional values
// bind to a command's parameters in declaration order, Named values bind by
// parameter name.
type Args struct {
	Positional []any          `json:"args,omitempty"`
	Named      map[string]any `json:"named,omitempty"`
}

// Positional returns Args holding only positional values.
func Positional(values ...any) Args {
	return Args{Positional: values}
}

// With returns a copy of a with key bound by name.
func (a Args) With(key string, value any) Args {
	named := make(map[string]any, len(a.Named)+1)
	for k, v := range a.Named {
		named[k] = v
	}
	named[key] = value
	return Args{Positional: append([]any(nil), a.Positional...), Named: named}
}

// bind maps positional and named arguments onto params. Only supplied
// parameters are present in the result.
func bind(command string, args Args, params ...string) (map[string]any, error) {
	if len(args.Positional) > len(params) {
		return nil, &ValidationError{
			Command: command,
			Field:   "args",
			Message: fmt.Sprintf("expected at most %d positional arguments, got %d", len(params), len(args.Positional)),
		}
	}

	values := make(map[string]any, len(params))
	for i, v := range args.Positional {
		values[params[i]] = v
	}

	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p] = true
	}
	for k, v := range args.Named {
		if !known[k] {
			return nil, &ValidationError{Command: command, Field: k, Message: "unknown argument"}
		}
		if _, dup := values[k]; dup {
			return nil, &ValidationError{Command: command, Field: k, Message: "given both positionally and by name"}
		}
		values[k] = v
	}
	return values, nil
}

func requireString(command string, values map[string]any, name string) (string, error) {
	v, ok := values[name]
	if !ok || v == nil {
		return "", &ValidationError{Command: command, Field: name, Message: "required argument missing"}
	}
	s, ok := stringValue(v)
	if !ok {
		return "", &ValidationError{Command: command, Field: name, Message: fmt.Sprintf("expected a string, got %T", v)}
	}
	if s == "" {
		return "", &ValidationError{Command: command, Field: name, Message: "must not be empty"}
	}
	return s, nil
}

// optionalString returns "" when the argument is absent.
func optionalString(command string, values map[string]any, name string) (string, error) {
	v, ok := values[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := stringValue(v)
	if !ok {
		return "", &ValidationError{Command: command, Field: name, Message: fmt.Sprintf("expected a string, got %T", v)}
	}
	return s, nil
}

// optionalBool returns false when the argument is absent.
func optionalBool(command string, values map[string]any, name string) (bool, error) {
	v, ok := values[name]
	if !ok || v == nil {
		return false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, &ValidationError{Command: command, Field: name, Message: fmt.Sprintf("expected a boolean, got %q", b)}
		}
		return parsed, nil
	default:
		return false, &ValidationError{Command: command, Field: name, Message: fmt.Sprintf("expected a boolean, got %T", v)}
	}
}

// stringValue accepts strings and plain numbers, since the logger converts
// values to the right type itself.
func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case fmt.Stringer:
		return s.String(), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}
