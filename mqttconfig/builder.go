// Package mqttconfig writes the binary MQTT settings file a logger downloads
// when it receives an mqttConfig command.
//
// Layout, all integers big-endian:
//
//	header  uint16
//	field   uint16 id, uint16 length, length ASCII bytes   (one or more)
//	0x00    terminator
package mqttconfig

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// DefaultHeader is the header tag of settings files produced by the logger
// vendor's tooling.
const DefaultHeader uint16 = 0x0020

// FieldBrokerEndpoint holds the broker host name.
const FieldBrokerEndpoint uint16 = 0x0005

// ErrNoFields is returned when a file would contain no fields.
var ErrNoFields = errors.New("settings file needs at least one field")

// FieldError reports a field value that cannot be encoded.
type FieldError struct {
	ID      uint16
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field 0x%04x: %s", e.ID, e.Message)
}

type field struct {
	id    uint16
	value string
}

// Builder accumulates fields in insertion order.
type Builder struct {
	header uint16
	fields []field
}

func NewBuilder() *Builder {
	return &Builder{header: DefaultHeader}
}

// WithHeader replaces the header tag.
func (b *Builder) WithHeader(h uint16) *Builder {
	b.header = h
	return b
}

// Field appends one field. The value must be ASCII and fit a uint16 length.
func (b *Builder) Field(id uint16, value string) error {
	if len(value) > math.MaxUint16 {
		return &FieldError{ID: id, Message: fmt.Sprintf("value is %d bytes, limit is %d", len(value), math.MaxUint16)}
	}
	for i := 0; i < len(value); i++ {
		if value[i] > 0x7f {
			return &FieldError{ID: id, Message: fmt.Sprintf("non-ASCII byte at offset %d", i)}
		}
	}
	b.fields = append(b.fields, field{id: id, value: value})
	return nil
}

// BrokerEndpoint appends the broker host name field.
func (b *Builder) BrokerEndpoint(host string) error {
	return b.Field(FieldBrokerEndpoint, host)
}

// WriteTo writes the encoded file to w.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	if len(b.fields) == 0 {
		return 0, ErrNoFields
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, b.header)
	for _, f := range b.fields {
		_ = binary.Write(&buf, binary.BigEndian, [2]uint16{f.id, uint16(len(f.value))})
		buf.WriteString(f.value)
	}
	buf.WriteByte(0)

	return buf.WriteTo(w)
}

// Bytes returns the encoded file.
func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the encoded file to path.
func (b *Builder) WriteFile(path string) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}
