package command

import "fmt"

// DefaultModel is the logger model assumed when none is configured.
const DefaultModel = "cr1000x"

// Payload is the JSON object published to a command topic.
type Payload map[string]any

// Target identifies the deployment namespace and the logger a command is
// addressed to.
type Target struct {
	GroupID  string `json:"groupId"`
	DeviceID string `json:"deviceId"`
}

// DeviceID builds the device segment of a topic from a model and serial
// number, e.g. "cr1000x/12345".
func DeviceID(model, serial string) string {
	if model == "" {
		model = DefaultModel
	}
	return fmt.Sprintf("%s/%s", model, serial)
}

// String returns "{group}/{device}".
func (t Target) String() string {
	return t.GroupID + "/" + t.DeviceID
}

// Response is the terminal classification of a message received for a
// command.
type Response struct {
	Success bool           `json:"success"`
	Payload map[string]any `json:"payload"`
	Error   string         `json:"error,omitempty"`
}

// HasError reports whether the device replied with a structured error.
func (r *Response) HasError() bool {
	return r != nil && !r.Success && r.Error != ""
}

func publishTopic(t Target, name string) string {
	return fmt.Sprintf("%s/cc/%s/%s", t.GroupID, t.DeviceID, name)
}

func responseTopic(t Target, name, suffix string) string {
	if suffix == "" {
		return fmt.Sprintf("%s/cr/%s/%s", t.GroupID, t.DeviceID, name)
	}
	return fmt.Sprintf("%s/cr/%s/%s/%s", t.GroupID, t.DeviceID, name, suffix)
}

func stateTopic(t Target) string {
	return fmt.Sprintf("%s/state/%s/", t.GroupID, t.DeviceID)
}
