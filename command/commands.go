package command

import (
	"fmt"
)

// Topic names understood by the logger firmware.
const (
	NameOS            = "OS"
	NameProgram       = "program"
	NameMQTTConfig    = "mqttConfig"
	NameEditConstants = "editConst"
	NameReboot        = "reboot"
	NameFileControl   = "fileControl"
	NameSetting       = "setting"
	NameGetVar        = "GetVar"
	NameSetVar        = "SetVar"
	NameHistoricData  = "historicData"
	NameTalkThru      = "talkThru"
)

// ProgramTransferError is the fileTransfer state value the logger emits when
// a program download fails.
const ProgramTransferError = "CRBasic file transfer error"

// OS downloads and installs an operating system image.
type OS struct{ base }

func NewOS(target Target, opts ...Option) *OS {
	return &OS{newBase(NameOS, target, opts)}
}

func (c *OS) BuildPayload(args Args) (Payload, error) {
	values, err := bind("os", args, "url")
	if err != nil {
		return nil, err
	}
	url, err := requireString("os", values, "url")
	if err != nil {
		return nil, err
	}
	return Payload{"url": url}, nil
}

// Program downloads a CRBasic program, makes it the current program and
// reboots the logger.
//
// A failed download is never answered on the response topic. The logger only
// reports it on the state topic:
//
//	{"clientId":"ABC","state":"online","fileTransfer":"CRBasic file transfer error"}
type Program struct{ base }

func NewProgram(target Target, opts ...Option) *Program {
	return &Program{newBase(NameProgram, target, opts)}
}

func (c *Program) Payload(url, fileName string) Payload {
	return Payload{"url": url, "fileName": fileName}
}

func (c *Program) BuildPayload(args Args) (Payload, error) {
	values, err := bind("program", args, "url", "fileName")
	if err != nil {
		return nil, err
	}
	url, err := requireString("program", values, "url")
	if err != nil {
		return nil, err
	}
	fileName, err := requireString("program", values, "fileName")
	if err != nil {
		return nil, err
	}
	return c.Payload(url, fileName), nil
}

// MatchState recognises the file transfer failure message.
func (c *Program) MatchState(raw []byte) *Response {
	body, ok := decodeObject(raw)
	if !ok {
		return nil
	}
	if v, _ := body["fileTransfer"].(string); v == ProgramTransferError {
		return &Response{Success: false, Payload: body, Error: "Program download failed"}
	}
	return nil
}

// MQTTConfig points the logger at a binary MQTT settings file. If the file
// is valid the settings are applied and the logger reboots.
type MQTTConfig struct{ base }

func NewMQTTConfig(target Target, opts ...Option) *MQTTConfig {
	return &MQTTConfig{newBase(NameMQTTConfig, target, opts)}
}

func (c *MQTTConfig) BuildPayload(args Args) (Payload, error) {
	values, err := bind("mqtt-config", args, "url")
	if err != nil {
		return nil, err
	}
	url, err := requireString("mqtt-config", values, "url")
	if err != nil {
		return nil, err
	}
	return Payload{"url": url}, nil
}

// EditConstants edits constants of the running CRBasic program. The logger
// converts values to the declared types.
type EditConstants struct{ base }

func NewEditConstants(target Target, opts ...Option) *EditConstants {
	return &EditConstants{newBase(NameEditConstants, target, opts)}
}

// BuildPayload merges every positional mapping in order, then the named
// pairs. Later keys win.
func (c *EditConstants) BuildPayload(args Args) (Payload, error) {
	out := make(Payload)
	for i, arg := range args.Positional {
		switch m := arg.(type) {
		case map[string]any:
			for k, v := range m {
				out[k] = v
			}
		case map[string]string:
			for k, v := range m {
				out[k] = v
			}
		case Payload:
			for k, v := range m {
				out[k] = v
			}
		default:
			return nil, &ValidationError{
				Command: "edit-constants",
				Field:   fmt.Sprintf("args[%d]", i),
				Message: fmt.Sprintf("positional arguments must be mappings, got %T", arg),
			}
		}
	}
	for k, v := range args.Named {
		out[k] = v
	}
	return out, nil
}

// Reboot restarts the logger.
type Reboot struct{ base }

func NewReboot(target Target, opts ...Option) *Reboot {
	return &Reboot{newBase(NameReboot, target, opts)}
}

func (c *Reboot) BuildPayload(args Args) (Payload, error) {
	if _, err := bind("reboot", args); err != nil {
		return nil, err
	}
	return Payload{"action": "reboot"}, nil
}

// ListFiles lists the files on a drive. Replies carry a fileList key instead
// of success.
type ListFiles struct{ base }

func NewListFiles(target Target, opts ...Option) *ListFiles {
	return &ListFiles{newBase(NameFileControl, target, opts)}
}

func (c *ListFiles) BuildPayload(args Args) (Payload, error) {
	values, err := bind("list-files", args, "drive")
	if err != nil {
		return nil, err
	}
	drive, err := optionalString("list-files", values, "drive")
	if err != nil {
		return nil, err
	}
	return withDrive(Payload{"action": "list"}, drive), nil
}

func (c *ListFiles) Classify(topic string, raw []byte) (*Response, error) {
	body, ok := decodeObject(raw)
	if !ok {
		return nil, nil
	}
	if _, ok := body["fileList"]; ok {
		return &Response{Success: true, Payload: body}, nil
	}
	return c.base.Classify(topic, raw)
}

// DeleteFile removes a file from the logger.
type DeleteFile struct{ base }

func NewDeleteFile(target Target, opts ...Option) *DeleteFile {
	return &DeleteFile{newBase(NameFileControl, target, opts)}
}

func (c *DeleteFile) BuildPayload(args Args) (Payload, error) {
	return fileAction("delete-file", "delete", args)
}

// RunProgram runs a program file already stored on the logger.
type RunProgram struct{ base }

func NewRunProgram(target Target, opts ...Option) *RunProgram {
	return &RunProgram{newBase(NameFileControl, target, opts)}
}

func (c *RunProgram) BuildPayload(args Args) (Payload, error) {
	return fileAction("run-program", "run", args)
}

// StopProgram stops the running program.
type StopProgram struct{ base }

func NewStopProgram(target Target, opts ...Option) *StopProgram {
	return &StopProgram{newBase(NameFileControl, target, opts)}
}

func (c *StopProgram) BuildPayload(args Args) (Payload, error) {
	values, err := bind("stop-program", args, "drive")
	if err != nil {
		return nil, err
	}
	drive, err := optionalString("stop-program", values, "drive")
	if err != nil {
		return nil, err
	}
	return withDrive(Payload{"action": "stop"}, drive), nil
}

func fileAction(kind, action string, args Args) (Payload, error) {
	values, err := bind(kind, args, "fileName", "drive")
	if err != nil {
		return nil, err
	}
	fileName, err := requireString(kind, values, "fileName")
	if err != nil {
		return nil, err
	}
	drive, err := optionalString(kind, values, "drive")
	if err != nil {
		return nil, err
	}
	return withDrive(Payload{"action": action, "fileName": fileName}, drive), nil
}

func withDrive(p Payload, drive string) Payload {
	if drive != "" {
		p["drive"] = drive
	}
	return p
}

// SetSetting changes a logger setting. The logger accepts out of range
// values silently; no range checking happens here.
type SetSetting struct{ base }

func NewSetSetting(target Target, opts ...Option) *SetSetting {
	return &SetSetting{newBase(NameSetting, target, opts)}
}

// Payload omits the apply key entirely unless apply is true.
func (c *SetSetting) Payload(name, value string, apply bool) Payload {
	p := Payload{"action": "set", "name": name, "value": value}
	if apply {
		p["apply"] = true
	}
	return p
}

func (c *SetSetting) BuildPayload(args Args) (Payload, error) {
	values, err := bind("set-setting", args, "name", "value", "apply")
	if err != nil {
		return nil, err
	}
	name, err := requireString("set-setting", values, "name")
	if err != nil {
		return nil, err
	}
	if _, ok := values["value"]; !ok {
		return nil, &ValidationError{Command: "set-setting", Field: "value", Message: "required argument missing"}
	}
	value, err := optionalString("set-setting", values, "value")
	if err != nil {
		return nil, err
	}
	apply, err := optionalBool("set-setting", values, "apply")
	if err != nil {
		return nil, err
	}
	return c.Payload(name, value, apply), nil
}

// PublishSetting asks the logger to publish the current value of a setting.
type PublishSetting struct{ base }

func NewPublishSetting(target Target, opts ...Option) *PublishSetting {
	return &PublishSetting{newBase(NameSetting, target, opts)}
}

func (c *PublishSetting) BuildPayload(args Args) (Payload, error) {
	values, err := bind("publish-setting", args, "name")
	if err != nil {
		return nil, err
	}
	name, err := requireString("publish-setting", values, "name")
	if err != nil {
		return nil, err
	}
	return Payload{"action": "publish", "name": name}, nil
}

// ApplySettings applies pending setting changes. This may reboot the logger.
type ApplySettings struct{ base }

func NewApplySettings(target Target, opts ...Option) *ApplySettings {
	return &ApplySettings{newBase(NameSetting, target, opts)}
}

func (c *ApplySettings) BuildPayload(args Args) (Payload, error) {
	if _, err := bind("apply-settings", args); err != nil {
		return nil, err
	}
	return Payload{"action": "apply", "apply": true}, nil
}

// GetVar publishes a program variable.
type GetVar struct{ base }

func NewGetVar(target Target, opts ...Option) *GetVar {
	return &GetVar{newBase(NameGetVar, target, opts)}
}

func (c *GetVar) BuildPayload(args Args) (Payload, error) {
	values, err := bind("get-var", args, "name")
	if err != nil {
		return nil, err
	}
	name, err := requireString("get-var", values, "name")
	if err != nil {
		return nil, err
	}
	return Payload{"name": name}, nil
}

// SetVar sets a program variable.
type SetVar struct{ base }

func NewSetVar(target Target, opts ...Option) *SetVar {
	return &SetVar{newBase(NameSetVar, target, opts)}
}

func (c *SetVar) BuildPayload(args Args) (Payload, error) {
	values, err := bind("set-var", args, "name", "value")
	if err != nil {
		return nil, err
	}
	name, err := requireString("set-var", values, "name")
	if err != nil {
		return nil, err
	}
	if _, ok := values["value"]; !ok {
		return nil, &ValidationError{Command: "set-var", Field: "value", Message: "required argument missing"}
	}
	value, err := optionalString("set-var", values, "value")
	if err != nil {
		return nil, err
	}
	return Payload{"name": name, "value": value}, nil
}

// HistoricData retrieves records of a table between two timestamps.
type HistoricData struct{ base }

func NewHistoricData(target Target, opts ...Option) *HistoricData {
	return &HistoricData{newBase(NameHistoricData, target, opts)}
}

func (c *HistoricData) BuildPayload(args Args) (Payload, error) {
	values, err := bind("historic-data", args, "table", "start", "end")
	if err != nil {
		return nil, err
	}
	p := make(Payload, 3)
	for _, key := range []string{"table", "start", "end"} {
		v, err := requireString("historic-data", values, key)
		if err != nil {
			return nil, err
		}
		p[key] = v
	}
	return p, nil
}

// TalkThru relays a string to a sensor on a COM port. The logger keeps the
// port in talk-through mode for about a minute, waiting for further TalkThru
// commands; send abort to end the session early.
type TalkThru struct{ base }

func NewTalkThru(target Target, opts ...Option) *TalkThru {
	return &TalkThru{newBase(NameTalkThru, target, opts)}
}

func (c *TalkThru) BuildPayload(args Args) (Payload, error) {
	const kind = "talk-thru"
	values, err := bind(kind, args, "comPort", "outString", "numberTries", "respDelay", "abort")
	if err != nil {
		return nil, err
	}
	comPort, err := requireString(kind, values, "comPort")
	if err != nil {
		return nil, err
	}
	outString, err := requireString(kind, values, "outString")
	if err != nil {
		return nil, err
	}
	p := Payload{"comPort": comPort, "outString": outString}

	for _, key := range []string{"numberTries", "respDelay"} {
		v, err := optionalString(kind, values, key)
		if err != nil {
			return nil, err
		}
		if v != "" {
			p[key] = v
		}
	}
	abort, err := optionalBool(kind, values, "abort")
	if err != nil {
		return nil, err
	}
	if abort {
		p["abort"] = true
	}
	return p, nil
}

// Classify treats a "response" key as success and an "error" key as a
// failure. Every other shape, including an unreadable body, breaks the
// TalkThru contract.
func (c *TalkThru) Classify(topic string, raw []byte) (*Response, error) {
	body, ok := decodeObject(raw)
	if !ok {
		return nil, &ProtocolError{Command: c.name, Topic: topic, Body: raw, Reason: "body is not a JSON object"}
	}
	if _, ok := body["response"]; ok {
		return &Response{Success: true, Payload: body}, nil
	}
	if r := errorResponse(body); r != nil {
		return r, nil
	}
	return nil, &ProtocolError{Command: c.name, Topic: topic, Body: raw, Reason: "unknown response from TalkThru"}
}
