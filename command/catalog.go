package command

import "sort"

// Factory builds a descriptor for one target.
type Factory func(target Target, opts ...Option) Descriptor

// Entry describes one kind of command in the catalog.
type Entry struct {
	Kind    string   `json:"kind"`
	Topic   string   `json:"topic"`
	Params  []string `json:"params"`
	Summary string   `json:"summary"`
	New     Factory  `json:"-"`
}

var catalog = map[string]Entry{
	"os": {
		Kind: "os", Topic: NameOS, Params: []string{"url"},
		Summary: "download and install an operating system",
		New:     func(t Target, o ...Option) Descriptor { return NewOS(t, o...) },
	},
	"program": {
		Kind: "program", Topic: NameProgram, Params: []string{"url", "fileName"},
		Summary: "download a CRBasic program, set it current and reboot",
		New:     func(t Target, o ...Option) Descriptor { return NewProgram(t, o...) },
	},
	"mqtt-config": {
		Kind: "mqtt-config", Topic: NameMQTTConfig, Params: []string{"url"},
		Summary: "apply a binary MQTT settings file and reboot",
		New:     func(t Target, o ...Option) Descriptor { return NewMQTTConfig(t, o...) },
	},
	"edit-constants": {
		Kind: "edit-constants", Topic: NameEditConstants, Params: []string{"name=value..."},
		Summary: "edit constants of the running program",
		New:     func(t Target, o ...Option) Descriptor { return NewEditConstants(t, o...) },
	},
	"reboot": {
		Kind: "reboot", Topic: NameReboot,
		Summary: "reboot the logger",
		New:     func(t Target, o ...Option) Descriptor { return NewReboot(t, o...) },
	},
	"list-files": {
		Kind: "list-files", Topic: NameFileControl, Params: []string{"drive?"},
		Summary: "list files on a drive",
		New:     func(t Target, o ...Option) Descriptor { return NewListFiles(t, o...) },
	},
	"delete-file": {
		Kind: "delete-file", Topic: NameFileControl, Params: []string{"fileName", "drive?"},
		Summary: "delete a file",
		New:     func(t Target, o ...Option) Descriptor { return NewDeleteFile(t, o...) },
	},
	"run-program": {
		Kind: "run-program", Topic: NameFileControl, Params: []string{"fileName", "drive?"},
		Summary: "run a program stored on the logger",
		New:     func(t Target, o ...Option) Descriptor { return NewRunProgram(t, o...) },
	},
	"stop-program": {
		Kind: "stop-program", Topic: NameFileControl, Params: []string{"drive?"},
		Summary: "stop the running program",
		New:     func(t Target, o ...Option) Descriptor { return NewStopProgram(t, o...) },
	},
	"set-setting": {
		Kind: "set-setting", Topic: NameSetting, Params: []string{"name", "value", "apply?"},
		Summary: "change a setting",
		New:     func(t Target, o ...Option) Descriptor { return NewSetSetting(t, o...) },
	},
	"publish-setting": {
		Kind: "publish-setting", Topic: NameSetting, Params: []string{"name"},
		Summary: "publish the value of a setting",
		New:     func(t Target, o ...Option) Descriptor { return NewPublishSetting(t, o...) },
	},
	"apply-settings": {
		Kind: "apply-settings", Topic: NameSetting,
		Summary: "apply changed settings",
		New:     func(t Target, o ...Option) Descriptor { return NewApplySettings(t, o...) },
	},
	"get-var": {
		Kind: "get-var", Topic: NameGetVar, Params: []string{"name"},
		Summary: "publish a program variable",
		New:     func(t Target, o ...Option) Descriptor { return NewGetVar(t, o...) },
	},
	"set-var": {
		Kind: "set-var", Topic: NameSetVar, Params: []string{"name", "value"},
		Summary: "set a program variable",
		New:     func(t Target, o ...Option) Descriptor { return NewSetVar(t, o...) },
	},
	"historic-data": {
		Kind: "historic-data", Topic: NameHistoricData, Params: []string{"table", "start", "end"},
		Summary: "retrieve historic table data",
		New:     func(t Target, o ...Option) Descriptor { return NewHistoricData(t, o...) },
	},
	"talk-thru": {
		Kind: "talk-thru", Topic: NameTalkThru,
		Params:  []string{"comPort", "outString", "numberTries?", "respDelay?", "abort?"},
		Summary: "relay a string to a sensor port",
		New:     func(t Target, o ...Option) Descriptor { return NewTalkThru(t, o...) },
	},
}

// Lookup returns the catalog entry for kind.
func Lookup(kind string) (Entry, bool) {
	e, ok := catalog[kind]
	return e, ok
}

// Kinds returns every catalog entry sorted by kind.
func Kinds() []Entry {
	entries := make([]Entry, 0, len(catalog))
	for _, e := range catalog {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Kind < entries[j].Kind })
	return entries
}
