package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Only the log level
// and the assistant's chat settings apply without a restart; the other flags
// tell the operator a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AssistantChanged is set when chat history, fallback models, speech voice
	// or search grounding changed.
	AssistantChanged bool

	// RoadmapChanged is set when the roadmap path changed.
	RoadmapChanged bool

	// RestartRequired lists the sections whose changes only apply to a new
	// process: "providers", "live", "audio" and "server.listen_addr".
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.AssistantChanged || d.RoadmapChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !assistantEqual(old.Assistant, new.Assistant) {
		d.AssistantChanged = true
	}
	if old.Roadmap != new.Roadmap {
		d.RoadmapChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Live != new.Live {
		d.RestartRequired = append(d.RestartRequired, "live")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	return d
}

func assistantEqual(a, b AssistantConfig) bool {
	return a.History == b.History &&
		a.SpeechVoice == b.SpeechVoice &&
		a.SearchEnabled() == b.SearchEnabled() &&
		slices.Equal(a.FallbackModels, b.FallbackModels)
}
