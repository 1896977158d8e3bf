package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// InterviewFields names the interview settings that changed. They take
	// effect when the next session starts.
	InterviewFields []string

	// RestartRequired names top-level sections that changed but cannot be
	// applied to a running process.
	RestartRequired []string
}

// InterviewChanged reports whether any interview setting changed.
func (d ConfigDiff) InterviewChanged() bool { return len(d.InterviewFields) > 0 }

// Empty reports whether nothing relevant changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.InterviewChanged() && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	o, n := old.Interview, new.Interview
	check := func(name string, changed bool) {
		if changed {
			d.InterviewFields = append(d.InterviewFields, name)
		}
	}
	check("persona", o.Persona != n.Persona)
	check("personas", !maps.Equal(o.Personas, n.Personas))
	check("language", o.Language != n.Language)
	check("skills", !slices.Equal(o.Skills, n.Skills))
	check("vocabulary", !slices.Equal(o.Vocabulary, n.Vocabulary))
	check("account", o.Account != n.Account)
	check("voice_id", o.VoiceID != n.VoiceID)
	check("alternate_voices", !slices.Equal(o.AlternateVoices, n.AlternateVoices))
	check("opening_prompt", o.OpeningPrompt != n.OpeningPrompt)
	check("context_budget", o.ContextBudget != n.ContextBudget)
	check("temperature", o.Temperature != n.Temperature)
	check("max_reply_tokens", o.MaxReplyTokens != n.MaxReplyTokens)
	check("tick", o.Tick != n.Tick)

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Quota != new.Quota {
		d.RestartRequired = append(d.RestartRequired, "quota")
	}
	return d
}
