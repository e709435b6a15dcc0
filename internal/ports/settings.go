package ports

import (
	"time"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
)

// StringSet is a read-only membership set.
type StringSet map[string]struct{}

func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Settings is the pipeline configuration snapshot. It is built once per
// pipeline and never mutated; a configuration change builds a new pipeline.
type Settings struct {
	IncludedDomains  StringSet
	ExcludedDomains  StringSet
	IncludedEntities StringSet
	ExcludedEntities StringSet
	ChangeTypes      map[domain.ChangeReason]struct{}

	PollingEnabled  bool
	PollingInterval time.Duration
	PublishInterval time.Duration

	Tags                    []string
	DebugAttributeFiltering bool
}

// SettingsInput is the mutable form handed to NewSettings.
type SettingsInput struct {
	IncludedDomains  []string
	ExcludedDomains  []string
	IncludedEntities []string
	ExcludedEntities []string
	ChangeTypes      []domain.ChangeReason

	PollingEnabled  bool
	PollingInterval time.Duration
	PublishInterval time.Duration

	Tags                    []string
	DebugAttributeFiltering bool
}

// NewSettings copies the input into a Settings value. POLLED is allowed
// whenever polling is enabled, otherwise the poller's records would all be
// filtered out.
func NewSettings(in SettingsInput) Settings {
	changes := make(map[domain.ChangeReason]struct{}, len(in.ChangeTypes)+1)
	for _, c := range in.ChangeTypes {
		changes[c] = struct{}{}
	}
	if in.PollingEnabled {
		changes[domain.ChangePolled] = struct{}{}
	}
	return Settings{
		IncludedDomains:         NewStringSet(in.IncludedDomains...),
		ExcludedDomains:         NewStringSet(in.ExcludedDomains...),
		IncludedEntities:        NewStringSet(in.IncludedEntities...),
		ExcludedEntities:        NewStringSet(in.ExcludedEntities...),
		ChangeTypes:             changes,
		PollingEnabled:          in.PollingEnabled,
		PollingInterval:         in.PollingInterval,
		PublishInterval:         in.PublishInterval,
		Tags:                    append([]string(nil), in.Tags...),
		DebugAttributeFiltering: in.DebugAttributeFiltering,
	}
}

func (s Settings) AllowsChange(r domain.ChangeReason) bool {
	_, ok := s.ChangeTypes[r]
	return ok
}
