package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

const unknownValue = "unknown"

// BuildStaticFields looks up the host once and returns the fields merged into
// every document. A failed or missing lookup yields "unknown" values, never an error.
func BuildStaticFields(ctx context.Context, src ports.SystemInfoProvider, tags []string, obs ports.Observability) domain.StaticFields {
	var info domain.SystemInfo
	if src != nil {
		var err error
		info, err = src.SystemInfo(ctx)
		if err != nil {
			obs.LogWarn("system_info_unavailable", ports.F("error", err.Error()))
			info = domain.SystemInfo{}
		}
	}

	sf := domain.StaticFields{
		Agent: &domain.AgentFields{
			Version:     orUnknown(info.Version),
			EphemeralID: uuid.NewString(),
		},
		Host: &domain.HostFields{
			Architecture: orUnknown(info.Arch),
			Hostname:     orUnknown(info.Hostname),
			OS:           &domain.HostOS{Name: orUnknown(info.OSName)},
		},
	}
	if info.Latitude != nil && info.Longitude != nil {
		sf.Host.Location = &domain.GeoPoint{Lat: *info.Latitude, Lon: *info.Longitude}
	}
	if len(tags) > 0 {
		sf.Tags = append([]string(nil), tags...)
	}
	return sf
}

func orUnknown(s string) string {
	if s == "" {
		return unknownValue
	}
	return s
}
