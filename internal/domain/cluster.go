package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ClusterVersion is the version block of the cluster info response.
type ClusterVersion struct {
	Number      string
	Major       int
	Minor       int
	BuildFlavor string
}

// ParseClusterVersion parses "8.14.1" style version numbers.
func ParseClusterVersion(number, buildFlavor string) (ClusterVersion, error) {
	parts := strings.SplitN(number, ".", 3)
	if len(parts) < 2 {
		return ClusterVersion{}, fmt.Errorf("malformed cluster version %q", number)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return ClusterVersion{}, fmt.Errorf("malformed cluster version %q: %w", number, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return ClusterVersion{}, fmt.Errorf("malformed cluster version %q: %w", number, err)
	}
	if buildFlavor == "" {
		buildFlavor = "unknown"
	}
	return ClusterVersion{Number: number, Major: major, Minor: minor, BuildFlavor: buildFlavor}, nil
}

// AtLeast reports whether the version is major.minor or newer.
func (v ClusterVersion) AtLeast(major, minor int) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

// Capabilities is the feature table derived from a cluster version.
type Capabilities struct {
	Version                         ClusterVersion
	Supported                       bool
	Serverless                      bool
	TimeSeriesDatastream            bool
	IgnoreMissingComponentTemplates bool
	DatastreamLifecycle             bool
	MaxPrimaryShardSize             bool
}

func CapabilitiesFor(v ClusterVersion) Capabilities {
	serverless := v.BuildFlavor == "serverless"
	return Capabilities{
		Version:                         v,
		Supported:                       serverless || v.Major == 8 || (v.Major == 7 && v.Minor >= 11),
		Serverless:                      serverless,
		TimeSeriesDatastream:            serverless || v.AtLeast(8, 7),
		IgnoreMissingComponentTemplates: serverless || v.AtLeast(8, 7),
		DatastreamLifecycle:             serverless || v.AtLeast(8, 11),
		MaxPrimaryShardSize:             serverless || v.AtLeast(7, 13),
	}
}

// IndexTemplateInfo is what the lifecycle code needs to know about an installed template.
type IndexTemplateInfo struct {
	Name    string
	Version int
}
