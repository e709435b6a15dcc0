package domain

import (
	"strconv"
	"time"
)

const (
	DatastreamType          = "metrics"
	DatastreamDatasetPrefix = "homeassistant"
	DatastreamNamespace     = "default"

	// BulkOpCreate is the only bulk operation the pipeline emits.
	BulkOpCreate = "create"
)

// Document is one indexed record. Field order is fixed by the struct, so two
// documents built from the same inputs serialize to the same bytes.
type Document struct {
	Timestamp  string     `json:"@timestamp"`
	Event      EventMeta  `json:"event"`
	Hass       HassFields `json:"hass"`
	DataStream Datastream `json:"data_stream"`
	StaticFields
}

type EventMeta struct {
	Action string `json:"action"`
	Kind   string `json:"kind"`
	Type   string `json:"type"`
}

type HassFields struct {
	Entity EntityFields `json:"entity"`
}

type EntityFields struct {
	ID                string         `json:"id"`
	Domain            string         `json:"domain"`
	Object            ObjectRef      `json:"object"`
	Value             string         `json:"value"`
	ValueAs           CoercedValue   `json:"valueas"`
	Attributes        map[string]any `json:"attributes,omitempty"`
	FriendlyName      string         `json:"friendly_name,omitempty"`
	Name              string         `json:"name,omitempty"`
	Platform          string         `json:"platform,omitempty"`
	UnitOfMeasurement string         `json:"unit_of_measurement,omitempty"`
	StateClass        *StateClass    `json:"state,omitempty"`
	Labels            []string       `json:"labels,omitempty"`
	Area              *AreaInfo      `json:"area,omitempty"`
	Device            *DeviceInfo    `json:"device,omitempty"`
	Location          *GeoPoint      `json:"location,omitempty"`
}

type ObjectRef struct {
	ID string `json:"id"`
}

type StateClass struct {
	Class string `json:"class"`
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Datastream is the (type, dataset, namespace) routing triple.
type Datastream struct {
	Type      string `json:"type"`
	Dataset   string `json:"dataset"`
	Namespace string `json:"namespace"`
}

// IndexName is the wire index name for the triple.
func (d Datastream) IndexName() string {
	return d.Type + "-" + d.Dataset + "-" + d.Namespace
}

// StaticFields are computed once per pipeline build and merged into every document.
type StaticFields struct {
	Agent *AgentFields `json:"agent,omitempty"`
	Host  *HostFields  `json:"host,omitempty"`
	Tags  []string     `json:"tags,omitempty"`
}

type AgentFields struct {
	Version     string `json:"version,omitempty"`
	EphemeralID string `json:"ephemeral_id,omitempty"`
}

type HostFields struct {
	Architecture string    `json:"architecture,omitempty"`
	Hostname     string    `json:"hostname,omitempty"`
	OS           *HostOS   `json:"os,omitempty"`
	Location     *GeoPoint `json:"location,omitempty"`
}

type HostOS struct {
	Name string `json:"name,omitempty"`
}

// ValueKind tags which member of CoercedValue is set.
type ValueKind uint8

const (
	KindString ValueKind = iota
	KindBoolean
	KindFloat
	KindDatetime
)

// CoercedValue is the closed union of typed views of a state value.
// Exactly one member group is populated, selected by Kind.
type CoercedValue struct {
	Kind     ValueKind `json:"-"`
	Boolean  *bool     `json:"boolean,omitempty"`
	Float    *float64  `json:"float,omitempty"`
	Datetime string    `json:"datetime,omitempty"`
	Date     string    `json:"date,omitempty"`
	Time     string    `json:"time,omitempty"`
	String   *string   `json:"string,omitempty"`
}

func BooleanValue(b bool) CoercedValue { return CoercedValue{Kind: KindBoolean, Boolean: &b} }

func FloatValue(f float64) CoercedValue { return CoercedValue{Kind: KindFloat, Float: &f} }

func StringValue(s string) CoercedValue { return CoercedValue{Kind: KindString, String: &s} }

func DatetimeValue(t time.Time) CoercedValue {
	return CoercedValue{
		Kind:     KindDatetime,
		Datetime: FormatTimestamp(t),
		Date:     t.Format("2006-01-02"),
		Time:     formatClock(t),
	}
}

// FormatTimestamp renders an ISO-8601 instant that always carries its offset
// (+00:00 rather than Z) and microseconds only when non-zero.
func FormatTimestamp(t time.Time) string {
	b := make([]byte, 0, 32)
	b = t.AppendFormat(b, "2006-01-02T")
	b = append(b, formatClock(t)...)
	return string(t.AppendFormat(b, "-07:00"))
}

func formatClock(t time.Time) string {
	s := t.Format("15:04:05")
	if us := t.Nanosecond() / 1000; us != 0 {
		s += "." + leftPad(strconv.Itoa(us), 6)
	}
	return s
}

func leftPad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}

// BulkAction is a single create instruction for the bulk endpoint.
type BulkAction struct {
	Operation string
	Index     string
	Document  *Document
}

// BulkItemResult is the per-document outcome reported by the cluster.
type BulkItemResult struct {
	Operation   string
	Index       string
	Status      int
	ErrorType   string
	ErrorReason string
}

func (r BulkItemResult) Failed() bool { return r.Status >= 300 || r.ErrorType != "" }

type BulkResult struct {
	Took   time.Duration
	Items  []BulkItemResult
	Errors bool
}

// Failed returns the items the cluster rejected.
func (r BulkResult) Failed() []BulkItemResult {
	var out []BulkItemResult
	for _, it := range r.Items {
		if it.Failed() {
			out = append(out, it)
		}
	}
	return out
}
