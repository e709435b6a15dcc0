package pipeline

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/strawgate/homeassistant-elasticsearch/internal/coerce"
	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/enrich"
	"github.com/strawgate/homeassistant-elasticsearch/internal/memo"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

const (
	domainCacheSize = 128
	maxDomainLength = 128
	eventKind       = "event"
	eventTypeInfo   = "info"
	eventTypeChange = "change"
	attrUnit        = "unit_of_measurement"
	attrStateClass  = "state_class"
	attrDeviceClass = "device_class"
	attrLatitude    = "latitude"
	attrLongitude   = "longitude"
)

// Formatter turns raw records into documents.
type Formatter struct {
	normalizer *coerce.Normalizer
	enricher   *enrich.Enricher
	obs        ports.Observability
	debugAttrs bool
	domains    *memo.Func[string]

	static         *domain.StaticFields
	warnedNoFields atomic.Bool
}

func NewFormatter(enricher *enrich.Enricher, obs ports.Observability, debugAttributeFiltering bool) *Formatter {
	return &Formatter{
		normalizer: coerce.NewNormalizer(),
		enricher:   enricher,
		obs:        obs,
		debugAttrs: debugAttributeFiltering,
		domains:    memo.NewFunc(domainCacheSize, SanitizeDomain),
	}
}

// SetStaticFields installs the per-pipeline static fields. It is called once,
// before the first Format.
func (f *Formatter) SetStaticFields(sf domain.StaticFields) {
	f.static = &sf
}

// Format builds the document for one record. The same inputs with the same
// static fields and registry contents produce the same document.
func (f *Formatter) Format(ts time.Time, st *domain.EntityState, reason domain.ChangeReason) domain.Document {
	if ts.IsZero() {
		ts = st.LastUpdated
	}

	eventType := eventTypeChange
	if reason == domain.ChangePolled {
		eventType = eventTypeInfo
	}

	doc := domain.Document{
		Timestamp: domain.FormatTimestamp(ts),
		Event: domain.EventMeta{
			Action: reason.Action(),
			Kind:   eventKind,
			Type:   eventType,
		},
		Hass:       domain.HassFields{Entity: f.entity(st)},
		DataStream: f.Datastream(st.Domain()),
	}

	if f.static == nil {
		if f.warnedNoFields.CompareAndSwap(false, true) {
			f.obs.LogWarn("static_fields_missing", ports.F("entity_id", st.EntityID))
		}
	} else {
		doc.StaticFields = *f.static
	}
	return doc
}

// Datastream returns the routing triple for an entity domain.
func (f *Formatter) Datastream(entityDomain string) domain.Datastream {
	return domain.Datastream{
		Type:      domain.DatastreamType,
		Dataset:   domain.DatastreamDatasetPrefix + "." + f.domains.Call(entityDomain),
		Namespace: domain.DatastreamNamespace,
	}
}

func (f *Formatter) entity(st *domain.EntityState) domain.EntityFields {
	attrs := st.Attributes
	ent := domain.EntityFields{
		ID:                st.EntityID,
		Domain:            st.Domain(),
		Object:            domain.ObjectRef{ID: st.ObjectID()},
		Value:             st.State,
		ValueAs:           coerce.Value(st.State),
		Attributes:        f.normalizer.Attributes(attrs, attributeSignals{f: f, entityID: st.EntityID}),
		FriendlyName:      st.Name(),
		UnitOfMeasurement: stringAttr(attrs, attrUnit),
		Location:          location(attrs),
	}
	if sc := stringAttr(attrs, attrStateClass); sc != "" {
		ent.StateClass = &domain.StateClass{Class: sc}
	}

	details := f.enricher.Lookup(st.EntityID)
	ent.Name = details.Name
	ent.Platform = details.Platform
	ent.Labels = details.Labels
	ent.Area = details.Area
	ent.Device = details.Device
	if dc := stringAttr(attrs, attrDeviceClass); dc != "" && ent.Device != nil {
		ent.Device.Class = dc
	}
	return ent
}

// SanitizeDomain lowercases d, keeps only [a-z0-9_] and caps the length.
func SanitizeDomain(d string) string {
	d = strings.ToLower(d)
	var b strings.Builder
	b.Grow(len(d))
	for i := 0; i < len(d) && b.Len() < maxDomainLength; i++ {
		c := d[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func stringAttr(attrs map[string]any, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func location(attrs map[string]any) *domain.GeoPoint {
	lat, okLat := number(attrs[attrLatitude])
	lon, okLon := number(attrs[attrLongitude])
	if !okLat || !okLon {
		return nil
	}
	return &domain.GeoPoint{Lat: lat, Lon: lon}
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// attributeSignals reports attribute conversion events for one entity.
type attributeSignals struct {
	f        *Formatter
	entityID string
}

func (a attributeSignals) AttributeDropped(key, reason string) {
	if reason != coerce.ReasonSkipped {
		a.f.obs.IncCounter(ports.MetricAttributesDropped, 1)
	}
	if a.f.debugAttrs {
		a.f.obs.LogDebug("attribute_dropped",
			ports.F("entity_id", a.entityID),
			ports.F("attribute", key),
			ports.F("reason", reason))
	}
}

func (a attributeSignals) AttributeCollision(key, normalized string) {
	a.f.obs.IncCounter(ports.MetricAttributeCollisions, 1)
	a.f.obs.LogWarn("attribute_key_collision",
		ports.F("entity_id", a.entityID),
		ports.F("attribute", key),
		ports.F("normalized", normalized))
}
