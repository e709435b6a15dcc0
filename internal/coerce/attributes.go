package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/strawgate/homeassistant-elasticsearch/internal/memo"
)

// KeyCacheSize bounds the normalized attribute key cache.
const KeyCacheSize = 4096

// SkipAttributes are presentation fields that never become document attributes.
var SkipAttributes = map[string]struct{}{
	"friendly_name":       {},
	"entity_picture":      {},
	"icon":                {},
	"device_class":        {},
	"state_class":         {},
	"unit_of_measurement": {},
}

// ReasonSkipped is the drop reason reported for SkipAttributes entries.
const ReasonSkipped = "in skip list"

var nonWord = regexp.MustCompile(`\W+`)

// AttributeObserver receives the non-fatal events raised while converting an
// attribute map. Either method may be a no-op.
type AttributeObserver interface {
	AttributeDropped(key, reason string)
	AttributeCollision(key, normalized string)
}

type nopObserver struct{}

func (nopObserver) AttributeDropped(string, string)   {}
func (nopObserver) AttributeCollision(string, string) {}

// Normalizer converts attribute maps. It owns the key normalization cache.
type Normalizer struct {
	keys *memo.Func[string]
}

func NewNormalizer() *Normalizer {
	return &Normalizer{keys: memo.NewFunc(KeyCacheSize, normalizeKey)}
}

// Key returns the cached normalized form of an attribute name.
func (n *Normalizer) Key(key string) string { return n.keys.Call(key) }

// Attributes converts attrs into document attributes. Keys are processed in
// sorted order so a collision always resolves to the same winner: the last
// key processed.
func (n *Normalizer) Attributes(attrs map[string]any, obs AttributeObserver) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	if obs == nil {
		obs = nopObserver{}
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(attrs))
	for _, key := range keys {
		if strings.TrimSpace(key) == "" {
			obs.AttributeDropped(key, "empty key")
			continue
		}
		if _, skip := SkipAttributes[key]; skip {
			obs.AttributeDropped(key, ReasonSkipped)
			continue
		}
		value, err := convertValue(attrs[key])
		if err != nil {
			obs.AttributeDropped(key, err.Error())
			continue
		}
		normalized := n.Key(key)
		if normalized == "" {
			obs.AttributeDropped(key, "empty after normalization")
			continue
		}
		if _, exists := out[normalized]; exists {
			obs.AttributeCollision(key, normalized)
		}
		out[normalized] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeKey folds to ASCII, turns runs of non-word characters into a single
// underscore, trims underscores and lowercases.
func normalizeKey(key string) string {
	decomposed := norm.NFKD.String(key)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	s := nonWord.ReplaceAllString(b.String(), "_")
	return strings.ToLower(strings.Trim(s, "_"))
}

// convertValue applies the attribute value allow-list. Scalars pass through,
// sets become lists, and composite values nested deeper than one sequence
// level are encoded as JSON strings.
func convertValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x, nil
	case float32:
		return finite(float64(x))
	case float64:
		return finite(x)
	case []any:
		return convertSequence(x)
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			if _, err := finite(f); err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, nil
	case map[string]struct{}:
		out := make([]any, 0, len(x))
		for _, k := range sortedSet(x) {
			out = append(out, k)
		}
		return out, nil
	case map[string]any:
		return encode(x)
	default:
		return nil, fmt.Errorf("disallowed value type %T", v)
	}
}

func convertSequence(seq []any) (any, error) {
	out := make([]any, len(seq))
	for i, el := range seq {
		switch el.(type) {
		case []any, map[string]any, map[string]struct{}, []string, []float64, []int:
			return encode(seq)
		}
		v, err := convertValue(el)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func encode(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unencodable value: %w", err)
	}
	return string(raw), nil
}

func finite(f float64) (any, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return f, nil
}

func sortedSet(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
