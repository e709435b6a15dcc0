package pipeline

import (
	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
	"github.com/strawgate/homeassistant-elasticsearch/internal/ports"
)

// Filterer decides which raw records become documents. It holds no state
// beyond the settings it was built with.
type Filterer struct {
	settings ports.Settings
}

func NewFilterer(settings ports.Settings) *Filterer {
	return &Filterer{settings: settings}
}

// Passes applies the rules in order; the first rule that matches decides.
// Entity rules win over domain rules, and with no include lists configured
// everything not excluded passes.
func (f *Filterer) Passes(entityID, entityDomain string, reason domain.ChangeReason) bool {
	s := f.settings
	switch {
	case !s.AllowsChange(reason):
		return false
	case s.IncludedEntities.Has(entityID):
		return true
	case s.ExcludedEntities.Has(entityID):
		return false
	case s.IncludedDomains.Has(entityDomain):
		return true
	case s.ExcludedDomains.Has(entityDomain):
		return false
	case len(s.IncludedEntities) == 0 && len(s.IncludedDomains) == 0:
		return true
	default:
		return false
	}
}
