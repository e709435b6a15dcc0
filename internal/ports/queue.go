package ports

import "github.com/strawgate/homeassistant-elasticsearch/internal/domain"

// RecordQueue decouples the producers from the publish cycle.
type RecordQueue interface {
	// Enqueue never blocks and never rejects.
	Enqueue(r domain.RawRecord)
	// Drain removes and returns everything queued at the moment of the call.
	Drain() []domain.RawRecord
	Len() int
}
