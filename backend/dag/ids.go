package dag

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"opdag/backend/types"
)

// IDSupplier hands out globally unique, replica-independent operation ids.
type IDSupplier interface {
	// Origin returns the replica id stamped on every id this supplier creates.
	Origin() string

	// Next returns a fresh id.
	Next() types.OpID

	// Observe records an id imported from elsewhere so Next never reissues it.
	Observe(id types.OpID)
}

// NewXIDOrigin returns a new replica id built with rs/xid.
func NewXIDOrigin() string {
	return xid.New().String()
}

// NewUUIDOrigin returns a new random replica id built with google/uuid.
func NewUUIDOrigin() string {
	return uuid.NewString()
}

// SequenceSupplier pairs a fixed origin with a local sequence counter.
type SequenceSupplier struct {
	mu     sync.Mutex
	origin string
	seq    uint64
}

// NewSequenceSupplier creates a supplier for the given origin. An empty
// origin is replaced by a fresh xid.
func NewSequenceSupplier(origin string) *SequenceSupplier {
	if origin == "" {
		origin = NewXIDOrigin()
	}
	return &SequenceSupplier{origin: origin}
}

// Origin implements IDSupplier.
func (s *SequenceSupplier) Origin() string { return s.origin }

// Next implements IDSupplier.
func (s *SequenceSupplier) Next() types.OpID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	return types.OpID{Origin: s.origin, Seq: s.seq}
}

// Observe implements IDSupplier.
func (s *SequenceSupplier) Observe(id types.OpID) {
	if id.Origin != s.origin {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id.Seq > s.seq {
		s.seq = id.Seq
	}
}

// Current returns the last sequence handed out or observed.
func (s *SequenceSupplier) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
