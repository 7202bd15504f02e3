package viewer

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// ULID-style identifiers: 48-bit millisecond timestamp followed by 80 random
// bits, Crockford base32 encoded to 26 characters. A per-millisecond
// sequence in the random part keeps ids from one process strictly unique.

var (
	idMu    sync.Mutex
	lastTS  uint64
	lastSeq uint16
)

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewID returns a new sortable identifier.
func NewID() string {
	idMu.Lock()
	defer idMu.Unlock()

	ts := uint64(time.Now().UnixMilli())
	if ts == lastTS {
		lastSeq++
	} else {
		lastTS = ts
		lastSeq = 0
	}

	var b [16]byte
	for i := 0; i < 6; i++ {
		b[i] = byte(ts >> (40 - 8*i))
	}
	rand.Read(b[6:])
	binary.BigEndian.PutUint16(b[6:8], lastSeq)
	return encodeID(b)
}

// encodeID writes the 128 bits as 26 five-bit groups, most significant
// first; the leading group carries only 3 bits.
func encodeID(b [16]byte) string {
	hi := binary.BigEndian.Uint64(b[:8])
	lo := binary.BigEndian.Uint64(b[8:])
	var out [26]byte
	for i := 25; i >= 0; i-- {
		out[i] = crockford[lo&31]
		lo = lo>>5 | hi<<59
		hi >>= 5
	}
	return string(out[:])
}

// HandleTable is the explicit two-way mapping between span ids and the
// handles given to rendered shapes.
type HandleTable struct {
	bySpan   map[string]string
	byHandle map[string]string
}

func NewHandleTable() *HandleTable {
	return &HandleTable{
		bySpan:   make(map[string]string),
		byHandle: make(map[string]string),
	}
}

// Assign returns spanID's handle, creating one on first use.
func (t *HandleTable) Assign(spanID string) string {
	if h, ok := t.bySpan[spanID]; ok {
		return h
	}
	h := NewID()
	t.bySpan[spanID] = h
	t.byHandle[h] = spanID
	return h
}

// Span resolves a handle back to its span id.
func (t *HandleTable) Span(handle string) (string, bool) {
	s, ok := t.byHandle[handle]
	return s, ok
}

// Handle returns the handle of spanID if one was assigned.
func (t *HandleTable) Handle(spanID string) (string, bool) {
	h, ok := t.bySpan[spanID]
	return h, ok
}

// Len returns the number of mapped spans.
func (t *HandleTable) Len() int {
	return len(t.bySpan)
}
