package domain

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// TimestampPrecision is the finest resolution every record store keeps.
// Postgres timestamptz stores microseconds, so instants are truncated to it
// before they are compared or persisted.
const TimestampPrecision = time.Microsecond

// Timestamp is an optional instant: either present with a value or absent.
// The zero value is absent.
type Timestamp struct {
	value   time.Time
	present bool
}

// Present wraps t as a present timestamp, truncated to TimestampPrecision.
func Present(t time.Time) Timestamp {
	return Timestamp{value: Instant(t), present: true}
}

// Instant normalizes t to UTC at TimestampPrecision.
func Instant(t time.Time) time.Time {
	return t.UTC().Truncate(TimestampPrecision)
}

// Absent returns the absent timestamp.
func Absent() Timestamp {
	return Timestamp{}
}

// FromPtr converts a nullable time, as scanned from a database, into a Timestamp.
func FromPtr(t *time.Time) Timestamp {
	if t == nil {
		return Absent()
	}
	return Present(*t)
}

// Get returns the value and whether it is present.
func (ts Timestamp) Get() (time.Time, bool) {
	return ts.value, ts.present
}

// IsPresent reports whether a value is set.
func (ts Timestamp) IsPresent() bool {
	return ts.present
}

// Ptr returns a pointer suitable for nullable database columns.
func (ts Timestamp) Ptr() *time.Time {
	if !ts.present {
		return nil
	}
	v := ts.value
	return &v
}

// StrictlyAfter reports whether both timestamps are present and ts is later
// than other. Absent on either side is never after anything.
func (ts Timestamp) StrictlyAfter(other Timestamp) bool {
	if !ts.present || !other.present {
		return false
	}
	return ts.value.After(other.value)
}

// Equal reports whether both timestamps are absent or both hold the same instant.
func (ts Timestamp) Equal(other Timestamp) bool {
	if ts.present != other.present {
		return false
	}
	return !ts.present || ts.value.Equal(other.value)
}

// MarshalJSON encodes a present timestamp as RFC3339 and an absent one as null.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if !ts.present {
		return []byte("null"), nil
	}
	return json.Marshal(ts.value)
}

// UnmarshalJSON accepts an RFC3339 string or null.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*ts = Absent()
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	*ts = Present(t)
	return nil
}

// IDSet is a set of identifiers.
type IDSet map[uuid.UUID]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...uuid.UUID) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports membership. A nil set contains nothing.
func (s IDSet) Contains(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s IDSet) Add(id uuid.UUID) {
	s[id] = struct{}{}
}

// Union returns a new set holding the members of s and other.
func (s IDSet) Union(other IDSet) IDSet {
	out := make(IDSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Clone copies the set.
func (s IDSet) Clone() IDSet {
	return s.Union(nil)
}

// Sorted returns the members in a stable order.
func (s IDSet) Sorted() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of ids, tolerating duplicates.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}
