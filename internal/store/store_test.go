package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redisd/internal/clock"
)

func TestSetGetRoundTrip(t *testing.T) {
	s := New(clock.NewManual(time.Unix(0, 0)))
	s.Set("foo", String("bar"), nil)

	v, ok := s.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "bar", v.Str)
}

func TestGetMissingKey(t *testing.T) {
	s := New(clock.NewManual(time.Unix(0, 0)))
	_, ok := s.Get("nope")
	assert.False(t, ok)
}

func TestExpiryEvictsAfterDeadline(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	s := New(c)
	ms := int64(100)
	s.Set("foo", String("bar"), &ms)

	v, ok := s.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "bar", v.Str)

	c.Advance(150 * time.Millisecond)
	_, ok = s.Get("foo")
	assert.False(t, ok)
}

func TestExpiryBeforeDeadlineStillPresent(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	s := New(c)
	ms := int64(100)
	s.Set("foo", String("bar"), &ms)

	c.Advance(50 * time.Millisecond)
	v, ok := s.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "bar", v.Str)
}

func TestOverwriteWithoutExpiryToleratesStaleBucket(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	s := New(c)
	ms := int64(100)
	s.Set("foo", String("first"), &ms)
	s.Set("foo", String("second"), nil)

	c.Advance(200 * time.Millisecond)
	v, ok := s.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "second", v.Str)
}

func TestTypeNameDoesNotSweep(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	s := New(c)
	ms := int64(10)
	s.Set("foo", String("bar"), &ms)
	c.Advance(100 * time.Millisecond)

	// TypeName should still see "string" because it does not sweep, even
	// though a Get() at this instant would evict the key.
	assert.Equal(t, "string", s.TypeName("foo"))
	assert.Equal(t, "none", s.TypeName("nonexistent"))
}

func TestTypeNameStreamAndNone(t *testing.T) {
	s := New(clock.NewManual(time.Unix(0, 0)))
	s.Set("st", StreamValue(NewStream("st", "1-0", []string{"f", "v"})), nil)
	assert.Equal(t, "stream", s.TypeName("st"))
	assert.Equal(t, "none", s.TypeName("nope"))
}

func TestStreamPreservesFieldOrder(t *testing.T) {
	st := NewStream("st", "1-0", []string{"a", "1", "b", "2", "c", "3"})
	require.Len(t, st.Entries, 3)
	assert.Equal(t, FieldValue{"a", "1"}, st.Entries[0])
	assert.Equal(t, FieldValue{"b", "2"}, st.Entries[1])
	assert.Equal(t, FieldValue{"c", "3"}, st.Entries[2])
}

func TestSweepIsIdempotent(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	s := New(c)
	ms := int64(10)
	s.Set("foo", String("bar"), &ms)
	c.Advance(20 * time.Millisecond)

	s.Sweep(c.Now())
	s.Sweep(c.Now())
	_, ok := s.Get("foo")
	assert.False(t, ok)
}

func TestExpiryAtExactDeadlineIsEvicted(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	s := New(c)
	ms := int64(100)
	s.Set("foo", String("bar"), &ms)

	c.Advance(100 * time.Millisecond)
	_, ok := s.Get("foo")
	assert.False(t, ok, "key whose expiry equals now must be treated as expired")
}
