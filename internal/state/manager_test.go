package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeIsolation(t *testing.T) {
	m := NewManager()

	// Identical key strings across scopes must never interfere.
	m.SetTask("t1", "k", "v1", 0)
	m.SetSession("s1", "k", "v2", 0)

	v, ok := m.GetTask("t1", "k")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	v, ok = m.GetSession("s1", "k")
	require.True(t, ok)
	assert.Equal(t, "v2", v)

	_, ok = m.GetGlobal("k")
	assert.False(t, ok, "global scope must be unaffected")
}

func TestSameScopeDifferentOwners(t *testing.T) {
	m := NewManager()

	m.SetTask("t1", "k", 1, 0)
	m.SetTask("t2", "k", 2, 0)

	v1, _ := m.GetTask("t1", "k")
	v2, _ := m.GetTask("t2", "k")
	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)
}

func TestNotFoundIsExplicit(t *testing.T) {
	m := NewManager()

	v, ok := m.GetGlobal("missing")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestDeleteAndOverwrite(t *testing.T) {
	m := NewManager()

	m.SetGlobal("k", "first", 0)
	m.SetGlobal("k", "second", 0)
	v, _ := m.GetGlobal("k")
	assert.Equal(t, "second", v)

	m.DeleteGlobal("k")
	_, ok := m.GetGlobal("k")
	assert.False(t, ok)

	// Deleting twice must be safe.
	m.DeleteGlobal("k")
}

func TestTTLExpiry(t *testing.T) {
	m := NewManager()

	m.SetSession("s1", "short", "v", 10*time.Millisecond)
	m.SetSession("s1", "long", "v", time.Hour)

	_, ok := m.GetSession("s1", "short")
	assert.True(t, ok, "entry should be readable before expiry")

	time.Sleep(20 * time.Millisecond)

	_, ok = m.GetSession("s1", "short")
	assert.False(t, ok, "expired entry must read as absent")

	_, ok = m.GetSession("s1", "long")
	assert.True(t, ok)
}

func TestPurgeExpired(t *testing.T) {
	m := NewManager()

	m.SetGlobal("a", 1, time.Nanosecond)
	m.SetGlobal("b", 2, 0)
	time.Sleep(time.Millisecond)

	purged := m.PurgeExpired()
	assert.Equal(t, 1, purged)
	assert.Equal(t, 1, m.Len())
}

func TestClearScope(t *testing.T) {
	m := NewManager()

	m.SetTask("t1", "a", 1, 0)
	m.SetTask("t1", "b", 2, 0)
	m.SetTask("t2", "a", 3, 0)
	m.SetGlobal("a", 4, 0)

	m.ClearTask("t1")

	_, ok := m.GetTask("t1", "a")
	assert.False(t, ok)
	_, ok = m.GetTask("t1", "b")
	assert.False(t, ok)

	// Other owners and scopes survive.
	_, ok = m.GetTask("t2", "a")
	assert.True(t, ok)
	_, ok = m.GetGlobal("a")
	assert.True(t, ok)
}

func TestClearSession(t *testing.T) {
	m := NewManager()

	m.SetSession("s1", "pref", "dark", 0)
	m.ClearSession("s1")

	_, ok := m.GetSession("s1", "pref")
	assert.False(t, ok)
}
