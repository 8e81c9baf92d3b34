package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRoundTrip(t *testing.T) {
	st := newTestStore(t)
	settings := st.Settings()

	_, ok := settings.Get("missing")
	assert.False(t, ok)

	require.NoError(t, settings.Set("key", "value"))
	got, ok := settings.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "value", got)

	require.NoError(t, settings.Set("key", "updated"))
	got, _ = settings.Get("key")
	assert.Equal(t, "updated", got)

	require.NoError(t, settings.Delete("key"))
	_, ok = settings.Get("key")
	assert.False(t, ok)
}

func TestSettingsTypedAccessors(t *testing.T) {
	st := newTestStore(t)
	settings := st.Settings()

	assert.Equal(t, 7, settings.GetInt("int", 7))
	require.NoError(t, settings.SetInt("int", 42))
	assert.Equal(t, 42, settings.GetInt("int", 7))

	assert.True(t, settings.GetBool("bool", true))
	require.NoError(t, settings.SetBool("bool", false))
	assert.False(t, settings.GetBool("bool", true))

	// Garbage falls back to the default.
	require.NoError(t, settings.Set("int", "not a number"))
	assert.Equal(t, 7, settings.GetInt("int", 7))
}

func TestSettingsTime(t *testing.T) {
	st := newTestStore(t)
	settings := st.Settings()

	_, ok := settings.GetTime("marker")
	assert.False(t, ok)

	stamp := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	require.NoError(t, settings.SetTime("marker", stamp))

	got, ok := settings.GetTime("marker")
	require.True(t, ok)
	assert.True(t, stamp.Equal(got))
}
