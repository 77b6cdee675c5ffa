package webinar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinter_MintAndVerify_RoundTrip(t *testing.T) {
	m := NewMinter("test-secret", time.Hour)

	token, err := m.Mint("room-1", "client-1", 0)
	require.NoError(t, err)

	claims, err := m.Verify(token, "room-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "room-1", claims.RoomID)
	assert.Equal(t, "client-1", claims.ClientID)
}

func TestMinter_Verify_RejectsWrongRoom(t *testing.T) {
	m := NewMinter("test-secret", time.Hour)
	token, err := m.Mint("room-1", "client-1", 0)
	require.NoError(t, err)

	_, err = m.Verify(token, "room-2", 0)
	assert.Error(t, err)
}

// TestMinter_Verify_RejectsRotatedLink verifies spec.md §6's "rotating the
// link increments linkVersion, invalidating all prior tokens."
func TestMinter_Verify_RejectsRotatedLink(t *testing.T) {
	m := NewMinter("test-secret", time.Hour)
	token, err := m.Mint("room-1", "client-1", 0)
	require.NoError(t, err)

	_, err = m.Verify(token, "room-1", 1)
	assert.Error(t, err)
}

func TestMinter_Verify_RejectsExpiredToken(t *testing.T) {
	m := NewMinter("test-secret", time.Millisecond)
	token, err := m.Mint("room-1", "client-1", 0)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = m.Verify(token, "room-1", 0)
	assert.Error(t, err)
}

func TestMinter_Verify_RejectsWrongSecret(t *testing.T) {
	m1 := NewMinter("secret-one", time.Hour)
	m2 := NewMinter("secret-two", time.Hour)

	token, err := m1.Mint("room-1", "client-1", 0)
	require.NoError(t, err)

	_, err = m2.Verify(token, "room-1", 0)
	assert.Error(t, err)
}

func TestLink_BuildsCanonicalURL(t *testing.T) {
	got := Link("https://example.com", "room-1", "tok123")
	assert.Equal(t, "https://example.com/w/room-1?wt=tok123", got)
}

func TestNewMinter_DefaultsTTL(t *testing.T) {
	m := NewMinter("secret", 0)
	assert.Equal(t, 30*24*time.Hour, m.ttl)
}
