package sfu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CreateTransport_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transports", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "room-1", body["roomId"])

		_ = json.NewEncoder(w).Encode(TransportParams{ID: "transport-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	params, err := c.CreateTransport(context.Background(), "room-1", "user-1", "send")
	require.NoError(t, err)
	assert.Equal(t, "transport-1", params.ID)
}

func TestClient_RestartIce_ReturnsIceParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transports/transport-1/restart-ice", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"iceParameters": map[string]any{"usernameFragment": "abc"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ice, err := c.RestartIce(context.Background(), "transport-1")
	require.NoError(t, err)
	assert.Equal(t, "abc", ice["usernameFragment"])
}

func TestClient_NonSuccessStatus_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.CreateTransport(context.Background(), "room-1", "user-1", "send")
	assert.Error(t, err)
}

// TestClient_CircuitBreakerOpens verifies the breaker trips after repeated
// failures and rejects further calls with a transport error instead of
// re-attempting the doomed request, mirroring the teacher's
// TestClient_CircuitBreaker.
func TestClient_CircuitBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := &Client{
		baseURL: srv.URL,
		http:    &http.Client{Timeout: time.Second},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "sfu-test",
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 2
			},
		}),
	}

	for i := 0; i < 2; i++ {
		_, err := c.CreateTransport(context.Background(), "room-1", "user-1", "send")
		assert.Error(t, err)
	}

	_, err := c.CreateTransport(context.Background(), "room-1", "user-1", "send")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestClient_Close_IsNoop(t *testing.T) {
	c := NewClient("http://localhost:0")
	assert.NoError(t, c.Close())
}
