// Package sfu is the coordinator's boundary to the SFU media engine, treated
// as a black box per spec.md §1 ("Out of scope: the underlying SFU media
// engine"). The original snapshot of this subsystem bound this boundary
// through a generated Protobuf/gRPC client; that generated package is absent
// from the entire retrieval pack (see DESIGN.md), so this client speaks plain
// JSON over HTTP to the router's REST surface while preserving the same
// circuit-breaker shape.
package sfu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/huddlecore/signaling/internal/v1/errs"
	"github.com/huddlecore/signaling/internal/v1/metrics"
	"github.com/sony/gobreaker"
)

// Router is everything the coordinator needs from the SFU media engine.
// Implementations MUST be safe for concurrent use.
type Router interface {
	CreateTransport(ctx context.Context, roomID, userID string, direction string) (*TransportParams, error)
	ConnectTransport(ctx context.Context, transportID string, dtlsParameters map[string]any) error
	Produce(ctx context.Context, transportID, kind string, rtpParameters map[string]any) (producerID string, err error)
	Consume(ctx context.Context, producerID string, rtpCapabilities map[string]any) (*ConsumerParams, error)
	ResumeConsumer(ctx context.Context, consumerID string) error
	RestartIce(ctx context.Context, transportID string) (iceParameters map[string]any, err error)
	CloseProducer(ctx context.Context, producerID string) error
	Close() error
}

// TransportParams mirrors the SFU's ICE/DTLS transport-creation response.
type TransportParams struct {
	ID             string
	IceParameters  map[string]any
	IceCandidates  []any
	DtlsParameters map[string]any
}

// ConsumerParams mirrors the SFU's consume response.
type ConsumerParams struct {
	ID            string
	Kind          string
	RtpParameters map[string]any
}

// Client is a gobreaker-wrapped HTTP/JSON client for the SFU router.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewClient constructs a Client whose circuit-breaker settings mirror the
// teacher's Redis/SFU breaker: five half-open probes, a one-minute rolling
// interval, a 15s open-state timeout, with state transitions mirrored into
// the circuit_breaker_state gauge.
func NewClient(baseURL string) *Client {
	st := gobreaker.Settings{
		Name:        "sfu",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("sfu").Set(stateVal)
		},
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		cb:      gobreaker.NewCircuitBreaker(st),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("marshal request: %w", err)
			}
			reader = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			data, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("sfu router returned %d: %s", resp.StatusCode, string(data))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
		}

		return nil, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("sfu").Inc()
			return errs.TransportError("sfu router unavailable", err)
		}
		return errs.TransportError("sfu router request failed", err)
	}
	return nil
}

func (c *Client) CreateTransport(ctx context.Context, roomID, userID, direction string) (*TransportParams, error) {
	var out TransportParams
	req := map[string]string{"roomId": roomID, "userId": userID, "direction": direction}
	if err := c.do(ctx, http.MethodPost, "/transports", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConnectTransport(ctx context.Context, transportID string, dtlsParameters map[string]any) error {
	req := map[string]any{"transportId": transportID, "dtlsParameters": dtlsParameters}
	return c.do(ctx, http.MethodPost, "/transports/connect", req, nil)
}

func (c *Client) Produce(ctx context.Context, transportID, kind string, rtpParameters map[string]any) (string, error) {
	var out struct {
		ProducerID string `json:"producerId"`
	}
	req := map[string]any{"transportId": transportID, "kind": kind, "rtpParameters": rtpParameters}
	if err := c.do(ctx, http.MethodPost, "/producers", req, &out); err != nil {
		return "", err
	}
	return out.ProducerID, nil
}

func (c *Client) Consume(ctx context.Context, producerID string, rtpCapabilities map[string]any) (*ConsumerParams, error) {
	var out ConsumerParams
	req := map[string]any{"producerId": producerID, "rtpCapabilities": rtpCapabilities}
	if err := c.do(ctx, http.MethodPost, "/consumers", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResumeConsumer(ctx context.Context, consumerID string) error {
	return c.do(ctx, http.MethodPost, "/consumers/"+consumerID+"/resume", nil, nil)
}

func (c *Client) RestartIce(ctx context.Context, transportID string) (map[string]any, error) {
	var out struct {
		IceParameters map[string]any `json:"iceParameters"`
	}
	if err := c.do(ctx, http.MethodPost, "/transports/"+transportID+"/restart-ice", nil, &out); err != nil {
		return nil, err
	}
	return out.IceParameters, nil
}

func (c *Client) CloseProducer(ctx context.Context, producerID string) error {
	return c.do(ctx, http.MethodDelete, "/producers/"+producerID, nil, nil)
}

func (c *Client) Close() error {
	return nil
}
