package transport

import (
	"context"
	"net/http"

	"github.com/huddlecore/signaling/internal/v1/identity"
	"github.com/huddlecore/signaling/internal/v1/logging"
	"github.com/huddlecore/signaling/internal/v1/metrics"
	"github.com/huddlecore/signaling/internal/v1/ratelimit"
	"github.com/huddlecore/signaling/internal/v1/room"
	"github.com/huddlecore/signaling/internal/v1/signaling"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenValidator is the narrow capability Hub needs from an auth backend.
// Both identity.Validator (JWKS-backed) and identity.MockValidator (dev
// mode) satisfy it, mirroring the teacher's types.TokenValidator seam.
type TokenValidator interface {
	ValidateToken(tokenString string) (*identity.CustomClaims, error)
}

// Hub is the websocket connection-setup layer: it owns nothing about room
// or signaling state itself (that's Registry and Router), only the
// HTTP/websocket handshake, authentication, and per-socket Client wiring.
// Grounded on the teacher's internal/v1/transport.Hub, with the per-room
// rooms map and pendingRoomCleanups timers dropped because room.Registry
// already owns that lifecycle (spec.md §4.2).
type Hub struct {
	router         *signaling.Router
	deps           *signaling.Deps
	validator      TokenValidator
	rateLimiter    *ratelimit.RateLimiter
	allowedOrigins []string
	devMode        bool
}

// NewHub wires a Hub from its process-wide collaborators.
func NewHub(router *signaling.Router, deps *signaling.Deps, validator TokenValidator, rateLimiter *ratelimit.RateLimiter, allowedOrigins []string, devMode bool) *Hub {
	return &Hub{
		router:         router,
		deps:           deps,
		validator:      validator,
		rateLimiter:    rateLimiter,
		allowedOrigins: allowedOrigins,
		devMode:        devMode,
	}
}

// ServeWs is the gin handler bound to the websocket route: authenticate,
// rate-limit, upgrade, then hand off to HandleConnection. Each step mirrors
// the teacher's ServeWs ordering (auth before upgrade, so a rejected
// handshake never costs a websocket upgrade).
func (h *Hub) ServeWs(c *gin.Context) {
	if h.rateLimiter != nil && !h.rateLimiter.CheckWebSocket(c) {
		return
	}

	tokenResult, err := h.extractToken(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token not provided"})
		return
	}

	claims, err := h.authenticateUser(tokenResult.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if !h.devMode {
		if err := validateOrigin(c.Request, h.allowedOrigins); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}
	}

	if h.rateLimiter != nil {
		if err := h.rateLimiter.CheckWebSocketUser(c.Request.Context(), claims.Subject); err != nil {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
	}

	conn, err := h.upgradeWebSocket(c, h.allowedOrigins, tokenResult)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to upgrade websocket", zap.Error(err))
		return
	}

	h.HandleConnection(conn, claims, resolveSessionID(c))
}

// HandleConnection takes an upgraded connection and starts its read/write
// pumps. Exported (distinct from the teacher's private helper) so tests can
// drive a fake wsConnection through the same setup path ServeWs uses.
func (h *Hub) HandleConnection(conn wsConnection, claims *identity.CustomClaims, sessionID string) {
	session, err := h.setupSession(&clientSetupParams{Claims: claims, SessionID: sessionID})
	if err != nil {
		logging.Warn(context.Background(), "failed to set up session", zap.Error(err))
		conn.Close()
		return
	}

	client := NewClient(conn, session)
	metrics.IncConnection()

	go client.writePump()
	go client.readPump(h.router, h.deps)
}

// Shutdown tears down every active room, sending a roomClosed frame to each
// connected socket, mirroring the teacher's Hub.Shutdown. Closing the rooms
// (rather than each Client directly) reuses Room's own broadcast fan-out;
// each Client's readPump then observes the resulting write/close error and
// exits on its own.
func (h *Hub) Shutdown(reg *room.Registry) {
	logging.Info(context.Background(), "shutting down transport hub, closing all rooms")
	reg.Shutdown()
}
