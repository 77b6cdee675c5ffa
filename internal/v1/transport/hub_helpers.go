package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/huddlecore/signaling/internal/v1/identity"
	"github.com/huddlecore/signaling/internal/v1/logging"
	"github.com/huddlecore/signaling/internal/v1/signaling"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// tokenExtractionResult mirrors the teacher's token-extraction outcome: a
// bearer token may travel in the Sec-WebSocket-Protocol header (so the
// browser's WebSocket API can carry it without a custom header) or, failing
// that, a query parameter, which is friendlier for quick manual testing and
// for clients that can't set subprotocols.
type tokenExtractionResult struct {
	Token      string
	FromHeader bool
}

// extractToken pulls the bearer token out of the handshake request.
func (h *Hub) extractToken(c *gin.Context) (*tokenExtractionResult, error) {
	if headerVal := c.GetHeader("Sec-WebSocket-Protocol"); headerVal != "" {
		for _, p := range strings.Split(headerVal, ",") {
			p = strings.TrimSpace(p)
			if p == "" || p == "access_token" {
				continue
			}
			return &tokenExtractionResult{Token: p, FromHeader: true}, nil
		}
	}

	if token := c.Query("token"); token != "" {
		return &tokenExtractionResult{Token: token}, nil
	}

	return nil, fmt.Errorf("token not provided")
}

// validateOrigin checks the handshake's Origin header against the allow
// list, tolerating non-browser clients (no Origin header at all) the same
// way the teacher's hub_helpers.go does.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

// authenticateUser validates the bearer token. SkipAuth/dev-mode bypass is
// expressed by swapping in identity.MockValidator as h.validator rather than
// branching here, so this path is identical between prod and dev builds.
func (h *Hub) authenticateUser(token string) (*identity.CustomClaims, error) {
	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// resolveNamespace derives the tenant namespace component of channelId
// (spec.md §3) from the token issuer, so two distinct Auth0 tenants (or a
// production issuer vs. a dev MockValidator's empty issuer) never collide on
// the same room id. Falls back to "default" for issuer-less tokens.
func resolveNamespace(claims *identity.CustomClaims) string {
	if claims.Issuer != "" {
		return claims.Issuer
	}
	return "default"
}

// resolveSessionID returns the client-chosen tab/session identifier, query
// parameter "sessionId" by convention, minting one for callers that omit it
// (first-time connects, simple test clients).
func resolveSessionID(c *gin.Context) string {
	if sid := c.Query("sessionId"); sid != "" {
		return sid
	}
	return uuid.NewString()
}

// clientSetupParams bundles what setupSession needs to resolve a connecting
// principal into a Session.
type clientSetupParams struct {
	Claims    *identity.CustomClaims
	SessionID string
}

// setupSession resolves identity and policy (spec.md §4.1) for a newly
// authenticated connection and builds the Session it will be dispatched
// through for the lifetime of the socket. Room membership is established
// later, by the joinRoom handler, not here.
func (h *Hub) setupSession(params *clientSetupParams) (*signaling.Session, error) {
	// A guest-scoped token (scope=guest, minted for public webinar access
	// per spec.md §6) resolves to an unauthenticated UserIdentity; every
	// other token goes through the full authenticated path. This keeps one
	// extractToken/validateOrigin/authenticateUser pipeline for both cases
	// instead of branching ServeWs on whether a token was presented at all.
	isGuest := params.Claims.Scope == "guest"
	ident, err := identity.BuildUserIdentity(identity.AuthPayload{
		Subject:         params.Claims.Subject,
		Email:           params.Claims.Email,
		Name:            params.Claims.Name,
		TokenSessionID:  "",
		IsAuthenticated: !isGuest,
	}, params.SessionID, "")
	if err != nil {
		return nil, err
	}

	policy := h.deps.Policies.ResolvePolicy(params.Claims.Subject)
	namespace := resolveNamespace(params.Claims)

	session := &signaling.Session{
		Namespace:   namespace,
		Policy:      policy,
		UserKey:     ident.UserKey,
		UserID:      ident.UserID,
		SessionID:   ident.SessionID,
		DisplayName: ident.DisplayName,
		IsGuest:     ident.IsGuest,
	}

	logging.Info(context.Background(), "websocket connection established",
		zap.String("userKey", ident.UserKey),
		zap.String("namespace", namespace),
		zap.Bool("guest", ident.IsGuest))

	return session, nil
}

// upgradeWebSocket performs the HTTP->WebSocket protocol switch, echoing the
// negotiated subprotocol back per RFC 6455 when the token traveled in
// Sec-WebSocket-Protocol.
func (h *Hub) upgradeWebSocket(c *gin.Context, allowedOrigins []string, tokenResult *tokenExtractionResult) (wsConnection, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return h.devMode || validateOrigin(r, allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{
			New: func() any { return make([]byte, 4096) },
		},
	}

	responseHeader := http.Header{}
	if tokenResult.FromHeader {
		responseHeader.Set("Sec-WebSocket-Protocol", tokenResult.Token)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, responseHeader)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
