package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/huddlecore/signaling/internal/v1/identity"
	"github.com/huddlecore/signaling/internal/v1/room"
	"github.com/huddlecore/signaling/internal/v1/signaling"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestDepsForHub() *signaling.Deps {
	return &signaling.Deps{
		Registry: room.NewRegistry(room.DefaultConfig),
		Policies: identity.PolicyTable{},
	}
}

func newGinContext(method, target string, headers map[string]string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req
	return c, w
}

func TestExtractToken_PrefersSubprotocolOverQuery(t *testing.T) {
	h := &Hub{}
	c, _ := newGinContext(http.MethodGet, "/ws?token=query-token", map[string]string{
		"Sec-WebSocket-Protocol": "access_token, header-token",
	})

	result, err := h.extractToken(c)
	require.NoError(t, err)
	assert.Equal(t, "header-token", result.Token)
	assert.True(t, result.FromHeader)
}

func TestExtractToken_FallsBackToQueryParam(t *testing.T) {
	h := &Hub{}
	c, _ := newGinContext(http.MethodGet, "/ws?token=query-token", nil)

	result, err := h.extractToken(c)
	require.NoError(t, err)
	assert.Equal(t, "query-token", result.Token)
	assert.False(t, result.FromHeader)
}

func TestExtractToken_MissingTokenErrors(t *testing.T) {
	h := &Hub{}
	c, _ := newGinContext(http.MethodGet, "/ws", nil)

	_, err := h.extractToken(c)
	assert.Error(t, err)
}

func TestValidateOrigin_AllowsMatchingSchemeAndHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://app.example.com")

	err := validateOrigin(req, []string{"https://app.example.com"})
	assert.NoError(t, err)
}

func TestValidateOrigin_RejectsUnlistedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")

	err := validateOrigin(req, []string{"https://app.example.com"})
	assert.Error(t, err)
}

func TestValidateOrigin_TolerantOfMissingOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	err := validateOrigin(req, []string{"https://app.example.com"})
	assert.NoError(t, err)
}

func TestResolveNamespace_FallsBackToDefault(t *testing.T) {
	claims := &identity.CustomClaims{}
	assert.Equal(t, "default", resolveNamespace(claims))

	claims.RegisteredClaims.Issuer = "https://tenant-a.example.com/"
	assert.Equal(t, "https://tenant-a.example.com/", resolveNamespace(claims))
}

func TestResolveSessionID_GeneratesWhenAbsent(t *testing.T) {
	c, _ := newGinContext(http.MethodGet, "/ws?sessionId=tab-1", nil)
	assert.Equal(t, "tab-1", resolveSessionID(c))

	c2, _ := newGinContext(http.MethodGet, "/ws", nil)
	assert.NotEmpty(t, resolveSessionID(c2))
}

func TestSetupSession_GuestScopeIsUnauthenticated(t *testing.T) {
	h := &Hub{deps: newTestDepsForHub()}
	claims := &identity.CustomClaims{Scope: "guest", Name: "Guest User", RegisteredClaims: jwt.RegisteredClaims{Subject: "guest-sub"}}

	session, err := h.setupSession(&clientSetupParams{Claims: claims, SessionID: "tab-1"})
	require.NoError(t, err)
	assert.True(t, session.IsGuest)
}

func TestSetupSession_AuthenticatedScopeIsNotGuest(t *testing.T) {
	h := &Hub{deps: newTestDepsForHub()}
	claims := &identity.CustomClaims{Name: "Real User", RegisteredClaims: jwt.RegisteredClaims{Subject: "real-sub"}}

	session, err := h.setupSession(&clientSetupParams{Claims: claims, SessionID: "tab-1"})
	require.NoError(t, err)
	assert.False(t, session.IsGuest)
}
