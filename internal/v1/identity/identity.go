package identity

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxDisplayNameLength bounds every sanitized display name. It is a
// compile-time constant: config.Config's MaxDisplayNameLen is parsed from the
// environment but is not applied to sanitization.
const MaxDisplayNameLength = 50

// UserIdentity is the resolved, sanitized principal behind a connected
// client session. UserKey is stable across reconnects and tabs for the same
// principal; UserID additionally scopes to the connecting session, matching
// the userKey vs userId distinction in spec.md §3 and §9.
type UserIdentity struct {
	UserKey     string // stable per principal: sanitized email/sub, or "guest-<sessionId>"
	UserID      string // UserKey + "#" + SessionID
	SessionID   string
	DisplayName string
	IsGuest     bool
}

// AuthPayload is everything buildUserIdentity needs from the validated JWT
// (or the absence of one, for guest joins). Subject/Email/Name mirror
// CustomClaims from validator.go; TokenSessionID is the session id bound
// into the auth token so it can be checked against the client-supplied one.
type AuthPayload struct {
	Subject        string
	Email          string
	Name           string
	TokenSessionID string
	IsAuthenticated bool
}

// BuildUserIdentity resolves a connected socket's identity per spec.md §4.1.
// A mismatch between the session id bound into the auth token and the one
// the client supplies on joinRoom is rejected outright: it is the signal
// that a stale or replayed token is being reused for a different tab.
func BuildUserIdentity(payload AuthPayload, sessionID, requestedDisplayName string) (*UserIdentity, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("buildUserIdentity: sessionId is required")
	}
	if payload.IsAuthenticated && payload.TokenSessionID != "" && payload.TokenSessionID != sessionID {
		return nil, fmt.Errorf("buildUserIdentity: session id mismatch between auth token and join request")
	}

	var userKey, defaultName string
	isGuest := !payload.IsAuthenticated
	if isGuest {
		userKey = "guest-" + sanitizeKeyComponent(sessionID)
		defaultName = "Guest"
	} else {
		principal := payload.Email
		if principal == "" {
			principal = payload.Subject
		}
		if principal == "" {
			return nil, fmt.Errorf("buildUserIdentity: authenticated payload missing subject/email")
		}
		userKey = sanitizeKeyComponent(principal)
		defaultName = institutionalDisplayName(payload.Name, payload.Email)
	}

	name := SanitizeDisplayName(requestedDisplayName)
	if name == "" {
		name = SanitizeDisplayName(defaultName)
	}

	return &UserIdentity{
		UserKey:     userKey,
		UserID:      userKey + "#" + sessionID,
		SessionID:   sessionID,
		DisplayName: name,
		IsGuest:     isGuest,
	}, nil
}

// sanitizeKeyComponent lowercases and strips characters that would make the
// key ambiguous or unsafe to use as a map key / Redis key segment.
func sanitizeKeyComponent(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '@' || r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := b.String()
	if out == "" {
		out = "anon"
	}
	return out
}

// institutionalDisplayName derives a fallback display name from an
// authenticated name or, failing that, an email's local part, title-cased
// and stripped of the domain suffix per spec.md §4.1.
func institutionalDisplayName(name, email string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		local := email[:at]
		local = strings.ReplaceAll(local, ".", " ")
		local = strings.ReplaceAll(local, "_", " ")
		return strings.Title(local) //nolint:staticcheck // simple title-case, not locale sensitive
	}
	return "Participant"
}

// SanitizeDisplayName trims, collapses internal whitespace, strips control
// characters, and truncates to MaxDisplayNameLength, per spec.md §4.1.
func SanitizeDisplayName(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	lastWasSpace := false
	for _, r := range raw {
		if unicode.IsControl(r) {
			continue
		}
		if unicode.IsSpace(r) {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			b.WriteRune(' ')
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if len(out) > MaxDisplayNameLength {
		runes := []rune(out)
		if len(runes) > MaxDisplayNameLength {
			out = string(runes[:MaxDisplayNameLength])
		}
	}
	return out
}

// Policy governs what a connecting client is permitted to do, resolved per
// spec.md §4.1. It is looked up by a policy identifier (typically the OAuth
// client id) with a "default" fallback, matching the teacher's config
// validation pattern of defaulting rather than failing closed on an unknown
// identifier.
type Policy struct {
	AllowNonHostRoomCreation bool
	AllowHostJoin            bool
	AllowDisplayNameUpdate   bool
	UseWaitingRoom           bool
}

// DefaultPolicy is returned for any clientId not present in a PolicyTable,
// matching spec.md §4.1's "Lookup defaults to the 'default' policy."
var DefaultPolicy = Policy{
	AllowNonHostRoomCreation: true,
	AllowHostJoin:            true,
	AllowDisplayNameUpdate:   true,
	UseWaitingRoom:           true,
}

// PolicyTable maps a client identifier to its Policy; unknown client ids
// resolve to the "default" entry if present, else DefaultPolicy.
type PolicyTable map[string]Policy

// ResolvePolicy implements spec.md §4.1's resolvePolicy(clientId) operation.
func (t PolicyTable) ResolvePolicy(clientID string) Policy {
	if p, ok := t[clientID]; ok {
		return p
	}
	if p, ok := t["default"]; ok {
		return p
	}
	return DefaultPolicy
}
