package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"mesto/internal/models"
)

var (
	ErrInvalidToken  = errors.New("realtime: invalid admission token")
	ErrTokenConsumed = errors.New("realtime: admission token already used or superseded")
)

// Claims is the JWT body of an admission token. The registered ID doubles as
// the single-use key for staff tokens.
type Claims struct {
	jwt.RegisteredClaims
	VenueID string           `json:"venue_id,omitempty"`
	Role    models.ActorRole `json:"role"`
}

// Minter issues and verifies admission tokens. Staff tokens are single-use:
// minting a new one invalidates the previous, and admitting consumes it.
type Minter struct {
	secret []byte
	ttl    time.Duration
	store  TokenStore
	now    func() time.Time
}

func NewMinter(secret string, ttl time.Duration, store TokenStore) *Minter {
	return &Minter{secret: []byte(secret), ttl: ttl, store: store, now: time.Now}
}

// Mint issues an admission token for the actor.
func (m *Minter) Mint(ctx context.Context, actor models.Actor, venueID string) (string, error) {
	now := m.now()
	tokenID := uuid.New().String()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		VenueID: venueID,
		Role:    actor.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	if actor.Staff() {
		grant := &Grant{UserID: actor.ID, VenueID: venueID, Role: actor.Role, IssuedAt: now}
		if err := m.store.Put(ctx, actor.ID, tokenID, grant); err != nil {
			return "", err
		}
	}
	return signed, nil
}

// Admit verifies the token and returns what it grants. Staff tokens must
// still be present in the store; a consumed or superseded token is refused.
func (m *Minter) Admit(ctx context.Context, tokenString string) (*Grant, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	role := claims.Role
	if role == models.RoleOwner || role == models.RoleEmployee {
		grant, err := m.store.Take(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if grant == nil {
			return nil, ErrTokenConsumed
		}
		return grant, nil
	}

	return &Grant{
		UserID:   claims.Subject,
		VenueID:  claims.VenueID,
		Role:     role,
		IssuedAt: claims.IssuedAt.Time,
	}, nil
}
