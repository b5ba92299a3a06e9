package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a credential cannot be validated against
// either trust domain.
var ErrInvalidToken = errors.New("invalid authentication token")

// ActorType classifies an authenticated connection.
type ActorType string

const (
	ActorVisitor ActorType = "visitor"
	ActorStaff   ActorType = "staff"
)

// Identity is the result of verifying a bearer credential.
type Identity struct {
	ActorType ActorType
	SiteKey   string
	WidgetKey int64
	VisitorID string
	StaffID   string
}

// EmbedClaims are the claims carried by embed-scoped session tokens
// (visitors and widget-scoped staff).
type EmbedClaims struct {
	Typ       string `json:"typ"`
	SiteKey   string `json:"siteKey"`
	WidgetKey int64  `json:"widgetKey"`
	VisitorID string `json:"visitorId,omitempty"`
	StaffID   string `json:"staffId,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies tokens for the two trust domains: the
// embed domain (widget sessions) and the platform domain (unified staff
// accounts).
type JWTManager struct {
	embedSecret    []byte
	platformSecret []byte
	embedTTL       time.Duration
}

// NewJWTManager creates a JWTManager from the two signing secrets.
func NewJWTManager(embedSecret, platformSecret string, embedTTL time.Duration) (*JWTManager, error) {
	if embedSecret == "" || platformSecret == "" {
		return nil, errors.New("signing secrets must not be empty")
	}
	return &JWTManager{
		embedSecret:    []byte(embedSecret),
		platformSecret: []byte(platformSecret),
		embedTTL:       embedTTL,
	}, nil
}

// IssueEmbedToken signs an embed session token for a visitor on a site.
func (m *JWTManager) IssueEmbedToken(siteKey string, widgetKey int64, visitorID string) (token string, expiresAt time.Time, err error) {
	now := time.Now()
	expiresAt = now.Add(m.embedTTL)
	claims := EmbedClaims{
		Typ:       "embed",
		SiteKey:   siteKey,
		WidgetKey: widgetKey,
		VisitorID: visitorID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.embedSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign embed token: %w", err)
	}
	return token, expiresAt, nil
}

// IssueStaffToken signs a platform token for a staff account.
func (m *JWTManager) IssueStaffToken(staffID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   staffID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.platformSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign staff token: %w", err)
	}
	return token, nil
}

// VerifyEmbedToken validates a token against the embed trust domain.
func (m *JWTManager) VerifyEmbedToken(token string) (*EmbedClaims, error) {
	claims := &EmbedClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.embedSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Typ != "embed" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyStaffToken validates a token against the platform trust domain.
func (m *JWTManager) VerifyStaffToken(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.platformSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify classifies a bearer credential: the embed domain is tried first,
// then the platform domain, failing closed when neither validates.
func (m *JWTManager) Verify(credential string) (Identity, error) {
	if embed, err := m.VerifyEmbedToken(credential); err == nil {
		identity := Identity{
			SiteKey:   embed.SiteKey,
			WidgetKey: embed.WidgetKey,
			VisitorID: embed.VisitorID,
			StaffID:   embed.StaffID,
		}
		if embed.StaffID != "" {
			identity.ActorType = ActorStaff
		} else {
			identity.ActorType = ActorVisitor
		}
		return identity, nil
	}

	if staff, err := m.VerifyStaffToken(credential); err == nil {
		return Identity{ActorType: ActorStaff, StaffID: staff.Subject}, nil
	}

	return Identity{}, ErrInvalidToken
}
