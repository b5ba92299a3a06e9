package crypto

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager("embed-secret", "platform-secret", time.Hour)
	require.NoError(t, err)
	return m
}

func TestNewJWTManager_RequiresSecrets(t *testing.T) {
	_, err := NewJWTManager("", "platform", time.Hour)
	require.Error(t, err)

	_, err = NewJWTManager("embed", "", time.Hour)
	require.Error(t, err)
}

func TestEmbedToken_RoundTrip(t *testing.T) {
	m := newTestManager(t)

	token, expiresAt, err := m.IssueEmbedToken("site-abc", 42, "visitor-1")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	identity, err := m.Verify(token)
	require.NoError(t, err)
	require.Equal(t, ActorVisitor, identity.ActorType)
	require.Equal(t, "site-abc", identity.SiteKey)
	require.Equal(t, int64(42), identity.WidgetKey)
	require.Equal(t, "visitor-1", identity.VisitorID)
	require.Empty(t, identity.StaffID)
}

func TestEmbedToken_StaffIDClassifiesAsStaff(t *testing.T) {
	m := newTestManager(t)
	token := signEmbedStaffToken(t, m)

	claims, err := m.VerifyEmbedToken(token)
	require.NoError(t, err)
	require.Equal(t, "staff-7", claims.StaffID)

	identity, err := m.Verify(token)
	require.NoError(t, err)
	require.Equal(t, ActorStaff, identity.ActorType)
	require.Equal(t, "site-abc", identity.SiteKey)
	require.Equal(t, "staff-7", identity.StaffID)
}

// signEmbedStaffToken signs an embed token carrying a staff id, which the
// issuing helper does not expose directly.
func signEmbedStaffToken(t *testing.T, m *JWTManager) string {
	t.Helper()
	now := time.Now()
	claims := EmbedClaims{
		Typ:       "embed",
		SiteKey:   "site-abc",
		WidgetKey: 42,
		StaffID:   "staff-7",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.embedSecret)
	require.NoError(t, err)
	return token
}

func TestStaffToken_RoundTrip(t *testing.T) {
	m := newTestManager(t)

	token, err := m.IssueStaffToken("staff-1", time.Hour)
	require.NoError(t, err)

	claims, err := m.VerifyStaffToken(token)
	require.NoError(t, err)
	require.Equal(t, "staff-1", claims.Subject)

	identity, err := m.Verify(token)
	require.NoError(t, err)
	require.Equal(t, ActorStaff, identity.ActorType)
	require.Equal(t, "staff-1", identity.StaffID)
	require.Empty(t, identity.SiteKey)
}

func TestVerify_RejectsForeignSecrets(t *testing.T) {
	m := newTestManager(t)
	other, err := NewJWTManager("other-embed", "other-platform", time.Hour)
	require.NoError(t, err)

	embedToken, _, err := other.IssueEmbedToken("site-abc", 1, "visitor-1")
	require.NoError(t, err)
	_, err = m.Verify(embedToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	staffToken, err := other.IssueStaffToken("staff-1", time.Hour)
	require.NoError(t, err)
	_, err = m.Verify(staffToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsGarbage(t *testing.T) {
	m := newTestManager(t)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := m.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestVerify_RejectsExpiredTokens(t *testing.T) {
	short, err := NewJWTManager("embed-secret", "platform-secret", -time.Minute)
	require.NoError(t, err)

	token, _, err := short.IssueEmbedToken("site-abc", 1, "visitor-1")
	require.NoError(t, err)
	_, err = short.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	staffToken, err := short.IssueStaffToken("staff-1", -time.Minute)
	require.NoError(t, err)
	_, err = short.Verify(staffToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyEmbedToken_RejectsStaffTokens(t *testing.T) {
	m := newTestManager(t)

	token, err := m.IssueStaffToken("staff-1", time.Hour)
	require.NoError(t, err)

	_, err = m.VerifyEmbedToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
