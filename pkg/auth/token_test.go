package auth

import (
	"testing"
	"time"

	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "estore", AccessTTL: 30 * time.Minute}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()
	storeID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID:  userID,
		StoreID: &storeID,
		Role:    enums.UserRoleSeller,
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	require.NotNil(t, claims.StoreID)
	assert.Equal(t, storeID, *claims.StoreID)
	assert.Equal(t, enums.UserRoleSeller, claims.Role)
	assert.Equal(t, cfg.Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, now.Add(cfg.AccessTTL), claims.ExpiresAt.Time, time.Second)
}

func TestMintAccessTokenValidation(t *testing.T) {
	cfg := testJWTConfig()
	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.UserRoleCustomer})
	require.Error(t, err)

	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "owner"})
	require.Error(t, err)

	cfg.AccessTTL = 0
	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.Error(t, err)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRoleCustomer,
	})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseAccessTokenRejectsWrongIssuerAndSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	other := cfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, token)
	require.Error(t, err)

	other = cfg
	other.Secret = "different"
	_, err = ParseAccessToken(other, token)
	require.Error(t, err)
}

func signRaw(t *testing.T, cfg config.JWTConfig, claims AccessTokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)
	return token
}

func TestParseAccessTokenChecksTypedClaims(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()
	registered := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}

	mismatched := signRaw(t, cfg, AccessTokenClaims{UserID: uuid.New(), Role: enums.UserRoleCustomer, RegisteredClaims: registered})
	_, err := ParseAccessToken(cfg, mismatched)
	require.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)

	registered.Subject = ""
	registered.ExpiresAt = nil
	noExpiry := signRaw(t, cfg, AccessTokenClaims{UserID: uuid.New(), Role: enums.UserRoleCustomer, RegisteredClaims: registered})
	_, err = ParseAccessToken(cfg, noExpiry)
	require.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)

	_, err = ParseAccessToken(cfg, "   ")
	require.ErrorIs(t, err, jwt.ErrTokenMalformed)
}

func TestParseAccessTokenHonorsLeeway(t *testing.T) {
	cfg := testJWTConfig()
	cfg.AccessTTL = time.Minute
	token, err := MintAccessToken(cfg, time.Now().Add(-70*time.Second), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRoleCustomer,
	})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	cfg.Leeway = 30 * time.Second
	_, err = ParseAccessToken(cfg, token)
	require.NoError(t, err)
}
