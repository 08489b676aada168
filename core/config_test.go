package core_test

import (
	"testing"
	"time"

	"casdoorlink/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	config := testConfig()
	config.Casdoor.ClientSecret = ""
	config.Casdoor.OrgName = "  "
	err := config.Validate()
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "casdoor.client_secret")
	assert.Contains(t, err.Error(), "casdoor.org_name")

	config = testConfig()
	config.Crypto.EncryptionKey = "too-short"
	assert.ErrorIs(t, config.Validate(), core.ErrInvalidConfig)
}

func TestSessionToken_RoundTrip(t *testing.T) {
	config := testConfig()

	token, err := core.GenerateSessionToken("chat_user_1", config)
	assert.NoError(t, err)

	userID, err := core.ValidateSessionToken(token, config)
	assert.NoError(t, err)
	assert.Equal(t, "chat_user_1", userID)
}

func TestSessionToken_Rejected(t *testing.T) {
	config := testConfig()
	token, _ := core.GenerateSessionToken("chat_user_1", config)

	other := testConfig()
	other.Session.Secret = "a-different-secret"
	_, err := core.ValidateSessionToken(token, other)
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	_, err = core.ValidateSessionToken("not.a.jwt", config)
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	claims := &core.Claims{
		UserID: "chat_user_1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(config.Session.Secret))
	assert.NoError(t, err)
	_, err = core.ValidateSessionToken(token, config)
	assert.ErrorIs(t, err, core.ErrExpiredToken)

	token, _ = jwt.NewWithClaims(jwt.SigningMethodHS256, &core.Claims{}).SignedString([]byte(config.Session.Secret))
	_, err = core.ValidateSessionToken(token, config)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}
