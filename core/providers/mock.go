package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"casdoorlink/core"
)

// Predefined test authorization codes
const (
	ValidCode1 = "abc123"
	ValidCode2 = "mock_auth_code_2"
	ValidCode3 = "mock_auth_code_3" // Exchanges fine but its userinfo call fails
)

// Predefined test OAuth tokens
var (
	Tokens1 = &core.OAuthTokens{
		AccessToken:  "T1",
		RefreshToken: "R1",
		ExpiresIn:    3600,
	}

	Tokens2 = &core.OAuthTokens{
		AccessToken:  "T2",
		RefreshToken: "R2",
		ExpiresIn:    3600,
	}

	Tokens3 = &core.OAuthTokens{
		AccessToken:  "T3_revoked",
		RefreshToken: "R3",
		ExpiresIn:    3600,
	}
)

// Predefined test user info
var (
	User1 = &core.UserInfo{
		ID:    "mock_user_1",
		Name:  "alice",
		Email: "alice@mock.test",
	}

	User2 = &core.UserInfo{
		ID:    "mock_user_2",
		Name:  "bob",
		Email: "bob@mock.test",
	}
)

// MockProvider is an in-memory Casdoor: an IdentityProvider and a ProfileBackend
type MockProvider struct {
	codeToTokens     map[string]*core.OAuthTokens
	accessToUserInfo map[string]*core.UserInfo

	// Profiles by username, as stored by the last update
	Profiles map[string]core.Profile

	// UpdateErr, when set, fails every UpdateProfile call
	UpdateErr error

	// track method calls for verification
	ExchangeCodeCalls  int
	GetUserInfoCalls   int
	GetProfileCalls    int
	UpdateProfileCalls int
	Updated            []core.Profile
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		codeToTokens: map[string]*core.OAuthTokens{
			ValidCode1: Tokens1,
			ValidCode2: Tokens2,
			ValidCode3: Tokens3,
		},

		accessToUserInfo: map[string]*core.UserInfo{
			Tokens1.AccessToken: User1,
			Tokens2.AccessToken: User2,
		},

		Profiles: map[string]core.Profile{
			User1.Name: {"owner": "built-in", "name": User1.Name, "score": json.Number("40")},
			User2.Name: {"owner": "built-in", "name": User2.Name},
		},
	}
}

// Calls returns the number of outbound calls of any kind.
func (m *MockProvider) Calls() int {
	return m.ExchangeCodeCalls + m.GetUserInfoCalls + m.GetProfileCalls + m.UpdateProfileCalls
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (*core.OAuthTokens, error) {
	m.ExchangeCodeCalls++

	tokens, ok := m.codeToTokens[code]
	if !ok {
		return nil, fmt.Errorf("%w: invalid_grant: unknown code %q", core.ErrTokenExchange, code)
	}

	return tokens, nil
}

func (m *MockProvider) GetUserInfo(ctx context.Context, accessToken string) (*core.UserInfo, error) {
	m.GetUserInfoCalls++

	userInfo, ok := m.accessToUserInfo[accessToken]
	if !ok {
		return nil, fmt.Errorf("%w: status 401: invalid token", core.ErrUserInfo)
	}

	return userInfo, nil
}

func (m *MockProvider) GetProfile(ctx context.Context, username string) (core.Profile, error) {
	m.GetProfileCalls++

	profile, ok := m.Profiles[username]
	if !ok {
		return nil, fmt.Errorf("%w: user built-in/%s not found", core.ErrProfileFetch, username)
	}

	return maps.Clone(profile), nil
}

func (m *MockProvider) UpdateProfile(ctx context.Context, username string, profile core.Profile) error {
	m.UpdateProfileCalls++

	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if _, ok := m.Profiles[username]; !ok {
		return fmt.Errorf("%w: user built-in/%s not found", core.ErrProfileUpdate, username)
	}

	stored := maps.Clone(profile)
	m.Profiles[username] = stored
	m.Updated = append(m.Updated, stored)
	return nil
}
