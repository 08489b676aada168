package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUpstream = errors.New("upstream request failed")

	ErrTokenExchange = fmt.Errorf("%w: token exchange", ErrUpstream)
	ErrUserInfo      = fmt.Errorf("%w: user info", ErrUpstream)
	ErrProfileFetch  = fmt.Errorf("%w: get user", ErrUpstream)
	ErrProfileUpdate = fmt.Errorf("%w: update user", ErrUpstream)
)

// OAuthTokens represents the tokens returned by the identity service
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// UserInfo represents the identity service's view of the signed-in user
type UserInfo struct {
	ID    string
	Name  string
	Email string
}

type IdentityProvider interface {
	ExchangeCode(ctx context.Context, code string) (*OAuthTokens, error)

	GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error)
}

// ProfileBackend reads and writes user objects by external username
type ProfileBackend interface {
	GetProfile(ctx context.Context, username string) (Profile, error)

	UpdateProfile(ctx context.Context, username string, profile Profile) error
}
