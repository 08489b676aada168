package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotBound      = errors.New("account not bound")
	ErrInvalidLink   = errors.New("authorization link has no code")
	ErrInvalidTarget = errors.New("target account is empty")
)

const (
	CheckInMinScore = 50
	CheckInMaxScore = 200
)

type ScoreResult struct {
	Target string
	Score  int64
}

type CheckInResult struct {
	Target string
	Gained int
	Total  int64
}

// Gateway binds chat users to Casdoor accounts and mutates their profile score.
// Score updates are a plain fetch-then-post: two concurrent writers to the same
// profile can lose one of the updates.
type Gateway struct {
	repo      Repository
	identity  IdentityProvider
	profiles  ProfileBackend
	config    *Config
	logger    *zap.Logger
	random    Random
	publisher Publisher
	crypto    *CryptoService
	now       func() time.Time
}

type GatewayOption func(*Gateway)

func WithRandom(r Random) GatewayOption {
	return func(g *Gateway) { g.random = r }
}

func WithPublisher(p Publisher) GatewayOption {
	return func(g *Gateway) { g.publisher = p }
}

// WithCrypto seals access and refresh tokens before they are stored.
func WithCrypto(c *CryptoService) GatewayOption {
	return func(g *Gateway) { g.crypto = c }
}

func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

func NewGateway(repo Repository, identity IdentityProvider, profiles ProfileBackend, config *Config, logger *zap.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		repo:      repo,
		identity:  identity,
		profiles:  profiles,
		config:    config,
		logger:    logger,
		random:    NewRandom(),
		publisher: NopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) ViewBinding(ctx context.Context, chatUserID string) (*BindingRecord, error) {
	return g.findBinding(ctx, chatUserID)
}

// BindLink builds the Casdoor authorize URL. The chat user id travels in
// "state" so the callback can be matched to the user.
func (g *Gateway) BindLink(chatUserID string) string {
	c := g.config.Casdoor
	return fmt.Sprintf("%s/login/oauth/authorize?response_type=code&client_id=%s&redirect_uri=%s&state=%s&scope=profile",
		strings.TrimRight(c.Server, "/"),
		c.ClientID,
		url.QueryEscape(c.RedirectURI),
		url.QueryEscape(chatUserID),
	)
}

// ParseAuthorizationCode extracts "code" from the query part of a pasted
// callback URL or bare query string.
func ParseAuthorizationCode(link string) (string, error) {
	_, query, _ := strings.Cut(strings.TrimSpace(link), "?")
	query, _, _ = strings.Cut(query, "#")

	// ParseQuery keeps every well-formed pair even when it reports an error
	values, _ := url.ParseQuery(query)
	code := values.Get("code")
	if code == "" {
		return "", ErrInvalidLink
	}
	return code, nil
}

func (g *Gateway) CompleteBind(ctx context.Context, chatUserID, link string) (*BindingRecord, error) {
	code, err := ParseAuthorizationCode(link)
	if err != nil {
		return nil, err
	}
	return g.BindWithCode(ctx, chatUserID, code)
}

func (g *Gateway) BindWithCode(ctx context.Context, chatUserID, code string) (*BindingRecord, error) {
	// 1. Exchange authorization code for OAuth tokens
	tokens, err := g.identity.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	// 2. Resolve the Casdoor username behind the new access token
	info, err := g.identity.GetUserInfo(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	// 3. Seal tokens if configured
	accessToken, refreshToken := tokens.AccessToken, tokens.RefreshToken
	if g.crypto != nil {
		if accessToken, err = g.crypto.EncryptToken(accessToken); err != nil {
			return nil, fmt.Errorf("failed to encrypt access token: %w", err)
		}
		if refreshToken, err = g.crypto.EncryptToken(refreshToken); err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	// 4. Upsert the binding
	record := &BindingRecord{
		ID:               chatUserID,
		ExternalUsername: info.Name,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		BoundAt:          g.now(),
	}
	if err := g.repo.SaveBinding(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: save binding: %v", ErrStorage, err)
	}

	g.logger.Info("account bound",
		zap.String("chat_user_id", chatUserID),
		zap.String("target", info.Name),
	)
	g.publish(ctx, NewEvent(EventBindingCompleted, chatUserID, info.Name, record.BoundAt))

	return record, nil
}

// Tokens returns the stored OAuth tokens in plaintext.
func (g *Gateway) Tokens(ctx context.Context, chatUserID string) (*OAuthTokens, error) {
	record, err := g.findBinding(ctx, chatUserID)
	if err != nil {
		return nil, err
	}

	tokens := &OAuthTokens{AccessToken: record.AccessToken, RefreshToken: record.RefreshToken}
	if g.crypto == nil {
		return tokens, nil
	}

	if tokens.AccessToken, err = g.crypto.DecryptToken(record.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if tokens.RefreshToken, err = g.crypto.DecryptToken(record.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return tokens, nil
}

// SetScore overwrites the target's score. An empty target means the caller's
// own bound account.
func (g *Gateway) SetScore(ctx context.Context, chatUserID string, score int64, target string) (*ScoreResult, error) {
	if target == "" {
		record, err := g.findBinding(ctx, chatUserID)
		if err != nil {
			return nil, err
		}
		target = record.ExternalUsername
	}
	if target == "" {
		return nil, ErrInvalidTarget
	}

	logger := g.logger.With(zap.String("chat_user_id", chatUserID), zap.String("target", target))

	profile, err := g.profiles.GetProfile(ctx, target)
	if err != nil {
		logger.Error("failed to set score", zap.Error(err))
		return nil, err
	}

	profile.SetScore(score)
	if err := g.profiles.UpdateProfile(ctx, target, profile); err != nil {
		logger.Error("failed to set score", zap.Error(err))
		return nil, err
	}

	logger.Info("score set", zap.Int64("score", score))

	event := NewEvent(EventScoreSet, chatUserID, target, g.now())
	event.Score = score
	g.publish(ctx, event)

	return &ScoreResult{Target: target, Score: score}, nil
}

// CheckIn adds a random bonus to the caller's score. Nothing limits how often
// it may be called.
func (g *Gateway) CheckIn(ctx context.Context, chatUserID string) (*CheckInResult, error) {
	record, err := g.findBinding(ctx, chatUserID)
	if err != nil {
		return nil, err
	}
	target := record.ExternalUsername
	if target == "" {
		return nil, ErrInvalidTarget
	}

	logger := g.logger.With(zap.String("chat_user_id", chatUserID), zap.String("target", target))

	profile, err := g.profiles.GetProfile(ctx, target)
	if err != nil {
		logger.Error("check-in failed", zap.Error(err))
		return nil, err
	}

	gained := g.random.Int(CheckInMinScore, CheckInMaxScore)
	total := AddScore(profile.Score(), int64(gained))
	profile.SetScore(total)

	if err := g.profiles.UpdateProfile(ctx, target, profile); err != nil {
		logger.Error("check-in failed", zap.Error(err))
		return nil, err
	}

	logger.Info("check-in completed", zap.Int("gained", gained), zap.Int64("score", total))

	event := NewEvent(EventCheckInCompleted, chatUserID, target, g.now())
	event.Score = total
	event.Gained = gained
	g.publish(ctx, event)

	return &CheckInResult{Target: target, Gained: gained, Total: total}, nil
}

func (g *Gateway) findBinding(ctx context.Context, chatUserID string) (*BindingRecord, error) {
	record, err := g.repo.FindBinding(ctx, chatUserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotBound
		}
		return nil, fmt.Errorf("%w: find binding: %v", ErrStorage, err)
	}
	return record, nil
}

func (g *Gateway) publish(ctx context.Context, event Event) {
	if err := g.publisher.Publish(ctx, event); err != nil {
		g.logger.Warn("failed to publish event",
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}
