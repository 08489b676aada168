package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"testing"
	"time"

	"casdoorlink/core"
	"casdoorlink/core/providers"
	"casdoorlink/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// sequenceRandom returns the queued values in order, then repeats the last one
type sequenceRandom struct {
	values []int
	calls  int
	lo, hi int
}

func (r *sequenceRandom) Int(lo, hi int) int {
	r.lo, r.hi = lo, hi
	i := r.calls
	if i >= len(r.values) {
		i = len(r.values) - 1
	}
	r.calls++
	return r.values[i]
}

type recordingPublisher struct {
	events []core.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event core.Event) error {
	p.events = append(p.events, event)
	return p.err
}

func testConfig() *core.Config {
	return &core.Config{
		Casdoor: core.CasdoorConfig{
			Server:        "https://door.example.com",
			BackendServer: "https://api.example.com",
			ClientID:      "client-id",
			ClientSecret:  "client-secret",
			RedirectURI:   "https://bot.example.com/callback?source=chat",
			OrgName:       "built-in",
		},
		Session: core.SessionConfig{
			Secret:        "test-secret-key-for-testing-purposes-only",
			TokenDuration: 1800,
		},
		Locale: "en-US",
	}
}

type gatewayFixture struct {
	gateway   *core.Gateway
	repo      *storage.MockRepository
	provider  *providers.MockProvider
	random    *sequenceRandom
	publisher *recordingPublisher
}

func setupGateway(t *testing.T, repo *storage.MockRepository, opts ...core.GatewayOption) *gatewayFixture {
	t.Helper()
	f := &gatewayFixture{
		repo:      repo,
		provider:  providers.NewMockProvider(),
		random:    &sequenceRandom{values: []int{75}},
		publisher: &recordingPublisher{},
	}
	opts = append([]core.GatewayOption{core.WithRandom(f.random), core.WithPublisher(f.publisher)}, opts...)
	f.gateway = core.NewGateway(f.repo, f.provider, f.provider, testConfig(), zaptest.NewLogger(t), opts...)
	return f
}

func TestViewBinding_NotBound(t *testing.T) {
	f := setupGateway(t, storage.NewMockRepository())

	record, err := f.gateway.ViewBinding(context.Background(), "nobody")

	assert.ErrorIs(t, err, core.ErrNotBound)
	assert.Nil(t, record)
	assert.Equal(t, 0, f.provider.Calls())
}

func TestViewBinding_StorageFailure(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.FindErr = errors.New("disk on fire")
	f := setupGateway(t, repo)

	_, err := f.gateway.ViewBinding(context.Background(), "chat_user_1")

	assert.ErrorIs(t, err, core.ErrStorage)
	assert.NotErrorIs(t, err, core.ErrNotBound)
}

func TestBindLink(t *testing.T) {
	f := setupGateway(t, storage.NewMockRepository())

	link := f.gateway.BindLink("chat_user_9")

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "door.example.com", parsed.Host)
	assert.Equal(t, "/login/oauth/authorize", parsed.Path)

	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "https://bot.example.com/callback?source=chat", q.Get("redirect_uri"))
	assert.Equal(t, "chat_user_9", q.Get("state"))
	assert.Equal(t, "profile", q.Get("scope"))
	assert.Contains(t, link, "redirect_uri=https%3A%2F%2Fbot.example.com%2Fcallback%3Fsource%3Dchat")
	assert.Equal(t, 0, f.provider.Calls())
}

func TestParseAuthorizationCode(t *testing.T) {
	tests := []struct {
		name string
		link string
		code string
	}{
		{"full url", "https://x/callback?code=abc123&state=u1", "abc123"},
		{"bare query", "?state=u1&code=xyz", "xyz"},
		{"fragment ignored", "https://x/callback?code=abc#done", "abc"},
		{"surrounding spaces", "  https://x/cb?code=c1  ", "c1"},
		{"escaped value", "https://x/cb?code=a%2Bb", "a+b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := core.ParseAuthorizationCode(tt.link)
			require.NoError(t, err)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestParseAuthorizationCode_Invalid(t *testing.T) {
	for _, link := range []string{
		"",
		"https://x/callback",
		"code=abc123",
		"https://x/callback?state=u1",
		"https://x/callback?code=",
	} {
		_, err := core.ParseAuthorizationCode(link)
		assert.ErrorIs(t, err, core.ErrInvalidLink, link)
	}
}

func TestCompleteBind_InvalidLink(t *testing.T) {
	f := setupGateway(t, storage.NewMockRepository())

	_, err := f.gateway.CompleteBind(context.Background(), "chat_user_a", "https://x/callback?state=chat_user_a")

	assert.ErrorIs(t, err, core.ErrInvalidLink)
	assert.Equal(t, 0, f.provider.Calls())
	assert.Equal(t, 0, f.repo.SaveBindingCalls)
}

func TestCompleteBind_Success(t *testing.T) {
	f := setupGateway(t, storage.NewMockRepository())

	record, err := f.gateway.CompleteBind(context.Background(), "chat_user_a", "https://x/callback?code="+providers.ValidCode1)

	require.NoError(t, err)
	assert.Equal(t, "chat_user_a", record.ID)
	assert.Equal(t, "alice", record.ExternalUsername)
	assert.Equal(t, "T1", record.AccessToken)
	assert.Equal(t, "R1", record.RefreshToken)
	assert.WithinDuration(t, time.Now(), record.BoundAt, 5*time.Second)

	stored, err := f.repo.FindBinding(context.Background(), "chat_user_a")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.ExternalUsername)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, core.EventBindingCompleted, f.publisher.events[0].Type)
	assert.Equal(t, "alice", f.publisher.events[0].ExternalUsername)
}

func TestCompleteBind_RebindOverwrites(t *testing.T) {
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(48 * time.Hour)
	now := first
	f := setupGateway(t, storage.NewMockRepository(), core.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := f.gateway.CompleteBind(ctx, "chat_user_a", "https://x/cb?code="+providers.ValidCode1)
	require.NoError(t, err)

	now = second
	_, err = f.gateway.CompleteBind(ctx, "chat_user_a", "https://x/cb?code="+providers.ValidCode2)
	require.NoError(t, err)

	count, _ := f.repo.CountBindings(ctx)
	assert.Equal(t, int64(1), count)

	stored, err := f.repo.FindBinding(ctx, "chat_user_a")
	require.NoError(t, err)
	assert.Equal(t, "bob", stored.ExternalUsername)
	assert.Equal(t, "T2", stored.AccessToken)
	assert.Equal(t, "R2", stored.RefreshToken)
	assert.Equal(t, second, stored.BoundAt)
}

func TestCompleteBind_TokenExchangeFails(t *testing.T) {
	f := setupGateway(t, storage.NewMockRepository())

	_, err := f.gateway.CompleteBind(context.Background(), "chat_user_a", "https://x/cb?code=expired")

	assert.ErrorIs(t, err, core.ErrTokenExchange)
	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.Equal(t, 0, f.provider.GetUserInfoCalls)
	assert.Equal(t, 0, f.repo.SaveBindingCalls)
}

func TestCompleteBind_UserInfoFailsLeavesNoRecord(t *testing.T) {
	f := setupGateway(t, storage.NewMockRepository())

	_, err := f.gateway.CompleteBind(context.Background(), "chat_user_a", "https://x/cb?code="+providers.ValidCode3)

	assert.ErrorIs(t, err, core.ErrUserInfo)
	assert.Equal(t, 1, f.provider.ExchangeCodeCalls)
	assert.Equal(t, 0, f.repo.SaveBindingCalls)
	_, err = f.gateway.ViewBinding(context.Background(), "chat_user_a")
	assert.ErrorIs(t, err, core.ErrNotBound)
}

func TestCompleteBind_PublishFailureIsIgnored(t *testing.T) {
	f := setupGateway(t, storage.NewMockRepository())
	f.publisher.err = errors.New("broker down")

	record, err := f.gateway.CompleteBind(context.Background(), "chat_user_a", "https://x/cb?code="+providers.ValidCode1)

	require.NoError(t, err)
	assert.Equal(t, "alice", record.ExternalUsername)
}

func TestCompleteBind_SealsTokens(t *testing.T) {
	crypto, err := core.NewCryptoService("12345678901234567890123456789012")
	require.NoError(t, err)
	f := setupGateway(t, storage.NewMockRepository(), core.WithCrypto(crypto))
	ctx := context.Background()

	_, err = f.gateway.CompleteBind(ctx, "chat_user_a", "https://x/cb?code="+providers.ValidCode1)
	require.NoError(t, err)

	stored, err := f.repo.FindBinding(ctx, "chat_user_a")
	require.NoError(t, err)
	assert.NotEqual(t, "T1", stored.AccessToken)
	assert.NotEqual(t, "R1", stored.RefreshToken)

	tokens, err := f.gateway.Tokens(ctx, "chat_user_a")
	require.NoError(t, err)
	assert.Equal(t, "T1", tokens.AccessToken)
	assert.Equal(t, "R1", tokens.RefreshToken)
}

func TestTokens_Plaintext(t *testing.T) {
	f := setupGateway(t, storage.NewSeededMockRepository())

	tokens, err := f.gateway.Tokens(context.Background(), storage.Binding1.ID)

	require.NoError(t, err)
	assert.Equal(t, "T1", tokens.AccessToken)
	assert.Equal(t, "R1", tokens.RefreshToken)
}

func TestSetScore_OwnBinding(t *testing.T) {
	f := setupGateway(t, storage.NewSeededMockRepository())

	result, err := f.gateway.SetScore(context.Background(), storage.Binding1.ID, 500, "")

	require.NoError(t, err)
	assert.Equal(t, "alice", result.Target)
	assert.Equal(t, int64(500), result.Score)

	require.Len(t, f.provider.Updated, 1)
	updated := f.provider.Updated[0]
	assert.Equal(t, int64(500), updated.Score())
	assert.Equal(t, "built-in", updated["owner"], "other fields are written back untouched")

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, core.EventScoreSet, f.publisher.events[0].Type)
	assert.Equal(t, int64(500), f.publisher.events[0].Score)
}

func TestSetScore_OverwritesNotAdds(t *testing.T) {
	f := setupGateway(t, storage.NewSeededMockRepository())

	_, err := f.gateway.SetScore(context.Background(), storage.Binding1.ID, 7, "")

	require.NoError(t, err)
	assert.Equal(t, int64(7), f.provider.Profiles["alice"].Score())
}

func TestSetScore_NotBound(t *testing.T) {
	f := setupGateway(t, storage.NewMockRepository())

	_, err := f.gateway.SetScore(context.Background(), "nobody", 10, "")

	assert.ErrorIs(t, err, core.ErrNotBound)
	assert.Equal(t, 0, f.provider.Calls())
}

func TestSetScore_ExplicitTargetBypassesBinding(t *testing.T) {
	f := setupGateway(t, storage.NewMockRepository())
	ctx := context.Background()

	_, err := f.gateway.SetScore(ctx, "stranger_1", 10, "alice")
	require.NoError(t, err)
	_, err = f.gateway.SetScore(ctx, "stranger_2", 20, "bob")
	require.NoError(t, err)

	assert.Equal(t, 0, f.repo.FindBindingCalls)
	assert.Equal(t, int64(10), f.provider.Profiles["alice"].Score())
	assert.Equal(t, int64(20), f.provider.Profiles["bob"].Score())
}

func TestSetScore_EmptyUsername(t *testing.T) {
	f := setupGateway(t, storage.NewSeededMockRepository())

	_, err := f.gateway.SetScore(context.Background(), storage.BindingEmpty.ID, 10, "")

	assert.ErrorIs(t, err, core.ErrInvalidTarget)
	assert.Equal(t, 0, f.provider.Calls())
}

func TestSetScore_UnknownTarget(t *testing.T) {
	f := setupGateway(t, storage.NewMockRepository())

	_, err := f.gateway.SetScore(context.Background(), "stranger", 10, "mallory")

	assert.ErrorIs(t, err, core.ErrProfileFetch)
	assert.Equal(t, 0, f.provider.UpdateProfileCalls)
	assert.Empty(t, f.publisher.events)
}

func TestCheckIn_Scenario(t *testing.T) {
	f := setupGateway(t, storage.NewSeededMockRepository())

	result, err := f.gateway.CheckIn(context.Background(), storage.Binding1.ID)

	require.NoError(t, err)
	assert.Equal(t, 75, result.Gained)
	assert.Equal(t, int64(115), result.Total)
	assert.Equal(t, core.CheckInMinScore, f.random.lo)
	assert.Equal(t, core.CheckInMaxScore, f.random.hi)

	require.Len(t, f.provider.Updated, 1)
	assert.Equal(t, int64(115), f.provider.Updated[0].Score())

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, core.EventCheckInCompleted, event.Type)
	assert.Equal(t, 75, event.Gained)
	assert.Equal(t, int64(115), event.Score)
}

func TestCheckIn_MissingScoreCountsAsZero(t *testing.T) {
	f := setupGateway(t, storage.NewSeededMockRepository())
	f.random.values = []int{50}

	result, err := f.gateway.CheckIn(context.Background(), storage.Binding2.ID)

	require.NoError(t, err)
	assert.Equal(t, int64(50), result.Total)
}

func TestCheckIn_RepeatableWithoutLimit(t *testing.T) {
	f := setupGateway(t, storage.NewSeededMockRepository())
	f.random.values = []int{100, 60, 200}
	ctx := context.Background()

	var last *core.CheckInResult
	for i := 0; i < 3; i++ {
		result, err := f.gateway.CheckIn(ctx, storage.Binding1.ID)
		require.NoError(t, err)
		last = result
	}

	assert.Equal(t, int64(40+100+60+200), last.Total)
	assert.Equal(t, 3, f.provider.UpdateProfileCalls)
}

func TestCheckIn_NotBound(t *testing.T) {
	f := setupGateway(t, storage.NewMockRepository())

	_, err := f.gateway.CheckIn(context.Background(), "nobody")

	assert.ErrorIs(t, err, core.ErrNotBound)
	assert.Equal(t, 0, f.provider.Calls())
	assert.Equal(t, 0, f.random.calls)
}

func TestCheckIn_UpdateFails(t *testing.T) {
	f := setupGateway(t, storage.NewSeededMockRepository())
	f.provider.UpdateErr = core.ErrProfileUpdate

	_, err := f.gateway.CheckIn(context.Background(), storage.Binding1.ID)

	assert.ErrorIs(t, err, core.ErrProfileUpdate)
	assert.Equal(t, int64(40), f.provider.Profiles["alice"].Score())
	assert.Empty(t, f.publisher.events)
}

func TestProfileScore(t *testing.T) {
	tests := []struct {
		name    string
		profile core.Profile
		want    int64
	}{
		{"missing", core.Profile{}, 0},
		{"null", core.Profile{"score": nil}, 0},
		{"json number", core.Profile{"score": json.Number("40")}, 40},
		{"json float", core.Profile{"score": json.Number("12.6")}, 13},
		{"float64", core.Profile{"score": float64(9)}, 9},
		{"int64", core.Profile{"score": int64(3)}, 3},
		{"string", core.Profile{"score": "many"}, 0},
		{"huge json number", core.Profile{"score": json.Number("1e20")}, math.MaxInt64},
		{"huge negative json number", core.Profile{"score": json.Number("-1e20")}, math.MinInt64},
		{"huge float64", core.Profile{"score": float64(1e300)}, math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.Score())
		})
	}
}

func TestAddScore_Saturates(t *testing.T) {
	assert.Equal(t, int64(115), core.AddScore(40, 75))
	assert.Equal(t, int64(math.MaxInt64), core.AddScore(math.MaxInt64-10, 75))
	assert.Equal(t, int64(math.MinInt64), core.AddScore(math.MinInt64+10, -75))
}

func TestCheckIn_ScoreAtCeiling(t *testing.T) {
	f := setupGateway(t, storage.NewSeededMockRepository())
	f.provider.Profiles["alice"]["score"] = json.Number("1e20")

	result, err := f.gateway.CheckIn(context.Background(), storage.Binding1.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(math.MaxInt64), result.Total)
	require.Len(t, f.provider.Updated, 1)
	assert.Equal(t, int64(math.MaxInt64), f.provider.Updated[0].Score())
}
