package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"casdoorlink/core"
)

// CasdoorProvider talks to one Casdoor application. It serves both the OAuth
// code exchange and the user object API.
type CasdoorProvider struct {
	config     *core.CasdoorConfig
	httpClient *http.Client
}

func NewCasdoorProvider(config *core.CasdoorConfig) *CasdoorProvider {
	return &CasdoorProvider{
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type casdoorTokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	GrantType    string `json:"grant_type"`
	RedirectURI  string `json:"redirect_uri"`
}

type casdoorTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type casdoorUserInfo struct {
	Sub               string `json:"sub"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
}

// casdoorEnvelope wraps every /api/get-user and /api/update-user response
type casdoorEnvelope struct {
	Status string          `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

func (p *CasdoorProvider) ExchangeCode(ctx context.Context, code string) (*core.OAuthTokens, error) {
	body := casdoorTokenRequest{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		Code:         code,
		GrantType:    "authorization_code",
		RedirectURI:  p.config.RedirectURI,
	}

	var tokenResp casdoorTokenResponse
	if err := p.doJSON(ctx, http.MethodPost, "/api/login/oauth/access_token", "", body, &tokenResp); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrTokenExchange, err)
	}

	// Casdoor reports grant errors with HTTP 200
	if tokenResp.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", core.ErrTokenExchange, tokenResp.Error, tokenResp.ErrorDescription)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: response has no access_token", core.ErrTokenExchange)
	}

	return &core.OAuthTokens{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    tokenResp.ExpiresIn,
	}, nil
}

func (p *CasdoorProvider) GetUserInfo(ctx context.Context, accessToken string) (*core.UserInfo, error) {
	var userInfo casdoorUserInfo
	if err := p.doJSON(ctx, http.MethodGet, "/api/userinfo", "Bearer "+accessToken, nil, &userInfo); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUserInfo, err)
	}

	if userInfo.Name == "" {
		return nil, fmt.Errorf("%w: response has no name", core.ErrUserInfo)
	}

	return &core.UserInfo{
		ID:    userInfo.Sub,
		Name:  userInfo.Name,
		Email: userInfo.Email,
	}, nil
}

func (p *CasdoorProvider) GetProfile(ctx context.Context, username string) (core.Profile, error) {
	var envelope casdoorEnvelope
	if err := p.doJSON(ctx, http.MethodGet, p.userPath("/api/get-user", username), p.basicAuth(), nil, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProfileFetch, err)
	}
	if envelope.Status == "error" {
		return nil, fmt.Errorf("%w: %s", core.ErrProfileFetch, envelope.Msg)
	}

	var profile core.Profile
	if err := decodeNumbers(envelope.Data, &profile); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProfileFetch, err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: user %s/%s not found", core.ErrProfileFetch, p.config.OrgName, username)
	}

	return profile, nil
}

func (p *CasdoorProvider) UpdateProfile(ctx context.Context, username string, profile core.Profile) error {
	var envelope casdoorEnvelope
	if err := p.doJSON(ctx, http.MethodPost, p.userPath("/api/update-user", username), p.basicAuth(), profile, &envelope); err != nil {
		return fmt.Errorf("%w: %v", core.ErrProfileUpdate, err)
	}
	if envelope.Status == "error" {
		return fmt.Errorf("%w: %s", core.ErrProfileUpdate, envelope.Msg)
	}
	return nil
}

func (p *CasdoorProvider) userPath(endpoint, username string) string {
	return endpoint + "?id=" + url.QueryEscape(p.config.OrgName+"/"+username)
}

func (p *CasdoorProvider) basicAuth() string {
	credentials := p.config.ClientID + ":" + p.config.ClientSecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
}

func (p *CasdoorProvider) doJSON(ctx context.Context, method, path, authorization string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	endpoint := strings.TrimRight(p.config.BackendServer, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return decodeNumbers(data, result)
}

// decodeNumbers keeps JSON numbers as json.Number so user objects round-trip exactly.
func decodeNumbers(data []byte, dest any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("empty response body")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
