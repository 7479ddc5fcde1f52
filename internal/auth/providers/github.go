package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// DefaultGitHubAPIURL is the public GitHub REST endpoint.
const DefaultGitHubAPIURL = "https://api.github.com"

// GitHubConfig configures the GitHub OAuth provider. Endpoint and APIBaseURL
// default to github.com and exist for GitHub Enterprise and tests.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	APIBaseURL   string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

type githubProvider struct {
	oauthConfig *oauth2.Config
	apiBase     string
	httpClient  *http.Client
	timeout     time.Duration
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// NewGitHubProvider validates cfg and returns a GitHub provider.
func NewGitHubProvider(cfg GitHubConfig) (Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("github provider: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("github provider: client secret is required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("github provider: redirect url is required")
	}

	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = github.Endpoint
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if apiBase == "" {
		apiBase = DefaultGitHubAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &githubProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		apiBase:    apiBase,
		httpClient: cfg.HTTPClient,
		timeout:    timeout,
	}, nil
}

func (p *githubProvider) Name() string { return GitHub }

func (p *githubProvider) AuthCodeURL(req AuthorizeRequest) (string, error) {
	if strings.TrimSpace(req.State) == "" {
		return "", errors.New("github provider: state is required")
	}
	opts := []oauth2.AuthCodeOption{}
	if req.PKCEChallenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", req.PKCEChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	return p.oauthConfig.AuthCodeURL(req.State, opts...), nil
}

func (p *githubProvider) Exchange(ctx context.Context, req ExchangeRequest) (*Identity, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, errors.New("github provider: authorization code missing")
	}

	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var opts []oauth2.AuthCodeOption
	if req.PKCEVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", req.PKCEVerifier))
	}
	token, err := p.oauthConfig.Exchange(ctx, req.Code, opts...)
	if err != nil {
		return nil, fmt.Errorf("github provider: exchange failed: %w", err)
	}

	client := p.oauthConfig.Client(ctx, token)

	var user githubUser
	if err := p.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, errors.New("github provider: profile id missing")
	}

	email, verified := user.Email, false
	var emails []githubEmail
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err == nil {
		if primary, ok := primaryEmail(emails); ok {
			email, verified = primary.Email, primary.Verified
		}
	}

	displayName := user.Name
	if strings.TrimSpace(displayName) == "" {
		displayName = user.Login
	}

	return &Identity{
		Provider:      GitHub,
		Subject:       strconv.FormatInt(user.ID, 10),
		Email:         email,
		EmailVerified: verified,
		DisplayName:   displayName,
		Login:         user.Login,
		AvatarURL:     user.AvatarURL,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		RawClaims: map[string]any{
			"id":         user.ID,
			"login":      user.Login,
			"name":       user.Name,
			"email":      email,
			"avatar_url": user.AvatarURL,
		},
	}, nil
}

func (p *githubProvider) getJSON(ctx context.Context, client *http.Client, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("github provider: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github provider: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("github provider: GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("github provider: decode %s: %w", path, err)
	}
	return nil
}

// primaryEmail prefers the verified primary address, then any verified one.
func primaryEmail(emails []githubEmail) (githubEmail, bool) {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e, true
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e, true
		}
	}
	return githubEmail{}, false
}
