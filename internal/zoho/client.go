package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"golang.org/x/oauth2"
)

// ErrBodyTooLarge is returned when a response exceeds Config.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// Client is a Zoho Books API client.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        Config
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new Zoho client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default().With("component", "zoho"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Organization is one Zoho Books organization visible to a token.
type Organization struct {
	ID           string `json:"organization_id"`
	Name         string `json:"name"`
	CurrencyCode string `json:"currency_code"`
	IsDefault    bool   `json:"is_default_org"`
}

type organizationsResponse struct {
	Message       string         `json:"message"`
	Organizations []Organization `json:"organizations"`
	Code          int            `json:"code"`
}

// oauthConfig builds the OAuth client for region. Zoho expects the client
// credentials as form parameters.
func (c *Client) oauthConfig(region model.Region, redirectURL string) (*oauth2.Config, error) {
	creds, err := c.cfg.CredentialsFor(region)
	if err != nil {
		return nil, err
	}
	hosts, err := c.cfg.HostsFor(region)
	if err != nil {
		return nil, err
	}
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   hosts.Accounts + "/oauth/v2/auth",
			TokenURL:  hosts.Accounts + "/oauth/v2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURL,
		Scopes:      []string{Scope},
	}, nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// AccessToken trades a refresh token for a short-lived access token.
func (c *Client) AccessToken(ctx context.Context, region model.Region, refreshToken string) (string, error) {
	conf, err := c.oauthConfig(region, "")
	if err != nil {
		return "", err
	}

	var token *oauth2.Token
	err = common.WithRetry(ctx, func() error {
		tok, tokErr := conf.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
		if tokErr != nil {
			return classifyTokenError(tokErr)
		}
		token = tok
		return nil
	}, c.cfg.Retry)
	if err != nil {
		return "", fmt.Errorf("%w for %s: %w", common.ErrTokenRefresh, region, err)
	}

	c.logger.Debug("refreshed access token", "region", region, "expiry", token.Expiry)
	return token.AccessToken, nil
}

func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return common.ClassifyStatus(re.Response.StatusCode, err)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return common.Transient(err)
	}
	return common.Permanent(err)
}

// ListOrganizations returns the organizations the access token can read.
func (c *Client) ListOrganizations(ctx context.Context, region model.Region, accessToken string) ([]Organization, error) {
	hosts, err := c.cfg.HostsFor(region)
	if err != nil {
		return nil, err
	}

	var resp *response
	err = common.WithRetry(ctx, func() error {
		r, getErr := c.get(ctx, hosts.API+"/books/v3/organizations", accessToken)
		if getErr != nil {
			return getErr
		}
		resp = r
		if common.RetryableStatus(r.Status) {
			return common.ClassifyStatus(r.Status, fmt.Errorf("%w: status %d", common.ErrUpstreamRequest, r.Status))
		}
		return nil
	}, c.cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: organizations returned %d: %s", common.ErrUpstreamRequest, resp.Status, clip(string(resp.Body), detailLimit))
	}

	var body organizationsResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("failed to decode organizations: %w", err)
	}
	if body.Code != 0 {
		return nil, fmt.Errorf("%w: zoho code %d: %s", common.ErrUpstreamRequest, body.Code, body.Message)
	}
	return body.Organizations, nil
}

type response struct {
	Header http.Header
	Body   []byte
	Status int
}

// OK reports a 2xx status.
func (r *response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// get issues an authorized GET and buffers the body up to MaxBodyBytes.
func (c *Client) get(ctx context.Context, rawURL, accessToken string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, common.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, common.Permanent(ctx.Err())
		}
		return nil, common.Transient(fmt.Errorf("%w: %w", common.ErrUpstreamRequest, err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, common.Transient(fmt.Errorf("failed to read response: %w", err))
	}
	if int64(len(body)) > c.cfg.MaxBodyBytes {
		return nil, common.Permanent(fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.cfg.MaxBodyBytes))
	}

	return &response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// clip shortens s to at most n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
