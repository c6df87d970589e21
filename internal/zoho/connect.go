package zoho

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrNoRefreshToken is returned when the authorization server grants no
// offline access.
var ErrNoRefreshToken = errors.New("authorization returned no refresh token")

// AuthCodeURL returns the consent page URL for region.
func (c *Client) AuthCodeURL(region model.Region, state string) (string, error) {
	conf, err := c.oauthConfig(region, c.cfg.RedirectURL)
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for tokens. redirectURL must match
// the one used to build the consent URL; empty means the configured one.
func (c *Client) Exchange(ctx context.Context, region model.Region, code, redirectURL string) (*oauth2.Token, error) {
	if redirectURL == "" {
		redirectURL = c.cfg.RedirectURL
	}
	conf, err := c.oauthConfig(region, redirectURL)
	if err != nil {
		return nil, err
	}

	token, err := conf.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	return token, nil
}

// ConnectOptions tunes the interactive authorization flow.
type ConnectOptions struct {
	// OpenURL receives the consent page URL; the CLI prints it.
	OpenURL func(authURL string)
	Timeout time.Duration
}

type callbackResult struct {
	err  error
	code string
}

// Connect runs the authorization code flow against a local callback server
// listening on the configured redirect URL. Port 0 picks a free port.
func (c *Client) Connect(ctx context.Context, region model.Region, opts ConnectOptions) (*oauth2.Token, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}

	redirect, err := url.Parse(c.cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redirect url: %w", err)
	}

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	if redirect.Port() == "0" {
		redirect.Host = listener.Addr().String()
	}
	redirectURL := redirect.String()

	conf, err := c.oauthConfig(region, redirectURL)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	state := uuid.NewString()
	results := make(chan callbackResult, 1)

	path := redirect.Path
	if path == "" {
		path = "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			res.err = fmt.Errorf("callback state mismatch")
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = fmt.Errorf("no authorization code received")
		default:
			res.code = q.Get("code")
		}

		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprintf(w, `<html><body>
				<h1>Authentication Failed</h1>
				<p>%s. Please try again.</p>
			</body></html>`, res.err)
		} else {
			_, _ = fmt.Fprint(w, `<html><body>
				<h1>Connected to Zoho Books</h1>
				<p>You can close this window and return to the terminal.</p>
				<script>window.setTimeout(function(){window.close();}, 3000);</script>
			</body></html>`)
		}

		select {
		case results <- res:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case results <- callbackResult{err: fmt.Errorf("callback server failed: %w", serveErr)}:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			c.logger.Warn("error shutting down callback server", "error", shutdownErr)
		}
	}()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if opts.OpenURL != nil {
		opts.OpenURL(authURL)
	}
	c.logger.Info("waiting for zoho authorization", "region", region, "redirect_url", redirectURL)

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(opts.Timeout):
		return nil, fmt.Errorf("authentication timeout - no response received within %s", opts.Timeout)
	}
	if res.err != nil {
		return nil, res.err
	}

	return c.Exchange(ctx, region, res.code, redirectURL)
}
