// Package zoho talks to the Zoho Books API: OAuth token handling, the
// trial balance report and organization listing.
package zoho

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/service"
)

// Scope is the OAuth scope requested when connecting a region.
const Scope = "ZohoBooks.fullaccess.all"

// Credentials are the OAuth client registered for one region.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Config holds the configuration for the Zoho client.
type Config struct {
	Clients      map[model.Region]Credentials
	Hosts        map[model.Region]Hosts
	RedirectURL  string
	Retry        service.RetryOptions
	Timeout      time.Duration
	MaxBodyBytes int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Clients:      make(map[model.Region]Credentials),
		Hosts:        make(map[model.Region]Hosts),
		RedirectURL:  "http://localhost:8765/callback",
		Retry:        service.DefaultRetryOptions(),
		Timeout:      60 * time.Second,
		MaxBodyBytes: 50 << 20,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: zoho timeout must be positive", common.ErrInvalidConfig)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: zoho max body bytes must be positive", common.ErrInvalidConfig)
	}
	u, err := url.Parse(c.RedirectURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: zoho redirect url %q is not absolute", common.ErrInvalidConfig, c.RedirectURL)
	}
	for region, creds := range c.Clients {
		if creds.ClientID == "" || creds.ClientSecret == "" {
			return fmt.Errorf("%w: zoho client for %s needs both id and secret", common.ErrInvalidConfig, region)
		}
	}
	return nil
}

// CredentialsFor returns the OAuth client for region.
func (c *Config) CredentialsFor(region model.Region) (Credentials, error) {
	creds, ok := c.Clients[region]
	if !ok || creds.ClientID == "" {
		return Credentials{}, fmt.Errorf("%w: no zoho client configured for %s", common.ErrMissingConfig, region)
	}
	return creds, nil
}

// HostsFor returns configured host overrides for region, or the public hosts.
func (c *Config) HostsFor(region model.Region) (Hosts, error) {
	if h, ok := c.Hosts[region]; ok {
		return h, nil
	}
	return DefaultHosts(region)
}
