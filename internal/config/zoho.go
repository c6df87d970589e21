package config

import (
	"fmt"
	"strings"

	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/zoho"
	"github.com/spf13/viper"
)

// LoadZohoConfig loads OAuth clients and host overrides for every region.
// Regions without a client are left out; commands that need one fail later
// through zoho.Config.CredentialsFor.
func LoadZohoConfig() (*zoho.Config, error) {
	cfg := zoho.DefaultConfig()

	for _, region := range model.Regions() {
		prefix := "zoho." + region.Lower() + "."
		envPrefix := "ZOHO_" + string(region) + "_"

		id := firstString(prefix+"client_id", envPrefix+"CLIENT_ID")
		secret := firstString(prefix+"client_secret", envPrefix+"CLIENT_SECRET")
		if id != "" || secret != "" {
			cfg.Clients[region] = zoho.Credentials{ClientID: id, ClientSecret: secret}
		}

		api := firstString(prefix+"api_host", envPrefix+"API_HOST")
		accounts := firstString(prefix+"accounts_host", envPrefix+"ACCOUNTS_HOST")
		if api == "" && accounts == "" {
			continue
		}
		hosts, err := zoho.DefaultHosts(region)
		if err != nil {
			return nil, err
		}
		if api != "" {
			hosts.API = withScheme(api)
		}
		if accounts != "" {
			hosts.Accounts = withScheme(accounts)
		}
		cfg.Hosts[region] = hosts
	}

	if v := firstString("zoho.redirect_url", "ZOHO_REDIRECT_URL"); v != "" {
		cfg.RedirectURL = v
	}
	if d := viper.GetDuration("zoho.timeout"); d > 0 {
		cfg.Timeout = d
	}
	if n := viper.GetInt64("zoho.max_body_bytes"); n > 0 {
		cfg.MaxBodyBytes = n
	}
	if n := viper.GetInt("zoho.retry.max_attempts"); n > 0 {
		cfg.Retry.MaxAttempts = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid zoho config: %w", err)
	}
	return &cfg, nil
}

// LoadUserEmail returns the account owning stored connections.
func LoadUserEmail() string {
	if v := firstString("zoho.user_email", "ZOHO_USER_EMAIL"); v != "" {
		return v
	}
	return DefaultUserEmail
}

// DefaultUserEmail owns connections when no user is configured.
const DefaultUserEmail = "default@local"

func withScheme(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

// LoadOrgIDs returns the default organization per region from
// zoho.<region>.org_id or ZOHO_<REGION>_ORG_ID. Regions without one are absent.
func LoadOrgIDs() map[model.Region]string {
	orgs := make(map[model.Region]string)
	for _, region := range model.Regions() {
		if v := firstString("zoho."+region.Lower()+".org_id", "ZOHO_"+string(region)+"_ORG_ID"); v != "" {
			orgs[region] = v
		}
	}
	return orgs
}
