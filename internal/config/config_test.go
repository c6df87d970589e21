package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/pipeline"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper clears global viper state and the env vars the loaders read.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, env := range []string{
		"ZOHO_IN_CLIENT_ID", "ZOHO_IN_CLIENT_SECRET", "ZOHO_US_CLIENT_ID", "ZOHO_US_CLIENT_SECRET",
		"ZOHO_EU_CLIENT_ID", "ZOHO_EU_CLIENT_SECRET", "ZOHO_UK_CLIENT_ID", "ZOHO_UK_CLIENT_SECRET",
		"ZOHO_EU_API_HOST", "ZOHO_EU_ACCOUNTS_HOST", "ZOHO_IN_API_HOST", "ZOHO_IN_ACCOUNTS_HOST",
		"ZOHO_IN_ORG_ID", "ZOHO_US_ORG_ID", "ZOHO_EU_ORG_ID", "ZOHO_UK_ORG_ID",
		"ZOHO_REDIRECT_URL", "ZOHO_USER_EMAIL", "ENCRYPTION_KEY", "DATABASE_URL", "TBEXPORT_DB_PATH",
		"GOOGLE_DRIVE_PARENT_ID", "GOOGLE_SERVICE_ACCOUNT_PATH", "GOOGLE_SERVICE_ACCOUNT_JSON",
		"GOOGLE_DRIVE_CLIENT_ID", "GOOGLE_DRIVE_CLIENT_SECRET", "GOOGLE_DRIVE_REFRESH_TOKEN",
	} {
		t.Setenv(env, "")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("TBEXPORT_TEST_DIR", "/srv/data")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "tilde", in: "~", want: home},
		{name: "tilde prefix", in: "~/tb/db.sqlite", want: filepath.Join(home, "tb/db.sqlite")},
		{name: "env var", in: "$TBEXPORT_TEST_DIR/tb.db", want: "/srv/data/tb.db"},
		{name: "plain", in: "/tmp/tb.db", want: "/tmp/tb.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestLoadZohoConfig(t *testing.T) {
	resetViper(t)
	viper.Set("zoho.in.client_id", "in-id")
	viper.Set("zoho.in.client_secret", "in-secret")
	viper.Set("zoho.eu.api_host", "eu.proxy.test")
	viper.Set("zoho.timeout", "5s")
	t.Setenv("ZOHO_US_CLIENT_ID", "us-id")
	t.Setenv("ZOHO_US_CLIENT_SECRET", "us-secret")
	t.Setenv("ZOHO_REDIRECT_URL", "http://127.0.0.1:9000/cb")

	cfg, err := LoadZohoConfig()
	require.NoError(t, err)

	assert.Equal(t, "in-id", cfg.Clients[model.RegionIN].ClientID)
	assert.Equal(t, "us-secret", cfg.Clients[model.RegionUS].ClientSecret)
	assert.NotContains(t, cfg.Clients, model.RegionUK)
	assert.Equal(t, "http://127.0.0.1:9000/cb", cfg.RedirectURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)

	hosts, err := cfg.HostsFor(model.RegionEU)
	require.NoError(t, err)
	assert.Equal(t, "https://eu.proxy.test", hosts.API)
	assert.Equal(t, "https://accounts.zoho.eu", hosts.Accounts)

	_, err = cfg.CredentialsFor(model.RegionUK)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestLoadZohoConfig_ViperWinsOverEnv(t *testing.T) {
	resetViper(t)
	viper.Set("zoho.in.client_id", "from-viper")
	viper.Set("zoho.in.client_secret", "s")
	t.Setenv("ZOHO_IN_CLIENT_ID", "from-env")

	cfg, err := LoadZohoConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-viper", cfg.Clients[model.RegionIN].ClientID)
}

func TestLoadZohoConfig_HalfClientRejected(t *testing.T) {
	resetViper(t)
	t.Setenv("ZOHO_EU_CLIENT_ID", "only-id")

	_, err := LoadZohoConfig()
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestLoadUserEmail(t *testing.T) {
	resetViper(t)
	assert.Equal(t, DefaultUserEmail, LoadUserEmail())

	t.Setenv("ZOHO_USER_EMAIL", "finance@example.com")
	assert.Equal(t, "finance@example.com", LoadUserEmail())

	viper.Set("zoho.user_email", "ops@example.com")
	assert.Equal(t, "ops@example.com", LoadUserEmail())
}

func TestLoadStorageConfig(t *testing.T) {
	tests := []struct {
		setup       func(t *testing.T)
		wantErr     error
		name        string
		wantBackend string
		wantPath    string
	}{
		{
			name:        "sqlite from key",
			setup:       func(*testing.T) { viper.Set("database.path", "/var/lib/tb/tb.db") },
			wantBackend: "sqlite",
			wantPath:    "/var/lib/tb/tb.db",
		},
		{
			name:        "postgres from env",
			setup:       func(t *testing.T) { t.Setenv("DATABASE_URL", "postgres://u:p@db/tb") },
			wantBackend: "postgres",
		},
		{
			name:    "bad url",
			setup:   func(*testing.T) { viper.Set("database.url", "mysql://db/tb") },
			wantErr: common.ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			tt.setup(t)

			cfg, err := LoadStorageConfig()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBackend, cfg.Backend())
			if tt.wantPath != "" {
				assert.Equal(t, tt.wantPath, cfg.Path)
			}
		})
	}
}

func TestLoadStorageConfig_DefaultPathExpanded(t *testing.T) {
	resetViper(t)
	t.Setenv("HOME", "/home/tb")

	cfg, err := LoadStorageConfig()
	require.NoError(t, err)
	assert.Equal(t, "/home/tb/.local/share/tbexport/tbexport.db", cfg.Path)
}

func TestLoadSealer(t *testing.T) {
	resetViper(t)
	_, err := LoadSealer()
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	t.Setenv("ENCRYPTION_KEY", "secret")
	s, err := LoadSealer()
	require.NoError(t, err)
	sealed, err := s.Seal("rt")
	require.NoError(t, err)

	viper.Set("security.encryption_key", "other")
	other, err := LoadSealer()
	require.NoError(t, err)
	_, err = other.Unseal(sealed)
	assert.Error(t, err)
}

func TestLoadDriveConfig(t *testing.T) {
	tests := []struct {
		setup   func(t *testing.T)
		wantErr error
		name    string
	}{
		{
			name: "service account json from env",
			setup: func(t *testing.T) {
				t.Setenv("GOOGLE_DRIVE_PARENT_ID", "folder")
				t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
			},
		},
		{
			name: "oauth from keys",
			setup: func(*testing.T) {
				viper.Set("drive.parent_id", "folder")
				viper.Set("drive.client_id", "id")
				viper.Set("drive.client_secret", "secret")
				viper.Set("drive.refresh_token", "rt")
			},
		},
		{
			name:    "missing parent",
			setup:   func(t *testing.T) { t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "{}") },
			wantErr: common.ErrMissingConfig,
		},
		{
			name: "two auth methods",
			setup: func(*testing.T) {
				viper.Set("drive.parent_id", "folder")
				viper.Set("drive.service_account_path", "/etc/sa.json")
				viper.Set("drive.client_id", "id")
				viper.Set("drive.client_secret", "secret")
				viper.Set("drive.refresh_token", "rt")
			},
			wantErr: common.ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			tt.setup(t)

			cfg, err := LoadDriveConfig()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "folder", cfg.ParentID)
		})
	}
}

func TestLoadPipelineConfig(t *testing.T) {
	resetViper(t)

	cfg, err := LoadPipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultConfig(), *cfg)

	viper.Set("pipeline.mode", "sheets")
	viper.Set("pipeline.max_depth", 2)
	viper.Set("pipeline.max_sheets", 3)
	viper.Set("pipeline.allow_substring", false)
	viper.Set("pipeline.noisy_patterns", []string{"^meta"})
	viper.Set("pipeline.trial_bonus", 500)
	viper.Set("pipeline.aliases", map[string]any{
		"name": []string{"ledger"},
		"code": []string{"gl_code"},
	})

	cfg, err = LoadPipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeSheets, cfg.Mode)
	assert.Equal(t, 2, cfg.Flatten.MaxDepth)
	assert.Equal(t, 3, cfg.MaxSheets)
	assert.False(t, cfg.Mapping.AllowSubstring)
	assert.Equal(t, []string{"^meta"}, cfg.Flatten.NoisyPatterns)
	assert.Equal(t, 500, cfg.Extract.TrialBonus)
	assert.Equal(t, []string{"ledger"}, cfg.Mapping.Aliases.Name)
	assert.Equal(t, []string{"gl_code"}, cfg.Mapping.Aliases.Code)
}

func TestLoadPipelineConfig_Invalid(t *testing.T) {
	resetViper(t)
	viper.Set("pipeline.mode", "pivot")
	_, err := LoadPipelineConfig()
	assert.Error(t, err)

	resetViper(t)
	viper.Set("pipeline.max_sheets", 0)
	_, err = LoadPipelineConfig()
	assert.Error(t, err)
}

func TestLoadExportConfig(t *testing.T) {
	resetViper(t)
	viper.Set("export.concurrency", 2)
	viper.Set("zoho.user_email", "ops@example.com")

	cfg, err := LoadExportConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "ops@example.com", cfg.UserEmail)

	viper.Set("export.concurrency", 0)
	_, err = LoadExportConfig()
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestLoadOrgIDs(t *testing.T) {
	resetViper(t)
	viper.Set("zoho.in.org_id", "600123")
	t.Setenv("ZOHO_UK_ORG_ID", "700456")

	assert.Equal(t, map[model.Region]string{
		model.RegionIN: "600123",
		model.RegionUK: "700456",
	}, LoadOrgIDs())
}
