package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/pipeline"
	"github.com/Veraticus/trial-balance-export/internal/testutil"
	"github.com/Veraticus/trial-balance-export/internal/zoho"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// testEnv isolates viper and the environment, pointing storage at a temp
// SQLite file. It returns the temp directory.
func testEnv(t *testing.T) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, env := range []string{
		"DATABASE_URL", "TBEXPORT_DB_PATH", "ENCRYPTION_KEY", "ZOHO_USER_EMAIL",
		"ZOHO_IN_CLIENT_ID", "ZOHO_IN_CLIENT_SECRET", "ZOHO_IN_ORG_ID",
		"ZOHO_US_ORG_ID", "ZOHO_EU_ORG_ID", "ZOHO_UK_ORG_ID",
		"GOOGLE_DRIVE_PARENT_ID", "GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_PATH",
	} {
		t.Setenv(env, "")
	}

	dir := t.TempDir()
	viper.Set("database.path", filepath.Join(dir, "tbexport.db"))
	viper.Set("security.encryption_key", testutil.TestSecret)
	return dir
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseOrgFlags(t *testing.T) {
	tests := []struct {
		want    map[model.Region]string
		name    string
		in      []string
		wantErr bool
	}{
		{name: "none", in: nil, want: map[model.Region]string{}},
		{
			name: "several",
			in:   []string{"IN=600123", "uk= 700456 "},
			want: map[model.Region]string{model.RegionIN: "600123", model.RegionUK: "700456"},
		},
		{name: "missing separator", in: []string{"IN600123"}, wantErr: true},
		{name: "empty org", in: []string{"IN="}, wantErr: true},
		{name: "unknown region", in: []string{"AU=1"}, wantErr: true},
		{name: "duplicate region", in: []string{"IN=1", "in=2"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOrgFlags(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportRequests(t *testing.T) {
	now := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		setup      func()
		name       string
		flags      map[string][]string
		wantRegion []model.Region
		wantFrom   string
		wantTo     string
		wantMode   pipeline.Mode
		wantErr    bool
	}{
		{
			name:       "previous month by default, regions in fixed order",
			flags:      map[string][]string{"org": {"UK=2", "IN=1"}},
			wantRegion: []model.Region{model.RegionIN, model.RegionUK},
			wantFrom:   "2024-03-01",
			wantTo:     "2024-03-31",
		},
		{
			name: "explicit period and mode",
			flags: map[string][]string{
				"org": {"US=9"}, "from": {"2024-01-01"}, "to": {"2024-02-29"}, "mode": {"sheets"},
			},
			wantRegion: []model.Region{model.RegionUS},
			wantFrom:   "2024-01-01",
			wantTo:     "2024-02-29",
			wantMode:   pipeline.ModeSheets,
		},
		{
			name:       "orgs from config",
			setup:      func() { viper.Set("zoho.eu.org_id", "55") },
			wantRegion: []model.Region{model.RegionEU},
			wantFrom:   "2024-03-01",
			wantTo:     "2024-03-31",
		},
		{name: "no orgs anywhere", wantErr: true},
		{name: "half a period", flags: map[string][]string{"org": {"IN=1"}, "from": {"2024-01-01"}}, wantErr: true},
		{name: "bad mode", flags: map[string][]string{"org": {"IN=1"}, "mode": {"pivot"}}, wantErr: true},
		{name: "bad prefer", flags: map[string][]string{"org": {"IN=1"}, "prefer": {"pdf"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testEnv(t)
			if tt.setup != nil {
				tt.setup()
			}
			cmd := exportCmd()
			for name, values := range tt.flags {
				for _, v := range values {
					require.NoError(t, cmd.Flags().Set(name, v))
				}
			}

			reqs, err := exportRequests(cmd, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, reqs, len(tt.wantRegion))
			for i, r := range reqs {
				assert.Equal(t, tt.wantRegion[i], r.Region)
				assert.Equal(t, tt.wantFrom, r.From)
				assert.Equal(t, tt.wantTo, r.To)
				assert.Equal(t, tt.wantMode, r.Mode)
				assert.Equal(t, zoho.PreferAuto, r.Prefer)
			}
		})
	}
}

func TestAuthorizationCode(t *testing.T) {
	assert.Equal(t, "1000.abc", authorizationCode(" 1000.abc "))
	assert.Equal(t, "1000.xyz", authorizationCode("http://localhost:8765/callback?state=s&code=1000.xyz"))
	assert.Equal(t, "http://localhost:8765/callback?state=s", authorizationCode("http://localhost:8765/callback?state=s"))
}

func TestConvertOutputPath(t *testing.T) {
	assert.Equal(t, "out/TB_IN_2024-03_RAW.xlsx", convertOutputPath("out/TB_IN_2024-03_RAW.json"))
	assert.Equal(t, "tb_normalized.xlsx", convertOutputPath("tb.XLSX"))
	assert.Equal(t, "noext.xlsx", convertOutputPath("noext"))
}

func TestConvertCmd(t *testing.T) {
	dir := testEnv(t)
	in := filepath.Join(dir, "TB_IN_2024-03_RAW.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"code":0,"trialbalance":[
		{"name":"Cash","account_code":"1000","net_debit_total":1250,"net_credit_total":0}
	]}`), 0600))
	outPath := filepath.Join(dir, "tb.xlsx")

	out, err := execute(t, convertCmd(), in, "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "json → ok")

	wb, err := excelize.OpenFile(outPath)
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	rows, err := wb.GetRows("Trial Balance")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Cash", rows[1][0])
}

func TestConvertCmd_MissingFile(t *testing.T) {
	testEnv(t)
	_, err := execute(t, convertCmd(), "/nonexistent/tb.json")
	assert.Error(t, err)
}

func TestMigrateCmd(t *testing.T) {
	testEnv(t)

	out, err := execute(t, migrateCmd(), "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: sqlite")
	assert.Contains(t, out, "current version: 0")

	out, err = execute(t, migrateCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2")

	out, err = execute(t, migrateCmd(), "--status")
	require.NoError(t, err)
	assert.Contains(t, out, "current version: 2")
}

func TestHistoryAndConnectionsEmpty(t *testing.T) {
	testEnv(t)

	out, err := execute(t, historyCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "No exports recorded yet")

	out, err = execute(t, connectionsCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "No connections yet")

	_, err = execute(t, connectionsCmd(), "delete", "IN")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, versionCmd())
	require.NoError(t, err)
	assert.Equal(t, "tbexport dev\n", out)
}

func TestExportCmd_LocalArchive(t *testing.T) {
	dir := testEnv(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "rt-in", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at-in", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/books/v3/reports/trialbalance", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Zoho-oauthtoken at-in", r.Header.Get("Authorization"))
		assert.Equal(t, "600123", r.URL.Query().Get("organization_id"))
		w.Header().Set("Content-Type", "application/json;charset=UTF-8")
		_, _ = w.Write([]byte(`{"code":0,"trialbalance":[
			{"name":"Cash","account_code":"1000","net_debit_total":1250,"net_credit_total":0}
		]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	viper.Set("zoho.in.client_id", "cid")
	viper.Set("zoho.in.client_secret", "secret")
	viper.Set("zoho.in.api_host", srv.URL)
	viper.Set("zoho.in.accounts_host", srv.URL)
	viper.Set("zoho.user_email", "ops@example.com")

	db := testutil.SetupTestDBAt(t, viper.GetString("database.path"))
	db.SeedConnection("ops@example.com", model.RegionIN, "rt-in")

	outDir := filepath.Join(dir, "out")
	out, err := execute(t, exportCmd(),
		"--org", "IN=600123", "--from", "2024-03-01", "--to", "2024-03-31", "--out-dir", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 of 1 regions")

	assert.FileExists(t, filepath.Join(outDir, "TB_IN_2024-03_RAW.json"))
	assert.FileExists(t, filepath.Join(outDir, "TB_IN_2024-03.xlsx"))

	out, err = execute(t, historyCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "2024-03-01..2024-03-31")
	assert.Contains(t, out, "ok")
}

func TestExportCmd_MissingConnectionFails(t *testing.T) {
	dir := testEnv(t)
	viper.Set("zoho.uk.client_id", "cid")
	viper.Set("zoho.uk.client_secret", "secret")

	out, err := execute(t, exportCmd(), "--org", "UK=1", "--out-dir", filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 regions failed")
	assert.Contains(t, out, "tbexport connect UK")
}
