package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/archive"
	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/pipeline"
	"github.com/Veraticus/trial-balance-export/internal/seal"
	"github.com/Veraticus/trial-balance-export/internal/testutil"
	"github.com/Veraticus/trial-balance-export/internal/zoho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testEmail = "ops@example.com"

type fakeUpstream struct {
	payloads map[model.Region]model.RawPayload
	fetchErr map[model.Region]error
	requests []zoho.FetchRequest
	mu       sync.Mutex
}

func (f *fakeUpstream) AccessToken(_ context.Context, region model.Region, refreshToken string) (string, error) {
	if refreshToken != "rt-"+string(region) {
		return "", fmt.Errorf("%w: unexpected refresh token %q", common.ErrTokenRefresh, refreshToken)
	}
	return "at-" + string(region), nil
}

func (f *fakeUpstream) FetchTrialBalance(_ context.Context, req zoho.FetchRequest) (*zoho.FetchResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if req.AccessToken != "at-"+string(req.Region) {
		return nil, errors.New("wrong access token")
	}
	if err := f.fetchErr[req.Region]; err != nil {
		return nil, err
	}
	return &zoho.FetchResult{Variant: "json", Payload: f.payloads[req.Region], Status: 200}, nil
}

type fixture struct {
	svc      *Service
	db       *testutil.TestDB
	upstream *fakeUpstream
	uploader *archive.MockUploader
}

var testNow = time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, regions ...model.Region) *fixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	for _, r := range regions {
		db.SeedConnection(testEmail, r, "rt-"+string(r))
	}

	proc, err := pipeline.New(pipeline.DefaultConfig())
	require.NoError(t, err)

	up := &fakeUpstream{
		payloads: map[model.Region]model.RawPayload{},
		fetchErr: map[model.Region]error{},
	}
	uploader := archive.NewMockUploader()

	cfg := DefaultConfig()
	cfg.UserEmail = testEmail
	svc, err := NewService(cfg, Deps{
		Upstream:  up,
		Store:     db.Storage,
		Unsealer:  db.Sealer,
		Uploader:  uploader,
		Converter: proc,
	}, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	return &fixture{svc: svc, db: db, upstream: up, uploader: uploader}
}

func (f *fixture) runs(t *testing.T) []model.ExportRun {
	t.Helper()
	runs, err := f.db.Storage.ListExportRuns(context.Background(), 0)
	require.NoError(t, err)
	return runs
}

func marchRequest(region model.Region) Request {
	return Request{Region: region, OrgID: "600123", From: "2024-03-01", To: "2024-03-31"}
}

func TestService_ExportJSON(t *testing.T) {
	f := newFixture(t, model.RegionIN)
	f.upstream.payloads[model.RegionIN] = testutil.JSONPayload(testutil.TrialBalanceJSON)

	rep, err := f.svc.Export(context.Background(), marchRequest(model.RegionIN))
	require.NoError(t, err)
	assert.True(t, rep.OK())

	assert.Equal(t, []string{"TB_IN_2024-03_RAW.json", "TB_IN_2024-03.xlsx"}, f.uploader.Names())
	calls := f.uploader.GetUploadCalls()
	assert.Equal(t, "application/json", calls[0].File.MIMEType)
	assert.Equal(t, testutil.TrialBalanceJSON, string(calls[0].File.Data))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", calls[1].File.MIMEType)

	wb, err := excelize.OpenReader(bytes.NewReader(calls[1].File.Data))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	assert.Equal(t, []string{"Trial Balance"}, wb.GetSheetList())
	rows, err := wb.GetRows("Trial Balance")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Cash", rows[1][0])
	assert.Equal(t, "1000", rows[1][1])

	runs := f.runs(t)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "ok", run.Outcome)
	assert.Equal(t, "json", run.SourceType)
	assert.Equal(t, "canonical", run.Mode)
	assert.Equal(t, "json", run.Variant)
	assert.Equal(t, 2, run.Rows)
	assert.Equal(t, "mock-1", run.RawFileID)
	assert.Equal(t, "mock-2", run.XLSXFileID)
	assert.Equal(t, "https://drive.example/TB_IN_2024-03.xlsx", run.XLSXLink)
	assert.Equal(t, "2024-03-01", run.From)
	assert.True(t, run.CreatedAt.Equal(testNow), "created at %s", run.CreatedAt)
	assert.Empty(t, run.Error)

	require.Len(t, f.upstream.requests, 1)
	assert.Equal(t, "600123", f.upstream.requests[0].OrgID)
	assert.Equal(t, "2024-03-31", f.upstream.requests[0].Period.ToString())
}

func TestService_ExportSpreadsheetKeepsRawExtension(t *testing.T) {
	f := newFixture(t, model.RegionUS)
	f.upstream.payloads[model.RegionUS] = testutil.SpreadsheetPayload(t, []any{"Cash", "1000", "1250", ""})

	rep, err := f.svc.Export(context.Background(), marchRequest(model.RegionUS))
	require.NoError(t, err)
	assert.Equal(t, []string{"TB_US_2024-03_RAW.xlsx", "TB_US_2024-03.xlsx"}, f.uploader.Names())
	assert.Equal(t, "xlsx", rep.Run.SourceType)
	assert.Equal(t, 1, rep.Run.Rows)
}

func TestService_ExportUpstreamErrorStillArchives(t *testing.T) {
	f := newFixture(t, model.RegionEU)
	f.upstream.payloads[model.RegionEU] = testutil.JSONPayload(testutil.ErrorEnvelopeJSON)

	rep, err := f.svc.Export(context.Background(), marchRequest(model.RegionEU))
	require.NoError(t, err)
	assert.False(t, rep.OK())
	assert.Len(t, f.uploader.Names(), 2)
	assert.Equal(t, "upstream_error", f.runs(t)[0].Outcome)
}

func TestService_ExportFailures(t *testing.T) {
	tests := []struct {
		setup   func(t *testing.T, f *fixture)
		wantErr error
		name    string
	}{
		{
			name: "corrupt sealed token",
			setup: func(t *testing.T, f *fixture) {
				hosts, err := zoho.DefaultHosts(model.RegionIN)
				require.NoError(t, err)
				conn := hosts.NewConnection(testEmail, model.RegionIN, "!!", testNow)
				require.NoError(t, f.db.Storage.SaveConnection(context.Background(), &conn))
			},
			wantErr: seal.ErrMalformed,
		},
		{
			name: "token refresh rejected",
			setup: func(_ *testing.T, f *fixture) {
				f.db.SeedConnection(testEmail, model.RegionIN, "revoked")
			},
			wantErr: common.ErrTokenRefresh,
		},
		{
			name: "every variant rejected",
			setup: func(_ *testing.T, f *fixture) {
				f.upstream.fetchErr[model.RegionIN] = &zoho.FetchError{Tried: []string{"u1"}, Status: 400, Detail: "Invalid URL Passed"}
			},
			wantErr: common.ErrUpstreamRequest,
		},
		{
			name:  "raw upload fails",
			setup: func(_ *testing.T, f *fixture) { f.uploader.SetUploadError(errors.New("quota exceeded")) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, model.RegionIN)
			f.upstream.payloads[model.RegionIN] = testutil.JSONPayload(testutil.TrialBalanceJSON)
			tt.setup(t, f)

			rep, err := f.svc.Export(context.Background(), marchRequest(model.RegionIN))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			require.NotNil(t, rep)
			assert.False(t, rep.OK())

			runs := f.runs(t)
			require.Len(t, runs, 1)
			assert.NotEmpty(t, runs[0].Error)
			assert.Empty(t, runs[0].XLSXFileID)
		})
	}
}

func TestService_ExportMissingConnection(t *testing.T) {
	f := newFixture(t)
	rep, err := f.svc.Export(context.Background(), marchRequest(model.RegionUK))

	assert.ErrorIs(t, err, common.ErrNotFound)
	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.UserMessage, "tbexport connect UK")

	require.NotNil(t, rep)
	assert.Empty(t, f.uploader.Names())
	assert.Len(t, f.runs(t), 1)
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		wantErr error
		mutate  func(r *Request)
		name    string
	}{
		{name: "valid", mutate: func(*Request) {}},
		{name: "sheets mode and json preference", mutate: func(r *Request) { r.Mode, r.Prefer = pipeline.ModeSheets, zoho.PreferJSON }},
		{name: "bad region", mutate: func(r *Request) { r.Region = "AU" }, wantErr: common.ErrInvalidRegion},
		{name: "blank org", mutate: func(r *Request) { r.OrgID = "  " }, wantErr: common.ErrInvalidRequest},
		{name: "bad date", mutate: func(r *Request) { r.From = "2024/03/01" }, wantErr: common.ErrInvalidRequest},
		{name: "reversed period", mutate: func(r *Request) { r.From, r.To = "2024-03-31", "2024-03-01" }, wantErr: common.ErrInvalidRequest},
		{name: "bad mode", mutate: func(r *Request) { r.Mode = "pivot" }, wantErr: common.ErrInvalidRequest},
		{name: "bad preference", mutate: func(r *Request) { r.Prefer = "pdf" }, wantErr: common.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := marchRequest(model.RegionIN)
			tt.mutate(&req)
			_, err := req.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_ExportInvalidRequestRecordsNothing(t *testing.T) {
	f := newFixture(t, model.RegionIN)
	req := marchRequest(model.RegionIN)
	req.OrgID = ""

	rep, err := f.svc.Export(context.Background(), req)
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
	assert.Nil(t, rep)
	assert.Empty(t, f.runs(t))
	assert.Empty(t, f.uploader.Names())
}

func TestService_ExportAll(t *testing.T) {
	f := newFixture(t, model.RegionIN, model.RegionEU, model.RegionUK)
	for _, r := range []model.Region{model.RegionIN, model.RegionEU, model.RegionUK} {
		f.upstream.payloads[r] = testutil.JSONPayload(testutil.TrialBalanceJSON)
	}
	f.upstream.fetchErr[model.RegionEU] = &zoho.FetchError{Status: 401, Detail: "unauthorized"}

	reqs := []Request{
		marchRequest(model.RegionIN),
		marchRequest(model.RegionUS),
		marchRequest(model.RegionEU),
		marchRequest(model.RegionUK),
	}

	var (
		mu   sync.Mutex
		done []model.Region
	)
	reports := f.svc.ExportAll(context.Background(), reqs, func(r Report) {
		mu.Lock()
		done = append(done, r.Request.Region)
		mu.Unlock()
	})

	require.Len(t, reports, 4)
	for i, rep := range reports {
		assert.Equal(t, reqs[i].Region, rep.Request.Region, "reports keep request order")
	}
	assert.True(t, reports[0].OK())
	assert.ErrorIs(t, reports[1].Err, common.ErrNotFound)
	assert.ErrorIs(t, reports[2].Err, common.ErrUpstreamRequest)
	assert.True(t, reports[3].OK())
	assert.Len(t, done, 4)

	names := f.uploader.Names()
	sort.Strings(names)
	assert.Equal(t, []string{
		"TB_IN_2024-03.xlsx", "TB_IN_2024-03_RAW.json",
		"TB_UK_2024-03.xlsx", "TB_UK_2024-03_RAW.json",
	}, names)
	assert.Len(t, f.runs(t), 4)
}

func TestService_ExportAllInvalidRequest(t *testing.T) {
	f := newFixture(t)
	reports := f.svc.ExportAll(context.Background(), []Request{{Region: "AU"}}, nil)

	require.Len(t, reports, 1)
	assert.ErrorIs(t, reports[0].Err, common.ErrInvalidRegion)
	assert.Equal(t, model.Region("AU"), reports[0].Request.Region)
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(DefaultConfig(), Deps{})
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	cfg := DefaultConfig()
	cfg.UserEmail = testEmail
	_, err = NewService(cfg, Deps{})
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	cfg.Concurrency = 0
	_, err = NewService(cfg, Deps{})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestFileNames(t *testing.T) {
	p, err := model.ParsePeriod("2024-03-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, "TB_IN_2024-03_RAW.pdf", RawFileName(model.RegionIN, p, "pdf"))
	assert.Equal(t, "TB_UK_2024-03.xlsx", WorkbookFileName(model.RegionUK, p))
}
