// Package export runs the end-to-end trial balance export for one or more
// regions: fetch, archive the raw response, convert, archive the workbook,
// record the run.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/pipeline"
	"github.com/Veraticus/trial-balance-export/internal/service"
	"github.com/Veraticus/trial-balance-export/internal/sniff"
	"github.com/Veraticus/trial-balance-export/internal/zoho"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds how many regions export at once.
const DefaultConcurrency = 4

// Upstream is the part of the Zoho client the exporter needs.
type Upstream interface {
	AccessToken(ctx context.Context, region model.Region, refreshToken string) (string, error)
	FetchTrialBalance(ctx context.Context, req zoho.FetchRequest) (*zoho.FetchResult, error)
}

// Unsealer decrypts stored refresh tokens.
type Unsealer interface {
	Unseal(sealed string) (string, error)
}

// Converter turns a raw payload into a workbook.
type Converter interface {
	ProcessMode(payload model.RawPayload, mode pipeline.Mode) (pipeline.Result, error)
}

// Store is the persistence the exporter reads and writes.
type Store interface {
	service.ConnectionStore
	service.RunStore
}

// Config holds the configuration for the export service.
type Config struct {
	UserEmail   string
	Concurrency int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{Concurrency: DefaultConcurrency}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UserEmail) == "" {
		return fmt.Errorf("%w: user email is required", common.ErrMissingConfig)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive", common.ErrInvalidConfig)
	}
	return nil
}

// Deps are the collaborators of a Service.
type Deps struct {
	Upstream  Upstream
	Store     Store
	Unsealer  Unsealer
	Uploader  service.Uploader
	Converter Converter
}

// Service exports trial balances.
type Service struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
	cfg    Config
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger.With("component", "export") }
}

// WithClock replaces the clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an export service.
func NewService(cfg Config, deps Deps, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Upstream == nil || deps.Store == nil || deps.Unsealer == nil || deps.Uploader == nil || deps.Converter == nil {
		return nil, fmt.Errorf("%w: export service is missing a collaborator", common.ErrMissingConfig)
	}

	s := &Service{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default().With("component", "export"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Request asks for one region's trial balance.
type Request struct {
	Region model.Region
	OrgID  string
	From   string
	To     string
	Mode   pipeline.Mode
	Prefer zoho.Prefer
}

// Validate checks the request and returns its period.
func (r Request) Validate() (model.Period, error) {
	if _, err := model.ParseRegion(string(r.Region)); err != nil {
		return model.Period{}, fmt.Errorf("%w: %w", common.ErrInvalidRegion, err)
	}
	if strings.TrimSpace(r.OrgID) == "" {
		return model.Period{}, fmt.Errorf("%w: organization id is required for %s", common.ErrInvalidRequest, r.Region)
	}
	period, err := model.ParsePeriod(r.From, r.To)
	if err != nil {
		return model.Period{}, fmt.Errorf("%w: %w", common.ErrInvalidRequest, err)
	}
	if _, err := pipeline.ParseMode(string(r.Mode)); err != nil {
		return model.Period{}, fmt.Errorf("%w: %w", common.ErrInvalidRequest, err)
	}
	if _, err := zoho.ParsePrefer(string(r.Prefer)); err != nil {
		return model.Period{}, fmt.Errorf("%w: %w", common.ErrInvalidRequest, err)
	}
	return period, nil
}

// Report is what one region's export produced.
type Report struct {
	Err     error
	Raw     *service.UploadedFile
	XLSX    *service.UploadedFile
	Result  *pipeline.Result
	Run     model.ExportRun
	Request Request
}

// OK reports whether the export reached the end with report data.
func (r Report) OK() bool {
	return r.Err == nil && r.Result != nil && r.Result.OK()
}

// RawFileName names the archived upstream response.
func RawFileName(region model.Region, period model.Period, ext string) string {
	return fmt.Sprintf("TB_%s_%s_RAW.%s", region, period.Month(), ext)
}

// WorkbookFileName names the archived normalized workbook.
func WorkbookFileName(region model.Region, period model.Period) string {
	return fmt.Sprintf("TB_%s_%s.xlsx", region, period.Month())
}

// Export runs one region end to end. Every attempt that passes validation
// is recorded, failed or not.
func (s *Service) Export(ctx context.Context, req Request) (*Report, error) {
	period, err := req.Validate()
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Request: req,
		Run: model.ExportRun{
			Region: req.Region,
			OrgID:  req.OrgID,
			From:   period.FromString(),
			To:     period.ToString(),
			Mode:   string(req.Mode),
		},
	}

	logger := s.logger.With("region", req.Region, "org", req.OrgID, "month", period.Month())
	err = s.run(ctx, logger, req, period, rep)
	if err != nil {
		rep.Err = err
		rep.Run.Error = err.Error()
		logger.Error("export failed", "error", err)
	}

	rep.Run.CreatedAt = s.now().UTC()
	if saveErr := s.deps.Store.SaveExportRun(ctx, &rep.Run); saveErr != nil {
		logger.Warn("failed to record export run", "error", saveErr)
	}
	return rep, err
}

func (s *Service) run(ctx context.Context, logger *slog.Logger, req Request, period model.Period, rep *Report) error {
	conn, err := s.deps.Store.GetConnection(ctx, s.cfg.UserEmail, req.Region)
	if err != nil {
		return common.NewUserError(fmt.Sprintf("no Zoho connection for %s; run `tbexport connect %s`", req.Region, req.Region), err)
	}

	refreshToken, err := s.deps.Unsealer.Unseal(conn.RefreshTokenSealed)
	if err != nil {
		return fmt.Errorf("failed to unseal refresh token for %s: %w", req.Region, err)
	}

	accessToken, err := s.deps.Upstream.AccessToken(ctx, req.Region, refreshToken)
	if err != nil {
		return err
	}

	fetched, err := s.deps.Upstream.FetchTrialBalance(ctx, zoho.FetchRequest{
		Region:      req.Region,
		OrgID:       req.OrgID,
		Period:      period,
		AccessToken: accessToken,
		Prefer:      req.Prefer,
	})
	if err != nil {
		return err
	}
	rep.Run.Variant = fetched.Variant

	guess := sniff.Sniff(fetched.Payload.Body, fetched.Payload.ContentType, fetched.Payload.ContentDisposition)
	raw, err := s.deps.Uploader.Upload(ctx, service.UploadFile{
		Name:     RawFileName(req.Region, period, string(guess.Format)),
		MIMEType: guess.MIME,
		Data:     fetched.Payload.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to archive raw response: %w", err)
	}
	rep.Raw = raw
	rep.Run.RawFileID = raw.ID

	res, err := s.deps.Converter.ProcessMode(fetched.Payload, req.Mode)
	if err != nil {
		return fmt.Errorf("failed to build workbook: %w", err)
	}
	rep.Result = &res
	rep.Run.Mode = string(res.Mode)
	rep.Run.SourceType = string(res.SourceType)
	rep.Run.Outcome = string(res.Outcome)
	rep.Run.Rows = res.Rows()

	xlsx, err := s.deps.Uploader.Upload(ctx, service.UploadFile{
		Name:     WorkbookFileName(req.Region, period),
		MIMEType: sniff.MIMEXLSX,
		Data:     res.Workbook,
	})
	if err != nil {
		return fmt.Errorf("failed to archive workbook: %w", err)
	}
	rep.XLSX = xlsx
	rep.Run.XLSXFileID = xlsx.ID
	rep.Run.XLSXLink = xlsx.Link

	logger.Info("export complete",
		"variant", fetched.Variant,
		"raw_id", raw.ID,
		"xlsx_id", xlsx.ID,
		"summary", pipeline.Describe(res))
	return nil
}

// ExportAll runs every request with bounded concurrency. A failed region
// does not stop the others. Reports come back in request order; onDone is
// called once per request, never concurrently.
func (s *Service) ExportAll(ctx context.Context, reqs []Request, onDone func(Report)) []Report {
	reports := make([]Report, len(reqs))

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(s.cfg.Concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			rep, err := s.Export(ctx, req)
			if rep == nil {
				rep = &Report{Request: req, Err: err}
			}
			reports[i] = *rep

			if onDone != nil {
				mu.Lock()
				onDone(*rep)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return reports
}
