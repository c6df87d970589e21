package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/archive"
	"github.com/Veraticus/trial-balance-export/internal/cli"
	"github.com/Veraticus/trial-balance-export/internal/config"
	"github.com/Veraticus/trial-balance-export/internal/export"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/pipeline"
	"github.com/Veraticus/trial-balance-export/internal/service"
	"github.com/Veraticus/trial-balance-export/internal/zoho"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export trial balances for one or more regions",
		Long: `Fetch the trial balance for each requested region, archive the raw response
as TB_<REGION>_<YYYY-MM>_RAW.<ext> and the normalized workbook as
TB_<REGION>_<YYYY-MM>.xlsx, and record the run.

Without --org every region with a configured zoho.<region>.org_id is exported.
The period defaults to the previous calendar month.`,
		Example: `  tbexport export --org IN=600123 --org UK=700456
  tbexport export --org US=800789 --from 2024-01-01 --to 2024-03-31 --mode sheets
  tbexport export --out-dir ./out`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}

	cmd.Flags().StringArray("org", nil, "REGION=ORG_ID pair, repeatable")
	cmd.Flags().String("from", "", "Period start, YYYY-MM-DD")
	cmd.Flags().String("to", "", "Period end, YYYY-MM-DD")
	cmd.Flags().String("mode", "", "Workbook layout: canonical or sheets")
	cmd.Flags().String("prefer", "auto", "Upstream format preference: auto, xlsx or json")
	cmd.Flags().String("out-dir", "", "Write files to this directory instead of Google Drive")
	cmd.Flags().Int("concurrency", export.DefaultConcurrency, "Regions exported at once")

	_ = viper.BindPFlag("export.concurrency", cmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("export.out_dir", cmd.Flags().Lookup("out-dir"))

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	reqs, err := exportRequests(cmd, time.Now())
	if err != nil {
		return err
	}

	svc, cleanup, err := initExportService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("Starting export", "regions", len(reqs), "from", reqs[0].From, "to", reqs[0].To)

	progress := cli.NewProgress(os.Stderr, len(reqs), "Exporting")
	reports := svc.ExportAll(ctx, reqs, func(r export.Report) {
		progress.Step(string(r.Request.Region))
	})

	if _, err := fmt.Fprintln(cmd.OutOrStdout(), cli.RenderReports(reports)); err != nil {
		return err
	}

	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d regions failed", failed, len(reports))
	}
	return nil
}

// exportRequests builds one request per region from flags and configuration.
func exportRequests(cmd *cobra.Command, now time.Time) ([]export.Request, error) {
	orgFlags, _ := cmd.Flags().GetStringArray("org")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	modeFlag, _ := cmd.Flags().GetString("mode")
	preferFlag, _ := cmd.Flags().GetString("prefer")

	orgs, err := parseOrgFlags(orgFlags)
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		orgs = config.LoadOrgIDs()
	}
	if len(orgs) == 0 {
		return nil, fmt.Errorf("no organizations to export: pass --org REGION=ORG_ID or set zoho.<region>.org_id")
	}

	if from == "" && to == "" {
		p := model.PreviousMonth(now)
		from, to = p.FromString(), p.ToString()
	} else if from == "" || to == "" {
		return nil, fmt.Errorf("--from and --to must be given together")
	}

	// An empty mode defers to pipeline.mode.
	var mode pipeline.Mode
	if modeFlag != "" {
		if mode, err = pipeline.ParseMode(modeFlag); err != nil {
			return nil, err
		}
	}
	prefer, err := zoho.ParsePrefer(preferFlag)
	if err != nil {
		return nil, err
	}

	regions := make([]model.Region, 0, len(orgs))
	for r := range orgs {
		regions = append(regions, r)
	}
	sort.Slice(regions, func(i, j int) bool { return regionOrder(regions[i]) < regionOrder(regions[j]) })

	reqs := make([]export.Request, 0, len(regions))
	for _, r := range regions {
		reqs = append(reqs, export.Request{
			Region: r,
			OrgID:  orgs[r],
			From:   from,
			To:     to,
			Mode:   mode,
			Prefer: prefer,
		})
	}
	return reqs, nil
}

func regionOrder(r model.Region) int {
	for i, known := range model.Regions() {
		if known == r {
			return i
		}
	}
	return len(model.Regions())
}

// initExportService wires storage, credentials, the Zoho client, the
// pipeline and the archive into an export service.
func initExportService(ctx context.Context) (*export.Service, func(), error) {
	client, _, err := initZoho()
	if err != nil {
		return nil, nil, err
	}
	sealer, err := config.LoadSealer()
	if err != nil {
		return nil, nil, err
	}
	pcfg, err := config.LoadPipelineConfig()
	if err != nil {
		return nil, nil, err
	}
	processor, err := pipeline.New(*pcfg)
	if err != nil {
		return nil, nil, err
	}
	ecfg, err := config.LoadExportConfig()
	if err != nil {
		return nil, nil, err
	}
	uploader, err := initUploader(ctx)
	if err != nil {
		return nil, nil, err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return nil, nil, err
	}

	svc, err := export.NewService(*ecfg, export.Deps{
		Upstream:  client,
		Store:     store,
		Unsealer:  sealer,
		Uploader:  uploader,
		Converter: processor,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, func() { _ = store.Close() }, nil
}

// initUploader archives locally when an output directory is set, to Drive otherwise.
func initUploader(ctx context.Context) (service.Uploader, error) {
	if dir := viper.GetString("export.out_dir"); dir != "" {
		return archive.NewLocalUploader(config.ExpandPath(dir), slog.Default())
	}

	dcfg, err := config.LoadDriveConfig()
	if err != nil {
		return nil, fmt.Errorf("%w (or pass --out-dir to write files locally)", err)
	}
	return archive.NewDriveUploader(ctx, *dcfg, slog.Default())
}
