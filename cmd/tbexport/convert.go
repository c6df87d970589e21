package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/trial-balance-export/internal/cli"
	"github.com/Veraticus/trial-balance-export/internal/config"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/pipeline"
	"github.com/spf13/cobra"
)

func convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Normalize a saved report response into a workbook",
		Long: `Run a previously archived response (for example a TB_*_RAW file) through the
normalization pipeline without contacting Zoho or Drive.

The file name is offered to format detection as if it were the upstream
Content-Disposition; pass --content-type to replay the original header too.`,
		Args: cobra.ExactArgs(1),
		RunE: runConvert,
	}

	cmd.Flags().String("content-type", "", "Content-Type the response was served with")
	cmd.Flags().String("content-disposition", "", "Content-Disposition header (default: the file name)")
	cmd.Flags().String("mode", "", "Workbook layout: canonical or sheets")
	cmd.Flags().StringP("output", "o", "", "Output workbook path (default: <file>.xlsx)")

	return cmd
}

func runConvert(cmd *cobra.Command, args []string) error {
	in := args[0]
	contentType, _ := cmd.Flags().GetString("content-type")
	disposition, _ := cmd.Flags().GetString("content-disposition")
	modeFlag, _ := cmd.Flags().GetString("mode")
	out, _ := cmd.Flags().GetString("output")

	body, err := os.ReadFile(in) //nolint:gosec
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", in, err)
	}

	var mode pipeline.Mode
	if modeFlag != "" {
		if mode, err = pipeline.ParseMode(modeFlag); err != nil {
			return err
		}
	}
	if disposition == "" {
		disposition = fmt.Sprintf("attachment; filename=%q", filepath.Base(in))
	}
	if out == "" {
		out = convertOutputPath(in)
	}

	pcfg, err := config.LoadPipelineConfig()
	if err != nil {
		return err
	}
	processor, err := pipeline.New(*pcfg)
	if err != nil {
		return err
	}

	res, err := processor.ProcessMode(model.RawPayload{
		ContentType:        contentType,
		ContentDisposition: disposition,
		Body:               body,
	}, mode)
	if err != nil {
		return err
	}

	if err := os.WriteFile(out, res.Workbook, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	msg := fmt.Sprintf("%s → %s: %s", filepath.Base(in), out, pipeline.Describe(res))
	if res.OK() {
		msg = cli.FormatSuccess(msg)
	} else {
		msg = cli.FormatWarning(msg)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
	return err
}

// convertOutputPath derives the workbook path from the input path without
// overwriting an input that is itself a workbook.
func convertOutputPath(in string) string {
	base := strings.TrimSuffix(in, filepath.Ext(in))
	if strings.EqualFold(filepath.Ext(in), ".xlsx") {
		return base + "_normalized.xlsx"
	}
	return base + ".xlsx"
}
