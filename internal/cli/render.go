package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/export"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/pipeline"
	"github.com/Veraticus/trial-balance-export/internal/zoho"
	"github.com/charmbracelet/lipgloss"
)

// RenderTable lays rows out in aligned columns under a bold header.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			// The last column is not padded so lines carry no trailing space.
			if i == len(widths)-1 {
				parts[i] = style.UnsetPaddingRight().Render(cell)
				continue
			}
			parts[i] = style.Width(widths[i] + 2).Render(cell)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	var sb strings.Builder
	sb.WriteString(line(headers, TableHeaderStyle))
	for _, row := range rows {
		sb.WriteString("\n")
		sb.WriteString(line(row, TableCellStyle))
	}
	return sb.String()
}

// RenderReports summarizes a multi-region export.
func RenderReports(reports []export.Report) string {
	rows := make([][]string, 0, len(reports))
	failed := 0
	for _, r := range reports {
		status := SuccessStyle.Render(SuccessIcon + " ok")
		detail := ""
		switch {
		case r.Err != nil:
			failed++
			status = ErrorStyle.Render(ErrorIcon + " failed")
			detail = r.Err.Error()
		case r.Result != nil && !r.Result.OK():
			status = WarningStyle.Render(WarningIcon + " " + string(r.Result.Outcome))
			detail = pipeline.Describe(*r.Result)
		case r.Result != nil:
			detail = pipeline.Describe(*r.Result)
		}

		link := ""
		if r.XLSX != nil {
			link = r.XLSX.Link
		}
		rows = append(rows, []string{string(r.Request.Region), r.Request.OrgID, status, detail, link})
	}

	title := fmt.Sprintf("Exported %d of %d regions", len(reports)-failed, len(reports))
	return RenderBox(title, RenderTable([]string{"REGION", "ORG", "STATUS", "DETAIL", "WORKBOOK"}, rows))
}

// RenderConnections lists stored connections without their tokens.
func RenderConnections(conns []model.Connection) string {
	if len(conns) == 0 {
		return FormatInfo("No connections yet. Run: tbexport connect <region>")
	}
	rows := make([][]string, 0, len(conns))
	for _, c := range conns {
		rows = append(rows, []string{
			string(c.Region), c.UserEmail, c.DataCenter, c.APIHost, formatTime(c.UpdatedAt),
		})
	}
	return RenderTable([]string{"REGION", "USER", "DC", "API HOST", "UPDATED"}, rows)
}

// RenderRuns lists recorded exports, newest first.
func RenderRuns(runs []model.ExportRun) string {
	if len(runs) == 0 {
		return FormatInfo("No exports recorded yet")
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		outcome := r.Outcome
		if r.Failed() {
			outcome = ErrorStyle.Render("error: " + clip(r.Error, 60))
		}
		rows = append(rows, []string{
			formatTime(r.CreatedAt), string(r.Region), r.OrgID, r.From + ".." + r.To,
			r.SourceType, outcome, fmt.Sprintf("%d", r.Rows), r.XLSXFileID,
		})
	}
	return RenderTable([]string{"WHEN", "REGION", "ORG", "PERIOD", "SOURCE", "OUTCOME", "ROWS", "XLSX"}, rows)
}

// RenderOrganizations lists the organizations a region's token can see.
func RenderOrganizations(region model.Region, orgs []zoho.Organization) string {
	if len(orgs) == 0 {
		return FormatWarning(fmt.Sprintf("No organizations visible in %s", region))
	}
	rows := make([][]string, 0, len(orgs))
	for _, o := range orgs {
		def := ""
		if o.IsDefault {
			def = SuccessIcon
		}
		rows = append(rows, []string{o.ID, o.Name, o.CurrencyCode, def})
	}
	return RenderTable([]string{"ORG ID", "NAME", "CURRENCY", "DEFAULT"}, rows)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
