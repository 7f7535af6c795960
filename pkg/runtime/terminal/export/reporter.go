package export

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
)

type TableConfig struct {
	ControlWidth  int
	ResourceWidth int
	StatusWidth   int
	RiskWidth     int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		ControlWidth:  14,
		ResourceWidth: 48,
		StatusWidth:   8,
		RiskWidth:     10,
	}
}

type Reporter struct {
	writer io.Writer
	config TableConfig
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Reporter{
		writer: writer,
		config: DefaultTableConfig(),
	}
}

func (c *Reporter) funcMap() template.FuncMap {
	return template.FuncMap{
		"formatRow": func(control string, resource string, status string, risk string) string {
			return fmt.Sprintf("| %-*s | %-*s | %-*s | %-*s |",
				c.config.ControlWidth, control,
				c.config.ResourceWidth, truncate(resource, c.config.ResourceWidth),
				c.config.StatusWidth, status,
				c.config.RiskWidth, risk)
		},
		"separator": func() string {
			return fmt.Sprintf("+%s+%s+%s+%s+",
				strings.Repeat("-", c.config.ControlWidth+2),
				strings.Repeat("-", c.config.ResourceWidth+2),
				strings.Repeat("-", c.config.StatusWidth+2),
				strings.Repeat("-", c.config.RiskWidth+2))
		},
	}
}

// HandleScan renders a scan summary and its failing findings as a table.
func (c *Reporter) HandleScan(summary domain.ScanSummary, failing []domain.Finding) error {
	tmpl := `
Scan {{.Summary.ScanID}} ({{.Summary.Account}})
Controls run: {{.Summary.ControlsRun}}  Pass: {{.Summary.Pass}}  Fail: {{.Summary.Fail}}  Error: {{.Summary.Error}}
{{if .Failing}}
{{separator}}
{{formatRow "Control" "Resource" "Status" "Risk"}}
{{separator}}
{{range .Failing}}{{formatRow .ControlID .ResourceID (printf "%s" .Status) (printf "%s" .RiskLevel)}}
{{end}}{{separator}}
{{else}}
No failing findings.
{{end}}
`
	t, err := template.New("scan").Funcs(c.funcMap()).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, struct {
		Summary domain.ScanSummary
		Failing []domain.Finding
	}{Summary: summary, Failing: failing})
}

// HandleScore renders a compliance score.
func (c *Reporter) HandleScore(score domain.ComplianceScore) error {
	tmpl := `
Compliance score for {{.Account}}: {{printf "%.1f" .Score}}%
Total findings: {{.Total}}  Pass: {{.Pass}}  Fail: {{.Fail}}  Fixed: {{.Fixed}}  Manual: {{.Manual}}  Error: {{.Error}}
{{if .BySeverity}}Open findings by severity:
{{range $severity, $count := .BySeverity}}  {{$severity}}: {{$count}}
{{end}}{{end}}`
	t, err := template.New("score").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, score)
}

// HandleControls renders the control catalog.
func (c *Reporter) HandleControls(metas []domain.ControlMeta) error {
	tmpl := `
{{range .}}{{.ID}}  [{{.Provider}}/{{.Severity}}]  {{.Title}}{{if .AutoRemediable}}  (auto-remediable, {{.RemediationRisk}} risk){{end}}
    {{.Description}}
{{end}}`
	t, err := template.New("controls").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, metas)
}

// HandleRemediationPlan renders the outcome of simulated fixes.
func (c *Reporter) HandleRemediationPlan(results []domain.RemediationResult) error {
	tmpl := `
Remediation plan ({{len .}} findings):
{{range .}}  {{.ControlID}} {{.ResourceID}}: {{if .Success}}would fix{{else}}cannot fix{{end}}{{if .Message}} ({{.Message}}){{end}}
{{end}}`
	t, err := template.New("plan").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, results)
}

// HandleFindings renders findings as a table.
func (c *Reporter) HandleFindings(findings []domain.Finding) error {
	tmpl := `
{{if .}}{{separator}}
{{formatRow "Control" "Resource" "Status" "Risk"}}
{{separator}}
{{range .}}{{formatRow .ControlID .ResourceID (printf "%s" .Status) (printf "%s" .RiskLevel)}}
{{end}}{{separator}}
{{else}}
No findings.
{{end}}`
	t, err := template.New("findings").Funcs(c.funcMap()).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, findings)
}

// HandleAudit renders ledger entries in chronological order.
func (c *Reporter) HandleAudit(entries []domain.AuditEntry) error {
	tmpl := `
{{range .}}{{.Timestamp.Format "2006-01-02T15:04:05Z07:00"}}  {{.EventType}}/{{.Outcome}}  {{.Actor}}  {{.ControlID}} {{.ResourceID}}{{if .ErrorMessage}}  error: {{.ErrorMessage}}{{end}}
{{end}}`
	t, err := template.New("audit").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, entries)
}

// HandleReportRef prints where a generated report landed.
func (c *Reporter) HandleReportRef(ref string) error {
	_, err := fmt.Fprintf(c.writer, "Report stored at %s\n", ref)
	return err
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}
