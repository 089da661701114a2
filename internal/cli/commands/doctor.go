package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/sqlext/internal/cli/config"
	"github.com/leapstack-labs/sqlext/internal/engine"
	"github.com/spf13/cobra"
)

// Check statuses.
const (
	statusPass  = "pass"
	statusWarn  = "warn"
	statusError = "error"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the project configuration, macros and database",
		Long: `Check that the project is ready to use.

The doctor command verifies:
- Configuration (config file, schema replacement rules)
- Macros (macros directory, macro library loading)
- Database (target configuration and connectivity)

It exits with an error when any check fails.`,
		Example: `  # Run health check
  sqlext doctor

  # Output as JSON
  sqlext doctor --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd)
		},
	}

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	HealthChecks []HealthCheck `json:"health_checks"`
	Score        int           `json:"score"`
	IssueCount   int           `json:"issue_count"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name   string `json:"name"`
	Group  string `json:"group"`
	Status string `json:"status"` // "pass", "warn", "error"
	Detail string `json:"detail,omitempty"`
}

func runDoctor(cmd *cobra.Command) error {
	cfg, err := activeConfig()
	if err != nil {
		return err
	}
	logger := config.GetLogger(commandCtx(cmd))

	var checks []HealthCheck
	add := func(group, name, status, detail string) {
		checks = append(checks, HealthCheck{Name: name, Group: group, Status: status, Detail: detail})
	}

	// Configuration
	if used := config.GetConfigFileUsed(); used != "" {
		add("configuration", "Config file", statusPass, used)
	} else {
		add("configuration", "Config file", statusWarn, "no sqlext.yaml found, using defaults")
	}
	add("configuration", "Schema replacement", statusPass, fmt.Sprintf("%d rule(s)", len(cfg.SchemaReplacement)))

	// Macros
	if cfg.MacrosDirExists() {
		add("macros", "Macros directory", statusPass, cfg.MacrosDir)
	} else {
		add("macros", "Macros directory", statusWarn, cfg.MacrosDir+" does not exist")
	}

	eng, err := createEngine(cfg, logger)
	if err != nil {
		add("macros", "Macro library", statusError, err.Error())
	} else {
		defer func() { _ = eng.Close() }()
		detail := fmt.Sprintf("%d entries", eng.Registry().Len())
		if ns := eng.Namespaces(); len(ns) > 0 {
			detail += ", namespaces: " + strings.Join(ns, ", ")
		}
		add("macros", "Macro library", statusPass, detail)
	}

	// Database
	switch {
	case cfg.Target == nil:
		add("database", "Target", statusWarn, "no target configured")
	case eng == nil:
		add("database", "Connection", statusError, "skipped: macro library failed to load")
	default:
		add("database", "Target", statusPass, cfg.Target.Type)
		if err := pingTarget(commandCtx(cmd), eng); err != nil {
			add("database", "Connection", statusError, err.Error())
		} else {
			add("database", "Connection", statusPass, "connected")
		}
	}

	out := buildDoctorOutput(checks)
	if cfg.OutputFormat == formatJSON {
		if err := renderJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		renderDoctorText(cmd.OutOrStdout(), out)
	}

	if n := countStatus(checks, statusError); n > 0 {
		return fmt.Errorf("doctor found %d failing check(s)", n)
	}
	return nil
}

func pingTarget(ctx context.Context, eng *engine.Engine) error {
	database, err := eng.DB(ctx)
	if err != nil {
		return err
	}
	_, err = database.Scalar(ctx, "select 1")
	return err
}

func buildDoctorOutput(checks []HealthCheck) *DoctorOutput {
	return &DoctorOutput{
		HealthChecks: checks,
		Score:        calculateHealthScore(checks),
		IssueCount:   countStatus(checks, statusWarn) + countStatus(checks, statusError),
	}
}

// calculateHealthScore starts at 100 and deducts 10 per warning and 25 per
// failure, never going below zero.
func calculateHealthScore(checks []HealthCheck) int {
	score := 100
	for _, c := range checks {
		switch c.Status {
		case statusWarn:
			score -= 10
		case statusError:
			score -= 25
		}
	}
	return max(score, 0)
}

func countStatus(checks []HealthCheck, status string) int {
	n := 0
	for _, c := range checks {
		if c.Status == status {
			n++
		}
	}
	return n
}

func renderDoctorText(w io.Writer, out *DoctorOutput) {
	_, _ = fmt.Fprintln(w, "sqlext project health report")
	_, _ = fmt.Fprintln(w)

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			_, _ = fmt.Fprintln(w, "   "+titleCaser.String(currentGroup))
			_, _ = fmt.Fprintln(w, "   "+strings.Repeat("-", 40))
		}

		icon := "✓"
		switch check.Status {
		case statusWarn:
			icon = "!"
		case statusError:
			icon = "✗"
		}
		line := fmt.Sprintf("   %s %s", icon, check.Name)
		if check.Detail != "" {
			line += ": " + check.Detail
		}
		_, _ = fmt.Fprintln(w, line)
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "   Health Score: %d/100\n", out.Score)
}
