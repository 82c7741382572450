package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/cli/ui"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/migrate"
)

// confirm asks a yes/no question; replaced in tests
var confirm = func(message string) (bool, error) {
	ok := false
	prompt := &survey.Confirm{Message: message, Default: false}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// NewSchemaCommand creates the schema command
func NewSchemaCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Synthesize the database schema from metadata",
		Long: `Compare the live PostgreSQL schema with the schema derived from metadata and
bring the database up to date.

Tables, columns and indexes are created or altered as needed. Nothing is ever
dropped: columns without a matching field are reported and left in place.

Available subcommands:
  plan     Show the pending changes without applying them
  apply    Apply the pending changes in one transaction
  history  Show previously applied changes`,
	}

	cmd.AddCommand(newSchemaPlanCommand(opts))
	cmd.AddCommand(newSchemaApplyCommand(opts))
	cmd.AddCommand(newSchemaHistoryCommand(opts))

	return cmd
}

func newSchemaPlanCommand(opts *globalOptions) *cobra.Command {
	var showSQL bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show pending schema changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSchema(cmd, opts, func(ctx context.Context, s *schemaSession) error {
				plan, err := s.runner.Plan(ctx, s.target)
				if err != nil {
					return err
				}
				renderPlan(s.printer, plan, showSQL)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showSQL, "sql", false, "print the DDL statements")
	return cmd
}

func newSchemaApplyCommand(opts *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply pending schema changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSchema(cmd, opts, func(ctx context.Context, s *schemaSession) error {
				if !yes {
					plan, err := s.runner.Plan(ctx, s.target)
					if err != nil {
						return err
					}
					if plan.Empty() {
						renderPlan(s.printer, plan, false)
						return nil
					}
					renderPlan(s.printer, plan, true)
					if plan.Breaking() {
						s.printer.Warn("some changes may fail against existing rows")
					}

					ok, err := confirm(fmt.Sprintf("Apply %d schema statements?", len(plan.Statements)))
					if err != nil {
						return err
					}
					if !ok {
						s.printer.Info("Aborted, nothing was applied")
						return nil
					}
				}

				applied, err := s.runner.Apply(ctx, s.target)
				if err != nil {
					var stmtErr *migrate.StatementError
					if errors.As(err, &stmtErr) {
						errPrinter := newPrinter(cmd.ErrOrStderr(), opts)
						fmt.Fprint(cmd.ErrOrStderr(), errPrinter.SchemaFailure(
							fmt.Sprintf("Statement %d failed; nothing was applied.", stmtErr.Index+1),
							stmtErr.Statement,
						))
						return fmt.Errorf("schema apply failed: %s", categorizeDatabaseError(stmtErr.Err, s.app.verbose))
					}
					return err
				}

				if applied.Empty() {
					s.printer.Success("Schema is up to date")
					return nil
				}
				s.printer.Success("Applied %d schema statements", len(applied.Statements))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "apply without confirmation")
	return cmd
}

func newSchemaHistoryCommand(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show applied schema changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSchema(cmd, opts, func(ctx context.Context, s *schemaSession) error {
				runs, err := s.runner.Tracker().History(ctx, limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					s.printer.Info("No schema changes have been applied")
					return nil
				}

				rows := make([][]ui.Cell, 0, len(runs))
				for _, run := range runs {
					checksum := run.Checksum
					if len(checksum) > 12 {
						checksum = checksum[:12]
					}
					rows = append(rows, ui.Plain(
						fmt.Sprintf("%d", run.ID),
						run.AppliedAt.UTC().Format(time.RFC3339),
						fmt.Sprintf("%d", len(run.Statements)),
						checksum,
					))
				}
				s.printer.Table([]string{"ID", "APPLIED AT", "STATEMENTS", "CHECKSUM"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}

// schemaSession is the state shared by the schema subcommands
type schemaSession struct {
	app     *app
	printer *ui.Printer
	runner  *migrate.Runner
	target  *migrate.Graph
}

func withSchema(cmd *cobra.Command, opts *globalOptions, fn func(context.Context, *schemaSession) error) error {
	ctx := cmd.Context()

	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	reg, err := a.resolver.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve metadata: %w", err)
	}
	target, err := migrate.TargetGraph(reg, a.logger)
	if err != nil {
		return err
	}

	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}

	return fn(ctx, &schemaSession{
		app:     a,
		printer: newPrinter(cmd.OutOrStdout(), opts),
		runner:  migrate.NewRunner(db, migrate.NewPostgresIntrospector(a.cfg.Schema.Name), a.logger),
		target:  target,
	})
}

func renderPlan(p *ui.Printer, plan *migrate.Plan, showSQL bool) {
	var rows [][]ui.Cell
	for _, c := range plan.Changes {
		if c.IsWarning() {
			continue
		}
		breaking := ui.Cell{Text: "no"}
		if c.Breaking {
			breaking = ui.Cell{Text: "yes", Color: []color.Attribute{color.FgRed, color.Bold}}
		}
		rows = append(rows, []ui.Cell{
			{Text: c.Type.String(), Color: changeColor(c.Type)},
			{Text: c.Table},
			{Text: changeDetail(c)},
			breaking,
		})
	}

	if len(rows) == 0 {
		p.Success("Schema is up to date")
	} else {
		p.Table([]string{"CHANGE", "TABLE", "DETAIL", "BREAKING"}, rows)
	}

	for _, w := range plan.Warnings() {
		p.Warn("%s", w.String())
	}

	if showSQL && len(plan.Statements) > 0 {
		p.Line("")
		p.Heading("SQL")
		for _, stmt := range plan.Statements {
			p.Line("%s", stmt)
		}
	}
}

func changeColor(t migrate.ChangeType) []color.Attribute {
	switch t {
	case migrate.ChangeCreateTable:
		return []color.Attribute{color.FgGreen}
	case migrate.ChangeAddColumn:
		return []color.Attribute{color.FgCyan}
	case migrate.ChangeAlterColumnType, migrate.ChangeAlterNullability:
		return []color.Attribute{color.FgYellow}
	default:
		return []color.Attribute{color.FgBlue}
	}
}

func changeDetail(c migrate.SchemaChange) string {
	switch c.Type {
	case migrate.ChangeCreateTable:
		if c.Definition != nil {
			return fmt.Sprintf("%d columns", len(c.Definition.Columns))
		}
		return ""
	case migrate.ChangeAddColumn:
		return fmt.Sprintf("%s %s", c.Column.Name, c.Column.Type)
	case migrate.ChangeAlterColumnType, migrate.ChangeAlterNullability:
		return fmt.Sprintf("%s %s → %s", c.Column.Name, c.OldValue, c.NewValue)
	case migrate.ChangeCreateIndex:
		if c.Index.Unique {
			return c.Index.Name + " (unique)"
		}
		return c.Index.Name
	default:
		return c.String()
	}
}
