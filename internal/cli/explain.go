package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/streamsql/internal/codegen"
	"github.com/roach88/streamsql/internal/planner"
	"github.com/roach88/streamsql/internal/runtime/memrt"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	CatalogPath string
	Watch       bool

	// IDGenerator allows overriding the query ID source (for testing).
	IDGenerator planner.IDGenerator
}

// ExplainResult is the JSON payload of the explain command.
type ExplainResult struct {
	QueryID string `json:"query_id"`
	Name    string `json:"name"`
	Logical string `json:"logical"`
	Query   string `json:"query"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	return newExplainCommand(&ExplainOptions{RootOptions: rootOpts})
}

func newExplainCommand(opts *ExplainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <plan.yaml>",
		Short: "Plan a query and print its relations",
		Long: `Build a query plan against a catalog and print the logical plan
followed by the relation lineage with every schema and key field.

Nothing is executed. With --watch the plan is rebuilt whenever the plan
file or the catalog changes.

Example:
  streamsql explain --catalog ./catalog ./queries/high_value.yaml
  streamsql explain --catalog ./catalog --watch ./queries/high_value.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CatalogPath, "catalog", "", "catalog CUE file or directory (required)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "rebuild the plan when its files change")
	_ = cmd.MarkFlagRequired("catalog")

	return cmd
}

func runExplain(opts *ExplainOptions, planPath string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())
	formatter := opts.formatter(cmd)
	in := queryInputs{CatalogPath: opts.CatalogPath, PlanPath: planPath, KeySerde: cfg.KeySerde()}

	if !opts.Watch {
		return explainOnce(opts, in, cfg.ErrorPolicy(), formatter, logger)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A broken plan is reported and the watch carries on.
	report := func() {
		if err := explainOnce(opts, in, cfg.ErrorPolicy(), formatter, logger); err != nil {
			_ = formatter.Report(err)
		}
	}
	report()

	w, err := NewWatcher([]string{planPath, opts.CatalogPath}, func(path string) {
		logger.Info("change detected, re-planning", "path", path)
		report()
	}, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create watcher", err)
	}
	defer w.Close()
	if err := w.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to watch files", err)
	}

	<-ctx.Done()
	logger.Info("watch stopped")
	return nil
}

// explainOnce builds the plan on a throwaway runtime and prints it.
func explainOnce(opts *ExplainOptions, in queryInputs, policy codegen.ErrorPolicy, formatter *OutputFormatter, logger *slog.Logger) error {
	rt, err := memrt.New(nil, memrt.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create runtime", err)
	}
	compiler := codegen.New(codegen.WithErrorPolicy(policy), codegen.WithLogger(logger))

	q, err := buildQuery(in, rt, compiler, opts.IDGenerator, logger)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("Logical plan:\n")
	b.WriteString(indent(q.Plan.String()))
	b.WriteString("\nRelations:\n")
	b.WriteString(indent(q.Explain()))

	return formatter.Text(b.String(), ExplainResult{
		QueryID: q.ID,
		Name:    q.Name,
		Logical: q.Plan.String(),
		Query:   q.Explain(),
	})
}

func indent(s string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		fmt.Fprintf(&b, "  %s", line)
	}
	return b.String()
}
