package cli

import (
	"log/slog"

	"github.com/roach88/streamsql/internal/catalog"
	"github.com/roach88/streamsql/internal/codegen"
	"github.com/roach88/streamsql/internal/plandoc"
	"github.com/roach88/streamsql/internal/planner"
	"github.com/roach88/streamsql/internal/runtime"
	"github.com/roach88/streamsql/internal/serde"
)

// queryInputs locates the files a query is built from.
type queryInputs struct {
	CatalogPath string
	PlanPath    string
	KeySerde    serde.KeySerde
}

// buildQuery loads the catalog and plan document and wires the plan onto
// rt. Load failures are command errors; planning failures are not.
func buildQuery(in queryInputs, rt runtime.Builder, compiler *codegen.Compiler, ids planner.IDGenerator, logger *slog.Logger) (*planner.Query, error) {
	cat, err := catalog.Load(in.CatalogPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	logger.Debug("catalog loaded", "path", in.CatalogPath, "sources", cat.Len())

	plan, err := plandoc.Load(in.PlanPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load plan", err)
	}

	opts := []planner.Option{
		planner.WithCompiler(compiler),
		planner.WithLogger(logger),
	}
	if in.KeySerde != nil {
		opts = append(opts, planner.WithKeySerde(in.KeySerde))
	}
	if ids != nil {
		opts = append(opts, planner.WithIDGenerator(ids))
	}
	q, err := planner.NewBuilder(cat, rt, opts...).Build(plan)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to plan query", err)
	}
	return q, nil
}
