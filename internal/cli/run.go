package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/streamsql/internal/codegen"
	"github.com/roach88/streamsql/internal/config"
	"github.com/roach88/streamsql/internal/planner"
	"github.com/roach88/streamsql/internal/runtime"
	"github.com/roach88/streamsql/internal/runtime/memrt"
	"github.com/roach88/streamsql/internal/topicstore"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	CatalogPath     string
	InputPath       string
	StorePath       string
	OnError         string
	DeadLetterTopic string

	// IDGenerator allows overriding the query ID source (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator planner.IDGenerator

	// Clock allows overriding the timestamp source for records sent
	// without one (for testing).
	Clock memrt.Clock
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	QueryID string         `json:"query_id"`
	Name    string         `json:"name"`
	Stats   RunStats       `json:"stats"`
	Records []OutputRecord `json:"records,omitempty"`
	Changes []OutputChange `json:"changes,omitempty"`

	// DeadLetters holds the records routed to the dead-letter topic.
	DeadLetters []OutputRecord `json:"dead_letters,omitempty"`
}

// RunStats counts the records the runtime handled.
type RunStats struct {
	Processed    int64 `json:"processed"`
	Failed       int64 `json:"failed"`
	Skipped      int64 `json:"skipped"`
	DeadLettered int64 `json:"dead_lettered"`
	Written      int64 `json:"written"`
}

// OutputRecord is a sink record as written to its topic.
type OutputRecord struct {
	Topic     string  `json:"topic"`
	Partition int32   `json:"partition"`
	Offset    int64   `json:"offset"`
	Timestamp int64   `json:"timestamp"`
	Key       string  `json:"key"`
	Value     *string `json:"value"` // nil is a tombstone
}

// OutputChange is one grouped change, its value in the grouped format.
type OutputChange struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Run a query over input records",
		Long: `Build a query plan and push JSON Lines input records through it on
the reference runtime.

Sink records are written to the topic store when --store (or store.path
in the config) is set, otherwise kept in memory. Records and grouped
changes are printed when the input is exhausted.

Example:
  streamsql run --catalog ./catalog --input records.jsonl ./queries/high_value.yaml
  streamsql run --catalog ./catalog --input records.jsonl --store out.db --on-error skip q.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CatalogPath, "catalog", "", "catalog CUE file or directory (required)")
	cmd.Flags().StringVar(&opts.InputPath, "input", "", "JSON Lines input records (required)")
	cmd.Flags().StringVar(&opts.StorePath, "store", "", "SQLite topic store for sink records (overrides store.path)")
	cmd.Flags().StringVar(&opts.OnError, "on-error", "", "record failure policy: fail, skip or dead-letter (overrides runtime.on_error)")
	cmd.Flags().StringVar(&opts.DeadLetterTopic, "dead-letter-topic", "", "topic for failed records (overrides runtime.dead_letter_topic)")
	_ = cmd.MarkFlagRequired("catalog")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// applyFlags overlays command line flags onto cfg.
func (o *RunOptions) applyFlags(cfg *config.Config) error {
	if o.StorePath != "" {
		cfg.Store.Path = o.StorePath
	}
	if o.OnError != "" {
		cfg.Runtime.OnError = o.OnError
	}
	if o.DeadLetterTopic != "" {
		cfg.Runtime.DeadLetterTopic = o.DeadLetterTopic
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	return nil
}

func runQuery(opts *RunOptions, planPath string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := opts.applyFlags(cfg); err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())

	records, err := ReadRecordsFile(opts.InputPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}
	logger.Debug("input loaded", "path", opts.InputPath, "records", len(records))

	var (
		writer memrt.TopicWriter
		store  *topicstore.Store
		log    *memrt.MemoryLog
	)
	if cfg.Store.Path != "" {
		store, err = topicstore.Open(cfg.Store.Path, cfg.StoreOptions()...)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open topic store", err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.Error("error closing topic store", "error", closeErr)
			}
		}()
		writer = store
	} else {
		log = memrt.NewMemoryLog()
		writer = log
	}

	rtOpts := append(cfg.RuntimeOptions(), memrt.WithLogger(logger))
	if opts.Clock != nil {
		rtOpts = append(rtOpts, memrt.WithClock(opts.Clock))
	}
	rt, err := memrt.New(writer, rtOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create runtime", err)
	}
	compiler := codegen.New(codegen.WithErrorPolicy(cfg.ErrorPolicy()), codegen.WithLogger(logger))

	q, err := buildQuery(queryInputs{CatalogPath: opts.CatalogPath, PlanPath: planPath, KeySerde: cfg.KeySerde()}, rt, compiler, opts.IDGenerator, logger)
	if err != nil {
		return err
	}

	result := &RunResult{QueryID: q.ID, Name: q.Name}
	if q.Grouped != nil {
		vs := q.Grouped.Handle().ValueSerde()
		q.Grouped.Handle().ForEach(func(c runtime.Change) error {
			value, err := vs.Serialize(c.Value)
			if err != nil {
				return err
			}
			result.Changes = append(result.Changes, OutputChange{Op: c.Op.String(), Key: c.Key, Value: string(value)})
			return nil
		})
	}

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	for _, rec := range records {
		rt.Enqueue(rec)
	}
	rt.Stop()

	logger.Info("query running", "query_id", q.ID, "records", len(records))
	runErr := rt.Run(ctx)
	result.Stats = RunStats(rt.Stats())

	if q.Sink != nil {
		result.Records, err = sinkRecords(ctx, q.Sink.Topic, store, log)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read sink records", err)
		}
	}

	if policy, _ := memrt.ParseOnError(cfg.Runtime.OnError); policy == memrt.OnErrorDeadLetter {
		result.DeadLetters, err = sinkRecords(ctx, cfg.Runtime.DeadLetterTopic, store, log)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read dead letters", err)
		}
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "query failed", runErr)
	}
	logger.Info("query finished",
		"processed", result.Stats.Processed,
		"written", result.Stats.Written,
		"failed", result.Stats.Failed)

	return opts.formatter(cmd).Text(renderRun(result), result)
}

func sinkRecords(ctx context.Context, topic string, store *topicstore.Store, log *memrt.MemoryLog) ([]OutputRecord, error) {
	var stored []topicstore.Record
	if store != nil {
		var err error
		if stored, err = store.Read(ctx, topic); err != nil {
			return nil, err
		}
	} else {
		stored = log.Records(topic)
	}
	return outputRecords(stored), nil
}

func outputRecords(stored []topicstore.Record) []OutputRecord {
	out := make([]OutputRecord, len(stored))
	for i, r := range stored {
		out[i] = OutputRecord{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
			Timestamp: r.Timestamp,
			Key:       string(r.Key),
		}
		if r.Value != nil {
			v := string(r.Value)
			out[i].Value = &v
		}
	}
	return out
}

func renderRun(r *RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUERY %s %s\n", r.QueryID, r.Name)
	fmt.Fprintf(&b, "processed=%d written=%d failed=%d skipped=%d dead_lettered=%d\n",
		r.Stats.Processed, r.Stats.Written, r.Stats.Failed, r.Stats.Skipped, r.Stats.DeadLettered)
	for _, rec := range r.Records {
		b.WriteString(renderRecord(rec))
	}
	for _, rec := range r.DeadLetters {
		b.WriteString("DEAD LETTER ")
		b.WriteString(renderRecord(rec))
	}
	for _, c := range r.Changes {
		fmt.Fprintf(&b, "%s key=%s value=%s\n", c.Op, c.Key, c.Value)
	}
	return b.String()
}

func renderRecord(rec OutputRecord) string {
	value := "<tombstone>"
	if rec.Value != nil {
		value = *rec.Value
	}
	return fmt.Sprintf("%s/%d@%d ts=%d key=%s value=%s\n",
		rec.Topic, rec.Partition, rec.Offset, rec.Timestamp, rec.Key, value)
}
