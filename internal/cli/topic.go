package cli

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/streamsql/internal/serde"
	"github.com/roach88/streamsql/internal/topicstore"
)

// TopicOptions holds flags for the topic command.
type TopicOptions struct {
	*RootOptions
	StorePath string
	Since     string
	Until     string
}

// TopicResult is the JSON payload of the topic command.
type TopicResult struct {
	Topics  []topicstore.TopicInfo `json:"topics,omitempty"`
	Records []OutputRecord         `json:"records,omitempty"`
}

// NewTopicCommand creates the topic command.
func NewTopicCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TopicOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "topic [topic]",
		Short: "Inspect a topic store",
		Long: `List the topics of a SQLite topic store, or print the records of one
topic in offset order. --since and --until select a half-open timestamp
window, given as epoch milliseconds or a date.

Example:
  streamsql topic --store out.db
  streamsql topic --store out.db OUT
  streamsql topic --store out.db --since 2024-01-01 --until 2024-01-02 OUT`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := ""
			if len(args) == 1 {
				topic = args[0]
			}
			return runTopic(opts, topic, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StorePath, "store", "", "SQLite topic store (overrides store.path)")
	cmd.Flags().StringVar(&opts.Since, "since", "", "earliest record timestamp (inclusive)")
	cmd.Flags().StringVar(&opts.Until, "until", "", "latest record timestamp (exclusive)")

	return cmd
}

func runTopic(opts *TopicOptions, topic string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	path := opts.StorePath
	if path == "" {
		path = cfg.Store.Path
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no topic store: set --store or store.path")
	}

	st, err := topicstore.Open(path, cfg.StoreOptions()...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open topic store", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	if topic == "" {
		topics, err := st.Topics(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list topics", err)
		}
		var b strings.Builder
		for _, t := range topics {
			fmt.Fprintf(&b, "%s\t%d\n", t.Name, t.Records)
		}
		return formatter.Text(b.String(), TopicResult{Topics: topics})
	}

	var stored []topicstore.Record
	if opts.Since != "" || opts.Until != "" {
		from, to, werr := opts.window()
		if werr != nil {
			return WrapExitError(ExitCommandError, "invalid time window", werr)
		}
		stored, err = st.ReadRange(ctx, topic, from, to)
	} else {
		stored, err = st.Read(ctx, topic)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read topic", err)
	}

	records := outputRecords(stored)
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(renderRecord(rec))
	}
	return formatter.Text(b.String(), TopicResult{Records: records})
}

// window parses --since and --until. Unset bounds are open.
func (o *TopicOptions) window() (int64, int64, error) {
	from, to := int64(math.MinInt64), int64(math.MaxInt64)
	var err error
	if o.Since != "" {
		if from, err = serde.ParseTimestamp(o.Since); err != nil {
			return 0, 0, fmt.Errorf("--since: %w", err)
		}
	}
	if o.Until != "" {
		if to, err = serde.ParseTimestamp(o.Until); err != nil {
			return 0, 0, fmt.Errorf("--until: %w", err)
		}
	}
	return from, to, nil
}
