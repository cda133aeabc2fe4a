package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/retail-copilot/internal/model"
)

var (
	askHint  string
	askTrace bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		q := model.Question{
			ID:         uuid.NewString(),
			Text:       strings.Join(args, " "),
			FormatHint: askHint,
		}

		rec, trace, err := env.Agent.Answer(ctx, q)
		if err != nil {
			return err
		}

		entry := &model.HistoryEntry{
			ID:         q.ID,
			Question:   q.Text,
			FormatHint: model.NormalizeHint(q.FormatHint),
			Record:     *rec,
			AskedAt:    time.Now().UTC(),
		}
		if err := env.Store.SaveAnswer(ctx, entry); err != nil {
			zap.L().Warn("failed to persist answer", zap.Error(err))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}
		if askTrace {
			for _, step := range trace {
				cmd.PrintErrln(step)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askHint, "hint", "", "answer format hint (int, float, str, list[...], {...})")
	askCmd.Flags().BoolVar(&askTrace, "trace", false, "print the pipeline trace to stderr")
	rootCmd.AddCommand(askCmd)
}
