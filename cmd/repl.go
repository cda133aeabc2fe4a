package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/retail-copilot/internal/model"
	"github.com/sells-group/retail-copilot/internal/store"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive question shell",
	Long:  "Reads questions from stdin and prints answer records. Shell commands: :format <hint> sets the format hint for subsequent questions, :history shows recent answers, :quit exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		fmt.Println("retail-copilot shell. :format <hint> to set the answer shape, :quit to exit.")

		hint := ""
		sc := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !sc.Scan() {
				return sc.Err()
			}
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}

			if strings.HasPrefix(line, ":") {
				quit, newHint := handleShellCommand(ctx, env, line, hint)
				if quit {
					return nil
				}
				hint = newHint
				continue
			}

			q := model.Question{
				ID:         uuid.NewString(),
				Text:       line,
				FormatHint: hint,
			}
			rec, _, err := env.Agent.Answer(ctx, q)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				if ctx.Err() != nil {
					return nil
				}
				continue
			}

			entry := &model.HistoryEntry{
				ID:         q.ID,
				Question:   q.Text,
				FormatHint: model.NormalizeHint(hint),
				Record:     *rec,
				AskedAt:    time.Now().UTC(),
			}
			if sErr := env.Store.SaveAnswer(ctx, entry); sErr != nil {
				zap.L().Warn("failed to persist answer", zap.Error(sErr))
			}

			printRecord(rec)
		}
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}

// handleShellCommand processes a ":"-prefixed line. It returns whether the
// shell should exit and the (possibly updated) format hint.
func handleShellCommand(ctx context.Context, env *agentEnv, line, hint string) (bool, string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return true, hint

	case ":format":
		if len(fields) < 2 {
			fmt.Printf("current format hint: %q\n", model.NormalizeHint(hint))
			return false, hint
		}
		newHint := strings.Join(fields[1:], " ")
		fmt.Printf("format hint set to %q\n", newHint)
		return false, newHint

	case ":history":
		entries, err := env.Store.ListAnswers(ctx, store.AnswerFilter{Limit: 10})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return false, hint
		}
		for _, e := range entries {
			fmt.Printf("[%s] %s -> %v (confidence %.2f)\n",
				e.AskedAt.Format("15:04:05"), e.Question, e.Record.FinalAnswer, e.Record.Confidence)
		}
		return false, hint

	default:
		fmt.Printf("unknown command %s (try :format, :history, :quit)\n", fields[0])
		return false, hint
	}
}

func printRecord(rec *model.AnswerRecord) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rec)
}
