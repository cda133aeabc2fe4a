package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/retail-copilot/internal/model"
)

var (
	batchInput       string
	batchOutput      string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Answer a JSONL file of questions",
	Long:  "Reads one question per line from the input file and appends one answer record per line to the output file, in input order. A question that fails still produces a record, with a null answer and zero confidence.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		questions, err := readQuestions(batchInput)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			zap.L().Info("no questions in input", zap.String("input", batchInput))
			return nil
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := os.OpenFile(batchOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return eris.Wrap(err, "open output")
		}
		defer out.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}
		if concurrency <= 0 {
			concurrency = 1
		}

		return processBatch(ctx, env, questions, concurrency, out)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "questions.jsonl", "input JSONL file of questions")
	batchCmd.Flags().StringVar(&batchOutput, "output", "answers.jsonl", "output JSONL file of answer records")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent questions (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// readQuestions parses a JSONL file of questions, assigning IDs to lines
// that carry none. Blank lines are skipped; a malformed line is an error,
// since silently dropping a question would desynchronize input and output.
func readQuestions(path string) ([]model.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open input")
	}
	defer f.Close()

	var questions []model.Question
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var q model.Question
		if err := json.Unmarshal(line, &q); err != nil {
			return nil, eris.Wrapf(err, "parse input line %d", lineNo)
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		questions = append(questions, q)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read input")
	}
	return questions, nil
}

// processBatch answers questions concurrently but appends records to the
// output strictly in input order, flushing each record as soon as all of its
// predecessors are written.
func processBatch(ctx context.Context, env *agentEnv, questions []model.Question, concurrency int, out io.Writer) error {
	zap.L().Info("processing batch",
		zap.Int("questions", len(questions)),
		zap.Int("concurrency", concurrency))

	ow := newOrderedWriter(out)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, q := range questions {
		g.Go(func() error {
			log := zap.L().With(zap.String("question_id", q.ID))

			rec, _, err := env.Agent.Answer(gctx, q)
			if err != nil {
				// Infrastructure failure on one question must not sink the
				// batch: emit a degraded record and keep the line count
				// aligned with the input.
				failed.Add(1)
				log.Error("question failed", zap.Error(err))
				rec = &model.AnswerRecord{
					QuestionID:  q.ID,
					FinalAnswer: nil,
					Confidence:  0,
					Explanation: fmt.Sprintf("pipeline error: %v", err),
					Citations:   []string{},
				}
			} else {
				succeeded.Add(1)
			}

			entry := &model.HistoryEntry{
				ID:         q.ID,
				Question:   q.Text,
				FormatHint: model.NormalizeHint(q.FormatHint),
				Record:     *rec,
				AskedAt:    time.Now().UTC(),
			}
			if sErr := env.Store.SaveAnswer(gctx, entry); sErr != nil {
				log.Warn("failed to persist answer", zap.Error(sErr))
			}

			line, mErr := json.Marshal(rec)
			if mErr != nil {
				return eris.Wrapf(mErr, "marshal record for %s", q.ID)
			}
			return ow.Write(i, line)
		})
	}

	err := g.Wait()
	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()))
	return err
}

// orderedWriter serializes per-index lines to an output file in index order,
// regardless of completion order.
type orderedWriter struct {
	mu      sync.Mutex
	next    int
	pending map[int][]byte
	w       io.Writer
}

func newOrderedWriter(w io.Writer) *orderedWriter {
	return &orderedWriter{pending: make(map[int][]byte), w: w}
}

func (o *orderedWriter) Write(idx int, line []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending[idx] = line
	for {
		line, ok := o.pending[o.next]
		if !ok {
			return nil
		}
		if _, err := o.w.Write(append(line, '\n')); err != nil {
			return eris.Wrap(err, "write output")
		}
		delete(o.pending, o.next)
		o.next++
	}
}
