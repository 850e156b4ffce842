package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"studyhelper/internal/bootstrap"
	"studyhelper/pkg/domain"
	"studyhelper/pkg/queue"
	"studyhelper/pkg/store"
)

type enqueuer interface {
	Enqueue(ctx context.Context, bookID, reason string) (queue.Job, error)
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <bookId>",
	Short: "Queue a book for text extraction again",
	Long: `Reset the book status to queued and push a processing job onto the
Redis stream consumed by the worker.`,
	Example: `  studyhelperctl reprocess 65f1c2a9e4b0a1b2c3d4e5f6`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
		}
		st, err := bootstrap.OpenStore(cfg.StoreConfig)
		if err != nil {
			return err
		}
		defer st.Close()
		jobs, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.QueueStream,
		})
		if err != nil {
			return fmt.Errorf("init queue: %w", err)
		}
		defer jobs.Close()

		job, err := reprocessBook(cmd.Context(), st, jobs, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued job %s for book %s\n", job.ID, job.BookID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reprocessCmd)
}

func reprocessBook(ctx context.Context, st store.Store, jobs enqueuer, bookID string) (queue.Job, error) {
	bookID = strings.TrimSpace(bookID)
	book, ok, err := st.GetBook(bookID)
	if err != nil {
		return queue.Job{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return queue.Job{}, fmt.Errorf("book %s not found", bookID)
	}
	if err := st.SetBookStatus(book.ID, domain.StatusQueued, ""); err != nil {
		return queue.Job{}, fmt.Errorf("set book status: %w", err)
	}
	job, err := jobs.Enqueue(ctx, book.ID, queue.ReasonReprocess)
	if err != nil {
		if serr := st.SetBookStatus(book.ID, domain.StatusFailed, "failed to enqueue book processing"); serr != nil {
			slog.Error("mark book failed", "book_id", book.ID, "err", serr)
		}
		return queue.Job{}, fmt.Errorf("enqueue: %w", err)
	}
	slog.Info("book requeued", "book_id", book.ID, "job_id", job.ID)
	return job, nil
}
