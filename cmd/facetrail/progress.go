package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/saturnino-fabrica-de-software/facetrail/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/job"
	"github.com/saturnino-fabrica-de-software/facetrail/internal/scheduler"
)

const batchPollInterval = 500 * time.Millisecond

func newBar(total int, description string) *progressbar.ProgressBar {
	if total < 1 {
		total = 1
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)
}

type jobBar struct {
	bar   *progressbar.ProgressBar
	label string
}

func (b *jobBar) render(current, total int, message string) {
	if total > 0 && total != b.bar.GetMax() {
		b.bar.ChangeMax(total)
	}
	_ = b.bar.Set(current)
	if message != "" {
		b.bar.Describe(fmt.Sprintf("%s: %s", b.label, message))
	}
}

func (b *jobBar) finish() {
	_ = b.bar.Finish()
	fmt.Fprintln(os.Stderr)
}

// followJob renders the events of one job until it reaches a terminal state.
// The event stream is closed by the terminal event; a job that finished
// before the subscription is caught by the initial Get.
func followJob(ctx context.Context, jobs *job.Manager, id uuid.UUID, label string) (domain.JobStatus, error) {
	events, unsubscribe := jobs.Subscribe(id)
	defer unsubscribe()

	status, err := jobs.Get(ctx, id)
	if err != nil {
		return domain.JobStatus{}, err
	}

	b := &jobBar{bar: newBar(status.Total, label), label: label}
	b.render(status.Current, status.Total, status.Message)
	if status.State.IsTerminal() {
		b.finish()
		return status, nil
	}

	for {
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				b.finish()
				return jobs.Get(context.WithoutCancel(ctx), id)
			}
			b.render(ev.Current, ev.Total, ev.Message)
		}
	}
}

// followBatch polls the chunk jobs of a batch until all of them are terminal.
func followBatch(ctx context.Context, s *scheduler.Scheduler, batch *scheduler.Batch) (*scheduler.BatchStatus, error) {
	b := &jobBar{bar: newBar(batch.Total, "batch"), label: "batch"}

	ticker := time.NewTicker(batchPollInterval)
	defer ticker.Stop()

	for {
		status, err := s.Status(ctx, batch.ID)
		if err != nil {
			return nil, err
		}

		items, finished := 0, 0
		for _, js := range status.Jobs {
			items += js.Current
			if js.State.IsTerminal() {
				finished++
			}
		}
		b.render(items, batch.Total, fmt.Sprintf("%d/%d chunks", finished, status.Chunks))

		if status.Done {
			b.finish()
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
