// Package migration holds on-demand batch jobs over stored posts. Every job
// is idempotent and can be re-run after an interruption.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrAllFailed is returned when every item of a non-empty batch failed.
var ErrAllFailed = errors.New("every item failed")

// ItemError is one failed item of a batch.
type ItemError struct {
	Item string
	Err  error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Item, e.Err)
}

// Result summarizes a job run.
type Result struct {
	JobID     string
	Job       string
	Group     string
	Total     int
	Succeeded int
	Skipped   int
	Errors    []ItemError
	// Report carries job-specific output, such as a ValidationReport.
	Report any
}

// Failed is the number of failed items.
func (r *Result) Failed() int { return len(r.Errors) }

// Job is one batch worker.
type Job interface {
	Name() string
	Run(ctx context.Context, group string, p *Progress) (*Result, error)
}

// Progress lets a job record item outcomes and report them to observers.
type Progress struct {
	result *Result
	emit   func(EventType, string)
}

// Total sets the number of items the job expects to process.
func (p *Progress) Total(n int) {
	p.result.Total = n
}

// Succeeded records a processed item.
func (p *Progress) Succeeded(item string) {
	p.result.Succeeded++
	p.emit(EventProgress, item)
}

// Skipped records an item that needed no change.
func (p *Progress) Skipped(item string) {
	p.result.Skipped++
	p.emit(EventProgress, item)
}

// Failed records and logs a failed item. It never stops the batch.
func (p *Progress) Failed(item string, err error) {
	p.result.Errors = append(p.result.Errors, ItemError{Item: item, Err: err})
	log.Warn().Err(err).Str("job", p.result.Job).Str("group", p.result.Group).Str("item", item).Msg("Migration item failed")
	p.emit(EventProgress, item)
}

// Result returns the result being built.
func (p *Progress) Result() *Result { return p.result }

// Runner executes jobs with a wall-clock budget and broadcasts their events.
type Runner struct {
	Events  *Broadcaster
	Timeout time.Duration
}

func NewRunner(events *Broadcaster, timeout time.Duration) *Runner {
	if events == nil {
		events = &Broadcaster{}
	}
	return &Runner{Events: events, Timeout: timeout}
}

// Run executes job for group. The returned error is a job-level failure;
// per-item failures are only reported in the Result.
func (r *Runner) Run(ctx context.Context, job Job, group string) (*Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	result := &Result{JobID: uuid.NewString(), Job: job.Name(), Group: group}
	emit := func(t EventType, msg string) {
		r.Events.publish(Event{
			JobID:     result.JobID,
			Job:       result.Job,
			Group:     group,
			Type:      t,
			Processed: result.Succeeded + result.Skipped + result.Failed(),
			Total:     result.Total,
			Failed:    result.Failed(),
			Message:   msg,
			Time:      time.Now(),
		})
	}

	emit(EventStarted, "Job started")
	out, err := job.Run(ctx, group, &Progress{result: result, emit: emit})
	if out == nil {
		out = result
	}
	if err == nil && out.Total > 0 && out.Failed() == out.Total {
		err = ErrAllFailed
	}
	if err != nil {
		emit(EventFailed, err.Error())
		return out, fmt.Errorf("%s %s: %w", job.Name(), group, err)
	}
	emit(EventCompleted, "Job completed")
	return out, nil
}
