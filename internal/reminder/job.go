package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/vibejournal/internal/observe"
	"github.com/MrWong99/vibejournal/pkg/provider/push"
)

// ErrLeaseHeld means another replica is running the job.
var ErrLeaseHeld = errors.New("reminder: run lease held elsewhere")

// LeaseKey is the lock name the job acquires before running.
const LeaseKey = "vibejournal:reminders:daily"

// Locker grants a cluster-wide lease. ok is false when another holder has
// it. release must be called once the run is finished.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, ok bool, err error)
}

// JobOption configures a [Job].
type JobOption func(*Job)

// WithLocker guards runs with a lease. Without one every call runs.
func WithLocker(l Locker) JobOption {
	return func(j *Job) { j.locker = l }
}

// WithJobMetrics replaces [observe.DefaultMetrics].
func WithJobMetrics(m *observe.Metrics) JobOption {
	return func(j *Job) { j.metrics = m }
}

// Job runs select → resolve → deliver once per call.
type Job struct {
	selector *Selector
	resolver *Resolver
	fanout   *FanOut
	locker   Locker
	metrics  *observe.Metrics
}

// NewJob creates a Job.
func NewJob(selector *Selector, resolver *Resolver, fanout *FanOut, opts ...JobOption) *Job {
	j := &Job{selector: selector, resolver: resolver, fanout: fanout}
	for _, o := range opts {
		o(j)
	}
	if j.metrics == nil {
		j.metrics = observe.DefaultMetrics()
	}
	return j
}

// Run performs one reminder run and returns its delivery report.
//
// [ErrLeaseHeld], [ErrNoTemplates], [ErrTemplateIncomplete] and
// [ErrNoRecipients] end the run before anything is delivered. Only store
// and lease errors indicate a malfunction; ErrNoRecipients and ErrLeaseHeld
// are expected outcomes.
func (j *Job) Run(ctx context.Context) (rep Report, err error) {
	runID := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "reminder.run")
	defer func() { observe.EndSpan(span, ignoreExpected(err)) }()
	log := observe.Logger(ctx).With("run_id", runID)
	start := time.Now()

	defer func() {
		j.metrics.RecordReminderRun(ctx, runStatus(err))
		switch {
		case err == nil:
			log.Info("daily reminder run finished",
				"batches", rep.Batches,
				"sent", rep.Sent,
				"succeeded", rep.Succeeded,
				"failed", rep.Failed,
				"batch_errors", rep.BatchErrors,
				"pruned", rep.Pruned,
				"prune_errors", rep.PruneErrors,
				"duration", time.Since(start))
		case ignoreExpected(err) == nil:
			log.Info("daily reminder run skipped", "reason", err)
		default:
			log.Error("daily reminder run aborted", "err", err)
		}
	}()

	if j.locker != nil {
		release, ok, lerr := j.locker.Acquire(ctx, LeaseKey)
		if lerr != nil {
			return Report{}, fmt.Errorf("reminder: acquire lease: %w", lerr)
		}
		if !ok {
			return Report{}, ErrLeaseHeld
		}
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				log.Warn("failed to release run lease", "err", rerr)
			}
		}()
	}

	tmpl, err := j.selector.Select(ctx)
	if err != nil {
		return Report{}, err
	}
	rcpt, err := j.resolver.Resolve(ctx)
	if err != nil {
		return Report{}, err
	}
	log.Info("daily reminder run started", "template_id", tmpl.ID, "tokens", len(rcpt.Tokens))

	rep = j.fanout.Deliver(ctx, push.Notification{Title: tmpl.Title, Body: tmpl.Body}, rcpt.Tokens, rcpt.Owners)
	return rep, nil
}

// ignoreExpected maps outcomes that are not malfunctions to nil.
func ignoreExpected(err error) error {
	if errors.Is(err, ErrNoRecipients) || errors.Is(err, ErrLeaseHeld) {
		return nil
	}
	return err
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrLeaseHeld):
		return "lease_held"
	case errors.Is(err, ErrNoTemplates):
		return "no_templates"
	case errors.Is(err, ErrTemplateIncomplete):
		return "template_incomplete"
	case errors.Is(err, ErrNoRecipients):
		return "no_recipients"
	default:
		return "error"
	}
}
