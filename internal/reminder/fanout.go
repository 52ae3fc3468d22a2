package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vibejournal/internal/observe"
	"github.com/MrWong99/vibejournal/pkg/provider/push"
	"github.com/MrWong99/vibejournal/pkg/store"
)

// DefaultPruneConcurrency bounds concurrent token removals.
const DefaultPruneConcurrency = 16

// Report summarises one delivery.
type Report struct {
	// Batches is the number of multicast calls issued.
	Batches int `json:"batches"`

	// BatchErrors counts multicast calls that failed as a whole.
	BatchErrors int `json:"batch_errors"`

	// Sent is the number of tokens handed to the push service.
	Sent int `json:"sent"`

	// Succeeded and Failed count per-token outcomes of batches that returned
	// a response.
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// Pruned counts tokens removed from their owner; PruneErrors counts
	// removals that failed.
	Pruned      int `json:"pruned"`
	PruneErrors int `json:"prune_errors"`
}

// FanOutOption configures a [FanOut].
type FanOutOption func(*FanOut)

// WithBatchSize overrides the multicast size. Values outside
// 1..push.MaxMulticastTokens are ignored.
func WithBatchSize(n int) FanOutOption {
	return func(f *FanOut) {
		if n > 0 && n <= push.MaxMulticastTokens {
			f.batchSize = n
		}
	}
}

// WithPruneConcurrency bounds concurrent removals. Default: 16.
func WithPruneConcurrency(n int) FanOutOption {
	return func(f *FanOut) {
		if n > 0 {
			f.pruneConcurrency = n
		}
	}
}

// WithFanOutMetrics replaces [observe.DefaultMetrics].
func WithFanOutMetrics(m *observe.Metrics) FanOutOption {
	return func(f *FanOut) { f.metrics = m }
}

// FanOut delivers one notification to many tokens and reconciles failures.
type FanOut struct {
	sender           push.Sender
	subscribers      store.SubscriberStore
	batchSize        int
	pruneConcurrency int
	metrics          *observe.Metrics
}

// NewFanOut creates a FanOut.
func NewFanOut(sender push.Sender, subscribers store.SubscriberStore, opts ...FanOutOption) *FanOut {
	f := &FanOut{
		sender:           sender,
		subscribers:      subscribers,
		batchSize:        push.MaxMulticastTokens,
		pruneConcurrency: DefaultPruneConcurrency,
	}
	for _, o := range opts {
		o(f)
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}
	return f
}

// Deliver sends n to tokens in consecutive batches, one batch at a time.
//
// Tokens whose outcome proves them dead ([push.Reason.TokenInvalid]) are
// removed from the subscriber that owns them according to index, at most
// once per run even when the token is listed more than once. Removals run
// concurrently with later batches; Deliver returns only after every removal
// has finished. Other per-token failures and whole-batch errors are logged
// and do not stop the run.
//
// A batch in which every token failed with [push.ReasonInvalidArgument]
// points at the message rather than the tokens, so nothing in it is pruned.
func (f *FanOut) Deliver(ctx context.Context, n push.Notification, tokens []string, index TokenIndex) Report {
	log := observe.Logger(ctx)

	var (
		rep       Report
		mu        sync.Mutex
		pool      errgroup.Group
		scheduled = make(map[string]struct{})
	)
	pool.SetLimit(f.pruneConcurrency)

	prune := func(owner, tok string) {
		pool.Go(func() error {
			err := f.subscribers.RemoveToken(ctx, owner, tok)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.PruneErrors++
				log.Error("failed to remove dead token", "subscriber_id", owner, "token", redact(tok), "err", err)
				return nil
			}
			rep.Pruned++
			f.metrics.TokensPruned.Add(ctx, 1)
			return nil
		})
	}

	for start := 0; start < len(tokens); start += f.batchSize {
		batch := tokens[start:min(start+f.batchSize, len(tokens))]
		resp, err := f.send(ctx, n, batch, rep.Batches)

		mu.Lock()
		rep.Batches++
		rep.Sent += len(batch)
		if err != nil {
			rep.BatchErrors++
			mu.Unlock()
			log.Error("multicast failed", "batch", rep.Batches, "size", len(batch), "err", err)
			continue
		}
		rep.Succeeded += resp.SuccessCount
		rep.Failed += resp.FailureCount
		mu.Unlock()
		f.metrics.RecordDeliveries(ctx, resp.SuccessCount, resp.FailureCount)

		rejected := messageRejected(resp.Outcomes)
		if rejected {
			log.Error("push service rejected the message for every token, skipping pruning",
				"batch", rep.Batches, "size", len(batch))
		}
		for i, o := range resp.Outcomes {
			if o.Success {
				continue
			}
			tok := batch[i]
			if !o.Reason.TokenInvalid() {
				log.Warn("delivery failed", "token", redact(tok), "reason", o.Reason.String(), "err", o.Err)
				continue
			}
			if rejected {
				continue
			}
			owner, ok := index[tok]
			if !ok {
				log.Warn("dead token has no known owner", "token", redact(tok))
				continue
			}
			if _, dup := scheduled[tok]; dup {
				continue
			}
			scheduled[tok] = struct{}{}
			prune(owner, tok)
		}
	}

	_ = pool.Wait()
	return rep
}

// messageRejected reports whether every outcome is an invalid-argument
// failure, which is how the push service answers a malformed payload.
func messageRejected(outcomes []push.Outcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if o.Success || o.Reason != push.ReasonInvalidArgument {
			return false
		}
	}
	return true
}

// send issues one multicast. Outcomes must line up with the batch by
// position, otherwise the whole response is rejected.
func (f *FanOut) send(ctx context.Context, n push.Notification, batch []string, seq int) (_ *push.BatchResponse, err error) {
	ctx, span := observe.StartSpan(ctx, "reminder.multicast", trace.WithAttributes(
		attribute.Int("batch.seq", seq),
		attribute.Int("batch.size", len(batch)),
	))
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	resp, err := f.sender.SendMulticast(ctx, push.Message{Tokens: batch, Notification: n})
	f.metrics.PushBatchDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if len(resp.Outcomes) != len(batch) {
		return nil, fmt.Errorf("reminder: push response has %d outcomes for %d tokens", len(resp.Outcomes), len(batch))
	}
	return resp, nil
}
