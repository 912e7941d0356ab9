package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/proctor/internal/audit"
)

// Notifier delivers an escalation to the human channel.
type Notifier interface {
	Notify(ctx context.Context, esc Escalation) error
}

// Escalation is one queued hand-off to a human expert.
type Escalation struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	Module        string    `json:"module"`
	Mode          string    `json:"mode"`
	Reason        string    `json:"reason"`
	Query         string    `json:"query"`
	AttemptCount  int       `json:"attempt_count"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
}

// Outbox queues escalations and delivers them with exponential backoff, so
// a flaky notification channel never blocks or fails a pipeline run.
type Outbox struct {
	mu       sync.Mutex
	pending  []Escalation
	notifier Notifier
	chain    *audit.Chain
	clock    func() time.Time
}

func NewOutbox(notifier Notifier, chain *audit.Chain, clock func() time.Time) *Outbox {
	if clock == nil {
		clock = time.Now
	}
	return &Outbox{notifier: notifier, chain: chain, clock: clock}
}

// Enqueue queues an escalation and records it in the audit chain.
func (o *Outbox) Enqueue(runID string, reqCtx RequestContext, reason, query string) (string, error) {
	esc := Escalation{
		ID:            uuid.NewString(),
		RunID:         runID,
		Module:        reqCtx.Module,
		Mode:          reqCtx.Mode,
		Reason:        reason,
		Query:         query,
		NextAttemptAt: o.clock(),
	}

	o.mu.Lock()
	o.pending = append(o.pending, esc)
	o.mu.Unlock()

	if o.chain != nil {
		if _, err := o.chain.Append(audit.EntryEscalationQueued, runID, map[string]any{
			"escalation_id": esc.ID,
			"module":        esc.Module,
			"reason":        reason,
		}); err != nil {
			return "", err
		}
	}
	return esc.ID, nil
}

// Pending reports how many escalations await delivery.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// ProcessDue delivers due escalations, applying exponential backoff on
// failure. Returns how many deliveries were attempted.
func (o *Outbox) ProcessDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if o.notifier == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 50
	}

	o.mu.Lock()
	due := make([]Escalation, 0, limit)
	for _, esc := range o.pending {
		if len(due) >= limit {
			break
		}
		if !esc.NextAttemptAt.After(now) {
			due = append(due, esc)
		}
	}
	o.mu.Unlock()

	processed := 0
	for _, esc := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		err := o.notifier.Notify(ctx, esc)
		processed++

		o.mu.Lock()
		for i := range o.pending {
			if o.pending[i].ID != esc.ID {
				continue
			}
			if err != nil {
				backoff := nextAttempt(o.pending[i].AttemptCount)
				o.pending[i].AttemptCount++
				o.pending[i].NextAttemptAt = now.Add(backoff)
			} else {
				o.pending = append(o.pending[:i], o.pending[i+1:]...)
			}
			break
		}
		o.mu.Unlock()

		if err == nil && o.chain != nil {
			if _, aerr := o.chain.Append(audit.EntryEscalationSent, esc.RunID, map[string]any{
				"escalation_id": esc.ID,
				"module":        esc.Module,
			}); aerr != nil {
				return processed, aerr
			}
		}
	}
	return processed, nil
}

func nextAttempt(attemptCount int) time.Duration {
	// 5s, 10s, 20s, 40s, 80s, 160s, ... capped at 5m. The cap is applied
	// before shifting so a long-dead channel cannot overflow the duration.
	base := 5 * time.Second
	max := 5 * time.Minute
	if attemptCount <= 0 {
		return base
	}
	if attemptCount >= 6 {
		return max
	}
	d := base << attemptCount
	if d > max {
		return max
	}
	return d
}

// RunOutboxWorker polls and delivers due escalations until ctx is cancelled.
func (o *Outbox) RunOutboxWorker(ctx context.Context, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_, _ = o.ProcessDue(ctx, now.UTC(), 50)
		}
	}
}
