// Package recovery returns submissions stranded by a crashed run to a
// workable state.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgermatch/ledgermatch/internal/model"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

// maxAttempts is how many processing attempts a submission gets before
// recovery stops retrying and sends it to a human.
const maxAttempts = 3

// Recoverer finds submissions stuck in processing and either requeues
// them or flags them, depending on how many times they have failed.
type Recoverer struct {
	store      service.Storage
	stuckAfter time.Duration
}

// New creates a Recoverer. stuckAfter is how long a submission may sit
// in processing before it counts as stranded.
func New(store service.Storage, stuckAfter time.Duration) *Recoverer {
	if stuckAfter <= 0 {
		stuckAfter = time.Hour
	}
	return &Recoverer{store: store, stuckAfter: stuckAfter}
}

// Summary reports what one recovery pass did.
type Summary struct {
	Requeued int
	Flagged  int
}

// Run recovers every stranded submission.
func (r *Recoverer) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	cutoff := time.Now().UTC().Add(-r.stuckAfter)
	stuck, err := r.store.GetStuckSubmissions(ctx, cutoff)
	if err != nil {
		return summary, fmt.Errorf("failed to list stuck submissions: %w", err)
	}

	for i := range stuck {
		sub := &stuck[i]
		if sub.Attempts < maxAttempts {
			if retErr := r.store.ReturnSubmissionToPending(ctx, sub.ID, "recovered after stall"); retErr != nil {
				slog.Error("Failed to requeue stuck submission", "submission", sub.ID, "error", retErr)
				continue
			}
			summary.Requeued++
			slog.Info("Requeued stuck submission", "submission", sub.ID, "attempts", sub.Attempts)
			continue
		}

		reason := fmt.Sprintf("gave up after %d processing attempts; last error: %s", sub.Attempts, sub.LastError)
		if flagErr := r.store.FlagSubmission(ctx, sub.ID, model.FlagAnomaly, reason, model.MatchResult{DecidedAt: time.Now().UTC()}); flagErr != nil {
			slog.Error("Failed to flag stuck submission", "submission", sub.ID, "error", flagErr)
			continue
		}
		summary.Flagged++
		slog.Warn("Flagged repeatedly failing submission", "submission", sub.ID, "attempts", sub.Attempts)
	}

	return summary, nil
}
