package repo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Hub is the remote collaborator of a multi-writer repository: exclusive
// channel locks rooted at an element, and batch push/pull of local changes.
// A repository without a remote uses LocalHub, where everything is a no-op.
type Hub interface {
	// AcquireLock takes the exclusive channel lock rooted at the given
	// element id ("" means the repository root).
	AcquireLock(ctx context.Context, root string) error
	// ReleaseLock releases a previously acquired channel lock.
	ReleaseLock(ctx context.Context, root string) error
	// Push uploads committed local changes with a description.
	Push(ctx context.Context, description string) error
	// Pull merges remote changes into the local copy.
	Pull(ctx context.Context) error
}

// LocalHub is the hub of a repository with no remote.
type LocalHub struct{}

func (LocalHub) AcquireLock(context.Context, string) error { return nil }
func (LocalHub) ReleaseLock(context.Context, string) error { return nil }
func (LocalHub) Push(context.Context, string) error        { return nil }
func (LocalHub) Pull(context.Context) error                { return nil }

// RateLimitError signals the hub asked us to back off. Hub operations wrapped
// in WithRateLimitRetry retry transparently on it; every other error
// propagates immediately.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("hub rate limited, retry after %s", e.RetryAfter)
}

// retryBase is the default backoff when the hub doesn't name a delay.
// Rate-limit windows at the hub are tens of seconds wide.
const retryBase = 20 * time.Second

// WithRateLimitRetry runs op, sleeping with jitter and retrying indefinitely
// on rate-limit signals. Context cancellation stops the wait.
func WithRateLimitRetry(ctx context.Context, op func() error) error {
	for {
		err := op()
		if err == nil {
			return nil
		}
		var rl *RateLimitError
		if !errors.As(err, &rl) {
			return err
		}

		delay := rl.RetryAfter
		if delay <= 0 {
			delay = retryBase
		}
		// Up to 50% jitter so retrying writers don't stampede the hub.
		delay += time.Duration(rand.Int63n(int64(delay) / 2))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// PersistChanges runs the fixed batch-persistence sequence against the hub:
// pull remote changes, merge, commit locally, then push — in that order, to
// minimize merge conflicts. Pull and push retry on rate limiting.
func (r *Repository) PersistChanges(ctx context.Context, description string) error {
	if err := WithRateLimitRetry(ctx, func() error { return r.hub.Pull(ctx) }); err != nil {
		return fmt.Errorf("pull before commit: %w", err)
	}
	if err := r.Commit(ctx, description); err != nil {
		return err
	}
	if err := WithRateLimitRetry(ctx, func() error { return r.hub.Push(ctx, description) }); err != nil {
		return fmt.Errorf("push %q: %w", description, err)
	}
	return nil
}
