package repo

import (
	"context"
	"errors"
	"fmt"
)

// ErrChannelAssertion marks a channel precondition violation. These indicate
// a broken framework invariant, not a transient external condition, and are
// always fatal.
var ErrChannelAssertion = errors.New("channel precondition violated")

// ChannelPreconditions captures the engine-side state asserted before
// entering an exclusively-locked channel.
type ChannelPreconditions struct {
	// PendingWriteRequests: writes already queued outside any channel.
	PendingWriteRequests bool
	// BulkMode: the repository must be batching requests.
	BulkMode bool
	// HoldsSchemaLock / HoldsCodeSpecLock: repository-wide locks that must
	// not be held while a channel is entered.
	HoldsSchemaLock   bool
	HoldsCodeSpecLock bool
	// PreviousRootLocked: the previous channel root is still locked by this
	// process.
	PreviousRootLocked bool
}

// Channel is an exclusively-locked scope in the remote-backed repository.
// All loader/schema writes go through a channel rooted at the repository
// root; data writes go through a channel rooted at the subject being
// synchronized.
type Channel struct {
	repo   *Repository
	root   string
	locked bool
}

// EnterChannel asserts the preconditions, then acquires the exclusive lock
// for the given root, retrying transparently on hub rate limiting.
func (r *Repository) EnterChannel(ctx context.Context, root string, pre ChannelPreconditions) (*Channel, error) {
	switch {
	case pre.PendingWriteRequests:
		return nil, fmt.Errorf("%w: pending write requests outside channel", ErrChannelAssertion)
	case !pre.BulkMode:
		return nil, fmt.Errorf("%w: not in bulk-request mode", ErrChannelAssertion)
	case pre.HoldsSchemaLock:
		return nil, fmt.Errorf("%w: schema-wide lock held", ErrChannelAssertion)
	case pre.HoldsCodeSpecLock:
		return nil, fmt.Errorf("%w: code-spec-wide lock held", ErrChannelAssertion)
	case pre.PreviousRootLocked:
		return nil, fmt.Errorf("%w: previous channel root still locked", ErrChannelAssertion)
	}

	if err := WithRateLimitRetry(ctx, func() error { return r.hub.AcquireLock(ctx, root) }); err != nil {
		return nil, fmt.Errorf("acquire channel lock %q: %w", root, err)
	}
	return &Channel{repo: r, root: root, locked: true}, nil
}

// Root returns the channel's lock root ("" for the repository root).
func (c *Channel) Root() string { return c.root }

// Locked reports whether this process still holds the channel lock.
func (c *Channel) Locked() bool { return c != nil && c.locked }

// Exit releases the channel lock.
func (c *Channel) Exit(ctx context.Context) error {
	if !c.locked {
		return nil
	}
	if err := c.repo.hub.ReleaseLock(ctx, c.root); err != nil {
		return fmt.Errorf("release channel lock %q: %w", c.root, err)
	}
	c.locked = false
	return nil
}
