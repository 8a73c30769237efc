package repository

import (
	"context"
	"errors"
)

// Claims tracks uniqueness claims taken during one multi-step write so a
// failed step can hand them back. Backends without cross-record
// transactions use it to keep a failed Create or UpdateDisplayName from
// leaving a wallet or display name claimed by nobody.
type Claims struct {
	releases []func(ctx context.Context) error
}

// Add records how to release a claim that was just taken.
func (c *Claims) Add(release func(ctx context.Context) error) {
	c.releases = append(c.releases, release)
}

// Rollback releases every recorded claim in reverse order and returns cause
// joined with any release failures. Releases run even when ctx is already
// cancelled, since a timed-out step is the usual reason for rolling back.
func (c *Claims) Rollback(ctx context.Context, cause error) error {
	ctx = context.WithoutCancel(ctx)

	errs := []error{cause}
	for i := len(c.releases) - 1; i >= 0; i-- {
		errs = append(errs, c.releases[i](ctx))
	}
	c.releases = nil
	return errors.Join(errs...)
}
