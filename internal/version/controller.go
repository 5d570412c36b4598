package version

import (
	"fmt"

	"gitnot/internal/errors"

	"go.uber.org/zap"
)

// Marker persists the single current version.
type Marker interface {
	Version() (Version, error)

	// SwapVersion replaces old with new atomically and fails if the stored value
	// is not old.
	SwapVersion(old, new Version) error
}

// Controller owns the current version and its bump rule.
type Controller struct {
	marker Marker
	policy Policy
	logger *zap.Logger
}

func NewController(marker Marker, policy Policy, logger *zap.Logger) *Controller {
	if policy == nil {
		policy = MinorCarry{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		marker: marker,
		policy: policy,
		logger: logger,
	}
}

func (c *Controller) Current() (Version, error) {
	return c.marker.Version()
}

// Next applies the policy and rejects a result that does not move forward.
func (c *Controller) Next(prev Version) (Version, error) {
	next := c.policy.Next(prev)
	if !prev.Less(next) {
		return Version{}, errors.CorruptState("bump version",
			fmt.Sprintf("policy produced %s after %s", next, prev))
	}
	return next, nil
}

// Commit advances the stored marker from from to to.
func (c *Controller) Commit(from, to Version) error {
	if !from.Less(to) {
		return errors.CorruptState("commit version", fmt.Sprintf("%s does not follow %s", to, from))
	}
	if err := c.marker.SwapVersion(from, to); err != nil {
		return fmt.Errorf("committing version %s: %w", to, err)
	}
	c.logger.Info("version advanced", zap.Stringer("from", from), zap.Stringer("to", to))
	return nil
}

// Rollback returns the marker to from after a run failed past Commit.
func (c *Controller) Rollback(to, from Version) error {
	if err := c.marker.SwapVersion(to, from); err != nil {
		return fmt.Errorf("rolling back version %s: %w", to, err)
	}
	c.logger.Warn("version rolled back", zap.Stringer("from", to), zap.Stringer("to", from))
	return nil
}
