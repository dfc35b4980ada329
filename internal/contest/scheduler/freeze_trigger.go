// Package scheduler provides the delayed auto-freeze job. At most one pending
// job exists per contest id; scheduling again replaces the prior instant.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/collection"
	"go.uber.org/zap"

	"arbiter/pkg/utils/logger"
)

const (
	tickInterval = time.Second
	wheelSlots   = 600
)

// FireFunc performs the freeze when a job elapses. It must be idempotent:
// the trigger may fire for a contest staff already froze by hand.
type FireFunc func(ctx context.Context, contestID int64)

// FreezeTrigger schedules one auto-freeze per contest on a timing wheel.
type FreezeTrigger struct {
	wheel *collection.TimingWheel
	fire  FireFunc
}

func NewFreezeTrigger(fire FireFunc) (*FreezeTrigger, error) {
	if fire == nil {
		return nil, errors.New("fire func is required")
	}
	t := &FreezeTrigger{fire: fire}
	wheel, err := collection.NewTimingWheel(tickInterval, wheelSlots, func(key, value interface{}) {
		contestID, ok := key.(int64)
		if !ok {
			return
		}
		ctx := context.Background()
		logger.Info(ctx, "auto freeze fired", zap.Int64("contest_id", contestID))
		t.fire(ctx, contestID)
	})
	if err != nil {
		return nil, err
	}
	t.wheel = wheel
	return t, nil
}

// Schedule arms (or re-arms) the freeze for contestID at firesAt. An instant
// already in the past fires on the next tick.
func (t *FreezeTrigger) Schedule(contestID int64, firesAt time.Time) error {
	if contestID <= 0 {
		return errors.New("contestID is required")
	}
	delay := time.Until(firesAt)
	if delay < tickInterval {
		delay = tickInterval
	}
	// SetTimer with an existing key replaces the pending job.
	return t.wheel.SetTimer(contestID, firesAt, delay)
}

// Cancel removes any pending job for contestID. Unknown ids are a no-op.
func (t *FreezeTrigger) Cancel(contestID int64) error {
	if contestID <= 0 {
		return errors.New("contestID is required")
	}
	return t.wheel.RemoveTimer(contestID)
}

// Stop drains the wheel. Pending jobs do not fire after Stop.
func (t *FreezeTrigger) Stop() {
	t.wheel.Stop()
}
