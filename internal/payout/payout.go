package payout

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/roamlabs/fieldtrip/internal/booking/domain"
	"github.com/roamlabs/fieldtrip/internal/clock"
	"github.com/roamlabs/fieldtrip/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// payoutStatuses are the statuses on the payout track. Funds become
// available once the holdback elapses.
var payoutStatuses = map[bookingdomain.Status]bool{
	bookingdomain.StatusCompleted:     true,
	bookingdomain.StatusAutoCompleted: true,
	bookingdomain.StatusDisputeWon:    true,
}

// Eligible reports whether a booking's funds can be paid out now. The
// holdback timestamp is authoritative: a no-show or an open dispute
// clears or freezes it upstream.
func Eligible(b *bookingdomain.Booking, now time.Time) bool {
	if b == nil || !payoutStatuses[b.Status] {
		return false
	}
	return b.PayoutEligibleAt != nil && !now.Before(*b.PayoutEligibleAt)
}

// Balances is a host's money, split by where it sits in the lifecycle.
// Amounts are the host share after the platform fee, in minor units.
type Balances struct {
	Available int64 `json:"available"`
	Pending   int64 `json:"pending"`
	Blocked   int64 `json:"blocked"`
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Policy   *config.PolicyHolder
	Bookings bookingdomain.Repository
}

type Calculator struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	policy   *config.PolicyHolder
	bookings bookingdomain.Repository
}

func NewCalculator(p Params) *Calculator {
	return &Calculator{
		db:       p.DB,
		log:      p.Log.Named("payout.calculator"),
		clock:    p.Clock,
		policy:   p.Policy,
		bookings: p.Bookings,
	}
}

// HostBalances aggregates a host's bookings into available, pending and
// blocked buckets.
func (c *Calculator) HostBalances(ctx context.Context, hostID snowflake.ID) (*Balances, error) {
	bookings, err := c.bookings.ListByHost(ctx, c.db, hostID)
	if err != nil {
		return nil, err
	}

	policy := c.policy.Get()
	now := c.clock.Now()

	balances := &Balances{}
	for idx := range bookings {
		b := &bookings[idx]
		share := hostShare(b.ChargedAmount(), policy.PlatformFeePercent)

		switch {
		case b.Status == bookingdomain.StatusDisputed:
			balances.Blocked += share
		case payoutStatuses[b.Status]:
			if Eligible(b, now) {
				balances.Available += share
			} else {
				balances.Pending += share
			}
		case b.Status == bookingdomain.StatusPaid,
			b.Status == bookingdomain.StatusDepositPaid,
			b.Status == bookingdomain.StatusPendingAttendance:
			balances.Pending += share
		}
	}
	return balances, nil
}

func hostShare(amount, feePercent int64) int64 {
	return amount - amount*feePercent/100
}

var Module = fx.Module("payout",
	fx.Provide(NewCalculator),
)
