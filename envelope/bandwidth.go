package envelope

import (
	"context"

	"github.com/cockroachdb/tokenbucket"

	"github.com/ruvnet/daa-sub007/errkind"
)

// BandwidthLimiter gates outbound chunk dispatch to a configured byte
// rate, one instance per connection direction, per §5's "Bandwidth
// limiter: token bucket per direction, atomic".
type BandwidthLimiter struct {
	tb tokenbucket.TokenBucket
}

// NewBandwidthLimiter builds a limiter refilling at ratePerSec bytes/sec
// up to burst bytes of standing budget.
func NewBandwidthLimiter(ratePerSec, burst float64) *BandwidthLimiter {
	l := &BandwidthLimiter{}
	l.tb.Init(tokenbucket.Rate(ratePerSec), tokenbucket.Burst(burst))
	return l
}

// Wait blocks until n bytes' worth of budget is available, or ctx is
// done first.
func (l *BandwidthLimiter) Wait(ctx context.Context, n int) error {
	if l == nil {
		return nil
	}
	if err := l.tb.Wait(ctx, tokenbucket.Tokens(n)); err != nil {
		return errkind.Wrap(errkind.Resource, err, "envelope: bandwidth limiter")
	}
	return nil
}
