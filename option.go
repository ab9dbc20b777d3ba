package splitpay

import (
	"time"

	evbus "github.com/asaskevich/EventBus"

	"github.com/eyohen/splitpay/backend"
	"github.com/eyohen/splitpay/logger"
	"github.com/eyohen/splitpay/metrics"
	"github.com/eyohen/splitpay/payment"
	"github.com/eyohen/splitpay/provider"
	"github.com/eyohen/splitpay/types"
	"github.com/eyohen/splitpay/utils"
)

type Option func(*SplitPay)

// WithBus shares a broadcast bus with wallet-side announcers.
func WithBus(bus evbus.Bus) Option {
	return func(s *SplitPay) {
		if bus != nil {
			s.bus = bus
		}
	}
}

// WithLegacySlot wires the host's legacy provider slot.
func WithLegacySlot(slot provider.LegacySlot) Option {
	return func(s *SplitPay) {
		if slot != nil {
			s.slot = slot
		}
	}
}

// WithBackend wires the backend client used for intent resolution,
// contract metadata and completion notification.
func WithBackend(c *backend.Client) Option {
	return func(s *SplitPay) { s.backend = c }
}

func WithLogger(l logger.Logger) Option {
	return func(s *SplitPay) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *SplitPay) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithSleep overrides the wait primitive used by every retry and settle
// delay in the flow.
func WithSleep(fn utils.SleepFunc) Option {
	return func(s *SplitPay) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithStateSink receives every state transition, for UI binding.
func WithStateSink(sink types.StateSink) Option {
	return func(s *SplitPay) { s.sink = sink }
}

// WithUserAgent supplies the page user agent for environment
// classification.
func WithUserAgent(ua string) Option {
	return func(s *SplitPay) { s.userAgent = ua }
}

// WithDiscoveryTimeout bounds provider discovery.
func WithDiscoveryTimeout(d time.Duration) Option {
	return func(s *SplitPay) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPaymentConfig tunes orchestrator retry and settle behavior.
func WithPaymentConfig(cfg payment.Config) Option {
	return func(s *SplitPay) { s.cfg = cfg }
}
