// Package splitpay implements a wallet-side client for split payments:
// provider discovery, environment classification, wallet connection and
// the transaction sequence that pays a splitter contract.
package splitpay

import (
	"context"
	"net/url"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"github.com/eyohen/splitpay/backend"
	"github.com/eyohen/splitpay/connect"
	"github.com/eyohen/splitpay/logger"
	"github.com/eyohen/splitpay/metrics"
	"github.com/eyohen/splitpay/payment"
	"github.com/eyohen/splitpay/provider"
	"github.com/eyohen/splitpay/types"
	"github.com/eyohen/splitpay/utils"
)

// DefaultDiscoveryTimeout bounds provider discovery. Long enough for
// late mobile injections, short enough to fail a dead page visibly.
const DefaultDiscoveryTimeout = 5 * time.Second

// SplitPay is the top-level client. One instance serves a page load;
// Run may be called once per connection event and deduplicates
// re-fired events itself.
type SplitPay struct {
	bus       evbus.Bus
	slot      provider.LegacySlot
	backend   *backend.Client
	log       logger.Logger
	metrics   metrics.Recorder
	sleep     utils.SleepFunc
	sink      types.StateSink
	userAgent string
	timeout   time.Duration
	cfg       payment.Config

	registry     *Registry
	manager      *connect.Manager
	orchestrator *payment.Orchestrator
}

// Registry is re-exported so embedding hosts can announce providers on
// the same bus the client listens on.
type Registry = provider.Registry

// New builds a client. With no options it discovers nothing (inert bus,
// empty legacy slot) and skips backend calls; hosts wire the bus, slot
// and backend for their embedding.
func New(opts ...Option) *SplitPay {
	s := &SplitPay{
		bus:     evbus.New(),
		slot:    provider.EmptySlot{},
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		sleep:   utils.Sleep,
		timeout: DefaultDiscoveryTimeout,
		cfg:     payment.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry = provider.NewRegistry(s.bus, s.slot,
		provider.WithRegistryLogger(logger.Component(s.log, "provider")))
	s.manager = connect.NewManager(
		connect.WithManagerLogger(logger.Component(s.log, "connect")),
		connect.WithManagerMetrics(s.metrics),
		connect.WithSleep(s.sleep),
	)
	orchOpts := []payment.Option{
		payment.WithLogger(logger.Component(s.log, "payment")),
		payment.WithMetrics(s.metrics),
		payment.WithSleep(s.sleep),
		payment.WithConfig(s.cfg),
	}
	if s.backend != nil {
		orchOpts = append(orchOpts, payment.WithBackend(s.backend))
	}
	if s.sink != nil {
		orchOpts = append(orchOpts, payment.WithStateSink(s.sink))
	}
	s.orchestrator = payment.NewOrchestrator(orchOpts...)
	return s
}

// Bus exposes the broadcast bus for wallet-side announcers.
func (s *SplitPay) Bus() evbus.Bus {
	return s.bus
}

func (s *SplitPay) setState(paymentID string, st types.State) {
	if s.sink != nil {
		s.sink(paymentID, st)
	}
}

// Run executes one payment end to end: discover a provider, classify
// the environment, connect, negotiate the chain and run the transaction
// sequence. The returned Result is terminal except when a duplicate
// connection event was deduplicated, in which case State is idle.
func (s *SplitPay) Run(ctx context.Context, intent *types.PaymentIntent, hints *types.PageHints) *types.Result {
	if hints == nil {
		hints = &types.PageHints{PreferredWallet: types.VendorUnknown}
	}
	network := types.NetworkName(intent.ChainID)

	if err := intent.Validate(); err != nil {
		return s.failEarly(intent, network, err)
	}

	s.setState(intent.PaymentID, types.StateDetectingProvider)
	p, err := s.registry.Discover(ctx, s.timeout, hints.PreferredWallet)
	if err != nil {
		return s.failEarly(intent, network, err)
	}

	env := provider.Classify(p, s.coMountedFlags(), s.userAgent, hints.PreferredWallet)
	s.log.Debug("environment classified", map[string]any{
		"isMobile":       env.IsMobile,
		"isInAppBrowser": env.IsInAppBrowser,
		"walletType":     env.WalletType.String(),
	})

	s.setState(intent.PaymentID, types.StateConnecting)
	connector := s.manager.Select(env, hints.PreferredWallet,
		[]connect.Connector{connect.NewInjectedConnector(p)})
	sess, err := s.manager.Connect(ctx, connector)
	if err != nil {
		return s.failEarly(intent, network, err)
	}

	if sess.ChainID != intent.ChainID {
		s.setState(intent.PaymentID, types.StateSwitchingChain)
	}
	if err := s.manager.EnsureChain(ctx, sess, intent.ChainID); err != nil {
		return s.failEarly(intent, network, err)
	}

	if !s.manager.FirstUse(sess) {
		s.log.Info("duplicate connection event ignored", map[string]any{
			"paymentId": intent.PaymentID,
			"sender":    sess.Address.Hex(),
		})
		return &types.Result{State: types.StateIdle, Network: network, Sender: sess.Address.Hex()}
	}

	return s.orchestrator.Execute(ctx, sess, intent)
}

// RunFromParams parses page parameters, resolves a minimal intent
// through the backend when needed, and runs the payment.
func (s *SplitPay) RunFromParams(ctx context.Context, values url.Values) *types.Result {
	intent, hints, err := utils.ParseParams(values)
	if err != nil {
		perr := types.NewError(types.ErrParameterValidation, "unparseable page parameters", err)
		return &types.Result{State: types.StateFailed, Err: perr}
	}
	if intent.TokenContract == "" && intent.PaymentID != "" {
		resolved, err := s.ResolveIntent(ctx, intent.PaymentID)
		if err != nil {
			return &types.Result{State: types.StateFailed, Err: err}
		}
		intent = resolved
	}
	return s.Run(ctx, intent, hints)
}

// ResolveIntent fetches the backend's payment record and converts it
// into a full intent, for pages that only carry a payment id.
func (s *SplitPay) ResolveIntent(ctx context.Context, paymentID string) (*types.PaymentIntent, error) {
	if s.backend == nil {
		return nil, types.NewError(types.ErrParameterValidation,
			"payment "+paymentID+" needs backend resolution but no backend is configured", nil)
	}
	rec, err := s.backend.Payment(ctx, paymentID)
	if err != nil {
		return nil, types.NewError(types.ErrParameterValidation,
			"payment record lookup failed for "+paymentID, err)
	}
	return rec.Intent(), nil
}

// Status proxies the backend's payment status endpoint.
func (s *SplitPay) Status(ctx context.Context, paymentID string) (*backend.StatusResponse, error) {
	if s.backend == nil {
		return nil, types.NewError(types.ErrBackendNotify, "no backend configured", nil)
	}
	return s.backend.Status(ctx, paymentID)
}

// VerifyQR asks the backend to verify the payment on-chain, for flows
// where the wallet completed out of band.
func (s *SplitPay) VerifyQR(ctx context.Context, req backend.VerifyQRRequest) (*backend.VerifyQRResponse, error) {
	if s.backend == nil {
		return nil, types.NewError(types.ErrBackendNotify, "no backend configured", nil)
	}
	return s.backend.VerifyQR(ctx, req)
}

func (s *SplitPay) failEarly(intent *types.PaymentIntent, network string, err error) *types.Result {
	s.setState(intent.PaymentID, types.StateFailed)
	s.metrics.IncCounter("payment_failure", map[string]string{"network": network})
	s.log.Error("payment failed before execution", map[string]any{
		"paymentId": intent.PaymentID,
		"kind":      string(types.KindOf(err)),
		"error":     err.Error(),
	})
	return &types.Result{State: types.StateFailed, Network: network, Err: err}
}

func (s *SplitPay) coMountedFlags() []provider.VendorFlags {
	injections := s.slot.CoMounted()
	flags := make([]provider.VendorFlags, 0, len(injections))
	for _, inj := range injections {
		flags = append(flags, inj.Flags)
	}
	return flags
}
