package provider

import (
	"context"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"

	"github.com/eyohen/splitpay/logger"
	"github.com/eyohen/splitpay/types"
)

// Broadcast topics for the announce/request discovery protocol. Wallet
// scripts announce themselves on TopicAnnounce and re-announce whenever
// anything publishes TopicRequest.
const (
	TopicAnnounce = "splitpay:announceProvider"
	TopicRequest  = "splitpay:requestProvider"
)

// DefaultPollInterval paces the legacy-slot poll. Legacy injections on
// mobile have been observed to land tens of seconds after page load.
const DefaultPollInterval = 200 * time.Millisecond

// DefaultFallbackGrace bounds how long a usable non-preferred provider
// is held back waiting for the hinted vendor to announce. Without it a
// hint for an absent wallet would stall discovery to the full deadline.
const DefaultFallbackGrace = 1 * time.Second

// ProviderInfo is the identity part of an announcement.
type ProviderInfo struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Vendor types.Vendor `json:"vendorTag"`
}

// Announcement is the payload broadcast on TopicAnnounce.
type Announcement struct {
	Info ProviderInfo
	RPC  RPC
}

// AnnounceProvider publishes one announcement on the bus.
func AnnounceProvider(bus evbus.Bus, a Announcement) {
	bus.Publish(TopicAnnounce, a)
}

// RespondToRequests wires a wallet-side responder: every TopicRequest
// broadcast triggers a fresh announcement. The returned stop function
// removes the responder.
func RespondToRequests(bus evbus.Bus, a Announcement) (stop func()) {
	handler := func() {
		bus.Publish(TopicAnnounce, a)
	}
	_ = bus.Subscribe(TopicRequest, handler)
	return func() {
		_ = bus.Unsubscribe(TopicRequest, handler)
	}
}

// Registry discovers wallet providers. It races the announce protocol
// against a legacy-slot poll and keeps every provider it has seen for
// the page lifetime, keyed by stable id.
type Registry struct {
	bus   evbus.Bus
	slot  LegacySlot
	log   logger.Logger
	poll  time.Duration
	grace time.Duration

	mu    sync.Mutex
	known map[string]*WalletProvider

	// synthetic ids for legacy providers are stable per RPC identity
	legacyIDs map[RPC]string
}

// RegistryOption tweaks registry construction.
type RegistryOption func(*Registry)

func WithPollInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.poll = d
		}
	}
}

func WithRegistryLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = l
	}
}

// WithFallbackGrace adjusts how long discovery waits for the preferred
// vendor once a non-matching provider is already available.
func WithFallbackGrace(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.grace = d
		}
	}
}

// NewRegistry builds a registry over a broadcast bus and a legacy slot.
// Either collaborator may be inert (evbus.New() with no announcers,
// EmptySlot{}); discovery still terminates at its deadline.
func NewRegistry(bus evbus.Bus, slot LegacySlot, opts ...RegistryOption) *Registry {
	if slot == nil {
		slot = EmptySlot{}
	}
	r := &Registry{
		bus:       bus,
		slot:      slot,
		log:       logger.NoopLogger{},
		poll:      DefaultPollInterval,
		grace:     DefaultFallbackGrace,
		known:     make(map[string]*WalletProvider),
		legacyIDs: make(map[RPC]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Known returns the provider for a previously seen id.
func (r *Registry) Known(id string) (*WalletProvider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.known[id]
	return p, ok
}

func (r *Registry) remember(p *WalletProvider) {
	r.mu.Lock()
	r.known[p.ID] = p
	r.mu.Unlock()
}

func (r *Registry) legacyID(rpc RPC) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.legacyIDs[rpc]; ok {
		return id
	}
	id := "legacy-" + uuid.NewString()
	r.legacyIDs[rpc] = id
	return id
}

// Discover resolves the first usable provider from either discovery
// path, preferring one whose vendor matches the hint when several show
// up. A non-matching provider is held for the grace window and returned
// when no preferred vendor announces. It returns a provider_not_found
// error at the deadline instead of hanging, and tears down its
// subscription and poll timer on exit.
func (r *Registry) Discover(ctx context.Context, timeout time.Duration, preferred types.Vendor) (*WalletProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	candidates := make(chan *WalletProvider, 8)

	handler := func(a Announcement) {
		p := &WalletProvider{
			ID:          a.Info.ID,
			DisplayName: a.Info.Name,
			Vendor:      a.Info.Vendor,
			RPC:         a.RPC,
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		r.remember(p)
		select {
		case candidates <- p:
		default:
		}
	}
	if err := r.bus.Subscribe(TopicAnnounce, handler); err != nil {
		return nil, types.NewError(types.ErrProviderNotFound, "announce subscription failed", err)
	}
	defer func() { _ = r.bus.Unsubscribe(TopicAnnounce, handler) }()

	// Prompt already-loaded wallet scripts to re-announce.
	r.bus.Publish(TopicRequest)

	pollDone := make(chan struct{})
	defer close(pollDone)
	go r.pollLegacy(pollDone, candidates)

	var fallback *WalletProvider
	var graceC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if fallback != nil {
				r.log.Info("discovery deadline, using non-preferred provider", map[string]any{
					"provider": fallback.ID,
					"vendor":   fallback.Vendor.String(),
				})
				return fallback, nil
			}
			return nil, types.NewError(types.ErrProviderNotFound,
				"no wallet provider detected before deadline", ctx.Err())
		case <-graceC:
			r.log.Info("preferred vendor absent, using fallback provider", map[string]any{
				"provider": fallback.ID,
				"vendor":   fallback.Vendor.String(),
			})
			return fallback, nil
		case p := <-candidates:
			r.log.Debug("provider candidate", map[string]any{
				"provider": p.ID,
				"vendor":   p.Vendor.String(),
			})
			if preferred == types.VendorUnknown || preferred == "" || p.Vendor == preferred {
				return p, nil
			}
			if fallback == nil {
				fallback = p
				if r.grace > 0 {
					timer := time.NewTimer(r.grace)
					defer timer.Stop()
					graceC = timer.C
				}
			}
		}
	}
}

// pollLegacy feeds the legacy global slot (and any co-mounted array)
// into the candidate stream until done closes.
func (r *Registry) pollLegacy(done <-chan struct{}, candidates chan<- *WalletProvider) {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	emit := func(inj InjectedProvider) {
		p := &WalletProvider{
			ID:          r.legacyID(inj.RPC),
			DisplayName: "Injected Wallet",
			Vendor:      ProbeVendor(inj.Flags),
			RPC:         inj.RPC,
		}
		r.remember(p)
		select {
		case candidates <- p:
		case <-done:
		}
	}

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if inj, ok := r.slot.Current(); ok && inj.RPC != nil {
				emit(inj)
			}
			for _, inj := range r.slot.CoMounted() {
				if inj.RPC != nil {
					emit(inj)
				}
			}
		}
	}
}
