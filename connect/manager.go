package connect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/eyohen/splitpay/logger"
	"github.com/eyohen/splitpay/metrics"
	"github.com/eyohen/splitpay/provider"
	"github.com/eyohen/splitpay/types"
	"github.com/eyohen/splitpay/utils"
)

const (
	// DefaultAttempts bounds connection retries.
	DefaultAttempts = 3
	// DefaultRetryDelay outlasts a mobile wallet browser cold start.
	DefaultRetryDelay = 2500 * time.Millisecond
)

// Manager runs the connection state machine: pick a connector, connect
// with bounded retries, then negotiate the chain. It also deduplicates
// re-fired connection notifications per address+chain pair.
type Manager struct {
	log        logger.Logger
	metrics    metrics.Recorder
	sleep      utils.SleepFunc
	attempts   int
	retryDelay time.Duration

	mu        sync.Mutex
	processed map[string]struct{}
}

type ManagerOption func(*Manager)

func WithManagerLogger(l logger.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

func WithManagerMetrics(r metrics.Recorder) ManagerOption {
	return func(m *Manager) { m.metrics = r }
}

func WithSleep(s utils.SleepFunc) ManagerOption {
	return func(m *Manager) { m.sleep = s }
}

func WithAttempts(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.attempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.retryDelay = d
		}
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		log:        logger.NoopLogger{},
		metrics:    metrics.NoopRecorder{},
		sleep:      utils.Sleep,
		attempts:   DefaultAttempts,
		retryDelay: DefaultRetryDelay,
		processed:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Select ranks connectors for the classified environment. In-app
// browsers get the connector matching the classified vendor, falling
// back to any generic injected one; outside, the preferredWallet hint
// ranks first. Returns nil when the list is empty.
func (m *Manager) Select(env types.WalletEnvironment, preferred types.Vendor, connectors []Connector) Connector {
	if len(connectors) == 0 {
		return nil
	}

	want := preferred
	if env.IsInAppBrowser {
		want = env.WalletType
	}
	if want != types.VendorUnknown && want != "" {
		for _, c := range connectors {
			if c.Vendor() == want {
				return c
			}
		}
	}
	for _, c := range connectors {
		if c.Vendor() == types.VendorUnknown || c.Vendor() == "" {
			return c
		}
	}
	return connectors[0]
}

// Connect attempts the connector up to the retry bound. A user
// rejection is terminal on the spot; anything else is retried after a
// fixed delay, then surfaced as a connection failure.
func (m *Manager) Connect(ctx context.Context, c Connector) (*Session, error) {
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		sess, err := c.Connect(ctx)
		if err == nil {
			m.metrics.IncCounter("connect_success",
				map[string]string{"network": types.NetworkName(sess.ChainID)})
			return sess, nil
		}
		if provider.IsUserRejected(err) {
			return nil, types.NewError(types.ErrUserRejected, "user rejected wallet connection", err)
		}
		lastErr = err
		m.log.Warn("connection attempt failed", map[string]any{
			"connector": c.ID(),
			"attempt":   attempt,
			"error":     err.Error(),
		})
		if attempt < m.attempts {
			if serr := m.sleep(ctx, m.retryDelay); serr != nil {
				return nil, types.NewError(types.ErrConnection, "connection cancelled", serr)
			}
		}
	}
	// no session, so no chain to attribute the failure to
	m.metrics.IncCounter("connect_failure", map[string]string{"network": "unknown"})
	return nil, types.NewError(types.ErrConnection,
		fmt.Sprintf("wallet connection failed after %d attempts", m.attempts), lastErr)
}

// EnsureChain switches the session to the intent's chain when needed.
// Switch failures are never auto-retried: the user has to act in the
// wallet, so the flow surfaces a chain mismatch and stops.
func (m *Manager) EnsureChain(ctx context.Context, s *Session, chainID int64) error {
	if s.ChainID == chainID {
		return nil
	}

	_, err := s.RPC.Request(ctx, "wallet_switchEthereumChain",
		map[string]string{"chainId": hexutil.EncodeUint64(uint64(chainID))})
	if err != nil {
		msg := fmt.Sprintf("wallet is on chain %d, payment needs chain %d", s.ChainID, chainID)
		if provider.IsUnrecognizedChain(err) {
			msg = fmt.Sprintf("wallet does not know chain %d", chainID)
		}
		return types.NewError(types.ErrChainMismatch, msg, err)
	}

	// Some wallets acknowledge the switch but report the old chain for
	// a beat; re-read and trust the provider's answer.
	current, err := currentChainID(ctx, s.RPC)
	if err != nil {
		return types.NewError(types.ErrChainMismatch, "chain id unreadable after switch", err)
	}
	if current != chainID {
		return types.NewError(types.ErrChainMismatch,
			fmt.Sprintf("wallet still on chain %d after switch to %d", current, chainID), nil)
	}
	s.ChainID = chainID
	return nil
}

// FirstUse reports whether this address+chain pair has not been
// processed before, and marks it. Upstream libraries re-fire
// connection-established notifications; the payment flow must run once.
func (m *Manager) FirstUse(s *Session) bool {
	key := fmt.Sprintf("%s@%d", s.Address.Hex(), s.ChainID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.processed[key]; seen {
		return false
	}
	m.processed[key] = struct{}{}
	return true
}
