package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eyohen/splitpay/backend"
	"github.com/eyohen/splitpay/connect"
	"github.com/eyohen/splitpay/logger"
	"github.com/eyohen/splitpay/metrics"
	"github.com/eyohen/splitpay/provider"
	"github.com/eyohen/splitpay/types"
	"github.com/eyohen/splitpay/utils"
)

// ErrInFlight rejects a second Execute for a payment id that is still
// running. The transaction submission is the durability boundary; a
// concurrent duplicate could double-pay.
var ErrInFlight = errors.New("payment already in flight")

// Config tunes the orchestrator's retry and settle behavior.
type Config struct {
	// ReadRetries bounds balance/allowance/metadata read attempts.
	ReadRetries int
	// ReadBackoff is multiplied by the attempt number between reads.
	ReadBackoff time.Duration
	// ReceiptPolls bounds approval receipt polling.
	ReceiptPolls int
	// ReceiptPollInterval spaces approval receipt polls.
	ReceiptPollInterval time.Duration
	// ApprovalSettleDelay is the blind wait applied when receipt polling
	// exhausts with the approval still pending.
	ApprovalSettleDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReadRetries:         3,
		ReadBackoff:         time.Second,
		ReceiptPolls:        10,
		ReceiptPollInterval: 1500 * time.Millisecond,
		ApprovalSettleDelay: 3 * time.Second,
	}
}

// Orchestrator runs the split-payment sequence over an established
// wallet session. One instance serves many payments; per-payment state
// lives in the call frame.
type Orchestrator struct {
	backend *backend.Client
	log     logger.Logger
	metrics metrics.Recorder
	sleep   utils.SleepFunc
	sink    types.StateSink
	cfg     Config

	inflight *utils.Flight
}

type Option func(*Orchestrator)

func WithBackend(c *backend.Client) Option {
	return func(o *Orchestrator) { o.backend = c }
}

func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

func WithSleep(s utils.SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

func WithStateSink(s types.StateSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:      logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		sleep:    utils.Sleep,
		cfg:      DefaultConfig(),
		inflight: utils.NewFlight(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) setState(paymentID, network string, s types.State) {
	o.log.Debug("state transition", map[string]any{"paymentId": paymentID, "state": s.String()})
	o.metrics.IncCounter("step", map[string]string{"step": s.String(), "network": network})
	if o.sink != nil {
		o.sink(paymentID, s)
	}
}

func (o *Orchestrator) fail(intent *types.PaymentIntent, network string, err error) *types.Result {
	o.setState(intent.PaymentID, network, types.StateFailed)
	o.metrics.IncCounter("payment_failure", map[string]string{"network": network})
	o.log.Error("payment failed", map[string]any{
		"paymentId": intent.PaymentID,
		"kind":      string(types.KindOf(err)),
		"error":     err.Error(),
	})
	return &types.Result{State: types.StateFailed, Network: network, Err: err}
}

// Execute runs the payment sequence: balance check, allowance check,
// conditional approval, contract metadata resolution, simulation,
// execution and the best-effort backend notification. It returns a
// terminal Result; the Err field is set only on failure.
func (o *Orchestrator) Execute(ctx context.Context, sess *connect.Session, intent *types.PaymentIntent) *types.Result {
	network := types.NetworkName(intent.ChainID)

	if err := intent.Validate(); err != nil {
		return o.fail(intent, network, err)
	}
	if !o.inflight.Acquire(intent.PaymentID) {
		return &types.Result{State: types.StateFailed, Network: network,
			Err: fmt.Errorf("payment %s: %w", intent.PaymentID, ErrInFlight)}
	}
	defer o.inflight.Release(intent.PaymentID)

	amount, err := intent.AmountWei()
	if err != nil {
		return o.fail(intent, network, err)
	}
	chain := &chainClient{rpc: sess.RPC}
	token, err := newERC20(common.HexToAddress(intent.TokenContract), chain)
	if err != nil {
		return o.fail(intent, network, types.NewError(types.ErrParameterValidation, "token binding failed", err))
	}

	started := time.Now()

	// Balance read degrades: an unreadable balance must not block a
	// payment the chain itself would accept.
	o.setState(intent.PaymentID, network, types.StateCheckingBalance)
	balance, err := retryRead(ctx, o, network, "balance", func(c context.Context) (*big.Int, error) {
		return token.BalanceOf(c, sess.Address)
	})
	switch {
	case err != nil && ctx.Err() != nil:
		return o.fail(intent, network, types.NewError(types.ErrBalanceRPC, "balance check cancelled", err))
	case err != nil:
		o.log.Warn("balance unreadable, continuing without check", map[string]any{
			"paymentId": intent.PaymentID, "error": err.Error(),
		})
	case balance.Cmp(amount) < 0:
		return o.fail(intent, network, types.NewError(types.ErrInsufficientBalance,
			fmt.Sprintf("balance %s below required %s",
				utils.FormatAmountFromBigInt(balance, intent.TokenDecimals),
				utils.FormatAmountFromBigInt(amount, intent.TokenDecimals)), nil))
	}

	// Allowance read degrades to zero, which forces an approval; a
	// redundant approval is safe, a skipped one is not.
	o.setState(intent.PaymentID, network, types.StateCheckingAllowance)
	splitterAddr := common.HexToAddress(intent.SplitterContract)
	allowance, err := retryRead(ctx, o, network, "allowance", func(c context.Context) (*big.Int, error) {
		return token.Allowance(c, sess.Address, splitterAddr)
	})
	if err != nil {
		if ctx.Err() != nil {
			return o.fail(intent, network, types.NewError(types.ErrAllowanceRPC, "allowance check cancelled", err))
		}
		o.log.Warn("allowance unreadable, assuming zero", map[string]any{
			"paymentId": intent.PaymentID, "error": err.Error(),
		})
		allowance = new(big.Int)
	}

	result := &types.Result{Network: network, Sender: sess.Address.Hex()}

	if allowance.Cmp(amount) < 0 {
		o.setState(intent.PaymentID, network, types.StateApproving)
		approveHash, err := token.Approve(ctx, sess.Address, splitterAddr, amount)
		if err != nil {
			if provider.IsUserRejected(err) {
				return o.fail(intent, network, types.NewError(types.ErrUserRejected, "user rejected token approval", err))
			}
			return o.fail(intent, network, types.NewError(types.ErrApproval, "token approval failed", err))
		}
		result.ApprovalTxHash = approveHash.Hex()
		if err := o.awaitApproval(ctx, chain, approveHash, intent.PaymentID); err != nil {
			return o.fail(intent, network, err)
		}
	}

	res := o.resolveContract(ctx, intent)
	if res.err != nil {
		return o.fail(intent, network, res.err)
	}
	split, err := newSplitter(res.address, res.abiJSON, chain)
	if err != nil {
		return o.fail(intent, network, types.NewError(types.ErrContractMetadata, "splitter binding failed", err))
	}
	call, err := types.BuildSplitCall(intent)
	if err != nil {
		return o.fail(intent, network, err)
	}

	o.setState(intent.PaymentID, network, types.StateSimulating)
	if err := split.Simulate(ctx, sess.Address, call); err != nil {
		return o.fail(intent, network, err)
	}

	o.setState(intent.PaymentID, network, types.StateExecuting)
	txHash, err := split.Execute(ctx, sess.Address, call)
	if err != nil {
		return o.fail(intent, network, err)
	}
	result.TxHash = txHash.Hex()
	o.metrics.ObserveLatency("execute", time.Since(started), map[string]string{"network": network})

	// Past this point the transaction is submitted. Nothing below may
	// flip the outcome to failure.
	o.setState(intent.PaymentID, network, types.StateNotifyingBackend)
	result.NotifiedBackend = o.notify(ctx, intent, result)

	o.setState(intent.PaymentID, network, types.StateSuccess)
	o.metrics.IncCounter("payment_success", map[string]string{"network": network})
	now := time.Now().UTC()
	result.State = types.StateSuccess
	result.CompletedAt = &now
	o.log.Info("payment complete", map[string]any{
		"paymentId": intent.PaymentID,
		"txHash":    result.TxHash,
		"network":   network,
		"notified":  result.NotifiedBackend,
	})
	return result
}

// awaitApproval polls for the approval receipt, falling back to a blind
// settle delay when the poll budget runs out with the tx still pending.
func (o *Orchestrator) awaitApproval(ctx context.Context, chain *chainClient, hash common.Hash, paymentID string) error {
	for i := 0; i < o.cfg.ReceiptPolls; i++ {
		if err := o.sleep(ctx, o.cfg.ReceiptPollInterval); err != nil {
			return types.NewError(types.ErrApproval, "approval wait cancelled", err)
		}
		rec, err := chain.receipt(ctx, hash)
		if err != nil {
			o.log.Debug("approval receipt poll failed", map[string]any{
				"paymentId": paymentID, "error": err.Error(),
			})
			continue
		}
		if rec == nil {
			continue
		}
		if !rec.succeeded() {
			return types.NewError(types.ErrApproval,
				fmt.Sprintf("approval transaction %s reverted", hash.Hex()), nil)
		}
		return nil
	}
	o.log.Warn("approval receipt not seen, applying settle delay", map[string]any{
		"paymentId": paymentID, "txHash": hash.Hex(),
	})
	if err := o.sleep(ctx, o.cfg.ApprovalSettleDelay); err != nil {
		return types.NewError(types.ErrApproval, "approval wait cancelled", err)
	}
	return nil
}

type contractResolution struct {
	address common.Address
	abiJSON []byte
	err     error
}

// resolveContract prefers the backend's per-chain metadata and degrades
// to the intent's splitter address with the embedded interface. Only
// when neither source yields an address does the flow fail.
func (o *Orchestrator) resolveContract(ctx context.Context, intent *types.PaymentIntent) contractResolution {
	if o.backend != nil {
		info, err := retryRead(ctx, o, types.NetworkName(intent.ChainID), "contract_metadata",
			func(c context.Context) (*backend.ContractInfo, error) {
				return o.backend.ContractInfo(c, intent.ChainID)
			})
		if err == nil {
			return contractResolution{address: common.HexToAddress(info.Address), abiJSON: info.ABI}
		}
		o.log.Warn("contract metadata unavailable, using embedded interface", map[string]any{
			"paymentId": intent.PaymentID, "error": err.Error(),
		})
	}
	if intent.SplitterContract == "" {
		return contractResolution{err: types.NewError(types.ErrContractMetadata,
			fmt.Sprintf("no splitter address available for chain %d", intent.ChainID), nil)}
	}
	return contractResolution{address: common.HexToAddress(intent.SplitterContract)}
}

// notify reports completion to the backend. Best effort only: the
// payment is on-chain, so errors are logged and swallowed.
func (o *Orchestrator) notify(ctx context.Context, intent *types.PaymentIntent, result *types.Result) bool {
	if o.backend == nil {
		return false
	}
	err := o.backend.Notify(ctx, backend.NotifyRequest{
		PaymentID:       intent.PaymentID,
		TransactionHash: result.TxHash,
		Network:         result.Network,
		SenderAddress:   result.Sender,
	})
	if err != nil {
		o.metrics.IncCounter("notify_failure", map[string]string{"network": result.Network})
		o.log.Error("backend notification failed, payment remains successful", map[string]any{
			"paymentId": intent.PaymentID,
			"txHash":    result.TxHash,
			"error":     err.Error(),
		})
		return false
	}
	return true
}

// retryRead runs a read with linear backoff. The final error is
// returned unclassified for the caller's degrade policy.
func retryRead[T any](ctx context.Context, o *Orchestrator, network, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= o.cfg.ReadRetries; attempt++ {
		started := time.Now()
		val, err := fn(ctx)
		o.metrics.ObserveLatency(op, time.Since(started), map[string]string{"network": network})
		if err == nil {
			return val, nil
		}
		lastErr = err
		o.log.Debug("read failed", map[string]any{"op": op, "attempt": attempt, "error": err.Error()})
		if attempt < o.cfg.ReadRetries {
			if serr := o.sleep(ctx, o.cfg.ReadBackoff*time.Duration(attempt)); serr != nil {
				return zero, serr
			}
		}
	}
	return zero, lastErr
}
