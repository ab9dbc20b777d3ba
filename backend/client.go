// Package backend talks to the split-payment backend service: contract
// metadata lookup, payment record lookup, completion notification,
// status polling and the QR verification fallback.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eyohen/splitpay/logger"
	"github.com/eyohen/splitpay/types"
	"github.com/eyohen/splitpay/utils"
)

const defaultTimeout = 15 * time.Second

// Client is a thin HTTP client for the backend collaborator. Auth
// headers are optional; public-read endpoints work without them.
type Client struct {
	baseURL string
	hc      *http.Client
	headers map[string]string
	log     logger.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithAuthHeaders attaches header-pair credentials to every request.
func WithAuthHeaders(headers map[string]string) Option {
	return func(c *Client) { c.headers = headers }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: defaultTimeout},
		log:     logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ContractInfo is the splitter deployment for one chain.
type ContractInfo struct {
	ChainID int64           `json:"chainId"`
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}

// PaymentRecord is the backend's view of a payment, used to fill a
// minimal-parameter intent.
type PaymentRecord struct {
	PaymentID         string            `json:"paymentId"`
	SplitterPaymentID string            `json:"splitterPaymentId,omitempty"`
	Amount            string            `json:"amount"`
	AmountInWei       string            `json:"amountInWei,omitempty"`
	TokenSymbol       string            `json:"tokenSymbol,omitempty"`
	TokenDecimals     int               `json:"tokenDecimals,omitempty"`
	TokenContract     string            `json:"tokenContract"`
	SplitterContract  string            `json:"splitterContract"`
	ChainID           int64             `json:"chainId"`
	Status            string            `json:"status,omitempty"`
	Recipients        []types.Recipient `json:"recipients"`
}

// Intent converts the record into a payment intent. Recipients beyond
// the splitter's three slots are dropped.
func (r *PaymentRecord) Intent() *types.PaymentIntent {
	intent := &types.PaymentIntent{
		PaymentID:         r.PaymentID,
		SplitterPaymentID: r.SplitterPaymentID,
		AmountDecimal:     r.Amount,
		AmountInWei:       r.AmountInWei,
		TokenSymbol:       r.TokenSymbol,
		TokenDecimals:     r.TokenDecimals,
		TokenContract:     r.TokenContract,
		SplitterContract:  r.SplitterContract,
		ChainID:           r.ChainID,
	}
	for i := 0; i < len(r.Recipients) && i < types.MaxRecipients; i++ {
		intent.Recipients[i] = r.Recipients[i]
	}
	intent.Normalize()
	return intent
}

// NotifyRequest reports a submitted payment transaction.
type NotifyRequest struct {
	PaymentID       string `json:"paymentId"`
	TransactionHash string `json:"transactionHash"`
	Network         string `json:"network"`
	SenderAddress   string `json:"senderAddress"`
}

// StatusResponse is the current backend-side payment status.
type StatusResponse struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
	TxHash    string `json:"txHash,omitempty"`
}

// VerifyQRRequest asks the backend to verify a payment on-chain when
// the client-side notification path is unavailable.
type VerifyQRRequest struct {
	PaymentID string `json:"paymentId"`
	ChainID   int64  `json:"chainId"`
	TxHash    string `json:"txHash,omitempty"`
}

type VerifyQRResponse struct {
	Verified bool   `json:"verified"`
	Status   string `json:"status,omitempty"`
	TxHash   string `json:"txHash,omitempty"`
}

// ContractInfo fetches the splitter ABI and address for a chain.
func (c *Client) ContractInfo(ctx context.Context, chainID int64) (*ContractInfo, error) {
	var info ContractInfo
	if err := c.getJSON(ctx, fmt.Sprintf("/contract/%d", chainID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Payment fetches the full payment record. This endpoint is public.
func (c *Client) Payment(ctx context.Context, paymentID string) (*PaymentRecord, error) {
	var rec PaymentRecord
	if err := c.getJSON(ctx, "/payment/"+paymentID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Notify reports completion. At-most-once from the orchestrator's
// perspective: callers may retry independently but must never resubmit
// the payment transaction.
func (c *Client) Notify(ctx context.Context, req NotifyRequest) error {
	return c.postJSON(ctx, "/process", req, nil)
}

// Status fetches the backend's current view of the payment.
func (c *Client) Status(ctx context.Context, paymentID string) (*StatusResponse, error) {
	var st StatusResponse
	if err := c.getJSON(ctx, "/status/"+paymentID, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// VerifyQR triggers the blockchain-side verification fallback.
func (c *Client) VerifyQR(ctx context.Context, req VerifyQRRequest) (*VerifyQRResponse, error) {
	if req.TxHash != "" {
		if err := utils.ValidateTransactionHash(req.TxHash); err != nil {
			return nil, fmt.Errorf("verify-qr: %w", err)
		}
	}
	var resp VerifyQRResponse
	if err := c.postJSON(ctx, "/verify-qr", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Debug("backend request failed", map[string]any{
			"method": req.Method,
			"path":   req.URL.Path,
			"status": resp.StatusCode,
		})
		return fmt.Errorf("backend %s %s: status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend %s: malformed response: %w", req.URL.Path, err)
	}
	return nil
}
