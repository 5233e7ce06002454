// Package chainclient builds and submits the single on-chain instruction
// this service issues: the forced close-position transaction. Grounded
// on original_source/src/client.rs's burst_position and
// debug_rpc_error, transported the way the teacher's
// internal/exchange/client.go wraps resty with retry and rate limiting.
package chainclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/errs"
)

// Config carries the RPC endpoint and rate-limit tuning.
type Config struct {
	RPCURL        string
	BucketCapacity float64
	BucketRate     float64
}

// Client submits the burst-position request over the Chain RPC
// collaborator's transaction endpoint on behalf of the operator keypair.
// The request names the operator's address; it carries no signature.
type Client struct {
	http    *resty.Client
	limiter *TokenBucket
	keypair *address.Keypair
	logger  *slog.Logger
}

// New builds a Client. keypair identifies the operator in each request;
// it is the process-wide immutable value spec.md §9 calls for, passed in
// by shared reference.
func New(cfg Config, keypair *address.Keypair, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.RPCURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	capacity := cfg.BucketCapacity
	if capacity <= 0 {
		capacity = 20
	}
	rate := cfg.BucketRate
	if rate <= 0 {
		rate = 5
	}

	return &Client{
		http:    httpClient,
		limiter: NewTokenBucket(capacity, rate),
		keypair: keypair,
		logger:  logger.With("component", "chainclient"),
	}
}

type burstRequest struct {
	Operator              string `json:"operator"`
	UserAccount           string `json:"user_account"`
	MarketAccount         string `json:"market_account"`
	PositionAccount       string `json:"position_account"`
	PythPriceAccount      string `json:"pyth_price_account"`
	ChainlinkPriceAccount string `json:"chainlink_price_account"`
}

type burstResponse struct {
	Signature string `json:"signature"`
	ErrorCode string `json:"error_code"`
	Detail    string `json:"detail"`
}

// BurstPosition builds and submits a close-position request for one
// position, naming the operator's address; the request is not signed.
// Returns nil once the
// transaction has been acknowledged by the RPC collaborator. Every
// concrete RPC failure reason is logged at debug before being folded
// into a single errs.RpcError surface — mirroring
// original_source/src/client.rs's debug_rpc_error, which never exposes
// the specific failure variant to its caller either.
func (c *Client) BurstPosition(ctx context.Context, user, market, position, pyth, chainlink address.Address) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chainclient: rate limit wait: %w", err)
	}

	req := burstRequest{
		Operator:              c.keypair.Address().String(),
		UserAccount:           user.String(),
		MarketAccount:         market.String(),
		PositionAccount:       position.String(),
		PythPriceAccount:      pyth.String(),
		ChainlinkPriceAccount: chainlink.String(),
	}

	var result burstResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/burst_position")
	if err != nil {
		c.logger.Debug("rpc transport error", "user", user, "position", position, "error", err)
		return &errs.RpcError{Detail: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Debug("rpc non-ok response", "user", user, "position", position,
			"status", resp.StatusCode(), "error_code", result.ErrorCode, "detail", result.Detail)
		return &errs.RpcError{Detail: fmt.Sprintf("status %d: %s", resp.StatusCode(), result.Detail)}
	}

	c.logger.Debug("burst position success", "user", user, "position", position, "signature", result.Signature)
	return nil
}
