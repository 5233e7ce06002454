package chainclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/errs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testKeypair(t *testing.T) *address.Keypair {
	t.Helper()
	kp, err := address.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return kp
}

func TestBurstPositionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req burstRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.UserAccount == "" || req.PositionAccount == "" {
			t.Fatalf("expected populated addresses in request body, got %+v", req)
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(burstResponse{Signature: "sig123"})
	}))
	defer srv.Close()

	client := New(Config{RPCURL: srv.URL, BucketCapacity: 10, BucketRate: 100}, testKeypair(t), testLogger())
	var user, market, position, pyth, chainlinkAddr address.Address
	user[0], market[0], position[0], pyth[0], chainlinkAddr[0] = 1, 2, 3, 4, 5

	if err := client.BurstPosition(context.Background(), user, market, position, pyth, chainlinkAddr); err != nil {
		t.Fatalf("BurstPosition: %v", err)
	}
}

func TestBurstPositionFoldsErrorIntoRpcError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(burstResponse{ErrorCode: "account_not_found", Detail: "position account missing"})
	}))
	defer srv.Close()

	client := New(Config{RPCURL: srv.URL, BucketCapacity: 10, BucketRate: 100}, testKeypair(t), testLogger())
	// RetryCount(3) will re-attempt against the same 500 handler; that's fine, it
	// still ultimately returns an RpcError.
	err := client.BurstPosition(context.Background(), address.Zero, address.Zero, address.Zero, address.Zero, address.Zero)
	if err == nil {
		t.Fatal("expected an error")
	}
	var rpcErr *errs.RpcError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *errs.RpcError, got %T: %v", err, err)
	}
	if !errors.Is(err, errs.ErrUnknown) {
		t.Fatal("expected error to unwrap to errs.ErrUnknown")
	}
}

func TestBurstPositionRespectsContextCancellation(t *testing.T) {
	client := New(Config{RPCURL: "http://127.0.0.1:0", BucketCapacity: 1, BucketRate: 0.0001}, testKeypair(t), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Drain the single token first so the rate limiter actually blocks and
	// observes the cancellation rather than the HTTP call failing first.
	_ = client.limiter.Wait(context.Background())

	err := client.BurstPosition(ctx, address.Zero, address.Zero, address.Zero, address.Zero, address.Zero)
	if err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
}
