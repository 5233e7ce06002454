package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
	"github.com/scale-protocol/robot/internal/query"
	"github.com/scale-protocol/robot/internal/statemap"
	"github.com/scale-protocol/robot/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *statemap.StateMap) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	sm := statemap.New()
	facade := query.New(sm, st)
	handlers := NewHandlers(facade, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/{addr}", handlers.HandleGetUser)
	mux.HandleFunc("GET /position/{addr}", handlers.HandleGetPositions)
	return httptest.NewServer(mux), sm
}

func addrN(n byte) address.Address {
	var a address.Address
	a[0] = n
	return a
}

func TestHandleGetUserReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/user/" + addrN(1).String())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleGetUserReturnsBadRequestOnMalformedAddress(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/user/not-a-real-address")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleGetUserReturnsJoinedInfo(t *testing.T) {
	srv, sm := newTestServer(t)
	defer srv.Close()

	authority := addrN(2)
	sm.SetUser(authority, chain.UserAccount{Authority: authority, Balance: 100})
	sm.SetUserDynamic(authority, chain.UserDynamicData{Equity: 50})

	resp, err := http.Get(srv.URL + "/user/" + authority.String())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var info query.UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Balance != 100 || info.Equity != 50 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestHandleGetPositionsActiveEmptyList(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/position/" + addrN(3).String())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var list []query.PositionInfo
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %v", list)
	}
}
