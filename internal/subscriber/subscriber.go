// Package subscriber owns the two live account streams that feed Watch:
// the protocol program's account stream (markets, users, positions) and
// the dynamically-grown set of oracle price accounts. Both reconnect
// with exponential backoff and re-subscribe everything on reconnect,
// grounded on the teacher's internal/exchange/ws.go connectAndRead/
// pingLoop/dispatchMessage shape, driving the subscription lifecycle
// original_source/src/bot/sub.rs's SubAccount/subscribe_program_accounts
// describe.
package subscriber

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	channelBufferLen = 256
)

// wireAccount is the JSON shape a subscription message and a bootstrap
// fetch both carry: a base64 payload over the wire, decoded into
// chain.RawAccount's raw bytes on receipt.
type wireAccount struct {
	Address  string `json:"address"`
	Payload  string `json:"payload"`
	Lamports uint64 `json:"lamports"`
	Owner    string `json:"owner"`
}

func (w wireAccount) decode() (chain.RawAccount, error) {
	addr, err := address.FromString(w.Address)
	if err != nil {
		return chain.RawAccount{}, fmt.Errorf("subscriber: decode address: %w", err)
	}
	var owner address.Address
	if w.Owner != "" {
		owner, err = address.FromString(w.Owner)
		if err != nil {
			return chain.RawAccount{}, fmt.Errorf("subscriber: decode owner: %w", err)
		}
	}
	payload, err := base64.StdEncoding.DecodeString(w.Payload)
	if err != nil {
		return chain.RawAccount{}, fmt.Errorf("subscriber: decode payload: %w", err)
	}
	return chain.RawAccount{Address: addr, Payload: payload, Lamports: w.Lamports, Owner: owner}, nil
}

// Feed is one reconnecting WebSocket stream of account updates, with a
// dynamically growable subscription set (the price feed adds addresses
// at runtime; the program feed subscribes once to the whole program and
// never grows).
type Feed struct {
	name string
	wsURL string

	subscribedMu sync.Mutex
	subscribed   []string // program IDs or account addresses, re-sent on every reconnect

	connMu sync.Mutex
	conn   *websocket.Conn

	out    chan<- chain.RawAccount
	logger *slog.Logger
}

// NewFeed builds a Feed that dials wsURL and delivers decoded accounts
// onto out. Static subscription targets (e.g. the program ID for the
// account feed) are passed in seed.
func NewFeed(name, wsURL string, seed []string, out chan<- chain.RawAccount, logger *slog.Logger) *Feed {
	return &Feed{
		name:       name,
		wsURL:      wsURL,
		subscribed: append([]string(nil), seed...),
		out:        out,
		logger:     logger.With("component", "subscriber", "feed", name),
	}
}

// Subscribe adds a new target to the live connection (if any) and to the
// re-subscribe set used on reconnect. Used by Watch's dynamic price
// subscription: a newly-seen market's pyth/chainlink addresses are added
// here as they're discovered.
func (f *Feed) Subscribe(target string) {
	f.subscribedMu.Lock()
	for _, s := range f.subscribed {
		if s == target {
			f.subscribedMu.Unlock()
			return
		}
	}
	f.subscribed = append(f.subscribed, target)
	f.subscribedMu.Unlock()

	if err := f.writeSubscribe([]string{target}); err != nil {
		f.logger.Warn("live subscribe failed, will retry on reconnect", "target", target, "error", err)
	}
}

// Run connects and maintains the WebSocket connection with exponential
// backoff (1s up to 30s), re-subscribing everything on every reconnect.
// Blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	f.subscribedMu.Lock()
	targets := append([]string(nil), f.subscribed...)
	f.subscribedMu.Unlock()
	if len(targets) > 0 {
		if err := f.writeSubscribe(targets); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	f.logger.Info("feed connected")

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.dispatch(msg)
	}
}

func (f *Feed) dispatch(data []byte) {
	var w wireAccount
	if err := json.Unmarshal(data, &w); err != nil {
		f.logger.Debug("ignoring non-json message", "data", string(data))
		return
	}
	raw, err := w.decode()
	if err != nil {
		f.logger.Warn("dropping malformed account update", "error", err)
		return
	}
	select {
	case f.out <- raw:
	default:
		f.logger.Warn("output channel full, dropping update", "address", raw.Address)
	}
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

type subscribeMsg struct {
	Operation  string   `json:"operation"`
	Targets    []string `json:"targets"`
	Commitment string   `json:"commitment"`
}

func (f *Feed) writeSubscribe(targets []string) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(subscribeMsg{Operation: "subscribe", Targets: targets, Commitment: "processed"})
}

func (f *Feed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}

// BootstrapProgramAccounts fetches every account currently owned by
// programID over HTTP, mirroring original_source's
// get_all_program_accounts one-shot pre-subscription sweep. Errors are
// returned to the caller; entries that fail to decode are skipped.
func BootstrapProgramAccounts(ctx context.Context, httpURL, programID string, out chan<- chain.RawAccount) error {
	client := resty.New().SetBaseURL(httpURL).SetTimeout(30 * time.Second)

	var accounts []wireAccount
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParam("program", programID).
		SetResult(&accounts).
		Get("/program_accounts")
	if err != nil {
		return fmt.Errorf("subscriber: bootstrap program accounts: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("subscriber: bootstrap program accounts: status %d", resp.StatusCode())
	}

	for _, w := range accounts {
		raw, err := w.decode()
		if err != nil {
			continue
		}
		select {
		case out <- raw:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscriber owns the account feed (the protocol program's accounts) and
// the price feed (the dynamically-grown oracle address set), plus the
// goroutine that drains Watch's dynamic subscribe channel into the price
// feed's live subscription set.
type Subscriber struct {
	Account *Feed
	Price   *Feed

	subscribeCh <-chan address.Address
	seen        map[address.Address]struct{}
	seenMu      sync.Mutex

	wg sync.WaitGroup
}

// New builds a Subscriber. accountCh/priceCh are the channels Watch
// reads from; subscribeCh is the channel Watch (and initial StateMap
// load) write newly-discovered oracle addresses onto.
func New(accountWsURL, priceWsURL, programID string, accountCh, priceCh chan<- chain.RawAccount, subscribeCh <-chan address.Address, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		Account:     NewFeed("account", accountWsURL, []string{programID}, accountCh, logger),
		Price:       NewFeed("price", priceWsURL, nil, priceCh, logger),
		subscribeCh: subscribeCh,
		seen:        make(map[address.Address]struct{}),
	}
}

// Run starts both feeds and the dynamic-subscribe drain loop.
func (s *Subscriber) Run(ctx context.Context) {
	s.wg.Add(3)
	go func() { defer s.wg.Done(); s.Account.Run(ctx) }()
	go func() { defer s.wg.Done(); s.Price.Run(ctx) }()
	go func() { defer s.wg.Done(); s.drainSubscriptions(ctx) }()
}

// Stop awaits both feeds and the drain loop. Callers cancel the shared
// context first.
func (s *Subscriber) Stop() {
	s.wg.Wait()
}

func (s *Subscriber) drainSubscriptions(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case addr, ok := <-s.subscribeCh:
			if !ok {
				return
			}
			s.seenMu.Lock()
			_, dup := s.seen[addr]
			s.seen[addr] = struct{}{}
			s.seenMu.Unlock()
			if dup {
				continue
			}
			s.Price.Subscribe(addr.String())
		}
	}
}
