// Package feed ingests per-chain liquidity updates: a websocket subscriber
// decodes pool deltas into domain.PoolUpdate and an ingestor applies them to
// the market graph, triggering discovery for the affected tokens.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// UpdateHandler is called for each decoded pool update.
type UpdateHandler func(domain.PoolUpdate)

// wsCommand is the subscription message sent after connecting.
type wsCommand struct {
	Op    string   `json:"op"`
	Pools []string `json:"pools,omitempty"`
}

// poolDeltaMessage is the wire shape of one pool state delta.
type poolDeltaMessage struct {
	Pool       string  `json:"pool"`
	Kind       string  `json:"kind"`
	Token0     wsToken `json:"token0"`
	Token1     wsToken `json:"token1"`
	Reserve0   float64 `json:"reserve0"`
	Reserve1   float64 `json:"reserve1"`
	FeeBps     int     `json:"fee_bps"`
	Amp        float64 `json:"amp,omitempty"`
	Sequence   uint64  `json:"sequence"`
	ObservedAt int64   `json:"observed_at_ms"`
}

type wsToken struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
}

// WSClient is a websocket client for one chain's pool-delta stream. It
// manages the connection lifecycle and dispatches decoded updates to the
// registered handler; reconnection policy belongs to LiquidityFeed.
type WSClient struct {
	wsURL string
	chain domain.ChainID
	conn  *websocket.Conn

	mu     sync.Mutex
	closed bool

	// pools to subscribe to after connecting; empty subscribes to the
	// whole stream.
	pools []string

	handler UpdateHandler

	done chan struct{}
	errs chan error
}

// NewWSClient creates a client for the chain's stream endpoint.
func NewWSClient(wsURL string, chain domain.ChainID, pools []string, handler UpdateHandler) *WSClient {
	return &WSClient{
		wsURL:   wsURL,
		chain:   chain,
		pools:   pools,
		handler: handler,
		done:    make(chan struct{}),
		errs:    make(chan error, 1),
	}
}

// Connect establishes the connection, subscribes, and starts the read and
// ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("feed/ws: %w", domain.ErrContextDone)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed/ws: connect %s: %w", w.wsURL, err)
	}
	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	cmd := wsCommand{Op: "subscribe", Pools: w.pools}
	if err := w.sendCommand(cmd); err != nil {
		conn.Close()
		return fmt.Errorf("feed/ws: subscribe: %w", err)
	}
	return nil
}

func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(cmd)
}

// Err yields the first fatal connection error after Connect succeeds.
func (w *WSClient) Err() <-chan error {
	return w.errs
}

func (w *WSClient) readLoop() {
	for {
		select {
		case <-w.done:
			return
		default:
		}

		_, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case w.errs <- err:
			default:
			}
			return
		}

		update, err := w.decode(data)
		if err != nil {
			// Malformed frames are dropped; the stream carries
			// heartbeats and ack frames this client does not model.
			continue
		}
		if w.handler != nil {
			w.handler(update)
		}
	}
}

func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				select {
				case w.errs <- err:
				default:
				}
				return
			}
		}
	}
}

func (w *WSClient) decode(data []byte) (domain.PoolUpdate, error) {
	var msg poolDeltaMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.PoolUpdate{}, fmt.Errorf("feed/ws: decode: %w", err)
	}
	if msg.Pool == "" {
		return domain.PoolUpdate{}, fmt.Errorf("feed/ws: frame without pool: %w", domain.ErrMalformedUpdate)
	}

	observed := time.Now()
	if msg.ObservedAt > 0 {
		observed = time.UnixMilli(msg.ObservedAt)
	}
	return domain.PoolUpdate{
		Chain: w.chain,
		Pool:  common.HexToAddress(msg.Pool),
		Kind:  domain.PoolKind(msg.Kind),
		Token0: domain.TokenNode{
			Chain:    w.chain,
			Address:  common.HexToAddress(msg.Token0.Address),
			Decimals: msg.Token0.Decimals,
			Symbol:   msg.Token0.Symbol,
		},
		Token1: domain.TokenNode{
			Chain:    w.chain,
			Address:  common.HexToAddress(msg.Token1.Address),
			Decimals: msg.Token1.Decimals,
			Symbol:   msg.Token1.Symbol,
		},
		Reserve0:   msg.Reserve0,
		Reserve1:   msg.Reserve1,
		FeeBps:     msg.FeeBps,
		Amp:        msg.Amp,
		Version:    msg.Sequence,
		ObservedAt: observed,
	}, nil
}

// Close shuts the client down. Safe to call more than once.
func (w *WSClient) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
	if w.conn != nil {
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		w.conn.Close()
	}
}
