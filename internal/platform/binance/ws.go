package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/alanyoungcy/venuearb/internal/feed"
)

const (
	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to read the next message or pong.
	wsPongWait = 30 * time.Second

	// wsPingPeriod sends pings at this interval. Must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	depthStreamSuffix = "@depth@100ms"
)

// DepthStream is one websocket connection to the combined diff-depth stream
// of a set of pairs. It does not reconnect: when the connection drops the
// event channel is closed and the caller starts a new stream.
type DepthStream struct {
	conn    *websocket.Conn
	symbols map[string]domain.Pair
	events  chan feed.DepthEvent

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// DialDepthStream connects to wsURL (e.g. "wss://stream.binance.com:9443")
// and streams depth diffs for pairs.
func DialDepthStream(ctx context.Context, wsURL string, pairs []domain.Pair) (*DepthStream, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("binance/ws: no pairs")
	}
	symbols := make(map[string]domain.Pair, len(pairs))
	streams := make([]string, 0, len(pairs))
	for _, p := range pairs {
		symbols[p.Symbol()] = p
		streams = append(streams, strings.ToLower(p.Symbol())+depthStreamSuffix)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	url := strings.TrimRight(wsURL, "/") + "/stream?streams=" + strings.Join(streams, "/")
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("binance/ws: connect: %w", err)
	}

	s := &DepthStream{
		conn:    conn,
		symbols: symbols,
		events:  make(chan feed.DepthEvent, 256),
		done:    make(chan struct{}),
	}
	s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	s.conn.SetPingHandler(func(appData string) error {
		s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteWait))
	})

	go s.readLoop(ctx)
	go s.pingLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Events returns the diff events. The channel is closed when the stream ends.
func (s *DepthStream) Events() <-chan feed.DepthEvent { return s.events }

// Close shuts the connection down.
func (s *DepthStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait),
		)
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func (s *DepthStream) readLoop(ctx context.Context) {
	defer close(s.events)
	defer s.Close()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		ev, ok := s.decode(message)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

func (s *DepthStream) pingLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// decode parses a combined-stream message into a DepthEvent.
func (s *DepthStream) decode(raw []byte) (feed.DepthEvent, bool) {
	var msg combinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil || len(msg.Data) == 0 {
		return feed.DepthEvent{}, false
	}
	var upd DepthUpdate
	if err := json.Unmarshal(msg.Data, &upd); err != nil || upd.EventType != "depthUpdate" {
		return feed.DepthEvent{}, false
	}
	pair, ok := s.symbols[strings.ToUpper(upd.Symbol)]
	if !ok {
		return feed.DepthEvent{}, false
	}
	return feed.DepthEvent{
		Pair:    pair,
		FirstID: upd.FirstID,
		FinalID: upd.FinalID,
		Asks:    parseChanges(upd.Asks),
		Bids:    parseChanges(upd.Bids),
	}, true
}
