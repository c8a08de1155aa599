package livefeed

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chart-hub/src/logger"
	"chart-hub/src/models"
	"chart-hub/src/utils"
)

// -----------------------------------------------------------------------------
// Gateway - the upstream streaming connection.
//
// Symbol subscriptions are reference-counted: the first reference opens the
// upstream channel pair (AM + A), the last release closes it. The read loop
// normalizes raw provider events into strict MAggregateEvent values before
// handing them to the sink; malformed events are dropped at this boundary.
// -----------------------------------------------------------------------------

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
	feedWriteWait      = 5 * time.Second
)

type EventSink func(models.MAggregateEvent)

type Gateway struct {
	url    string
	apiKey string
	logger *logger.Logger
	sink   EventSink

	mu       sync.Mutex
	conn     *websocket.Conn
	refs     map[string]int
	shutdown bool
	done     chan struct{}
}

// -----------------------------------------------------------------------------

func NewGateway(cfg models.MUpstreamConfig, log *logger.Logger, sink EventSink) *Gateway {
	return &Gateway{
		url:    cfg.WsURL,
		apiKey: cfg.APIKey,
		logger: log,
		sink:   sink,
		refs:   make(map[string]int),
		done:   make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// Start launches the connection loop. Returns immediately; the gateway
// connects (and reconnects) in the background.
func (g *Gateway) Start() {
	go g.runLoop()
}

// -----------------------------------------------------------------------------

// Stop tears the connection down permanently.
func (g *Gateway) Stop() {
	g.mu.Lock()
	g.shutdown = true
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()

	close(g.done)
	if conn != nil {
		conn.Close()
	}
}

// -----------------------------------------------------------------------------

// Supports reports whether aggregate streaming is available for a symbol.
// Prefixed instruments (options "O:", indices "I:", ...) have no minute
// aggregate channel on this feed.
func (g *Gateway) Supports(symbol string) bool {
	return symbol != "" && !strings.Contains(symbol, ":")
}

// -----------------------------------------------------------------------------

// SubscribeAggregates adds a reference to the symbol's aggregate stream.
func (g *Gateway) SubscribeAggregates(symbol string) {
	if !g.Supports(symbol) {
		return
	}

	g.mu.Lock()
	g.refs[symbol]++
	first := g.refs[symbol] == 1
	conn := g.conn
	g.mu.Unlock()

	if first && conn != nil {
		g.sendSubscription(conn, "subscribe", symbol)
	}
}

// -----------------------------------------------------------------------------

// UnsubscribeAggregates drops a reference, closing the upstream channels
// when the count reaches zero.
func (g *Gateway) UnsubscribeAggregates(symbol string) {
	g.mu.Lock()
	count, ok := g.refs[symbol]
	if !ok {
		g.mu.Unlock()
		return
	}
	count--
	last := count <= 0
	if last {
		delete(g.refs, symbol)
	} else {
		g.refs[symbol] = count
	}
	conn := g.conn
	g.mu.Unlock()

	if last && conn != nil {
		g.sendSubscription(conn, "unsubscribe", symbol)
	}
}

// -----------------------------------------------------------------------------
// Connection loop
// -----------------------------------------------------------------------------

func (g *Gateway) runLoop() {
	delay := reconnectBaseDelay
	for {
		select {
		case <-g.done:
			return
		default:
		}

		conn, err := g.connect()
		if err != nil {
			g.logger.Warning("Live feed connect failed: %v. Retrying in %v", err, delay)
			select {
			case <-g.done:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		delay = reconnectBaseDelay
		g.readLoop(conn)

		g.mu.Lock()
		if g.conn == conn {
			g.conn = nil
		}
		stopped := g.shutdown
		g.mu.Unlock()
		conn.Close()

		if stopped {
			return
		}
		g.logger.Warning("Live feed disconnected, reconnecting")
	}
}

// -----------------------------------------------------------------------------

// connect dials, authenticates and replays every held subscription.
func (g *Gateway) connect() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(g.url, nil)
	if err != nil {
		return nil, err
	}

	if g.apiKey != "" {
		auth := map[string]string{"action": "auth", "params": g.apiKey}
		conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := conn.WriteJSON(auth); err != nil {
			conn.Close()
			return nil, err
		}
	}

	g.mu.Lock()
	g.conn = conn
	symbols := make([]string, 0, len(g.refs))
	for symbol := range g.refs {
		symbols = append(symbols, symbol)
	}
	g.mu.Unlock()

	for _, symbol := range symbols {
		g.sendSubscription(conn, "subscribe", symbol)
	}

	g.logger.Info("Live feed connected (%d active symbols)", len(symbols))
	return conn, nil
}

// -----------------------------------------------------------------------------

func (g *Gateway) sendSubscription(conn *websocket.Conn, action, symbol string) {
	message := map[string]string{
		"action": action,
		"params": fmt.Sprintf("AM.%s,A.%s", symbol, symbol),
	}
	conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	if err := conn.WriteJSON(message); err != nil {
		g.logger.Warning("Live feed %s %s failed: %v", action, symbol, err)
	}
}

// -----------------------------------------------------------------------------

func (g *Gateway) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var raw []map[string]interface{}
		if err := json.Unmarshal(payload, &raw); err != nil {
			// Status frames arrive as single objects.
			var single map[string]interface{}
			if err := json.Unmarshal(payload, &single); err != nil {
				g.logger.Debug("Unparseable feed frame dropped")
				continue
			}
			raw = []map[string]interface{}{single}
		}

		for _, entry := range raw {
			if event, ok := normalizeFeedEvent(entry); ok {
				g.sink(event)
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Event normalization
// -----------------------------------------------------------------------------

// normalizeFeedEvent converts one raw feed object into a strict aggregate
// event. Provider field aliases: ev (event type), sym/symbol,
// s/t/timestamp (window start), o/h/l/c/v. Non-aggregate frames and
// malformed numerics return false.
func normalizeFeedEvent(raw map[string]interface{}) (models.MAggregateEvent, bool) {
	eventType, _ := raw["ev"].(string)
	if eventType != models.AggEventMinuteFinal && eventType != models.AggEventMinuteUpdate {
		return models.MAggregateEvent{}, false
	}

	symbolValue, _ := raw["sym"].(string)
	if symbolValue == "" {
		symbolValue, _ = raw["symbol"].(string)
	}
	symbol, ok := utils.NormalizeSymbol(symbolValue)
	if !ok {
		return models.MAggregateEvent{}, false
	}

	startRaw, present := raw["s"]
	if !present {
		startRaw, present = raw["t"]
	}
	if !present {
		startRaw = raw["timestamp"]
	}
	start, ok := utils.NormalizeTimestamp(startRaw)
	if !ok || start <= 0 {
		return models.MAggregateEvent{}, false
	}

	open, okO := utils.CoerceFloat(raw["o"])
	high, okH := utils.CoerceFloat(raw["h"])
	low, okL := utils.CoerceFloat(raw["l"])
	closePrice, okC := utils.CoerceFloat(raw["c"])
	if !okO || !okH || !okL || !okC {
		return models.MAggregateEvent{}, false
	}
	volume, okV := utils.CoerceFloat(raw["v"])
	if !okV {
		volume = 0
	}

	return models.MAggregateEvent{
		Symbol:    symbol,
		EventType: eventType,
		Start:     start,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, true
}
