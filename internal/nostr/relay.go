package nostr

import (
	"context"
	"errors"
	"fmt"
	"pvz/internal/providers"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout      = 10 * time.Second
	subscriptionQueue = 128
)

var (
	ErrRelayClosed        = errors.New("relay connection closed")
	ErrSubscriptionClosed = errors.New("subscription closed by relay")
)

type message struct {
	label string
	raw   []json.RawMessage
}

type subscription struct {
	messages chan message
	done     chan struct{}
}

// Relay is a single websocket connection to a relay. Any number of
// subscriptions may be open at once; a read loop routes relay messages to
// them by subscription id.
type Relay struct {
	URL string

	conn    *websocket.Conn
	logger  providers.Logger
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]*subscription

	closed    chan struct{}
	closeOnce sync.Once
	err       error
}

func ConnectRelay(ctx context.Context, dialer *websocket.Dialer, url string, logger providers.Logger) (*Relay, error) {
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	r := &Relay{
		URL:    url,
		conn:   conn,
		logger: logger,
		subs:   make(map[string]*subscription),
		closed: make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

func (r *Relay) readLoop() {
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			r.shutdown(err)
			return
		}

		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 2 {
			continue
		}
		var label string
		if err := json.Unmarshal(raw[0], &label); err != nil {
			continue
		}
		if label == "NOTICE" {
			var notice string
			_ = json.Unmarshal(raw[1], &notice)
			r.logger.Debugf(providers.TypeRelay, "%s notice: %s", r.URL, notice)
			continue
		}

		var subID string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			continue
		}
		r.mu.Lock()
		sub := r.subs[subID]
		r.mu.Unlock()
		if sub == nil {
			continue
		}

		select {
		case sub.messages <- message{label: label, raw: raw}:
		case <-sub.done:
		case <-r.closed:
			return
		}
	}
}

// Query opens a subscription for filter and returns the events received up
// to EOSE. When ctx ends first, the events gathered so far are returned with
// ctx.Err().
func (r *Relay) Query(ctx context.Context, filter Filter) ([]Event, error) {
	id := uuid.NewString()
	sub := &subscription{
		messages: make(chan message, subscriptionQueue),
		done:     make(chan struct{}),
	}

	r.mu.Lock()
	r.subs[id] = sub
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
		close(sub.done)
		if !r.Closed() {
			_ = r.send([]any{"CLOSE", id})
		}
	}()

	if err := r.send([]any{"REQ", id, filter}); err != nil {
		return nil, err
	}

	var events []Event
	for {
		select {
		case <-ctx.Done():
			return events, ctx.Err()
		case <-r.closed:
			return events, r.err
		case m := <-sub.messages:
			switch m.label {
			case "EVENT":
				if len(m.raw) < 3 {
					continue
				}
				var ev Event
				if err := json.Unmarshal(m.raw[2], &ev); err != nil {
					continue
				}
				if filter.Matches(ev) {
					events = append(events, ev)
				}
			case "EOSE":
				return events, nil
			case "CLOSED":
				var reason string
				if len(m.raw) >= 3 {
					_ = json.Unmarshal(m.raw[2], &reason)
				}
				return events, fmt.Errorf("%w: %s", ErrSubscriptionClosed, reason)
			}
		}
	}
}

func (r *Relay) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		r.shutdown(err)
		return fmt.Errorf("write %s: %w", r.URL, err)
	}
	return nil
}

func (r *Relay) Closed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

func (r *Relay) Close() {
	r.writeMu.Lock()
	_ = r.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	r.writeMu.Unlock()
	r.shutdown(ErrRelayClosed)
}

func (r *Relay) shutdown(err error) {
	r.closeOnce.Do(func() {
		if err == nil {
			err = ErrRelayClosed
		}
		r.err = err
		close(r.closed)
		_ = r.conn.Close()
	})
}
