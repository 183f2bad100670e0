package nostr

import (
	"net/http"
	"net/http/httptest"
	"pvz/internal/providers"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type nopLogger struct{}

func (nopLogger) Errorf(_ providers.TypeEnum, _ string, _ ...interface{}) {}
func (nopLogger) Warnf(_ providers.TypeEnum, _ string, _ ...interface{})  {}
func (nopLogger) Debugf(_ providers.TypeEnum, _ string, _ ...interface{}) {}
func (nopLogger) Infof(_ providers.TypeEnum, _ string, _ ...interface{})  {}
func (nopLogger) Fatalf(_ providers.TypeEnum, _ string, _ ...interface{}) {}
func (nopLogger) Close()                                                  {}

// fakeRelay answers REQ with its stored events filtered by the request,
// followed by EOSE. silent suppresses EOSE; closeReason answers with CLOSED.
type fakeRelay struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	events      []Event
	silent      bool
	closeReason string
	reqs        int
	closes      int
}

func newFakeRelay(t *testing.T, events ...Event) *fakeRelay {
	t.Helper()
	fr := &fakeRelay{t: t, events: events}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fr.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fr.serve(conn)
	}))
	t.Cleanup(fr.server.Close)
	return fr
}

func (fr *fakeRelay) URL() string {
	return "ws://" + strings.TrimPrefix(fr.server.URL, "http://")
}

func (fr *fakeRelay) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 2 {
			continue
		}
		var label, subID string
		_ = json.Unmarshal(raw[0], &label)
		_ = json.Unmarshal(raw[1], &subID)

		switch label {
		case "CLOSE":
			fr.mu.Lock()
			fr.closes++
			fr.mu.Unlock()
		case "REQ":
			var filter Filter
			if len(raw) >= 3 {
				_ = json.Unmarshal(raw[2], &filter)
			}
			fr.mu.Lock()
			fr.reqs++
			events := append([]Event(nil), fr.events...)
			silent, reason := fr.silent, fr.closeReason
			fr.mu.Unlock()

			if reason != "" {
				fr.write(conn, []any{"CLOSED", subID, reason})
				continue
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`["NOTICE","hello"]`))
			for _, ev := range events {
				if filter.Matches(ev) {
					fr.write(conn, []any{"EVENT", subID, ev})
				}
			}
			if !silent {
				fr.write(conn, []any{"EOSE", subID})
			}
		}
	}
}

func (fr *fakeRelay) write(conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fr.t.Errorf("marshal: %v", err)
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func (fr *fakeRelay) setSilent() {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.silent = true
}

func (fr *fakeRelay) setCloseReason(reason string) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.closeReason = reason
}

func (fr *fakeRelay) requests() int {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return fr.reqs
}

func pk(c byte) string {
	return strings.Repeat(string(c), 64)
}

func ev(id string, author string, kind int, createdAt int64) Event {
	return Event{ID: id, PubKey: author, Kind: kind, CreatedAt: createdAt, Tags: [][]string{}}
}
