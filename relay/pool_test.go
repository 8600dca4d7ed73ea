package relay

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echolock/echolock/crypto"
	"github.com/echolock/echolock/internal/common"
)

// fakeRelay is a minimal in-process relay speaking just enough of the
// wire protocol for Pool tests: it accepts PUBLISH when accept is set
// (and answers OK with accepted=false otherwise), and echoes back
// whatever it has stored on SUBSCRIBE, then EOSE.
type fakeRelay struct {
	accept bool
	store  []*Event
}

func (fr *fakeRelay) start(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var raw []json.RawMessage
			if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 1 {
				continue
			}
			var verb string
			_ = json.Unmarshal(raw[0], &verb)
			switch verb {
			case "PUBLISH":
				var e Event
				_ = json.Unmarshal(raw[1], &e)
				if fr.accept {
					fr.store = append(fr.store, &e)
				}
				resp, _ := json.Marshal([]interface{}{"OK", e.ID, fr.accept, "ok"})
				_ = conn.WriteMessage(websocket.TextMessage, resp)
			case "SUBSCRIBE":
				for _, e := range fr.store {
					payload, _ := json.Marshal([]interface{}{"EVENT", "sub", e})
					_ = conn.WriteMessage(websocket.TextMessage, payload)
				}
				eose, _ := json.Marshal([]interface{}{"EOSE", "sub"})
				_ = conn.WriteMessage(websocket.TextMessage, eose)
			case "CLOSE":
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestPoolPublishRequiresMinimumDistribution(t *testing.T) {
	urls := make([]string, MinDistribution-1)
	relay := &fakeRelay{accept: true}
	for i := range urls {
		urls[i] = relay.start(t)
	}
	p := NewPool(urls, fixedClock{time.Unix(0, 0)})

	sk, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)
	e := &Event{CreatedAt: 1, Kind: KindHeartbeat, Tags: [][]string{{"d", "s"}}}
	require.NoError(t, e.Sign(sk))

	err = p.Publish(context.Background(), e)
	require.Error(t, err)
	kind, ok := common.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, common.KindQuorumNotMet, kind)
}

func TestPoolPublishSucceedsWithPartialRejection(t *testing.T) {
	var urls []string
	for i := 0; i < MinDistribution; i++ {
		accept := i >= 2 // reject the first two, accept the rest
		relay := &fakeRelay{accept: accept}
		urls = append(urls, relay.start(t))
	}
	p := NewPool(urls, fixedClock{time.Unix(0, 0)})

	sk, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)
	e := &Event{CreatedAt: 1, Kind: KindHeartbeat, Tags: [][]string{{"d", "s"}}}
	require.NoError(t, e.Sign(sk))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Publish(ctx, e))
}

func TestPoolRetrieveDedupsAcrossRelays(t *testing.T) {
	sk, err := crypto.GenerateSecretKey(rand.Reader)
	require.NoError(t, err)
	e := &Event{CreatedAt: 1, Kind: KindShareStorage, Tags: [][]string{{"d", "s:1"}}, Content: "x"}
	require.NoError(t, e.Sign(sk))

	var urls []string
	for i := 0; i < 3; i++ {
		relay := &fakeRelay{accept: true, store: []*Event{e}}
		urls = append(urls, relay.start(t))
	}
	p := NewPool(urls, fixedClock{time.Unix(0, 0)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := p.Retrieve(ctx, Filter{Kinds: []int{KindShareStorage}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, e.ID, events[0].ID)
}
