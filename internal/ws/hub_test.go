package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xtrntr/parimut/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestHub(t *testing.T) (*Hub, *websocket.Conn, func()) {
	t.Helper()
	hub := NewHub(func(r *http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return hub, conn, func() {
		conn.Close()
		srv.Close()
	}
}

// A ping round-trip proves the reader loop has processed every message sent
// before it, so the preceding subscribe is registered.
func awaitPong(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "ping"}))
	var pong map[string]string
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong["type"])
}

func TestHub_BroadcastReachesSubscriber(t *testing.T) {
	hub, conn, done := dialTestHub(t)
	defer done()

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", EventID: 7}))
	awaitPong(t, conn)

	hub.Broadcast(&models.OddsView{EventID: 7, Coefficients: map[string]float64{"A": 1.9}})

	var upd OddsUpdate
	require.NoError(t, conn.ReadJSON(&upd))
	assert.Equal(t, "odds", upd.Type)
	assert.Equal(t, 7, upd.Odds.EventID)
	assert.InDelta(t, 1.9, upd.Odds.Coefficients["A"], 1e-9)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub, conn, done := dialTestHub(t)
	defer done()

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", EventID: 7}))
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "unsubscribe", EventID: 7}))
	awaitPong(t, conn)

	hub.Broadcast(&models.OddsView{EventID: 7})

	// Only the pong below should arrive; an odds frame first means the
	// unsubscribe was ignored.
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "ping"}))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg["type"])
}

// Broadcasts fan in from many handler goroutines while the reader loop
// answers pings on the same connection. Every write must hold the
// connection's mutex or the race detector flags concurrent WriteMessage
// calls; the count check catches interleaved frames.
func TestHub_ConcurrentBroadcasts(t *testing.T) {
	hub, conn, done := dialTestHub(t)
	defer done()

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", EventID: 1}))
	awaitPong(t, conn)

	const writers = 16
	const perWriter = 50
	view := &models.OddsView{EventID: 1, Coefficients: map[string]float64{"A": 1.5, "B": 2.4}}

	received := make(chan int, 1)
	go func() {
		odds := 0
		for odds < writers*perWriter {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				break
			}
			if msg["type"] == "odds" {
				odds++
			}
		}
		received <- odds
	}()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				hub.Broadcast(view)
			}
		}()
	}
	// Pings sent mid-storm make the reader loop write pongs while the
	// broadcast goroutines write odds frames.
	for i := 0; i < 10; i++ {
		require.NoError(t, conn.WriteJSON(ClientMsg{Type: "ping"}))
	}
	wg.Wait()

	select {
	case n := <-received:
		assert.Equal(t, writers*perWriter, n)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for broadcast frames")
	}
}
