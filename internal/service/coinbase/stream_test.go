package coinbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"LatentTrader/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct{ malformed atomic.Int32 }

func (m *countingMetrics) RecordEvent(string) {}
func (m *countingMetrics) RecordError(kind string) {
	if kind == "malformed_event" {
		m.malformed.Add(1)
	}
}
func (m *countingMetrics) RecordLastPrice(string, float64) {}
func (m *countingMetrics) RecordLatency(string, float64) {}
func (m *countingMetrics) RecordDecision(string) {}
func (m *countingMetrics) RecordPosition(float64, float64, float64) {}
func (m *countingMetrics) RecordIterations(string, int) {}

// feedServer accepts connections, checks the subscribe message, then
// writes the frames for that connection index and closes the socket.
func feedServer(t *testing.T, frames ...[]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		idx := int(conns.Add(1)) - 1

		var sub subscribeMessage
		if !assert.NoError(t, c.ReadJSON(&sub)) {
			return
		}
		assert.Equal(t, "subscribe", sub.Type)
		assert.Equal(t, []string{"BTC-USD"}, sub.ProductIDs)
		assert.Equal(t, []string{"full"}, sub.Channels)

		if idx < len(frames) {
			for _, f := range frames[idx] {
				if err := c.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
					return
				}
			}
		}
		// hold the socket briefly so the client drains the frames first
		time.Sleep(50 * time.Millisecond)
	}))
	return srv, &conns
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func next(t *testing.T, ch <-chan *models.Event) *models.Event {
	t.Helper()
	select {
	case ev := <-ch:
		require.NotNil(t, ev)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestStreamDecodesAndReconnects(t *testing.T) {
	srv, conns := feedServer(t,
		[]string{
			`{"type":"subscriptions","channels":[]}`,
			`{"type":"match","price":"100.5","size":"0.1","side":"buy","sequence":1,"product_id":"BTC-USD"}`,
			`{not json`,
			`{"type":"received","price":"101","side":"sell","sequence":2}`,
		},
		[]string{
			`{"type":"done","price":"99","reason":"canceled","sequence":3}`,
		},
	)
	defer srv.Close()

	m := &countingMetrics{}
	s := NewStream(wsURL(srv), []string{"BTC-USD"},
		WithReconnectDelay(time.Millisecond), WithStreamMetrics(m))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Subscribe(ctx))
	assert.True(t, s.IsConnected())
	evCh, errCh := s.Read(ctx)

	ev := next(t, evCh)
	assert.Equal(t, models.KindMatch, ev.Kind)
	assert.InDelta(t, 100.5, ev.Price, 1e-12)
	assert.Equal(t, "BTC-USD", ev.Product)

	ev = next(t, evCh)
	assert.Equal(t, models.KindReceived, ev.Kind)
	assert.Equal(t, models.SideSell, ev.Side)
	assert.Equal(t, int32(1), m.malformed.Load())

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected read error after server close")
	}
	assert.False(t, s.IsConnected())

	require.NoError(t, s.Reconnect(ctx))
	ev = next(t, evCh)
	assert.Equal(t, models.KindDone, ev.Kind)
	assert.Equal(t, models.DoneReasonCanceled, ev.Reason)
	assert.Equal(t, int32(2), conns.Load())

	require.NoError(t, s.Close())
	_, open := <-evCh
	for open {
		_, open = <-evCh
	}
}

func TestStreamSubscribeRequiresConnection(t *testing.T) {
	s := NewStream("ws://127.0.0.1:1", []string{"BTC-USD"})
	assert.Error(t, s.Subscribe(context.Background()))
	assert.False(t, s.IsConnected())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Connect(ctx))
}
