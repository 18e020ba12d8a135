package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"Giorgio/backend/go/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (r *recordingPublisher) Publish(ctx context.Context, key string, v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return r.err
}

func (r *recordingPublisher) Topic() string { return "giorgio.turn_events" }

func TestKafkaSinkKeysByThread(t *testing.T) {
	rec := &recordingPublisher{}
	sink := NewKafkaSink(rec)
	sink.Publish(context.Background(), models.TurnEvent{ThreadID: "t1", Status: models.TurnReceived})
	rec.err = errors.New("broker down")
	sink.Publish(context.Background(), models.TurnEvent{ThreadID: "t2", Status: models.TurnDone})
	assert.Equal(t, []string{"t1", "t2"}, rec.keys)
}

func TestConnectionManagerFanOut(t *testing.T) {
	m := NewConnectionManager()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		m.Add(r.URL.Query().Get("owner"), conn)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	dial := func(owner string) *websocket.Conn {
		c, _, err := websocket.DefaultDialer.Dial(wsURL+"?owner="+owner, nil)
		require.NoError(t, err)
		return c
	}
	a1, a2, b := dial("alice"), dial("alice"), dial("bob")
	defer a1.Close()
	defer a2.Close()
	defer b.Close()
	require.Eventually(t, func() bool { return m.Count("alice") == 2 && m.Count("bob") == 1 }, time.Second, 10*time.Millisecond)

	m.Publish(context.Background(), models.TurnEvent{ThreadID: "t1", OwnerID: "alice", Status: models.TurnDone, Message: "fine"})

	for _, c := range []*websocket.Conn{a1, a2} {
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		var ev models.TurnEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, models.TurnDone, ev.Status)
		assert.Equal(t, "t1", ev.ThreadID)
	}

	_ = b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := b.ReadMessage()
	assert.Error(t, err, "bob 不应收到 alice 的事件")

	m.CloseAll()
	assert.Equal(t, 0, m.Count("alice"))
}

func TestMultiSkipsNil(t *testing.T) {
	rec := &recordingPublisher{}
	Multi{nil, NewKafkaSink(rec)}.Publish(context.Background(), models.TurnEvent{ThreadID: "x"})
	assert.Equal(t, []string{"x"}, rec.keys)
}
