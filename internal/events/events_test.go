package events

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ForesightX/internal/agent"
	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/observability/alerting"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu       sync.Mutex
	messages []published
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{subject: subject, data: data})
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestNATSPublisherSubjects(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, " foresightx. ")

	assert.Equal(t, "foresightx.actions.CREATE_PREDICTION_MARKET", p.ActionSubject("create_prediction_market"))
	assert.Equal(t, "foresightx.actions.NONE", p.ActionSubject(""))
	assert.Equal(t, "foresightx.actions.A_B", p.ActionSubject("a.b"))
	assert.Equal(t, "foresightx.alerts", p.AlertSubject())
	assert.Equal(t, "foresightx.alerts", newNATSPublisher(conn, "").AlertSubject())
}

func TestNATSPublisherPublishesEventsAndAlerts(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, "fx")

	p.Observe(context.Background(), agent.Event{
		RoomID:  "room-1",
		Action:  "TRANSFER_MOVE",
		Success: true,
		Content: agent.Content{Text: "Successfully transferred 1 MOVE"},
	})
	require.NoError(t, p.Notify(context.Background(), alerting.Event{Code: xerrors.CodeChainFailure, Message: "tx aborted"}))
	require.NoError(t, p.Close())

	require.Len(t, conn.messages, 2)
	assert.Equal(t, "fx.actions.TRANSFER_MOVE", conn.messages[0].subject)
	var event agent.Event
	require.NoError(t, json.Unmarshal(conn.messages[0].data, &event))
	assert.Equal(t, "room-1", event.RoomID)
	assert.True(t, event.Success)

	assert.Equal(t, "fx.alerts", conn.messages[1].subject)
	assert.Contains(t, string(conn.messages[1].data), "CHAIN_FAILURE")
	assert.True(t, conn.drained)
	assert.Equal(t, alerting.ChannelNATS, p.Channel())
}

func dialHub(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubRoutesEventsByTopic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	roomClient := dialHub(t, srv, "?room=lobby")
	actionClient := dialHub(t, srv, "?topic="+TopicActions)
	waitForClients(t, hub, 2)

	hub.Observe(ctx, agent.Event{RoomID: "lobby", Action: "NONE", Success: true, Content: agent.Content{Text: "gm"}})
	hub.Observe(ctx, agent.Event{RoomID: "other", Action: "CALL_CONTRACT", Success: false})

	got := readMessage(t, roomClient)
	assert.Equal(t, RoomTopic("lobby"), got.Topic)
	assert.Equal(t, "reply", got.Type)
	var event agent.Event
	require.NoError(t, json.Unmarshal(got.Data, &event))
	assert.Equal(t, "gm", event.Content.Text)

	got = readMessage(t, actionClient)
	assert.Equal(t, TopicActions, got.Topic)
	assert.Equal(t, "action", got.Type)
	require.NoError(t, json.Unmarshal(got.Data, &event))
	assert.Equal(t, "CALL_CONTRACT", event.Action)
}

func TestHubSubscribeCommand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv, "?topic="+TopicTasks)
	waitForClients(t, hub, 1)
	require.NoError(t, conn.WriteJSON(clientCommand{Type: "subscribe", Topics: []string{TopicAlerts}}))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.Publish(TopicAlerts, "alert", map[string]string{"code": "CHAIN_FAILURE"})
			}
		}
	}()

	got := readMessage(t, conn)
	assert.Equal(t, TopicAlerts, got.Topic)
	assert.Equal(t, "alert", got.Type)
}
