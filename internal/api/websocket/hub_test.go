package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/eventlog"
	"github.com/KevinKickass/ProductionPulse/internal/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return msg
}

func TestHubBroadcastsChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zap.NewNop(), func(s types.AppState) any {
		return map[string]any{"status": s.Machine.Status}
	})
	running := types.AppState{Machine: types.Machine{ID: "machine-001", Status: types.StatusRunning}}
	hub.Prime(running)
	go hub.Run(ctx)

	conn := dialHub(t, hub)

	first := readMessage(t, conn)
	if first["type"] != string(MessageTypeStateChanged) {
		t.Fatalf("first message type = %v, want state_changed", first["type"])
	}

	stopped := running
	stopped.Machine.Status = types.StatusStopped
	hub.Notify(eventlog.Change{
		Seq:      1,
		Kind:     eventlog.ChangeDowntimeStarted,
		State:    stopped,
		Downtime: &types.DowntimeEvent{ID: "down-1", Reason: "jam"},
	})

	changed := readMessage(t, conn)
	data := changed["data"].(map[string]any)
	if changed["type"] != string(MessageTypeStateChanged) || data["kind"] != "downtime_started" {
		t.Fatalf("change message = %v", changed)
	}

	machine := readMessage(t, conn)
	mdata := machine["data"].(map[string]any)
	if machine["type"] != string(MessageTypeMachineState) || mdata["state"] != "STOPPED" ||
		mdata["previous_state"] != "RUNNING" || mdata["reason"] != "jam" {
		t.Fatalf("machine message = %v", machine)
	}
}

func TestHubSkipsMachineStateWithoutTransition(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zap.NewNop(), nil)
	running := types.AppState{Machine: types.Machine{Status: types.StatusRunning}}
	hub.Prime(running)
	go hub.Run(ctx)

	conn := dialHub(t, hub)
	readMessage(t, conn)

	hub.Notify(eventlog.Change{Seq: 1, Kind: eventlog.ChangeProductionRecorded, State: running})
	hub.Notify(eventlog.Change{Seq: 2, Kind: eventlog.ChangeProductionRecorded, State: running})

	for i := 0; i < 2; i++ {
		msg := readMessage(t, conn)
		if msg["type"] != string(MessageTypeStateChanged) {
			t.Fatalf("message %d type = %v, want state_changed", i, msg["type"])
		}
	}
	if n := hub.GetClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
}
