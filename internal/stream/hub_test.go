package stream

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/physics"
	"github.com/san-kum/platesim/internal/sim"
)

func startHub(t *testing.T, every int) (*Hub, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(every, nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return hub, conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		t.Fatalf("frame is not json: %v", err)
	}
	return f
}

func TestNewFrameCopiesField(t *testing.T) {
	field := dynamo.NewField(2, 3)
	field.Set(1, 2, 0.5)
	field.Set(0, 1, math.NaN())
	s := dynamo.Snapshot{Step: 4, Time: 0.4, Field: field, Energy: &dynamo.EnergySample{Step: 4, Total: 2}}

	f := NewFrame(s)
	field.Set(1, 2, 9)
	s.Energy.Total = 7

	if f.Nx != 2 || f.Ny != 3 || len(f.Field) != 2 || len(f.Field[0]) != 3 {
		t.Fatalf("unexpected frame shape %dx%d", f.Nx, f.Ny)
	}
	if f.Field[1][2] == nil || *f.Field[1][2] != 0.5 {
		t.Errorf("frame value changed with the source field")
	}
	if f.Field[0][1] != nil {
		t.Errorf("NaN should encode as null")
	}
	if f.Energy == nil || f.Energy.Total != 2 {
		t.Errorf("energy not copied: %+v", f.Energy)
	}
	if _, err := json.Marshal(f); err != nil {
		t.Errorf("frame with NaN failed to encode: %v", err)
	}
}

func TestHubPublish(t *testing.T) {
	hub, conn := startHub(t, 1)

	field := dynamo.NewField(3, 3)
	field.Set(1, 1, 1)
	if !hub.Publish(dynamo.Snapshot{Step: 7, Time: 0.7, Field: field}) {
		t.Fatal("publish rejected")
	}

	f := readFrame(t, conn)
	if f.Step != 7 || f.Time != 0.7 {
		t.Errorf("got step %d t=%g", f.Step, f.Time)
	}
	if *f.Field[1][1] != 1 || *f.Field[0][0] != 0 {
		t.Errorf("unexpected field %v", f.Field)
	}
	if f.Energy != nil {
		t.Errorf("expected no energy, got %+v", f.Energy)
	}
}

func TestHubObservesSolver(t *testing.T) {
	hub, conn := startHub(t, 5)

	cfg := sim.Config{
		Nx: 9, Ny: 9,
		Lx: 1, Ly: 1,
		Rigidity:    1,
		Dt:          1e-4,
		Duration:    0.002,
		Boundary:    dynamo.Clamped,
		EnergyEvery: 5,
	}
	if _, err := sim.Simulate(context.Background(), cfg, physics.Mode{M: 1, N: 1, Amplitude: 1}, sim.WithObserver(hub)); err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	for _, want := range []int{0, 5, 10, 15, 20} {
		f := readFrame(t, conn)
		if f.Step != want {
			t.Fatalf("got step %d, want %d", f.Step, want)
		}
		if f.Nx != 9 || f.Ny != 9 {
			t.Errorf("step %d has shape %dx%d", f.Step, f.Nx, f.Ny)
		}
		if f.Energy == nil || f.Energy.Step != want {
			t.Errorf("step %d missing its energy sample", f.Step)
		}
	}
}

func TestHubSkipsWithoutClients(t *testing.T) {
	hub := NewHub(1, nil)
	hub.OnStep(dynamo.Snapshot{Field: dynamo.NewField(2, 2)})
	if len(hub.broadcast) != 0 {
		t.Errorf("expected nothing queued, got %d", len(hub.broadcast))
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(1, nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
		t.Errorf("expected close frame, got %v", err)
	}
}
