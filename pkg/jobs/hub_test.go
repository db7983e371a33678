package jobs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/faheemlabs/faheem/pkg/events"
)

func TestHubBroadcastToSubscriber(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	hub.Broadcast(events.NewStatusEvent("job-1", 1, "transcribing", nil))
	hub.Broadcast(events.NewChunkEvent("job-1", 2, "مرحبا", nil))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload EventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Kind != string(events.KindStatus) || payload.Status != "transcribing" || payload.Seq != 1 {
		t.Fatalf("payload = %+v", payload)
	}

	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal second: %v", err)
	}
	if payload.Kind != string(events.KindChunk) || payload.Chunk != "مرحبا" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestHubBroadcastFromManyGoroutines(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	const broadcasters = 8
	const perBroadcaster = 25

	var wg sync.WaitGroup
	for g := 0; g < broadcasters; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perBroadcaster; i++ {
				seq := int64(g*perBroadcaster + i)
				hub.Broadcast(events.NewProgressEvent("job-1", seq, i, nil))
			}
		}(g)
	}
	wg.Wait()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	seen := make(map[int64]bool)
	for len(seen) < broadcasters*perBroadcaster {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read after %d events: %v", len(seen), err)
		}
		var payload EventPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if seen[payload.Seq] {
			t.Fatalf("seq %d delivered twice", payload.Seq)
		}
		seen[payload.Seq] = true
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("subscriber dropped during concurrent broadcast, count = %d", hub.ClientCount())
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("closed client never dropped, count = %d", hub.ClientCount())
		}
		time.Sleep(time.Millisecond)
	}
}
