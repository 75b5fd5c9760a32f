package telemetry

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"beamctl/pkg/types"
)

func startTestPublisher(t *testing.T) (*Publisher, string) {
	t.Helper()
	p := NewPublisher()
	if err := p.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, p.listener.Addr().String()
}

func TestPublishBroadcastsToSubscriber(t *testing.T) {
	p, addr := startTestPublisher(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// give the accept goroutine a moment to register the subscriber
	deadline := time.Now().Add(time.Second)
	for p.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.SubscriberCount() != 1 {
		t.Fatalf("expected one subscriber, got %d", p.SubscriberCount())
	}

	frame := types.TelemetryFrame{Topic: types.TopicTelemetry, Fields: map[string]interface{}{
		"t": 1.5, "pos": 0.1, "intensity": 1000.0, "mag": 0.2, "deadline_miss": 0,
	}}
	if err := p.Publish(frame); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["topic"] != "telemetry" {
		t.Fatalf("expected topic telemetry, got %v", got["topic"])
	}
	if got["pos"] != 0.1 {
		t.Fatalf("expected pos 0.1, got %v", got["pos"])
	}
}

func TestPublishDropsFramesForFullSubscriberBuffer(t *testing.T) {
	p, addr := startTestPublisher(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for p.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// Flood well past the per-subscriber buffer without draining the
	// socket; Publish must never block on a slow subscriber.
	frame := types.TelemetryFrame{Topic: types.TopicTelemetry, Fields: map[string]interface{}{"t": 0.0}}
	for i := 0; i < 500; i++ {
		if err := p.Publish(frame); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	if p.DroppedFrames() == 0 {
		t.Fatalf("expected some frames to be dropped for the unread subscriber")
	}
}

func TestPublishWithNoSubscribersDoesNotError(t *testing.T) {
	p := NewPublisher()
	if err := p.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer p.Close()

	frame := types.TelemetryFrame{Topic: types.TopicStatus, Fields: map[string]interface{}{"type": "shutdown"}}
	if err := p.Publish(frame); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
