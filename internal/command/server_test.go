package command

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"beamctl/pkg/types"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer()
	if err := s.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, s.listener.Addr().String()
}

func TestServerRoundTripsOneRequest(t *testing.T) {
	s, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"cmd":"get_status"}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	req, reply, ok := s.Receive(2 * time.Second)
	if !ok {
		t.Fatalf("expected a pending request")
	}
	if req.Cmd != "get_status" {
		t.Fatalf("expected cmd get_status, got %q", req.Cmd)
	}
	reply(types.CommandResponse{"ok": true, "loop_count": uint64(7)})

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["ok"] != true {
		t.Fatalf("expected ok:true, got %v", resp)
	}
}

func TestReceiveTimesOutWithNoRequest(t *testing.T) {
	s, _ := startTestServer(t)

	_, _, ok := s.Receive(20 * time.Millisecond)
	if ok {
		t.Fatalf("expected no pending request")
	}
}

func TestServerReturnsParseErrorOnMalformedJSON(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("not json\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["ok"] != false || resp["error"] != "JSON parse error" {
		t.Fatalf("expected JSON parse error response, got %v", resp)
	}
}
