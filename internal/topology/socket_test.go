package topology

import (
	"errors"
	"testing"
)

func TestSocketSpecAddress(t *testing.T) {
	u := SocketSpec{Name: "embedder", Kind: SocketUnix, Path: "/tmp/s/embedder.sock"}
	if got := u.Address(); got != "unix:///tmp/s/embedder.sock" {
		t.Errorf("unexpected unix address %q", got)
	}
	c := SocketSpec{Name: APIServerSocketName, Kind: SocketTCP, Host: "0.0.0.0", Port: 3000}
	if got := c.Address(); got != "tcp://0.0.0.0:3000" {
		t.Errorf("unexpected tcp address %q", got)
	}
}

/**
 * Test parsing operator-supplied bind addresses for standalone workers
 */
func TestSocketSpecFromURI(t *testing.T) {
	s, err := SocketSpecFromURI("api", "tcp://127.0.0.1:3000", 64)
	if err != nil {
		t.Fatalf("tcp parse failed: %v", err)
	}
	if s.Kind != SocketTCP || s.Host != "127.0.0.1" || s.Port != 3000 || s.Backlog != 64 {
		t.Errorf("unexpected tcp spec: %+v", s)
	}

	s, err = SocketSpecFromURI("embedder", "unix:///tmp/s/embedder.sock", 64)
	if err != nil {
		t.Fatalf("unix parse failed: %v", err)
	}
	if s.Kind != SocketUnix || s.Path != "/tmp/s/embedder.sock" {
		t.Errorf("unexpected unix spec: %+v", s)
	}

	for _, bad := range []string{"http://x:1", "tcp://127.0.0.1", "unix://", "fd://3"} {
		_, err := SocketSpecFromURI("x", bad, 64)
		if err == nil {
			t.Errorf("expected %q to be rejected", bad)
			continue
		}
		var topoErr *TopologyError
		if !errors.As(err, &topoErr) {
			t.Errorf("%q: expected TopologyError, got %T", bad, err)
		}
	}
}

func TestRunnerAddressMapRoundTrip(t *testing.T) {
	m := RunnerAddressMap{
		"embedder":   "unix:///tmp/s/embedder.sock",
		"classifier": "tcp://127.0.0.1:40001",
	}
	encoded, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := DecodeRunnerMap(encoded)
	if err != nil {
		t.Fatalf("DecodeRunnerMap failed: %v", err)
	}
	if len(decoded) != 2 || decoded["embedder"] != m["embedder"] || decoded["classifier"] != m["classifier"] {
		t.Errorf("round trip mismatch: %v", decoded)
	}

	if _, err := DecodeRunnerMap("{not json"); err == nil {
		t.Error("expected an error for malformed input")
	}
}
