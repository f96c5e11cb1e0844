package supervisor

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"modelkeeper/internal/topology"
)

func requirePosix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test drives /bin/sh")
	}
}

func TestRegisterSocketRejectsDuplicates(t *testing.T) {
	s := New()
	spec := topology.SocketSpec{Name: "embedder", Kind: topology.SocketTCP, Host: "127.0.0.1"}
	if err := s.RegisterSocket(spec); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	err := s.RegisterSocket(spec)
	if err == nil {
		t.Fatal("expected duplicate socket registration to fail")
	}
	if _, ok := err.(*topology.TopologyError); !ok {
		t.Errorf("expected TopologyError, got %T", err)
	}
}

/**
 * Test stop is idempotent and cleanups fire exactly once
 */
func TestStopIdempotentCleanupOnce(t *testing.T) {
	s := New()
	calls := 0
	s.OnCleanup(func() { calls++ })

	s.Stop()
	s.Stop()
	if calls != 1 {
		t.Errorf("expected exactly one cleanup invocation, got %d", calls)
	}
}

/**
 * Test the bind-then-spawn lifecycle against real child processes
 * @description
 * - Binds a loopback socket, spawns one instance per NumProcs
 * - Placeholder arguments arrive in the child fully resolved
 * - A pre-cancelled context unwinds the whole topology and fires cleanup
 */
func TestStartSpawnsAndUnwinds(t *testing.T) {
	requirePosix(t)

	s := New()
	if err := s.RegisterSocket(topology.SocketSpec{
		Name: "api", Kind: topology.SocketTCP, Host: "127.0.0.1", Port: 0,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterProcess(topology.ProcessSpec{
		Name:     "api_server",
		Role:     topology.RoleAPIServer,
		Command:  "/bin/sh",
		Args:     []string{"-c", "sleep 60", "sh", "fd://$(sockets.api)", "$(worker.wid)"},
		NumProcs: 2,
		CopyEnv:  true,
		Sockets:  []string{"api"},
	}); err != nil {
		t.Fatal(err)
	}

	cleanups := 0
	s.OnCleanup(func() { cleanups++ })

	ready := false
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Start(ctx, func() { ready = true }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !ready {
		t.Error("readiness callback never fired")
	}
	if cleanups != 1 {
		t.Errorf("expected exactly one cleanup invocation, got %d", cleanups)
	}

	details := s.Details()
	if len(details) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(details))
	}
	seenWIDs := make(map[string]bool)
	for _, d := range details {
		if d.Args[3] == "" || strings.Contains(d.Args[3], "$(") {
			t.Errorf("instance %s: socket placeholder unresolved: %v", d.Title, d.Args)
		}
		if !strings.HasPrefix(d.Args[3], "fd://") {
			t.Errorf("instance %s: expected fd:// bind, got %q", d.Title, d.Args[3])
		}
		seenWIDs[d.Args[4]] = true
	}
	if !seenWIDs["1"] || !seenWIDs["2"] {
		t.Errorf("worker ids 1 and 2 not both assigned: %v", seenWIDs)
	}
}

/**
 * Test a spec referencing an unregistered socket aborts start cleanly
 */
func TestStartRejectsUnboundSocketReference(t *testing.T) {
	requirePosix(t)

	s := New()
	if err := s.RegisterProcess(topology.ProcessSpec{
		Name:     "runner_ghost",
		Role:     topology.RoleRunner,
		Command:  "/bin/sh",
		Args:     []string{"-c", "exit 0"},
		NumProcs: 1,
		Sockets:  []string{"ghost"},
	}); err != nil {
		t.Fatal(err)
	}
	cleanups := 0
	s.OnCleanup(func() { cleanups++ })

	if err := s.Start(context.Background(), nil); err == nil {
		t.Fatal("expected start to fail for an unbound socket reference")
	}
	if cleanups != 1 {
		t.Errorf("cleanup did not fire on the failure path (%d calls)", cleanups)
	}
}

func TestRestartUnknownGroup(t *testing.T) {
	if err := New().Restart("nope"); err == nil {
		t.Fatal("expected an error for an unknown process group")
	}
}

/**
 * Test instance stop is safe to repeat and reports the stopped status
 */
func TestProcessInstanceStop(t *testing.T) {
	requirePosix(t)

	inst := NewProcessInstance("sleeper[1]", "runner", "/bin/sh", []string{"-c", "sleep 60"})
	if err := inst.StartProcess(context.Background()); err != nil {
		t.Fatalf("StartProcess failed: %v", err)
	}
	if !inst.CheckProcess() {
		t.Fatal("process not running after start")
	}
	if err := inst.StopProcess(); err != nil {
		t.Fatalf("StopProcess failed: %v", err)
	}
	if err := inst.StopProcess(); err != nil {
		t.Fatalf("second StopProcess must be a no-op: %v", err)
	}
	if inst.CheckProcess() {
		t.Error("process still reported running after stop")
	}
}

/**
 * Test the watcher restarts a crashed instance
 */
func TestProcessInstanceAutoRestart(t *testing.T) {
	requirePosix(t)

	inst := NewProcessInstance("flaky[1]", "runner", "/bin/sh", []string{"-c", "exit 1"})
	inst.EnableWatcher(1, nil)
	if err := inst.StartProcess(context.Background()); err != nil {
		t.Fatalf("StartProcess failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if d := inst.GetDetail(); d.RestartCount >= 1 {
			inst.StopProcess()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("watcher never restarted the crashed process")
}
