package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"modelkeeper/internal/config"
	"modelkeeper/internal/service"
)

func testServeConfig(t *testing.T) *config.ServeConfig {
	t.Helper()
	return &config.ServeConfig{
		ServiceID:     ".",
		WorkingDir:    t.TempDir(),
		Host:          "0.0.0.0",
		Port:          3000,
		Backlog:       2048,
		PrometheusDir: filepath.Join(t.TempDir(), "prometheus"),
		Executable:    "/usr/local/bin/modelkeeper",
	}
}

func descriptorWithRunners(names ...string) *service.Descriptor {
	d := &service.Descriptor{Name: "test_service", Version: "1.0"}
	for _, n := range names {
		d.Runners = append(d.Runners, service.Runner{Name: n, Workers: 1})
	}
	return d
}

/**
 * Test production planning shape for increasing runner counts
 * @description
 * - For N runners: N+1 sockets, N+1 process specs, runner map of size N
 * - Zero runners is a legal pure-API deployment
 * - API server spec is always last, built after all runner sockets exist
 */
func TestPlanProductionShape(t *testing.T) {
	for n := 0; n <= 3; n++ {
		t.Run(fmt.Sprintf("runners_%d", n), func(t *testing.T) {
			names := make([]string, n)
			for i := range names {
				names[i] = fmt.Sprintf("runner%d", i)
			}
			svc := descriptorWithRunners(names...)

			topo, err := NewPlanner(NewTCPAllocator()).Plan(svc, ModeProduction, testServeConfig(t))
			if err != nil {
				t.Fatalf("Plan failed: %v", err)
			}
			defer topo.Cleanup()

			if len(topo.Sockets) != n+1 {
				t.Errorf("expected %d sockets, got %d", n+1, len(topo.Sockets))
			}
			if len(topo.Processes) != n+1 {
				t.Errorf("expected %d process specs, got %d", n+1, len(topo.Processes))
			}
			if len(topo.RunnerMap) != n {
				t.Errorf("expected runner map of size %d, got %d", n, len(topo.RunnerMap))
			}

			last := topo.Processes[len(topo.Processes)-1]
			if last.Role != RoleAPIServer {
				t.Errorf("expected the API server spec last, got role %s", last.Role)
			}
			if topo.Sockets[len(topo.Sockets)-1].Name != APIServerSocketName {
				t.Errorf("expected the API server socket last")
			}
		})
	}
}

/**
 * Test development planning always yields a single process
 * @description
 * - One socket, one single-process spec regardless of declared runners
 * - No runner map and no runner sockets
 */
func TestPlanDevelopmentSingleProcess(t *testing.T) {
	topo, err := NewPlanner(NewTCPAllocator()).Plan(nil, ModeDevelopment, testServeConfig(t))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	defer topo.Cleanup()

	if len(topo.Sockets) != 1 {
		t.Fatalf("expected exactly 1 socket, got %d", len(topo.Sockets))
	}
	if len(topo.Processes) != 1 {
		t.Fatalf("expected exactly 1 process spec, got %d", len(topo.Processes))
	}
	p := topo.Processes[0]
	if p.Role != RoleDevServer {
		t.Errorf("expected dev server role, got %s", p.Role)
	}
	if p.NumProcs != 1 {
		t.Errorf("expected a single worker process, got %d", p.NumProcs)
	}
	if !p.KeepChildStdin {
		t.Errorf("dev server should keep the child stdin open")
	}
	if len(topo.RunnerMap) != 0 {
		t.Errorf("development topology should not carry a runner map")
	}
	for _, arg := range p.Args {
		if arg == "--runner-map" {
			t.Errorf("dev server arguments should not include a runner map")
		}
	}
}

/**
 * Test the full POSIX production scenario
 * @description
 * - Two runners over the unix allocation strategy plus a tcp API socket
 * - Runner map keys match the declared runners with unix:// addresses
 * - API server arguments embed the serialized map and only placeholder binds
 */
func TestPlanProductionUnixEndToEnd(t *testing.T) {
	svc := descriptorWithRunners("embedder", "classifier")
	cfg := testServeConfig(t)

	topo, err := NewPlanner(NewUnixAllocator()).Plan(svc, ModeProduction, cfg)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	defer topo.Cleanup()

	unixCount := 0
	for _, s := range topo.Sockets {
		switch s.Name {
		case APIServerSocketName:
			if s.Kind != SocketTCP {
				t.Errorf("API server socket should be tcp, got %s", s.Kind)
			}
			if s.Port != cfg.Port || s.Host != cfg.Host {
				t.Errorf("API server socket should bind %s:%d, got %s:%d", cfg.Host, cfg.Port, s.Host, s.Port)
			}
		default:
			if s.Kind != SocketUnix {
				t.Errorf("runner socket %s should be unix, got %s", s.Name, s.Kind)
			}
			unixCount++
		}
	}
	if unixCount != 2 {
		t.Errorf("expected 2 unix runner sockets, got %d", unixCount)
	}

	for _, name := range []string{"embedder", "classifier"} {
		addr, ok := topo.RunnerMap[name]
		if !ok {
			t.Errorf("runner map missing %q", name)
			continue
		}
		if !strings.HasPrefix(addr, "unix://") {
			t.Errorf("runner %s: expected a unix address, got %s", name, addr)
		}
	}
	if len(topo.RunnerMap) != 2 {
		t.Errorf("runner map has unexpected extra entries: %v", topo.RunnerMap)
	}

	api := topo.Processes[len(topo.Processes)-1]
	encoded, err := topo.RunnerMap.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	foundMap := false
	for i, arg := range api.Args {
		if arg == "--runner-map" && i+1 < len(api.Args) {
			foundMap = true
			decoded, err := DecodeRunnerMap(api.Args[i+1])
			if err != nil {
				t.Fatalf("API server carries an undecodable runner map: %v", err)
			}
			if len(decoded) != len(topo.RunnerMap) {
				t.Errorf("embedded runner map does not round-trip: %q vs %q", api.Args[i+1], encoded)
			}
		}
		// Literal runner addresses must never leak into argument vectors.
		for _, addr := range topo.RunnerMap {
			if arg == addr {
				t.Errorf("API server argument %q is a literal runner address", arg)
			}
		}
	}
	if !foundMap {
		t.Errorf("API server arguments missing --runner-map")
	}
}

/**
 * Test the forced loopback scenario used on hosts without unix sockets
 * @description
 * - Each runner gets a distinct loopback port and no socket directory exists
 */
func TestPlanProductionForcedTCP(t *testing.T) {
	before := socketDirCount(t)
	svc := descriptorWithRunners("embedder", "classifier")

	topo, err := NewPlanner(NewTCPAllocator()).Plan(svc, ModeProduction, testServeConfig(t))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	defer topo.Cleanup()

	ports := make(map[int]bool)
	for _, s := range topo.Sockets {
		if s.Name == APIServerSocketName {
			continue
		}
		if s.Kind != SocketTCP {
			t.Errorf("runner socket %s should be tcp, got %s", s.Name, s.Kind)
		}
		if ports[s.Port] {
			t.Errorf("port %d assigned to more than one runner", s.Port)
		}
		ports[s.Port] = true
	}
	for name, addr := range topo.RunnerMap {
		if !strings.HasPrefix(addr, "tcp://127.0.0.1:") {
			t.Errorf("runner %s: expected a loopback address, got %s", name, addr)
		}
	}
	if after := socketDirCount(t); after != before {
		t.Errorf("tcp planning created a socket directory (%d -> %d)", before, after)
	}
}

/**
 * Test runner process counts follow the service declaration
 */
func TestPlanRunnerWorkerCounts(t *testing.T) {
	svc := &service.Descriptor{
		Runners: []service.Runner{
			{Name: "a", Workers: 3},
			{Name: "b", CPU: 1.5},
		},
	}
	topo, err := NewPlanner(NewTCPAllocator()).Plan(svc, ModeProduction, testServeConfig(t))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	defer topo.Cleanup()

	counts := make(map[string]int)
	for _, p := range topo.Processes {
		if p.Role == RoleRunner {
			counts[p.Name] = p.NumProcs
		}
	}
	if counts["runner_a"] != 3 {
		t.Errorf("runner a: expected 3 processes, got %d", counts["runner_a"])
	}
	if counts["runner_b"] != 2 {
		t.Errorf("runner b: expected ceil(1.5)=2 processes, got %d", counts["runner_b"])
	}
}

/**
 * Test topology cleanup is idempotent
 */
func TestTopologyCleanupIdempotent(t *testing.T) {
	topo, err := NewPlanner(NewUnixAllocator()).Plan(descriptorWithRunners("embedder"), ModeProduction, testServeConfig(t))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	var dir string
	for _, s := range topo.Sockets {
		if s.Kind == SocketUnix {
			dir = filepath.Dir(s.Path)
		}
	}
	topo.Cleanup()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("socket directory %s survived cleanup", dir)
	}
	topo.Cleanup()
}

/**
 * Test the metrics directory degrades instead of failing the serve call
 * @description
 * - An uncreatable directory (a path under a regular file) falls back to a
 *   fresh temp directory and planning still succeeds
 */
func TestEnsurePrometheusDirFallback(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create blocker file: %v", err)
	}
	requested := filepath.Join(blocker, "metrics")

	got := EnsurePrometheusDir(requested)
	if got == requested {
		t.Fatalf("expected a fallback directory, got the uncreatable path back")
	}
	info, err := os.Stat(got)
	if err != nil || !info.IsDir() {
		t.Fatalf("fallback directory %s is not usable: %v", got, err)
	}
	os.RemoveAll(got)

	cfg := testServeConfig(t)
	cfg.PrometheusDir = requested
	topo, err := NewPlanner(NewTCPAllocator()).Plan(descriptorWithRunners("embedder"), ModeProduction, cfg)
	if err != nil {
		t.Fatalf("planning should survive a broken metrics directory: %v", err)
	}
	defer topo.Cleanup()
	if topo.PrometheusDir == requested {
		t.Errorf("topology kept the uncreatable metrics directory")
	}
	os.RemoveAll(topo.PrometheusDir)
}

/**
 * Test an existing non-empty metrics directory is emptied on reuse
 */
func TestEnsurePrometheusDirClearsStaleFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "metrics")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(dir, "old.prom")
	if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	got := EnsurePrometheusDir(dir)
	if got != dir {
		// ensureEmptyDir returns the absolute form of the same path.
		if abs, _ := filepath.Abs(dir); got != abs {
			t.Fatalf("expected %s to be reused, got %s", dir, got)
		}
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale metrics file survived directory preparation")
	}
}
