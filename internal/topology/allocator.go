package topology

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"modelkeeper/internal/logger"
	"modelkeeper/internal/utils"
)

// MaxUnixPathLen is the conservative AF_UNIX path-length ceiling. Longer
// paths are silently truncated or rejected by the OS, so allocation fails
// fast instead of letting them reach the supervisor.
const MaxUnixPathLen = 103

// CleanupFunc releases ephemeral resources backing a set of sockets. The
// caller must invoke it exactly once, after every process referencing the
// sockets has stopped. Implementations are safe to call more than once.
type CleanupFunc func()

// Allocator decides how runner processes are reached by the API server and
// produces one bind specification per runner. Two strategies exist, chosen
// once at startup by a capability probe: unix domain sockets where the
// platform supports them, loopback TCP ports otherwise.
type Allocator interface {
	Allocate(runnerNames []string, backlog int) ([]SocketSpec, CleanupFunc, error)
}

/**
 * NewAllocator 按平台能力选择socket分配策略
 * @returns {Allocator} 选中的分配器
 * @returns {error} 平台不支持任何策略时返回ErrUnsupportedPlatform
 * @description
 * - 优先使用unix domain socket
 * - Windows回退到回环TCP端口
 * - 其它无unix socket支持的平台视为不支持
 */
func NewAllocator() (Allocator, error) {
	if unixSocketsSupported() {
		return &unixAllocator{}, nil
	}
	if runtime.GOOS == "windows" {
		return &tcpAllocator{}, nil
	}
	return nil, fmt.Errorf("%w: %s has no usable socket strategy", ErrUnsupportedPlatform, runtime.GOOS)
}

/**
 * Test if the system supports Unix socket network type
 * @returns {bool} Returns true if Unix socket is supported, false otherwise
 * @description
 * - Creates a temporary Unix socket to test system support
 * - Cleans up test socket file after testing
 * - Returns false if Unix socket creation fails
 */
func unixSocketsSupported() bool {
	if runtime.GOOS != "windows" { // windows,linux,darwin
		return true
	}
	testSocketPath := filepath.Join(os.TempDir(), "modelkeeper_probe.sock")
	os.Remove(testSocketPath)

	listener, err := net.Listen("unix", testSocketPath)
	if err != nil {
		return false
	}
	listener.Close()
	os.Remove(testSocketPath)
	return true
}

// unixAllocator places one socket file per runner inside a fresh,
// process-exclusive temp directory. The cleanup handle removes the directory.
type unixAllocator struct{}

func (a *unixAllocator) Allocate(runnerNames []string, backlog int) ([]SocketSpec, CleanupFunc, error) {
	dir, err := os.MkdirTemp("", "modelkeeper-sockets-")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to create socket directory: %v", ErrResourceExhausted, err)
	}

	specs := make([]SocketSpec, 0, len(runnerNames))
	for _, name := range runnerNames {
		socketPath := filepath.Join(dir, name+".sock")
		if len(socketPath) >= MaxUnixPathLen {
			// Never let an over-long path reach the supervisor; remove the
			// directory so a failed allocation leaves nothing behind.
			os.RemoveAll(dir)
			return nil, nil, NewTopologyError(name,
				"socket path %q exceeds the AF_UNIX length limit of %d bytes", socketPath, MaxUnixPathLen)
		}
		specs = append(specs, SocketSpec{
			Name:    name,
			Kind:    SocketUnix,
			Path:    socketPath,
			Backlog: backlog,
		})
	}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			if err := os.RemoveAll(dir); err != nil {
				logger.Errorf("Failed to remove socket directory %s: %v", dir, err)
			}
		})
	}
	return specs, cleanup, nil
}

// tcpAllocator reserves one free loopback port per runner with a short-lived
// reserve-and-release probe. One extra port is probed afterwards to reduce
// the chance the OS hands a just-released port to an unrelated process; this
// is a best-effort heuristic, not a guarantee.
type tcpAllocator struct{}

const loopbackHost = "127.0.0.1"

func (a *tcpAllocator) Allocate(runnerNames []string, backlog int) ([]SocketSpec, CleanupFunc, error) {
	specs := make([]SocketSpec, 0, len(runnerNames))
	for _, name := range runnerNames {
		port, err := utils.ReserveFreePort(loopbackHost)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: no free loopback port for runner %q: %v", ErrResourceExhausted, name, err)
		}
		specs = append(specs, SocketSpec{
			Name:    name,
			Kind:    SocketTCP,
			Host:    loopbackHost,
			Port:    port,
			Backlog: backlog,
		})
	}
	if len(runnerNames) > 0 {
		// Reserve one more to avoid conflicts.
		if _, err := utils.ReserveFreePort(loopbackHost); err != nil {
			logger.Warnf("Failed to reserve guard port: %v", err)
		}
	}
	return specs, func() {}, nil
}

// NewUnixAllocator returns the unix domain socket strategy directly.
func NewUnixAllocator() Allocator { return &unixAllocator{} }

// NewTCPAllocator returns the loopback TCP strategy directly.
func NewTCPAllocator() Allocator { return &tcpAllocator{} }
