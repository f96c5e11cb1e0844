package worker

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"

	"modelkeeper/internal/config"
	"modelkeeper/internal/env"
	"modelkeeper/internal/logger"
	"modelkeeper/internal/metrics"
	"modelkeeper/internal/service"
	"modelkeeper/internal/supervisor"
	"modelkeeper/internal/topology"
)

// Role of a spawned worker process, decided exactly once at process start
// from its own launch parameters.
type Role int

const (
	// RoleParent is a standalone parent: launched without a worker identity,
	// it wraps itself in a fresh supervisor so an operator-supplied literal
	// bind address still yields a supervised, restart-capable worker.
	RoleParent Role = iota
	// RoleLeaf is a leaf worker: it inherits a bound socket from its
	// supervisor and serves on it.
	RoleLeaf
)

// DecideRole resolves the process role from the launch parameters. A zero
// worker id means none was assigned.
func DecideRole(workerID int) Role {
	if workerID == 0 {
		return RoleParent
	}
	return RoleLeaf
}

/**
 * Options worker进程自己的启动参数
 * @property {string} ServiceID - 服务标识
 * @property {string} Bind - 绑定地址: 父进程为字面量，叶子worker必须是fd://N
 * @property {string} RunnerMap - 序列化的runner地址表(仅API worker，可为空)
 * @property {string} RunnerName - runner名(仅runner worker)
 * @property {int} WorkerID - worker身份，0表示未分配(独立父进程)
 * @property {bool} Development - 开发模式，runner在进程内执行
 */
type Options struct {
	ServiceID     string
	Bind          string
	RunnerMap     string
	RunnerName    string
	Backlog       int
	WorkingDir    string
	PrometheusDir string
	WorkerID      int
	Development   bool
	TLS           config.TLSOptions
}

/**
 * RunAPIServer API服务器worker入口
 * @param {context.Context} ctx - 取消上下文
 * @param {Options} opts - 启动参数
 * @returns {error} 启动或服务失败时返回错误
 * @description
 * - 未分配worker身份: 作为独立父进程，给自己重建单worker规格，
 *   连同socket注册到新的supervisor后启动，supervisor退出即退出
 * - 已分配worker身份: 作为叶子worker绑定继承的socket开始服务
 */
func RunAPIServer(ctx context.Context, opts Options) error {
	if DecideRole(opts.WorkerID) == RoleParent {
		return runStandaloneParent(ctx, opts)
	}
	return runAPILeaf(ctx, opts)
}

// runStandaloneParent re-derives a one-worker ProcessSpec for this same
// executable, registers it plus the operator-supplied socket with a fresh
// supervisor, and blocks until that supervisor exits.
func runStandaloneParent(ctx context.Context, opts Options) error {
	sock, err := topology.SocketSpecFromURI(topology.APIServerSocketName, opts.Bind, opts.Backlog)
	if err != nil {
		return err
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot resolve own executable: %w", err)
	}

	cfg := &config.ServeConfig{
		ServiceID:     opts.ServiceID,
		WorkingDir:    opts.WorkingDir,
		Backlog:       opts.Backlog,
		PrometheusDir: topology.EnsurePrometheusDir(opts.PrometheusDir),
		Executable:    executable,
		TLS:           opts.TLS,
		APIWorkers:    1,
	}

	var spec topology.ProcessSpec
	if opts.Development {
		spec = topology.BuildDevServerSpec(cfg)
	} else {
		runnerMap, err := resolveRunnerMap(opts)
		if err != nil {
			return err
		}
		spec, err = topology.BuildAPIServerSpec(cfg, runnerMap)
		if err != nil {
			return err
		}
	}

	sup := supervisor.New()
	if err := sup.RegisterSocket(sock); err != nil {
		return err
	}
	if err := sup.RegisterProcess(spec); err != nil {
		return err
	}
	return sup.Start(ctx, nil)
}

func runAPILeaf(ctx context.Context, opts Options) error {
	SetComponent("api-server", opts.WorkerID)

	ln, err := inheritedListener(opts.Bind)
	if err != nil {
		return err
	}

	svc, err := service.Load(opts.ServiceID, opts.WorkingDir, true)
	if err != nil {
		return err
	}
	SetService(svc.Name, svc.Version)

	var runnerMap topology.RunnerAddressMap
	if !opts.Development {
		runnerMap, err = resolveRunnerMap(opts)
		if err != nil {
			return err
		}
	}

	metrics.StartMultiprocessExport(ctx, opts.PrometheusDir, Component())
	logger.Infof("API server worker %d serving %q on inherited socket", opts.WorkerID, opts.ServiceID)

	app := NewAPIApp(Component(), svc, runnerMap, opts.Development)
	return Serve(ctx, ln, app, opts.TLS)
}

/**
 * RunRunner runner worker入口(始终是叶子worker)
 * @param {context.Context} ctx - 取消上下文
 * @param {Options} opts - 启动参数
 * @returns {error} 启动或服务失败时返回错误
 */
func RunRunner(ctx context.Context, opts Options) error {
	if DecideRole(opts.WorkerID) == RoleParent {
		return fmt.Errorf("runner worker requires an assigned worker id")
	}
	SetComponent("runner:"+opts.RunnerName, opts.WorkerID)

	ln, err := inheritedListener(opts.Bind)
	if err != nil {
		return err
	}

	svc, err := service.Load(opts.ServiceID, opts.WorkingDir, true)
	if err != nil {
		return err
	}
	SetService(svc.Name, svc.Version)

	found := false
	for _, r := range svc.Runners {
		if r.Name == opts.RunnerName {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("service %q declares no runner named %q", opts.ServiceID, opts.RunnerName)
	}

	metrics.StartMultiprocessExport(ctx, opts.PrometheusDir, Component())
	logger.Infof("Runner worker %d serving runner %q on inherited socket", opts.WorkerID, opts.RunnerName)

	app := NewRunnerApp(Component(), opts.RunnerName, opts.WorkerID)
	return Serve(ctx, ln, app, config.TLSOptions{})
}

// inheritedListener resolves the socket a leaf worker inherited from its
// supervisor. Only the fd:// substitution scheme is accepted at this layer;
// binding already happened in the supervisor before spawn, and a literal
// address here would mean a second bind.
func inheritedListener(bind string) (net.Listener, error) {
	u, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("invalid bind %q: %w", bind, err)
	}
	if u.Scheme != "fd" {
		return nil, fmt.Errorf("leaf worker requires an fd:// bind, got %q", bind)
	}
	fd, err := strconv.Atoi(u.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid descriptor in bind %q: %w", bind, err)
	}

	file := os.NewFile(uintptr(fd), "inherited-socket")
	if file == nil {
		return nil, fmt.Errorf("descriptor %d is not open", fd)
	}
	ln, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("descriptor %d is not a listening socket: %w", fd, err)
	}
	// FileListener dups the descriptor.
	file.Close()
	return ln, nil
}

// resolveRunnerMap decodes the runner address map from the launch arguments,
// falling back to the environment for standalone launches.
func resolveRunnerMap(opts Options) (topology.RunnerAddressMap, error) {
	raw := opts.RunnerMap
	if raw == "" {
		raw = os.Getenv(env.RunnerMapEnv)
	}
	if raw == "" {
		return topology.RunnerAddressMap{}, nil
	}
	return topology.DecodeRunnerMap(raw)
}
