package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"modelkeeper/internal/logger"
	"modelkeeper/internal/models"
	"modelkeeper/internal/topology"
)

// Workers inherit bound sockets starting at this descriptor number, in the
// order the socket names appear in their ProcessSpec.
const firstInheritedFD = 3

// How many times a crashed worker is restarted before the supervisor gives up
// on that instance.
const defaultMaxRestart = 10

type boundSocket struct {
	spec topology.SocketSpec
	ln   net.Listener
	file *os.File
}

/**
 * Supervisor 进程监督器门面
 * @description
 * - 注册拓扑中的全部socket与进程规格
 * - Start时先绑定全部socket，再spawn依赖这些socket的进程，
 *   消除分配与启动之间的bind竞争
 * - 占位符参数(socket fd、worker身份)在spawn时解析
 * - Stop幂等；临时资源清理在所有退出路径上恰好执行一次
 */
type Supervisor struct {
	mu        sync.Mutex
	sockets   []*boundSocket
	specs     []topology.ProcessSpec
	groups    map[string][]*ProcessInstance
	cleanups  []topology.CleanupFunc
	started   bool
	stopped   bool
	cleanOnce sync.Once
}

func New() *Supervisor {
	return &Supervisor{groups: make(map[string][]*ProcessInstance)}
}

// RegisterSocket registers a socket specification. The socket is not bound
// until Start.
func (s *Supervisor) RegisterSocket(spec topology.SocketSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("cannot register socket %q after start", spec.Name)
	}
	for _, b := range s.sockets {
		if b.spec.Name == spec.Name {
			return topology.NewTopologyError(spec.Name, "socket registered twice")
		}
	}
	s.sockets = append(s.sockets, &boundSocket{spec: spec})
	return nil
}

// RegisterProcess registers a process specification. N instances are spawned
// at Start when NumProcs is N.
func (s *Supervisor) RegisterProcess(spec topology.ProcessSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("cannot register process %q after start", spec.Name)
	}
	s.specs = append(s.specs, spec)
	return nil
}

// RegisterTopology registers every socket and process of a planned topology
// plus its cleanup handle.
func (s *Supervisor) RegisterTopology(t *topology.Topology) error {
	for _, sock := range t.Sockets {
		if err := s.RegisterSocket(sock); err != nil {
			return err
		}
	}
	for _, proc := range t.Processes {
		if err := s.RegisterProcess(proc); err != nil {
			return err
		}
	}
	s.OnCleanup(t.Cleanup)
	return nil
}

// OnCleanup registers a release function executed exactly once when the
// supervisor winds down, on every exit path.
func (s *Supervisor) OnCleanup(fn topology.CleanupFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

/**
 * Start 启动拓扑并阻塞到关闭信号
 * @param {context.Context} ctx - 上级取消上下文
 * @param {func()} onReady - 首次启动成功后的一次性回调(就绪日志用)
 * @returns {error} 绑定或启动失败时返回错误
 * @description
 * - 绑定全部socket -> spawn全部进程 -> 阻塞等待SIGINT/SIGTERM或ctx取消
 * - 任何失败路径都会停止已启动的进程并执行临时资源清理
 */
func (s *Supervisor) Start(ctx context.Context, onReady func()) error {
	defer s.runCleanup()

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.bindSockets(); err != nil {
		s.Stop()
		return err
	}
	if err := s.spawnAll(); err != nil {
		s.Stop()
		return err
	}
	if onReady != nil {
		onReady()
	}

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-sigCtx.Done()

	s.Stop()
	return nil
}

/**
 * Stop 幂等的优雅停止
 * @description
 * - 停止全部受管进程(连带其子进程)，关闭socket，执行清理
 * - 拓扑已终止后再次调用是no-op，不报错
 */
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	groups := s.groups
	sockets := s.sockets
	s.mu.Unlock()

	for _, instances := range groups {
		for _, inst := range instances {
			inst.StopProcess()
		}
	}
	for _, b := range sockets {
		if b.file != nil {
			b.file.Close()
			b.file = nil
		}
		if b.ln != nil {
			b.ln.Close()
			b.ln = nil
		}
	}
	s.runCleanup()
}

/**
 * Restart 重启一个进程组的全部实例(开发模式文件变更重载用)
 * @param {string} name - 进程组名，如"dev_api_server"
 * @returns {error} 组不存在时返回错误
 */
func (s *Supervisor) Restart(name string) error {
	s.mu.Lock()
	instances, ok := s.groups[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown process group %q", name)
	}
	logger.Infof("Restarting process group '%s'", name)
	for _, inst := range instances {
		inst.StopProcess()
	}
	for _, inst := range instances {
		if err := inst.StartProcess(context.Background()); err != nil {
			return err
		}
	}
	return nil
}

// Details returns a snapshot of every supervised process instance.
func (s *Supervisor) Details() []models.ProcessDetail {
	s.mu.Lock()
	defer s.mu.Unlock()

	var details []models.ProcessDetail
	for _, spec := range s.specs {
		for _, inst := range s.groups[spec.Name] {
			details = append(details, inst.GetDetail())
		}
	}
	return details
}

// bindSockets binds every registered socket before any process is spawned.
func (s *Supervisor) bindSockets() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.sockets {
		var (
			ln  net.Listener
			err error
		)
		switch b.spec.Kind {
		case topology.SocketUnix:
			// 清掉可能残留的socket文件
			if err := os.Remove(b.spec.Path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove stale socket file %s: %w", b.spec.Path, err)
			}
			ln, err = net.Listen("unix", b.spec.Path)
		case topology.SocketTCP:
			ln, err = net.Listen("tcp", fmt.Sprintf("%s:%d", b.spec.Host, b.spec.Port))
		default:
			return topology.NewTopologyError(b.spec.Name, "unknown socket kind %q", b.spec.Kind)
		}
		if err != nil {
			return fmt.Errorf("failed to bind socket %q (%s): %w", b.spec.Name, b.spec.Address(), err)
		}
		file, err := listenerFile(ln)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to get descriptor of socket %q: %w", b.spec.Name, err)
		}
		b.ln = ln
		b.file = file
		logger.Debugf("Socket '%s' bound on %s", b.spec.Name, b.spec.Address())
	}
	return nil
}

func listenerFile(ln net.Listener) (*os.File, error) {
	switch l := ln.(type) {
	case *net.TCPListener:
		return l.File()
	case *net.UnixListener:
		return l.File()
	default:
		return nil, fmt.Errorf("unsupported listener type %T", ln)
	}
}

// spawnAll resolves supervisor tokens and starts every instance of every
// registered process specification.
func (s *Supervisor) spawnAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName := make(map[string]*boundSocket, len(s.sockets))
	for _, b := range s.sockets {
		byName[b.spec.Name] = b
	}

	for _, spec := range s.specs {
		files := make([]*os.File, 0, len(spec.Sockets))
		socketFDs := make(map[string]int, len(spec.Sockets))
		for i, name := range spec.Sockets {
			b, ok := byName[name]
			if !ok || b.file == nil {
				return topology.NewTopologyError(spec.Name, "references unbound socket %q", name)
			}
			files = append(files, b.file)
			socketFDs[name] = firstInheritedFD + i
		}

		for wid := 1; wid <= spec.NumProcs; wid++ {
			args, err := topology.SubstituteArgs(spec.Args, socketFDs, wid)
			if err != nil {
				return topology.NewTopologyError(spec.Name, "%v", err)
			}
			inst := NewProcessInstance(fmt.Sprintf("%s[%d]", spec.Name, wid), string(spec.Role), spec.Command, args)
			inst.WorkerID = wid
			inst.WorkDir = spec.WorkDir
			inst.ExtraFiles = files
			inst.StopChildren = spec.StopChildren
			inst.KeepStdin = spec.KeepChildStdin
			if !spec.CopyEnv {
				inst.Env = []string{}
			}
			inst.EnableWatcher(defaultMaxRestart, nil)

			if err := inst.StartProcess(context.Background()); err != nil {
				return err
			}
			s.groups[spec.Name] = append(s.groups[spec.Name], inst)
		}
	}
	return nil
}

// runCleanup fires every registered cleanup exactly once. A cleanup failure
// is logged, never allowed to mask the original error.
func (s *Supervisor) runCleanup() {
	s.cleanOnce.Do(func() {
		s.mu.Lock()
		cleanups := s.cleanups
		s.mu.Unlock()
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	})
}
