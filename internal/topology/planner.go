package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"modelkeeper/internal/config"
	"modelkeeper/internal/logger"
	"modelkeeper/internal/service"
)

type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

/**
 * Topology 一次serve调用的完整部署拓扑
 * @property {[]SocketSpec} Sockets - 全部socket规格
 * @property {[]ProcessSpec} Processes - 全部进程规格
 * @property {RunnerAddressMap} RunnerMap - runner地址表(开发模式为空)
 * @property {string} PrometheusDir - 已解析的多进程指标目录
 * @description
 * - 根聚合，由supervisor在调用生命周期内持有，停止时整体拆除
 */
type Topology struct {
	Sockets       []SocketSpec
	Processes     []ProcessSpec
	RunnerMap     RunnerAddressMap
	PrometheusDir string

	cleanup     CleanupFunc
	cleanupOnce sync.Once
}

// Cleanup releases the ephemeral resources (socket directories) backing this
// topology. Safe to call multiple times; only the first call acts.
func (t *Topology) Cleanup() {
	t.cleanupOnce.Do(func() {
		if t.cleanup != nil {
			t.cleanup()
		}
	})
}

/**
 * Planner 拓扑规划器
 * @property {Allocator} alloc - socket分配策略(启动时探测选定)
 */
type Planner struct {
	alloc Allocator
}

func NewPlanner(alloc Allocator) *Planner {
	return &Planner{alloc: alloc}
}

/**
 * Plan 把服务描述规划成多进程部署拓扑
 * @param {*service.Descriptor} svc - 已加载的服务描述
 * @param {Mode} mode - development或production
 * @param {*config.ServeConfig} cfg - serve调用参数
 * @returns {*Topology} 完整拓扑
 * @returns {error} 分配失败时返回TopologyError或包装错误
 * @description
 * - 生产模式: 先为全部runner分配socket，由此得出runner地址表，
 *   最后构造嵌入该表的API服务器规格；顺序不可颠倒
 * - 开发模式: 仅一个socket和一个单进程规格，runner在进程内执行
 * - 零runner的服务合法(纯API服务器部署)
 */
func (p *Planner) Plan(svc *service.Descriptor, mode Mode, cfg *config.ServeConfig) (*Topology, error) {
	resolved := *cfg
	resolved.PrometheusDir = EnsurePrometheusDir(cfg.PrometheusDir)

	apiSocket := SocketSpec{
		Name:    APIServerSocketName,
		Kind:    SocketTCP,
		Host:    cfg.Host,
		Port:    cfg.Port,
		Backlog: cfg.Backlog,
	}

	if mode == ModeDevelopment {
		return &Topology{
			Sockets:       []SocketSpec{apiSocket},
			Processes:     []ProcessSpec{BuildDevServerSpec(&resolved)},
			PrometheusDir: resolved.PrometheusDir,
		}, nil
	}

	runnerSockets, cleanup, err := p.alloc.Allocate(svc.RunnerNames(), cfg.Backlog)
	if err != nil {
		return nil, err
	}

	runnerMap := make(RunnerAddressMap, len(runnerSockets))
	for _, s := range runnerSockets {
		runnerMap[s.Name] = s.Address()
	}
	logger.Debugf("Runner map: %v", runnerMap)

	processes := make([]ProcessSpec, 0, len(svc.Runners)+1)
	for _, r := range svc.Runners {
		processes = append(processes, BuildRunnerSpec(&resolved, r.Name, r.ScheduledWorkerCount()))
	}

	apiSpec, err := BuildAPIServerSpec(&resolved, runnerMap)
	if err != nil {
		cleanup()
		return nil, err
	}
	processes = append(processes, apiSpec)

	return &Topology{
		Sockets:       append(runnerSockets, apiSocket),
		Processes:     processes,
		RunnerMap:     runnerMap,
		PrometheusDir: resolved.PrometheusDir,
		cleanup:       cleanup,
	}, nil
}

/**
 * EnsurePrometheusDir 确保多进程指标目录存在且为空
 * @param {string} directory - 期望的指标目录
 * @returns {string} 实际可用的目录
 * @description
 * - 目录已存在且非空时清空重建；不存在时逐级创建
 * - 创建/清理失败时降级: 另建临时目录并记录警告，绝不因指标目录
 *   问题中止serve；指标是尽力而为的
 */
func EnsurePrometheusDir(directory string) string {
	if dir, err := ensureEmptyDir(directory); err == nil {
		return dir
	} else {
		alternative, tmpErr := os.MkdirTemp("", "modelkeeper-prometheus-")
		if tmpErr != nil {
			logger.Errorf("Failed to create alternative prometheus directory: %v", tmpErr)
			return directory
		}
		logger.Warnf("Failed to ensure the prometheus multiproc directory %s, using alternative: %s (%v)",
			directory, alternative, err)
		return alternative
	}
}

func ensureEmptyDir(directory string) (string, error) {
	if directory == "" {
		return "", fmt.Errorf("no directory configured")
	}
	info, err := os.Stat(directory)
	switch {
	case err == nil && info.IsDir():
		entries, err := os.ReadDir(directory)
		if err != nil {
			return "", err
		}
		if len(entries) > 0 {
			if err := os.RemoveAll(directory); err != nil {
				return "", err
			}
			if err := os.Mkdir(directory, 0755); err != nil {
				return "", err
			}
		}
	case err == nil:
		// Path exists but is not a directory.
		if err := os.Remove(directory); err != nil {
			return "", err
		}
		if err := os.MkdirAll(directory, 0755); err != nil {
			return "", err
		}
	default:
		if err := os.MkdirAll(directory, 0755); err != nil {
			return "", err
		}
	}
	return filepath.Abs(directory)
}
