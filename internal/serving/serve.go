package serving

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"modelkeeper/internal/config"
	"modelkeeper/internal/logger"
	"modelkeeper/internal/reload"
	"modelkeeper/internal/service"
	"modelkeeper/internal/supervisor"
	"modelkeeper/internal/topology"
)

/**
 * ServeProduction 生产模式启动入口
 * @param {context.Context} ctx - 取消上下文
 * @param {*config.ServeConfig} cfg - serve调用参数
 * @returns {error} 规划或启动失败时返回错误
 * @description
 * - 加载服务 -> 平台能力探测 -> 规划拓扑 -> 注册supervisor -> 阻塞运行
 * - 每个runner一个进程组(按声明的worker数)，API服务器一个进程组
 * - 任何退出路径都会清理socket临时目录
 */
func ServeProduction(ctx context.Context, cfg *config.ServeConfig) error {
	resolved, svc, err := prepare(cfg)
	if err != nil {
		return err
	}

	alloc, err := topology.NewAllocator()
	if err != nil {
		return err
	}

	topo, err := topology.NewPlanner(alloc).Plan(svc, topology.ModeProduction, resolved)
	if err != nil {
		return err
	}
	defer topo.Cleanup()

	sup := supervisor.New()
	if err := sup.RegisterTopology(topo); err != nil {
		return err
	}
	return sup.Start(ctx, func() {
		logger.Infof("Starting production server from %q running on http://%s:%d (Press CTRL+C to quit)",
			resolved.ServiceID, resolved.Host, resolved.Port)
	})
}

/**
 * ServeDevelopment 开发模式启动入口
 * @param {context.Context} ctx - 取消上下文
 * @param {*config.ServeConfig} cfg - serve调用参数
 * @returns {error} 规划或启动失败时返回错误
 * @description
 * - 单socket单进程，runner在worker进程内执行，换隔离性求快速迭代
 * - Reload开启时监视工作目录，变更后重启dev worker
 */
func ServeDevelopment(ctx context.Context, cfg *config.ServeConfig) error {
	resolved, _, err := prepare(cfg)
	if err != nil {
		return err
	}

	topo, err := topology.NewPlanner(nil).Plan(nil, topology.ModeDevelopment, resolved)
	if err != nil {
		return err
	}
	defer topo.Cleanup()

	sup := supervisor.New()
	if err := sup.RegisterTopology(topo); err != nil {
		return err
	}

	if resolved.Reload {
		watcher, err := reload.New(resolved.WorkingDir, func() {
			if err := sup.Restart("dev_api_server"); err != nil {
				logger.Errorf("Failed to restart dev server: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", resolved.WorkingDir, err)
		}
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		watcher.Start(watchCtx)
	}

	return sup.Start(ctx, func() {
		logger.Infof("Starting development server from %q running on http://%s:%d (Press CTRL+C to quit)",
			resolved.ServiceID, resolved.Host, resolved.Port)
	})
}

// prepare expands the working directory, verifies the service loads, and
// resolves the executable workers re-invoke.
func prepare(cfg *config.ServeConfig) (*config.ServeConfig, *service.Descriptor, error) {
	resolved := *cfg

	workingDir, err := filepath.Abs(expandHome(cfg.WorkingDir))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid working directory %q: %w", cfg.WorkingDir, err)
	}
	resolved.WorkingDir = workingDir

	if resolved.Executable == "" {
		executable, err := os.Executable()
		if err != nil {
			return nil, nil, fmt.Errorf("cannot resolve own executable: %w", err)
		}
		resolved.Executable = executable
	}

	svc, err := service.Load(resolved.ServiceID, resolved.WorkingDir, false)
	if err != nil {
		return nil, nil, err
	}
	return &resolved, svc, nil
}

func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
