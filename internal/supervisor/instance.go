package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"modelkeeper/internal/logger"
	"modelkeeper/internal/models"
	"modelkeeper/internal/utils"
)

type processWatcher struct {
	enabled         bool                   //是否启动监测协程
	maxRestartCount int                    //最大重启次数(通过重启解决临时故障)
	onExited        func(*ProcessInstance) //监测到进程退出时的回调函数
}

/**
 * ProcessInstance 受管进程实例
 * @property {string} title - 进程标题，如"runner_embedder[1]"
 * @property {string} role - 进程角色
 * @property {int} workerID - worker身份，同组存活进程内唯一
 * @property {string} command - 执行命令
 * @property {[]string} args - 命令参数(占位符已在spawn前解析)
 * @property {string} workDir - 工作目录
 * @property {[]*os.File} extraFiles - 继承给子进程的已绑定socket文件
 * @description
 * - socket在supervisor内绑定后以fd形式继承，实例自身绝不bind
 * - watcher协程在进程退出后按重启上限延迟重启
 */
type ProcessInstance struct {
	Title          string
	Role           string
	WorkerID       int
	Command        string
	Args           []string
	WorkDir        string
	Env            []string
	ExtraFiles     []*os.File
	StopChildren   bool
	KeepStdin      bool
	Status         models.RunStatus
	RestartCount   int
	StartTime      time.Time
	LastExitTime   time.Time
	LastExitReason string
	watcher        processWatcher
	process        *os.Process //统一的进程对象，用于Wait()
	mutex          sync.Mutex  //保护实例数据一致性
}

/**
 * NewProcessInstance 创建新的进程实例
 * @param {string} title - 进程标题，可以唯一确定一个进程，即使它重启过
 * @param {string} role - 进程角色
 * @param {string} command - 执行命令
 * @param {[]string} args - 命令参数
 * @returns {ProcessInstance} 返回创建的进程实例
 */
func NewProcessInstance(title, role, command string, args []string) *ProcessInstance {
	return &ProcessInstance{
		Title:   title,
		Role:    role,
		Command: command,
		Args:    args,
		Status:  models.StatusExited,
	}
}

func (pi *ProcessInstance) EnableWatcher(maxRestart int, onExited func(*ProcessInstance)) {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	pi.watcher.enabled = true
	pi.watcher.onExited = onExited
	pi.watcher.maxRestartCount = maxRestart
}

func (pi *ProcessInstance) Pid() int {
	if pi.process == nil {
		return 0
	}
	return pi.process.Pid
}

func (pi *ProcessInstance) GetDetail() models.ProcessDetail {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	return models.ProcessDetail{
		Title:          pi.Title,
		Role:           pi.Role,
		WorkerID:       pi.WorkerID,
		Command:        pi.Command,
		Args:           pi.Args,
		WorkDir:        pi.WorkDir,
		Status:         pi.Status,
		Pid:            pi.Pid(),
		RestartCount:   pi.RestartCount,
		StartTime:      pi.StartTime,
		LastExitTime:   pi.LastExitTime,
		LastExitReason: pi.LastExitReason,
	}
}

/**
 * StartProcess 启动进程
 * @param {context.Context} ctx - 取消上下文
 * @returns {error} 返回错误信息
 * @description
 * - 子进程继承已绑定的socket文件(ExtraFiles)
 * - 置于独立进程组，停止时可整组终止
 * - watcher启用时用协程监控进程退出并自动重启
 */
func (pi *ProcessInstance) StartProcess(ctx context.Context) error {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()
	return pi.startProcess(ctx)
}

func (pi *ProcessInstance) startProcess(ctx context.Context) error {
	if pi.Status == models.StatusRunning {
		return nil
	}
	logger.Infof("Executing command: %s %s", pi.Command, strings.Join(pi.Args, " "))

	cmd := exec.CommandContext(ctx, pi.Command, pi.Args...)
	if pi.WorkDir != "" {
		cmd.Dir = pi.WorkDir
	}
	cmd.Env = pi.Env
	cmd.ExtraFiles = pi.ExtraFiles
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if pi.KeepStdin {
		// 不关闭子进程stdin，便于在worker里使用交互式调试器
		cmd.Stdin = os.Stdin
	}
	// 独立进程组，StopChildren时整组终止
	utils.SetNewPG(cmd)

	if err := cmd.Start(); err != nil {
		pi.Status = models.StatusError
		pi.LastExitReason = fmt.Sprintf("start failed: %v", err)
		logger.Errorf("Failed to start process '%s', error: %v", pi.Title, err)
		return err
	}

	pi.process = cmd.Process // 保存进程对象，用于统一Wait()
	pi.Status = models.StatusRunning
	pi.StartTime = time.Now()

	logger.Infof("Process '%s' started (PID: %d)", pi.Title, pi.Pid())

	if pi.watcher.enabled {
		go pi.watchProcess()
	}
	return nil
}

/**
 * StopProcess 停止进程
 * @returns {error} 返回错误信息
 * @description
 * - StopChildren时先终止整个进程组，确保worker自己fork的子进程一并退出
 * - 更新进程状态，等待进程收尸
 */
func (pi *ProcessInstance) StopProcess() error {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	if pi.Status != models.StatusRunning {
		return nil
	}
	pi.Status = models.StatusStopped
	pi.LastExitTime = time.Now()
	pi.LastExitReason = "stopped by supervisor"

	pid := pi.Pid()
	if pi.process != nil {
		if pi.StopChildren && pid > 0 {
			if err := utils.KillProcessTree(pid); err != nil {
				logger.Warnf("Failed to stop children of process '%s' (PID: %d): %v", pi.Title, pid, err)
			}
		}
		if err := pi.process.Kill(); err != nil && !strings.Contains(err.Error(), "already finished") {
			logger.Errorf("Failed to kill process '%s' (PID: %d): %v", pi.Title, pid, err)
		}
		pi.process.Wait()
		pi.process = nil
	}

	logger.Infof("Process '%s' (PID: %d) stopped", pi.Title, pid)
	return nil
}

func (pi *ProcessInstance) CheckProcess() bool {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	if pi.Status != models.StatusRunning || pi.process == nil {
		return false
	}
	running, err := utils.IsProcessRunning(pi.Pid())
	if err != nil || !running {
		logger.Warnf("Process '%s' (PID: %d) isn't running", pi.Title, pi.Pid())
		pi.Status = models.StatusExited
		pi.process = nil
		return false
	}
	return true
}

/**
 * watchProcess 监控进程状态的协程
 * @description
 * - 统一使用process.Wait()等待进程退出
 * - 进程意外退出时按重启上限自动重启
 * - 更新进程状态并记录退出原因
 */
func (pi *ProcessInstance) watchProcess() {
	_, err := pi.process.Wait()

	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	if pi.Status == models.StatusStopped {
		logger.Infof("Process '%s' stopped by supervisor", pi.Title)
		return
	}
	pi.LastExitTime = time.Now()
	if err != nil {
		logger.Errorf("Process '%s' (PID: %d) exited with error: %v", pi.Title, pi.Pid(), err)
		pi.LastExitReason = fmt.Sprintf("exited with error: %v", err)
		pi.Status = models.StatusError
	} else {
		logger.Infof("Process '%s' (PID: %d) exited normally", pi.Title, pi.Pid())
		pi.LastExitReason = "exited normally"
		pi.Status = models.StatusExited
	}
	pi.process = nil
	pi.autoRestart()
}

/**
 * autoRestart 自动重启进程
 * @description
 * - 重启次数超过上限后不再重启，仅通知回调
 * - 延迟一秒重启，避免快速崩溃循环与死锁
 */
func (pi *ProcessInstance) autoRestart() {
	if !pi.watcher.enabled || pi.watcher.maxRestartCount == 0 {
		return
	}
	if pi.RestartCount >= pi.watcher.maxRestartCount {
		logger.Warnf("Process '%s' has reached maximum restart count (%d), not restarting",
			pi.Title, pi.watcher.maxRestartCount)
		if pi.watcher.onExited != nil {
			pi.watcher.onExited(pi)
		}
		return
	}

	logger.Infof("Process '%s' will restart in %v (restart: %d/%d)",
		pi.Title, time.Second, pi.RestartCount, pi.watcher.maxRestartCount)
	// 延迟重启，避免死锁
	time.AfterFunc(time.Second, func() {
		pi.mutex.Lock()
		defer pi.mutex.Unlock()

		if pi.Status == models.StatusStopped {
			logger.Infof("Process '%s' stopped by supervisor, needn't restart", pi.Title)
			return
		}
		pi.RestartCount++
		pi.startProcess(context.Background())
	})
}
