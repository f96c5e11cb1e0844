//go:build unix || linux || darwin

package utils

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// SetNewPG 设置进程属性，让子进程进入独立进程组
// 子进程自己再fork出的进程也留在该组内，便于整组终止
func SetNewPG(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

/**
 * Kill a process and every child it spawned (Unix implementation)
 * @param {int} pid - Process group leader PID
 * @returns {error} Returns error if signalling fails, nil on success
 * @description
 * - Signals the whole process group: first SIGTERM, then SIGKILL if needed
 * - Requires the process to have been started with SetNewPG
 */
func KillProcessTree(pid int) error {
	// 首先尝试优雅终止 (SIGTERM)
	if err := syscall.Kill(-pid, syscall.SIGTERM); err == nil {
		for i := 0; i < 10; i++ {
			if err := syscall.Kill(-pid, syscall.Signal(0)); err != nil {
				// 进程组已退出
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	// 如果SIGTERM失败，使用强制终止 (SIGKILL)
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}

// IsProcessRunning 检查进程是否正在运行
func IsProcessRunning(pid int) (bool, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, err
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false, nil
	}
	return true, nil
}
