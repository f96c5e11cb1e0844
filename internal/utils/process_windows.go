//go:build windows

package utils

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// SetNewPG 设置进程属性，让子进程进入独立进程组 (Windows implementation)
func SetNewPG(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

/**
 * Kill a process and every child it spawned (Windows implementation)
 * @param {int} pid - Root process PID
 * @returns {error} Returns error if taskkill fails, nil on success
 * @description
 * - Uses taskkill /T to terminate the whole process tree
 */
func KillProcessTree(pid int) error {
	cmd := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid))
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("taskkill failed for PID %d: %v: %s", pid, err, output)
	}
	return nil
}

// IsProcessRunning 检查进程是否正在运行 (Windows implementation)
func IsProcessRunning(pid int) (bool, error) {
	cmd := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH", "/FO", "CSV")
	output, err := cmd.Output()
	if err != nil {
		return false, err
	}
	return strings.Contains(string(output), fmt.Sprintf("\"%d\"", pid)), nil
}
