//go:build !unix && !windows

package utils

import (
	"os/exec"
)

// SetNewPG 设置进程属性
// 默认实现，用于不支持的构建目标
func SetNewPG(cmd *exec.Cmd) {
	// 默认不做任何处理
}

// KillProcessTree 终止进程树
// 默认实现，用于不支持的构建目标
func KillProcessTree(pid int) error {
	panic("KillProcessTree not implemented for this platform")
}

// IsProcessRunning 检查进程是否正在运行
func IsProcessRunning(pid int) (bool, error) {
	panic("IsProcessRunning not implemented for this platform")
}
