package models

import "time"

// RunStatus 进程运行状态
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusExited  RunStatus = "exited"
	StatusStopped RunStatus = "stopped"
	StatusError   RunStatus = "error"
)

/**
 * ProcessDetail 受管进程的快照信息
 * @property {string} Title - 显示名，如"api_server[2]"
 * @property {string} Role - 进程角色
 * @property {int} WorkerID - worker身份编号(同组内唯一)
 * @property {string} Command - 启动命令
 * @property {[]string} Args - 启动参数(占位符已解析)
 * @property {string} WorkDir - 工作目录
 * @property {RunStatus} Status - 运行状态
 * @property {int} Pid - 进程ID
 * @property {int} RestartCount - 重启次数
 * @property {time.Time} StartTime - 启动时间
 * @property {time.Time} LastExitTime - 最后退出时间
 * @property {string} LastExitReason - 最后退出原因
 */
type ProcessDetail struct {
	Title          string    `json:"title"`
	Role           string    `json:"role"`
	WorkerID       int       `json:"workerId"`
	Command        string    `json:"command"`
	Args           []string  `json:"args"`
	WorkDir        string    `json:"workDir"`
	Status         RunStatus `json:"status"`
	Pid            int       `json:"pid"`
	RestartCount   int       `json:"restartCount"`
	StartTime      time.Time `json:"startTime"`
	LastExitTime   time.Time `json:"lastExitTime"`
	LastExitReason string    `json:"lastExitReason"`
}
