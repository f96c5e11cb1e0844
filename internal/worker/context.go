package worker

import "fmt"

/**
 * ComponentContext 每个worker进程的可观测性上下文
 * @property {string} Component - 组件名，含角色与worker身份，如"api-server:3"
 * @property {string} ServiceName - 服务名，未命名服务为"*Service"
 * @property {string} ServiceVersion - 服务版本，未知为"not available"
 * @description
 * - 进程启动时设置一次，指标分片和日志标记都读这里
 */
type ComponentContext struct {
	Component      string
	ServiceName    string
	ServiceVersion string
}

var current ComponentContext

// SetComponent records this process's role and worker identity.
func SetComponent(role string, workerID int) {
	current.Component = fmt.Sprintf("%s:%d", role, workerID)
}

// SetService records the identity of the loaded service, falling back to
// placeholders for ad-hoc unnamed services.
func SetService(name, version string) {
	if name == "" {
		current.ServiceName = "*Service"
		current.ServiceVersion = "not available"
		return
	}
	current.ServiceName = name
	current.ServiceVersion = version
}

func Component() string { return current.Component }

func Service() (string, string) { return current.ServiceName, current.ServiceVersion }
