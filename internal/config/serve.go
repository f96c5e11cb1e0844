package config

/**
 * ServeConfig 一次serve调用的完整参数
 * @property {string} ServiceID - 服务标识(目录或service.yaml路径)
 * @property {string} WorkingDir - 工作目录(已展开为绝对路径)
 * @property {string} Host - API服务器监听地址
 * @property {int} Port - API服务器监听端口
 * @property {int} Backlog - 监听队列长度
 * @property {int} APIWorkers - API worker进程数，0表示按CPU数取整
 * @property {string} PrometheusDir - 多进程指标目录(可为空，由planner解析)
 * @property {bool} Reload - 开发模式下是否启用文件变更自动重启
 * @property {string} Executable - worker进程复用的自身可执行文件路径
 * @property {TLSOptions} TLS - 可选TLS参数
 * @description
 * - 在serve命令入口构造一次，之后按值传递，所有组件只读
 * - 不存在可变的全局默认值，组件不得读取环境状态
 */
type ServeConfig struct {
	ServiceID     string
	WorkingDir    string
	Host          string
	Port          int
	Backlog       int
	APIWorkers    int
	PrometheusDir string
	Reload        bool
	Executable    string
	TLS           TLSOptions
}
