package topology

import (
	"runtime"
	"strconv"

	"modelkeeper/internal/config"
)

type Role string

const (
	RoleRunner    Role = "runner"
	RoleAPIServer Role = "api-server"
	RoleDevServer Role = "dev-api-server"
)

// Worker subcommands of the modelkeeper executable. Every worker process is a
// re-invocation of the same binary with a different entry.
const (
	EntryRunnerWorker = "runner-worker"
	EntryAPIWorker    = "api-worker"
)

/**
 * ProcessSpec 进程启动规格
 * @property {string} Name - 进程组名，如"runner_embedder"、"api_server"
 * @property {Role} Role - 角色: runner/api-server/dev-api-server
 * @property {string} Command - 可执行文件
 * @property {[]string} Args - 参数向量，socket与worker身份只以占位符出现
 * @property {int} NumProcs - 进程数，一份规格驱动N个受管进程
 * @property {string} WorkDir - 工作目录
 * @property {bool} CopyEnv - 是否继承父进程环境
 * @property {bool} StopChildren - 停止时是否连带终止其子进程
 * @property {bool} KeepChildStdin - 是否保持子进程stdin打开(调试用)
 * @property {[]string} Sockets - 附加的socket名，决定ExtraFiles顺序
 * @description
 * - 构造后不可变
 * - bind参数必须经过supervisor的fd替换，绝不携带字面量地址
 */
type ProcessSpec struct {
	Name           string
	Role           Role
	Command        string
	Args           []string
	NumProcs       int
	WorkDir        string
	CopyEnv        bool
	StopChildren   bool
	KeepChildStdin bool
	Sockets        []string
}

/**
 * BuildRunnerSpec 构造runner worker的启动规格
 * @param {*config.ServeConfig} cfg - serve调用参数
 * @param {string} runnerName - runner名
 * @param {int} numProcs - 进程数(来自runner声明的worker数)
 * @returns {ProcessSpec} 启动规格
 */
func BuildRunnerSpec(cfg *config.ServeConfig, runnerName string, numProcs int) ProcessSpec {
	args := []string{
		EntryRunnerWorker,
		cfg.ServiceID,
		"--runner-name", runnerName,
		"--bind", SocketFDRef(runnerName).Token(),
		"--working-dir", cfg.WorkingDir,
		"--worker-id", WorkerIDRef().Token(),
	}
	return ProcessSpec{
		Name:         "runner_" + runnerName,
		Role:         RoleRunner,
		Command:      cfg.Executable,
		Args:         args,
		NumProcs:     numProcs,
		WorkDir:      cfg.WorkingDir,
		CopyEnv:      true,
		StopChildren: true,
		Sockets:      []string{runnerName},
	}
}

/**
 * BuildAPIServerSpec 构造生产模式API服务器的启动规格
 * @param {*config.ServeConfig} cfg - serve调用参数
 * @param {RunnerAddressMap} runnerMap - runner地址表，序列化后整体嵌入参数
 * @returns {ProcessSpec} 启动规格
 * @returns {error} runner地址表序列化失败时返回错误
 * @description
 * - 进程数取显式覆盖值，否则按可用CPU数
 * - 七个TLS参数仅在设置时出现，缺省参数整体省略
 */
func BuildAPIServerSpec(cfg *config.ServeConfig, runnerMap RunnerAddressMap) (ProcessSpec, error) {
	encoded, err := runnerMap.Encode()
	if err != nil {
		return ProcessSpec{}, err
	}
	args := []string{
		EntryAPIWorker,
		cfg.ServiceID,
		"--bind", SocketFDRef(APIServerSocketName).Token(),
		"--runner-map", encoded,
		"--working-dir", cfg.WorkingDir,
		"--backlog", strconv.Itoa(cfg.Backlog),
		"--worker-id", WorkerIDRef().Token(),
		"--prometheus-dir", cfg.PrometheusDir,
	}
	args = appendTLSArgs(args, cfg.TLS)

	numProcs := cfg.APIWorkers
	if numProcs <= 0 {
		numProcs = runtime.NumCPU()
	}
	return ProcessSpec{
		Name:         "api_server",
		Role:         RoleAPIServer,
		Command:      cfg.Executable,
		Args:         args,
		NumProcs:     numProcs,
		WorkDir:      cfg.WorkingDir,
		CopyEnv:      true,
		StopChildren: true,
		Sockets:      []string{APIServerSocketName},
	}, nil
}

/**
 * BuildDevServerSpec 构造开发模式API服务器的启动规格
 * @param {*config.ServeConfig} cfg - serve调用参数
 * @returns {ProcessSpec} 启动规格
 * @description
 * - 单进程，runner在进程内执行，不携带runner地址表
 * - 保持stdin打开，便于在worker内使用调试器
 */
func BuildDevServerSpec(cfg *config.ServeConfig) ProcessSpec {
	args := []string{
		EntryAPIWorker,
		cfg.ServiceID,
		"--development",
		"--bind", SocketFDRef(APIServerSocketName).Token(),
		"--working-dir", cfg.WorkingDir,
		"--backlog", strconv.Itoa(cfg.Backlog),
		"--worker-id", WorkerIDRef().Token(),
		"--prometheus-dir", cfg.PrometheusDir,
	}
	args = appendTLSArgs(args, cfg.TLS)

	return ProcessSpec{
		Name:           "dev_api_server",
		Role:           RoleDevServer,
		Command:        cfg.Executable,
		Args:           args,
		NumProcs:       1,
		WorkDir:        cfg.WorkingDir,
		CopyEnv:        true,
		StopChildren:   true,
		KeepChildStdin: true,
		Sockets:        []string{APIServerSocketName},
	}
}

// appendTLSArgs forwards only the TLS options that are actually set. Unset
// options never appear, not even with empty values, so the serving layer
// keeps its own defaults.
func appendTLSArgs(args []string, tls config.TLSOptions) []string {
	if tls.Keyfile != "" {
		args = append(args, "--ssl-keyfile", tls.Keyfile)
	}
	if tls.Certfile != "" {
		args = append(args, "--ssl-certfile", tls.Certfile)
	}
	if tls.KeyfilePassword != "" {
		args = append(args, "--ssl-keyfile-password", tls.KeyfilePassword)
	}
	if tls.Version != 0 {
		args = append(args, "--ssl-version", strconv.Itoa(tls.Version))
	}
	if tls.CertReqs != 0 {
		args = append(args, "--ssl-cert-reqs", strconv.Itoa(tls.CertReqs))
	}
	if tls.CACerts != "" {
		args = append(args, "--ssl-ca-certs", tls.CACerts)
	}
	if tls.Ciphers != "" {
		args = append(args, "--ssl-ciphers", tls.Ciphers)
	}
	return args
}
