package topology

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// APIServerSocketName is the reserved logical name for the API server socket.
// Runner names beginning with an underscore are rejected so they can never
// collide with it.
const APIServerSocketName = "_api_server"

type SocketKind string

const (
	SocketUnix SocketKind = "unix"
	SocketTCP  SocketKind = "tcp"
)

/**
 * SocketSpec socket规格说明
 * @property {string} Name - 逻辑名，对应runner名或API服务器保留名
 * @property {SocketKind} Kind - 传输类型: unix/tcp
 * @property {string} Path - unix socket文件路径(Kind==unix时有效)
 * @property {string} Host - 监听地址(Kind==tcp时有效)
 * @property {int} Port - 监听端口(Kind==tcp时有效)
 * @property {int} Backlog - 监听队列长度
 * @description
 * - 每个runner恰好一个SocketSpec，API服务器恰好一个
 * - 由SocketAllocator在一次serve调用中创建一次，之后不可变
 */
type SocketSpec struct {
	Name    string
	Kind    SocketKind
	Path    string
	Host    string
	Port    int
	Backlog int
}

// Address returns the connectable address string for this socket,
// "unix:///path/to.sock" or "tcp://host:port".
func (s SocketSpec) Address() string {
	if s.Kind == SocketUnix {
		return "unix://" + s.Path
	}
	return fmt.Sprintf("tcp://%s:%d", s.Host, s.Port)
}

/**
 * SocketSpecFromURI 从字面量地址构造SocketSpec
 * @param {string} name - socket逻辑名
 * @param {string} uri - 地址: "tcp://127.0.0.1:3000" 或 "unix:///tmp/x.sock"
 * @param {int} backlog - 监听队列长度
 * @returns {SocketSpec} 构造的socket规格
 * @returns {error} uri不合法时返回错误
 * @description
 * - 独立模式(standalone)下把操作员给的bind地址转成可注册的socket
 */
func SocketSpecFromURI(name, uri string, backlog int) (SocketSpec, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return SocketSpec{}, NewTopologyError(uri, "invalid bind address: %v", err)
	}
	switch u.Scheme {
	case "unix":
		path := u.Path
		if u.Host != "" {
			path = u.Host + u.Path
		}
		if path == "" {
			return SocketSpec{}, NewTopologyError(uri, "unix bind address has no path")
		}
		return SocketSpec{Name: name, Kind: SocketUnix, Path: path, Backlog: backlog}, nil
	case "tcp":
		port, err := strconv.Atoi(u.Port())
		if err != nil {
			return SocketSpec{}, NewTopologyError(uri, "invalid tcp port %q", u.Port())
		}
		return SocketSpec{Name: name, Kind: SocketTCP, Host: u.Hostname(), Port: port, Backlog: backlog}, nil
	default:
		return SocketSpec{}, NewTopologyError(uri, "unsupported bind scheme %q", u.Scheme)
	}
}

// RunnerAddressMap maps runner name to its connectable address. Built once by
// the planner after all runner sockets are allocated, then serialized verbatim
// into the API server worker arguments. Never mutated afterwards.
type RunnerAddressMap map[string]string

// Encode serializes the map to the JSON form passed on worker command lines
// and through the MODELKEEPER_RUNNER_MAP environment variable.
func (m RunnerAddressMap) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode runner map: %w", err)
	}
	return string(data), nil
}

// DecodeRunnerMap parses the serialized runner address map.
func DecodeRunnerMap(s string) (RunnerAddressMap, error) {
	var m RunnerAddressMap
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("failed to decode runner map: %w", err)
	}
	return m, nil
}
