package topology

import (
	"fmt"
	"strings"
)

// Workers never see a literal runner address in their --bind argument. The
// spec arguments carry supervisor tokens instead; the supervisor substitutes
// the real file descriptor number (and worker id) at spawn time, after the
// socket has been bound. Token production and substitution both live here so
// the placeholder syntax is never string-matched ad hoc elsewhere.

type RefKind int

const (
	// RefLiteral is a plain address passed through untouched.
	RefLiteral RefKind = iota
	// RefSocketFD resolves to "fd://N" for the named bound socket.
	RefSocketFD
	// RefWorkerID resolves to the per-instance worker identity.
	RefWorkerID
)

// AddressRef is either a literal address or a supervisor-managed placeholder.
type AddressRef struct {
	Kind RefKind
	Name string // socket name for RefSocketFD, address for RefLiteral
}

func LiteralRef(address string) AddressRef {
	return AddressRef{Kind: RefLiteral, Name: address}
}

func SocketFDRef(socketName string) AddressRef {
	return AddressRef{Kind: RefSocketFD, Name: socketName}
}

func WorkerIDRef() AddressRef {
	return AddressRef{Kind: RefWorkerID}
}

// Token renders the argument-vector form of the reference.
func (r AddressRef) Token() string {
	switch r.Kind {
	case RefSocketFD:
		return fmt.Sprintf("fd://$(sockets.%s)", r.Name)
	case RefWorkerID:
		return "$(worker.wid)"
	default:
		return r.Name
	}
}

const (
	socketTokenPrefix = "fd://$(sockets."
	socketTokenSuffix = ")"
	workerIDToken     = "$(worker.wid)"
)

/**
 * SubstituteArgs 在spawn时解析参数中的占位符
 * @param {[]string} args - 含占位符的参数向量
 * @param {map[string]int} socketFDs - socket名到子进程fd号的映射
 * @param {int} workerID - 本实例的worker身份
 * @returns {[]string} 解析后的参数向量
 * @returns {error} 引用了未注册socket时返回错误
 * @description
 * - "fd://$(sockets.NAME)" 替换为 "fd://N"
 * - "$(worker.wid)" 替换为worker编号
 * - 其余参数原样保留
 */
func SubstituteArgs(args []string, socketFDs map[string]int, workerID int) ([]string, error) {
	out := make([]string, len(args))
	for i, arg := range args {
		switch {
		case strings.HasPrefix(arg, socketTokenPrefix) && strings.HasSuffix(arg, socketTokenSuffix):
			name := arg[len(socketTokenPrefix) : len(arg)-len(socketTokenSuffix)]
			fd, ok := socketFDs[name]
			if !ok {
				return nil, fmt.Errorf("argument references unregistered socket %q", name)
			}
			out[i] = fmt.Sprintf("fd://%d", fd)
		case arg == workerIDToken:
			out[i] = fmt.Sprintf("%d", workerID)
		default:
			out[i] = arg
		}
	}
	return out, nil
}
