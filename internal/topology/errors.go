package topology

import (
	"errors"
	"fmt"
)

// ErrResourceExhausted is returned when the allocator runs out of loopback
// ports or the filesystem refuses a temp directory.
var ErrResourceExhausted = errors.New("resource exhausted")

// ErrUnsupportedPlatform is returned when neither unix domain sockets nor
// loopback TCP are usable on the current platform.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

/**
 * TopologyError 不可恢复的拓扑规划错误
 * @property {string} Resource - 出错的资源（runner名、socket路径、目录）
 * @property {string} Reason - 错误原因
 * @description
 * - 规划阶段的致命错误，发生在任何进程启动之前
 * - 包括socket路径超长、runner重名、无可用socket等
 */
type TopologyError struct {
	Resource string
	Reason   string
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("topology error: %s: %s", e.Resource, e.Reason)
}

// NewTopologyError creates a planning error naming the offending resource.
func NewTopologyError(resource, format string, args ...interface{}) *TopologyError {
	return &TopologyError{Resource: resource, Reason: fmt.Sprintf(format, args...)}
}
