package utils

import (
	"fmt"
	"net"
	"time"
)

/**
 * ReserveFreePort 申请一个空闲端口并立即释放
 * @param {string} host - 监听地址
 * @returns {int} 操作系统分配的端口号
 * @returns {error} 无可用端口时返回错误
 * @description
 * - 监听host:0由内核挑选端口，读出端口号后马上关闭
 * - 释放到真正bind之间存在竞争窗口，调用方自行承担
 */
func ReserveFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address type %T", l.Addr())
	}
	return addr.Port, nil
}

func CheckPortAvailable(port int) bool {
	timeout := time.Second
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", fmt.Sprintf("%d", port)), timeout)
	if err != nil {
		// 连接失败，说明端口可用
		return true
	}
	if conn != nil {
		conn.Close()
		// 连接成功，说明端口已被占用
		return false
	}
	return true
}
