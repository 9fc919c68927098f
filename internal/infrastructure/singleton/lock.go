// Package singleton 基于固定端口的单实例锁
package singleton

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

const (
	// HealthCheckTimeout 健康检查超时时间
	HealthCheckTimeout = 2 * time.Second
	// HealthPath 健康检查路径
	HealthPath = "/health"
)

// HealthStatus /health 响应体
type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// CheckAndLock 尝试占用端口作为单实例锁
// 端口可用时返回 listener；端口被同名服务占用时返回 nil, nil（调用者应退出）；
// 端口被占用但健康检查失败或服务名不符时返回错误
func CheckAndLock(port, service string) (net.Listener, error) {
	listener, err := net.Listen("tcp", port)
	if err == nil {
		return listener, nil
	}

	if !isAddrInUse(err) {
		return nil, fmt.Errorf("监听端口失败: %w", err)
	}

	running, err := isInstanceRunning(port, service)
	if running {
		return nil, nil
	}
	return nil, fmt.Errorf("端口 %s 被占用，但健康检查失败: %w", port, err)
}

// isAddrInUse 检查错误是否是地址已在使用
func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	// Windows: WSAEADDRINUSE (10048)
	if errors.Is(err, syscall.EADDRINUSE) || errors.Is(err, syscall.Errno(10048)) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "address already in use") ||
		strings.Contains(msg, "Only one usage of each socket address")
}

// isInstanceRunning 检查端口上是否运行着同名服务
func isInstanceRunning(port, service string) (bool, error) {
	client := &http.Client{
		Timeout: HealthCheckTimeout,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost%s%s", port, HealthPath))
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("健康检查返回 %d", resp.StatusCode)
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("解析健康检查响应失败: %w", err)
	}
	if status.Service != service {
		return false, fmt.Errorf("端口被其他服务 %q 占用", status.Service)
	}
	return status.Status == "ok", nil
}
