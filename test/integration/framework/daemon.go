//go:build integration
// +build integration

// TestDaemon 管理独立 chatgroup-daemon 进程的启动与关闭
package framework

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// TestDaemon 测试守护进程
type TestDaemon struct {
	Name     string // 角色名称
	HTTPPort int    // HTTP 端口
	DataDir  string // 数据目录（隔离）

	maxTokens int
	cmd       *exec.Cmd
	baseURL   string
}

// DaemonOption 守护进程配置选项
type DaemonOption func(*TestDaemon)

// WithHistoryMaxTokens 设置主历史文件的 token 上限
func WithHistoryMaxTokens(n int) DaemonOption {
	return func(d *TestDaemon) {
		d.maxTokens = n
	}
}

// NewTestDaemon 创建测试守护进程
func NewTestDaemon(binaryPath, name string, opts ...DaemonOption) (*TestDaemon, error) {
	httpPort, err := getFreePort()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate HTTP port: %w", err)
	}

	dataDir, err := os.MkdirTemp("", fmt.Sprintf("chatgroup-test-%s-", name))
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return NewTestDaemonWithConfig(binaryPath, name, dataDir, httpPort, opts...)
}

// NewTestDaemonWithConfig 使用指定数据目录和端口创建守护进程（用于重启场景）
func NewTestDaemonWithConfig(binaryPath, name, dataDir string, httpPort int, opts ...DaemonOption) (*TestDaemon, error) {
	d := &TestDaemon{
		Name:     name,
		HTTPPort: httpPort,
		DataDir:  dataDir,
		baseURL:  fmt.Sprintf("http://localhost:%d", httpPort),
	}

	for _, opt := range opts {
		opt(d)
	}

	env := append(os.Environ(),
		fmt.Sprintf("CHATGROUP_DATA_DIR=%s", dataDir),
		fmt.Sprintf("CHATGROUP_HTTP_PORT=:%d", httpPort),
		fmt.Sprintf("CHATGROUP_HISTORY_DIR=%s", d.HistoryDir()),
		"GIN_MODE=test",
	)
	if d.maxTokens > 0 {
		env = append(env, "CHATGROUP_HISTORY_MAX_TOKENS="+strconv.Itoa(d.maxTokens))
	}

	d.cmd = exec.Command(binaryPath)
	d.cmd.Env = env
	d.cmd.Stdout = os.Stdout
	d.cmd.Stderr = os.Stderr

	return d, nil
}

// HistoryDir 历史文件目录
func (d *TestDaemon) HistoryDir() string {
	return filepath.Join(d.DataDir, "chat_history")
}

// Start 启动守护进程并等待就绪
func (d *TestDaemon) Start() error {
	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon %s: %w", d.Name, err)
	}

	return d.waitForReady(30 * time.Second)
}

// Stop 停止守护进程并清理数据目录
func (d *TestDaemon) Stop() error {
	return d.StopWithCleanup(true)
}

// StopWithCleanup 停止守护进程，可选择是否清理数据目录
func (d *TestDaemon) StopWithCleanup(cleanup bool) error {
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Signal(os.Interrupt)

		done := make(chan error, 1)
		go func() {
			done <- d.cmd.Wait()
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = d.cmd.Process.Kill()
			<-done
		}
	}

	if cleanup {
		return os.RemoveAll(d.DataDir)
	}
	return nil
}

// BaseURL 返回 HTTP 基础 URL
func (d *TestDaemon) BaseURL() string {
	return d.baseURL
}

// waitForReady 等待守护进程 health 端点就绪
func (d *TestDaemon) waitForReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}

	for time.Now().Before(deadline) {
		resp, err := client.Get(d.baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(200 * time.Millisecond)
	}

	return fmt.Errorf("daemon %s failed to become ready within %v", d.Name, timeout)
}

// getFreePort 获取一个空闲的 TCP 端口
func getFreePort() (int, error) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}
