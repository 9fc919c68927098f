package singleton

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testService = "chatgroup-backend"

// healthServer 启动返回指定健康状态的服务器，返回 ":port"
func healthServer(t *testing.T, code int, status HealthStatus) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != HealthPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}))
	t.Cleanup(server.Close)

	_, port, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	return ":" + port
}

func TestCheckAndLock_PortAvailable(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := listener.Addr().String()
	listener.Close()

	result, err := CheckAndLock(port, testService)
	require.NoError(t, err)
	require.NotNil(t, result)
	defer result.Close()
}

func TestCheckAndLock_PortInUse_HealthyInstance(t *testing.T) {
	port := healthServer(t, http.StatusOK, HealthStatus{Status: "ok", Service: testService})

	result, err := CheckAndLock(port, testService)
	assert.NoError(t, err)
	assert.Nil(t, result, "已有同名实例时应返回 nil listener")
}

func TestCheckAndLock_PortInUse_OtherService(t *testing.T) {
	port := healthServer(t, http.StatusOK, HealthStatus{Status: "ok", Service: "someone-else"})

	result, err := CheckAndLock(port, testService)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "someone-else")
}

func TestCheckAndLock_PortInUse_UnhealthyInstance(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	_, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)

	// 端口被占用但不响应 HTTP
	result, err := CheckAndLock(":"+port, testService)
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestIsAddrInUse(t *testing.T) {
	l1, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l1.Close()

	_, inUseErr := net.Listen("tcp", l1.Addr().String())
	require.Error(t, inUseErr)
	assert.True(t, isAddrInUse(inUseErr), "应该检测到地址已在使用")

	_, invalidErr := net.Listen("tcp", "invalid")
	require.Error(t, invalidErr)
	assert.False(t, isAddrInUse(invalidErr), "不应该检测为地址已在使用")

	assert.False(t, isAddrInUse(nil))
}

func TestIsInstanceRunning(t *testing.T) {
	t.Run("实例正常运行", func(t *testing.T) {
		port := healthServer(t, http.StatusOK, HealthStatus{Status: "ok", Service: testService})
		running, err := isInstanceRunning(port, testService)
		assert.NoError(t, err)
		assert.True(t, running)
	})

	t.Run("实例不存在", func(t *testing.T) {
		running, err := isInstanceRunning(":99999", testService)
		assert.Error(t, err)
		assert.False(t, running)
	})

	t.Run("实例返回非200状态码", func(t *testing.T) {
		port := healthServer(t, http.StatusInternalServerError, HealthStatus{})
		running, err := isInstanceRunning(port, testService)
		assert.Error(t, err)
		assert.False(t, running)
	})
}
