package log

import (
	"os"
	"strconv"
	"strings"
)

// DefaultServiceName 日志中的服务标识
const DefaultServiceName = "chatgroup-backend"

// 日志相关环境变量，与守护进程配置共用 CHATGROUP_ 前缀
const (
	EnvLevel     = "CHATGROUP_LOG_LEVEL"
	EnvFormat    = "CHATGROUP_LOG_FORMAT"
	EnvOutput    = "CHATGROUP_LOG_OUTPUT"
	EnvAddSource = "CHATGROUP_LOG_ADD_SOURCE"
	EnvMode      = "CHATGROUP_ENV"
)

// Config 日志配置
type Config struct {
	Level     string `json:"level"`      // debug, info, warn, error
	Format    string `json:"format"`     // console, json
	Output    string `json:"output"`     // stdout, stderr, file:/path/to/log
	AddSource bool   `json:"add_source"` // 附带源文件位置
	Service   string `json:"service"`
}

// NewConfigFromEnv 从 CHATGROUP_LOG_* 环境变量读取日志配置
// CHATGROUP_ENV=development 时强制 debug 级别、控制台格式并附带源码位置
func NewConfigFromEnv() *Config {
	if developmentMode() {
		return &Config{
			Level:     "debug",
			Format:    "console",
			Output:    envOr(EnvOutput, "stdout"),
			AddSource: true,
			Service:   DefaultServiceName,
		}
	}
	return &Config{
		Level:     strings.ToLower(envOr(EnvLevel, "info")),
		Format:    strings.ToLower(envOr(EnvFormat, "console")),
		Output:    envOr(EnvOutput, "stdout"),
		AddSource: getEnvBool(EnvAddSource, false),
		Service:   DefaultServiceName,
	}
}

// outputFile 解析 file:/path 形式的输出目标
func (c *Config) outputFile() (string, bool) {
	return strings.CutPrefix(c.Output, "file:")
}

func developmentMode() bool {
	return strings.EqualFold(os.Getenv(EnvMode), "development")
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// getEnvBool 解析布尔环境变量，无法解析时使用默认值
func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultValue
	}
	return value
}
