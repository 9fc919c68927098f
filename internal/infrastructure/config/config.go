package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// 环境变量名
const (
	EnvHTTPPort         = "CHATGROUP_HTTP_PORT"
	EnvDBPath           = "CHATGROUP_DB_PATH"
	EnvHistoryDir       = "CHATGROUP_HISTORY_DIR"
	EnvHistoryMaxTokens = "CHATGROUP_HISTORY_MAX_TOKENS"
)

// ConfigFileName 数据目录下的可选配置文件
const ConfigFileName = "config.yaml"

// DefaultHTTPPort 默认监听端口
const DefaultHTTPPort = ":19970"

// 上下文压缩策略默认值
const (
	DefaultMaxContextMessages = 30
	DefaultRecentFullMessages = 5
	DefaultCompressionRatio   = 0.4
	DefaultMinCompressedChars = 100
	DefaultMaxCompressedChars = 500
	DefaultHistoryMaxTokens   = 8000
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Context  ContextConfig  `yaml:"context"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort string `yaml:"http_port"` // 固定端口，用于单例锁
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path string `yaml:"path"` // 留空表示 {dataDir}/chatgroup.db
}

// ContextConfig 智能体上下文的窗口与压缩策略
type ContextConfig struct {
	// MaxContextMessages 上下文窗口最多包含的消息数
	MaxContextMessages int `yaml:"max_context_messages"`
	// RecentFullMessages 保持完整内容的最近消息数
	RecentFullMessages int `yaml:"recent_full_messages"`
	// CompressionRatio 压缩后保留的比例
	CompressionRatio float64 `yaml:"compression_ratio"`
	// MinCompressedChars 压缩预算下限（字符）
	MinCompressedChars int `yaml:"min_compressed_chars"`
	// MaxCompressedChars 压缩预算上限（字符）
	MaxCompressedChars int `yaml:"max_compressed_chars"`
}

// HistoryConfig 历史文件配置
type HistoryConfig struct {
	// Dir 历史文件目录，留空表示 {dataDir}/chat_history
	Dir string `yaml:"dir"`
	// MaxTokens 主历史文件的 token 上限，超出部分移入溢出文件
	MaxTokens int `yaml:"max_tokens"`
}

// NewConfig 创建配置（默认值 + 环境变量）
func NewConfig() *Config {
	cfg := defaultConfig()
	cfg.applyEnv()
	return cfg
}

// LoadConfig 加载配置：默认值 -> {dataDir}/config.yaml -> 环境变量
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	path := filepath.Join(GetDataDir(), ConfigFileName)
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile 从指定 YAML 文件加载配置，文件不存在时使用默认值
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	dataDir := GetDataDir()
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "chatgroup.db"),
		},
		Context: DefaultContextConfig(),
		History: HistoryConfig{
			Dir:       filepath.Join(dataDir, "chat_history"),
			MaxTokens: DefaultHistoryMaxTokens,
		},
	}
}

// DefaultContextConfig 默认上下文策略
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		MaxContextMessages: DefaultMaxContextMessages,
		RecentFullMessages: DefaultRecentFullMessages,
		CompressionRatio:   DefaultCompressionRatio,
		MinCompressedChars: DefaultMinCompressedChars,
		MaxCompressedChars: DefaultMaxCompressedChars,
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv(EnvHTTPPort); port != "" {
		c.Server.HTTPPort = port
	}
	if path := os.Getenv(EnvDBPath); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv(EnvHistoryDir); dir != "" {
		c.History.Dir = dir
	}
	if raw := os.Getenv(EnvHistoryMaxTokens); raw != "" {
		// 非法值忽略，保留原配置
		if n, err := strconv.Atoi(raw); err == nil {
			c.History.MaxTokens = n
		}
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.HTTPPort == "" {
		return errors.New("server.http_port is required")
	}
	if c.History.Dir == "" {
		return errors.New("history.dir is required")
	}
	if c.History.MaxTokens <= 0 {
		return fmt.Errorf("history.max_tokens must be positive, got %d", c.History.MaxTokens)
	}
	return c.Context.Validate()
}

// Validate 校验上下文策略
func (c ContextConfig) Validate() error {
	switch {
	case c.MaxContextMessages < 1:
		return fmt.Errorf("context.max_context_messages must be >= 1, got %d", c.MaxContextMessages)
	case c.RecentFullMessages < 0:
		return fmt.Errorf("context.recent_full_messages must be >= 0, got %d", c.RecentFullMessages)
	case c.CompressionRatio <= 0 || c.CompressionRatio > 1:
		return fmt.Errorf("context.compression_ratio must be in (0, 1], got %v", c.CompressionRatio)
	case c.MinCompressedChars < 1:
		return fmt.Errorf("context.min_compressed_chars must be >= 1, got %d", c.MinCompressedChars)
	case c.MaxCompressedChars < c.MinCompressedChars:
		return fmt.Errorf("context.max_compressed_chars (%d) must be >= min_compressed_chars (%d)", c.MaxCompressedChars, c.MinCompressedChars)
	}
	return nil
}

// OrDefault 非法策略回退到默认值
func (c ContextConfig) OrDefault() ContextConfig {
	if c.Validate() != nil {
		return DefaultContextConfig()
	}
	return c
}

// NewDatabaseConfig 创建数据库配置
func NewDatabaseConfig(cfg *Config) *DatabaseConfig {
	return &cfg.Database
}

// NewServerConfig 创建服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}

// NewContextConfig 创建上下文策略配置
func NewContextConfig(cfg *Config) *ContextConfig {
	return &cfg.Context
}

// NewHistoryConfig 创建历史文件配置
func NewHistoryConfig(cfg *Config) *HistoryConfig {
	return &cfg.History
}
