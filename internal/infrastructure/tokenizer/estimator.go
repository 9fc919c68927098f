// Package tokenizer 估算历史消息的 token 数量
package tokenizer

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/chatgroup/backend/internal/domain/history"
	"github.com/chatgroup/backend/internal/infrastructure/log"
)

// 在包初始化时设置离线加载器
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// 计算方法标识
const (
	MethodTiktoken = "tiktoken"
	MethodFallback = "fallback"
)

// encodingName cl100k_base 与主流对话模型兼容
const encodingName = "cl100k_base"

var (
	encodingInstance *tiktoken.Tiktoken
	encodingOnce     sync.Once
	encodingErr      error
)

// loadEncoding 加载编码单例，避免重复加载 BPE 文件
func loadEncoding() (*tiktoken.Tiktoken, error) {
	encodingOnce.Do(func() {
		encodingInstance, encodingErr = tiktoken.GetEncoding(encodingName)
	})
	return encodingInstance, encodingErr
}

// Estimator 历史消息 token 估算器
// 编码不可用时自动降级为按字符数估算
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
	logger   *slog.Logger
}

var _ history.TokenEstimator = (*Estimator)(nil)

// NewEstimator 创建估算器
func NewEstimator() *Estimator {
	logger := log.NewModuleLogger("tokenizer", "estimator")

	enc, err := loadEncoding()
	if err != nil {
		// 仅记录一次，之后静默使用降级算法
		logger.Warn("tiktoken encoding unavailable, using fallback estimate",
			"encoding", encodingName,
			"error", err,
		)
	}

	return &Estimator{
		encoding: enc,
		logger:   logger,
	}
}

// EstimateMessages 估算消息列表的 token 总数，每条消息按 "{sender}: {content}" 计算
func (e *Estimator) EstimateMessages(messages []history.SimplifiedMessage) int {
	if len(messages) == 0 {
		return 0
	}
	if e.encoding == nil {
		return FallbackEstimate(messages)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	total := 0
	for _, msg := range messages {
		total += len(e.encoding.Encode(render(msg), nil, nil))
	}
	return total
}

// CountTokens 计算单段文本的 token 数量
func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if e.encoding == nil {
		return utf8.RuneCountInString(text) / 3
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.encoding.Encode(text, nil, nil))
}

// Method 返回当前使用的计算方法
func (e *Estimator) Method() string {
	if e.encoding == nil {
		return MethodFallback
	}
	return MethodTiktoken
}

// FallbackEstimate 降级估算：Σ(len(sender)+len(content)+2) / 3，长度按字符计
func FallbackEstimate(messages []history.SimplifiedMessage) int {
	chars := 0
	for _, msg := range messages {
		chars += utf8.RuneCountInString(msg.Sender) + utf8.RuneCountInString(msg.Content) + 2
	}
	return chars / 3
}

func render(msg history.SimplifiedMessage) string {
	return msg.Sender + ": " + msg.Content
}
