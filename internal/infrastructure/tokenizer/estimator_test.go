package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatgroup/backend/internal/domain/history"
)

func msg(sender, content string) history.SimplifiedMessage {
	return history.SimplifiedMessage{Sender: sender, Content: content, Timestamp: "2024-05-01T10:00:00Z"}
}

func TestNewEstimator_UsesTiktoken(t *testing.T) {
	estimator := NewEstimator()
	require.NotNil(t, estimator)

	// 离线加载器内置 cl100k_base
	assert.Equal(t, MethodTiktoken, estimator.Method())

	enc1, err := loadEncoding()
	require.NoError(t, err)
	enc2, err := loadEncoding()
	require.NoError(t, err)
	assert.Same(t, enc1, enc2, "should return the same encoding instance")
}

func TestEstimator_EmptyList(t *testing.T) {
	assert.Equal(t, 0, NewEstimator().EstimateMessages(nil))
	assert.Equal(t, 0, NewEstimator().EstimateMessages([]history.SimplifiedMessage{}))
	assert.Equal(t, 0, (&Estimator{}).EstimateMessages(nil))
}

func TestEstimator_TiktokenRange(t *testing.T) {
	estimator := NewEstimator()

	tests := []struct {
		name     string
		messages []history.SimplifiedMessage
		minCount int
		maxCount int
	}{
		{"single english", []history.SimplifiedMessage{msg("user:alice", "Hello, world!")}, 5, 12},
		{"chinese", []history.SimplifiedMessage{msg("agent:规划", "你好世界")}, 4, 20},
		{"two messages", []history.SimplifiedMessage{msg("user:a", "one"), msg("system", "two")}, 6, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := estimator.EstimateMessages(tt.messages)
			assert.GreaterOrEqual(t, count, tt.minCount)
			assert.LessOrEqual(t, count, tt.maxCount)
		})
	}
}

func TestEstimator_NonDecreasing(t *testing.T) {
	estimators := map[string]*Estimator{
		MethodTiktoken: NewEstimator(),
		MethodFallback: {},
	}

	for name, estimator := range estimators {
		t.Run(name, func(t *testing.T) {
			prev := 0
			for i := 0; i <= 200; i += 7 {
				content := strings.Repeat("word ", i)
				count := estimator.EstimateMessages([]history.SimplifiedMessage{msg("user:alice", "start"), msg("agent:x", content)})
				assert.GreaterOrEqual(t, count, prev, "estimate should not decrease at length %d", i)
				prev = count
			}
		})
	}
}

func TestFallbackEstimate(t *testing.T) {
	tests := []struct {
		name     string
		messages []history.SimplifiedMessage
		expected int
	}{
		{"empty", nil, 0},
		// 6 + 5 + 2 = 13
		{"single", []history.SimplifiedMessage{msg("system", "hello")}, 4},
		// (6+3+2) + (6+3+2) = 22
		{"two", []history.SimplifiedMessage{msg("user:a", "abc"), msg("user:b", "def")}, 7},
		// 字符计数而非字节：6 + 4 + 2 = 12
		{"runes", []history.SimplifiedMessage{msg("system", "你好世界")}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FallbackEstimate(tt.messages))
		})
	}
}

func TestEstimator_FallbackMethod(t *testing.T) {
	estimator := &Estimator{}

	assert.Equal(t, MethodFallback, estimator.Method())
	assert.Equal(t, 4, estimator.EstimateMessages([]history.SimplifiedMessage{msg("system", "hello")}))
	assert.Equal(t, 3, estimator.CountTokens("123456789"))
}

func TestEstimator_CountTokens(t *testing.T) {
	estimator := NewEstimator()

	assert.Equal(t, 0, estimator.CountTokens(""))
	assert.Greater(t, estimator.CountTokens("The quick brown fox jumps over the lazy dog."), 5)
}
