package chat

import (
	"strings"
	"unicode"
)

// TruncationMarker 截断标记
const TruncationMarker = "...[truncated]"

// CompressContent 把内容压缩到大约 maxChars 个字符
// 已满足长度时原样返回（去除首尾空白）；否则在 [maxChars/2, maxChars) 内从后向前寻找断点：
// 优先句末标点之后，其次空白或逗号处，都没有时直接在 maxChars 处截断。
// 按字符而非字节计算，多字节文本同样适用。
func CompressContent(content string, maxChars int) string {
	if maxChars < 1 {
		maxChars = 1
	}

	trimmed := strings.TrimSpace(content)
	runes := []rune(trimmed)
	if len(runes) <= maxChars {
		return trimmed
	}

	breakPoint := maxChars
	found := false

	for i := maxChars - 1; i >= maxChars/2; i-- {
		if isSentenceEnd(runes[i]) {
			breakPoint = i + 1
			found = true
			break
		}
	}

	if !found {
		for i := maxChars - 1; i >= maxChars/2; i-- {
			if unicode.IsSpace(runes[i]) || runes[i] == ',' {
				breakPoint = i
				break
			}
		}
	}

	prefix := strings.TrimSpace(string(runes[:breakPoint]))
	return prefix + TruncationMarker
}

// CompressionBudget 计算压缩目标长度：原长度的 ratio 倍，限制在 [minChars, maxChars]
func CompressionBudget(content string, ratio float64, minChars, maxChars int) int {
	originalLen := len([]rune(content))
	target := int(float64(originalLen) * ratio)
	if target < minChars {
		target = minChars
	}
	if target > maxChars {
		target = maxChars
	}
	return target
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	default:
		return false
	}
}
