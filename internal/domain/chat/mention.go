package chat

// ParseMentions 提取文本中的 @handle 提及
// 按首次出现顺序去重，区分大小写。@ 前一个字符为字母数字或 _-. 时不视为提及，
// 以排除 test@example.com 这类邮箱地址。
func ParseMentions(content string) []string {
	runes := []rune(content)
	mentions := make([]string, 0)
	seen := make(map[string]struct{})

	for i, r := range runes {
		if r != '@' {
			continue
		}
		if i > 0 {
			prev := runes[i-1]
			if isASCIIAlphanumeric(prev) || prev == '_' || prev == '-' || prev == '.' {
				continue
			}
		}

		j := i + 1
		for j < len(runes) && isHandleRune(runes[j]) {
			j++
		}
		if j == i+1 {
			continue
		}

		name := string(runes[i+1 : j])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		mentions = append(mentions, name)
	}

	return mentions
}

// isHandleRune handle 允许的字符
func isHandleRune(r rune) bool {
	return isASCIIAlphanumeric(r) || r == '_' || r == '-'
}

func isASCIIAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
