package prompt

import (
	"strings"
	"unicode/utf8"
)

// Resolve は送信時の指示文を決定します。
// 空白のみの場合は fallback（空なら既定文）に置き換え、それ以外はそのまま返します。
func Resolve(text, fallback string) string {
	if strings.TrimSpace(text) != "" {
		return text
	}
	if strings.TrimSpace(fallback) != "" {
		return fallback
	}
	return DefaultInstruction()
}

// Truncate は UTF-8 を壊さずに最大 max 文字へ切り詰めます。max <= 0 なら何もしません。
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}

	var size, n int
	for i := 0; i < max && n < len(s); i++ {
		_, size = utf8.DecodeRuneInString(s[n:])
		n += size
	}
	return s[:n]
}
