package text

import "unicode/utf8"

// Truncate 按字节长度截断并追加省略号，截断点回退到合法的
// UTF-8 边界，避免把多字节字符切成半个。
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
