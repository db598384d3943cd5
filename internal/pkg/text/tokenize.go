package text

import (
	"strings"
	"unicode"
)

// KeywordTokens 把查询拆成可用于 LIKE 匹配的关键词。英文数字按词
// 切分，连续的 CJK 串除整体保留外再切成二元词组，长句也能命中
// 片段里的短术语。结果去重且保持出现顺序，最多返回 max 个。
func KeywordTokens(query string, max int) []string {
	if max <= 0 {
		max = 8
	}
	var tokens []string
	seen := make(map[string]struct{})
	add := func(tok string) bool {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return len(tokens) < max
		}
		key := strings.ToLower(tok)
		if _, ok := seen[key]; ok {
			return len(tokens) < max
		}
		seen[key] = struct{}{}
		tokens = append(tokens, tok)
		return len(tokens) < max
	}

	for _, run := range splitRuns(query) {
		if run.cjk {
			runes := []rune(run.text)
			if len(runes) <= 3 {
				if !add(run.text) {
					return tokens
				}
				continue
			}
			for i := 0; i+1 < len(runes); i++ {
				if !add(string(runes[i : i+2])) {
					return tokens
				}
			}
			continue
		}
		if !add(run.text) {
			return tokens
		}
	}
	return tokens
}

type tokenRun struct {
	text string
	cjk  bool
}

func splitRuns(s string) []tokenRun {
	var runs []tokenRun
	var sb strings.Builder
	curCJK := false
	flush := func() {
		if sb.Len() > 0 {
			runs = append(runs, tokenRun{text: sb.String(), cjk: curCJK})
			sb.Reset()
		}
	}
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r):
			if sb.Len() > 0 && !curCJK {
				flush()
			}
			curCJK = true
			sb.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if sb.Len() > 0 && curCJK {
				flush()
			}
			curCJK = false
			sb.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return runs
}
