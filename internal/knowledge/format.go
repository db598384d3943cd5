package knowledge

import (
	"fmt"
	"strings"
)

// EmptyContextPlaceholder 检索结果为空时喂给分析模型的固定占位文本。
const EmptyContextPlaceholder = "（知识库中未检索到相关内容）"

// FormatContext 将检索结果渲染成单段文本，逐片段给出
// 【章节】(第N页, 类别) 相关度百分比与正文。这是检索知识
// 进入分析模型的唯一通道。
func FormatContext(res RetrievalResult) string {
	if res.Empty() {
		return EmptyContextPlaceholder
	}
	var b strings.Builder
	for i, sf := range res.Fragments {
		if i > 0 {
			b.WriteString("\n\n")
		}
		f := sf.Fragment
		section := strings.TrimSpace(f.Section)
		if section == "" {
			section = "未命名章节"
		}
		fmt.Fprintf(&b, "【%s】(第%d页, %s) 相关度 %.0f%%\n", section, f.Page, f.Category, sf.Score*100)
		b.WriteString(strings.TrimSpace(f.Content))
	}
	return b.String()
}
