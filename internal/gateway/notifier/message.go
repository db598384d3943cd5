package notifier

import (
	"fmt"
	"strings"
	"time"
)

const maxStructuredMessageLen = 3800

// MessageSection 表示通知中的一个段落。
type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage 描述统一格式的 Telegram 推送。
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

// RenderMarkdown 生成 Markdown 文本，自动裁剪长度。
func (m StructuredMessage) RenderMarkdown() string {
	var b strings.Builder
	header := strings.TrimSpace(strings.TrimSpace(m.Icon + " " + m.Title))
	if header != "" {
		b.WriteString(header + "\n\n")
	}
	if block := renderSections(m.Sections); block != "" {
		b.WriteString(block)
	}
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(sanitize(footer))
		b.WriteString("\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("时间：" + m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxStructuredMessageLen {
		body = body[:maxStructuredMessageLen] + "..."
	}
	return body
}

func renderSections(secs []MessageSection) string {
	hasContent := false
	for _, sec := range secs {
		if len(sanitizeLines(sec.Lines)) > 0 {
			hasContent = true
			break
		}
	}
	if !hasContent {
		return ""
	}
	var b strings.Builder
	b.WriteString("```\n")
	for idx, sec := range secs {
		lines := sanitizeLines(sec.Lines)
		if len(lines) == 0 {
			continue
		}
		title := strings.TrimSpace(sec.Title)
		if title != "" {
			b.WriteString(sanitize(title))
			b.WriteString("\n")
		}
		for _, line := range lines {
			b.WriteString("- ")
			b.WriteString(sanitize(line))
			b.WriteString("\n")
		}
		if idx != len(secs)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("```\n\n")
	return b.String()
}

func sanitizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "```", "'''")
	return s
}

// InvalidationNotice 价格触发失效后的推送数据。
type InvalidationNotice struct {
	ConversationID string
	Symbol         string
	Timeframe      string
	Direction      string
	Price          string
	Level          string
	Condition      string
	ResetDeadline  *time.Time
}

func InvalidationResetMessage(n InvalidationNotice) StructuredMessage {
	lines := []string{
		fmt.Sprintf("标的: %s (%s)", strings.ToUpper(strings.TrimSpace(n.Symbol)), n.Timeframe),
		fmt.Sprintf("方向: %s", n.Direction),
		fmt.Sprintf("最新价 %s 已越过失效位 %s", n.Price, n.Level),
	}
	if cond := strings.TrimSpace(n.Condition); cond != "" {
		lines = append(lines, "失效条件: "+cond)
	}
	if n.ResetDeadline != nil {
		lines = append(lines, "冷却至: "+n.ResetDeadline.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	return StructuredMessage{
		Icon:  "⚠️",
		Title: "持仓情景失效，状态进入冷却",
		Sections: []MessageSection{
			{Title: "会话 " + n.ConversationID, Lines: lines},
		},
		Timestamp: time.Now(),
	}
}

// DecisionNotice 决策摘要推送的数据，字段为已格式化的纯文本。
type DecisionNotice struct {
	TraceID      string
	Symbol       string
	Timeframe    string
	Direction    string
	Winner       string
	TotalA       int
	TotalB       int
	EntryTrigger string
	Invalidation string
	RiskPercent  float64
	RiskBlocked  bool
	RiskReason   string
	State        string
	Degraded     bool
}

func DecisionSummaryMessage(n DecisionNotice) StructuredMessage {
	icon := "📈"
	title := fmt.Sprintf("%s %s 决策: %s", strings.ToUpper(strings.TrimSpace(n.Symbol)), n.Timeframe, n.Direction)
	if n.RiskBlocked {
		icon = "🛑"
		title = fmt.Sprintf("%s %s 风控拦截", strings.ToUpper(strings.TrimSpace(n.Symbol)), n.Timeframe)
	}

	core := []string{
		fmt.Sprintf("胜出: 情景 %s (A=%d / B=%d)", n.Winner, n.TotalA, n.TotalB),
	}
	if trigger := strings.TrimSpace(n.EntryTrigger); trigger != "" {
		core = append(core, "入场: "+trigger)
	}
	if inv := strings.TrimSpace(n.Invalidation); inv != "" {
		core = append(core, "失效: "+inv)
	}
	if n.RiskBlocked {
		core = append(core, "拦截原因: "+n.RiskReason)
	} else if n.RiskPercent > 0 {
		core = append(core, fmt.Sprintf("建议仓位风险: %.1f%%", n.RiskPercent))
	}
	if n.State != "" {
		core = append(core, "状态: "+n.State)
	}
	if n.Degraded {
		core = append(core, "注: 评估降级，采用中性评分")
	}

	return StructuredMessage{
		Icon:     icon,
		Title:    title,
		Sections: []MessageSection{{Title: "决策摘要", Lines: core}},
		Footer:   "trace: " + n.TraceID,
	}
}
