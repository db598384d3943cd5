package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m3n89t-max/-chatbot/internal/decision"
)

// 中文说明：情景提案提示词。两路模型共用一套输出协议，B 路额外
// 收到 A 路的完整提案并被要求给出差异化的对立情景。

const defaultPersona = `你是一名严格遵循波浪理论的交易分析师。你只依据给定的知识库规则片段做判断，不引用片段之外的规则。知识库没有覆盖的问题，明确说明无法依据规则回答。`

const scenarioProtocol = `### 输出要求
- 仅输出一个 JSON 对象，不要输出代码块以外的解释文字。
- 字段必须齐全：direction/label/trigger/invalidation/risk_reward/cited_rules/rationale。
- direction 取值 LONG / SHORT / HOLD。
- label 用英文短语描述浪形情景（如 "impulse wave 3"、"corrective c wave"）。
- trigger 与 invalidation 必须是可执行的具体价格条件。
- risk_reward 为数值，按 trigger 到目标与 trigger 到 invalidation 的比值估算。
- cited_rules 列出本次判断引用的知识库章节号。

### 示例 JSON
{
  "direction": "LONG",
  "label": "impulse wave 3 breakout",
  "trigger": "<具体触发价格条件>",
  "invalidation": "<具体失效价格条件>",
  "risk_reward": 2.8,
  "cited_rules": ["3.2", "4.1"],
  "rationale": "<100字以内的依据说明>"
}`

// ScenarioSystem 情景提案的 system 提示词。persona 为空时用默认人设。
func ScenarioSystem(persona string) string {
	p := strings.TrimSpace(persona)
	if p == "" {
		p = defaultPersona
	}
	return p + "\n\n" + scenarioProtocol
}

// ScenarioUser 渲染单轮提案的 user 提示词。
func ScenarioUser(req decision.ProposalRequest) string {
	var b strings.Builder
	b.WriteString("### 用户问题\n")
	b.WriteString(strings.TrimSpace(req.Query))
	b.WriteString("\n")
	if req.Symbol != "" {
		fmt.Fprintf(&b, "\n### 标的\n%s %s\n", req.Symbol, req.Timeframe)
	}
	if ctx := strings.TrimSpace(req.ContextText); ctx != "" {
		b.WriteString("\n### 知识库规则片段\n")
		b.WriteString(ctx)
		b.WriteString("\n")
	}
	if req.Other != nil {
		b.WriteString("\n### 对手情景\n")
		b.WriteString("另一路分析已给出以下情景：\n")
		b.WriteString(renderProposal(*req.Other))
		b.WriteString("\n请给出一个与之有实质差异的对立情景：不同的浪形解读或不同的方向，不要复述对手结论。\n")
	}
	return b.String()
}

func renderProposal(p decision.ScenarioProposal) string {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", p)
	}
	return string(data)
}
