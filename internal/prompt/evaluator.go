package prompt

import (
	"strings"

	"github.com/m3n89t-max/-chatbot/internal/decision"
)

// 中文说明：规则评估提示词。评分维度与输出 schema 来自量表注册表，
// 这里只负责拼装固定协议部分。

const evaluatorRole = `你是一名波浪理论规则审核员。给定一个交易情景和相关的知识库规则片段，逐条核对情景是否违反规则，并按量表逐项打分。打分只看规则符合度，不预测行情。`

const evaluatorProtocol = `### 输出要求
- 仅输出一个 JSON 对象，不要附加解释。
- 字段：rule_valid（布尔）、invalidation_clarity / risk_reward_quality / structural_simplicity / resolution_speed（0~2 整数）、stop_distance_pct（入场价到失效价的距离百分比，数值，可省略）。
- 情景违反任何一条引用规则时 rule_valid 必须为 false。

### 示例 JSON
{
  "rule_valid": true,
  "invalidation_clarity": 2,
  "risk_reward_quality": 1,
  "structural_simplicity": 2,
  "resolution_speed": 1,
  "stop_distance_pct": 1.8
}`

// EvaluatorSystem 评估器 system 提示词，rubricSection 来自量表快照。
func EvaluatorSystem(rubricSection string) string {
	var b strings.Builder
	b.WriteString(evaluatorRole)
	b.WriteString("\n\n")
	if sec := strings.TrimSpace(rubricSection); sec != "" {
		b.WriteString(sec)
		b.WriteString("\n\n")
	}
	b.WriteString(evaluatorProtocol)
	return b.String()
}

// EvaluatorUser 渲染待评估情景与其上下文。
func EvaluatorUser(p decision.ScenarioProposal, contextText string) string {
	var b strings.Builder
	b.WriteString("### 待评估情景\n")
	b.WriteString(renderProposal(p))
	b.WriteString("\n")
	if ctx := strings.TrimSpace(contextText); ctx != "" {
		b.WriteString("\n### 知识库规则片段\n")
		b.WriteString(ctx)
		b.WriteString("\n")
	}
	return b.String()
}
