package decision

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/m3n89t-max/-chatbot/internal/pkg/jsonutil"
)

// 中文说明：模型原始输出解析。先截取 JSON 片段，再用 gjson 校验
// 必填字段；数值字段兼容模型吐出的字符串形式。

// ParseProposal 解析情景提案输出。direction/label/trigger/
// invalidation/risk_reward 五个字段必须在场，方向词宽松归一。
func ParseProposal(raw string) (ScenarioProposal, error) {
	blob, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return ScenarioProposal{}, errors.New("情景提案输出中未找到 JSON")
	}
	if !gjson.Valid(blob) {
		return ScenarioProposal{}, errors.New("情景提案 JSON 非法")
	}
	doc := gjson.Parse(blob)
	for _, field := range []string{"direction", "label", "trigger", "invalidation", "risk_reward"} {
		if !doc.Get(field).Exists() {
			return ScenarioProposal{}, fmt.Errorf("情景提案缺少字段 %s", field)
		}
	}
	direction, err := ParseDirection(doc.Get("direction").String())
	if err != nil {
		return ScenarioProposal{}, err
	}
	p := ScenarioProposal{
		Direction:    direction,
		Label:        strings.TrimSpace(doc.Get("label").String()),
		Trigger:      strings.TrimSpace(doc.Get("trigger").String()),
		Invalidation: strings.TrimSpace(doc.Get("invalidation").String()),
		RiskReward:   doc.Get("risk_reward").Float(),
		Rationale:    strings.TrimSpace(doc.Get("rationale").String()),
	}
	if p.Label == "" {
		return ScenarioProposal{}, errors.New("情景提案 label 为空")
	}
	if p.RiskReward < 0 {
		p.RiskReward = 0
	}
	for _, r := range doc.Get("cited_rules").Array() {
		if text := strings.TrimSpace(r.String()); text != "" {
			p.CitedRules = append(p.CitedRules, text)
		}
	}
	return p, nil
}

// ParseEvaluation 解析规则评估输出。五个打分字段必须在场，
// 止损距离可选，非正值按缺失处理。子项越界由 NewScore 截断。
func ParseEvaluation(raw string) (Evaluation, error) {
	blob, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return Evaluation{}, errors.New("评估输出中未找到 JSON")
	}
	if !gjson.Valid(blob) {
		return Evaluation{}, errors.New("评估 JSON 非法")
	}
	doc := gjson.Parse(blob)
	for _, field := range []string{"rule_valid", "invalidation_clarity", "risk_reward_quality", "structural_simplicity", "resolution_speed"} {
		if !doc.Get(field).Exists() {
			return Evaluation{}, fmt.Errorf("评估结果缺少字段 %s", field)
		}
	}
	ev := Evaluation{
		RuleValid:            doc.Get("rule_valid").Bool(),
		InvalidationClarity:  int(doc.Get("invalidation_clarity").Int()),
		RiskRewardQuality:    int(doc.Get("risk_reward_quality").Int()),
		StructuralSimplicity: int(doc.Get("structural_simplicity").Int()),
		ResolutionSpeed:      int(doc.Get("resolution_speed").Int()),
	}
	if stop := numberField(doc, "stop_distance_pct", "stop_distance"); stop != nil && *stop > 0 {
		ev.StopDistancePct = stop
	}
	return ev, nil
}

func numberField(doc gjson.Result, keys ...string) *float64 {
	for _, key := range keys {
		v := doc.Get(key)
		if !v.Exists() {
			continue
		}
		switch v.Type {
		case gjson.Number:
			f := v.Float()
			return &f
		case gjson.String:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}
