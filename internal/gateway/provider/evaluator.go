package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3n89t-max/-chatbot/internal/decision"
	"github.com/m3n89t-max/-chatbot/internal/logger"
	"github.com/m3n89t-max/-chatbot/internal/pkg/jsonutil"
	"github.com/m3n89t-max/-chatbot/internal/prompt"
	"github.com/m3n89t-max/-chatbot/internal/rubric"
)

// 中文说明：
// EvaluatorClient：把一个模型提供方接成规则评估器。量表快照按轮取用
// （热更新即时生效），输出先过量表 schema 再做结构化解析。任何失败
// 原样上抛，由评分器退回中性兜底。

type EvaluatorClient struct {
	Provider  ModelProvider
	Rubric    *rubric.Registry
	MaxTokens int
}

func NewEvaluatorClient(p ModelProvider, reg *rubric.Registry, maxTokens int) *EvaluatorClient {
	return &EvaluatorClient{Provider: p, Rubric: reg, MaxTokens: maxTokens}
}

func (c *EvaluatorClient) Evaluate(ctx context.Context, proposal decision.ScenarioProposal, contextText string) (decision.Evaluation, error) {
	var section string
	if c.Rubric != nil {
		section = c.Rubric.Snapshot().PromptSection()
	}
	payload := ChatPayload{
		System:    prompt.EvaluatorSystem(section),
		User:      prompt.EvaluatorUser(proposal, contextText),
		MaxTokens: c.MaxTokens,
		// 评审要可复现，温度压到最低
		Temperature: 0.01,
	}

	logger.LogLLMRequest("evaluate", c.Provider.ID(), "rubric-score", payload.System, payload.User, nil, "")
	raw, err := c.Provider.Call(ctx, payload)
	if err != nil {
		return decision.Evaluation{}, fmt.Errorf("评估调用失败: %w", err)
	}
	logger.LogLLMResponse("evaluate", c.Provider.ID(), "rubric-score", raw)

	blob, ok := jsonutil.ExtractJSON(raw)
	if !ok {
		return decision.Evaluation{}, errors.New("评估输出中未找到 JSON")
	}
	if c.Rubric != nil {
		if err := c.Rubric.Snapshot().ValidateOutput(blob); err != nil {
			return decision.Evaluation{}, fmt.Errorf("评估输出不符合量表 schema: %w", err)
		}
	}
	return decision.ParseEvaluation(blob)
}
