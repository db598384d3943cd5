package provider

import (
	"context"
	"fmt"

	"github.com/m3n89t-max/-chatbot/internal/decision"
	"github.com/m3n89t-max/-chatbot/internal/logger"
	"github.com/m3n89t-max/-chatbot/internal/prompt"
)

// 中文说明：
// ScenarioClient：把一个模型提供方接成情景提案方。提示词拼装、
// LLM 往返留痕和输出解析都在这里，解析失败原样上抛由编排器终止本轮。

type ScenarioClient struct {
	Provider  ModelProvider
	Persona   string
	MaxTokens int
}

func NewScenarioClient(p ModelProvider, persona string, maxTokens int) *ScenarioClient {
	return &ScenarioClient{Provider: p, Persona: persona, MaxTokens: maxTokens}
}

func (c *ScenarioClient) ID() string { return c.Provider.ID() }

func (c *ScenarioClient) Propose(ctx context.Context, req decision.ProposalRequest) (decision.ScenarioProposal, error) {
	payload := ChatPayload{
		System:    prompt.ScenarioSystem(c.Persona),
		User:      prompt.ScenarioUser(req),
		MaxTokens: c.MaxTokens,
	}
	imageDescs := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		payload.Images = append(payload.Images, ImagePayload{DataURI: img.DataURI, Description: img.Description})
		imageDescs = append(imageDescs, img.Description)
	}

	logger.LogLLMRequest("scenario", c.Provider.ID(), purposeOf(req), payload.System, payload.User, imageDescs, "")
	raw, err := c.Provider.Call(ctx, payload)
	if err != nil {
		return decision.ScenarioProposal{}, fmt.Errorf("模型调用失败: %w", err)
	}
	logger.LogLLMResponse("scenario", c.Provider.ID(), purposeOf(req), raw)

	proposal, err := decision.ParseProposal(raw)
	if err != nil {
		return decision.ScenarioProposal{}, fmt.Errorf("提案解析失败: %w", err)
	}
	return proposal, nil
}

func purposeOf(req decision.ProposalRequest) string {
	if req.Other != nil {
		return "counter-proposal"
	}
	return "proposal"
}
