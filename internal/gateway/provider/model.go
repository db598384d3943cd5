package provider

import "context"

// 中文说明：模型提供方抽象。上层只面向 ChatPayload 说话，
// 视觉能力与 JSON 模式由提供方自报，调用方按能力降级。

type ImagePayload struct {
	DataURI     string
	Description string
}

type ChatPayload struct {
	System      string
	User        string
	Images      []ImagePayload
	ExpectJSON  bool
	MaxTokens   int
	Temperature float64
}

type ModelProvider interface {
	ID() string
	Enabled() bool
	SupportsVision() bool
	ExpectsJSON() bool

	Call(ctx context.Context, payload ChatPayload) (string, error)
}
