package rubric

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRubric = `rubric:
  instruction: "只输出 JSON，不要附加解释。"
  axes:
    invalidation_clarity:
      title: "失效位清晰度"
      guidance: "失效价位是否唯一且可执行"
      order: 1
    risk_reward_quality:
      title: "盈亏比质量"
      order: 2
    structural_simplicity:
      title: "结构简洁度"
      order: 3
    resolution_speed:
      title: "验证速度"
      order: 4
  output_schema:
    type: object
    required: [rule_valid, invalidation_clarity]
    properties:
      rule_valid:
        type: boolean
      invalidation_clarity:
        type: number
        minimum: 0
        maximum: 2
`

func writeRubricFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rubric.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistryLoadsAxesInOrder(t *testing.T) {
	r, err := NewRegistry(writeRubricFile(t, sampleRubric))
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.EqualValues(t, 1, snap.Version)
	require.Len(t, snap.Axes, 4)
	assert.Equal(t, "invalidation_clarity", snap.Axes[0].ID)
	assert.Equal(t, "resolution_speed", snap.Axes[3].ID)

	section := snap.PromptSection()
	assert.Contains(t, section, "失效位清晰度")
	assert.Contains(t, section, "`risk_reward_quality`")
	assert.Contains(t, section, "只输出 JSON")
}

func TestNewRegistryRejectsMissingRequiredAxis(t *testing.T) {
	partial := `rubric:
  axes:
    invalidation_clarity:
      title: "失效位清晰度"
`
	_, err := NewRegistry(writeRubricFile(t, partial))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk_reward_quality")
}

func TestValidateOutputAgainstSchema(t *testing.T) {
	r, err := NewRegistry(writeRubricFile(t, sampleRubric))
	require.NoError(t, err)
	snap := r.Snapshot()

	t.Run("valid payload passes", func(t *testing.T) {
		assert.NoError(t, snap.ValidateOutput(`{"rule_valid":true,"invalidation_clarity":2}`))
	})
	t.Run("string numbers are coerced", func(t *testing.T) {
		assert.NoError(t, snap.ValidateOutput(`{"rule_valid":true,"invalidation_clarity":"1"}`))
	})
	t.Run("out of range score fails", func(t *testing.T) {
		assert.Error(t, snap.ValidateOutput(`{"rule_valid":true,"invalidation_clarity":5}`))
	})
	t.Run("missing required field fails", func(t *testing.T) {
		assert.Error(t, snap.ValidateOutput(`{"invalidation_clarity":1}`))
	})
}

func TestValidateOutputWithoutSchemaPasses(t *testing.T) {
	noSchema := `rubric:
  axes:
    invalidation_clarity: {order: 1}
    risk_reward_quality: {order: 2}
    structural_simplicity: {order: 3}
    resolution_speed: {order: 4}
`
	r, err := NewRegistry(writeRubricFile(t, noSchema))
	require.NoError(t, err)
	assert.NoError(t, r.Snapshot().ValidateOutput(`anything`))
}
