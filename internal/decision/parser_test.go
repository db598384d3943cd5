package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProposalFromFencedOutput(t *testing.T) {
	raw := "模型分析如下：\n```json\n{\n  \"direction\": \"long\",\n  \"label\": \"impulse wave 3\",\n  \"trigger\": \"突破 52000 且 4H 收盘站稳\",\n  \"invalidation\": \"跌破 49800\",\n  \"risk_reward\": 3.2,\n  \"cited_rules\": [\"3.1\", \" 4.2 \", \"\"],\n  \"rationale\": \"结构完整\"\n}\n```\n以上。"

	p, err := ParseProposal(raw)
	require.NoError(t, err)
	assert.Equal(t, DirectionLong, p.Direction)
	assert.Equal(t, "impulse wave 3", p.Label)
	assert.Equal(t, "突破 52000 且 4H 收盘站稳", p.Trigger)
	assert.Equal(t, "跌破 49800", p.Invalidation)
	assert.InDelta(t, 3.2, p.RiskReward, 1e-9)
	assert.Equal(t, []string{"3.1", "4.2"}, p.CitedRules)
	assert.Equal(t, "结构完整", p.Rationale)
}

func TestParseProposalDirectionSynonyms(t *testing.T) {
	cases := map[string]Direction{
		"SELL":    DirectionShort,
		"buy":     DirectionLong,
		"wait":    DirectionHold,
		"Neutral": DirectionHold,
	}
	for word, want := range cases {
		p, err := ParseProposal(`{"direction":"` + word + `","label":"x","trigger":"t","invalidation":"i","risk_reward":1}`)
		require.NoError(t, err, word)
		assert.Equal(t, want, p.Direction, word)
	}
}

func TestParseProposalRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"no json at all", "完全是自然语言"},
		{"missing invalidation", `{"direction":"LONG","label":"x","trigger":"t","risk_reward":2}`},
		{"unknown direction", `{"direction":"SIDEWAYS","label":"x","trigger":"t","invalidation":"i","risk_reward":2}`},
		{"blank label", `{"direction":"LONG","label":"  ","trigger":"t","invalidation":"i","risk_reward":2}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseProposal(tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestParseProposalClampsNegativeRiskReward(t *testing.T) {
	p, err := ParseProposal(`{"direction":"SHORT","label":"c 浪","trigger":"t","invalidation":"i","risk_reward":-1.5}`)
	require.NoError(t, err)
	assert.Zero(t, p.RiskReward)
}

func TestParseEvaluationFullObject(t *testing.T) {
	ev, err := ParseEvaluation(`{"rule_valid":true,"invalidation_clarity":2,"risk_reward_quality":1,"structural_simplicity":2,"resolution_speed":1,"stop_distance_pct":1.6}`)
	require.NoError(t, err)
	assert.True(t, ev.RuleValid)
	assert.Equal(t, 2, ev.InvalidationClarity)
	assert.Equal(t, 1, ev.RiskRewardQuality)
	require.NotNil(t, ev.StopDistancePct)
	assert.InDelta(t, 1.6, *ev.StopDistancePct, 1e-9)
}

func TestParseEvaluationStopDistanceVariants(t *testing.T) {
	t.Run("string form is accepted", func(t *testing.T) {
		ev, err := ParseEvaluation(`{"rule_valid":true,"invalidation_clarity":1,"risk_reward_quality":1,"structural_simplicity":1,"resolution_speed":1,"stop_distance":"2.4"}`)
		require.NoError(t, err)
		require.NotNil(t, ev.StopDistancePct)
		assert.InDelta(t, 2.4, *ev.StopDistancePct, 1e-9)
	})
	t.Run("absent stays nil", func(t *testing.T) {
		ev, err := ParseEvaluation(`{"rule_valid":true,"invalidation_clarity":1,"risk_reward_quality":1,"structural_simplicity":1,"resolution_speed":1}`)
		require.NoError(t, err)
		assert.Nil(t, ev.StopDistancePct)
	})
	t.Run("non positive treated as missing", func(t *testing.T) {
		ev, err := ParseEvaluation(`{"rule_valid":true,"invalidation_clarity":1,"risk_reward_quality":1,"structural_simplicity":1,"resolution_speed":1,"stop_distance_pct":0}`)
		require.NoError(t, err)
		assert.Nil(t, ev.StopDistancePct)
	})
}

func TestParseEvaluationRequiresAllScoreFields(t *testing.T) {
	_, err := ParseEvaluation(`{"rule_valid":true,"invalidation_clarity":1,"risk_reward_quality":1,"structural_simplicity":1}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolution_speed")
}
