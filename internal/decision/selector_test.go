package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func score(tag Tag, valid bool, total int, stop *float64) ScenarioScore {
	return ScenarioScore{Tag: tag, RuleValid: valid, Total: total, StopDistancePct: stop}
}

func stopPct(v float64) *float64 { return &v }

func TestSelectOrderedRules(t *testing.T) {
	cases := []struct {
		name string
		a    ScenarioScore
		b    ScenarioScore
		want Tag
	}{
		{
			name: "both invalid falls back to A",
			a:    score(TagA, false, 0, nil),
			b:    score(TagB, false, 0, nil),
			want: TagA,
		},
		{
			name: "only B valid picks B",
			a:    score(TagA, false, 0, stopPct(0.5)),
			b:    score(TagB, true, 3, stopPct(4.0)),
			want: TagB,
		},
		{
			name: "only A valid picks A",
			a:    score(TagA, true, 2, nil),
			b:    score(TagB, false, 0, stopPct(0.1)),
			want: TagA,
		},
		{
			name: "score gap of two picks higher",
			a:    score(TagA, true, 4, stopPct(5.0)),
			b:    score(TagB, true, 6, stopPct(9.0)),
			want: TagB,
		},
		{
			name: "score gap of one compares stop distance",
			a:    score(TagA, true, 6, stopPct(1.2)),
			b:    score(TagB, true, 7, stopPct(3.4)),
			want: TagA,
		},
		{
			name: "missing stop distance counts as worst",
			a:    score(TagA, true, 6, nil),
			b:    score(TagB, true, 6, stopPct(8.0)),
			want: TagB,
		},
		{
			name: "both missing stop falls back to higher total",
			a:    score(TagA, true, 5, nil),
			b:    score(TagB, true, 6, nil),
			want: TagB,
		},
		{
			name: "full tie keeps A",
			a:    score(TagA, true, 6, stopPct(2.0)),
			b:    score(TagB, true, 6, stopPct(2.0)),
			want: TagA,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Select(tc.a, tc.b))
		})
	}
}

func TestSelectIsSymmetricOnScoreGap(t *testing.T) {
	hi := score(TagA, true, 8, stopPct(3.0))
	lo := score(TagB, true, 5, stopPct(1.0))
	assert.Equal(t, TagA, Select(hi, lo))

	hi.Tag, lo.Tag = TagB, TagA
	assert.Equal(t, TagB, Select(lo, hi))
}

func TestRiskPercentSteps(t *testing.T) {
	assert.InDelta(t, 2.0, RiskPercent(3.5), 1e-9)
	assert.InDelta(t, 2.0, RiskPercent(3.0), 1e-9)
	assert.InDelta(t, 1.5, RiskPercent(2.9), 1e-9)
	assert.InDelta(t, 1.5, RiskPercent(2.0), 1e-9)
	assert.InDelta(t, 1.0, RiskPercent(1.9), 1e-9)
	assert.InDelta(t, 1.0, RiskPercent(0), 1e-9)
}

func TestPickRandomIsSeedReproducible(t *testing.T) {
	first := NewSelector(42)
	second := NewSelector(42)
	for i := 0; i < 32; i++ {
		assert.Equal(t, first.PickRandom(), second.PickRandom())
	}
}

func TestPickRandomCoversBothTags(t *testing.T) {
	s := NewSelector(7)
	seen := map[Tag]bool{}
	for i := 0; i < 64; i++ {
		seen[s.PickRandom()] = true
	}
	assert.True(t, seen[TagA])
	assert.True(t, seen[TagB])
}
