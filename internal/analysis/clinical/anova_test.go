package clinical

import (
	"testing"

	"medstat/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestANOVA_TwoGroupsMatchesPooledT(t *testing.T) {
	anova, err := ANOVA(ANOVAInput{Groups: [][]float64{lowDose, highDose}})
	require.NoError(t, err)
	tt, err := TTest(TTestInput{Group1: lowDose, Group2: highDose, EqualVar: true})
	require.NoError(t, err)

	tStat := tt.MeanDiff.Statistic
	assert.InDelta(t, tStat*tStat, anova.Table.F, 1e-9)
	assert.InDelta(t, tt.MeanDiff.PValue, anova.Table.PValue, 1e-9)
	assert.InDelta(t, 22.5, anova.Table.SSBetween, 1e-9)
	assert.InDelta(t, 50.0, anova.Table.SSWithin, 1e-9)
	assert.InDelta(t, 22.5/72.5, anova.EtaSquared, 1e-12)
	assert.Empty(t, anova.PostHoc, "no post-hoc for two groups")
	assert.Equal(t, []string{"Group 1", "Group 2"}, []string{anova.GroupStats[0].Name, anova.GroupStats[1].Name})
}

func TestANOVA_TukeyHSD(t *testing.T) {
	in := ANOVAInput{
		Groups:     [][]float64{{1, 2, 3}, {4, 5, 6}, {10, 11, 12}},
		GroupNames: []string{"placebo", "low", "high"},
	}
	result, err := ANOVA(in)
	require.NoError(t, err)

	require.True(t, result.Significant)
	assert.Equal(t, 6, result.Table.DFWithin)
	assert.InDelta(t, 1.0, result.Table.MSWithin, 1e-12)
	assert.Equal(t, PostHocTukey, result.PostHocMethod)
	require.Len(t, result.PostHoc, 3)

	first := result.PostHoc[0]
	assert.Equal(t, "placebo", first.Group1)
	assert.Equal(t, "low", first.Group2)
	assert.InDelta(t, -3.0, first.MeanDiff, 1e-12)
	q, ok := first.Q.Get()
	require.True(t, ok)
	assert.InDelta(t, 3/0.5773502691896258, q, 1e-9)

	for _, cmp := range result.PostHoc {
		assert.Equal(t, PostHocTukey, cmp.Method)
		assert.True(t, cmp.Significant, "%s vs %s", cmp.Group1, cmp.Group2)
		ci, ok := cmp.CI.Get()
		require.True(t, ok)
		assert.True(t, ci.Contains(cmp.MeanDiff))
		assert.False(t, ci.Contains(0))
	}

	// q crit(0.95, 3, 6) ≈ 4.339
	ci, _ := first.CI.Get()
	assert.InDelta(t, 2*4.339*0.5773502691896258, ci.Width(), 0.01)
}

func TestANOVA_BonferroniFallback(t *testing.T) {
	unavailable := func(float64, int, float64) (float64, bool) { return 0, false }
	in := ANOVAInput{Groups: [][]float64{{1, 2, 3}, {4, 5, 6}, {10, 11, 12}}}

	result, err := anovaWith(in, unavailable)
	require.NoError(t, err)

	assert.Equal(t, PostHocBonferroni, result.PostHocMethod)
	require.Len(t, result.PostHoc, 3)
	for _, cmp := range result.PostHoc {
		assert.Equal(t, PostHocBonferroni, cmp.Method)
		assert.False(t, cmp.CI.Valid())
		assert.LessOrEqual(t, cmp.PAdjusted, 1.0)
	}

	tt, err := TTest(TTestInput{Group1: in.Groups[0], Group2: in.Groups[1], EqualVar: true})
	require.NoError(t, err)
	assert.InDelta(t, tt.MeanDiff.PValue*3, result.PostHoc[0].PAdjusted, 1e-12)
}

func TestANOVA_NotSignificantSkipsPostHoc(t *testing.T) {
	result, err := ANOVA(ANOVAInput{Groups: [][]float64{{1, 2, 3}, {1.5, 2, 2.5}, {1, 3, 2}}})
	require.NoError(t, err)
	assert.False(t, result.Significant)
	assert.Empty(t, result.PostHoc)
	assert.Empty(t, result.PostHocMethod)
}

func TestANOVA_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   ANOVAInput
	}{
		{"one group", ANOVAInput{Groups: [][]float64{{1, 2}}}},
		{"small group", ANOVAInput{Groups: [][]float64{{1, 2}, {3}}}},
		{"zero within variance", ANOVAInput{Groups: [][]float64{{1, 1}, {2, 2}}}},
		{"name mismatch", ANOVAInput{Groups: [][]float64{{1, 2}, {3, 4}}, GroupNames: []string{"a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ANOVA(tt.in)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestANOVA_ZeroVarianceNamesTheGroups(t *testing.T) {
	_, err := ANOVA(ANOVAInput{
		Groups:     [][]float64{{1, 1}, {2, 2, 2}},
		GroupNames: []string{"placebo", "active"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), `"placebo", "active"`)
}
