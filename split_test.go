package prepfan

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func seq(n int) []int {
	rows := make([]int, n)
	for ind := range rows {
		rows[ind] = ind
	}

	return rows
}

func TestKFoldSplit(t *testing.T) {
	rows := seq(100)

	plan, e := KFoldSplit(rows, nil, 3, rand.New(rand.NewSource(11)))
	assert.Nil(t, e)
	assert.Equal(t, 3, len(plan))

	// coverage and disjointness
	assert.Nil(t, ValidateSplit(plan, rows))

	seen := 0
	for _, fold := range plan {
		seen += len(fold.App)
		assert.Equal(t, 100, len(fold.App)+len(fold.Train))
	}
	assert.Equal(t, 100, seen)

	// deterministic given a seed
	plan2, e := KFoldSplit(rows, nil, 3, rand.New(rand.NewSource(11)))
	assert.Nil(t, e)
	for f := range plan {
		assert.Equal(t, plan[f].App, plan2[f].App)
	}

	plan3, e := KFoldSplit(rows, nil, 3, rand.New(rand.NewSource(12)))
	assert.Nil(t, e)

	same := true
	for f := range plan {
		if len(plan[f].App) != len(plan3[f].App) {
			same = false

			continue
		}
		for ind := range plan[f].App {
			if plan[f].App[ind] != plan3[f].App[ind] {
				same = false
			}
		}
	}
	assert.False(t, same)
}

func TestKFoldSplit_Stratified(t *testing.T) {
	// 80 of stratum 0, 20 of stratum 1
	rows := seq(100)
	strata := make([]int, 100)
	for ind := 80; ind < 100; ind++ {
		strata[ind] = 1
	}

	plan, e := KFoldSplit(rows, strata, 4, rand.New(rand.NewSource(3)))
	assert.Nil(t, e)
	assert.Nil(t, ValidateSplit(plan, rows))

	for _, fold := range plan {
		n1 := 0
		for _, r := range fold.App {
			if r >= 80 {
				n1++
			}
		}

		// each fold keeps the 1-in-5 stratum proportion
		assert.Equal(t, 5, n1)
		assert.Equal(t, 25, len(fold.App))
	}
}

func TestPrecomputedSplit(t *testing.T) {
	rows := seq(6)

	good := SplitPlan{
		{App: []int{0, 1, 2}, Train: []int{3, 4, 5}},
		{App: []int{3, 4, 5}, Train: []int{0, 1, 2}},
	}
	_, e := PrecomputedSplit(good)(rows, nil, 2, nil)
	assert.Nil(t, e)

	// overlapping application sets
	bad := SplitPlan{
		{App: []int{0, 1, 2}, Train: []int{3, 4, 5}},
		{App: []int{2, 3, 4, 5}, Train: []int{0, 1}},
	}
	_, e = PrecomputedSplit(bad)(rows, nil, 2, nil)
	assert.NotNil(t, e)
	assert.True(t, errors.Is(e, ErrSplit))

	// incomplete coverage
	short := SplitPlan{
		{App: []int{0, 1}, Train: []int{2, 3, 4, 5}},
		{App: []int{2, 3}, Train: []int{0, 1, 4, 5}},
	}
	_, e = PrecomputedSplit(short)(rows, nil, 2, nil)
	assert.NotNil(t, e)
	assert.True(t, errors.Is(e, ErrSplit))
}

func TestNumericStrata(t *testing.T) {
	y := make([]float64, 100)
	for ind := range y {
		y[ind] = float64(ind)
	}

	strata := numericStrata(y, seq(100), 10)
	assert.Equal(t, 100, len(strata))
	assert.Equal(t, 0, strata[0])
	assert.Equal(t, 9, strata[99])
	assert.True(t, strata[50] >= 4 && strata[50] <= 5)
}
