package reputation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinimumBondCurve(t *testing.T) {
	p := DefaultParams()

	// Anchors of the curve.
	require.Equal(t, p.BaseBond, p.MinimumBond(p.Max))
	require.Equal(t, 2*p.BaseBond, p.MinimumBond(p.Min))
	require.Equal(t, p.BaseBond+p.BaseBond/2, p.MinimumBond(Scale/2))
}

func TestMinimumBondMonotone(t *testing.T) {
	p := DefaultParams()

	prev := p.MinimumBond(0)
	for score := uint32(0); score <= Scale; score += 50_000 {
		bond := p.MinimumBond(score)
		require.LessOrEqual(t, bond, prev, "bond must not increase with score %d", score)
		require.GreaterOrEqual(t, bond, p.BondFloor)
		prev = bond
	}
}

func TestMinimumBondFloor(t *testing.T) {
	p := DefaultParams()
	p.BaseBond = 1 // curve values collapse below the floor

	require.Equal(t, p.BondFloor, p.MinimumBond(0))
	require.Equal(t, p.BondFloor, p.MinimumBond(p.Max))
}

func TestMinimumBondOverflow(t *testing.T) {
	p := DefaultParams()
	p.BaseBond = math.MaxUint64

	require.Equal(t, uint64(math.MaxUint64), p.MinimumBond(0))
}

func TestScoreAdjustments(t *testing.T) {
	p := DefaultParams()

	require.Equal(t, p.Initial+p.WinDelta, p.OnWin(p.Initial))
	require.Equal(t, p.Initial-p.LossDelta, p.OnLoss(p.Initial))

	// Clamped at the bounds.
	require.Equal(t, p.Max, p.OnWin(p.Max))
	require.Equal(t, p.Max, p.OnWin(p.Max-1))
	require.Equal(t, p.Min, p.OnLoss(p.Min))
	require.Equal(t, p.Min, p.OnLoss(p.LossDelta-1))

	// Out-of-range inputs are clamped before adjusting.
	require.Equal(t, p.Max, p.OnWin(Scale+500_000))
}

func TestClamp(t *testing.T) {
	p := Params{Min: 100, Max: 900}

	require.Equal(t, uint32(100), p.Clamp(50))
	require.Equal(t, uint32(500), p.Clamp(500))
	require.Equal(t, uint32(900), p.Clamp(2000))
}
