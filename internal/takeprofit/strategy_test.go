package takeprofit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStrategiesEmptyPathReturnsBuiltins(t *testing.T) {
	got, err := LoadStrategies("")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Contains(t, got, "conservative")
	assert.Contains(t, got, "aggressive")
	assert.Contains(t, got, "balanced")
}

func TestLoadStrategiesShippedFile(t *testing.T) {
	got, err := LoadStrategies(filepath.Join("..", "..", "configs", "exit_strategies.yaml"))
	require.NoError(t, err)

	scalper, ok := got["scalper"]
	require.True(t, ok)
	require.Len(t, scalper.Levels, 2)
	// target_pct is whole percent, so a 45000 entry targets 45450/45900.
	assert.Equal(t, 1.0, scalper.Levels[0].TargetPct)
	assert.Equal(t, 2.0, scalper.Levels[1].TargetPct)

	s := NewSystem(got)
	plan, err := s.Register("t1", "BTC-USD", "long", 45000, 1, "scalper")
	require.NoError(t, err)
	assert.InDelta(t, 45450, plan.Levels[0].PriceTarget, 1e-9)
	assert.InDelta(t, 45900, plan.Levels[1].PriceTarget, 1e-9)
}

func TestLoadStrategiesRejectsBadPercentages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	data := []byte("strategies:\n  - name: lopsided\n    levels:\n      - percentage: 30\n        target_pct: 1\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := LoadStrategies(path)
	assert.ErrorContains(t, err, "sum to 100")
}
