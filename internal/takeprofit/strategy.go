package takeprofit

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ratioTolerance = 1e-6

	defaultMinTrailingDistance = 0.5
	defaultMaxTrailingDistance = 5.0
)

// LevelSpec describes one exit level of a strategy template.
// TargetPct 0 means "use the default ladder": level i (0-indexed) is
// placed at entry*(1 ± (3+2i)/100).
type LevelSpec struct {
	Percentage       float64 `yaml:"percentage" json:"percentage"` // share of remaining size to close, 0-100
	TargetPct        float64 `yaml:"target_pct" json:"target_pct"` // percent beyond entry, 0 = ladder
	TrailingDistance float64 `yaml:"trailing_distance" json:"trailing_distance"`
}

// Strategy is a reusable exit template applied to a position at
// registration time.
type Strategy struct {
	Name                string      `yaml:"name" json:"name"`
	Levels              []LevelSpec `yaml:"levels" json:"levels"`
	DynamicAdjustment   bool        `yaml:"dynamic_adjustment" json:"dynamic_adjustment"`
	MinTrailingDistance float64     `yaml:"min_trailing_distance" json:"min_trailing_distance"`
	MaxTrailingDistance float64     `yaml:"max_trailing_distance" json:"max_trailing_distance"`
}

// Validate checks that level percentages sum to 100 and every field is
// in range.
func (s Strategy) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("strategy name is required")
	}
	if len(s.Levels) == 0 {
		return fmt.Errorf("strategy %s: at least one level is required", s.Name)
	}
	sum := 0.0
	for i, lvl := range s.Levels {
		if lvl.Percentage <= 0 || lvl.Percentage > 100 {
			return fmt.Errorf("strategy %s: level %d percentage must be in (0,100]", s.Name, i+1)
		}
		if lvl.TargetPct < 0 {
			return fmt.Errorf("strategy %s: level %d target_pct must be >= 0", s.Name, i+1)
		}
		if lvl.TrailingDistance < 0 {
			return fmt.Errorf("strategy %s: level %d trailing_distance must be >= 0", s.Name, i+1)
		}
		sum += lvl.Percentage
	}
	if math.Abs(sum-100) > ratioTolerance {
		return fmt.Errorf("strategy %s: level percentages must sum to 100, got %.4f", s.Name, sum)
	}
	return nil
}

// ladderTargetPct is the default target ladder: (3+2i)% for level i.
func ladderTargetPct(i int) float64 {
	return float64(3+2*i) / 100
}

// Conservative scales out 30/40/30 across fixed ladder targets.
func Conservative() Strategy {
	return Strategy{
		Name: "conservative",
		Levels: []LevelSpec{
			{Percentage: 30},
			{Percentage: 40},
			{Percentage: 30},
		},
		MinTrailingDistance: defaultMinTrailingDistance,
		MaxTrailingDistance: defaultMaxTrailingDistance,
	}
}

// Aggressive rides the whole position on a single trailing level.
func Aggressive() Strategy {
	return Strategy{
		Name: "aggressive",
		Levels: []LevelSpec{
			{Percentage: 100, TrailingDistance: 2.0},
		},
		DynamicAdjustment:   true,
		MinTrailingDistance: defaultMinTrailingDistance,
		MaxTrailingDistance: defaultMaxTrailingDistance,
	}
}

// Balanced scales out 25/35/40 with trailing on the last two levels.
func Balanced() Strategy {
	return Strategy{
		Name: "balanced",
		Levels: []LevelSpec{
			{Percentage: 25},
			{Percentage: 35, TrailingDistance: 1.5},
			{Percentage: 40, TrailingDistance: 2.5},
		},
		MinTrailingDistance: defaultMinTrailingDistance,
		MaxTrailingDistance: defaultMaxTrailingDistance,
	}
}

// BuiltinStrategies returns the template set keyed by name.
func BuiltinStrategies() map[string]Strategy {
	out := map[string]Strategy{}
	for _, s := range []Strategy{Conservative(), Aggressive(), Balanced()} {
		out[s.Name] = s
	}
	return out
}

type strategyFile struct {
	Strategies []Strategy `yaml:"strategies"`
}

// LoadStrategies reads additional templates from a YAML file and merges
// them over the builtins (same name wins). Every loaded template is
// validated; one bad entry fails the whole load.
func LoadStrategies(path string) (map[string]Strategy, error) {
	out := BuiltinStrategies()
	if strings.TrimSpace(path) == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading strategy file failed: %w", err)
	}
	var file strategyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing strategy file failed: %w", err)
	}
	for _, s := range file.Strategies {
		if s.MinTrailingDistance <= 0 {
			s.MinTrailingDistance = defaultMinTrailingDistance
		}
		if s.MaxTrailingDistance <= 0 {
			s.MaxTrailingDistance = defaultMaxTrailingDistance
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		out[s.Name] = s
	}
	return out, nil
}
