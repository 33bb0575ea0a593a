package cashback

import (
	"github.com/shopspring/decimal"
)

type Source string

const (
	SourceProgramDefault Source = "program_default"
	SourceLevelDefault   Source = "level_default"
	SourceCategoryRule   Source = "category_rule"
	SourceLegacy         Source = "legacy"
)

// Resolution is the rate that applies to one transaction.
// A nil MaxReward means the reward is uncapped.
type Resolution struct {
	Rate      decimal.Decimal  `json:"rate"`
	MaxReward *decimal.Decimal `json:"max_reward"`
	Source    Source           `json:"source"`
	LevelID   string           `json:"level_id,omitempty"`
	RuleID    string           `json:"rule_id,omitempty"`
	// Gated is set when a flat config's minSpend was not reached.
	Gated bool `json:"gated,omitempty"`
}

// Reward applies the rate to the absolute amount and caps the result.
func (r Resolution) Reward(amount decimal.Decimal) decimal.Decimal {
	if r.Gated {
		return decimal.Zero
	}
	reward := amount.Abs().Mul(r.Rate)
	if r.MaxReward != nil && reward.GreaterThan(*r.MaxReward) {
		return *r.MaxReward
	}
	return reward
}

// ResolveRate picks the rate for a category given the spend accumulated in the cycle.
func ResolveRate(cfg Config, categoryID string, cycleSpend decimal.Decimal) (Resolution, error) {
	switch c := cfg.(type) {
	case FlatConfig:
		res := Resolution{Rate: c.Rate, MaxReward: c.MaxAmount.Limit, Source: SourceLegacy}
		if c.MinSpend != nil && cycleSpend.LessThan(*c.MinSpend) {
			res.Gated = true
		}
		return res, nil
	case ProgramConfig:
		return resolveProgram(c, categoryID, cycleSpend), nil
	case nil:
		return Resolution{}, &ConfigError{Reason: "not configured"}
	default:
		return Resolution{}, &ConfigError{Reason: "unsupported config shape"}
	}
}

func resolveProgram(p ProgramConfig, categoryID string, cycleSpend decimal.Decimal) Resolution {
	level := selectLevel(p.Levels, cycleSpend)
	if level == nil {
		return Resolution{
			Rate:      p.DefaultRate,
			MaxReward: p.MaxReward.Limit,
			Source:    SourceProgramDefault,
		}
	}

	// первое совпавшее правило выигрывает, порядок массива не меняем
	for _, rule := range level.Rules {
		if rule.matches(categoryID) {
			return Resolution{
				Rate:      rule.Rate,
				MaxReward: rule.MaxReward.or(level.MaxReward).or(p.MaxReward).Limit,
				Source:    SourceCategoryRule,
				LevelID:   level.ID,
				RuleID:    rule.ID,
			}
		}
	}

	if level.DefaultRate != nil {
		return Resolution{
			Rate:      *level.DefaultRate,
			MaxReward: level.MaxReward.or(p.MaxReward).Limit,
			Source:    SourceLevelDefault,
			LevelID:   level.ID,
		}
	}
	return Resolution{
		Rate:      p.DefaultRate,
		MaxReward: level.MaxReward.or(p.MaxReward).Limit,
		Source:    SourceProgramDefault,
		LevelID:   level.ID,
	}
}

// selectLevel returns the level with the greatest threshold not above spend.
// On equal thresholds the level declared first wins.
func selectLevel(levels []Level, spend decimal.Decimal) *Level {
	var best *Level
	for i := range levels {
		lvl := &levels[i]
		if lvl.MinTotalSpend == nil || lvl.MinTotalSpend.GreaterThan(spend) {
			continue
		}
		if best == nil || lvl.MinTotalSpend.GreaterThan(*best.MinTotalSpend) {
			best = lvl
		}
	}
	return best
}
