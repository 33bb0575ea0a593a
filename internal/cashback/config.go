// Package cashback resolves cashback cycles and rates for an account's
// program and turns a transaction into a cashback entry.
package cashback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type CycleType string

const (
	CalendarMonth  CycleType = "calendar_month"
	StatementCycle CycleType = "statement_cycle"
)

// ConfigError reports a cashback configuration that cannot be used to compute a reward.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "cashback config: " + e.Reason
	}
	return fmt.Sprintf("cashback config: %s: %s", e.Field, e.Reason)
}

// IsConfigError reports whether err carries a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Cap is a reward ceiling. An unset cap defers to the next level of the
// chain, a set cap with a nil Limit means uncapped.
type Cap struct {
	Set   bool
	Limit *decimal.Decimal
}

func Uncapped() Cap { return Cap{Set: true} }

func CapAt(limit decimal.Decimal) Cap { return Cap{Set: true, Limit: &limit} }

func (c *Cap) UnmarshalJSON(data []byte) error {
	c.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		c.Limit = nil
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	c.Limit = &d
	return nil
}

func (c Cap) MarshalJSON() ([]byte, error) {
	if !c.Set || c.Limit == nil {
		return []byte("null"), nil
	}
	return c.Limit.MarshalJSON()
}

func (c Cap) or(next Cap) Cap {
	if c.Set {
		return c
	}
	return next
}

// Config is either a FlatConfig or a ProgramConfig.
type Config interface {
	Cycle() (CycleType, int)
	isConfig()
}

// FlatConfig is the legacy single-rate shape.
type FlatConfig struct {
	Rate         decimal.Decimal  `json:"rate"`
	MaxAmount    Cap              `json:"maxAmount"`
	CycleType    CycleType        `json:"cycleType"`
	StatementDay int              `json:"statementDay,omitempty"`
	MinSpend     *decimal.Decimal `json:"minSpend,omitempty"`
}

func (c FlatConfig) Cycle() (CycleType, int) { return c.CycleType, c.StatementDay }
func (FlatConfig) isConfig()                 {}

type Rule struct {
	ID          string          `json:"id"`
	CategoryIDs []string        `json:"categoryIds"`
	Rate        decimal.Decimal `json:"rate"`
	MaxReward   Cap             `json:"maxReward"`
}

func (r Rule) matches(categoryID string) bool {
	for _, id := range r.CategoryIDs {
		if id == categoryID {
			return true
		}
	}
	return false
}

type Level struct {
	ID            string           `json:"id"`
	Name          string           `json:"name,omitempty"`
	MinTotalSpend *decimal.Decimal `json:"minTotalSpend"`
	DefaultRate   *decimal.Decimal `json:"defaultRate,omitempty"`
	MaxReward     Cap              `json:"maxReward"`
	Rules         []Rule           `json:"rules"`
}

// ProgramConfig is a tiered program: levels gated by cycle spend.
type ProgramConfig struct {
	Levels       []Level         `json:"levels"`
	CycleType    CycleType       `json:"cycleType"`
	StatementDay int             `json:"statementDay,omitempty"`
	DueDate      int             `json:"dueDate,omitempty"`
	DefaultRate  decimal.Decimal `json:"defaultRate"`
	MaxReward    Cap             `json:"maxReward"`
}

func (c ProgramConfig) Cycle() (CycleType, int) { return c.CycleType, c.StatementDay }
func (ProgramConfig) isConfig()                 {}

// ParseConfig decodes and validates an account's cashback_config JSON.
func ParseConfig(raw []byte) (Config, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, &ConfigError{Reason: "not configured"}
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &ConfigError{Reason: "malformed json: " + err.Error()}
	}

	if program, ok := probe["program"]; ok {
		var pc ProgramConfig
		if err := json.Unmarshal(program, &pc); err != nil {
			return nil, &ConfigError{Field: "program", Reason: err.Error()}
		}
		if err := pc.validate(); err != nil {
			return nil, err
		}
		return pc, nil
	}

	var fc FlatConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	if err := fc.validate(); err != nil {
		return nil, err
	}
	return fc, nil
}

func validateCycle(ct CycleType, statementDay int) error {
	switch ct {
	case CalendarMonth:
		return nil
	case StatementCycle:
		if statementDay < 1 || statementDay > 31 {
			return &ConfigError{Field: "statementDay", Reason: "must be between 1 and 31"}
		}
		return nil
	case "":
		return &ConfigError{Field: "cycleType", Reason: "missing"}
	default:
		return &ConfigError{Field: "cycleType", Reason: fmt.Sprintf("unknown value %q", ct)}
	}
}

func validateCap(field string, c Cap) error {
	if c.Limit != nil && c.Limit.IsNegative() {
		return &ConfigError{Field: field, Reason: "must not be negative"}
	}
	return nil
}

func (c FlatConfig) validate() error {
	if err := validateCycle(c.CycleType, c.StatementDay); err != nil {
		return err
	}
	if c.Rate.IsNegative() {
		return &ConfigError{Field: "rate", Reason: "must not be negative"}
	}
	if c.MinSpend != nil && c.MinSpend.IsNegative() {
		return &ConfigError{Field: "minSpend", Reason: "must not be negative"}
	}
	return validateCap("maxAmount", c.MaxAmount)
}

func (c ProgramConfig) validate() error {
	if err := validateCycle(c.CycleType, c.StatementDay); err != nil {
		return err
	}
	if c.DefaultRate.IsNegative() {
		return &ConfigError{Field: "program.defaultRate", Reason: "must not be negative"}
	}
	if err := validateCap("program.maxReward", c.MaxReward); err != nil {
		return err
	}
	for i, lvl := range c.Levels {
		field := fmt.Sprintf("program.levels[%d]", i)
		if lvl.MinTotalSpend == nil {
			return &ConfigError{Field: field + ".minTotalSpend", Reason: "missing"}
		}
		if lvl.MinTotalSpend.IsNegative() {
			return &ConfigError{Field: field + ".minTotalSpend", Reason: "must not be negative"}
		}
		if lvl.DefaultRate != nil && lvl.DefaultRate.IsNegative() {
			return &ConfigError{Field: field + ".defaultRate", Reason: "must not be negative"}
		}
		if err := validateCap(field+".maxReward", lvl.MaxReward); err != nil {
			return err
		}
		for j, r := range lvl.Rules {
			rf := fmt.Sprintf("%s.rules[%d]", field, j)
			if len(r.CategoryIDs) == 0 {
				return &ConfigError{Field: rf + ".categoryIds", Reason: "must not be empty"}
			}
			if r.Rate.IsNegative() {
				return &ConfigError{Field: rf + ".rate", Reason: "must not be negative"}
			}
			if err := validateCap(rf+".maxReward", r.MaxReward); err != nil {
				return err
			}
		}
	}
	return nil
}
