package validator

import (
	"testing"

	"github.com/shopspring/decimal"
)

type sample struct {
	Tag    string           `validate:"yearmonth"`
	Name   string           `validate:"notblank"`
	Mode   string           `validate:"cashbackmode"`
	Type   string           `validate:"txntype"`
	Amount decimal.Decimal  `validate:"gt=0"`
	Share  *decimal.Decimal `validate:"omitempty,gte=0"`
}

func valid() sample {
	return sample{Tag: "2024-03", Name: "x", Mode: "real_fixed", Type: "expense", Amount: decimal.NewFromInt(1)}
}

func TestValidate(t *testing.T) {
	negative := decimal.NewFromInt(-1)

	tests := []struct {
		name   string
		mutate func(*sample)
		ok     bool
	}{
		{"valid", func(*sample) {}, true},
		{"empty tag", func(s *sample) { s.Tag = "" }, true},
		{"empty mode", func(s *sample) { s.Mode = "" }, true},
		{"bad tag", func(s *sample) { s.Tag = "2024-13" }, false},
		{"blank name", func(s *sample) { s.Name = "   " }, false},
		{"unknown mode", func(s *sample) { s.Mode = "cashback_max" }, false},
		{"unknown type", func(s *sample) { s.Type = "loan" }, false},
		{"zero amount", func(s *sample) { s.Amount = decimal.Zero }, false},
		{"negative share", func(s *sample) { s.Share = &negative }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := Validate.Struct(s)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
