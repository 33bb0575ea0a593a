// internal/validator/validator.go
package validator

import (
	"reflect"
	"regexp"
	"time"

	"moneyflow/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var Validate *validator.Validate

var nonBlank = regexp.MustCompile(`\S`)

func init() {
	Validate = validator.New()

	// Тег цикла: "2024-12"
	_ = Validate.RegisterValidation("yearmonth", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := time.Parse("2006-01", s)
		return err == nil
	})

	// Строка не пустая и не только пробелы
	_ = Validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return nonBlank.MatchString(fl.Field().String())
	})

	_ = Validate.RegisterValidation("cashbackmode", func(fl validator.FieldLevel) bool {
		switch domain.CashbackMode(fl.Field().String()) {
		case domain.CashbackNone, domain.CashbackRealFixed, domain.CashbackRealPercent,
			domain.CashbackNoneBack, domain.CashbackVoluntary:
			return true
		}
		return false
	})

	_ = Validate.RegisterValidation("txntype", func(fl validator.FieldLevel) bool {
		switch domain.TransactionType(fl.Field().String()) {
		case domain.TypeExpense, domain.TypeIncome, domain.TypeDebt, domain.TypeRepayment, domain.TypeTransfer:
			return true
		}
		return false
	})

	// decimal.Decimal валидируем как число: работают gt=0, gte=0 и т.д.
	Validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		if d, ok := v.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
}
