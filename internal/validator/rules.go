package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// registerCustomRules регистрирует доменные правила валидации.
func registerCustomRules(v *validator.Validate) error {
	// paycode_key: ключ получателя мгновенного платежа — email-подобная
	// строка длиной до 77 символов. Полная проверка живет в internal/paycode,
	// правило повторяет только форму.
	return v.RegisterValidation("paycode_key", func(fl validator.FieldLevel) bool {
		key := fl.Field().String()
		return strings.Contains(key, "@") && len(key) > 0 && len(key) <= 77
	})
}
