package issue

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/aits/core"
)

var (
	categoryTag  = "category"
	categoryText = "invalid category"
)

// RegisterValidators registers the issue validators and their translations.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(categoryTag, categoryValidation)
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)
}

func categoryValidation(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, c := range AllCategories {
		if c == val {
			return true
		}
	}
	return false
}
