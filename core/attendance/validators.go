package attendance

import (
	"reflect"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/linguadesk/staffdesk/core"
)

var (
	clockTag  = "clock"
	clockText = "this field must be a time in the HH:MM format"

	statusTag  = "attstatus"
	statusText = "this field must be one of present, late, absent, sick, paternity, pto or bereavement"

	dayTag  = "day"
	dayText = "this field must be a date in the YYYY-MM-DD format"

	periodTag  = "period"
	periodText = "this field must be a day (YYYY-MM-DD) or a month (YYYY-MM)"
)

// InitValidators registers the attendance validation tags and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(clockTag, clockValidation)
	core.RegisterCustomTranslation(validate, translator, clockTag, clockText)

	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	_ = validate.RegisterValidation(dayTag, dayValidation)
	core.RegisterCustomTranslation(validate, translator, dayTag, dayText)

	_ = validate.RegisterValidation(periodTag, periodValidation)
	core.RegisterCustomTranslation(validate, translator, periodTag, periodText)
}

func fieldString(fl validator.FieldLevel) (string, bool) {
	fld := fl.Field()
	if fld.Kind() != reflect.String {
		return "", false
	}
	return fld.String(), true
}

func clockValidation(fl validator.FieldLevel) bool {
	s, ok := fieldString(fl)
	if !ok {
		return false
	}
	_, err := ParseClock(s)
	return err == nil
}

func statusValidation(fl validator.FieldLevel) bool {
	s, ok := fieldString(fl)
	return ok && Status(strings.ToLower(s)).Valid()
}

func dayValidation(fl validator.FieldLevel) bool {
	s, ok := fieldString(fl)
	if !ok {
		return false
	}
	_, err := NormalizeDate(s)
	return err == nil
}

func periodValidation(fl validator.FieldLevel) bool {
	s, ok := fieldString(fl)
	if !ok {
		return false
	}
	_, _, err := ParsePeriod(s)
	return err == nil
}
