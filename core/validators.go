package core

import (
	"database/sql/driver"
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/volatiletech/null/v8"
)

var (
	// custom validation tags & texts
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderText  = "only alphanumeric characters, dashes and underscores are allowed"
	alphaNumUnderRegex = regexp.MustCompile(`^[\w-]+$`)

	curpTag   = "curp"
	curpText  = "must be a valid CURP (18 characters)"
	curpRegex = regexp.MustCompile(`^[A-Z]{4}\d{6}[HMX][A-Z]{5}[A-Z\d]\d$`)

	postCodeTag   = "postcode"
	postCodeText  = "must be 5 digits"
	postCodeRegex = regexp.MustCompile(`^\d{5}$`)

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// validate what nullable types hold instead of the wrapper struct
	validate.RegisterCustomTypeFunc(valuerTypeFunc, null.String{}, null.Int64{}, null.Int{}, null.Float64{}, Date{})

	// register custom validators
	_ = validate.RegisterValidation(alphaNumUnderTag, regexValidation(alphaNumUnderRegex))
	RegisterCustomTranslation(validate, translator, alphaNumUnderTag, alphaNumUnderText)

	_ = validate.RegisterValidation(curpTag, regexValidation(curpRegex))
	RegisterCustomTranslation(validate, translator, curpTag, curpText)

	_ = validate.RegisterValidation(postCodeTag, regexValidation(postCodeRegex))
	RegisterCustomTranslation(validate, translator, postCodeTag, postCodeText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func valuerTypeFunc(field reflect.Value) interface{} {
	if valuer, ok := field.Interface().(driver.Valuer); ok {
		if val, err := valuer.Value(); err == nil {
			return val
		}
	}
	return nil
}

// Custom Global Validators

func regexValidation(rgx *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return rgx.MatchString(fl.Field().String())
	}
}
