package middleware

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/booking-engine/internal/model"
)

var registerOnce sync.Once

// RegisterValidators installs the booking tags on gin's binding validator
// and reports fields by their json name. Safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		err = registerOn(v)
	})
	return err
}

func registerOn(v *validator.Validate) error {
	if err := v.RegisterValidation("calendar_date", validateCalendarDate); err != nil {
		return err
	}
	if err := v.RegisterValidation("hhmm", validateTimeOfDay); err != nil {
		return err
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return nil
}

func validateCalendarDate(fl validator.FieldLevel) bool {
	_, err := model.ParseDate(fl.Field().String())
	return err == nil
}

func validateTimeOfDay(fl validator.FieldLevel) bool {
	_, err := model.ParseTimeOfDay(fl.Field().String())
	return err == nil
}
