package services

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"

	"feedesk/internal/core"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// fieldErrors maps struct fields to the sentinel reported when they fail.
var fieldErrors = map[string]error{
	"StudentID": core.ErrMissingStudent,
	"Amount":    core.ErrMissingAmount,
	"Term":      core.ErrMissingTerm,
	"DueDate":   core.ErrMissingDueDate,
	"Method":    core.ErrInvalidMethod,
	"Reason":    core.ErrEmptyReason,
}

// validateStruct runs the struct tags of v and returns the sentinel of the
// first failing field in declaration order.
func validateStruct(v any) error {
	err := formValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, fe := range verrs {
		if sentinel, ok := fieldErrors[fe.StructField()]; ok {
			return sentinel
		}
	}
	return core.ErrInvalid
}
