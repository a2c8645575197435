package core

import (
	"github.com/go-playground/validator/v10"

	"lotwatch/internal/types"
)

// Validator wraps go-playground/validator for request DTO validation.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with struct-tag validation enabled.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidateStruct validates dst against its validate tags, translating
// failures into a field-keyed validation AppError.
func (v *Validator) ValidateStruct(dst interface{}) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	details := map[string]any{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
	}
	return &types.AppError{
		Code:    types.ErrCodeValidationMissingField,
		Message: "request validation failed",
		Err:     err,
		Details: details,
	}
}
