// Package validation validates request structs with go-playground/validator
// tags and converts failures into AppErrors.
//
//	type Form struct {
//	    Language string `form:"language" validate:"omitempty,language"`
//	}
//	err := validation.Validate(form)
//
// Field names in messages come from the form tag, then the json tag, then
// the snake_cased Go name.
package validation
