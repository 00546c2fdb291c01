package store

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Create/edit inputs are validated before any mutation touches the
// document; a validation failure is the only user-visible hard failure
// in the commit path.

var validate = validator.New(validator.WithRequiredStructEnabled())

// ClassroomInput carries the editable classroom fields.
type ClassroomInput struct {
	Name    string `validate:"required,max=120"`
	Subject string `validate:"max=120"`
	Teacher string `validate:"max=120"`
}

// StudentInput carries the editable student fields.
type StudentInput struct {
	Name        string `validate:"required,max=120"`
	Phone       string `validate:"max=40"`
	Email       string `validate:"omitempty,email"`
	ParentName  string `validate:"max=120"`
	ParentPhone string `validate:"max=40"`
	Note        string `validate:"max=2000"`
}

// LessonInput carries the editable lesson fields. Date uses the calendar
// form YYYY-MM-DD.
type LessonInput struct {
	Topic string `validate:"required,max=200"`
	Date  string `validate:"omitempty,datetime=2006-01-02"`
	Mode  string `validate:"omitempty,oneof=standard ielts"`
}

// ColumnInput carries the editable column fields. LessonID is only
// meaningful for IELTS columns.
type ColumnInput struct {
	Name     string `validate:"required,max=80"`
	IELTS    bool
	LessonID int `validate:"min=0"`
}

// checkInput validates an input struct and wraps the first failure into a
// field-level error message.
func checkInput(in any) error {
	if err := validate.Struct(in); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			fe := errs[0]
			return fmt.Errorf("invalid %s: failed %q check", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}
