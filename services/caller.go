package services

import (
	"strings"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Caller is the authenticated user on whose behalf an operation runs.
type Caller struct {
	UserID uuid.UUID
	Role   string
}

func (c Caller) IsAdmin() bool      { return c.Role == models.RoleAdmin }
func (c Caller) IsInstructor() bool { return c.Role == models.RoleInstructor }

var validate = validator.New()

// validateInput turns validator failures into a single validation error.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Validation("%v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" "+fe.Tag())
	}
	return apperrors.Validation("invalid input: %s", strings.Join(fields, ", "))
}

func runInBackground(f func()) { go f() }

func orderLockKey(id uuid.UUID) string      { return "order:" + id.String() }
func withdrawalLockKey(id uuid.UUID) string { return "withdrawal:" + id.String() }
