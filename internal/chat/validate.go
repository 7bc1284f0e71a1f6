package chat

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

// ValidUsername reports whether s, after trimming surrounding spaces, is
// 3 to 20 characters of lowercase letters, digits or underscore.
func ValidUsername(s string) bool {
	return usernamePattern.MatchString(strings.TrimSpace(s))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return ValidUsername(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidationError is a form that failed local checks. It never reaches the
// hosted service.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

// Validate checks form against its struct tags and returns the first
// failure as a *ValidationError.
func Validate(form interface{}) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return errors.Wrap(err, "validate")
	}
	f := fields[0]
	return &ValidationError{Field: f.Field(), Message: describe(f)}
}

func describe(f validator.FieldError) string {
	switch f.Tag() {
	case "username":
		return ErrInvalidUsername.Error()
	case "required":
		return f.Field() + " is required"
	case "email":
		return "invalid email address"
	case "url":
		return f.Field() + " must be a URL"
	case "min":
		return f.Field() + " must be at least " + f.Param() + " characters"
	case "max":
		return f.Field() + " must be at most " + f.Param() + " characters"
	case "uuid":
		return f.Field() + " must be a valid id"
	}
	return f.Field() + " is invalid"
}

// SignUpForm is the registration screen.
type SignUpForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Username string `json:"username" validate:"username"`
}

// SignInForm is the login screen.
type SignInForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileForm is the profile editor. Empty optional fields are stored as
// null.
type ProfileForm struct {
	Username  string `json:"username" validate:"username"`
	FullName  string `json:"full_name" validate:"max=80"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

func (f *ProfileForm) normalize() {
	f.Username = strings.TrimSpace(f.Username)
	f.FullName = strings.TrimSpace(f.FullName)
	f.AvatarURL = strings.TrimSpace(f.AvatarURL)
}

func (f *SignUpForm) normalize() {
	f.Email = strings.TrimSpace(f.Email)
	f.Username = strings.TrimSpace(f.Username)
}
