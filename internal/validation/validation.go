// Package validation checks operation inputs before any request is made.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dokzlo13/bookd/internal/model"
)

// DateLayout is the wire format of booking dates.
const DateLayout = "2006-01-02"

const (
	MsgFillAllFields   = "Please fill in all fields."
	MsgCheckInPast     = "Check-in date cannot be in the past."
	MsgCheckOutOrder   = "Check-out date must be after check-in date."
	MsgSessionRequired = "Please log in to continue."
)

// ErrSessionRequired is returned when an operation needs an authenticated
// session and none is present.
var ErrSessionRequired = &ValidationError{Field: "session", Message: MsgSessionRequired}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// UserMessage returns the text shown to the user.
func (v ValidationError) UserMessage() string {
	return v.Message
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// UserMessage returns the message of the first failure.
func (v ValidationErrors) UserMessage() string {
	if len(v) == 0 {
		return ""
	}
	return v[0].Message
}

// Validator validates operation inputs.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
	loc      *time.Location
}

// New creates a validator. "Today" is evaluated in loc; nil means UTC.
func New(loc *time.Location) *Validator {
	if loc == nil {
		loc = time.UTC
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	return &Validator{validate: v, now: time.Now, loc: loc}
}

// Today returns the current date in the validator's location.
func (v *Validator) Today() string {
	return v.now().In(v.loc).Format(DateLayout)
}

// Register validates and normalizes a register request.
func (v *Validator) Register(req model.RegisterRequest) (model.RegisterRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	return req, v.check(req)
}

// Login validates and normalizes a login request.
func (v *Validator) Login(req model.LoginRequest) (model.LoginRequest, error) {
	req.Email = strings.TrimSpace(req.Email)
	return req, v.check(req)
}

// Room validates and normalizes room input.
func (v *Validator) Room(in model.RoomInput) (model.RoomInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	return in, v.check(in)
}

// Booking validates a booking draft: every field present, a well-formed
// email, check-in not before today and check-out strictly after check-in.
func (v *Validator) Booking(d model.BookingDraft) (model.BookingDraft, error) {
	d.RoomID = strings.TrimSpace(d.RoomID)
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.TrimSpace(d.Email)
	d.CheckInDate = strings.TrimSpace(d.CheckInDate)
	d.CheckOutDate = strings.TrimSpace(d.CheckOutDate)

	if err := v.check(d); err != nil {
		return d, err
	}

	// Both dates passed the datetime tag, so lexical order is date order.
	if d.CheckInDate < v.Today() {
		return d, ValidationErrors{{Field: "checkInDate", Message: MsgCheckInPast}}
	}
	if d.CheckInDate >= d.CheckOutDate {
		return d, ValidationErrors{{Field: "checkOutDate", Message: MsgCheckOutOrder}}
	}
	return d, nil
}

// RequireSession returns ErrSessionRequired unless sess identifies a user.
func RequireSession(sess *model.Session) error {
	if !sess.Valid() {
		return ErrSessionRequired
	}
	return nil
}

func (v *Validator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translate(validationErrs)
		}
		return err
	}
	return nil
}

func translate(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, 0, len(errs))
	// Missing fields are reported first with the form-level message.
	for _, err := range errs {
		if err.Tag() == "required" {
			out = append(out, ValidationError{Field: err.Field(), Message: MsgFillAllFields})
		}
	}

	for _, err := range errs {
		var message string
		switch err.Tag() {
		case "required":
			continue
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "datetime":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		case "gte":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "url":
			message = fmt.Sprintf("%s must be a valid URL", err.Field())
		default:
			message = err.Error()
		}
		out = append(out, ValidationError{Field: err.Field(), Message: message})
	}
	return out
}
