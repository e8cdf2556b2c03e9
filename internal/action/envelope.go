// Package action runs mutations through one authorized envelope: validate,
// authorize, run, and normalize every outcome into a Result.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/auth"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

type Authorizer interface {
	Resolve(ctx context.Context, token string) (auth.Principal, error)
	RequireRole(ctx context.Context, token string, allowed ...models.Role) (auth.Principal, error)
}

// Handler does the work once input is valid and the caller is authorized.
type Handler[In, Out any] func(ctx context.Context, in In, p auth.Principal) (Out, error)

type Failure struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
}

type Result[T any] struct {
	Success bool     `json:"success"`
	Data    T        `json:"data,omitempty"`
	Error   *Failure `json:"error,omitempty"`
}

type Envelope struct {
	authz    Authorizer
	validate *validator.Validate
	logger   *slog.Logger
}

func NewEnvelope(authz Authorizer, logger *slog.Logger) *Envelope {
	if logger == nil {
		logger = slog.Default()
	}
	return &Envelope{authz: authz, validate: newValidator(), logger: logger}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Execute validates input, authorizes the session token (against allowed
// roles when any are given) and runs h. It never panics and never returns an
// error: every failure is folded into the Result.
//
// Auditing stays with the handler; not every action touches an auditable
// resource.
func Execute[In, Out any](ctx context.Context, e *Envelope, token string, in In, h Handler[In, Out], allowed ...models.Role) (res Result[Out]) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in action: %v", r)
			e.logger.Error("action panicked", "error", err, "stack", string(debug.Stack()))
			res = fail[Out](e, err)
		}
	}()

	if err := e.Validate(in); err != nil {
		return fail[Out](e, err)
	}

	var (
		p   auth.Principal
		err error
	)
	if len(allowed) > 0 {
		p, err = e.authz.RequireRole(ctx, token, allowed...)
	} else {
		p, err = e.authz.Resolve(ctx, token)
	}
	if err != nil {
		return fail[Out](e, err)
	}
	if p.Suspended {
		return fail[Out](e, apperr.New(apperr.KindForbidden, "organisation suspended"))
	}

	out, err := h(ctx, in, p)
	if err != nil {
		return fail[Out](e, err)
	}
	return Result[Out]{Success: true, Data: out}
}

// Validate checks in against its validate tags and reports the first
// violation.
func (e *Envelope) Validate(in any) error {
	err := e.validate.Struct(in)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// Not a struct: nothing to check.
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		fe := fields[0]
		return apperr.Validation(fe.Field(), message(fe))
	}
	return apperr.Wrap(apperr.KindValidation, "invalid input", err)
}

func message(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required", "required_without", "required_with":
		return f + " is required"
	case "email":
		return f + " must be a valid email address"
	case "url", "http_url":
		return f + " must be a valid URL"
	case "uuid", "uuid4":
		return f + " must be a valid id"
	case "e164":
		return f + " must be a phone number in international format"
	case "min":
		return fmt.Sprintf("%s must be at least %s", f, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", f, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", f, fe.Param())
	default:
		return f + " is invalid"
	}
}

// fail logs the cause for operators and keeps only the display-safe message.
func fail[Out any](e *Envelope, err error) Result[Out] {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindInternal, apperr.KindInvalidState:
		e.logger.Error("action failed", "kind", kind, "error", err)
	case apperr.KindUnavailable:
		e.logger.Warn("action unavailable", "error", err)
	}
	return Result[Out]{
		Error: &Failure{
			Kind:    kind,
			Message: apperr.SafeMessage(err),
			Field:   apperr.FieldOf(err),
		},
	}
}

// Failed wraps err in a failed Result without running an action.
func Failed[Out any](e *Envelope, err error) Result[Out] {
	return fail[Out](e, err)
}
