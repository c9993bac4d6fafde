package handler

import (
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/qrdine/internal/domain/auth"
	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/payment"
	"github.com/xenking/qrdine/internal/domain/pricing"
	"github.com/xenking/qrdine/internal/domain/review"
	"github.com/xenking/qrdine/internal/wire"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// decode reads, decodes and validates a request body.
func decode(w http.ResponseWriter, r *http.Request, dst wire.Decoder) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return &wire.Error{Code: http.StatusBadRequest, Message: "read request body", Kind: wire.KindValidation}
	}
	if err := wire.Unmarshal(body, dst); err != nil {
		return &wire.Error{
			Code:    http.StatusBadRequest,
			Message: "invalid request body: " + err.Error(),
			Kind:    wire.KindValidation,
		}
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) *wire.Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &wire.Error{Code: http.StatusBadRequest, Message: err.Error(), Kind: wire.KindValidation}
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe)] = validationMessage(fe)
	}
	return &wire.Error{
		Code:    http.StatusBadRequest,
		Message: "validation failed",
		Kind:    wire.KindValidation,
		Details: details,
	}
}

// fieldPath drops the struct name from the namespace: "CreateOrder.items[0].quantity"
// becomes "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}

func writeJSON(w http.ResponseWriter, status int, v wire.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(wire.Marshal(v))
}

// writeError maps a domain error onto the error body and status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.Code >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		e.Message = http.StatusText(e.Code)
	}
	writeJSON(w, e.Code, e)
}

func classify(err error) *wire.Error {
	var (
		wireErr    *wire.Error
		illegal    *order.IllegalTransitionError
		mismatch   *order.TotalMismatchError
		quantity   *pricing.InvalidQuantityError
		unrecovery *payment.UnrecoverableError
	)

	switch {
	case errors.As(err, &wireErr):
		return wireErr
	case errors.As(err, &mismatch), errors.As(err, &quantity), errors.Is(err, pricing.ErrNegativeAmount):
		return newError(http.StatusUnprocessableEntity, wire.KindValidation, err)
	case errors.Is(err, review.ErrAlreadyReviewed):
		return &wire.Error{
			Code:    http.StatusBadRequest,
			Message: "order already has a review",
			Kind:    wire.KindAlreadyReviewed,
		}
	case order.IsValidation(err),
		errors.Is(err, payment.ErrTransactionIDRequired),
		errors.Is(err, payment.ErrOrderRefRequired),
		errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrOrderIDRequired),
		errors.Is(err, review.ErrInvalidRating),
		errors.Is(err, review.ErrOrderIDRequired):
		return newError(http.StatusBadRequest, wire.KindValidation, err)
	case errors.Is(err, order.ErrNotFound), errors.Is(err, payment.ErrTransactionNotFound):
		return newError(http.StatusNotFound, wire.KindNotFound, err)
	case errors.As(err, &illegal),
		errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, order.ErrDuplicateTransaction),
		errors.Is(err, payment.ErrAlreadyCompleted),
		errors.Is(err, payment.ErrAlreadyLinked):
		return newError(http.StatusConflict, wire.KindConflict, err)
	case errors.As(err, &unrecovery):
		return newError(http.StatusBadRequest, wire.KindUnrecoverable, err)
	case errors.Is(err, auth.ErrUnauthorized):
		return newError(http.StatusUnauthorized, wire.KindUnauthorized, err)
	default:
		return newError(http.StatusInternalServerError, wire.KindInternal, err)
	}
}

func newError(code int, kind string, err error) *wire.Error {
	return &wire.Error{Code: code, Message: err.Error(), Kind: kind}
}
