/*
Package errs provides the application error type and error code constants.

CustomError implements the standard error interface and carries a business
code plus a short user-facing message. Connection handlers translate
CustomError values into the wire ERROR envelope; nothing in the server
panics across a handler boundary.
*/
package errs

import (
	"fmt"
	"strings"

	"github.com/PedroMMarinho/FEUP-CPD/internal/pkg/logx"
)

// CustomError is the error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-facing error description sent after the ERROR
	// response token.
	Message string
}

// Error implements the standard error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("error code %d: %s", e.Code, e.Message)
}

// NewError constructs a *CustomError from a predefined error code. The
// optional details are printf-style arguments applied when the message
// template contains formatting placeholders. An unknown code falls back
// to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with a code missing from errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Message: unknownErr.Message,
		}
	}

	customErr := templateErr

	if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else if code == ErrUnknown {
			if originalErr, isErr := details[0].(error); isErr {
				logx.Error(originalErr, "Handling ErrUnknown with underlying error")
			}
		}
	}

	return &customErr
}
