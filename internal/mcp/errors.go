package mcp

import (
	stderrors "errors"
	"fmt"

	"github.com/complyra/retrieval/internal/errors"
)

// JSON-RPC 2.0 error codes, plus server-defined codes in the reserved
// range.
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeWorkspaceNotReady = -32001
	CodeRetrievalDegraded = -32002
)

// Error is a JSON-RPC error with a code.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds a -32602 error.
func NewInvalidParamsError(message string) *Error {
	return &Error{Code: CodeInvalidParams, Message: message}
}

// MapError converts pipeline errors to JSON-RPC errors. Validation
// failures map to invalid params; everything else is internal.
func MapError(err error) *Error {
	var re *errors.RetrievalError
	if stderrors.As(err, &re) {
		switch re.Category {
		case errors.CategoryValidation:
			return &Error{Code: CodeInvalidParams, Message: re.Message}
		case errors.CategoryStorage:
			return &Error{Code: CodeWorkspaceNotReady, Message: re.Message}
		case errors.CategoryPipeline:
			return &Error{Code: CodeRetrievalDegraded, Message: re.Message}
		}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
