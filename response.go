package provisioning

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	messageUnexpected = "An unexpected error occurred, please try again later"
	messageIdentity   = "Unable to update account credentials"
	messageTransient  = "Service temporarily unavailable, please try again later"
)

// Response is the uniform envelope returned by every provisioning operation
type Response struct {
	IsSuccess      bool   `json:"isSuccess"`
	HTTPStatusCode int    `json:"httpStatusCode"`
	Message        string `json:"message,omitempty"`
	Result         any    `json:"result,omitempty"`
}

// NewSuccessResponse wraps a successful result
func NewSuccessResponse(result any) Response {
	return Response{
		IsSuccess:      true,
		HTTPStatusCode: http.StatusOK,
		Result:         result,
	}
}

// NewResponseFromError maps an error into the envelope. Only validation, auth and
// not found messages are exposed, everything else gets a generic message.
func NewResponseFromError(err error) Response {
	if err == nil {
		return NewSuccessResponse(nil)
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return Response{
			HTTPStatusCode: http.StatusInternalServerError,
			Message:        messageUnexpected,
		}
	}

	status := richErr.Code
	if status < 400 || status > 599 {
		status = statusForError(richErr)
	}

	resp := Response{HTTPStatusCode: status}

	switch {
	case richErr.Category == goerrors.CategoryValidation,
		richErr.Category == goerrors.CategoryNotFound,
		richErr.Category == goerrors.CategoryAuth:
		resp.Message = richErr.Message
	case richErr.TextCode == TextCodeTransient:
		resp.Message = messageTransient
	case richErr.TextCode == TextCodeIdentity:
		resp.Message = messageIdentity
	default:
		resp.Message = messageUnexpected
	}

	return resp
}

func statusForError(richErr *goerrors.Error) int {
	switch richErr.Category {
	case goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
