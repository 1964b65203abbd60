package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/vinayprograms/taskapi/errors"
	"github.com/vinayprograms/taskapi/logging"
	"github.com/vinayprograms/taskapi/task"
)

// envelope is the body of every API response.
type envelope struct {
	Data  interface{} `json:"data"`
	Meta  *pageMeta   `json:"meta,omitempty"`
	Error *errorBody  `json:"error,omitempty"`
}

type pageMeta struct {
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

type errorBody struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details string           `json:"details,omitempty"`
}

func metaOf[T any](p task.Page[T]) *pageMeta {
	return &pageMeta{
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
		First:         p.First,
		Last:          p.Last,
	}
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Data: data})
}

func writePage[T any](w http.ResponseWriter, p task.Page[T]) {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, envelope{Data: items, Meta: metaOf(p)})
}

// statusFor maps an error code to its HTTP status.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeVersionConflict:
		return http.StatusConflict
	case errors.ErrCodeValidation:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Codes without a dedicated status are reported as
// INTERNAL_ERROR with a generic message and logged in full.
func writeError(w http.ResponseWriter, log *logging.Logger, err error) {
	code := errors.Code(err)
	status := statusFor(code)

	body := &errorBody{Code: code}
	if status == http.StatusInternalServerError {
		log.Error("request_failed", map[string]interface{}{"code": code, "error": err})
		body.Code = errors.ErrCodeInternal
		body.Message = "internal error"
	} else {
		e := errors.As(err)
		body.Message = e.Message()
		if code == errors.ErrCodeValidation {
			body.Details = e.Fields()
		}
	}
	writeJSON(w, status, envelope{Error: body})
}
