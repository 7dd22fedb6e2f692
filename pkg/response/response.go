// Package response writes the JSON envelope every API endpoint returns:
//
//	{"success": true, "status_code": 200, "message": "...", "timestamp": "...", "data": ...}
//	{"success": false, "status_code": 404, "message": "...", "timestamp": "...", "error": ..., "error_code": "NOT_FOUND"}
package response

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"appsync/pkg/apperr"
	"appsync/pkg/logger"
	"appsync/pkg/timex"
)

type SuccessEnvelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Data       any    `json:"data"`
}

type ErrorEnvelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Error      any    `json:"error"`
	ErrorCode  string `json:"error_code,omitempty"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

func NewPagination(page, perPage, total int) Pagination {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
		HasPrev:    page > 1,
	}
}

func Success(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, SuccessEnvelope{
		Success:    true,
		StatusCode: status,
		Message:    message,
		Timestamp:  timex.Format(timex.Now()),
		Data:       data,
	})
}

func OK(w http.ResponseWriter, message string, data any) {
	Success(w, http.StatusOK, message, data)
}

func Created(w http.ResponseWriter, message string, data any) {
	Success(w, http.StatusCreated, message, data)
}

func Error(w http.ResponseWriter, status int, message string, detail any, code string) {
	write(w, status, ErrorEnvelope{
		Success:    false,
		StatusCode: status,
		Message:    message,
		Timestamp:  timex.Format(timex.Now()),
		Error:      detail,
		ErrorCode:  code,
	})
}

// FromError writes an error envelope whose status and error_code follow err's
// category. Internal and storage failures hide the cause from the client.
func FromError(w http.ResponseWriter, message string, err error) {
	kind := apperr.KindOf(err)
	detail := any(apperr.Message(err))
	if kind == apperr.KindStorage || kind == apperr.KindInternal {
		logger.Sugar.Errorf("%s: %v", message, err)
		detail = nil
	}
	Error(w, kind.HTTPStatus(), message, detail, kind.Code())
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Sugar.Errorf("Failed to encode response: %v", err)
	}
}

// Bind decodes a JSON request body into v. An empty body leaves v untouched so
// required-field checks report what is missing.
func Bind(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid request body")
	}
	return nil
}
