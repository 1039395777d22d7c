package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/videotube/internal/common"
)

const maxJSONBody = 16 << 10

// Response is the envelope of every API reply, errors included.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, data any, message string) {
	if data == nil {
		data = struct{}{}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

// errorStatus maps a domain error to an HTTP status and a client-safe message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrTokenReuseDetected):
		return http.StatusUnauthorized, "refresh token is expired or used"
	case errors.Is(err, common.ErrorValidation):
		msg := strings.TrimPrefix(err.Error(), common.ErrorValidation.Error()+": ")
		if msg == err.Error() {
			msg = "invalid request"
		}
		return http.StatusBadRequest, msg
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "no account found"
	case errors.Is(err, common.ErrorBadCredential):
		return http.StatusUnauthorized, "invalid user credentials"
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "unauthorized request"
	case errors.Is(err, common.ErrorConflict):
		return http.StatusConflict, "user with email or username already exists"
	case errors.Is(err, common.ErrorTransient):
		return http.StatusServiceUnavailable, "service temporarily unavailable, retry later"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)
	writeJSON(w, status, nil, msg)
}

// decodeJSON reads a single JSON object of at most maxJSONBody bytes.
// An empty body leaves dst untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("extra data after JSON object")
	}
	return nil
}
