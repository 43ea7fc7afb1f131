package rootserver

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTPError is an error with an HTTP status. Handlers may return or panic
// with one; the server renders it as a JSON body.
type HTTPError struct {
	Status  int
	Name    string
	Message string
}

func (e *HTTPError) Error() string { return e.Message }

// NotFound builds a 404 error.
func NotFound(msg string) *HTTPError {
	return &HTTPError{Status: http.StatusNotFound, Name: "NotFoundError", Message: msg}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error    ErrorInfo    `json:"error"`
	Request  RequestInfo  `json:"request"`
	Response ResponseInfo `json:"response"`
}

type ErrorInfo struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type RequestInfo struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	ID     string `json:"id,omitempty"`
}

type ResponseInfo struct {
	StatusCode int `json:"statusCode"`
}

// WriteError renders err as JSON. Errors that are not an *HTTPError become
// a 500 without leaking their message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var he *HTTPError
	if !errors.As(err, &he) {
		he = &HTTPError{Status: http.StatusInternalServerError, Name: "InternalServerError", Message: "internal server error"}
	}
	if he.Name == "" {
		he = &HTTPError{Status: he.Status, Name: http.StatusText(he.Status), Message: he.Message}
	}

	body := ErrorBody{
		Error:    ErrorInfo{Name: he.Name, Message: he.Message},
		Request:  RequestInfo{Method: r.Method, URL: r.URL.RequestURI(), ID: GetRequestID(r.Context())},
		Response: ResponseInfo{StatusCode: he.Status},
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(he.Status)
	_ = json.NewEncoder(w).Encode(body)
}
