package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
)

// ErrRequestCancelled marks a request abandoned by its caller.
var ErrRequestCancelled = errors.New("request cancelled")

// ResponseError is a non-2xx answer from the master.
type ResponseError struct {
	Method     string
	Path       string
	StatusCode int
	// Code is the gRPC status code reported by the gateway, codes.Unknown when absent.
	Code    codes.Code
	Message string
}

func (e *ResponseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Unauthenticated reports whether the master rejected the credentials.
func (e *ResponseError) Unauthenticated() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Code == codes.Unauthenticated
}

// DecodeError is a 2xx answer whose body does not match the expected shape.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response of %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// gatewayError is the body grpc-gateway writes for failed calls.
type gatewayError struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// parseResponseError builds a ResponseError from a failed response body.
func parseResponseError(method, path string, status int, body []byte) *ResponseError {
	rerr := &ResponseError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Code:       codes.Unknown,
	}

	var gw gatewayError
	if err := json.Unmarshal(body, &gw); err == nil {
		if gw.Code != nil {
			rerr.Code = codes.Code(*gw.Code)
		}
		rerr.Message = gw.Message
		if rerr.Message == "" {
			rerr.Message = gw.Error
		}
		return rerr
	}

	rerr.Message = strings.TrimSpace(string(body))
	return rerr
}
