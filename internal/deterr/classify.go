package deterr

import (
	"context"
	"errors"
	"net"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rshade/detconsole/internal/api"
)

// IsCancel reports whether err means the caller gave up on the work.
// Deadlines are not cancellations: a timed out request is a server problem.
func IsCancel(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, api.ErrRequestCancelled) || errors.Is(err, context.Canceled) {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.Canceled {
		return true
	}
	return false
}

// IsAuth reports whether err means the session is no longer valid.
func IsAuth(err error) bool {
	var de *DetError
	if errors.As(err, &de) {
		return de.Type == TypeAuth
	}
	t, _ := Classify(err)
	return t == TypeAuth
}

// Classify infers a type and level from err.
func Classify(err error) (Type, Level) {
	if err == nil {
		return TypeUnknown, LevelError
	}

	var de *DetError
	if errors.As(err, &de) {
		return de.Type, de.Level
	}

	var rerr *api.ResponseError
	if errors.As(err, &rerr) {
		return classifyResponse(rerr)
	}

	var derr *api.DecodeError
	if errors.As(err, &derr) {
		return TypeAPIBadResponse, LevelError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return TypeServer, LevelError
	}

	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return classifyCode(s.Code())
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return TypeServer, LevelError
	}

	return TypeUnknown, LevelError
}

func classifyResponse(rerr *api.ResponseError) (Type, Level) {
	if rerr.Code != codes.Unknown && rerr.Code != codes.OK {
		return classifyCode(rerr.Code)
	}

	switch {
	case rerr.StatusCode == http.StatusUnauthorized:
		return TypeAuth, LevelError
	case rerr.StatusCode == http.StatusNotFound:
		return TypeInput, LevelWarning
	case rerr.StatusCode == http.StatusBadRequest,
		rerr.StatusCode == http.StatusConflict,
		rerr.StatusCode == http.StatusUnprocessableEntity:
		return TypeInput, LevelError
	case rerr.StatusCode >= http.StatusInternalServerError:
		return TypeServer, LevelError
	default:
		return TypeAPI, LevelError
	}
}

func classifyCode(c codes.Code) (Type, Level) {
	switch c {
	case codes.Unauthenticated:
		return TypeAuth, LevelError
	case codes.NotFound:
		return TypeInput, LevelWarning
	case codes.InvalidArgument, codes.AlreadyExists, codes.FailedPrecondition, codes.OutOfRange:
		return TypeInput, LevelError
	case codes.Unavailable, codes.Internal, codes.DeadlineExceeded, codes.DataLoss, codes.ResourceExhausted:
		return TypeServer, LevelError
	case codes.PermissionDenied:
		return TypeAPI, LevelError
	default:
		return TypeUnknown, LevelError
	}
}
