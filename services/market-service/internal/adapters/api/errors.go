package api

import (
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/floroz/bazaar/services/market-service/internal/domain/domainerr"
)

var errInternal = errors.New(domainerr.KindUnknown.Message())

// CodeOf maps a domain error kind to its connect code
func CodeOf(kind domainerr.Kind) connect.Code {
	switch kind {
	case domainerr.KindNotFound:
		return connect.CodeNotFound
	case domainerr.KindForbidden:
		return connect.CodePermissionDenied
	case domainerr.KindInvalidState:
		return connect.CodeFailedPrecondition
	case domainerr.KindInvalidArgument:
		return connect.CodeInvalidArgument
	case domainerr.KindConflict:
		return connect.CodeAlreadyExists
	case domainerr.KindBusy:
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}

// toConnectError converts a service error for the wire. Unclassified errors
// are logged and replaced by a generic message.
func toConnectError(logger *slog.Logger, procedure string, err error) error {
	var de *domainerr.Error
	if !errors.As(err, &de) {
		logger.Error("Unhandled error", "procedure", procedure, "error", err)
		return connect.NewError(connect.CodeInternal, errInternal)
	}

	code := CodeOf(de.Kind)
	if code == connect.CodeInternal {
		logger.Error("Unclassified domain error", "procedure", procedure, "error", err)
		return connect.NewError(code, errInternal)
	}
	return connect.NewError(code, errors.New(de.Error()))
}
