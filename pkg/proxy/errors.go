package proxy

import (
	"context"
	"errors"
	"net/http"

	"mercator-hq/compilegate/pkg/clsi"
	"mercator-hq/compilegate/pkg/compile"
	"mercator-hq/compilegate/pkg/project"
	"mercator-hq/compilegate/pkg/proxy/types"
)

// Outcome classifies how a proxied request failed.
type Outcome int

const (
	// OutcomeError is any failure not covered below.
	OutcomeError Outcome = iota

	// OutcomeTransportAbort means the client went away. It is not a server
	// error and is logged at debug only.
	OutcomeTransportAbort

	// OutcomeUpstreamFailed means the backend answered with a non-2xx status.
	OutcomeUpstreamFailed

	// OutcomeTimeout means the proxy deadline fired.
	OutcomeTimeout
)

// String returns the outcome's log name.
func (o Outcome) String() string {
	switch o {
	case OutcomeTransportAbort:
		return "transport_abort"
	case OutcomeUpstreamFailed:
		return "upstream_failed"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// Classify decides the outcome of a failed proxy call. reqAborted reports
// whether the inbound request was cancelled; streamingStarted whether the
// upstream status was already written to the client.
func Classify(err error, reqAborted, streamingStarted bool) Outcome {
	var rf *clsi.RequestFailedError
	switch {
	case errors.As(err, &rf):
		return OutcomeUpstreamFailed
	case reqAborted && (streamingStarted || errors.Is(err, context.Canceled)):
		return OutcomeTransportAbort
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	}
	var te *clsi.TimeoutError
	if errors.As(err, &te) {
		return OutcomeTimeout
	}
	return OutcomeError
}

// HandleError converts an error into the status and JSON body a handler
// answers with.
//
// Example usage:
//
//	if err != nil {
//	    status, errResp := HandleError(err)
//	    WriteErrorResponse(w, status, errResp)
//	    return
//	}
func HandleError(err error) (int, *types.ErrorResponse) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest, reqErr.ToErrorResponse()
	}

	var valErr *compile.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest, types.NewInvalidRequestError(valErr.Error(), valErr.Field, types.CodeInvalidValue)
	}

	if errors.Is(err, clsi.ErrNotFound) || errors.Is(err, project.ErrNotFound) {
		return http.StatusNotFound, types.NewNotFoundError("not found")
	}

	var timeoutErr *clsi.TimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, types.NewGatewayTimeoutError("compile backend timed out")
	}

	if status, ok := clsi.StatusCode(err); ok {
		return status, types.NewStatusError(status, http.StatusText(status))
	}

	return http.StatusInternalServerError, types.NewServerError("An internal error occurred. Please try again later.")
}
