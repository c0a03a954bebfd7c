package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"mtfchart/internal/types"
	"mtfchart/pkg/bars"
	"mtfchart/pkg/frames"
	"mtfchart/pkg/interaction"
	"mtfchart/pkg/overlay"
)

var (
	errEmptyFramesRequest = errors.New("handler: one of active, toggle or ensure is required")
	errNoSnapshot         = errors.New("handler: no frame has data to capture")
	errEmptySymbol        = errors.New("handler: symbol is required")
)

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteJsonCtx(ctx, w, statusOf(err), types.ErrorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errNoSnapshot):
		return http.StatusNotFound
	case errors.Is(err, frames.ErrNoSymbol):
		return http.StatusConflict
	case errors.Is(err, errEmptyFramesRequest),
		errors.Is(err, errEmptySymbol),
		errors.Is(err, frames.ErrUnknownFrame),
		errors.Is(err, bars.ErrUnknownResolution),
		errors.Is(err, overlay.ErrUnknownGroup),
		errors.Is(err, interaction.ErrUnknownMode):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// isFrameError reports whether err only carries per-frame fetch failures,
// which stay on the frames and do not fail the request.
func isFrameError(err error) bool {
	return !errors.Is(err, frames.ErrNoSymbol) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
