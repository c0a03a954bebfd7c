package handler

import (
	"net/http"
	"strings"

	"github.com/zeromicro/go-zero/rest/httpx"

	"mtfchart/internal/svc"
	"mtfchart/internal/types"
)

// FocusSymbolHandler switches the instrument. Per-frame fetch failures are
// reported on the frames, not as a request error.
func FocusSymbolHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SymbolRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if strings.TrimSpace(req.Symbol) == "" {
			writeError(r.Context(), w, errEmptySymbol)
			return
		}
		if err := svcCtx.Engine.FocusSymbol(r.Context(), req.Symbol); err != nil && !isFrameError(err) {
			writeError(r.Context(), w, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, framesResponse(svcCtx.Engine))
	}
}

func RefreshHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.RefreshRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := svcCtx.Engine.Refresh(r.Context(), req.Force); err != nil && !isFrameError(err) {
			writeError(r.Context(), w, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, framesResponse(svcCtx.Engine))
	}
}

func OverlayHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.OverlayRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if err := svcCtx.Engine.SetOverlayVisible(req.Group, req.Visible); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, svcCtx.Engine.Visibility())
	}
}
