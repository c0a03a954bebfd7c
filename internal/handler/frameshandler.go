package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"mtfchart/internal/svc"
	"mtfchart/internal/types"
	"mtfchart/pkg/chart"
)

func GetFramesHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.OkJsonCtx(r.Context(), w, framesResponse(svcCtx.Engine))
	}
}

func SetFramesHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.FramesRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		var err error
		switch {
		case len(req.Active) > 0:
			_, err = svcCtx.Engine.SetActiveFrames(r.Context(), req.Active)
		case req.Toggle != "":
			_, err = svcCtx.Engine.ToggleFrame(r.Context(), req.Toggle)
		case req.Ensure != "":
			_, err = svcCtx.Engine.EnsureFrameActive(r.Context(), req.Ensure)
		default:
			writeError(r.Context(), w, errEmptyFramesRequest)
			return
		}
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, framesResponse(svcCtx.Engine))
	}
}

func framesResponse(e *chart.Engine) types.FramesResponse {
	fs := e.Frames()
	resp := types.FramesResponse{
		Symbol:     e.Symbol(),
		Active:     e.Active(),
		Fullscreen: e.Fullscreen(),
		Hint:       e.Hint(),
		Frames:     make([]types.FrameInfo, 0, len(fs)),
	}
	for _, f := range fs {
		info := types.FrameInfo{
			ID:          f.ID,
			Label:       f.Label,
			Resolution:  string(f.Resolution),
			Bars:        len(f.State.Bars),
			UpdatedAtMs: f.State.FreshAtMs(),
			Source:      f.State.Source,
			Error:       f.State.Error,
			Loading:     f.State.Loading,
			Coverage:    f.State.Coverage,
		}
		if n := len(f.State.Bars); n > 0 {
			info.LastClose = f.State.Bars[n-1].C
		}
		resp.Frames = append(resp.Frames, info)
	}
	return resp
}
