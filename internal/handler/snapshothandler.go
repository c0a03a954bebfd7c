package handler

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"strconv"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpx"

	"mtfchart/internal/svc"
	"mtfchart/internal/types"
	"mtfchart/pkg/frames"
	"mtfchart/pkg/snapshot"
)

// SnapshotHandler serves the stacked snapshot PNG, or one frame's surface
// when ?frame= names an active frame.
func SnapshotHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SnapshotRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		var img image.Image
		if req.Frame != "" {
			id, err := svcCtx.Engine.Catalog().Resolve(req.Frame)
			if err != nil {
				writeError(r.Context(), w, err)
				return
			}
			captured, ok := svcCtx.Engine.CaptureAll()[id]
			if !ok {
				writeError(r.Context(), w, fmt.Errorf("%w: %s is not active", frames.ErrUnknownFrame, id))
				return
			}
			img = captured
		} else if snap := svcCtx.Engine.CaptureSnapshot(); snap != nil {
			img = snap
		}
		if img == nil {
			writeError(r.Context(), w, errNoSnapshot)
			return
		}

		var buf bytes.Buffer
		if err := snapshot.EncodePNG(&buf, img); err != nil {
			logx.WithContext(r.Context()).Errorf("handler: encode snapshot err=%v", err)
			writeError(r.Context(), w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}
