package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"mtfchart/internal/svc"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/frames",
				Handler: GetFramesHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/frames",
				Handler: SetFramesHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/symbol",
				Handler: FocusSymbolHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/refresh",
				Handler: RefreshHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/overlays",
				Handler: OverlayHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/snapshot",
				Handler: SnapshotHandler(serverCtx),
			},
		},
		rest.WithPrefix("/api"),
	)
}
