package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/proc"
	"github.com/zeromicro/go-zero/rest"

	"mtfchart/internal/cli"
	"mtfchart/internal/config"
	"mtfchart/internal/handler"
	"mtfchart/internal/svc"
)

var configFile = flag.String("f", "etc/chartd.yaml", "the config file")

func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)
	logx.MustSetup(cfg.Log)
	cli.LogConfigSummary(cfg)

	server := rest.MustNewServer(cfg.RestConf)
	defer server.Stop()

	svcCtx := svc.MustNewServiceContext(*cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svcCtx.Start(ctx); err != nil {
		logx.Must(err)
	}
	proc.AddShutdownListener(func() {
		cancel()
		svcCtx.Stop()
	})
	defer svcCtx.Stop()

	handler.RegisterHandlers(server, svcCtx)

	fmt.Printf("Starting server at %s:%d...\n", cfg.Host, cfg.Port)
	server.Start()
}
