package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"mtfchart/internal/cli"
	"mtfchart/internal/config"
	"mtfchart/internal/svc"
	"mtfchart/pkg/snapshot"
)

const (
	focusTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// chartshot focuses each symbol in turn and writes its stacked snapshot PNG,
// once or on an interval.
func main() {
	var (
		configPath = flag.String("f", "etc/chartd.yaml", "the config file")
		symbolsRaw = flag.String("symbols", "", "comma-separated symbols; defaults to the config symbol")
		outDir     = flag.String("out", "snapshots", "directory receiving PNG files")
		interval   = flag.Duration("every", 0, "repeat interval; 0 captures once")
	)
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logx.MustSetup(cfg.Log)
	logx.DisableStat()
	cli.LogConfigSummary(cfg)

	symbols := parseSymbols(*symbolsRaw)
	if len(symbols) == 0 && cfg.Symbol != "" {
		symbols = []string{strings.ToUpper(cfg.Symbol)}
	}
	if len(symbols) == 0 {
		fatalf("no symbols provided; use --symbols or set Symbol in %s", *configPath)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fatalf("create output dir %s: %v", *outDir, err)
	}

	// The daemon's startup symbol is driven from here instead.
	cfg.Symbol = ""
	cfg.Feed.Stream = false
	svcCtx, err := svc.NewServiceContext(*cfg)
	if err != nil {
		fatalf("build service context: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := svcCtx.Start(ctx); err != nil {
		fatalf("start service: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, svcCtx, symbols, *outDir, *interval)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logx.Info("shutdown signal received, stopping capture")
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			logx.Error("shutdown timeout exceeded, forcing exit")
		}
	}
	svcCtx.Stop()
	logx.Info("chartshot stopped")
}

func run(ctx context.Context, svcCtx *svc.ServiceContext, symbols []string, outDir string, every time.Duration) {
	captureAll(ctx, svcCtx, symbols, outDir)
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			captureAll(ctx, svcCtx, symbols, outDir)
		}
	}
}

func captureAll(parent context.Context, svcCtx *svc.ServiceContext, symbols []string, outDir string) {
	for _, symbol := range symbols {
		if parent.Err() != nil {
			return
		}
		start := time.Now()
		path, err := capture(parent, svcCtx, symbol, outDir)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			logx.Errorf("chartshot: capture symbol=%s err=%v took=%dms", symbol, err, elapsed)
			continue
		}
		logx.Infof("chartshot: captured symbol=%s file=%s took=%dms", symbol, path, elapsed)
	}
}

func capture(parent context.Context, svcCtx *svc.ServiceContext, symbol, outDir string) (string, error) {
	ctx, cancel := context.WithTimeout(parent, focusTimeout)
	defer cancel()
	if err := svcCtx.Engine.FocusSymbol(ctx, symbol); err != nil {
		// Frames that failed keep their error; the rest are still captured.
		logx.Infof("chartshot: focus symbol=%s err=%v", symbol, err)
	}
	img := svcCtx.Engine.CaptureSnapshot()
	if img == nil {
		return "", fmt.Errorf("no frame has data")
	}
	name := fmt.Sprintf("%s_%s.png", symbol, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(outDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := snapshot.EncodePNG(f, img); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

func parseSymbols(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		field = strings.ToUpper(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		if _, exists := seen[field]; exists {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	return out
}

func fatalf(format string, args ...interface{}) {
	logx.Errorf(format, args...)
	os.Exit(1)
}
