package config_test

import (
	"path/filepath"
	"testing"

	appconfig "mtfchart/internal/config"
	"mtfchart/internal/svc"
)

// TestMustLoadRepoConfig loads the shipped etc/chartd.yaml and builds the
// service context from it. Nothing is started, so no bridge is contacted.
func TestMustLoadRepoConfig(t *testing.T) {
	t.Setenv("MT5_BRIDGE_URL", "http://127.0.0.1:8001")

	mainPath := filepath.Join(appconfig.MustProjectRoot(), "etc", "chartd.yaml")
	cfg := appconfig.MustLoad(mainPath)
	if cfg.Broker.Value == nil {
		t.Fatalf("Broker section not hydrated from %s", mainPath)
	}
	if cfg.MainPath() != mainPath {
		t.Fatalf("MainPath = %q, want %q", cfg.MainPath(), mainPath)
	}

	ctx, err := svc.NewServiceContext(*cfg)
	if err != nil {
		t.Fatalf("NewServiceContext: %v", err)
	}
	if ctx.Broker == nil || ctx.Engine == nil || ctx.History == nil {
		t.Fatalf("service context incomplete: %+v", ctx)
	}
	if got := len(ctx.Engine.Active()); got == 0 || got > cfg.Chart.MaxFrames {
		t.Fatalf("active frames = %d, max %d", got, cfg.Chart.MaxFrames)
	}
}

func TestMustLoadBroker(t *testing.T) {
	t.Setenv("MT5_BRIDGE_URL", "http://127.0.0.1:8001")
	b := appconfig.MustLoadBroker()
	if _, ok := b.Providers[b.Default]; !ok {
		t.Fatalf("default provider %q not defined", b.Default)
	}
	if len(b.Instruments) == 0 {
		t.Fatalf("expected an instrument constraint table")
	}
}
