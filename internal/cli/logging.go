package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"mtfchart/internal/config"
	"mtfchart/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	symbol := cfg.Symbol
	if strings.TrimSpace(symbol) == "" {
		symbol = "<none>"
	}
	frames := "default"
	if len(cfg.Chart.InitialFrames) > 0 {
		frames = strings.Join(cfg.Chart.InitialFrames, ",")
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Startup symbol: %s", symbol),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		fmt.Sprintf("History cache TTL: %ds", cfg.TTL.History),
		fmt.Sprintf("Frames: %s (max %d)", frames, cfg.Chart.MaxFrames),
		fmt.Sprintf("Refresh: every %s ± %s", cfg.Chart.RefreshInterval, cfg.Chart.RefreshJitter),
		fmt.Sprintf("Book poll: every %s, live stream %s", cfg.Feed.BookInterval, onOff(cfg.Feed.Stream)),
		sectionLine("Broker config", cfg.Broker),
	}
	if b := cfg.Broker.Value; b != nil {
		provider := cfg.Provider
		if provider == "" {
			provider = b.Default
		}
		lines = append(lines,
			fmt.Sprintf("Broker provider: %s (%d configured)", provider, len(b.Providers)),
			fmt.Sprintf("Instrument constraints: %d symbols", len(b.Instruments)),
		)
	}
	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func onOff(ok bool) string {
	if ok {
		return "on"
	}
	return "off"
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
