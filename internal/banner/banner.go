// Package banner prints the application startup/shutdown banners.
package banner

import (
	"fmt"
	"os"
	"strings"

	tbbanner "github.com/ternarybob/banner"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/config"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/version"
)

// Print displays the startup banner to stderr.
func Print(cfg *config.Config, logger *logging.Logger) {
	serviceURL := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)

	lineColor := tbbanner.ColorCyan
	textColor := tbbanner.ColorBold + tbbanner.ColorWhite
	width := 62
	hr := lineColor + strings.Repeat("═", width) + tbbanner.ColorReset

	art := []string{
		` 888888b.    8888888888  `,
		` 888  "88b   888         `,
		` 888  .88P   8888888     `,
		` 8888888K.   888         `,
		` 888  "Y88b  888         `,
		` 888    888  8888888888  `,
	}

	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)
	for _, line := range art {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", textColor, line, tbbanner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s  Backtest Job Orchestration Engine%s\n\n%s\n\n", textColor, tbbanner.ColorReset, hr)

	kvPad := 16
	kvLines := [][2]string{
		{"Version", version.Version},
		{"Build", version.Build},
		{"Commit", version.GitCommit},
		{"Environment", cfg.Environment},
		{"Service URL", serviceURL},
		{"Storage", cfg.Storage.Address},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(os.Stderr, "%s  %-*s %s%s\n", textColor, kvPad, kv[0], kv[1], tbbanner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)

	logger.Info().
		Str("version", version.Version).
		Str("environment", cfg.Environment).
		Str("service_url", serviceURL).
		Msg("application started")
}

// PrintShutdown displays the shutdown banner to stderr.
func PrintShutdown(logger *logging.Logger) {
	lineColor := tbbanner.ColorCyan
	textColor := tbbanner.ColorBold + tbbanner.ColorWhite
	hr := lineColor + strings.Repeat("═", 42) + tbbanner.ColorReset

	fmt.Fprintf(os.Stderr, "\n%s\n%s  SHUTTING DOWN%s\n%s\n\n", hr, textColor, tbbanner.ColorReset, hr)
	logger.Info().Msg("application shutting down")
}
