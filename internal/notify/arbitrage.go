package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// FormatArbitrage renders an arbitrage event as an alert title and body.
func FormatArbitrage(ev domain.ArbitrageEvent) (title, message string) {
	switch ev.Event {
	case domain.EventArbitrageOpened:
		title = "Arbitrage opened: " + ev.AssetPair.String()
	case domain.EventArbitrageClosed:
		title = "Arbitrage closed: " + ev.AssetPair.String()
	default:
		title = "Arbitrage: " + ev.AssetPair.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Path: %s\n", ev.ConversionPath)
	fmt.Fprintf(&b, "Spread: %.8g  Volume: %.8g  PnL: %.8g\n", ev.Spread, ev.Volume, ev.PnL)
	fmt.Fprintf(&b, "Started: %s", ev.StartedAt.UTC().Format("2006-01-02 15:04:05.000"))
	if ev.Event == domain.EventArbitrageClosed {
		fmt.Fprintf(&b, "\nLasted: %s", ev.EndedAt.Sub(ev.StartedAt))
	}
	return title, b.String()
}
