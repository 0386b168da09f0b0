package main

import (
	"time"

	"github.com/shopspring/decimal"

	"latentspeed/internal/config"
	"latentspeed/internal/venue/cex"
	"latentspeed/internal/venue/dex"
)

// applyCEXTuning overlays non-zero config.VenueTuning fields onto a CEX
// adapter's DefaultConfig(), leaving any field the operator did not set
// at its package default.
func applyCEXTuning(cfg *cex.Config, t config.VenueTuning) {
	if t.RecvWindowMs > 0 {
		cfg.RecvWindowMs = t.RecvWindowMs
	}
	if t.MaxRequestsPerWindow > 0 {
		cfg.MaxPerWindow = t.MaxRequestsPerWindow
	}
	if t.WindowSeconds > 0 {
		cfg.Window = time.Duration(t.WindowSeconds) * time.Second
	}
	if t.BackoffBaseMs > 0 {
		cfg.WS.BackoffBase = time.Duration(t.BackoffBaseMs) * time.Millisecond
	}
	if t.BackoffCapMs > 0 {
		cfg.WS.BackoffCap = time.Duration(t.BackoffCapMs) * time.Millisecond
	}
	if t.ResubscribeQuietMs > 0 {
		cfg.WS.ResubscribeQuietMs = time.Duration(t.ResubscribeQuietMs) * time.Millisecond
	}
	if t.ReconnectQuietMs > 0 {
		cfg.WS.ReconnectQuietMs = time.Duration(t.ReconnectQuietMs) * time.Millisecond
	}
}

// applyDEXTuning overlays non-zero config.VenueTuning fields onto a DEX
// adapter's DefaultConfig().
func applyDEXTuning(cfg *dex.Config, t config.VenueTuning) {
	if t.MaxRequestsPerWindow > 0 {
		cfg.MaxPerWindow = t.MaxRequestsPerWindow
	}
	if t.WindowSeconds > 0 {
		cfg.Window = time.Duration(t.WindowSeconds) * time.Second
	}
	if t.BatchIntervalMs > 0 {
		cfg.BatchInterval = time.Duration(t.BatchIntervalMs) * time.Millisecond
	}
	if t.WSPostTimeoutMs > 0 {
		cfg.WSPostTimeout = time.Duration(t.WSPostTimeoutMs) * time.Millisecond
	}
	if t.DefaultSlippageBps > 0 {
		cfg.DefaultSlippage = decimal.NewFromFloat(t.DefaultSlippageBps / 10000.0)
	}
	if t.PriceDecimals > 0 {
		cfg.DefaultPriceDec = t.PriceDecimals
	}
	if t.BackoffBaseMs > 0 {
		cfg.WS.BackoffBase = time.Duration(t.BackoffBaseMs) * time.Millisecond
	}
	if t.BackoffCapMs > 0 {
		cfg.WS.BackoffCap = time.Duration(t.BackoffCapMs) * time.Millisecond
	}
}
