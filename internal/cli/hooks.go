package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// logHooks reports scanner and cache events at debug level. It is
// installed by --verbose.
type logHooks struct {
	logger *log.Logger
}

func (h *logHooks) OnScanStart(_ context.Context, root string, strategies []string) {
	h.logger.Debug("scan started", "root", root, "strategies", len(strategies))
}

func (h *logHooks) OnStrategyComplete(_ context.Context, strategy string, components int, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("strategy failed", "strategy", strategy, "duration", d.Round(time.Millisecond), "err", err)
		return
	}
	h.logger.Debug("strategy done", "strategy", strategy, "components", components, "duration", d.Round(time.Millisecond))
}

func (h *logHooks) OnScanComplete(_ context.Context, root string, components int, d time.Duration, err error) {
	h.logger.Debug("scan complete", "root", root, "components", components, "duration", d.Round(time.Millisecond), "err", err)
}

func (h *logHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h *logHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h *logHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache write", "type", keyType, "bytes", size)
}
