package fetcher

import (
	"context"
	"log/slog"

	"github.com/IliaW/email-harvester/internal/model"
)

// Fallback asks Secondary only when Primary failed in a way another source could fix.
type Fallback struct {
	Primary   Fetcher
	Secondary Fetcher
	Log       *slog.Logger
}

func (f *Fallback) Fetch(ctx context.Context, rawURL string) *model.FetchResult {
	result := f.Primary.Fetch(ctx, rawURL)
	if result.OK() || !IsRetryable(result) {
		return result
	}
	f.Log.Info("live fetch failed, trying fallback.", slog.String("url", rawURL),
		slog.String("reason", result.Reason()))
	fallback := f.Secondary.Fetch(ctx, rawURL)
	if !fallback.OK() {
		f.Log.Debug("fallback fetch failed.", slog.String("url", rawURL),
			slog.String("reason", fallback.Reason()))
		return result
	}
	fallback.Elapsed += result.Elapsed

	return fallback
}
