package metrics

import (
	"context"
	"log/slog"
	"time"
)

// RateLimitSource exposes the Strava client's rate limit view
type RateLimitSource interface {
	RateLimitCounts() (limit15, usage15, limitDaily, usageDaily int)
}

// QueueDepthSource exposes the dispatcher's queue depth
type QueueDepthSource interface {
	QueueDepth() int
}

// StartCollector periodically publishes gauge metrics that have no
// natural update point of their own.
func StartCollector(ctx context.Context, rates RateLimitSource, queue QueueDepthSource, interval time.Duration) {
	logger := slog.Default()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	collect(rates, queue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("metrics collector stopping")
			return
		case <-ticker.C:
			collect(rates, queue)
		}
	}
}

func collect(rates RateLimitSource, queue QueueDepthSource) {
	if rates != nil {
		limit15, usage15, limitDaily, usageDaily := rates.RateLimitCounts()
		StravaRateLimitUsage.WithLabelValues(RateLimit15Min, BucketLimit).Set(float64(limit15))
		StravaRateLimitUsage.WithLabelValues(RateLimit15Min, BucketUsage).Set(float64(usage15))
		StravaRateLimitUsage.WithLabelValues(RateLimitDaily, BucketLimit).Set(float64(limitDaily))
		StravaRateLimitUsage.WithLabelValues(RateLimitDaily, BucketUsage).Set(float64(usageDaily))
	}

	if queue != nil {
		WebhookQueueDepth.Set(float64(queue.QueueDepth()))
	}
}
