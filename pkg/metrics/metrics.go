package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BidsTotal counts bid attempts by outcome.
	BidsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_bids_total",
		Help: "Total number of bid attempts by result",
	}, []string{"result"})

	// FeedSubscribers is the number of websocket clients following auction rooms.
	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atelier_feed_subscribers",
		Help: "Number of active auction feed websocket clients",
	})

	// FeedDrops counts events dropped for slow clients.
	FeedDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_feed_drops_total",
		Help: "Total number of feed events dropped due to backpressure",
	}, []string{"reason"})

	// UploadsTotal counts object uploads by bucket and result.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_uploads_total",
		Help: "Total number of object uploads",
	}, []string{"bucket", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atelier_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Middleware records request latency keyed by the matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
