package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks request latency by method, path and status.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path", "status"},
	)

	// OrdersTotal counts order placements by side and player.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_orders_total",
			Help: "Total number of orders placed",
		},
		[]string{"side", "player"},
	)

	// TradesTotal counts executions per player.
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_trades_total",
			Help: "Total number of trades executed",
		},
		[]string{"player"},
	)

	// CancelsTotal counts successful cancellations per player.
	CancelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_cancels_total",
			Help: "Total number of orders cancelled",
		},
		[]string{"player"},
	)
)

// PrometheusMiddleware records request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Observe(duration)
	}
}
