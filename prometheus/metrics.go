package prometheus

import (
	"strconv"
	"time"

	"leadintake-service/pkg/config"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics
	RequestDurationHistogram *prometheus.HistogramVec
	APIRequestCounter        *prometheus.CounterVec
	APIErrorCounter          *prometheus.CounterVec

	// Deal workflow metrics
	DealOperationsCounter *prometheus.CounterVec
	CrmSyncCounter        *prometheus.CounterVec
	NotificationCounter   *prometheus.CounterVec

	// Content metrics
	BlogOperationsCounter   *prometheus.CounterVec
	PageViewsTrackedCounter prometheus.Counter
	PageViewsDedupedCounter prometheus.Counter

	// Database operation metrics
	DBOperationHistogram *prometheus.HistogramVec

	// Namespace prefix for metrics
	namespace string
)

// InitMetrics initializes all Prometheus metrics
func InitMetrics(cfg *config.Config) {
	namespace = cfg.Metrics.Prefix

	RequestDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	APIRequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "path"},
	)

	APIErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Total number of API errors",
		},
		[]string{"method", "path", "status"},
	)

	DealOperationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deal_operations_total",
			Help:      "Total number of deal operations",
		},
		[]string{"operation"},
	)

	CrmSyncCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crm_sync_total",
			Help:      "Total number of Pipedrive sync attempts",
		},
		[]string{"operation", "status"},
	)

	NotificationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of WhatsApp confirmation attempts",
		},
		[]string{"status"},
	)

	BlogOperationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blog_operations_total",
			Help:      "Total number of blog operations",
		},
		[]string{"operation"},
	)

	PageViewsTrackedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_views_tracked_total",
		Help:      "Total number of page views recorded",
	})

	PageViewsDedupedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_views_deduped_total",
		Help:      "Total number of page views suppressed as duplicates",
	})

	DBOperationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Duration of database operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			APIRequestCounter.With(prometheus.Labels{
				"method": c.Request().Method,
				"path":   c.Path(),
			}).Inc()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			RequestDurationHistogram.With(prometheus.Labels{
				"method": c.Request().Method,
				"path":   c.Path(),
				"status": status,
			}).Observe(duration)

			if c.Response().Status >= 400 {
				APIErrorCounter.With(prometheus.Labels{
					"method": c.Request().Method,
					"path":   c.Path(),
					"status": status,
				}).Inc()
			}

			return err
		}
	}
}

// HandlerFunc returns a HTTP handler for the metrics endpoint
func HandlerFunc() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// RecordDealOperation increments the deal operations counter. Safe to call
// before InitMetrics (handler tests run without a metrics registry).
func RecordDealOperation(operation string) {
	if DealOperationsCounter == nil {
		return
	}
	DealOperationsCounter.WithLabelValues(operation).Inc()
}

// RecordBlogOperation increments the blog operations counter.
func RecordBlogOperation(operation string) {
	if BlogOperationsCounter == nil {
		return
	}
	BlogOperationsCounter.WithLabelValues(operation).Inc()
}

// RecordCrmSync counts the outcome of one Pipedrive call.
func RecordCrmSync(operation string, err error) {
	if CrmSyncCounter == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	CrmSyncCounter.WithLabelValues(operation, status).Inc()
}

// RecordNotification counts the outcome of one WhatsApp confirmation attempt.
func RecordNotification(err error) {
	if NotificationCounter == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	NotificationCounter.WithLabelValues(status).Inc()
}

// RecordPageView counts a tracked or deduplicated page view.
func RecordPageView(tracked bool) {
	if PageViewsTrackedCounter == nil {
		return
	}
	if tracked {
		PageViewsTrackedCounter.Inc()
	} else {
		PageViewsDedupedCounter.Inc()
	}
}

// TrackDBOperation returns a function that tracks database operation duration
func TrackDBOperation(operation string) func(time.Time) {
	return func(startTime time.Time) {
		if DBOperationHistogram == nil {
			return
		}
		DBOperationHistogram.With(prometheus.Labels{
			"operation": operation,
		}).Observe(time.Since(startTime).Seconds())
	}
}
