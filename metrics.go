package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustchain_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trustchain_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	sealsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustchain_seals_total",
		Help: "Seal workflow runs by outcome.",
	}, []string{"outcome"})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustchain_verifications_total",
		Help: "Verification runs by resulting status.",
	}, []string{"status"})
)

// metricsMiddleware records request counts and latencies per route template.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).
			Observe(time.Since(start).Seconds())
	}
}

func observeSeal(outcome string) {
	sealsTotal.WithLabelValues(outcome).Inc()
}

func observeVerification(status string) {
	verificationsTotal.WithLabelValues(status).Inc()
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
