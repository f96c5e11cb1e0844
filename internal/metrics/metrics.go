package metrics

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelkeeper/internal/logger"
)

var (
	registry = prometheus.NewRegistry()

	requestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelkeeper_request_total",
			Help: "Total requests handled, partitioned by worker component",
		},
		[]string{"component", "path"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelkeeper_request_duration_seconds",
			Help:    "Duration of handled requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component", "path"},
	)

	errorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelkeeper_request_errors_total",
			Help: "Total requests answered with status >= 400",
		},
		[]string{"component", "path"},
	)
)

func init() {
	registry.MustRegister(requestCount)
	registry.MustRegister(requestDuration)
	registry.MustRegister(errorCount)
}

func IncrementRequestCount(component, path string) {
	requestCount.WithLabelValues(component, path).Inc()
}

func RecordRequestDuration(component, path string, seconds float64) {
	requestDuration.WithLabelValues(component, path).Observe(seconds)
}

func IncrementErrorCount(component, path string) {
	errorCount.WithLabelValues(component, path).Inc()
}

// Handler exposes this worker's own metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

/**
 * StartMultiprocessExport 周期性把本worker的指标快照写入共享目录
 * @param {context.Context} ctx - 取消上下文
 * @param {string} dir - 多进程指标目录(planner解析得到)
 * @param {string} component - worker组件名，决定快照文件名
 * @description
 * - 每个worker进程只写自己的"<component>.prom"文件，按worker身份分片
 * - 目录由编排进程独占持有，worker只允许在其中写文件
 * - 写失败仅告警，指标是尽力而为的
 */
func StartMultiprocessExport(ctx context.Context, dir, component string) {
	if dir == "" {
		return
	}
	file := filepath.Join(dir, sanitize(component)+".prom")
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := prometheus.WriteToTextfile(file, registry); err != nil {
					logger.Warnf("Failed to export metrics to %s: %v", file, err)
				}
			}
		}
	}()
}

func sanitize(component string) string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(component)
}
