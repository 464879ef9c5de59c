// Package metrics 分析相关的 prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/admi-n/solidity-scamscan/src/internal/scam"
)

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scamscan_analyses_total",
		Help: "Total contract analyses by risk level",
	}, []string{"level"})

	detectorHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scamscan_detector_hits_total",
		Help: "Total detector triggers by detector name",
	}, []string{"detector"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scamscan_analysis_duration_seconds",
		Help:    "Duration of a single analysis",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	encodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scamscan_encode_failures_total",
		Help: "Total assessments that could not be encoded",
	})

	reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scamscan_reports_total",
		Help: "Scam reports by status transition",
	}, []string{"status"})
)

// Observe 记录一次分析
func Observe(a scam.RiskAssessment, elapsed time.Duration) {
	analysesTotal.WithLabelValues(string(a.RiskLevel)).Inc()
	for _, f := range a.Findings {
		detectorHits.WithLabelValues(f.Detector).Inc()
	}
	analysisDuration.Observe(elapsed.Seconds())
}

// EncodeFailed 记录一次编码失败
func EncodeFailed() {
	encodeFailures.Inc()
}

// ReportTransition 记录一次举报状态变化（提交为 PENDING，确认为 CONFIRMED）
func ReportTransition(status string) {
	reportsTotal.WithLabelValues(status).Inc()
}
