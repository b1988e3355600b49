// Package metrics는 배포 오케스트레이터의 Prometheus 수집기입니다.
//
// 노출 시계열:
//   - deploy_attempts_total{outcome}            created / failed / rejected
//   - deploy_stage_duration_seconds{stage}      각 상태에 도달하기까지 걸린 시간
//   - deploy_build_triggers_total{result}       started / failed
//   - deploy_webhook_events_total{result}       rebuilt / ignored / failed
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Deploy struct {
	Attempts       *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	BuildTriggers  *prometheus.CounterVec
	WebhookEvents  *prometheus.CounterVec
	InFlightDeploy prometheus.Gauge
}

// New는 reg에 수집기를 등록합니다. 테스트에서는 prometheus.NewRegistry()를 넘기세요.
func New(reg prometheus.Registerer) *Deploy {
	m := &Deploy{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deploy_attempts_total",
			Help: "Deployment attempts by outcome.",
		}, []string{"outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deploy_stage_duration_seconds",
			Help:    "Duration of each deployment stage.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"stage"}),
		BuildTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deploy_build_triggers_total",
			Help: "Build submissions by result.",
		}, []string{"result"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deploy_webhook_events_total",
			Help: "Push webhook handling by result.",
		}, []string{"result"}),
		InFlightDeploy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deploy_in_flight",
			Help: "Deployments currently running.",
		}),
	}
	reg.MustRegister(m.Attempts, m.StageDuration, m.BuildTriggers, m.WebhookEvents, m.InFlightDeploy)
	return m
}

// ObserveStage는 start 이후 경과 시간을 기록합니다. nil receiver도 안전합니다.
func (m *Deploy) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Deploy) Attempt(outcome string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(outcome).Inc()
}

func (m *Deploy) BuildTrigger(result string) {
	if m == nil {
		return
	}
	m.BuildTriggers.WithLabelValues(result).Inc()
}

func (m *Deploy) Webhook(result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(result).Inc()
}

// Track은 진행 중 gauge를 올리고, 되돌리는 func를 반환합니다.
func (m *Deploy) Track() func() {
	if m == nil {
		return func() {}
	}
	m.InFlightDeploy.Inc()
	return m.InFlightDeploy.Dec
}
