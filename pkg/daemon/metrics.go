package daemon

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	calibrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mineq",
			Name:      "calibrations_total",
			Help:      "Finished calibration runs by result.",
		},
		[]string{"result"},
	)

	calibrationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mineq",
		Name:      "calibration_duration_seconds",
		Help:      "Wall time of a full calibration run.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	statusLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mineq",
			Name:      "status_lines_total",
			Help:      "Status lines received from the motor controller by mode.",
		},
		[]string{"mode"},
	)

	malformedLinesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mineq",
		Name:      "malformed_lines_total",
		Help:      "Discarded lines that did not parse as status lines.",
	})

	pwmBound = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mineq",
			Name:      "pwm_bound",
			Help:      "PWM duty cycle measured for the low and high rate.",
		},
		[]string{"bound"},
	)

	lastPWM = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mineq",
		Name:      "last_pwm",
		Help:      "PWM duty cycle of the most recent status line.",
	})
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		calibrationsTotal,
		calibrationDuration,
		statusLinesTotal,
		malformedLinesTotal,
		pwmBound,
		lastPWM,
	)
}

func getMetrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
