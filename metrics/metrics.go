package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "loggerctl_"

// Result labels.
const (
	ResultSuccess    = "success"
	ResultFailure    = "failure"
	ResultTimeout    = "timeout"
	ResultConnection = "connection_error"
	ResultProtocol   = "protocol_error"
	ResultValidation = "validation_error"
	ResultBusy       = "busy"
	ResultCanceled   = "canceled"
	ResultError      = "error"
)

var (
	registerOnce sync.Once

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	leaseRejections *prometheus.CounterVec
)

// Init registers the collectors with the default registry. It is safe to
// call more than once.
func Init() {
	registerOnce.Do(func() {
		commandsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_total",
				Help: "Total logger commands by command and result",
			},
			[]string{"command", "result"},
		)
		commandDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "command_duration_seconds",
				Help:    "Time from connect to result in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"command", "result"},
		)
		leaseRejections = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lease_rejections_total",
				Help: "Commands rejected because another command holds the logger",
			},
			[]string{"command"},
		)

		prometheus.MustRegister(commandsTotal, commandDuration, leaseRejections)
	})
}

// ObserveCommand records one finished command.
func ObserveCommand(command, result string, duration time.Duration) {
	if commandsTotal == nil {
		return
	}
	commandsTotal.WithLabelValues(command, result).Inc()
	commandDuration.WithLabelValues(command, result).Observe(duration.Seconds())
}

// IncLeaseRejected counts a command refused by the device lease.
func IncLeaseRejected(command string) {
	if leaseRejections == nil {
		return
	}
	leaseRejections.WithLabelValues(command).Inc()
}
