package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Métricas expostas em /metrics pela web API
var (
	pollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "autopilot",
		Name:      "polls_total",
		Help:      "Total de ciclos de poll concluídos com sucesso",
	})

	pollFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "autopilot",
		Name:      "poll_failures_total",
		Help:      "Total de polls que falharam na origem de métricas",
	})

	breachesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autopilot",
		Name:      "breaches_total",
		Help:      "Total de breaches sustentados detectados, por métrica",
	}, []string{"metric"})

	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autopilot",
		Name:      "actions_total",
		Help:      "Total de ações despachadas, por tipo e resultado",
	}, []string{"kind", "status"})

	trackedServices = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "autopilot",
		Name:      "tracked_services",
		Help:      "Serviços atualmente rastreados no state store",
	})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "autopilot",
		Name:      "dispatch_duration_seconds",
		Help:      "Duração do dispatch de ações, por tipo",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)
