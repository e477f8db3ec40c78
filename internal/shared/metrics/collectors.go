package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors agrupa as métricas de fluxo, rate limit e settlement.
// Os mains ligam cada campo aos Hooks dos engines.
type Collectors struct {
	Transitions    *prometheus.CounterVec // from,to
	Rejections     *prometheus.CounterVec // reason
	WagersCreated  *prometheus.CounterVec // kind
	ActiveSessions prometheus.Gauge
	RateDenials    *prometheus.CounterVec // class

	Graded           *prometheus.CounterVec // status
	GradeNoops       prometheus.Counter
	GradeConflicts   prometheus.Counter
	SettlementErrors *prometheus.CounterVec // stage

	Consumed prometheus.Counter
	DLQ      *prometheus.CounterVec // reason
}

// NewCollectors cria e registra tudo em reg (nil usa o registry padrão)
func NewCollectors(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collectors{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_workflow_transitions_total", Help: "transições entre passos do fluxo",
		}, []string{"from", "to"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_workflow_rejections_total", Help: "entradas rejeitadas por motivo",
		}, []string{"reason"}),
		WagersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_created_total", Help: "apostas persistidas",
		}, []string{"kind"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wager_workflow_active_sessions", Help: "sessões de construção ativas",
		}),
		RateDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_ratelimit_denials_total", Help: "ações negadas pelo rate limit",
		}, []string{"class"}),
		Graded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_settlement_graded_total", Help: "apostas levadas a status terminal",
		}, []string{"status"}),
		GradeNoops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wager_settlement_noops_total", Help: "reavaliações idênticas ignoradas",
		}),
		GradeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wager_settlement_conflicts_total", Help: "reavaliações com resultado diferente",
		}),
		SettlementErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_settlement_errors_total", Help: "erros por estágio",
		}, []string{"stage"}),
		Consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wager_settlement_messages_consumed_total", Help: "mensagens de outcome consumidas",
		}),
		DLQ: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_settlement_dlq_total", Help: "mensagens enviadas para a DLQ",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		c.Transitions, c.Rejections, c.WagersCreated, c.ActiveSessions, c.RateDenials,
		c.Graded, c.GradeNoops, c.GradeConflicts, c.SettlementErrors,
		c.Consumed, c.DLQ,
	)
	return c
}
