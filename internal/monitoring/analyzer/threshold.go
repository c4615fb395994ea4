package analyzer

import (
	"time"

	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/models"
)

// ThresholdConfig configuração do threshold evaluator
type ThresholdConfig struct {
	CPUThreshold float64 // % acima = breach de CPU
	RAMThreshold float64 // % acima = breach de RAM
	BreachWindow int     // Samples consecutivos para emitir evento (default: 3)
}

// DefaultThresholdConfig retorna configuração padrão
func DefaultThresholdConfig() *ThresholdConfig {
	return &ThresholdConfig{
		CPUThreshold: 80.0,
		RAMThreshold: 80.0,
		BreachWindow: 3,
	}
}

// ThresholdEvaluator detecta breach sustentado de CPU/RAM
//
// Edge-triggered: o BreachEvent sai exatamente quando o contador de
// breaches consecutivos atinge a janela, uma única vez por breach
// sustentado (evita tempestade de tickets a cada poll). O contador zera
// no instante em que o valor volta abaixo do threshold; se havia ticket
// aberto, sai um ClearEvent
type ThresholdEvaluator struct {
	config *ThresholdConfig
}

// NewThresholdEvaluator cria o evaluator
func NewThresholdEvaluator(config *ThresholdConfig) *ThresholdEvaluator {
	if config == nil {
		config = DefaultThresholdConfig()
	}

	log.Info().
		Float64("cpu_threshold", config.CPUThreshold).
		Float64("ram_threshold", config.RAMThreshold).
		Int("breach_window", config.BreachWindow).
		Msg("Threshold evaluator inicializado")

	return &ThresholdEvaluator{config: config}
}

// ThresholdResult eventos de um sample (CPU e RAM independentes;
// um sample pode emitir breach das duas métricas)
type ThresholdResult struct {
	Breaches []models.BreachEvent
	Clears   []models.ClearEvent
}

// Evaluate avalia um sample e atualiza o estado in place
func (e *ThresholdEvaluator) Evaluate(sample models.Sample, state *models.ServiceState) ThresholdResult {
	var result ThresholdResult

	e.evaluateMetric(sample, state, models.MetricCPU, sample.CPUPct, e.config.CPUThreshold, &result)
	e.evaluateMetric(sample, state, models.MetricMemory, sample.MemPct, e.config.RAMThreshold, &result)

	return result
}

func (e *ThresholdEvaluator) evaluateMetric(sample models.Sample, state *models.ServiceState,
	metric models.Metric, value, threshold float64, result *ThresholdResult) {

	counter, breachStart := e.metricState(state, metric)

	if value > threshold {
		counter++
		if counter == 1 {
			breachStart = sample.Timestamp
		}
		e.setMetricState(state, metric, counter, breachStart)

		// Emite exatamente na transição para a janela completa
		if counter == e.config.BreachWindow {
			log.Warn().
				Str("service", sample.ServiceID).
				Str("metric", metric.String()).
				Float64("value", value).
				Float64("threshold", threshold).
				Int("consecutive", counter).
				Msg("Breach sustentado detectado")

			result.Breaches = append(result.Breaches, models.BreachEvent{
				ServiceID:   sample.ServiceID,
				Metric:      metric,
				Value:       value,
				Threshold:   threshold,
				FirstSeenAt: breachStart,
			})
		}
		return
	}

	// Abaixo do threshold: contador zera na hora
	if counter > 0 {
		e.setMetricState(state, metric, 0, time.Time{})

		if ticketID := state.OpenTicket(metric); ticketID != "" {
			log.Info().
				Str("service", sample.ServiceID).
				Str("metric", metric.String()).
				Float64("value", value).
				Str("ticket_id", ticketID).
				Msg("Breach resolvido, ticket será fechado")

			result.Clears = append(result.Clears, models.ClearEvent{
				ServiceID: sample.ServiceID,
				Metric:    metric,
				TicketID:  ticketID,
				Value:     value,
			})
		}
	} else if ticketID := state.OpenTicket(metric); ticketID != "" {
		// Fechamento anterior falhou: tenta de novo enquanto saudável
		result.Clears = append(result.Clears, models.ClearEvent{
			ServiceID: sample.ServiceID,
			Metric:    metric,
			TicketID:  ticketID,
			Value:     value,
		})
	}
}

func (e *ThresholdEvaluator) metricState(state *models.ServiceState, metric models.Metric) (int, time.Time) {
	switch metric {
	case models.MetricCPU:
		return state.CPUBreaches, state.CPUBreachStart
	default:
		return state.MemBreaches, state.MemBreachStart
	}
}

func (e *ThresholdEvaluator) setMetricState(state *models.ServiceState, metric models.Metric, counter int, start time.Time) {
	switch metric {
	case models.MetricCPU:
		state.CPUBreaches = counter
		state.CPUBreachStart = start
	default:
		state.MemBreaches = counter
		state.MemBreachStart = start
	}
}
