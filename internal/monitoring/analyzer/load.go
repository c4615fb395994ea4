package analyzer

import (
	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/models"
)

// LoadConfig configuração do load evaluator
type LoadConfig struct {
	ScaleUpThreshold   float64 // bytes/s acima = scale up
	ScaleDownThreshold float64 // bytes/s abaixo = scale down (estritamente menor que o de cima)
	ScaleStep          int     // Réplicas adicionadas/removidas por ação
	MinReplicas        int
	MaxReplicas        int
}

// DefaultLoadConfig retorna configuração padrão
// Thresholds herdados do monitor original (750 KB/s sobe, 130 KB/s desce)
func DefaultLoadConfig() *LoadConfig {
	return &LoadConfig{
		ScaleUpThreshold:   768000,
		ScaleDownThreshold: 133120,
		ScaleStep:          1,
		MinReplicas:        1,
		MaxReplicas:        10,
	}
}

// LoadEvaluator decide scaling a partir do throughput de rede
//
// A banda de histerese entre os dois thresholds impede oscilação quando
// o tráfego fica perto de um único corte: dentro da banda não sai intent
// nenhum. Réplicas desejadas nunca saem de [min, max]
type LoadEvaluator struct {
	config *LoadConfig
}

// NewLoadEvaluator cria o evaluator
func NewLoadEvaluator(config *LoadConfig) *LoadEvaluator {
	if config == nil {
		config = DefaultLoadConfig()
	}

	log.Info().
		Float64("scale_up_threshold", config.ScaleUpThreshold).
		Float64("scale_down_threshold", config.ScaleDownThreshold).
		Int("step", config.ScaleStep).
		Int("min_replicas", config.MinReplicas).
		Int("max_replicas", config.MaxReplicas).
		Msg("Load evaluator inicializado")

	return &LoadEvaluator{config: config}
}

// Evaluate retorna um ScaleIntent ou nil se nada a fazer
func (e *LoadEvaluator) Evaluate(sample models.Sample, state *models.ServiceState) *models.ScaleIntent {
	current := state.DesiredReplicas
	if current < e.config.MinReplicas {
		current = e.config.MinReplicas
	}

	if sample.NetBytesPerSec > e.config.ScaleUpThreshold {
		if current >= e.config.MaxReplicas {
			log.Debug().
				Str("service", sample.ServiceID).
				Float64("net_bytes_per_sec", sample.NetBytesPerSec).
				Int("replicas", current).
				Msg("Carga alta mas já no máximo de réplicas")
			return nil
		}

		target := current + e.config.ScaleStep
		if target > e.config.MaxReplicas {
			target = e.config.MaxReplicas
		}

		return &models.ScaleIntent{
			ServiceID:       sample.ServiceID,
			CurrentReplicas: current,
			TargetReplicas:  target,
			Reason:          models.ReasonLoadHigh,
			NetBytesPerSec:  sample.NetBytesPerSec,
		}
	}

	if sample.NetBytesPerSec < e.config.ScaleDownThreshold {
		if current <= e.config.MinReplicas {
			return nil
		}

		target := current - e.config.ScaleStep
		if target < e.config.MinReplicas {
			target = e.config.MinReplicas
		}

		return &models.ScaleIntent{
			ServiceID:       sample.ServiceID,
			CurrentReplicas: current,
			TargetReplicas:  target,
			Reason:          models.ReasonLoadLow,
			NetBytesPerSec:  sample.NetBytesPerSec,
		}
	}

	// Dentro da banda de histerese: nenhuma decisão
	return nil
}
