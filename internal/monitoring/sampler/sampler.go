package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/models"
)

// Source origem externa de métricas da frota
// Um serviço ausente do resultado é staleness, não carga zero
type Source interface {
	GetMetrics(ctx context.Context, serviceIDs []string) ([]models.Sample, error)
}

// Config configuração do sampler
type Config struct {
	Interval         time.Duration // Período base de poll
	BackoffMaxFactor int           // Cap do backoff exponencial (x Interval)
	StalePolls       int           // Polls ausentes até considerar stale
}

// Sampler converte a origem de métricas em samples normalizados
// Dono do retry/backoff: falhas da origem nunca derrubam o loop,
// apenas alongam o intervalo até o próximo poll
type Sampler struct {
	source Source
	config Config

	mu        sync.Mutex
	pollCount uint64
	failures  int
	lastSeen  map[string]uint64 // serviço -> último poll em que apareceu
}

// New cria um sampler
func New(source Source, config Config) *Sampler {
	if config.BackoffMaxFactor < 1 {
		config.BackoffMaxFactor = 8
	}
	if config.StalePolls < 1 {
		config.StalePolls = 3
	}

	return &Sampler{
		source:   source,
		config:   config,
		lastSeen: make(map[string]uint64),
	}
}

// Collect executa um poll: busca métricas, normaliza e avança o contador
// Em falha da origem retorna erro e incrementa o backoff; o chamador deve
// esperar BackoffDelay() antes do próximo poll
func (s *Sampler) Collect(ctx context.Context) ([]models.Sample, error) {
	samples, err := s.source.GetMetrics(ctx, nil)
	if err != nil {
		s.mu.Lock()
		s.failures++
		failures := s.failures
		delay := s.backoffDelayLocked()
		s.mu.Unlock()

		log.Warn().
			Err(err).
			Int("consecutive_failures", failures).
			Dur("backoff", delay).
			Msg("Origem de métricas indisponível")

		return nil, fmt.Errorf("source unavailable: %w", err)
	}

	now := time.Now()

	s.mu.Lock()
	s.failures = 0
	s.pollCount++
	poll := s.pollCount

	normalized := make([]models.Sample, 0, len(samples))
	for _, sm := range samples {
		if sm.ServiceID == "" {
			continue
		}
		if sm.Timestamp.IsZero() {
			sm.Timestamp = now
		}
		// Percentuais podem passar de 100 em burst; negativos são lixo
		if sm.CPUPct < 0 {
			sm.CPUPct = 0
		}
		if sm.MemPct < 0 {
			sm.MemPct = 0
		}
		if sm.NetBytesPerSec < 0 {
			sm.NetBytesPerSec = 0
		}

		s.lastSeen[sm.ServiceID] = poll
		normalized = append(normalized, sm)
	}
	s.mu.Unlock()

	log.Debug().
		Uint64("poll", poll).
		Int("services", len(normalized)).
		Msg("Poll concluído")

	return normalized, nil
}

// PollCount retorna o contador monotônico de polls bem-sucedidos
func (s *Sampler) PollCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollCount
}

// Stale retorna true se o serviço está ausente há StalePolls polls
// Serviços stale são excluídos da avaliação até reaparecerem
func (s *Sampler) Stale(serviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, ok := s.lastSeen[serviceID]
	if !ok {
		return true
	}
	return s.pollCount-seen >= uint64(s.config.StalePolls)
}

// BackoffDelay retorna quanto esperar antes do próximo poll
// Intervalo base sem falhas; dobra a cada falha consecutiva até o cap
func (s *Sampler) BackoffDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backoffDelayLocked()
}

func (s *Sampler) backoffDelayLocked() time.Duration {
	if s.failures == 0 {
		return s.config.Interval
	}

	factor := 1
	for i := 0; i < s.failures && factor < s.config.BackoffMaxFactor; i++ {
		factor *= 2
	}
	if factor > s.config.BackoffMaxFactor {
		factor = s.config.BackoffMaxFactor
	}

	return s.config.Interval * time.Duration(factor)
}

// Failures retorna falhas consecutivas da origem
func (s *Sampler) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}
