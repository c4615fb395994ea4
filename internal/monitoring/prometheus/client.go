package prometheus

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/models"
)

// Config configuração da origem Prometheus
// As queries devem retornar vetores agregados por "instance"
type Config struct {
	Endpoint string
	CPUQuery string // % de CPU por instance
	RAMQuery string // % de RAM por instance
	NetQuery string // bytes/s recebidos por instance
	Timeout  time.Duration
}

// Source origem de métricas baseada em Prometheus
// Implementa sampler.Source: um GetMetrics executa as três queries
// e junta os vetores por instance em um sample por serviço
type Source struct {
	api    v1.API
	config Config
}

// NewSource cria a origem (lazy: a primeira query testa a conexão)
func NewSource(config Config) (*Source, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint do Prometheus não configurado")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	apiClient, err := api.NewClient(api.Config{
		Address: config.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	log.Debug().
		Str("endpoint", config.Endpoint).
		Msg("Prometheus source criada")

	return &Source{
		api:    v1.NewAPI(apiClient),
		config: config,
	}, nil
}

// GetMetrics coleta CPU, RAM e rede de toda a frota
// serviceIDs vazio significa todos os serviços que as queries retornarem
func (s *Source) GetMetrics(ctx context.Context, serviceIDs []string) ([]models.Sample, error) {
	now := time.Now()

	cpu, err := s.queryVector(ctx, s.config.CPUQuery)
	if err != nil {
		return nil, fmt.Errorf("query de CPU falhou: %w", err)
	}
	ram, err := s.queryVector(ctx, s.config.RAMQuery)
	if err != nil {
		return nil, fmt.Errorf("query de RAM falhou: %w", err)
	}
	net, err := s.queryVector(ctx, s.config.NetQuery)
	if err != nil {
		return nil, fmt.Errorf("query de rede falhou: %w", err)
	}

	merged := mergeVectors(cpu, ram, net, now)

	wanted := make(map[string]bool, len(serviceIDs))
	for _, id := range serviceIDs {
		wanted[id] = true
	}

	samples := make([]models.Sample, 0, len(merged))
	for _, sm := range merged {
		if len(wanted) > 0 && !wanted[sm.ServiceID] {
			continue
		}
		samples = append(samples, sm)
	}

	log.Debug().
		Int("services", len(samples)).
		Msg("Métricas coletadas do Prometheus")

	return samples, nil
}

// mergeVectors junta os três vetores por serviço
// Um serviço só vira sample se aparecer nos três vetores: ausência de
// qualquer métrica é staleness, não valor zero (rede zero dispararia
// um scale down falso)
func mergeVectors(cpu, ram, net model.Vector, now time.Time) []models.Sample {
	type partial struct {
		sample models.Sample
		gotCPU bool
		gotRAM bool
		gotNet bool
	}

	byService := make(map[string]*partial)
	merge := func(vec model.Vector, set func(*partial, float64)) {
		for _, pair := range vec {
			id := instanceOf(pair.Metric)
			if id == "" {
				continue
			}
			p, ok := byService[id]
			if !ok {
				p = &partial{sample: models.Sample{ServiceID: id, Timestamp: now}}
				byService[id] = p
			}
			set(p, float64(pair.Value))
		}
	}

	merge(cpu, func(p *partial, v float64) { p.sample.CPUPct = v; p.gotCPU = true })
	merge(ram, func(p *partial, v float64) { p.sample.MemPct = v; p.gotRAM = true })
	merge(net, func(p *partial, v float64) { p.sample.NetBytesPerSec = v; p.gotNet = true })

	samples := make([]models.Sample, 0, len(byService))
	for id, p := range byService {
		if !p.gotCPU || !p.gotRAM || !p.gotNet {
			log.Debug().
				Str("service", id).
				Bool("cpu", p.gotCPU).
				Bool("ram", p.gotRAM).
				Bool("net", p.gotNet).
				Msg("Serviço ausente de parte das queries, ignorado no poll")
			continue
		}
		samples = append(samples, p.sample)
	}

	return samples
}

func (s *Source) queryVector(ctx context.Context, query string) (model.Vector, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	result, warnings, err := s.api.Query(queryCtx, query, time.Now())
	if err != nil {
		return nil, err
	}
	if len(warnings) > 0 {
		log.Warn().
			Strs("warnings", warnings).
			Str("query", query).
			Msg("Query retornou warnings")
	}

	vec, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("resultado inesperado %s (esperado vector)", result.Type())
	}
	return vec, nil
}

// instanceOf extrai o identificador do serviço dos labels
// Aceita "instance" (node_exporter) ou "service" (queries customizadas)
func instanceOf(metric model.Metric) string {
	if v, ok := metric["instance"]; ok {
		return string(v)
	}
	if v, ok := metric["service"]; ok {
		return string(v)
	}
	return ""
}
