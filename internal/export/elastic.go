package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/models"
)

// Config configuração do exporter Elasticsearch
type Config struct {
	URL         string
	Username    string
	Password    string
	IndexPrefix string        // default: autopilot
	Timeout     time.Duration // default: 5s
}

// Elastic exporta telemetria de cada ciclo para o Elasticsearch
// Best effort: falha de export só loga, o control loop nunca espera
// nem depende do cluster
type Elastic struct {
	config     Config
	httpClient *http.Client
}

// NewElastic cria o exporter
func NewElastic(config Config) (*Elastic, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("URL do Elasticsearch não configurada")
	}
	config.URL = strings.TrimRight(config.URL, "/")
	if config.IndexPrefix == "" {
		config.IndexPrefix = "autopilot"
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	log.Debug().
		Str("url", config.URL).
		Str("index_prefix", config.IndexPrefix).
		Msg("Exporter Elasticsearch criado")

	return &Elastic{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// ExportSample grava as métricas de um serviço no índice de samples
func (e *Elastic) ExportSample(ctx context.Context, sample models.Sample) {
	e.send(ctx, "samples", map[string]interface{}{
		"@timestamp":        sample.Timestamp.UTC().Format(time.RFC3339),
		"service":           sample.ServiceID,
		"cpu_pct":           sample.CPUPct,
		"mem_pct":           sample.MemPct,
		"net_bytes_per_sec": sample.NetBytesPerSec,
	})
}

// ExportResult grava o desfecho de uma ação no índice de ações
func (e *Elastic) ExportResult(ctx context.Context, result models.DispatchResult) {
	doc := map[string]interface{}{
		"@timestamp":  time.Now().UTC().Format(time.RFC3339),
		"action":      string(result.Action.Kind),
		"service":     result.Action.ServiceID,
		"status":      result.Status.String(),
		"attempts":    result.Attempts,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.TicketID != "" {
		doc["ticket_id"] = result.TicketID
	}
	if result.Action.Intent != nil {
		doc["replicas"] = result.Action.Intent.TargetReplicas
	}
	if result.Err != nil {
		doc["error"] = result.Err.Error()
	}

	e.send(ctx, "actions", doc)
}

// ExportFleet grava o tamanho agregado da frota após o ciclo
func (e *Elastic) ExportFleet(ctx context.Context, services, replicas int) {
	e.send(ctx, "fleet", map[string]interface{}{
		"@timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":   services,
		"replicas":   replicas,
	})
}

func (e *Elastic) send(ctx context.Context, index string, doc map[string]interface{}) {
	body, err := json.Marshal(doc)
	if err != nil {
		log.Warn().Err(err).Str("index", index).Msg("Falha ao serializar documento")
		return
	}

	endpoint := fmt.Sprintf("%s/%s-%s/_doc", e.config.URL, e.config.IndexPrefix, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Str("index", index).Msg("Falha ao montar request de export")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.Username != "" {
		req.SetBasicAuth(e.config.Username, e.config.Password)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("index", index).Msg("Export para Elasticsearch falhou")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("index", index).
			Msg("Elasticsearch rejeitou o documento")
	}
}
