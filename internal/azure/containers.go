package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/models"
)

const (
	managementHost = "https://management.azure.com"
	apiVersionACI  = "2023-05-01"
	apiVersionMon  = "2018-01-01"
)

// tokenSource entrega um bearer token válido para a API de management
type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Source origem de métricas baseada em Azure Container Instances
// Lista os container groups da subscription e busca CPU, memória e rede
// na API de metrics do Azure Monitor
type Source struct {
	tokens       tokenSource
	subscription string
	host         string
	httpClient   *http.Client
}

// NewSource cria a origem
func NewSource(creds Credentials) (*Source, error) {
	if creds.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription Azure não configurada")
	}

	tokens, err := newTokenProvider(creds)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("subscription", creds.SubscriptionID).
		Msg("Azure source criada")

	return &Source{
		tokens:       tokens,
		subscription: creds.SubscriptionID,
		host:         managementHost,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type containerGroup struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Properties struct {
		Containers []struct {
			Properties struct {
				Resources struct {
					Requests struct {
						CPU        float64 `json:"cpu"`
						MemoryInGB float64 `json:"memoryInGB"`
					} `json:"requests"`
				} `json:"resources"`
			} `json:"properties"`
		} `json:"containers"`
	} `json:"properties"`
}

type containerGroupList struct {
	Value    []containerGroup `json:"value"`
	NextLink string           `json:"nextLink"`
}

type metricsResponse struct {
	Value []struct {
		Name struct {
			Value string `json:"value"`
		} `json:"name"`
		Timeseries []struct {
			Data []struct {
				Average *float64 `json:"average"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"value"`
}

// GetMetrics lista os container groups e coleta as métricas de cada um
func (s *Source) GetMetrics(ctx context.Context, serviceIDs []string) ([]models.Sample, error) {
	groups, err := s.listContainerGroups(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(serviceIDs))
	for _, id := range serviceIDs {
		wanted[id] = true
	}

	now := time.Now()
	samples := make([]models.Sample, 0, len(groups))
	for _, group := range groups {
		if len(wanted) > 0 && !wanted[group.Name] {
			continue
		}

		sample, err := s.collectGroup(ctx, group, now)
		if err != nil {
			// Um grupo com métricas indisponíveis fica stale, não derruba o poll
			log.Warn().
				Err(err).
				Str("service", group.Name).
				Msg("Métricas do container group indisponíveis")
			continue
		}
		samples = append(samples, sample)
	}

	log.Debug().
		Int("groups", len(groups)).
		Int("services", len(samples)).
		Msg("Métricas coletadas do Azure")

	return samples, nil
}

func (s *Source) listContainerGroups(ctx context.Context) ([]containerGroup, error) {
	endpoint := fmt.Sprintf("%s/subscriptions/%s/providers/Microsoft.ContainerInstance/containerGroups?api-version=%s",
		s.host, s.subscription, apiVersionACI)

	var groups []containerGroup
	for endpoint != "" {
		var page containerGroupList
		if err := s.get(ctx, endpoint, &page); err != nil {
			return nil, fmt.Errorf("falha ao listar container groups: %w", err)
		}
		groups = append(groups, page.Value...)
		endpoint = page.NextLink
	}

	return groups, nil
}

// collectGroup busca as três métricas do Azure Monitor e converte para
// percentuais usando os requests de CPU/memória do grupo
func (s *Source) collectGroup(ctx context.Context, group containerGroup, now time.Time) (models.Sample, error) {
	endpoint := fmt.Sprintf("%s%s/providers/microsoft.insights/metrics?api-version=%s&metricnames=%s&aggregation=Average&timespan=%s",
		s.host, group.ID, apiVersionMon,
		url.QueryEscape("CpuUsage,MemoryUsage,NetworkBytesReceivedPerSecond"),
		url.QueryEscape(fmt.Sprintf("%s/%s",
			now.Add(-5*time.Minute).UTC().Format(time.RFC3339),
			now.UTC().Format(time.RFC3339))))

	var resp metricsResponse
	if err := s.get(ctx, endpoint, &resp); err != nil {
		return models.Sample{}, err
	}

	sample := models.Sample{
		ServiceID: group.Name,
		Timestamp: now,
	}

	var totalCores, totalGB float64
	for _, c := range group.Properties.Containers {
		totalCores += c.Properties.Resources.Requests.CPU
		totalGB += c.Properties.Resources.Requests.MemoryInGB
	}

	var gotCPU, gotMem, gotNet bool
	for _, metric := range resp.Value {
		value, ok := latestAverage(metric.Timeseries)
		if !ok {
			continue
		}

		switch metric.Name.Value {
		case "CpuUsage":
			// CpuUsage vem em millicores
			if totalCores > 0 {
				sample.CPUPct = value / 1000 / totalCores * 100
			}
			gotCPU = true
		case "MemoryUsage":
			// MemoryUsage vem em bytes
			if totalGB > 0 {
				sample.MemPct = value / (totalGB * 1024 * 1024 * 1024) * 100
			}
			gotMem = true
		case "NetworkBytesReceivedPerSecond":
			sample.NetBytesPerSec = value
			gotNet = true
		}
	}

	// Sem datapoint o grupo fica fora do poll: ausência é staleness,
	// nunca valor zero (zero de rede dispararia um scale down falso)
	if !gotCPU || !gotMem || !gotNet {
		return models.Sample{}, fmt.Errorf("sem datapoints no período (cpu=%v mem=%v net=%v)",
			gotCPU, gotMem, gotNet)
	}

	return sample, nil
}

func latestAverage(series []struct {
	Data []struct {
		Average *float64 `json:"average"`
	} `json:"data"`
}) (float64, bool) {
	for _, ts := range series {
		for i := len(ts.Data) - 1; i >= 0; i-- {
			if ts.Data[i].Average != nil {
				return *ts.Data[i].Average, true
			}
		}
	}
	return 0, false
}

func (s *Source) get(ctx context.Context, endpoint string, out interface{}) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("azure API retornou %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return json.Unmarshal(body, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
