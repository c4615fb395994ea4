package ticketing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/models"
)

// ZammadConfig configuração do client Zammad
type ZammadConfig struct {
	BaseURL  string // Ex: https://helpdesk.example.com
	Token    string // Token de acesso da API
	Customer string // Email do customer dos tickets
	Group    string // Grupo de destino (default: Users)
}

// Zammad client para o helpdesk Zammad
// Implementa dispatcher.TicketingSystem
type Zammad struct {
	config     ZammadConfig
	httpClient *http.Client
}

// NewZammad cria o client
func NewZammad(config ZammadConfig) (*Zammad, error) {
	if config.BaseURL == "" || config.Token == "" {
		return nil, fmt.Errorf("URL ou token do Zammad não configurados")
	}
	if config.Group == "" {
		config.Group = "Users"
	}

	log.Info().
		Str("url", config.BaseURL).
		Msg("Zammad client criado")

	return &Zammad{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// CreateTicket abre um ticket de incidente para o breach
// Antes de criar, busca por ticket aberto com o mesmo título para não
// duplicar caso o estado local tenha sido perdido (restart sem SQLite)
func (z *Zammad) CreateTicket(ctx context.Context, serviceID string, metric models.Metric, value, threshold float64) (string, error) {
	title := ticketTitle(serviceID, metric)

	if id, err := z.findOpenTicket(ctx, title); err != nil {
		log.Warn().Err(err).Msg("Busca de ticket existente falhou, criando mesmo assim")
	} else if id != "" {
		log.Info().
			Str("service", serviceID).
			Str("ticket_id", id).
			Msg("Ticket aberto já existia no Zammad, reutilizando")
		return id, nil
	}

	body := fmt.Sprintf(
		"Uso de %s em %s está em %.1f%% (limite: %.1f%%) há vários ciclos consecutivos.\n\n"+
			"Ticket aberto automaticamente pelo container-autopilot.",
		metric, serviceID, value, threshold)

	payload, err := json.Marshal(map[string]interface{}{
		"title":    title,
		"group":    z.config.Group,
		"customer": z.config.Customer,
		"article": map[string]interface{}{
			"subject":      title,
			"body":         body,
			"type":         "note",
			"internal":     false,
			"content_type": "text/plain",
		},
	})
	if err != nil {
		return "", models.NewPermanentError("create_ticket", serviceID, err)
	}

	var created struct {
		ID int `json:"id"`
	}
	if err := z.do(ctx, http.MethodPost, "/api/v1/tickets", payload, &created, serviceID, "create_ticket"); err != nil {
		return "", err
	}

	return strconv.Itoa(created.ID), nil
}

// CloseTicket fecha o ticket no Zammad
func (z *Zammad) CloseTicket(ctx context.Context, ticketID string) error {
	payload, err := json.Marshal(map[string]string{
		"state": "closed",
	})
	if err != nil {
		return models.NewPermanentError("close_ticket", ticketID, err)
	}

	return z.do(ctx, http.MethodPut, "/api/v1/tickets/"+ticketID, payload, nil, ticketID, "close_ticket")
}

// findOpenTicket busca ticket aberto com o título exato
func (z *Zammad) findOpenTicket(ctx context.Context, title string) (string, error) {
	query := url.QueryEscape(fmt.Sprintf(`title:"%s" AND state.name:(new OR open)`, title))

	var results struct {
		Tickets []int `json:"tickets"`
	}
	err := z.do(ctx, http.MethodGet, "/api/v1/tickets/search?query="+query+"&limit=1", nil, &results, "", "search_ticket")
	if err != nil {
		return "", err
	}

	if len(results.Tickets) == 0 {
		return "", nil
	}
	return strconv.Itoa(results.Tickets[0]), nil
}

func (z *Zammad) do(ctx context.Context, method, path string, payload []byte, out interface{}, subject, op string) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, z.config.BaseURL+path, body)
	if err != nil {
		return models.NewPermanentError(op, subject, err)
	}
	req.Header.Set("Authorization", "Token token="+z.config.Token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return models.NewTransientError(op, subject, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NewTransientError(op, subject, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := fmt.Errorf("zammad retornou %d: %s", resp.StatusCode, truncate(string(data), 200))
		// 401/403/422 não melhoram com retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return models.NewPermanentError(op, subject, reqErr)
		}
		return models.NewTransientError(op, subject, reqErr)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return models.NewPermanentError(op, subject, fmt.Errorf("resposta inválida: %w", err))
		}
	}

	return nil
}

// Disabled ticketing desligado (Zammad não configurado)
// Breaches continuam sendo detectados e logados, só não viram ticket
type Disabled struct{}

// CreateTicket loga o breach e não cria nada
func (Disabled) CreateTicket(ctx context.Context, serviceID string, metric models.Metric, value, threshold float64) (string, error) {
	log.Warn().
		Str("service", serviceID).
		Str("metric", metric.String()).
		Float64("value", value).
		Msg("Ticketing desabilitado, breach apenas registrado")
	return "", nil
}

// CloseTicket não faz nada
func (Disabled) CloseTicket(ctx context.Context, ticketID string) error {
	return nil
}

func ticketTitle(serviceID string, metric models.Metric) string {
	return fmt.Sprintf("[autopilot] Uso alto de %s em %s", metric, serviceID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
