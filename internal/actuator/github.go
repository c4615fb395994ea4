package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/models"
)

// WorkflowConfig configuração do actuator de workflow dispatch
type WorkflowConfig struct {
	Token      string // PAT com permissão de workflow
	DeployURL  string // Endpoint de dispatch do workflow de deploy
	DestroyURL string // Endpoint de dispatch do workflow de destroy
	Ref        string // Branch alvo do dispatch (default: main)
}

// WorkflowActuator escala containers disparando workflows do GitHub Actions
//
// O actuator é direcional: subir réplicas dispara o workflow de deploy,
// descer dispara o de destroy, um passo por chamada. O workflow em si
// decide qual instância criar ou destruir
type WorkflowActuator struct {
	config     WorkflowConfig
	httpClient *http.Client
}

// NewWorkflowActuator cria o actuator
func NewWorkflowActuator(config WorkflowConfig) (*WorkflowActuator, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("token do GitHub não configurado")
	}
	if config.DeployURL == "" || config.DestroyURL == "" {
		return nil, fmt.Errorf("URLs de deploy/destroy não configuradas")
	}
	if config.Ref == "" {
		config.Ref = "main"
	}

	log.Info().
		Str("ref", config.Ref).
		Msg("GitHub workflow actuator criado")

	return &WorkflowActuator{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// SetReplicas dispara o workflow adequado à direção do ajuste
func (a *WorkflowActuator) SetReplicas(ctx context.Context, serviceID string, current, target int) error {
	switch {
	case target == current:
		return nil

	case target < 1:
		// Nunca destrói a última instância
		return models.NewPermanentError("scale", serviceID,
			fmt.Errorf("destruir a última instância não é permitido (target=%d)", target))

	case target > current:
		return a.dispatch(ctx, serviceID, a.config.DeployURL, "deploy", target)

	default:
		return a.dispatch(ctx, serviceID, a.config.DestroyURL, "destroy", target)
	}
}

func (a *WorkflowActuator) dispatch(ctx context.Context, serviceID, endpoint, kind string, target int) error {
	payload, err := json.Marshal(map[string]interface{}{
		"ref": a.config.Ref,
		"inputs": map[string]string{
			"service":  serviceID,
			"replicas": fmt.Sprintf("%d", target),
		},
	})
	if err != nil {
		return models.NewPermanentError("scale", serviceID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.NewPermanentError("scale", serviceID, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return models.NewTransientError("scale", serviceID, err)
	}
	defer resp.Body.Close()

	// Workflow dispatch responde 204 sem corpo
	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("dispatch de %s retornou %d: %s", kind, resp.StatusCode, string(body))

		// 4xx não melhora com retry (token inválido, workflow inexistente)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return models.NewPermanentError("scale", serviceID, err)
		}
		return models.NewTransientError("scale", serviceID, err)
	}

	log.Info().
		Str("service", serviceID).
		Str("workflow", kind).
		Int("target", target).
		Msg("Workflow disparado")

	return nil
}
