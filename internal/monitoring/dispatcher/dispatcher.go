package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/gate"
	"container-autopilot/internal/monitoring/models"
	"container-autopilot/internal/monitoring/storage"
)

// ContainerActuator escala instâncias de um serviço
// SetReplicas deve ser idempotente: current == target é no-op de sucesso.
// Current é passado porque atuadores direcionais (workflow dispatch)
// precisam saber se a ação é deploy ou destroy
type ContainerActuator interface {
	SetReplicas(ctx context.Context, serviceID string, current, target int) error
}

// TicketingSystem abre e fecha tickets de incidente
type TicketingSystem interface {
	CreateTicket(ctx context.Context, serviceID string, metric models.Metric, value, threshold float64) (string, error)
	CloseTicket(ctx context.Context, ticketID string) error
}

// Notifier reporta ações e falhas (Pushover, log, etc)
type Notifier interface {
	Notify(ctx context.Context, title, message string, priority int)
}

// Config configuração do dispatcher
type Config struct {
	MaxRetries   int           // Retries para falhas transientes (default: 2)
	RetryBackoff time.Duration // Backoff base entre tentativas (default: 2s)
	CallTimeout  time.Duration // Timeout por chamada externa (default: 10s)
	MonitorOnly  bool          // Loga decisões sem atuar (flag -m do monitor)
}

// Dispatcher envia ações decididas para os atuadores externos
//
// Cada ação é despachada de forma independente: falha de um serviço não
// bloqueia os outros no mesmo ciclo. Estado e cooldown só mudam após
// confirmação do collaborator (confirmation-gated) para não haver drift
// em falha parcial
type Dispatcher struct {
	actuator ContainerActuator
	tickets  TicketingSystem
	notifier Notifier
	store    *storage.StateStore
	gate     *gate.CooldownGate
	config   Config
}

// New cria um dispatcher
func New(actuator ContainerActuator, tickets TicketingSystem, notifier Notifier,
	store *storage.StateStore, g *gate.CooldownGate, config Config) *Dispatcher {

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 2 * time.Second
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 10 * time.Second
	}

	return &Dispatcher{
		actuator: actuator,
		tickets:  tickets,
		notifier: notifier,
		store:    store,
		gate:     g,
		config:   config,
	}
}

// Dispatch executa uma ação, com cooldown gate e retries
// currentPoll é usado para criar estado de serviços novos no store
func (d *Dispatcher) Dispatch(ctx context.Context, action models.Action, currentPoll uint64) models.DispatchResult {
	start := time.Now()
	result := models.DispatchResult{Action: action}

	// Cooldown check: se permitido, a chave fica reservada até
	// Record (sucesso) ou Release (falha)
	if !d.gate.Allow(action.ServiceID, action.Kind, start) {
		result.Status = models.DispatchSuppressed
		return result
	}

	if d.config.MonitorOnly {
		d.gate.Release(action.ServiceID, action.Kind)
		log.Info().
			Str("service", action.ServiceID).
			Str("kind", string(action.Kind)).
			Msg("Modo monitor: ação seria despachada")
		result.Status = models.DispatchSuppressed
		result.Duration = time.Since(start)
		return result
	}

	var err error
	switch action.Kind {
	case models.ActionScaleUp, models.ActionScaleDown:
		err = d.dispatchScale(ctx, action, currentPoll, &result)
	case models.ActionOpenTicket:
		err = d.dispatchOpenTicket(ctx, action, currentPoll, &result)
	case models.ActionCloseTicket:
		err = d.dispatchCloseTicket(ctx, action, currentPoll, &result)
	default:
		err = fmt.Errorf("tipo de ação desconhecido: %s", action.Kind)
	}

	result.Duration = time.Since(start)

	if err != nil {
		d.gate.Release(action.ServiceID, action.Kind)
		result.Status = models.DispatchFailure
		result.Err = err

		log.Error().
			Err(err).
			Str("service", action.ServiceID).
			Str("kind", string(action.Kind)).
			Int("attempts", result.Attempts).
			Msg("Dispatch falhou")

		d.notify(ctx, fmt.Sprintf("Falha: %s", action.Kind),
			fmt.Sprintf("Ação %s para %s falhou: %v", action.Kind, action.ServiceID, err), 2)
		return result
	}

	d.gate.Record(action.ServiceID, action.Kind, time.Now())
	result.Status = models.DispatchSuccess
	return result
}

// dispatchScale aplica um scale intent no atuador e, confirmado,
// atualiza réplicas desejadas no estado
func (d *Dispatcher) dispatchScale(ctx context.Context, action models.Action, currentPoll uint64, result *models.DispatchResult) error {
	intent := action.Intent
	if intent == nil {
		return fmt.Errorf("ação de scale sem intent")
	}

	err := d.withRetries(ctx, result, func(callCtx context.Context) error {
		return d.actuator.SetReplicas(callCtx, intent.ServiceID, intent.CurrentReplicas, intent.TargetReplicas)
	})
	if err != nil {
		return err
	}

	now := time.Now()
	d.store.Update(intent.ServiceID, currentPoll, func(st *models.ServiceState) {
		st.DesiredReplicas = intent.TargetReplicas
		st.LastScaleAction = now
	})

	log.Info().
		Str("service", intent.ServiceID).
		Int("from", intent.CurrentReplicas).
		Int("to", intent.TargetReplicas).
		Str("reason", string(intent.Reason)).
		Float64("net_bytes_per_sec", intent.NetBytesPerSec).
		Msg("Serviço escalado")

	verb := "aumentado"
	if intent.Reason == models.ReasonLoadLow {
		verb = "reduzido"
	}
	d.notify(ctx, "Scaling aplicado",
		fmt.Sprintf("Serviço %s %s de %d para %d réplicas (%s)",
			intent.ServiceID, verb, intent.CurrentReplicas, intent.TargetReplicas, intent.Reason), 1)

	return nil
}

// dispatchOpenTicket abre ticket para um breach, respeitando o invariante
// de no máximo um ticket aberto por (serviço, métrica)
func (d *Dispatcher) dispatchOpenTicket(ctx context.Context, action models.Action, currentPoll uint64, result *models.DispatchResult) error {
	breach := action.Breach
	if breach == nil {
		return fmt.Errorf("ação de ticket sem breach event")
	}

	// Guarda de duplicidade: enquanto houver ticket aberto, abrir é no-op
	var existing string
	d.store.View(breach.ServiceID, func(st models.ServiceState) {
		existing = st.OpenTicket(breach.Metric)
	})
	if existing != "" {
		log.Debug().
			Str("service", breach.ServiceID).
			Str("metric", breach.Metric.String()).
			Str("ticket_id", existing).
			Msg("Ticket já aberto, não duplica")
		result.TicketID = existing
		return nil
	}

	var ticketID string
	err := d.withRetries(ctx, result, func(callCtx context.Context) error {
		id, err := d.tickets.CreateTicket(callCtx, breach.ServiceID, breach.Metric, breach.Value, breach.Threshold)
		if err != nil {
			return err
		}
		ticketID = id
		return nil
	})
	if err != nil {
		return err
	}

	now := time.Now()
	d.store.Update(breach.ServiceID, currentPoll, func(st *models.ServiceState) {
		st.SetOpenTicket(breach.Metric, ticketID)
		st.LastTicket = now
	})
	result.TicketID = ticketID

	log.Info().
		Str("service", breach.ServiceID).
		Str("metric", breach.Metric.String()).
		Float64("value", breach.Value).
		Str("ticket_id", ticketID).
		Msg("Ticket aberto")

	d.notify(ctx, fmt.Sprintf("Alerta %s", breach.Metric),
		fmt.Sprintf("Uso de %s em %s: %.1f%% (threshold %.1f%%), ticket %s",
			breach.Metric, breach.ServiceID, breach.Value, breach.Threshold, ticketID), 1)

	return nil
}

// dispatchCloseTicket fecha o ticket e, confirmado, limpa o ID no estado
func (d *Dispatcher) dispatchCloseTicket(ctx context.Context, action models.Action, currentPoll uint64, result *models.DispatchResult) error {
	clear := action.Clear
	if clear == nil {
		return fmt.Errorf("ação de fechamento sem clear event")
	}

	err := d.withRetries(ctx, result, func(callCtx context.Context) error {
		return d.tickets.CloseTicket(callCtx, clear.TicketID)
	})
	if err != nil {
		return err
	}

	d.store.Update(clear.ServiceID, currentPoll, func(st *models.ServiceState) {
		st.SetOpenTicket(clear.Metric, "")
	})
	result.TicketID = clear.TicketID

	log.Info().
		Str("service", clear.ServiceID).
		Str("metric", clear.Metric.String()).
		Str("ticket_id", clear.TicketID).
		Msg("Ticket fechado")

	return nil
}

// withRetries executa a chamada externa com timeout e retries limitados
// Falhas permanentes (DispatchError.Permanent) não são retentadas
func (d *Dispatcher) withRetries(ctx context.Context, result *models.DispatchResult, call func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := d.config.RetryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		result.Attempts++

		callCtx, cancel := context.WithTimeout(ctx, d.config.CallTimeout)
		err := call(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		var de *models.DispatchError
		if errors.As(err, &de) && de.Permanent {
			// Retry não adianta, reporta direto
			return err
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", d.config.MaxRetries+1).
			Msg("Chamada externa falhou, tentando de novo")
	}

	return lastErr
}

func (d *Dispatcher) notify(ctx context.Context, title, message string, priority int) {
	if d.notifier == nil {
		return
	}
	d.notifier.Notify(ctx, title, message, priority)
}
