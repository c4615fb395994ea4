package models

import (
	"fmt"
	"time"
)

// Metric identifica o recurso avaliado pelo threshold evaluator
type Metric int

const (
	MetricCPU Metric = iota
	MetricMemory
)

func (m Metric) String() string {
	switch m {
	case MetricCPU:
		return "CPU"
	case MetricMemory:
		return "RAM"
	default:
		return "Unknown"
	}
}

// Sample representa uma medição pontual de um serviço
// Imutável após criado pelo sampler
type Sample struct {
	ServiceID string
	Timestamp time.Time

	CPUPct         float64 // % (pode passar de 100 em burst)
	MemPct         float64 // %
	NetBytesPerSec float64 // throughput de rede (bytes/s)
}

// ServiceState estado mutável por serviço, mantido pelo state store
// Criado no primeiro sample observado, nunca destruído explicitamente
// (entradas de serviços ausentes são coletadas após o grace period)
type ServiceState struct {
	ServiceID string

	// Contadores de breach consecutivo (resetam ao cair abaixo do threshold)
	CPUBreaches int
	MemBreaches int

	// Quando o breach atual começou (zero se não há breach)
	CPUBreachStart time.Time
	MemBreachStart time.Time

	// Réplicas desejadas, sempre dentro de [min, max]
	DesiredReplicas int

	LastScaleAction time.Time
	LastTicket      time.Time

	// Ticket aberto por métrica (vazio = nenhum)
	OpenTickets map[Metric]string

	// Último poll em que o serviço apareceu (staleness / GC)
	LastSeenPoll uint64
}

// OpenTicket retorna o ID do ticket aberto para a métrica (vazio se nenhum)
func (s *ServiceState) OpenTicket(m Metric) string {
	if s.OpenTickets == nil {
		return ""
	}
	return s.OpenTickets[m]
}

// SetOpenTicket registra o ticket aberto para a métrica
func (s *ServiceState) SetOpenTicket(m Metric, id string) {
	if s.OpenTickets == nil {
		s.OpenTickets = make(map[Metric]string)
	}
	if id == "" {
		delete(s.OpenTickets, m)
		return
	}
	s.OpenTickets[m] = id
}

// BreachEvent emitido pelo threshold evaluator quando o contador
// atinge a janela de breach (edge-triggered, uma vez por breach sustentado)
type BreachEvent struct {
	ServiceID   string
	Metric      Metric
	Value       float64
	Threshold   float64
	FirstSeenAt time.Time
}

// ClearEvent emitido quando a métrica volta abaixo do threshold
// e existe um ticket aberto para ela
type ClearEvent struct {
	ServiceID string
	Metric    Metric
	TicketID  string
	Value     float64
}

// ScaleReason motivo de um scale intent
type ScaleReason string

const (
	ReasonLoadHigh ScaleReason = "LOAD_HIGH"
	ReasonLoadLow  ScaleReason = "LOAD_LOW"
)

// ScaleIntent decisão de scaling emitida pelo load evaluator
type ScaleIntent struct {
	ServiceID       string
	CurrentReplicas int
	TargetReplicas  int
	Reason          ScaleReason
	NetBytesPerSec  float64
}

// ActionKind tipo de ação despachável; chave de cooldown junto com o serviço
type ActionKind string

const (
	ActionScaleUp     ActionKind = "scale_up"
	ActionScaleDown   ActionKind = "scale_down"
	ActionOpenTicket  ActionKind = "open_ticket"
	ActionCloseTicket ActionKind = "close_ticket"
)

// Action ação decidida pelos evaluators, pronta para o dispatcher
// Exatamente um dos campos Intent/Breach/Clear é preenchido
type Action struct {
	Kind      ActionKind
	ServiceID string

	Intent *ScaleIntent
	Breach *BreachEvent
	Clear  *ClearEvent
}

// DispatchStatus resultado do dispatch de uma ação
type DispatchStatus int

const (
	DispatchSuccess DispatchStatus = iota
	DispatchFailure
	DispatchSuppressed // cooldown ativo ou modo monitor
)

func (s DispatchStatus) String() string {
	switch s {
	case DispatchSuccess:
		return "success"
	case DispatchFailure:
		return "failure"
	case DispatchSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// DispatchResult resultado de uma ação despachada
type DispatchResult struct {
	Action   Action
	Status   DispatchStatus
	TicketID string
	Err      error
	Attempts int
	Duration time.Duration
}

// DispatchError erro de uma chamada externa do dispatcher
// Permanent indica que retry não adianta (ex: serviço não existe)
type DispatchError struct {
	Op        string
	ServiceID string
	Permanent bool
	Err       error
}

func (e *DispatchError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s falhou para %s (%s): %v", e.Op, e.ServiceID, kind, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// NewTransientError cria um DispatchError retentável
func NewTransientError(op, serviceID string, err error) *DispatchError {
	return &DispatchError{Op: op, ServiceID: serviceID, Err: err}
}

// NewPermanentError cria um DispatchError definitivo (sem retry)
func NewPermanentError(op, serviceID string, err error) *DispatchError {
	return &DispatchError{Op: op, ServiceID: serviceID, Permanent: true, Err: err}
}
