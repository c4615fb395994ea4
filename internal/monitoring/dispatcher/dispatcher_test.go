package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"container-autopilot/internal/monitoring/gate"
	"container-autopilot/internal/monitoring/models"
	"container-autopilot/internal/monitoring/storage"
)

// fakeActuator atuador controlável para os testes
type fakeActuator struct {
	calls []int // targets recebidos
	errs  []error
}

func (f *fakeActuator) SetReplicas(ctx context.Context, serviceID string, current, target int) error {
	f.calls = append(f.calls, target)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

// fakeTickets sistema de tickets controlável
type fakeTickets struct {
	created   int
	closed    []string
	createErr error
	closeErr  error
	nextID    string
}

func (f *fakeTickets) CreateTicket(ctx context.Context, serviceID string, metric models.Metric, value, threshold float64) (string, error) {
	f.created++
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.nextID == "" {
		return "T-1", nil
	}
	return f.nextID, nil
}

func (f *fakeTickets) CloseTicket(ctx context.Context, ticketID string) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closed = append(f.closed, ticketID)
	return nil
}

type fakeNotifier struct {
	titles []string
}

func (f *fakeNotifier) Notify(ctx context.Context, title, message string, priority int) {
	f.titles = append(f.titles, title)
}

func testGate() *gate.CooldownGate {
	return gate.New(gate.Windows{
		ScaleUp:    5 * time.Minute,
		ScaleDown:  10 * time.Minute,
		OpenTicket: 15 * time.Minute,
	})
}

func fastConfig() Config {
	return Config{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		CallTimeout:  time.Second,
	}
}

func scaleUpAction(target int) models.Action {
	return models.Action{
		Kind:      models.ActionScaleUp,
		ServiceID: "web-01",
		Intent: &models.ScaleIntent{
			ServiceID:       "web-01",
			CurrentReplicas: target - 1,
			TargetReplicas:  target,
			Reason:          models.ReasonLoadHigh,
		},
	}
}

func openTicketAction() models.Action {
	return models.Action{
		Kind:      models.ActionOpenTicket,
		ServiceID: "web-01",
		Breach: &models.BreachEvent{
			ServiceID: "web-01",
			Metric:    models.MetricCPU,
			Value:     92,
			Threshold: 80,
		},
	}
}

// TestScaleSuccessUpdatesStateAndCooldown testa o caminho feliz de scaling
func TestScaleSuccessUpdatesStateAndCooldown(t *testing.T) {
	act := &fakeActuator{}
	store := storage.NewStateStore(1)
	g := testGate()
	d := New(act, &fakeTickets{}, nil, store, g, fastConfig())

	result := d.Dispatch(context.Background(), scaleUpAction(3), 1)

	if result.Status != models.DispatchSuccess {
		t.Fatalf("expected success, got %s (%v)", result.Status, result.Err)
	}
	if len(act.calls) != 1 || act.calls[0] != 3 {
		t.Errorf("expected one actuator call with target 3, got %v", act.calls)
	}

	// Estado confirmado só após o atuador responder
	store.View("web-01", func(st models.ServiceState) {
		if st.DesiredReplicas != 3 {
			t.Errorf("expected desired replicas 3, got %d", st.DesiredReplicas)
		}
		if st.LastScaleAction.IsZero() {
			t.Error("expected LastScaleAction recorded")
		}
	})

	// Cooldown consumido: segunda ação suprimida
	result = d.Dispatch(context.Background(), scaleUpAction(4), 1)
	if result.Status != models.DispatchSuppressed {
		t.Errorf("expected suppression inside cooldown, got %s", result.Status)
	}
	if len(act.calls) != 1 {
		t.Errorf("suppressed action must not reach the actuator, got %v", act.calls)
	}
}

// TestScaleFailureLeavesStateUntouched testa que falha não muda estado
// nem consome cooldown
func TestScaleFailureLeavesStateUntouched(t *testing.T) {
	act := &fakeActuator{errs: []error{
		errors.New("boom"), errors.New("boom"), errors.New("boom"),
	}}
	store := storage.NewStateStore(1)
	g := testGate()
	notifier := &fakeNotifier{}
	d := New(act, &fakeTickets{}, notifier, store, g, fastConfig())

	result := d.Dispatch(context.Background(), scaleUpAction(3), 1)

	if result.Status != models.DispatchFailure {
		t.Fatalf("expected failure, got %s", result.Status)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", result.Attempts)
	}

	store.View("web-01", func(st models.ServiceState) {
		if st.DesiredReplicas != 1 {
			t.Errorf("failed dispatch must not change replicas, got %d", st.DesiredReplicas)
		}
	})

	// Cooldown liberado: próxima tentativa passa
	act.errs = nil
	result = d.Dispatch(context.Background(), scaleUpAction(3), 2)
	if result.Status != models.DispatchSuccess {
		t.Errorf("expected retry after failure to pass the gate, got %s", result.Status)
	}

	if len(notifier.titles) == 0 {
		t.Error("expected failure notification")
	}
}

// TestPermanentErrorSkipsRetries testa que erro permanente não é retentado
func TestPermanentErrorSkipsRetries(t *testing.T) {
	permanent := models.NewPermanentError("scale", "web-01", errors.New("no such deployment"))
	act := &fakeActuator{errs: []error{permanent}}
	d := New(act, &fakeTickets{}, nil, storage.NewStateStore(1), testGate(), fastConfig())

	result := d.Dispatch(context.Background(), scaleUpAction(2), 1)

	if result.Status != models.DispatchFailure {
		t.Fatalf("expected failure, got %s", result.Status)
	}
	if result.Attempts != 1 {
		t.Errorf("permanent error must not be retried, got %d attempts", result.Attempts)
	}
}

// TestOpenTicketStoresID testa abertura de ticket e registro do ID
func TestOpenTicketStoresID(t *testing.T) {
	tickets := &fakeTickets{nextID: "T-42"}
	store := storage.NewStateStore(1)
	d := New(&fakeActuator{}, tickets, nil, store, testGate(), fastConfig())

	result := d.Dispatch(context.Background(), openTicketAction(), 1)

	if result.Status != models.DispatchSuccess {
		t.Fatalf("expected success, got %s (%v)", result.Status, result.Err)
	}
	if result.TicketID != "T-42" {
		t.Errorf("expected ticket T-42, got %q", result.TicketID)
	}

	store.View("web-01", func(st models.ServiceState) {
		if st.OpenTicket(models.MetricCPU) != "T-42" {
			t.Errorf("expected ticket stored, got %q", st.OpenTicket(models.MetricCPU))
		}
	})
}

// TestOpenTicketIsIdempotent testa que ticket já aberto não duplica
func TestOpenTicketIsIdempotent(t *testing.T) {
	tickets := &fakeTickets{}
	store := storage.NewStateStore(1)
	store.Update("web-01", 1, func(st *models.ServiceState) {
		st.SetOpenTicket(models.MetricCPU, "T-old")
	})

	// Janela zerada para o cooldown não interferir no teste
	g := gate.New(gate.Windows{})
	d := New(&fakeActuator{}, tickets, nil, store, g, fastConfig())

	result := d.Dispatch(context.Background(), openTicketAction(), 1)

	if result.Status != models.DispatchSuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}
	if tickets.created != 0 {
		t.Errorf("existing ticket must suppress creation, got %d creates", tickets.created)
	}
	if result.TicketID != "T-old" {
		t.Errorf("expected existing ticket id, got %q", result.TicketID)
	}
}

// TestCloseTicketClearsIDOnlyOnSuccess testa o fechamento confirmado
func TestCloseTicketClearsIDOnlyOnSuccess(t *testing.T) {
	tickets := &fakeTickets{closeErr: errors.New("zammad down")}
	store := storage.NewStateStore(1)
	store.Update("web-01", 1, func(st *models.ServiceState) {
		st.SetOpenTicket(models.MetricCPU, "T-9")
	})
	d := New(&fakeActuator{}, tickets, nil, store, testGate(), fastConfig())

	action := models.Action{
		Kind:      models.ActionCloseTicket,
		ServiceID: "web-01",
		Clear: &models.ClearEvent{
			ServiceID: "web-01",
			Metric:    models.MetricCPU,
			TicketID:  "T-9",
		},
	}

	// Fechamento falha: ID permanece para retry futuro
	result := d.Dispatch(context.Background(), action, 1)
	if result.Status != models.DispatchFailure {
		t.Fatalf("expected failure, got %s", result.Status)
	}
	store.View("web-01", func(st models.ServiceState) {
		if st.OpenTicket(models.MetricCPU) != "T-9" {
			t.Error("ticket id must survive a failed close")
		}
	})

	// Fechamento confirma: ID limpo
	tickets.closeErr = nil
	result = d.Dispatch(context.Background(), action, 2)
	if result.Status != models.DispatchSuccess {
		t.Fatalf("expected success, got %s (%v)", result.Status, result.Err)
	}
	store.View("web-01", func(st models.ServiceState) {
		if st.OpenTicket(models.MetricCPU) != "" {
			t.Error("ticket id must be cleared after confirmed close")
		}
	})
	if len(tickets.closed) != 1 || tickets.closed[0] != "T-9" {
		t.Errorf("expected close of T-9, got %v", tickets.closed)
	}
}

// TestMonitorOnlySuppressesEverything testa o modo monitor
func TestMonitorOnlySuppressesEverything(t *testing.T) {
	act := &fakeActuator{}
	tickets := &fakeTickets{}
	store := storage.NewStateStore(1)
	g := testGate()

	config := fastConfig()
	config.MonitorOnly = true
	d := New(act, tickets, nil, store, g, config)

	result := d.Dispatch(context.Background(), scaleUpAction(3), 1)
	if result.Status != models.DispatchSuppressed {
		t.Fatalf("expected suppression in monitor mode, got %s", result.Status)
	}
	if len(act.calls) != 0 {
		t.Error("monitor mode must not call the actuator")
	}

	result = d.Dispatch(context.Background(), openTicketAction(), 1)
	if result.Status != models.DispatchSuppressed {
		t.Fatalf("expected suppression in monitor mode, got %s", result.Status)
	}
	if tickets.created != 0 {
		t.Error("monitor mode must not create tickets")
	}

	// Estado e cooldown intocados
	if store.View("web-01", func(models.ServiceState) {}) {
		t.Error("monitor mode must not create state entries")
	}
	if !g.Allow("web-01", models.ActionScaleUp, time.Now()) {
		t.Error("monitor mode must not consume cooldown windows")
	}
}
