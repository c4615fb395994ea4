package gate

import (
	"testing"
	"time"

	"container-autopilot/internal/monitoring/models"
)

func testWindows() Windows {
	return Windows{
		ScaleUp:    5 * time.Minute,
		ScaleDown:  10 * time.Minute,
		OpenTicket: 15 * time.Minute,
	}
}

// TestAllowRecordWindow testa o ciclo básico: permitir, confirmar, suprimir
func TestAllowRecordWindow(t *testing.T) {
	g := New(testWindows())
	now := time.Now()

	if !g.Allow("web-01", models.ActionScaleUp, now) {
		t.Fatal("first Allow should pass")
	}
	g.Record("web-01", models.ActionScaleUp, now)

	// Dentro da janela: suprimido
	if g.Allow("web-01", models.ActionScaleUp, now.Add(4*time.Minute)) {
		t.Error("Allow inside the window should be suppressed")
	}

	// Depois da janela: permitido de novo
	if !g.Allow("web-01", models.ActionScaleUp, now.Add(6*time.Minute)) {
		t.Error("Allow after the window should pass")
	}
}

// TestPendingBlocksConcurrentAllow testa que a reserva in-flight impede
// um segundo dispatch concorrente da mesma chave
func TestPendingBlocksConcurrentAllow(t *testing.T) {
	g := New(testWindows())
	now := time.Now()

	if !g.Allow("web-01", models.ActionScaleUp, now) {
		t.Fatal("first Allow should pass")
	}

	// Sem Record/Release ainda: segunda tentativa bloqueada
	if g.Allow("web-01", models.ActionScaleUp, now) {
		t.Error("Allow while pending should be suppressed")
	}
}

// TestReleaseDoesNotConsumeWindow testa que falha de dispatch não gasta
// a janela de cooldown
func TestReleaseDoesNotConsumeWindow(t *testing.T) {
	g := New(testWindows())
	now := time.Now()

	if !g.Allow("web-01", models.ActionScaleUp, now) {
		t.Fatal("first Allow should pass")
	}
	g.Release("web-01", models.ActionScaleUp)

	// Mesmo instante: permitido de novo, a janela não foi consumida
	if !g.Allow("web-01", models.ActionScaleUp, now) {
		t.Error("Allow after Release should pass immediately")
	}
}

// TestKeysAreIndependent testa que serviços e tipos de ação não
// compartilham cooldown
func TestKeysAreIndependent(t *testing.T) {
	g := New(testWindows())
	now := time.Now()

	g.Allow("web-01", models.ActionScaleUp, now)
	g.Record("web-01", models.ActionScaleUp, now)

	// Outro serviço, mesma ação
	if !g.Allow("web-02", models.ActionScaleUp, now) {
		t.Error("different service should not share cooldown")
	}

	// Mesmo serviço, outra ação
	if !g.Allow("web-01", models.ActionScaleDown, now) {
		t.Error("different action kind should not share cooldown")
	}
}

// TestCloseTicketHasNoWindow testa que fechar ticket nunca fica em cooldown
func TestCloseTicketHasNoWindow(t *testing.T) {
	g := New(testWindows())
	now := time.Now()

	g.Allow("web-01", models.ActionCloseTicket, now)
	g.Record("web-01", models.ActionCloseTicket, now)

	if !g.Allow("web-01", models.ActionCloseTicket, now) {
		t.Error("close_ticket should never be window-suppressed")
	}
}

// TestLastFired testa a consulta do último dispatch
func TestLastFired(t *testing.T) {
	g := New(testWindows())
	now := time.Now()

	if _, ok := g.LastFired("web-01", models.ActionScaleUp); ok {
		t.Error("LastFired before any Record should be false")
	}

	g.Allow("web-01", models.ActionScaleUp, now)
	g.Record("web-01", models.ActionScaleUp, now)

	fired, ok := g.LastFired("web-01", models.ActionScaleUp)
	if !ok || !fired.Equal(now) {
		t.Errorf("expected LastFired %v, got %v (ok=%v)", now, fired, ok)
	}
}
