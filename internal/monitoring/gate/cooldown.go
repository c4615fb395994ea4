package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/models"
)

// Windows janela de cooldown por tipo de ação
// Scale-up costuma ser mais curto que scale-down ("scale fast, shrink slow")
type Windows struct {
	ScaleUp    time.Duration
	ScaleDown  time.Duration
	OpenTicket time.Duration
}

func (w Windows) forKind(kind models.ActionKind) time.Duration {
	switch kind {
	case models.ActionScaleUp:
		return w.ScaleUp
	case models.ActionScaleDown:
		return w.ScaleDown
	case models.ActionOpenTicket:
		return w.OpenTicket
	default:
		// close_ticket e afins não têm janela própria
		return 0
	}
}

// CooldownGate rate-limiter compartilhado, chaveado por (serviço, tipo de ação)
//
// Allow marca a chave como in-flight quando permite, então o par
// Allow/Record é atômico mesmo com avaliações concorrentes: uma segunda
// avaliação da mesma chave é suprimida enquanto a primeira ainda despacha.
// Record confirma o dispatch e consome a janela; Release desfaz a reserva
// sem consumir a janela (dispatch falhou, pode tentar de novo).
//
// O gate mantém seu próprio mapa de chaves, independente do state store:
// um serviço stale que some e volte não zera seu cooldown.
type CooldownGate struct {
	windows Windows

	mu      sync.Mutex
	last    map[string]time.Time
	pending map[string]bool
}

// New cria um cooldown gate
func New(windows Windows) *CooldownGate {
	return &CooldownGate{
		windows: windows,
		last:    make(map[string]time.Time),
		pending: make(map[string]bool),
	}
}

func key(serviceID string, kind models.ActionKind) string {
	return fmt.Sprintf("%s/%s", serviceID, kind)
}

// Allow retorna true se a ação pode ser despachada agora
// Quem recebe true DEVE chamar Record (sucesso) ou Release (falha)
func (g *CooldownGate) Allow(serviceID string, kind models.ActionKind, now time.Time) bool {
	window := g.windows.forKind(kind)

	g.mu.Lock()
	defer g.mu.Unlock()

	k := key(serviceID, kind)

	if g.pending[k] {
		return false
	}

	if window > 0 {
		if fired, ok := g.last[k]; ok && now.Sub(fired) < window {
			remaining := window - now.Sub(fired)
			log.Debug().
				Str("service", serviceID).
				Str("kind", string(kind)).
				Dur("remaining", remaining).
				Msg("Ação suprimida por cooldown")
			return false
		}
	}

	g.pending[k] = true
	return true
}

// Record confirma o dispatch e inicia a janela de cooldown
func (g *CooldownGate) Record(serviceID string, kind models.ActionKind, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := key(serviceID, kind)
	g.last[k] = now
	delete(g.pending, k)
}

// Release libera a reserva sem consumir a janela (dispatch falhou)
func (g *CooldownGate) Release(serviceID string, kind models.ActionKind) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.pending, key(serviceID, kind))
}

// LastFired retorna quando a ação foi despachada pela última vez
func (g *CooldownGate) LastFired(serviceID string, kind models.ActionKind) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.last[key(serviceID, kind)]
	return t, ok
}
