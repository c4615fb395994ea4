package storage

import (
	"sync"

	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/models"
)

// StateStore estado por serviço em memória, com lock por entrada
// para evitar contenção entre serviços independentes
type StateStore struct {
	mu      sync.RWMutex
	entries map[string]*entry

	minReplicas int
	persistence *Persistence // opcional (SQLite)
}

type entry struct {
	mu    sync.Mutex
	state models.ServiceState
}

// NewStateStore cria um state store vazio
// minReplicas é o valor inicial de réplicas desejadas de serviços novos
func NewStateStore(minReplicas int) *StateStore {
	return &StateStore{
		entries:     make(map[string]*entry),
		minReplicas: minReplicas,
	}
}

// SetPersistence configura persistência SQLite e restaura estado salvo
func (s *StateStore) SetPersistence(p *Persistence) {
	s.mu.Lock()
	s.persistence = p
	s.mu.Unlock()

	if p == nil || !p.config.Enabled {
		return
	}

	states, err := p.LoadStates()
	if err != nil {
		log.Warn().Err(err).Msg("Falha ao restaurar estado persistido")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		if _, exists := s.entries[st.ServiceID]; !exists {
			s.entries[st.ServiceID] = &entry{state: st}
		}
	}

	if len(states) > 0 {
		log.Info().
			Int("services", len(states)).
			Msg("Estado restaurado do SQLite")
	}
}

func (s *StateStore) ensure(serviceID string, currentPoll uint64) *entry {
	s.mu.RLock()
	e, exists := s.entries[serviceID]
	s.mu.RUnlock()
	if exists {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Revalida depois de trocar o lock
	if e, exists = s.entries[serviceID]; exists {
		return e
	}

	e = &entry{state: models.ServiceState{
		ServiceID:       serviceID,
		DesiredReplicas: s.minReplicas,
		LastSeenPoll:    currentPoll,
	}}
	s.entries[serviceID] = e

	log.Debug().
		Str("service", serviceID).
		Int("desired_replicas", s.minReplicas).
		Msg("Novo serviço rastreado")

	return e
}

// Update executa fn com lock exclusivo sobre o estado do serviço
// Cria a entrada se não existir (primeiro sample observado)
func (s *StateStore) Update(serviceID string, currentPoll uint64, fn func(*models.ServiceState)) {
	e := s.ensure(serviceID, currentPoll)

	e.mu.Lock()
	fn(&e.state)
	snapshot := e.state
	snapshot.OpenTickets = copyTickets(e.state.OpenTickets)
	e.mu.Unlock()

	// Persiste async para não segurar o lock durante I/O
	s.mu.RLock()
	p := s.persistence
	s.mu.RUnlock()
	if p != nil && p.config.Enabled {
		go func(st models.ServiceState) {
			if err := p.SaveState(&st); err != nil {
				log.Warn().
					Err(err).
					Str("service", st.ServiceID).
					Msg("Falha ao persistir estado")
			}
		}(snapshot)
	}
}

// View executa fn com uma cópia do estado do serviço
// Retorna false se o serviço não é rastreado
func (s *StateStore) View(serviceID string, fn func(models.ServiceState)) bool {
	s.mu.RLock()
	e, exists := s.entries[serviceID]
	s.mu.RUnlock()
	if !exists {
		return false
	}

	e.mu.Lock()
	snapshot := e.state
	snapshot.OpenTickets = copyTickets(e.state.OpenTickets)
	e.mu.Unlock()

	fn(snapshot)
	return true
}

// Snapshot retorna cópia do estado de todos os serviços
func (s *StateStore) Snapshot() []models.ServiceState {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	result := make([]models.ServiceState, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		st := e.state
		st.OpenTickets = copyTickets(e.state.OpenTickets)
		e.mu.Unlock()
		result = append(result, st)
	}
	return result
}

// Len retorna quantos serviços são rastreados
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// RemoveStale remove entradas sem samples há mais de gracePolls polls
// Chamado pelo engine a cada ciclo; o grace period evita descartar
// estado (tickets abertos, réplicas) de serviços com ausência curta
func (s *StateStore) RemoveStale(currentPoll uint64, gracePolls int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		e.mu.Lock()
		lastSeen := e.state.LastSeenPoll
		e.mu.Unlock()

		if currentPoll > lastSeen && currentPoll-lastSeen > uint64(gracePolls) {
			delete(s.entries, id)
			removed++
			log.Info().
				Str("service", id).
				Uint64("last_seen_poll", lastSeen).
				Msg("Serviço ausente removido do state store")

			if s.persistence != nil && s.persistence.config.Enabled {
				go func(serviceID string) {
					if err := s.persistence.DeleteState(serviceID); err != nil {
						log.Warn().Err(err).Str("service", serviceID).Msg("Falha ao remover estado persistido")
					}
				}(id)
			}
		}
	}

	return removed
}

func copyTickets(m map[models.Metric]string) map[models.Metric]string {
	if m == nil {
		return nil
	}
	out := make(map[models.Metric]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
