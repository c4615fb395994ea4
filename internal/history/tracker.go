package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/models"
)

// Entry uma ação despachada, registrada para consulta posterior
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`  // scale_up, scale_down, open_ticket, close_ticket
	Service   string    `json:"service"` // ID do serviço
	Status    string    `json:"status"`  // success, failure, suppressed
	TicketID  string    `json:"ticket_id,omitempty"`
	Replicas  int       `json:"replicas,omitempty"` // Alvo de réplicas (ações de scale)
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Duration  int64     `json:"duration_ms"`
	Attempts  int       `json:"attempts"`
}

// Tracker mantém o histórico de ações em memória com espelho em JSON
// Um arquivo por entrada, organizados por ano/mês
type Tracker struct {
	mutex      sync.RWMutex
	entries    []Entry
	historyDir string
	maxEntries int
}

// NewTracker cria o tracker e carrega o histórico recente do disco
func NewTracker(baseDir string) (*Tracker, error) {
	historyDir := filepath.Join(baseDir, "history")

	if err := os.MkdirAll(historyDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	tracker := &Tracker{
		entries:    make([]Entry, 0),
		historyDir: historyDir,
		maxEntries: 1000,
	}

	if err := tracker.loadFromDisk(); err != nil {
		log.Warn().Err(err).Msg("Não foi possível carregar histórico existente")
	}

	return tracker, nil
}

// Record converte um resultado de dispatch em entrada de histórico
func (t *Tracker) Record(result models.DispatchResult) {
	entry := Entry{
		Action:   string(result.Action.Kind),
		Service:  result.Action.ServiceID,
		Status:   result.Status.String(),
		TicketID: result.TicketID,
		Duration: result.Duration.Milliseconds(),
		Attempts: result.Attempts,
	}
	if result.Action.Intent != nil {
		entry.Replicas = result.Action.Intent.TargetReplicas
	}
	if result.Err != nil {
		entry.ErrorMsg = result.Err.Error()
	}

	t.Log(entry)
}

// Consume grava resultados do canal até ele ser fechado
// O canal retornado fecha quando o dreno termina, para o shutdown
// esperar os resultados ainda em buffer
func (t *Tracker) Consume(results <-chan models.DispatchResult) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for result := range results {
			t.Record(result)
		}
	}()
	return done
}

// Log adiciona uma entrada ao histórico
func (t *Tracker) Log(entry Entry) {
	t.mutex.Lock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	t.entries = append(t.entries, entry)
	if len(t.entries) > t.maxEntries {
		t.entries = t.entries[len(t.entries)-t.maxEntries:]
	}

	t.mutex.Unlock()

	// Persiste async para não bloquear o dispatch
	go func() {
		if err := t.saveToDisk(entry); err != nil {
			log.Warn().Err(err).Msg("Falha ao gravar entrada de histórico")
		}
	}()
}

// GetAll retorna todas as entradas, mais recentes primeiro
func (t *Tracker) GetAll() []Entry {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	entries := make([]Entry, len(t.entries))
	copy(entries, t.entries)

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	return entries
}

// GetFiltered retorna entradas filtradas, mais recentes primeiro
func (t *Tracker) GetFiltered(filter Filter) []Entry {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	filtered := make([]Entry, 0)
	for _, entry := range t.entries {
		if filter.Matches(entry) {
			filtered = append(filtered, entry)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	return filtered
}

func (t *Tracker) saveToDisk(entry Entry) error {
	yearMonth := entry.Timestamp.Format("2006-01")
	monthDir := filepath.Join(t.historyDir, yearMonth)

	if err := os.MkdirAll(monthDir, 0755); err != nil {
		return err
	}

	filename := fmt.Sprintf("%s-%s.json",
		entry.Timestamp.Format("2006-01-02"),
		entry.ID)

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(monthDir, filename), data, 0644)
}

// loadFromDisk carrega os últimos 3 meses de histórico
func (t *Tracker) loadFromDisk() error {
	now := time.Now()
	for i := 0; i < 3; i++ {
		yearMonth := now.AddDate(0, -i, 0).Format("2006-01")
		monthDir := filepath.Join(t.historyDir, yearMonth)

		files, err := filepath.Glob(filepath.Join(monthDir, "*.json"))
		if err != nil {
			continue
		}

		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(data, &entry); err != nil {
				continue
			}

			t.entries = append(t.entries, entry)
		}
	}

	sort.Slice(t.entries, func(i, j int) bool {
		return t.entries[i].Timestamp.After(t.entries[j].Timestamp)
	})

	if len(t.entries) > t.maxEntries {
		t.entries = t.entries[:t.maxEntries]
	}

	return nil
}

// Filter filtros de busca no histórico
type Filter struct {
	Action    string
	Service   string
	Status    string
	StartDate time.Time
	EndDate   time.Time
}

// Matches verifica se a entrada corresponde ao filtro
func (f Filter) Matches(entry Entry) bool {
	if f.Action != "" && entry.Action != f.Action {
		return false
	}
	if f.Service != "" && entry.Service != f.Service {
		return false
	}
	if f.Status != "" && entry.Status != f.Status {
		return false
	}
	if !f.StartDate.IsZero() && entry.Timestamp.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && entry.Timestamp.After(f.EndDate) {
		return false
	}
	return true
}
