package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/models"
)

// PersistenceConfig configuração de persistência
type PersistenceConfig struct {
	Enabled bool          // Habilita persistência
	DBPath  string        // Caminho do banco SQLite
	MaxAge  time.Duration // Retenção de samples (default: 24h)
}

// DefaultPersistenceConfig retorna configuração padrão
func DefaultPersistenceConfig() *PersistenceConfig {
	homeDir, _ := os.UserHomeDir()
	dbPath := filepath.Join(homeDir, ".container-autopilot", "state.db")

	return &PersistenceConfig{
		Enabled: true,
		DBPath:  dbPath,
		MaxAge:  24 * time.Hour,
	}
}

// Persistence guarda estado por serviço e samples recentes em SQLite
// para o autopilot sobreviver a restarts sem perder réplicas desejadas
// nem IDs de tickets abertos
type Persistence struct {
	config *PersistenceConfig
	db     *sql.DB
}

// NewPersistence abre (ou cria) o banco
func NewPersistence(config *PersistenceConfig) (*Persistence, error) {
	if config == nil {
		config = DefaultPersistenceConfig()
	}

	if !config.Enabled {
		log.Info().Msg("Persistência desabilitada")
		return &Persistence{config: config}, nil
	}

	dir := filepath.Dir(config.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite funciona melhor com 1 conexão
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	p := &Persistence{
		config: config,
		db:     db,
	}

	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().
		Str("db_path", config.DBPath).
		Dur("max_age", config.MaxAge).
		Msg("Persistência inicializada")

	if err := p.Cleanup(); err != nil {
		log.Warn().Err(err).Msg("Cleanup inicial falhou")
	}

	return p, nil
}

func (p *Persistence) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS service_state (
		service_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,  -- JSON do ServiceState
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		service_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		cpu_pct REAL,
		mem_pct REAL,
		net_bytes_per_sec REAL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_lookup
		ON samples(service_id, timestamp DESC);

	CREATE INDEX IF NOT EXISTS idx_samples_cleanup
		ON samples(timestamp);
	`

	_, err := p.db.Exec(schema)
	return err
}

// SaveState grava (upsert) o estado de um serviço
func (p *Persistence) SaveState(state *models.ServiceState) error {
	if !p.config.Enabled {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = p.db.Exec(`
		INSERT INTO service_state (service_id, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(service_id) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, state.ServiceID, string(data))
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	return nil
}

// LoadStates carrega o estado de todos os serviços persistidos
func (p *Persistence) LoadStates() ([]models.ServiceState, error) {
	if !p.config.Enabled {
		return nil, nil
	}

	rows, err := p.db.Query(`SELECT data FROM service_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to load states: %w", err)
	}
	defer rows.Close()

	var states []models.ServiceState
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}

		var st models.ServiceState
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			log.Warn().Err(err).Msg("Estado persistido inválido, ignorando")
			continue
		}
		states = append(states, st)
	}

	return states, rows.Err()
}

// DeleteState remove o estado persistido de um serviço (GC)
func (p *Persistence) DeleteState(serviceID string) error {
	if !p.config.Enabled {
		return nil
	}

	_, err := p.db.Exec(`DELETE FROM service_state WHERE service_id = ?`, serviceID)
	return err
}

// SaveSample grava um sample (histórico para a web API)
func (p *Persistence) SaveSample(sample *models.Sample) error {
	if !p.config.Enabled {
		return nil
	}

	_, err := p.db.Exec(`
		INSERT INTO samples (service_id, timestamp, cpu_pct, mem_pct, net_bytes_per_sec)
		VALUES (?, ?, ?, ?, ?)
	`, sample.ServiceID, sample.Timestamp, sample.CPUPct, sample.MemPct, sample.NetBytesPerSec)
	if err != nil {
		return fmt.Errorf("failed to save sample: %w", err)
	}

	return nil
}

// LoadSamples carrega samples de um serviço desde um instante
func (p *Persistence) LoadSamples(serviceID string, since time.Time) ([]models.Sample, error) {
	if !p.config.Enabled {
		return nil, nil
	}

	rows, err := p.db.Query(`
		SELECT service_id, timestamp, cpu_pct, mem_pct, net_bytes_per_sec
		FROM samples
		WHERE service_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`, serviceID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples: %w", err)
	}
	defer rows.Close()

	var samples []models.Sample
	for rows.Next() {
		var s models.Sample
		if err := rows.Scan(&s.ServiceID, &s.Timestamp, &s.CPUPct, &s.MemPct, &s.NetBytesPerSec); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}

	return samples, rows.Err()
}

// Cleanup remove samples mais antigos que MaxAge
func (p *Persistence) Cleanup() error {
	if !p.config.Enabled {
		return nil
	}

	cutoff := time.Now().Add(-p.config.MaxAge)
	result, err := p.db.Exec(`DELETE FROM samples WHERE timestamp < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		log.Debug().
			Int64("removed", n).
			Msg("Cleanup: samples antigos removidos")
	}

	return nil
}

// Close fecha o banco
func (p *Persistence) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
