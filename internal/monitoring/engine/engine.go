package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"container-autopilot/internal/monitoring/analyzer"
	"container-autopilot/internal/monitoring/dispatcher"
	"container-autopilot/internal/monitoring/models"
	"container-autopilot/internal/monitoring/sampler"
	"container-autopilot/internal/monitoring/storage"
)

// Config configuração do control loop
type Config struct {
	PollInterval time.Duration
	StalePolls   int // Polls ausentes até pular avaliação do serviço
	GracePolls   int // Polls ausentes adicionais até GC do estado
}

// Exporter destino externo de telemetria, alimentado a cada ciclo
// Implementações devem ser best effort: o loop não trata erro de export
type Exporter interface {
	ExportSample(ctx context.Context, sample models.Sample)
	ExportResult(ctx context.Context, result models.DispatchResult)
	ExportFleet(ctx context.Context, services, replicas int)
}

// Engine orquestra o ciclo completo: coleta, avaliação e dispatch
//
// Ciclos nunca se sobrepõem: se um tick chega com o ciclo anterior ainda
// rodando, o tick é pulado. Dentro do ciclo cada serviço é processado em
// sua própria goroutine, então uma chamada externa lenta de um serviço
// não atrasa os outros
type Engine struct {
	config Config

	sampler       *sampler.Sampler
	thresholdEval *analyzer.ThresholdEvaluator
	loadEval      *analyzer.LoadEvaluator
	dispatcher    *dispatcher.Dispatcher
	store         *storage.StateStore
	persistence   *storage.Persistence
	exporter      Exporter

	// Canal de saída para a web API / histórico
	resultChan chan models.DispatchResult

	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	paused   bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
	inCycle  atomic.Bool
	nextPoll atomic.Int64 // unixnano; ticks antes disso são pulados (backoff)
}

// New cria o engine
func New(cfg Config, smp *sampler.Sampler, thresholdEval *analyzer.ThresholdEvaluator,
	loadEval *analyzer.LoadEvaluator, disp *dispatcher.Dispatcher,
	store *storage.StateStore, persistence *storage.Persistence,
	exporter Exporter, resultChan chan models.DispatchResult) *Engine {

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		config:        cfg,
		sampler:       smp,
		thresholdEval: thresholdEval,
		loadEval:      loadEval,
		dispatcher:    disp,
		store:         store,
		persistence:   persistence,
		exporter:      exporter,
		resultChan:    resultChan,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start inicia o control loop
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.paused = false
	e.mu.Unlock()

	log.Info().
		Dur("interval", e.config.PollInterval).
		Int("stale_polls", e.config.StalePolls).
		Int("grace_polls", e.config.GracePolls).
		Msg("Iniciando control loop")

	e.wg.Add(1)
	go e.pollLoop()

	return nil
}

// Stop para o control loop e fecha a persistência
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	log.Info().Msg("Parando control loop")

	e.cancel()
	e.wg.Wait()

	if e.persistence != nil {
		if err := e.persistence.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("Erro ao limpar dados antigos")
		}
		if err := e.persistence.Close(); err != nil {
			log.Warn().Err(err).Msg("Erro ao fechar banco de dados")
		}
	}

	log.Info().Msg("Control loop parado")
	return nil
}

// Pause suspende avaliação e dispatch (o processo continua vivo)
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running && !e.paused {
		e.paused = true
		log.Info().Msg("Control loop pausado")
	}
}

// Resume retoma o loop
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running && e.paused {
		e.paused = false
		log.Info().Msg("Control loop retomado")
	}
}

// IsRunning retorna se o engine está rodando
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// IsPaused retorna se o engine está pausado
func (e *Engine) IsPaused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// GetStore retorna o state store (usado pela web API)
func (e *Engine) GetStore() *storage.StateStore {
	return e.store
}

// GetPersistence retorna a persistência (usado pela web API para histórico)
func (e *Engine) GetPersistence() *storage.Persistence {
	return e.persistence
}

// IsStale informa se o serviço está ausente dos últimos polls
// Um serviço stale ainda aparece no store durante o grace period
func (e *Engine) IsStale(serviceID string) bool {
	return e.sampler.Stale(serviceID)
}

// SourceFailures retorna falhas consecutivas da origem de métricas
func (e *Engine) SourceFailures() int {
	return e.sampler.Failures()
}

func (e *Engine) pollLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	// Primeiro ciclo imediato
	e.maybeRunCycle()

	for {
		select {
		case <-e.ctx.Done():
			log.Info().Msg("Poll loop encerrado")
			return

		case <-ticker.C:
			e.mu.RLock()
			paused := e.paused
			e.mu.RUnlock()
			if paused {
				continue
			}

			e.maybeRunCycle()
		}
	}
}

// maybeRunCycle dispara um ciclo se o anterior já acabou e o backoff
// (se houver) já passou
func (e *Engine) maybeRunCycle() {
	if time.Now().UnixNano() < e.nextPoll.Load() {
		return
	}

	if !e.inCycle.CompareAndSwap(false, true) {
		log.Warn().Msg("Ciclo anterior ainda em andamento, tick pulado")
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.inCycle.Store(false)
		e.runCycle()
	}()
}

// runCycle executa um ciclo completo do control loop
func (e *Engine) runCycle() {
	cycleStart := time.Now()

	samples, err := e.sampler.Collect(e.ctx)
	if err != nil {
		pollFailuresTotal.Inc()
		// Alonga o intervalo; o estado fica intocado até a origem voltar
		e.nextPoll.Store(time.Now().Add(e.sampler.BackoffDelay()).UnixNano())
		return
	}
	e.nextPoll.Store(0)
	pollsTotal.Inc()

	poll := e.sampler.PollCount()

	var wg sync.WaitGroup
	for _, sample := range samples {
		wg.Add(1)
		go func(sm models.Sample) {
			defer wg.Done()
			e.processSample(sm, poll)
		}(sample)
	}
	wg.Wait()

	removed := e.store.RemoveStale(poll, e.config.StalePolls+e.config.GracePolls)
	trackedServices.Set(float64(e.store.Len()))

	if e.exporter != nil {
		replicas := 0
		states := e.store.Snapshot()
		for _, st := range states {
			replicas += st.DesiredReplicas
		}
		e.exporter.ExportFleet(e.ctx, len(states), replicas)
	}

	// Retenção do histórico, de vez em quando basta
	if e.persistence != nil && poll%100 == 0 {
		if err := e.persistence.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("Cleanup periódico falhou")
		}
	}

	log.Debug().
		Uint64("poll", poll).
		Int("services", len(samples)).
		Int("removed", removed).
		Dur("duration", time.Since(cycleStart)).
		Msg("Ciclo concluído")
}

// processSample avalia um serviço e despacha as ações resultantes
// Avaliação roda dentro do lock do serviço; dispatch roda fora
func (e *Engine) processSample(sample models.Sample, poll uint64) {
	if e.persistence != nil {
		if err := e.persistence.SaveSample(&sample); err != nil {
			log.Debug().
				Err(err).
				Str("service", sample.ServiceID).
				Msg("Falha ao gravar sample no histórico")
		}
	}
	if e.exporter != nil {
		e.exporter.ExportSample(e.ctx, sample)
	}

	var actions []models.Action

	e.store.Update(sample.ServiceID, poll, func(st *models.ServiceState) {
		st.LastSeenPoll = poll

		thresholdResult := e.thresholdEval.Evaluate(sample, st)
		for i := range thresholdResult.Breaches {
			breach := thresholdResult.Breaches[i]
			breachesTotal.WithLabelValues(breach.Metric.String()).Inc()
			actions = append(actions, models.Action{
				Kind:      models.ActionOpenTicket,
				ServiceID: breach.ServiceID,
				Breach:    &breach,
			})
		}
		for i := range thresholdResult.Clears {
			clear := thresholdResult.Clears[i]
			actions = append(actions, models.Action{
				Kind:      models.ActionCloseTicket,
				ServiceID: clear.ServiceID,
				Clear:     &clear,
			})
		}

		if intent := e.loadEval.Evaluate(sample, st); intent != nil {
			kind := models.ActionScaleUp
			if intent.Reason == models.ReasonLoadLow {
				kind = models.ActionScaleDown
			}
			actions = append(actions, models.Action{
				Kind:      kind,
				ServiceID: intent.ServiceID,
				Intent:    intent,
			})
		}
	})

	// Dispatch sequencial dentro do serviço, paralelo entre serviços
	for _, action := range actions {
		result := e.dispatcher.Dispatch(e.ctx, action, poll)

		actionsTotal.WithLabelValues(string(action.Kind), result.Status.String()).Inc()
		if result.Status != models.DispatchSuppressed {
			dispatchDuration.WithLabelValues(string(action.Kind)).Observe(result.Duration.Seconds())
		}

		if e.exporter != nil {
			e.exporter.ExportResult(e.ctx, result)
		}

		if e.resultChan != nil {
			select {
			case e.resultChan <- result:
			default:
				log.Warn().
					Str("service", action.ServiceID).
					Msg("Canal de resultados cheio, descartando resultado")
			}
		}
	}
}
