package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"container-autopilot/internal/actuator"
	"container-autopilot/internal/azure"
	"container-autopilot/internal/config"
	"container-autopilot/internal/export"
	"container-autopilot/internal/history"
	"container-autopilot/internal/kubernetes"
	"container-autopilot/internal/monitoring/analyzer"
	"container-autopilot/internal/monitoring/dispatcher"
	"container-autopilot/internal/monitoring/engine"
	"container-autopilot/internal/monitoring/gate"
	"container-autopilot/internal/monitoring/models"
	"container-autopilot/internal/monitoring/prometheus"
	"container-autopilot/internal/monitoring/sampler"
	"container-autopilot/internal/monitoring/storage"
	"container-autopilot/internal/notify"
	"container-autopilot/internal/ticketing"
)

var (
	monitorOnly bool
	debug       bool
	noPersist   bool
)

var rootCmd = &cobra.Command{
	Use:   "container-autopilot",
	Short: "Control loop de autoscaling e incidentes para frotas de containers",
	Long: `Monitora a frota de containers em ciclos periódicos e reage a duas
condições de forma independente:

- Tráfego de rede fora da banda configurada: ajusta o número de
  instâncias (scale up/down), um passo por ação, com cooldown.
- CPU ou RAM acima do limite por vários ciclos consecutivos: abre
  ticket de incidente no helpdesk e fecha quando o uso normaliza.

Origens de métricas: Prometheus ou Azure Monitor (METRIC_SOURCE).
Atuadores de scaling: Kubernetes ou GitHub Actions (CONTAINER_ACTUATOR).

Com -m o autopilot só loga as decisões, sem escalar nem abrir tickets.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()

		eng, _, _, stopHistory, err := buildEngine()
		if err != nil {
			return err
		}

		if err := eng.Start(); err != nil {
			return fmt.Errorf("falha ao iniciar control loop: %w", err)
		}

		waitForShutdown()
		err = eng.Stop()
		stopHistory()
		return err
	},
}

// Execute executa o comando raiz
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&monitorOnly, "monitor", "m", false,
		"Modo monitor: loga decisões sem escalar nem abrir tickets")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Habilita logs de debug")
	rootCmd.PersistentFlags().BoolVar(&noPersist, "no-persist", false,
		"Desabilita persistência SQLite de estado e histórico")
}

func setupLogging() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// buildEngine monta o control loop completo a partir do ambiente
// A função retornada fecha o canal de resultados após eng.Stop() e
// espera o tracker drenar o que ainda estiver em buffer
func buildEngine() (*engine.Engine, *history.Tracker, *config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("configuração inválida: %w", err)
	}

	source, err := buildSource(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	act, err := buildActuator(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	tickets := buildTicketing(cfg)
	notifier := buildNotifier(cfg)

	smp := sampler.New(source, sampler.Config{
		Interval:         cfg.PollInterval,
		BackoffMaxFactor: cfg.BackoffMaxFactor,
		StalePolls:       cfg.StalePolls,
	})

	thresholdEval := analyzer.NewThresholdEvaluator(&analyzer.ThresholdConfig{
		CPUThreshold: cfg.CPUThreshold,
		RAMThreshold: cfg.RAMThreshold,
		BreachWindow: cfg.BreachWindow,
	})

	loadEval := analyzer.NewLoadEvaluator(&analyzer.LoadConfig{
		ScaleUpThreshold:   cfg.ScaleUpThreshold,
		ScaleDownThreshold: cfg.ScaleDownThreshold,
		ScaleStep:          cfg.ScaleStep,
		MinReplicas:        cfg.MinReplicas,
		MaxReplicas:        cfg.MaxReplicas,
	})

	cooldowns := gate.New(gate.Windows{
		ScaleUp:    cfg.ScaleUpCooldown,
		ScaleDown:  cfg.ScaleDownCooldown,
		OpenTicket: cfg.TicketCooldown,
	})

	store := storage.NewStateStore(cfg.MinReplicas)

	var persistence *storage.Persistence
	if !noPersist {
		persistence, err = storage.NewPersistence(storage.DefaultPersistenceConfig())
		if err != nil {
			log.Warn().Err(err).Msg("Falha ao criar persistência, continuando sem SQLite")
			persistence = nil
		} else {
			store.SetPersistence(persistence)
		}
	}

	disp := dispatcher.New(act, tickets, notifier, store, cooldowns, dispatcher.Config{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		CallTimeout:  cfg.CallTimeout,
		MonitorOnly:  monitorOnly,
	})

	if monitorOnly {
		log.Info().Msg("Modo monitor ativo: nenhuma ação será executada")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	tracker, err := history.NewTracker(filepath.Join(homeDir, ".container-autopilot"))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create history tracker: %w", err)
	}

	exporter := buildExporter(cfg)

	resultChan := make(chan models.DispatchResult, 100)
	trackerDone := tracker.Consume(resultChan)
	stopHistory := func() {
		close(resultChan)
		<-trackerDone
	}

	eng := engine.New(engine.Config{
		PollInterval: cfg.PollInterval,
		StalePolls:   cfg.StalePolls,
		GracePolls:   cfg.GracePolls,
	}, smp, thresholdEval, loadEval, disp, store, persistence, exporter, resultChan)

	return eng, tracker, cfg, stopHistory, nil
}

func buildSource(cfg *config.Config) (sampler.Source, error) {
	switch cfg.Source {
	case config.SourceAzure:
		return azure.NewSource(azure.Credentials{
			TenantID:       cfg.AzureTenantID,
			ClientID:       cfg.AzureClientID,
			ClientSecret:   cfg.AzureClientSecret,
			SubscriptionID: cfg.AzureSubscriptionID,
		})
	default:
		return prometheus.NewSource(prometheus.Config{
			Endpoint: cfg.PrometheusURL,
			CPUQuery: cfg.CPUQuery,
			RAMQuery: cfg.RAMQuery,
			NetQuery: cfg.NetQuery,
			Timeout:  cfg.CallTimeout,
		})
	}
}

func buildActuator(cfg *config.Config) (dispatcher.ContainerActuator, error) {
	switch cfg.Actuator {
	case config.ActuatorGitHub:
		return actuator.NewWorkflowActuator(actuator.WorkflowConfig{
			Token:      cfg.GitHubToken,
			DeployURL:  cfg.GitHubDeployURL,
			DestroyURL: cfg.GitHubDestroyURL,
		})
	default:
		return kubernetes.NewActuator(cfg.Kubeconfig, cfg.Namespace)
	}
}

func buildTicketing(cfg *config.Config) dispatcher.TicketingSystem {
	if cfg.ZammadURL == "" || cfg.ZammadToken == "" {
		log.Warn().Msg("Zammad não configurado, tickets desabilitados")
		return ticketing.Disabled{}
	}

	zammad, err := ticketing.NewZammad(ticketing.ZammadConfig{
		BaseURL:  cfg.ZammadURL,
		Token:    cfg.ZammadToken,
		Customer: cfg.ZammadCustomer,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Falha ao criar client Zammad, tickets desabilitados")
		return ticketing.Disabled{}
	}
	return zammad
}

func buildExporter(cfg *config.Config) engine.Exporter {
	if cfg.ElasticURL == "" {
		return nil
	}

	elastic, err := export.NewElastic(export.Config{
		URL:      cfg.ElasticURL,
		Username: cfg.ElasticUsername,
		Password: cfg.ElasticPassword,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Falha ao criar exporter Elasticsearch, export desabilitado")
		return nil
	}
	return elastic
}

func buildNotifier(cfg *config.Config) dispatcher.Notifier {
	if cfg.PushoverUserKey == "" || cfg.PushoverToken == "" {
		return notify.Noop{}
	}

	return notify.NewPushover(notify.PushoverConfig{
		APIURL:   cfg.PushoverAPIURL,
		UserKey:  cfg.PushoverUserKey,
		Token:    cfg.PushoverToken,
		Cooldown: cfg.NotificationCooldown,
	})
}

func waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().
		Str("signal", sig.String()).
		Msg("Sinal recebido, encerrando")
}
