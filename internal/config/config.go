package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// SourceKind origem das métricas da frota
type SourceKind string

const (
	SourcePrometheus SourceKind = "prometheus"
	SourceAzure      SourceKind = "azure"
)

// ActuatorKind mecanismo usado para escalar containers
type ActuatorKind string

const (
	ActuatorKubernetes ActuatorKind = "kubernetes"
	ActuatorGitHub     ActuatorKind = "github"
)

// Config configuração completa do autopilot
// Carregada uma vez no startup; lógica de runtime nunca relê env
type Config struct {
	// Loop de polling
	PollInterval     time.Duration // Intervalo entre polls (default: 30s)
	BackoffMaxFactor int           // Multiplicador máximo do backoff do sampler (default: 8)
	StalePolls       int           // Polls ausentes até considerar serviço stale (default: 3)
	GracePolls       int           // Polls ausentes adicionais até GC do estado (default: 10)

	// Threshold evaluator (tickets)
	CPUThreshold float64 // % (default: 80)
	RAMThreshold float64 // % (default: 80)
	BreachWindow int     // Samples consecutivos para emitir breach (default: 3)

	// Load evaluator (scaling)
	ScaleUpThreshold   float64 // bytes/s acima = scale up (default: 768000)
	ScaleDownThreshold float64 // bytes/s abaixo = scale down (default: 133120)
	ScaleStep          int     // Réplicas por ação (default: 1)
	MinReplicas        int     // default: 1
	MaxReplicas        int     // default: 10

	// Cooldowns por tipo de ação ("scale fast, shrink slow")
	ScaleUpCooldown      time.Duration // default: 5min
	ScaleDownCooldown    time.Duration // default: 10min
	TicketCooldown       time.Duration // default: 15min
	NotificationCooldown time.Duration // default: 60s

	// Dispatcher
	MaxRetries   int           // Retries para falhas transientes (default: 2)
	RetryBackoff time.Duration // Backoff base entre retries (default: 2s)
	CallTimeout  time.Duration // Timeout por chamada externa (default: 10s)

	// Seleção de collaborators
	Source   SourceKind   // prometheus | azure
	Actuator ActuatorKind // kubernetes | github

	// Prometheus (source)
	PrometheusURL  string
	CPUQuery       string
	RAMQuery       string
	NetQuery       string

	// Azure (source)
	AzureTenantID       string
	AzureClientID       string
	AzureClientSecret   string
	AzureSubscriptionID string

	// Kubernetes (actuator)
	Kubeconfig string
	Namespace  string

	// GitHub workflow dispatch (actuator)
	GitHubToken      string
	GitHubDeployURL  string
	GitHubDestroyURL string

	// Zammad (ticketing)
	ZammadURL      string
	ZammadToken    string
	ZammadCustomer string

	// Pushover (notificações)
	PushoverAPIURL  string
	PushoverUserKey string
	PushoverToken   string

	// Elasticsearch (export de telemetria, opcional)
	ElasticURL      string
	ElasticUsername string
	ElasticPassword string

	// Web API
	WebPort  int
	WebToken string
}

// Default retorna configuração padrão
func Default() *Config {
	return &Config{
		PollInterval:     30 * time.Second,
		BackoffMaxFactor: 8,
		StalePolls:       3,
		GracePolls:       10,

		CPUThreshold: 80.0,
		RAMThreshold: 80.0,
		BreachWindow: 3,

		ScaleUpThreshold:   768000,
		ScaleDownThreshold: 133120,
		ScaleStep:          1,
		MinReplicas:        1,
		MaxReplicas:        10,

		ScaleUpCooldown:      5 * time.Minute,
		ScaleDownCooldown:    10 * time.Minute,
		TicketCooldown:       15 * time.Minute,
		NotificationCooldown: 60 * time.Second,

		MaxRetries:   2,
		RetryBackoff: 2 * time.Second,
		CallTimeout:  10 * time.Second,

		Source:   SourcePrometheus,
		Actuator: ActuatorKubernetes,

		CPUQuery: `100 - (avg by (instance) (rate(node_cpu_seconds_total{mode="idle"}[1m])) * 100)`,
		RAMQuery: `100 * (1 - (node_memory_MemAvailable_bytes / node_memory_MemTotal_bytes))`,
		NetQuery: `sum by (instance) (rate(node_network_receive_bytes_total[1m]))`,

		Namespace: "default",
		WebPort:   8080,
	}
}

// Load carrega configuração do ambiente sobre os defaults
func Load() (*Config, error) {
	cfg := Default()

	cfg.PollInterval = envDuration("CHECK_INTERVAL", cfg.PollInterval)
	cfg.BackoffMaxFactor = envInt("BACKOFF_MAX_FACTOR", cfg.BackoffMaxFactor)
	cfg.StalePolls = envInt("STALE_POLLS", cfg.StalePolls)
	cfg.GracePolls = envInt("GRACE_POLLS", cfg.GracePolls)

	cfg.CPUThreshold = envFloat("CPU_THRESHOLD", cfg.CPUThreshold)
	cfg.RAMThreshold = envFloat("RAM_THRESHOLD", cfg.RAMThreshold)
	cfg.BreachWindow = envInt("BREACH_WINDOW", cfg.BreachWindow)

	cfg.ScaleUpThreshold = envFloat("NETWORK_TRAFFIC_THRESHOLD", cfg.ScaleUpThreshold)
	cfg.ScaleDownThreshold = envFloat("NETWORK_TRAFFIC_MINIMUM", cfg.ScaleDownThreshold)
	cfg.ScaleStep = envInt("SCALE_STEP", cfg.ScaleStep)
	cfg.MinReplicas = envInt("MIN_REPLICAS", cfg.MinReplicas)
	cfg.MaxReplicas = envInt("MAX_REPLICAS", cfg.MaxReplicas)

	cfg.ScaleUpCooldown = envDuration("DEPLOY_COOLDOWN", cfg.ScaleUpCooldown)
	cfg.ScaleDownCooldown = envDuration("DESTROY_COOLDOWN", cfg.ScaleDownCooldown)
	cfg.TicketCooldown = envDuration("TICKET_COOLDOWN", cfg.TicketCooldown)
	cfg.NotificationCooldown = envDuration("NOTIFICATION_COOLDOWN", cfg.NotificationCooldown)

	cfg.MaxRetries = envInt("DISPATCH_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryBackoff = envDuration("DISPATCH_RETRY_BACKOFF", cfg.RetryBackoff)
	cfg.CallTimeout = envDuration("DISPATCH_CALL_TIMEOUT", cfg.CallTimeout)

	if v := os.Getenv("METRIC_SOURCE"); v != "" {
		cfg.Source = SourceKind(v)
	}
	if v := os.Getenv("CONTAINER_ACTUATOR"); v != "" {
		cfg.Actuator = ActuatorKind(v)
	}

	cfg.PrometheusURL = envString("PROMETHEUS_URL", cfg.PrometheusURL)
	cfg.CPUQuery = envString("PROMETHEUS_QUERY_CPU", cfg.CPUQuery)
	cfg.RAMQuery = envString("PROMETHEUS_QUERY_RAM", cfg.RAMQuery)
	cfg.NetQuery = envString("PROMETHEUS_QUERY_NET", cfg.NetQuery)

	cfg.AzureTenantID = envString("AZURE_TENANT_ID", cfg.AzureTenantID)
	cfg.AzureClientID = envString("AZURE_CLIENT_ID", cfg.AzureClientID)
	cfg.AzureClientSecret = envString("AZURE_CLIENT_SECRET", cfg.AzureClientSecret)
	cfg.AzureSubscriptionID = envString("AZURE_SUBSCRIPTION_ID", cfg.AzureSubscriptionID)

	cfg.Kubeconfig = envString("KUBECONFIG", cfg.Kubeconfig)
	cfg.Namespace = envString("TARGET_NAMESPACE", cfg.Namespace)

	cfg.GitHubToken = envString("GITHUB_TOKEN", cfg.GitHubToken)
	cfg.GitHubDeployURL = envString("GITHUB_API_URL", cfg.GitHubDeployURL)
	cfg.GitHubDestroyURL = envString("GITHUB_DESTROY_URL", cfg.GitHubDestroyURL)

	cfg.ZammadURL = envString("ZAMMAD_URL", cfg.ZammadURL)
	cfg.ZammadToken = envString("ZAMMAD_TOKEN", cfg.ZammadToken)
	cfg.ZammadCustomer = envString("ZAMMAD_CUSTOMER", cfg.ZammadCustomer)

	cfg.PushoverAPIURL = envString("PUSHOVER_API_URL", cfg.PushoverAPIURL)
	cfg.PushoverUserKey = envString("PUSHOVER_USER_KEY", cfg.PushoverUserKey)
	cfg.PushoverToken = envString("PUSHOVER_TOKEN", cfg.PushoverToken)

	cfg.ElasticURL = envString("ELASTICSEARCH_URL", cfg.ElasticURL)
	cfg.ElasticUsername = envString("ELASTICSEARCH_USER", cfg.ElasticUsername)
	cfg.ElasticPassword = envString("ELASTICSEARCH_PASSWORD", cfg.ElasticPassword)

	cfg.WebPort = envInt("AUTOPILOT_WEB_PORT", cfg.WebPort)
	cfg.WebToken = envString("AUTOPILOT_WEB_TOKEN", cfg.WebToken)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate valida a configuração; erros aqui são fatais no startup
func (c *Config) Validate() error {
	if c.PollInterval < 1*time.Second {
		return fmt.Errorf("intervalo de poll mínimo é 1s, recebido: %v", c.PollInterval)
	}
	if c.BackoffMaxFactor < 1 {
		return fmt.Errorf("backoff max factor deve ser >= 1, recebido: %d", c.BackoffMaxFactor)
	}
	if c.BreachWindow < 1 {
		return fmt.Errorf("breach window deve ser >= 1, recebido: %d", c.BreachWindow)
	}
	if c.CPUThreshold <= 0 || c.RAMThreshold <= 0 {
		return fmt.Errorf("thresholds de CPU/RAM devem ser positivos (cpu=%.1f, ram=%.1f)",
			c.CPUThreshold, c.RAMThreshold)
	}
	if c.ScaleDownThreshold >= c.ScaleUpThreshold {
		return fmt.Errorf("scale-down threshold (%.0f) deve ser menor que scale-up threshold (%.0f)",
			c.ScaleDownThreshold, c.ScaleUpThreshold)
	}
	if c.ScaleStep < 1 {
		return fmt.Errorf("scale step deve ser >= 1, recebido: %d", c.ScaleStep)
	}
	if c.MinReplicas < 1 {
		return fmt.Errorf("min replicas deve ser >= 1, recebido: %d", c.MinReplicas)
	}
	if c.MaxReplicas < c.MinReplicas {
		return fmt.Errorf("max replicas (%d) deve ser >= min replicas (%d)",
			c.MaxReplicas, c.MinReplicas)
	}
	if c.StalePolls < 1 {
		return fmt.Errorf("stale polls deve ser >= 1, recebido: %d", c.StalePolls)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries deve ser >= 0, recebido: %d", c.MaxRetries)
	}

	switch c.Source {
	case SourcePrometheus, SourceAzure:
	default:
		return fmt.Errorf("metric source inválido: %s (esperado prometheus ou azure)", c.Source)
	}

	switch c.Actuator {
	case ActuatorKubernetes, ActuatorGitHub:
	default:
		return fmt.Errorf("actuator inválido: %s (esperado kubernetes ou github)", c.Actuator)
	}

	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// envDuration aceita segundos puros ("300") ou formato Go ("5m")
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
