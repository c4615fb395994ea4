package config

import (
	"testing"
	"time"
)

// TestDefaultIsValid testa que os defaults passam na validação
func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

// TestValidateRejectsBadConfigs testa as regras de validação
func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"poll interval too short", func(c *Config) { c.PollInterval = 500 * time.Millisecond }},
		{"breach window zero", func(c *Config) { c.BreachWindow = 0 }},
		{"negative cpu threshold", func(c *Config) { c.CPUThreshold = -1 }},
		{"scale down above scale up", func(c *Config) { c.ScaleDownThreshold = c.ScaleUpThreshold + 1 }},
		{"equal scale thresholds", func(c *Config) { c.ScaleDownThreshold = c.ScaleUpThreshold }},
		{"scale step zero", func(c *Config) { c.ScaleStep = 0 }},
		{"min replicas zero", func(c *Config) { c.MinReplicas = 0 }},
		{"max below min", func(c *Config) { c.MinReplicas = 5; c.MaxReplicas = 3 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"unknown source", func(c *Config) { c.Source = "graphite" }},
		{"unknown actuator", func(c *Config) { c.Actuator = "docker" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

// TestLoadReadsEnvironment testa o carregamento das variáveis de ambiente
func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CHECK_INTERVAL", "60")
	t.Setenv("NETWORK_TRAFFIC_THRESHOLD", "500000")
	t.Setenv("NETWORK_TRAFFIC_MINIMUM", "100000")
	t.Setenv("CPU_THRESHOLD", "75.5")
	t.Setenv("BREACH_WINDOW", "5")
	t.Setenv("DEPLOY_COOLDOWN", "10m")
	t.Setenv("METRIC_SOURCE", "azure")
	t.Setenv("CONTAINER_ACTUATOR", "github")
	t.Setenv("MAX_REPLICAS", "20")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PollInterval != 60*time.Second {
		t.Errorf("expected poll interval 60s, got %v", cfg.PollInterval)
	}
	if cfg.ScaleUpThreshold != 500000 {
		t.Errorf("expected scale up threshold 500000, got %v", cfg.ScaleUpThreshold)
	}
	if cfg.ScaleDownThreshold != 100000 {
		t.Errorf("expected scale down threshold 100000, got %v", cfg.ScaleDownThreshold)
	}
	if cfg.CPUThreshold != 75.5 {
		t.Errorf("expected cpu threshold 75.5, got %v", cfg.CPUThreshold)
	}
	if cfg.BreachWindow != 5 {
		t.Errorf("expected breach window 5, got %d", cfg.BreachWindow)
	}
	if cfg.ScaleUpCooldown != 10*time.Minute {
		t.Errorf("expected deploy cooldown 10m, got %v", cfg.ScaleUpCooldown)
	}
	if cfg.Source != SourceAzure {
		t.Errorf("expected azure source, got %s", cfg.Source)
	}
	if cfg.Actuator != ActuatorGitHub {
		t.Errorf("expected github actuator, got %s", cfg.Actuator)
	}
	if cfg.MaxReplicas != 20 {
		t.Errorf("expected max replicas 20, got %d", cfg.MaxReplicas)
	}
}

// TestLoadReadsElasticsearchSettings testa as credenciais de export
func TestLoadReadsElasticsearchSettings(t *testing.T) {
	t.Setenv("ELASTICSEARCH_URL", "http://elastic:9200")
	t.Setenv("ELASTICSEARCH_USER", "elastic")
	t.Setenv("ELASTICSEARCH_PASSWORD", "changeme")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ElasticURL != "http://elastic:9200" {
		t.Errorf("unexpected elastic url %q", cfg.ElasticURL)
	}
	if cfg.ElasticUsername != "elastic" || cfg.ElasticPassword != "changeme" {
		t.Errorf("unexpected elastic credentials %q/%q", cfg.ElasticUsername, cfg.ElasticPassword)
	}
}

// TestLoadRejectsInvalidEnvironment testa que Load valida o resultado
func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("NETWORK_TRAFFIC_THRESHOLD", "1000")
	t.Setenv("NETWORK_TRAFFIC_MINIMUM", "2000")

	if _, err := Load(); err == nil {
		t.Error("expected error for inverted thresholds")
	}
}

// TestEnvDurationFormats testa os dois formatos aceitos para duração
func TestEnvDurationFormats(t *testing.T) {
	t.Setenv("TEST_DURATION_SECONDS", "300")
	if got := envDuration("TEST_DURATION_SECONDS", time.Second); got != 300*time.Second {
		t.Errorf("bare seconds: expected 300s, got %v", got)
	}

	t.Setenv("TEST_DURATION_GO", "5m")
	if got := envDuration("TEST_DURATION_GO", time.Second); got != 5*time.Minute {
		t.Errorf("go format: expected 5m, got %v", got)
	}

	if got := envDuration("TEST_DURATION_UNSET", 7*time.Second); got != 7*time.Second {
		t.Errorf("unset: expected default, got %v", got)
	}

	t.Setenv("TEST_DURATION_JUNK", "banana")
	if got := envDuration("TEST_DURATION_JUNK", 7*time.Second); got != 7*time.Second {
		t.Errorf("junk: expected default, got %v", got)
	}
}
