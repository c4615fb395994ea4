package analyzer

import (
	"testing"

	"container-autopilot/internal/monitoring/models"
)

func netSample(bytesPerSec float64) models.Sample {
	return models.Sample{
		ServiceID:      "web-01",
		NetBytesPerSec: bytesPerSec,
	}
}

// TestLoadEvaluator testa as decisões de scaling por tráfego de rede
func TestLoadEvaluator(t *testing.T) {
	config := &LoadConfig{
		ScaleUpThreshold:   768000,
		ScaleDownThreshold: 133120,
		ScaleStep:          1,
		MinReplicas:        1,
		MaxReplicas:        5,
	}

	tests := []struct {
		name       string
		net        float64
		current    int
		wantIntent bool
		wantTarget int
		wantReason models.ScaleReason
	}{
		{
			name:       "High traffic scales up",
			net:        900000,
			current:    2,
			wantIntent: true,
			wantTarget: 3,
			wantReason: models.ReasonLoadHigh,
		},
		{
			name:       "High traffic at max does nothing",
			net:        900000,
			current:    5,
			wantIntent: false,
		},
		{
			name:       "Low traffic scales down",
			net:        50000,
			current:    3,
			wantIntent: true,
			wantTarget: 2,
			wantReason: models.ReasonLoadLow,
		},
		{
			name:       "Low traffic at min does nothing",
			net:        50000,
			current:    1,
			wantIntent: false,
		},
		{
			name:       "Inside hysteresis band does nothing",
			net:        400000,
			current:    3,
			wantIntent: false,
		},
		{
			name:       "Exactly at upper threshold stays put",
			net:        768000,
			current:    2,
			wantIntent: false,
		},
		{
			name:       "Exactly at lower threshold stays put",
			net:        133120,
			current:    3,
			wantIntent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := NewLoadEvaluator(config)
			state := &models.ServiceState{
				ServiceID:       "web-01",
				DesiredReplicas: tt.current,
			}

			intent := eval.Evaluate(netSample(tt.net), state)

			if !tt.wantIntent {
				if intent != nil {
					t.Fatalf("expected no intent, got %+v", intent)
				}
				return
			}

			if intent == nil {
				t.Fatal("expected intent, got nil")
			}
			if intent.TargetReplicas != tt.wantTarget {
				t.Errorf("expected target %d, got %d", tt.wantTarget, intent.TargetReplicas)
			}
			if intent.Reason != tt.wantReason {
				t.Errorf("expected reason %s, got %s", tt.wantReason, intent.Reason)
			}
			if intent.CurrentReplicas != tt.current {
				t.Errorf("expected current %d, got %d", tt.current, intent.CurrentReplicas)
			}
		})
	}
}

// TestLoadEvaluatorClampsStep testa que o passo nunca sai de [min, max]
func TestLoadEvaluatorClampsStep(t *testing.T) {
	eval := NewLoadEvaluator(&LoadConfig{
		ScaleUpThreshold:   768000,
		ScaleDownThreshold: 133120,
		ScaleStep:          3,
		MinReplicas:        1,
		MaxReplicas:        5,
	})

	// 4 + 3 passaria de 5: alvo capado no máximo
	state := &models.ServiceState{ServiceID: "web-01", DesiredReplicas: 4}
	intent := eval.Evaluate(netSample(900000), state)
	if intent == nil || intent.TargetReplicas != 5 {
		t.Errorf("expected target clamped to max 5, got %+v", intent)
	}

	// 2 - 3 passaria de 1: alvo no mínimo
	state = &models.ServiceState{ServiceID: "web-01", DesiredReplicas: 2}
	intent = eval.Evaluate(netSample(1000), state)
	if intent == nil || intent.TargetReplicas != 1 {
		t.Errorf("expected target clamped to min 1, got %+v", intent)
	}
}

// TestLoadEvaluatorNormalizesCurrent testa que réplicas abaixo do mínimo
// são tratadas como o mínimo
func TestLoadEvaluatorNormalizesCurrent(t *testing.T) {
	eval := NewLoadEvaluator(nil)

	// Estado recém-criado sem réplicas registradas
	state := &models.ServiceState{ServiceID: "web-01", DesiredReplicas: 0}
	intent := eval.Evaluate(netSample(900000), state)
	if intent == nil {
		t.Fatal("expected scale up intent")
	}
	if intent.CurrentReplicas != 1 || intent.TargetReplicas != 2 {
		t.Errorf("expected 1 -> 2, got %d -> %d", intent.CurrentReplicas, intent.TargetReplicas)
	}
}
