package kubernetes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"container-autopilot/internal/monitoring/models"
)

// Actuator escala deployments via a subresource Scale
// ServiceID é mapeado 1:1 para o nome do deployment no namespace alvo
type Actuator struct {
	clientset *kubernetes.Clientset
	namespace string
}

// NewActuator cria o actuator
// kubeconfig vazio tenta in-cluster e depois ~/.kube/config
func NewActuator(kubeconfig, namespace string) (*Actuator, error) {
	config, err := buildConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	if namespace == "" {
		namespace = "default"
	}

	log.Info().
		Str("namespace", namespace).
		Msg("Kubernetes actuator criado")

	return &Actuator{
		clientset: clientset,
		namespace: namespace,
	}, nil
}

func buildConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		if config, err := rest.InClusterConfig(); err == nil {
			return config, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// SetReplicas ajusta as réplicas do deployment
// Idempotente: se o cluster já está no alvo, não faz nada
func (a *Actuator) SetReplicas(ctx context.Context, serviceID string, current, target int) error {
	deployments := a.clientset.AppsV1().Deployments(a.namespace)

	scale, err := deployments.GetScale(ctx, serviceID, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return models.NewPermanentError("scale", serviceID,
				fmt.Errorf("deployment %s não existe em %s", serviceID, a.namespace))
		}
		return models.NewTransientError("scale", serviceID, err)
	}

	if scale.Spec.Replicas == int32(target) {
		log.Debug().
			Str("service", serviceID).
			Int("replicas", target).
			Msg("Deployment já no alvo, nada a fazer")
		return nil
	}

	scale.Spec.Replicas = int32(target)
	if _, err := deployments.UpdateScale(ctx, serviceID, scale, metav1.UpdateOptions{}); err != nil {
		if errors.IsNotFound(err) {
			return models.NewPermanentError("scale", serviceID, err)
		}
		return models.NewTransientError("scale", serviceID, err)
	}

	log.Info().
		Str("service", serviceID).
		Str("namespace", a.namespace).
		Int("replicas", target).
		Msg("Scale aplicado no deployment")

	return nil
}
