// Package orchestrator reads and patches a Deployment's replica count in a
// fixed namespace. It auto-detects in-cluster vs. local kubeconfig identity
// once, at construction, per SPEC_FULL.md §4.2.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/PoornavG/txn-autoscaler/internal/scalererr"
)

// Client is the interface the reconciler depends on.
type Client interface {
	GetReplicas(ctx context.Context, deployment string) (int32, error)
	SetReplicas(ctx context.Context, deployment string, n int32) error
}

// k8sClient implements Client over a client-go clientset. The field is typed
// as kubernetes.Interface rather than the concrete *kubernetes.Clientset so
// tests can substitute k8s.io/client-go/kubernetes/fake.
type k8sClient struct {
	clientset kubernetes.Interface
	namespace string
}

// New builds a Client for the given namespace. An explicit kubeconfig path is
// used when given; otherwise it prefers an in-cluster identity and falls back
// to $HOME/.kube/config.
func New(namespace, kubeconfigPath string) (Client, error) {
	restConfig, err := buildRestConfig(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scalererr.ErrConfiguration, err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: building clientset: %v", scalererr.ErrConfiguration, err)
	}

	return &k8sClient{clientset: clientset, namespace: namespace}, nil
}

func buildRestConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}

	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("not in-cluster and could not determine home directory: %w", err)
	}
	return clientcmd.BuildConfigFromFlags("", filepath.Join(home, ".kube", "config"))
}

// GetReplicas reads the current desired replica count for a deployment.
func (k *k8sClient) GetReplicas(ctx context.Context, deployment string) (int32, error) {
	d, err := k.clientset.AppsV1().Deployments(k.namespace).Get(ctx, deployment, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("%w: get deployment %s/%s: %v", scalererr.ErrOrchestratorRead, k.namespace, deployment, err)
	}
	if d.Spec.Replicas == nil {
		return 0, fmt.Errorf("%w: deployment %s/%s has no replica count set", scalererr.ErrOrchestratorRead, k.namespace, deployment)
	}
	return *d.Spec.Replicas, nil
}

// replicaPatch is the strategic-merge-patch body touching only spec.replicas,
// so a concurrent external edit to any other field is never overwritten.
type replicaPatch struct {
	Spec struct {
		Replicas int32 `json:"replicas"`
	} `json:"spec"`
}

// SetReplicas patches a deployment's replica count, scoping the patch to the
// replica field only.
func (k *k8sClient) SetReplicas(ctx context.Context, deployment string, n int32) error {
	patch := replicaPatch{}
	patch.Spec.Replicas = n

	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("%w: marshal patch for %s/%s: %v", scalererr.ErrOrchestratorPatch, k.namespace, deployment, err)
	}

	_, err = k.clientset.AppsV1().Deployments(k.namespace).Patch(
		ctx, deployment, types.StrategicMergePatchType, body, metav1.PatchOptions{},
	)
	if err != nil {
		return fmt.Errorf("%w: patch deployment %s/%s to %d replicas: %v", scalererr.ErrOrchestratorPatch, k.namespace, deployment, n, err)
	}
	return nil
}
