// Package client builds the clientset this controller needs: a typed
// client for Ingress/Service/ConfigMap/Lease CRUD. The watch-side
// informers are built from it in pkg/operator. Mirrors the teacher's
// operatorclient.GetScheme() role, generalised to this controller's
// narrower set of watched kinds.
package client

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewRESTConfig builds a config from kubeconfigPath when it is set (for
// local development) and otherwise returns the in-cluster config.
func NewRESTConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("building config from kubeconfig %q: %w", kubeconfigPath, err)
		}
		return cfg, nil
	}

	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("building in-cluster config: %w", err)
	}
	return cfg, nil
}

// New returns a typed Clientset for the given REST config.
func New(cfg *rest.Config) (kubernetes.Interface, error) {
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building clientset: %w", err)
	}
	return clientset, nil
}
