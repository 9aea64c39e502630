/*
Copyright The CloudNativePG Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cluster is the typed façade over the subset of the cluster API
// the controllers need: volume snapshots, PVCs, pods, secrets, storage
// classes, exec and log/event streaming. Credential discovery tries
// in-cluster first, then an explicit kubeconfig path, then the default
// kubeconfig; failing all three is fatal at startup.
package cluster

import (
	"fmt"
	"os"
	"path/filepath"

	snapshotclientset "github.com/kubernetes-csi/external-snapshotter/client/v7/clientset/versioned"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
)

// Client wraps the clientsets used to talk to the cluster
type Client struct {
	Kube     kubernetes.Interface
	Snapshot snapshotclientset.Interface
	Dynamic  dynamic.Interface
	Config   *rest.Config
}

// NewClient resolves credentials in order: in-cluster token, explicit
// kubeconfig path, default kubeconfig. Failure to obtain any is fatal.
func NewClient(kubeconfigPath string) (*Client, error) {
	cfg, err := resolveConfig(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("cannot build cluster client configuration: %w", err)
	}

	kubeClient, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("cannot build kubernetes client: %w", err)
	}

	snapshotClient, err := snapshotclientset.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("cannot build volume snapshot client: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("cannot build dynamic client: %w", err)
	}

	return &Client{Kube: kubeClient, Snapshot: snapshotClient, Dynamic: dynamicClient, Config: cfg}, nil
}

func resolveConfig(kubeconfigPath string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	if kubeconfigPath != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}

	if home, err := os.UserHomeDir(); err == nil {
		defaultPath := filepath.Join(home, ".kube", "config")
		if _, statErr := os.Stat(defaultPath); statErr == nil {
			return clientcmd.BuildConfigFromFlags("", defaultPath)
		}
	}

	// last resort: controller-runtime's resolution chain, which also
	// honors the KUBECONFIG environment variable
	if cfg, err := ctrl.GetConfig(); err == nil {
		return cfg, nil
	}

	return nil, fmt.Errorf("no in-cluster config, no --kubeconfig, and no default kubeconfig found")
}
