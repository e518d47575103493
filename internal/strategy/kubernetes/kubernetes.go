// Package kubernetes discovers peers from the Endpoints objects matching a
// label selector, read from the Kubernetes API with the pod's service
// account token.
package kubernetes

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"clusterlink"
	"clusterlink/internal/strategy"
	"clusterlink/internal/telemetry"

	"gopkg.in/yaml.v3"
)

const (
	Name = "kubernetes"

	serviceAccountDir = "/var/run/secrets/kubernetes.io/serviceaccount"
	defaultAPIServer  = "https://kubernetes.default.svc"
	defaultTimeout    = 5 * time.Second
)

type Config struct {
	APIServer string `yaml:"api_server"`
	Namespace string `yaml:"namespace"`
	// Selector is a label selector, e.g. "app=myapp".
	Selector string `yaml:"selector"`
	Basename string `yaml:"basename"`

	TokenFile     string        `yaml:"token_file"`
	CACertFile    string        `yaml:"ca_cert_file"`
	NamespaceFile string        `yaml:"namespace_file"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Timeout       time.Duration `yaml:"timeout"`
}

type Strategy struct {
	state  *strategy.State[Config, strategy.PollMeta]
	client *http.Client
}

func New(deps strategy.Deps, node *yaml.Node) (strategy.Strategy, error) {
	return newStrategy(deps, node)
}

func newStrategy(deps strategy.Deps, node *yaml.Node) (*Strategy, error) {
	cfg := Config{
		APIServer:     defaultAPIServer,
		TokenFile:     serviceAccountDir + "/token",
		CACertFile:    serviceAccountDir + "/ca.crt",
		NamespaceFile: serviceAccountDir + "/namespace",
		Timeout:       defaultTimeout,
	}
	if err := strategy.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Selector) == "" {
		return nil, errors.New("kubernetes strategy requires a selector")
	}
	if strings.TrimSpace(cfg.Basename) == "" {
		return nil, errors.New("kubernetes strategy requires a basename")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = readNamespace(cfg.NamespaceFile)
	}

	client, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	state, err := strategy.NewState[Config, strategy.PollMeta](deps, cfg)
	if err != nil {
		return nil, err
	}
	return &Strategy{state: state, client: client}, nil
}

func readNamespace(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "default"
	}
	if ns := strings.TrimSpace(string(data)); ns != "" {
		return ns
	}
	return "default"
}

// newHTTPClient trusts the cluster CA when the file exists and falls back to
// the system pool otherwise.
func newHTTPClient(cfg Config) (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	pem, err := os.ReadFile(cfg.CACertFile)
	switch {
	case err == nil:
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = pool
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read CA %s: %w", cfg.CACertFile, err)
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = tlsConfig
	return &http.Client{Transport: tr, Timeout: cfg.Timeout}, nil
}

func (s *Strategy) Run(ctx context.Context) error {
	return strategy.Poll(ctx, s.state, Name, s.state.Config.PollInterval, s.Discover)
}

type endpointsList struct {
	Items []struct {
		Subsets []struct {
			Addresses []struct {
				IP string `json:"ip"`
			} `json:"addresses"`
		} `json:"subsets"`
	} `json:"items"`
}

// Discover lists the ready endpoint addresses once. Not-ready addresses are
// skipped.
func (s *Strategy) Discover(ctx context.Context) ([]clusterlink.PeerID, error) {
	cfg := s.state.Config
	token, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("read service account token: %w", err)
	}

	u, err := url.Parse(strings.TrimSuffix(cfg.APIServer, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api server: %w", err)
	}
	u = u.JoinPath("api", "v1", "namespaces", cfg.Namespace, "endpoints")
	u.RawQuery = url.Values{"labelSelector": {cfg.Selector}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(string(token)))
	req.Header.Set("Accept", "application/json")

	resp, err := telemetry.Request(ctx, s.state.Emitter, s.state.Topology, s.client, req)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list endpoints: unexpected status %s", resp.Status)
	}

	var list endpointsList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode endpoints: %w", err)
	}

	var peers []clusterlink.PeerID
	for _, item := range list.Items {
		for _, subset := range item.Subsets {
			for _, addr := range subset.Addresses {
				if addr.IP == "" {
					continue
				}
				peers = append(peers, clusterlink.PeerID(cfg.Basename+"@"+addr.IP))
			}
		}
	}
	return peers, nil
}
