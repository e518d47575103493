package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
node:
  name: app@10.0.0.1
  network: prod
  listen: ":7946"
log_level: debug
metrics_addr: "127.0.0.1:9102"
journal: /var/lib/clusterlink/journal.db
supervisor:
  max_restarts: 5
  period: 10s
  backoff: 250ms
topologies:
  - name: k8s
    strategy: dns
    transport:
      port: 7947
      dial_timeout: 2s
    config:
      service: app.default.svc
      basename: app
  - name: lan
    strategy: gossip
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Node.Name != "app@10.0.0.1" || cfg.Node.Network != "prod" {
		t.Errorf("node = %+v", cfg.Node)
	}
	if cfg.Supervisor.Period != 10*time.Second || cfg.Supervisor.Backoff != 250*time.Millisecond {
		t.Errorf("supervisor = %+v", cfg.Supervisor)
	}
	if len(cfg.Topologies) != 2 {
		t.Fatalf("topologies = %d, want 2", len(cfg.Topologies))
	}

	k8s := cfg.Topologies[0]
	if k8s.Transport.Kind != TransportGRPC || k8s.Transport.Port != 7947 || k8s.Transport.DialTimeout != 2*time.Second {
		t.Errorf("transport = %+v", k8s.Transport)
	}
	var strategyCfg struct {
		Service string `yaml:"service"`
	}
	if err := k8s.Config.Decode(&strategyCfg); err != nil {
		t.Fatalf("decode strategy config: %v", err)
	}
	if strategyCfg.Service != "app.default.svc" {
		t.Errorf("service = %q", strategyCfg.Service)
	}
	if cfg.Topologies[1].Config.Kind != 0 {
		t.Errorf("missing strategy config decoded as kind %v", cfg.Topologies[1].Config.Kind)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	_, err := Parse([]byte(`
node:
  name: nohost
topologies:
  - name: a
    strategy: dns
    transport: {kind: carrier-pigeon}
  - name: a
`))
	if err == nil {
		t.Fatal("Parse() error = nil")
	}
	for _, want := range []string{
		"basename@host",
		"node.network is required",
		"unsupported transport",
		`duplicate topology "a"`,
		"topologies[1]: strategy is required",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateRequiresTopologies(t *testing.T) {
	_, err := Parse([]byte("node: {name: a@b, network: n}"))
	if err == nil || !strings.Contains(err.Error(), "at least one topology") {
		t.Fatalf("Parse() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clusterd.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("Load(missing) error = nil")
	}
}

func TestPathRespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := Path(); got != "/tmp/xdg/clusterlink/clusterd.yaml" {
		t.Fatalf("Path() = %q", got)
	}
}
