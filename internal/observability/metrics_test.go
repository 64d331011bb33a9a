package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"swvanews/internal/config"
)

func TestGroupingLabels(t *testing.T) {
	tests := []struct {
		name       string
		labelsJSON string
		environ    []string
		want       map[string]string
	}{
		{
			name:       "json only",
			labelsJSON: `{"cluster": "prod", "node": "a1"}`,
			want:       map[string]string{"cluster": "prod", "node": "a1"},
		},
		{
			name:    "env only",
			environ: []string{"METRICS_LABEL_POD=scraper-0", "PATH=/usr/bin"},
			want:    map[string]string{"pod": "scraper-0"},
		},
		{
			name:       "env overrides json",
			labelsJSON: `{"pod": "old"}`,
			environ:    []string{"METRICS_LABEL_POD=new"},
			want:       map[string]string{"pod": "new"},
		},
		{
			name:       "malformed json ignored",
			labelsJSON: `{broken`,
			environ:    []string{"METRICS_LABEL_ZONE=east"},
			want:       map[string]string{"zone": "east"},
		},
		{
			name:    "empty values skipped",
			environ: []string{"METRICS_LABEL_EMPTY=", "METRICS_LABEL_=x"},
			want:    map[string]string{},
		},
	}
	for _, tt := range tests {
		got := GroupingLabels(tt.labelsJSON, tt.environ)
		if len(got) != len(tt.want) {
			t.Errorf("%s: labels = %v, want %v", tt.name, got, tt.want)
			continue
		}
		for k, v := range tt.want {
			if got[k] != v {
				t.Errorf("%s: label %s = %q, want %q", tt.name, k, got[k], v)
			}
		}
	}
}

func TestCountersUseLabelDefaults(t *testing.T) {
	m := New(config.Metrics{})

	m.IncLoginAttempt("swva", "http://proxy:8001")
	m.IncLoginAttempt("", "")
	m.IncLoginFailure("", "")

	if got := testutil.ToFloat64(m.LoginAttempts.WithLabelValues("swva", "http://proxy:8001")); got != 1 {
		t.Errorf("labeled attempts = %v", got)
	}
	if got := testutil.ToFloat64(m.LoginAttempts.WithLabelValues("unknown", "direct")); got != 1 {
		t.Errorf("default-labeled attempts = %v", got)
	}
	if got := testutil.ToFloat64(m.LoginFailures.WithLabelValues("unknown", "direct")); got != 1 {
		t.Errorf("failures = %v", got)
	}
}

func TestHistogramsRegistered(t *testing.T) {
	m := New(config.Metrics{JobName: "test_job"})

	m.ObservePagesFound(12, "swva", "")
	m.ObserveAction("login", 1.5, "swva", "")
	stop := m.Timer("discover", "swva", "")
	stop()

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, fam := range families {
		names = append(names, fam.GetName())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"scraper_discover_pages_found", "scraper_action_seconds"} {
		if !strings.Contains(joined, want) {
			t.Errorf("metric %s not gathered; got %v", want, names)
		}
	}
}

func TestPushWithoutGatewayIsNoop(t *testing.T) {
	m := New(config.Metrics{})
	if err := m.Push(); err != nil {
		t.Errorf("push with no gateway configured must be a no-op, got %v", err)
	}
}
