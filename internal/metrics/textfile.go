package metrics

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stone-age-io/inventory-agent/internal/probe"
)

// Metric names written to the textfile
const (
	NameCycles             = "inventory_agent_cycles_total"
	NameLastCycle          = "inventory_agent_last_cycle_timestamp_seconds"
	NameLastSuccess        = "inventory_agent_last_success_timestamp_seconds"
	NameCycleDuration      = "inventory_agent_cycle_duration_seconds"
	NameVirtualizationInfo = "inventory_agent_virtualization_detected"
)

// Sample is the agent state exported after a reporting cycle
type Sample struct {
	CyclesSucceeded int64
	CyclesFailed    int64
	LastCycle       time.Time
	LastSuccess     time.Time
	LastDuration    time.Duration
	Detections      []probe.Detection
}

// Families converts a sample to Prometheus metric families. Every known
// virtualization method gets a series so absence is reported as 0.
func Families(s Sample) []*dto.MetricFamily {
	present := make(map[string]bool, len(s.Detections))
	for _, d := range s.Detections {
		present[d.Method] = d.Present()
	}

	detected := make([]*dto.Metric, 0, len(probe.DefaultProbes))
	for _, p := range probe.DefaultProbes {
		detected = append(detected, gauge(boolValue(present[p.Method]), "method", p.Method))
	}

	return []*dto.MetricFamily{
		family(NameCycles, "Reporting cycles by result.", dto.MetricType_COUNTER,
			counter(float64(s.CyclesSucceeded), "result", "success"),
			counter(float64(s.CyclesFailed), "result", "failure"),
		),
		family(NameLastCycle, "Unix time of the last reporting cycle.", dto.MetricType_GAUGE,
			gauge(unixSeconds(s.LastCycle)),
		),
		family(NameLastSuccess, "Unix time of the last report accepted by the server.", dto.MetricType_GAUGE,
			gauge(unixSeconds(s.LastSuccess)),
		),
		family(NameCycleDuration, "Duration of the last reporting cycle.", dto.MetricType_GAUGE,
			gauge(s.LastDuration.Seconds()),
		),
		family(NameVirtualizationInfo, "Whether a virtualization method was detected (1) or not (0).", dto.MetricType_GAUGE,
			detected...,
		),
	}
}

// WriteTextfile renders the sample and atomically replaces path, so the
// node_exporter textfile collector never reads a partial file
func WriteTextfile(path string, s Sample) error {
	var buf bytes.Buffer
	for _, mf := range Families(s) {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}

func family(name, help string, typ dto.MetricType, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   &name,
		Help:   &help,
		Type:   typ.Enum(),
		Metric: metrics,
	}
}

func gauge(value float64, labels ...string) *dto.Metric {
	return &dto.Metric{Label: labelPairs(labels), Gauge: &dto.Gauge{Value: &value}}
}

func counter(value float64, labels ...string) *dto.Metric {
	return &dto.Metric{Label: labelPairs(labels), Counter: &dto.Counter{Value: &value}}
}

// labelPairs turns "name", "value", ... into label pairs
func labelPairs(kv []string) []*dto.LabelPair {
	pairs := make([]*dto.LabelPair, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		name, value := kv[i], kv[i+1]
		pairs = append(pairs, &dto.LabelPair{Name: &name, Value: &value})
	}
	return pairs
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
