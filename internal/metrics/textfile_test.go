package metrics

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stone-age-io/inventory-agent/internal/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeFile(t *testing.T, path string) map[string]*dto.MetricFamily {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	decoder := expfmt.NewDecoder(f, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)
	for {
		mf := &dto.MetricFamily{}
		err := decoder.Decode(mf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		families[mf.GetName()] = mf
	}
	return families
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "inventory_agent.prom")
	last := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	err := WriteTextfile(path, Sample{
		CyclesSucceeded: 3,
		CyclesFailed:    1,
		LastCycle:       last,
		LastSuccess:     last,
		LastDuration:    1500 * time.Millisecond,
		Detections: []probe.Detection{
			{Method: "docker", State: probe.DetectionActive},
			{Method: "proxmox", State: probe.DetectionInactive},
			{Method: "kvm", State: probe.DetectionInstalled},
		},
	})
	require.NoError(t, err)

	families := decodeFile(t, path)

	cycles := families[NameCycles]
	require.NotNil(t, cycles)
	assert.Equal(t, dto.MetricType_COUNTER, cycles.GetType())
	byResult := map[string]float64{}
	for _, m := range cycles.GetMetric() {
		byResult[labelValue(m, "result")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"success": 3, "failure": 1}, byResult)

	assert.Equal(t, float64(last.Unix()), families[NameLastCycle].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1.5, families[NameCycleDuration].GetMetric()[0].GetGauge().GetValue())

	detected := map[string]float64{}
	for _, m := range families[NameVirtualizationInfo].GetMetric() {
		detected[labelValue(m, "method")] = m.GetGauge().GetValue()
	}
	assert.Equal(t, map[string]float64{
		"docker": 1, "proxmox": 0, "lxc": 0, "qemu": 0, "kvm": 1,
	}, detected)
}

func TestWriteTextfileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory_agent.prom")

	require.NoError(t, WriteTextfile(path, Sample{CyclesSucceeded: 1}))
	require.NoError(t, WriteTextfile(path, Sample{CyclesSucceeded: 2}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	families := decodeFile(t, path)
	for _, m := range families[NameCycles].GetMetric() {
		if labelValue(m, "result") == "success" {
			assert.Equal(t, float64(2), m.GetCounter().GetValue())
		}
	}
}

func TestFamiliesZeroSample(t *testing.T) {
	families := Families(Sample{})

	require.Len(t, families, 5)
	assert.Equal(t, float64(0), families[1].GetMetric()[0].GetGauge().GetValue())
	assert.Len(t, families[4].GetMetric(), len(probe.DefaultProbes))
}
