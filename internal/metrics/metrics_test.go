package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/tasks"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func TestCollector(t *testing.T) {
	t.Run("counters", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		c := NewCollector(reg)

		c.Imported(5)
		c.Created(10 * time.Millisecond)
		c.Created(20 * time.Millisecond)
		c.Failed(models.ReasonAlreadyExists)

		if v := gather(t, reg, "umx_users_imported_total")[0].GetCounter().GetValue(); v != 5 {
			t.Errorf("imported = %v, want 5", v)
		}
		if v := gather(t, reg, "umx_users_created_total")[0].GetCounter().GetValue(); v != 2 {
			t.Errorf("created = %v, want 2", v)
		}
		if n := gather(t, reg, "umx_create_latency_seconds")[0].GetHistogram().GetSampleCount(); n != 2 {
			t.Errorf("latency samples = %d, want 2", n)
		}
	})

	t.Run("failures by reason", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		c := NewCollector(reg)

		c.Failed(models.ReasonInvalidRecord)
		c.Failed(models.ReasonInvalidRecord)
		c.Failed(models.ReasonCreateFailed)

		got := map[string]float64{}
		for _, m := range gather(t, reg, "umx_users_failed_total") {
			got[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}

		want := map[string]float64{"invalid-record": 2, "already-exists": 0, "create-failed": 1}
		for k, v := range want {
			if got[k] != v {
				t.Errorf("failed{reason=%s} = %v, want %v", k, got[k], v)
			}
		}
	})

	t.Run("finished", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		c := NewCollector(reg)

		at := time.Unix(1700000000, 0)
		c.Finished(at)

		if v := gather(t, reg, "umx_last_run_timestamp_seconds")[0].GetGauge().GetValue(); v != 1700000000 {
			t.Errorf("last run = %v, want 1700000000", v)
		}
	})
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.Imported(2)
	c.Created(time.Millisecond)

	path := filepath.Join(t.TempDir(), "umx.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	content := string(data)

	for _, want := range []string{"umx_users_imported_total 2", "umx_users_created_total 1", "# TYPE umx_create_latency_seconds histogram"} {
		if !strings.Contains(content, want) {
			t.Errorf("textfile missing %q:\n%s", want, content)
		}
	}

	if err := c.WriteTextfile(filepath.Join(t.TempDir(), "missing", "umx.prom")); err == nil {
		t.Error("expected error for unwritable path")
	}
}

func TestNop(t *testing.T) {
	var r tasks.Recorder = Nop{}
	r.Imported(1)
	r.Created(time.Second)
	r.Failed(models.ReasonCreateFailed)
	r.Finished(time.Now())
}
