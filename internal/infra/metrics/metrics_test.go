package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestObserveNotificationCountsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	labels := map[string]string{"channel": "moderation", "status": "error"}
	before := counterValue(t, reg, "bot_notifications_total", labels)
	ObserveNotification("moderation", errors.New("boom"))
	after := counterValue(t, reg, "bot_notifications_total", labels)
	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestObserveCommandDefaultsName(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	labels := map[string]string{"command": "unknown", "outcome": "success"}
	before := counterValue(t, reg, "bot_commands_total", labels)
	ObserveCommand("", "success", time.Now())
	after := counterValue(t, reg, "bot_commands_total", labels)
	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, got %v", after-before)
	}
}
