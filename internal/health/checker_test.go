package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestStatic_ReturnsCopy(t *testing.T) {
	c := Static(NewResult("a", false, 1))
	r1, err := c.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	r1[0].IsDown = true

	r2, _ := c.CheckHealth(context.Background())
	if r2[0].IsDown {
		t.Fatal("Static leaked a mutable report between calls")
	}
}

func TestGather_OrderAndOutcome(t *testing.T) {
	c := Gather(
		Dependency{Name: "slow-up", Probe: CheckFunc(func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		})},
		Dependency{Name: "down", Probe: Fixed(false, "refused")},
		Dependency{Name: "optional-down", NonCritical: true, Probe: Fixed(false, "refused")},
	)

	r, err := c.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if len(r) != 3 {
		t.Fatalf("len = %d, want 3", len(r))
	}
	names := []string{r[0].DependencyName, r[1].DependencyName, r[2].DependencyName}
	if names[0] != "slow-up" || names[1] != "down" || names[2] != "optional-down" {
		t.Fatalf("order = %v, want declaration order", names)
	}
	if r[0].IsDown || !r[1].IsDown || !r[2].IsDown {
		t.Fatalf("IsDown = %v %v %v", r[0].IsDown, r[1].IsDown, r[2].IsDown)
	}
	if !r[1].IsCritical || r[2].IsCritical {
		t.Fatal("criticality not carried from Dependency")
	}
	if r[0].ResponseTimeMilliseconds < 20 {
		t.Fatalf("slow probe latency = %dms, want >= 20", r[0].ResponseTimeMilliseconds)
	}
	for _, res := range r {
		if res.MachineName == "" {
			t.Fatal("MachineName empty")
		}
	}
}

func TestGather_RunsConcurrently(t *testing.T) {
	var running, peak atomic.Int32
	slow := CheckFunc(func(context.Context) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		return nil
	})
	c := Gather(
		Dependency{Name: "a", Probe: slow},
		Dependency{Name: "b", Probe: slow},
		Dependency{Name: "c", Probe: slow},
	)
	if _, err := c.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if peak.Load() < 2 {
		t.Fatalf("peak concurrency = %d, want probes to overlap", peak.Load())
	}
}

func TestGather_PanicAndNilProbeAreDown(t *testing.T) {
	c := Gather(
		Dependency{Name: "panics", Probe: CheckFunc(func(context.Context) error { panic("boom") })},
		Dependency{Name: "missing"},
	)
	r, err := c.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !r[0].IsDown || !r[1].IsDown {
		t.Fatalf("report = %+v, want both down", r)
	}
	if r.Healthy() {
		t.Fatal("report with critical panicking probe should be unhealthy")
	}
}

func TestGather_Timeout(t *testing.T) {
	c := Gather(Dependency{
		Name:    "hangs",
		Timeout: 10 * time.Millisecond,
		Probe: CheckFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	})
	r, err := c.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !r[0].IsDown {
		t.Fatal("probe that timed out should be down")
	}
}

func TestGather_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Gather(Dependency{Name: "a", Probe: Fixed(true, "")}).CheckHealth(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestGather_Empty(t *testing.T) {
	r, err := Gather().CheckHealth(context.Background())
	if err != nil || len(r) != 0 || !r.Healthy() {
		t.Fatalf("Gather() = %v, %v; want empty healthy report", r, err)
	}
}

func TestGather_DependenciesCriticalByDefault(t *testing.T) {
	r, err := Gather(Dependency{Name: "db", Probe: Fixed(false, "down")}).CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if len(r) != 1 || !r[0].IsCritical || !r[0].IsDown {
		t.Fatalf("report = %+v, want db critical and down", r)
	}
	if got := r.StatusCode(); got != 503 {
		t.Fatalf("StatusCode = %d, want 503", got)
	}
}
