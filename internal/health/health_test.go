package health

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected 0 statuses, got %d", len(statuses))
	}
}

func TestRegistryAllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("eventlog", func(_ context.Context) Status {
		return Status{Healthy: true}
	})
	r.Register("phishing", func(_ context.Context) Status {
		return Status{Name: "phishing", Healthy: true, Detail: "http://localhost:8001/api/v1/analyze"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("all-healthy registry should report healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Name != "eventlog" {
		t.Fatalf("expected registered name to fill in, got %q", statuses[0].Name)
	}
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("eventlog", func(_ context.Context) Status {
		return Status{Name: "eventlog", Healthy: true}
	})
	r.Register("phishing", func(_ context.Context) Status {
		return Status{Name: "phishing", Healthy: false, Detail: "connection refused"}
	})

	healthy, rep := r.Report(context.Background())
	if healthy {
		t.Fatal("registry with unhealthy checker should report unhealthy")
	}
	if rep.Status != "degraded" {
		t.Fatalf("expected degraded, got %q", rep.Status)
	}
	if rep.Checks[1].Detail != "connection refused" {
		t.Fatalf("expected detail 'connection refused', got %q", rep.Checks[1].Detail)
	}
}

func TestRegistryTimeout(t *testing.T) {
	r := NewRegistry()
	r.timeout = 20 * time.Millisecond
	release := make(chan struct{})
	defer close(release)
	r.Register("slow", func(_ context.Context) Status {
		<-release
		return Status{Healthy: true}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("timed out checker should be unhealthy")
	}
	if statuses[0].Name != "slow" || statuses[0].Detail != "check timed out" {
		t.Fatalf("unexpected status %+v", statuses[0])
	}
}

func TestRegistryConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	// Register concurrently
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register("checker", func(_ context.Context) Status {
				return Status{Name: "checker", Healthy: true}
			})
		}()
	}

	// Check concurrently
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}

	wg.Wait()
}
