package domain_test

import (
	"context"
	"testing"

	"github.com/amrshaker/taskmill/internal/domain"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status domain.Status
		want   string
	}{
		{domain.StatusPending, "PENDING"},
		{domain.StatusRunning, "RUNNING"},
		{domain.StatusSuccess, "SUCCESS"},
		{domain.StatusFailed, "FAILED"},
		{domain.StatusTimeout, "TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if tt.status.String() != tt.want {
				t.Errorf("String() = %q, want %q", tt.status.String(), tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []domain.Status{domain.StatusSuccess, domain.StatusFailed, domain.StatusTimeout} {
		if !s.IsTerminal() {
			t.Errorf("IsTerminal(%v) = false, want true", s)
		}
	}
	for _, s := range []domain.Status{domain.StatusPending, domain.StatusRunning} {
		if s.IsTerminal() {
			t.Errorf("IsTerminal(%v) = true, want false", s)
		}
	}
}

func TestSetStatus_Monotone(t *testing.T) {
	job := domain.NewJob("j1").Build()
	if job.Status() != domain.StatusPending {
		t.Fatalf("new job status = %v, want PENDING", job.Status())
	}

	job.SetStatus(domain.StatusRunning)
	job.SetStatus(domain.StatusSuccess)

	// A terminal job must not resurrect.
	job.SetStatus(domain.StatusRunning)
	if job.Status() != domain.StatusSuccess {
		t.Errorf("status regressed to %v after terminal SUCCESS", job.Status())
	}
}

func TestBuilder(t *testing.T) {
	ran := false
	job := domain.NewJob("init-db").
		WithCategory("system").
		WithPriority(3).
		WithRetry(1).
		WithTimeout(5000).
		WithTask(func(context.Context) error {
			ran = true
			return nil
		}).
		Build()

	if job.ID != "init-db" || job.Category != "system" {
		t.Errorf("identity fields not carried: id=%q category=%q", job.ID, job.Category)
	}
	if job.Priority != 3 || job.RetryCount != 1 || job.TimeoutMs != 5000 {
		t.Errorf("policy fields not carried: priority=%d retry=%d timeout=%d",
			job.Priority, job.RetryCount, job.TimeoutMs)
	}
	if err := job.Fn(context.Background()); err != nil || !ran {
		t.Errorf("task body not wired: err=%v ran=%v", err, ran)
	}
}

func TestBuilder_Defaults(t *testing.T) {
	job := domain.NewJob("bare").Build()
	if job.Category != "default" {
		t.Errorf("default category = %q, want %q", job.Category, "default")
	}
	if job.Fn == nil {
		t.Fatal("Build must supply a no-op task body")
	}
	if err := job.Fn(context.Background()); err != nil {
		t.Errorf("no-op body returned %v", err)
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&domain.InvalidWorkerError{Index: 7, Count: 4}, "invalid worker index 7: pool has 4 workers"},
		{&domain.PoolClosedError{}, "worker pool is closed"},
		{&domain.GraphStateError{Op: "add node"}, "graph already executing: cannot add node"},
		{&domain.CycleError{Path: []string{"a", "b", "a"}}, "dependency cycle detected: a -> b -> a"},
		{&domain.CycleError{}, "dependency cycle detected"},
	}
	for _, tt := range tests {
		if tt.err.Error() != tt.want {
			t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.want)
		}
	}
}
