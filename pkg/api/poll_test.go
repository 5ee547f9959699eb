package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastPoll(retries int) pollSettings {
	return pollSettings{
		initialDelay: time.Millisecond,
		maxDelay:     5 * time.Millisecond,
		maxRetries:   retries,
	}
}

func TestPollSubmittedThenSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"job_id":"j","status":0}`))
			return
		}
		_, _ = w.Write([]byte(`{"job_id":"j","status":4,"class_hash":"0x1"}`))
	}))
	defer server.Close()

	client, _ := NewClient(Config{BaseURL: server.URL})
	client.poll = fastPoll(20)

	var observed []JobStatus
	job, err := client.PollVerificationStatus(context.Background(), "j", func(j VerificationJob) {
		observed = append(observed, j.Status)
	})
	if err != nil {
		t.Fatalf("PollVerificationStatus: %v", err)
	}
	if job.Status != StatusSuccess {
		t.Errorf("final status = %s", job.Status)
	}

	// The observer sees both the intermediate and the final record.
	if len(observed) != 2 {
		t.Fatalf("observer fired %d times, want 2", len(observed))
	}
	if observed[0] != StatusSubmitted || observed[1] != StatusSuccess {
		t.Errorf("observed = %v", observed)
	}
}

func TestPollBudgetExhaustion(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"job_id":"j","status":5}`))
	}))
	defer server.Close()

	client, _ := NewClient(Config{BaseURL: server.URL})
	client.poll = fastPoll(3)

	_, err := client.PollVerificationStatus(context.Background(), "j", nil)
	if !IsInProgress(err) {
		t.Fatalf("error = %v, want ErrInProgress", err)
	}
	// Initial attempt plus the retry budget.
	if got := calls.Load(); got != 4 {
		t.Errorf("status fetches = %d, want 4", got)
	}
}

func TestPollTerminalFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"job_id":"j","status":3,"message":"class hash mismatch"}`))
	}))
	defer server.Close()

	client, _ := NewClient(Config{BaseURL: server.URL})
	client.poll = fastPoll(20)

	_, err := client.PollVerificationStatus(context.Background(), "j", nil)
	var verErr *VerificationError
	if !errors.As(err, &verErr) {
		t.Fatalf("error = %T, want *VerificationError", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("status fetches = %d, terminal failures must never be retried", got)
	}
}

func TestPollNotFoundNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := NewClient(Config{BaseURL: server.URL})
	client.poll = fastPoll(20)

	_, err := client.PollVerificationStatus(context.Background(), "j", nil)
	var notFound *JobNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %T, want *JobNotFoundError", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("status fetches = %d, want 1", got)
	}
}

func TestPollObserverPanicDoesNotAbort(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"job_id":"j","status":0}`))
			return
		}
		_, _ = w.Write([]byte(`{"job_id":"j","status":4}`))
	}))
	defer server.Close()

	client, _ := NewClient(Config{BaseURL: server.URL})
	client.poll = fastPoll(20)

	job, err := client.PollVerificationStatus(context.Background(), "j", func(VerificationJob) {
		panic("observer bug")
	})
	if err != nil {
		t.Fatalf("PollVerificationStatus: %v", err)
	}
	if job.Status != StatusSuccess {
		t.Errorf("final status = %s", job.Status)
	}
}

func TestPollContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"job_id":"j","status":5}`))
	}))
	defer server.Close()

	client, _ := NewClient(Config{BaseURL: server.URL})
	client.poll = pollSettings{initialDelay: time.Hour, maxDelay: time.Hour, maxRetries: 20}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.PollVerificationStatus(ctx, "j", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestPollBackoffIsBoundedAndNonDecreasing(t *testing.T) {
	settings := defaultPollSettings()
	delay := settings.initialDelay
	prev := time.Duration(0)

	for i := 0; i < settings.maxRetries; i++ {
		if delay < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", i, delay, prev)
		}
		if delay > settings.maxDelay {
			t.Fatalf("delay %v exceeds cap %v", delay, settings.maxDelay)
		}
		prev = delay
		delay *= 2
		if delay > settings.maxDelay {
			delay = settings.maxDelay
		}
	}

	if settings.initialDelay != 2*time.Second {
		t.Errorf("initial delay = %v, want 2s", settings.initialDelay)
	}
	if settings.maxDelay != 300*time.Second {
		t.Errorf("delay cap = %v, want 300s", settings.maxDelay)
	}
	if settings.maxRetries != 20 {
		t.Errorf("retry budget = %d, want 20", settings.maxRetries)
	}
}
