package dashboard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harveywai/certwatch/pkg/api"
	"github.com/pkg/errors"
)

type countingFetcher struct {
	calls int32
	fail  atomic.Bool
}

func (f *countingFetcher) Summary(ctx context.Context) (*api.Summary, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.fail.Load() {
		return nil, errors.New("backend down")
	}
	return &api.Summary{TotalDomains: int(n)}, nil
}

func TestCountersBeforeFirstPoll(t *testing.T) {
	p := New(&countingFetcher{})
	c := p.Counters(time.UTC)
	if c.Total != "0" || c.LastScan != "Never" {
		t.Fatalf("unexpected counters %+v", c)
	}
}

func TestStartPollsOnceAndOnInterval(t *testing.T) {
	f := &countingFetcher{}
	updates := make(chan *api.Summary, 16)
	p := New(f, WithInterval(10*time.Millisecond), WithOnUpdate(func(s *api.Summary) {
		select {
		case updates <- s:
		default:
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	p.Start(ctx)

	if p.Summary() == nil {
		t.Fatalf("expected an immediate refresh on start")
	}
	deadline := time.After(2 * time.Second)
	for seen := 0; seen < 3; {
		select {
		case <-updates:
			seen++
		case <-deadline:
			t.Fatalf("expected periodic refreshes")
		}
	}
	if p.Updated().IsZero() {
		t.Fatalf("expected update time")
	}
}

func TestRefreshFailureKeepsLastSummary(t *testing.T) {
	f := &countingFetcher{}
	p := New(f)
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	f.fail.Store(true)
	if err := p.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if s := p.Summary(); s == nil || s.TotalDomains != 1 {
		t.Fatalf("expected previous summary kept, got %+v", s)
	}
}
