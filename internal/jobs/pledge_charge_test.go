package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/temple4/community-core/internal/config"
	"github.com/temple4/community-core/internal/giving"
)

var chargeNow = time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)

type advanceCall struct {
	pledgeID  string
	succeeded bool
	at        time.Time
}

// fakeAdvancer keeps pledges in memory; a successful advance moves the pledge a month ahead.
type fakeAdvancer struct {
	mu       sync.Mutex
	pledges  map[string]*giving.Pledge
	calls    []advanceCall
	listErr  error
	failIDs  map[string]bool
	listings int
}

func newFakeAdvancer(pledges ...*giving.Pledge) *fakeAdvancer {
	f := &fakeAdvancer{pledges: map[string]*giving.Pledge{}, failIDs: map[string]bool{}}
	for _, p := range pledges {
		f.pledges[p.ID] = p
	}
	return f
}

func (f *fakeAdvancer) ListDuePledges(_ context.Context, _ string, limit int) ([]*giving.Pledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var due []*giving.Pledge
	for _, p := range f.pledges {
		if p.Status == giving.PledgeActive && !p.NextChargeAt.After(chargeNow) {
			cp := *p
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeAdvancer) AdvancePledge(_ context.Context, _, id string, ok bool, at time.Time) (*giving.Pledge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, advanceCall{id, ok, at})
	if f.failIDs[id] {
		return nil, errors.New("deadlock detected")
	}
	p := f.pledges[id]
	if ok {
		p.NextChargeAt = p.NextChargeAt.AddDate(0, 1, 0)
	} else {
		p.Status = giving.PledgePaused
	}
	return p, nil
}

// fakeGateway answers per pledge ID; unknown IDs succeed.
type fakeGateway struct {
	mu       sync.Mutex
	declined map[string]bool
	broken   map[string]bool
	requests []ChargeRequest
	block    chan struct{}
}

func (g *fakeGateway) Charge(_ context.Context, req ChargeRequest) (bool, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.broken[req.PledgeID] {
		return false, errors.New("connection reset by peer")
	}
	return !g.declined[req.PledgeID], nil
}

func duePledge(id string, daysAgo int) *giving.Pledge {
	p := testPledge()
	p.ID = id
	p.NextChargeAt = chargeNow.AddDate(0, 0, -daysAgo)
	return p
}

func TestPledgeChargeJob_RunOnce(t *testing.T) {
	future := duePledge("p-future", -3)
	adv := newFakeAdvancer(duePledge("p-ok", 1), duePledge("p-declined", 2), duePledge("p-broken", 0), future)
	gw := &fakeGateway{declined: map[string]bool{"p-declined": true}, broken: map[string]bool{"p-broken": true}}
	job := NewPledgeChargeJob(adv, gw, config.PledgeChargeJobConfig{BatchSize: 10})
	job.now = func() time.Time { return chargeNow }

	stats, ok := job.RunOnce(context.Background())
	if !ok {
		t.Fatal("RunOnce reported a concurrent run")
	}
	want := ChargeRunStats{Due: 3, Succeeded: 1, Declined: 1, Errors: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}

	if len(adv.calls) != 2 {
		t.Fatalf("AdvancePledge calls = %d, want 2 (gateway errors are retried later)", len(adv.calls))
	}
	for _, c := range adv.calls {
		if c.pledgeID == "p-broken" {
			t.Error("pledge with unknown charge outcome was advanced")
		}
		if c.succeeded && !c.at.Equal(adv.pledges[c.pledgeID].NextChargeAt.AddDate(0, -1, 0)) {
			t.Errorf("advance for %s used %v, want the scheduled due date", c.pledgeID, c.at)
		}
		if !c.succeeded && !c.at.Equal(chargeNow) {
			t.Errorf("decline for %s used %v, want the attempt time %v", c.pledgeID, c.at, chargeNow)
		}
	}
	if adv.calls[0].pledgeID == "p-declined" && adv.calls[0].succeeded {
		t.Error("declined charge advanced as success")
	}
}

func TestPledgeChargeJob_AdvancesAtScheduledDate(t *testing.T) {
	p := duePledge("p-1", 5)
	scheduled := p.NextChargeAt
	adv := newFakeAdvancer(p)
	job := NewPledgeChargeJob(adv, &fakeGateway{}, config.PledgeChargeJobConfig{})

	job.RunOnce(context.Background())

	if len(adv.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(adv.calls))
	}
	if !adv.calls[0].at.Equal(scheduled) {
		t.Errorf("at = %v, want scheduled date %v", adv.calls[0].at, scheduled)
	}
}

func TestPledgeChargeJob_DeclineUsesAttemptTime(t *testing.T) {
	p := duePledge("p-1", 5)
	adv := newFakeAdvancer(p)
	job := NewPledgeChargeJob(adv, &fakeGateway{declined: map[string]bool{"p-1": true}}, config.PledgeChargeJobConfig{})
	attempt := chargeNow.Add(17 * time.Minute)
	job.now = func() time.Time { return attempt }

	job.RunOnce(context.Background())

	if len(adv.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(adv.calls))
	}
	if adv.calls[0].succeeded {
		t.Fatal("declined charge advanced as success")
	}
	if !adv.calls[0].at.Equal(attempt) {
		t.Errorf("at = %v, want attempt time %v", adv.calls[0].at, attempt)
	}
}

func TestPledgeChargeJob_PagesThroughBatches(t *testing.T) {
	var pledges []*giving.Pledge
	for i := 0; i < 7; i++ {
		pledges = append(pledges, duePledge(fmt.Sprintf("p-%02d", i), 1))
	}
	adv := newFakeAdvancer(pledges...)
	gw := &fakeGateway{}
	job := NewPledgeChargeJob(adv, gw, config.PledgeChargeJobConfig{BatchSize: 3})

	stats, _ := job.RunOnce(context.Background())
	if stats.Succeeded != 7 {
		t.Errorf("Succeeded = %d, want 7", stats.Succeeded)
	}
	if len(gw.requests) != 7 {
		t.Errorf("gateway requests = %d, want 7 (each pledge charged once)", len(gw.requests))
	}
}

func TestPledgeChargeJob_StopsWhenBatchBringsNothingNew(t *testing.T) {
	// every charge errors, so the same pledges stay due forever
	adv := newFakeAdvancer(duePledge("p-1", 1), duePledge("p-2", 1))
	gw := &fakeGateway{broken: map[string]bool{"p-1": true, "p-2": true}}
	job := NewPledgeChargeJob(adv, gw, config.PledgeChargeJobConfig{BatchSize: 2})

	stats, _ := job.RunOnce(context.Background())
	if stats.Errors != 2 {
		t.Errorf("Errors = %d, want 2", stats.Errors)
	}
	if adv.listings != 2 {
		t.Errorf("listings = %d, want 2", adv.listings)
	}
}

func TestPledgeChargeJob_AdvanceErrorCounted(t *testing.T) {
	adv := newFakeAdvancer(duePledge("p-1", 1))
	adv.failIDs["p-1"] = true
	job := NewPledgeChargeJob(adv, &fakeGateway{}, config.PledgeChargeJobConfig{})

	stats, _ := job.RunOnce(context.Background())
	if stats.Errors != 1 || stats.Succeeded != 0 {
		t.Errorf("stats = %+v, want one error", stats)
	}
}

func TestPledgeChargeJob_ListError(t *testing.T) {
	adv := newFakeAdvancer()
	adv.listErr = errors.New("db down")
	job := NewPledgeChargeJob(adv, &fakeGateway{}, config.PledgeChargeJobConfig{})

	stats, ok := job.RunOnce(context.Background())
	if !ok || stats != (ChargeRunStats{}) {
		t.Errorf("RunOnce = %+v, %v; want empty stats, true", stats, ok)
	}
}

func TestPledgeChargeJob_SingleFlight(t *testing.T) {
	adv := newFakeAdvancer(duePledge("p-1", 1))
	gw := &fakeGateway{block: make(chan struct{})}
	job := NewPledgeChargeJob(adv, gw, config.PledgeChargeJobConfig{})

	done := make(chan struct{})
	go func() {
		job.RunOnce(context.Background())
		close(done)
	}()

	// wait until the first run is inside the gateway call
	deadline := time.After(2 * time.Second)
	for {
		adv.mu.Lock()
		listed := adv.listings
		adv.mu.Unlock()
		if listed > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first run never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, ok := job.RunOnce(context.Background()); ok {
		t.Error("second concurrent run was not collapsed")
	}
	close(gw.block)
	<-done
}

func TestPledgeChargeJob_StartStop(t *testing.T) {
	adv := newFakeAdvancer(duePledge("p-1", 1))
	job := NewPledgeChargeJob(adv, &fakeGateway{}, config.PledgeChargeJobConfig{Interval: time.Hour})

	job.Start(context.Background())
	deadline := time.After(2 * time.Second)
	for {
		adv.mu.Lock()
		n := len(adv.calls)
		adv.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("initial run did not happen")
		case <-time.After(5 * time.Millisecond):
		}
	}
	job.Stop()
}
