package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flor3z/matchwatch/internal/report"
	"github.com/flor3z/matchwatch/internal/riot"
	"github.com/flor3z/matchwatch/internal/storage"
)

// fakeStore keeps accounts in memory and applies the same narrow writes as
// the SQLite repository
type fakeStore struct {
	mu       sync.Mutex
	accounts []*storage.Account
	loadErr  error
	touched  map[int64]int
}

func newFakeStore(accounts ...*storage.Account) *fakeStore {
	return &fakeStore{accounts: accounts, touched: make(map[int64]int)}
}

func (s *fakeStore) GetAllAccounts() ([]*storage.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]*storage.Account, len(s.accounts))
	copy(out, s.accounts)
	return out, nil
}

func (s *fakeStore) TouchChecked(accountID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[accountID]++
	for _, a := range s.accounts {
		if a.ID == accountID && (a.LastCheckedAt == nil || !a.LastCheckedAt.After(at)) {
			t := at
			a.LastCheckedAt = &t
		}
	}
	return nil
}

func (s *fakeStore) CommitProgress(accountID int64, matchID string, matchTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == accountID {
			a.LastMatchID = matchID
			t := matchTime
			a.LastMatchTime = &t
		}
	}
	return nil
}

func (s *fakeStore) account(id int64) *storage.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// fakeSource serves canned match histories and payloads
type fakeSource struct {
	ids        map[string][]string // puuid -> newest-first match IDs
	idsErr     map[string]error
	matches    map[string]*riot.Match
	notFound   map[string]bool
	matchCalls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		ids:        make(map[string][]string),
		idsErr:     make(map[string]error),
		matches:    make(map[string]*riot.Match),
		notFound:   make(map[string]bool),
		matchCalls: make(map[string]int),
	}
}

func (f *fakeSource) GetMatchIDsByPUUID(ctx context.Context, region, puuid string, count int) ([]string, error) {
	if err := f.idsErr[puuid]; err != nil {
		return nil, err
	}
	ids := f.ids[puuid]
	if len(ids) > count {
		ids = ids[:count]
	}
	return ids, nil
}

func (f *fakeSource) GetMatch(ctx context.Context, region, matchID string) (*riot.Match, error) {
	f.matchCalls[matchID]++
	if f.notFound[matchID] {
		return nil, riot.ErrNotFound
	}
	m, ok := f.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("no such match %s", matchID)
	}
	return m, nil
}

// fakeBuilder records every Build call
type fakeBuilder struct {
	builds []buildCall
	nilFor map[string]bool
	errFor map[string]bool
}

type buildCall struct {
	matchID      string
	participants []*storage.Account
}

func (f *fakeBuilder) Build(match *riot.Match, participants []*storage.Account) (*report.Report, error) {
	id := match.Metadata.MatchID
	f.builds = append(f.builds, buildCall{matchID: id, participants: participants})
	if f.errFor[id] {
		return nil, fmt.Errorf("render failed for %s", id)
	}
	if f.nilFor[id] {
		return nil, nil
	}
	return &report.Report{MatchID: id}, nil
}

type fakeSubs struct {
	dests []Destination
	calls int
}

func (f *fakeSubs) DestinationsFor(accountIDs []int64) ([]Destination, error) {
	f.calls++
	return f.dests, nil
}

// fakeSender fails deliveries per channel and records the rest
type fakeSender struct {
	mu        sync.Mutex
	delivered []string // channel IDs
	failWith  map[string]error
}

func (f *fakeSender) Deliver(ctx context.Context, rep *report.Report, dest Destination) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failWith[dest.ChannelID]; err != nil {
		return err
	}
	f.delivered = append(f.delivered, dest.ChannelID)
	return nil
}

func mkMatch(id string, creation time.Time, puuids ...string) *riot.Match {
	m := &riot.Match{}
	m.Metadata.MatchID = id
	m.Metadata.Participants = puuids
	m.Info.GameCreation = creation.UnixMilli()
	m.Info.GameEndTimestamp = creation.Add(30 * time.Minute).UnixMilli()
	m.Info.GameDuration = 1800
	for _, p := range puuids {
		m.Info.Participants = append(m.Info.Participants, riot.Participant{PUUID: p, Win: true})
	}
	return m
}

func newTestEngine(store StateStore, source MatchSource, builder ReportBuilder, subs SubscriptionResolver, sender Deliverer) *Engine {
	return New(store, source, builder, subs, sender, DefaultConfig())
}

func TestCycleDedupAcrossAccounts(t *testing.T) {
	base := time.Now()
	store := newFakeStore(
		&storage.Account{ID: 1, PUUID: "pa", RiotID: "A#1", Region: "KR"},
		&storage.Account{ID: 2, PUUID: "pb", RiotID: "B#1", Region: "KR"},
	)
	source := newFakeSource()
	source.ids["pa"] = []string{"M1"}
	source.ids["pb"] = []string{"M1"}
	source.matches["M1"] = mkMatch("M1", base.Add(-10*time.Minute), "pa", "pb")

	builder := &fakeBuilder{}
	subs := &fakeSubs{dests: []Destination{{GuildID: "g", ChannelID: "c"}}}
	sender := &fakeSender{}

	e := newTestEngine(store, source, builder, subs, sender)
	e.now = func() time.Time { return base }

	sum, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if source.matchCalls["M1"] != 1 {
		t.Fatalf("expected exactly 1 payload fetch for the shared match, got %d", source.matchCalls["M1"])
	}
	if len(builder.builds) != 1 {
		t.Fatalf("expected exactly 1 report build, got %d", len(builder.builds))
	}
	if got := len(builder.builds[0].participants); got != 2 {
		t.Fatalf("expected both tracked accounts in the participant list, got %d", got)
	}
	if sum.AccountsChecked != 2 || sum.NewMatches != 2 || sum.MatchesProcessed != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	// Both participants converge on M1
	for _, id := range []int64{1, 2} {
		a := store.account(id)
		if a.LastMatchID != "M1" {
			t.Fatalf("account %d: expected last match M1, got %q", id, a.LastMatchID)
		}
	}
}

func TestCycleAtMostOncePerMatch(t *testing.T) {
	base := time.Now()
	store := newFakeStore(&storage.Account{ID: 1, PUUID: "pa", RiotID: "A#1", Region: "KR"})
	source := newFakeSource()
	source.ids["pa"] = []string{"M1"}
	source.matches["M1"] = mkMatch("M1", base.Add(-10*time.Minute), "pa")

	builder := &fakeBuilder{}
	e := newTestEngine(store, source, builder, &fakeSubs{}, &fakeSender{})
	e.now = func() time.Time { return base }

	if _, err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("first RunCycle: %v", err)
	}

	// Well past the re-check interval, same history window
	e.now = func() time.Time { return base.Add(10 * time.Minute) }

	sum, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if sum.NewMatches != 0 || sum.MatchesProcessed != 0 {
		t.Fatalf("processed match re-surfaced as new: %+v", sum)
	}
	if source.matchCalls["M1"] != 1 {
		t.Fatalf("expected 1 payload fetch across cycles, got %d", source.matchCalls["M1"])
	}
}

func TestCycleColdStartBackfill(t *testing.T) {
	base := time.Now()
	store := newFakeStore(&storage.Account{ID: 1, PUUID: "pa", RiotID: "A#1", Region: "KR"})
	source := newFakeSource()
	source.ids["pa"] = []string{"A", "B", "C"} // newest first
	source.matches["A"] = mkMatch("A", base.Add(-1*time.Hour), "pa")
	source.matches["B"] = mkMatch("B", base.Add(-2*time.Hour), "pa")
	source.matches["C"] = mkMatch("C", base.Add(-3*time.Hour), "pa")

	builder := &fakeBuilder{}
	e := newTestEngine(store, source, builder, &fakeSubs{}, &fakeSender{})
	e.now = func() time.Time { return base }

	sum, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if sum.NewMatches != 3 || sum.MatchesProcessed != 3 {
		t.Fatalf("cold start should backfill the fetched window: %+v", sum)
	}

	// Oldest first within an account
	wantOrder := []string{"C", "B", "A"}
	for i, want := range wantOrder {
		if builder.builds[i].matchID != want {
			t.Fatalf("build %d: expected %s, got %s", i, want, builder.builds[i].matchID)
		}
	}

	// One commit converging on the newest match
	a := store.account(1)
	if a.LastMatchID != "A" {
		t.Fatalf("expected progress to converge on A, got %q", a.LastMatchID)
	}
	if !a.LastMatchTime.Equal(source.matches["A"].CreationTime()) {
		t.Fatalf("expected last match time of A, got %v", a.LastMatchTime)
	}
}

func TestCycleMatchNotFoundRetriedNextCycle(t *testing.T) {
	base := time.Now()
	store := newFakeStore(&storage.Account{ID: 1, PUUID: "pa", RiotID: "A#1", Region: "KR"})
	source := newFakeSource()
	source.ids["pa"] = []string{"M1"}
	source.notFound["M1"] = true

	builder := &fakeBuilder{}
	e := newTestEngine(store, source, builder, &fakeSubs{}, &fakeSender{})
	e.now = func() time.Time { return base }

	sum, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if sum.MatchesProcessed != 0 || len(builder.builds) != 0 {
		t.Fatalf("not-found match must not be processed: %+v", sum)
	}
	if a := store.account(1); a.LastMatchID != "" {
		t.Fatalf("progress must not advance for an unprocessed match, got %q", a.LastMatchID)
	}

	// Match propagates; the account has no recorded match time yet, so the
	// long dormant interval applies before it is re-checked
	source.notFound["M1"] = false
	source.matches["M1"] = mkMatch("M1", base.Add(-10*time.Minute), "pa")
	e.now = func() time.Time { return base.Add(7 * time.Hour) }

	sum, err = e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if sum.MatchesProcessed != 1 {
		t.Fatalf("expected retry to process the match: %+v", sum)
	}
	if a := store.account(1); a.LastMatchID != "M1" {
		t.Fatalf("expected progress M1 after retry, got %q", a.LastMatchID)
	}
}

func TestCycleDeliveryFailureIsolation(t *testing.T) {
	base := time.Now()
	store := newFakeStore(&storage.Account{ID: 1, PUUID: "pa", RiotID: "A#1", Region: "KR"})
	source := newFakeSource()
	source.ids["pa"] = []string{"M1"}
	source.matches["M1"] = mkMatch("M1", base.Add(-10*time.Minute), "pa")

	subs := &fakeSubs{dests: []Destination{
		{GuildID: "g1", ChannelID: "c1"},
		{GuildID: "g2", ChannelID: "c2"},
		{GuildID: "g3", ChannelID: "c3"},
	}}
	sender := &fakeSender{failWith: map[string]error{
		"c1": errors.New("boom"),
		"c2": fmt.Errorf("%w: kicked from guild", ErrPermissionDenied),
	}}

	e := newTestEngine(store, source, &fakeBuilder{}, subs, sender)
	e.now = func() time.Time { return base }

	sum, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if sum.NotificationsSent != 1 || sum.NotificationsFailed != 2 {
		t.Fatalf("unexpected delivery counts: %+v", sum)
	}
	if len(sender.delivered) != 1 || sender.delivered[0] != "c3" {
		t.Fatalf("healthy destination must still receive the message, delivered=%v", sender.delivered)
	}
}

func TestCyclePerAccountFetchFailureIsolation(t *testing.T) {
	base := time.Now()
	store := newFakeStore(
		&storage.Account{ID: 1, PUUID: "pa", RiotID: "A#1", Region: "KR"},
		&storage.Account{ID: 2, PUUID: "pb", RiotID: "B#1", Region: "KR"},
	)
	source := newFakeSource()
	source.idsErr["pa"] = errors.New("riot is down for pa")
	source.ids["pb"] = []string{"M1"}
	source.matches["M1"] = mkMatch("M1", base.Add(-10*time.Minute), "pb")

	e := newTestEngine(store, source, &fakeBuilder{}, &fakeSubs{}, &fakeSender{})
	e.now = func() time.Time { return base }

	sum, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if sum.MatchesProcessed != 1 {
		t.Fatalf("healthy account must still be processed: %+v", sum)
	}
	// The failed account was still marked checked so its interval applies
	if store.touched[1] != 1 {
		t.Fatalf("expected failed account to be touched once, got %d", store.touched[1])
	}
	if a := store.account(1); a.LastCheckedAt == nil {
		t.Fatal("failed account must have last-checked-at recorded")
	}
}

func TestCycleNilReportSkipsDispatch(t *testing.T) {
	base := time.Now()
	store := newFakeStore(&storage.Account{ID: 1, PUUID: "pa", RiotID: "A#1", Region: "KR"})
	source := newFakeSource()
	source.ids["pa"] = []string{"M1"}
	source.matches["M1"] = mkMatch("M1", base.Add(-10*time.Minute), "pa")

	builder := &fakeBuilder{nilFor: map[string]bool{"M1": true}}
	subs := &fakeSubs{dests: []Destination{{GuildID: "g", ChannelID: "c"}}}

	e := newTestEngine(store, source, builder, subs, &fakeSender{})
	e.now = func() time.Time { return base }

	sum, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if sum.MatchesProcessed != 1 || sum.NotificationsSent != 0 {
		t.Fatalf("nil report should count as processed without dispatch: %+v", sum)
	}
	if subs.calls != 0 {
		t.Fatalf("no destination resolution expected for a nil report, got %d", subs.calls)
	}
	if a := store.account(1); a.LastMatchID != "M1" {
		t.Fatalf("progress must still advance for a nil report, got %q", a.LastMatchID)
	}
}

func TestCycleReportFailureLeavesMatchUnprocessed(t *testing.T) {
	base := time.Now()
	store := newFakeStore(&storage.Account{ID: 1, PUUID: "pa", RiotID: "A#1", Region: "KR"})
	source := newFakeSource()
	source.ids["pa"] = []string{"M1"}
	source.matches["M1"] = mkMatch("M1", base.Add(-10*time.Minute), "pa")

	builder := &fakeBuilder{errFor: map[string]bool{"M1": true}}
	e := newTestEngine(store, source, builder, &fakeSubs{}, &fakeSender{})
	e.now = func() time.Time { return base }

	sum, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if sum.MatchesProcessed != 0 {
		t.Fatalf("failed report generation must not mark the match processed: %+v", sum)
	}
	if a := store.account(1); a.LastMatchID != "" {
		t.Fatalf("progress must not advance after a report failure, got %q", a.LastMatchID)
	}
}

func TestCycleMatchCapDefersOverflow(t *testing.T) {
	base := time.Now()
	store := newFakeStore(&storage.Account{ID: 1, PUUID: "pa", RiotID: "A#1", Region: "KR"})
	source := newFakeSource()
	source.ids["pa"] = []string{"A", "B"}
	source.matches["A"] = mkMatch("A", base.Add(-1*time.Hour), "pa")
	source.matches["B"] = mkMatch("B", base.Add(-2*time.Hour), "pa")

	cfg := DefaultConfig()
	cfg.MatchCap = 1
	e := New(store, source, &fakeBuilder{}, &fakeSubs{}, &fakeSender{}, cfg)
	e.now = func() time.Time { return base }

	sum, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if sum.MatchesProcessed != 1 {
		t.Fatalf("expected the cap to hold processing at 1: %+v", sum)
	}
	// Oldest match processed, newer one deferred to a later cycle
	if a := store.account(1); a.LastMatchID != "B" {
		t.Fatalf("expected progress on the oldest match only, got %q", a.LastMatchID)
	}
}

func TestCycleSkippedWhileActive(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store, newFakeSource(), &fakeBuilder{}, &fakeSubs{}, &fakeSender{})

	if !e.gate.TryEnter() {
		t.Fatal("setup: gate entry failed")
	}

	sum, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !sum.Skipped {
		t.Fatal("expected cycle to be skipped while another is active")
	}

	e.gate.Exit()

	sum, err = e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle after Exit: %v", err)
	}
	if sum.Skipped {
		t.Fatal("cycle must run once the gate is free")
	}
}

func TestCycleSystemicFailureReleasesGate(t *testing.T) {
	store := newFakeStore()
	store.loadErr = errors.New("database unreachable")

	e := newTestEngine(store, newFakeSource(), &fakeBuilder{}, &fakeSubs{}, &fakeSender{})

	if _, err := e.RunCycle(context.Background()); err == nil {
		t.Fatal("expected systemic failure to propagate")
	}

	// The gate must have been released on the error path
	store.mu.Lock()
	store.loadErr = nil
	store.mu.Unlock()

	sum, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle after recovery: %v", err)
	}
	if sum.Skipped {
		t.Fatal("gate was not released after a failed cycle")
	}
}
