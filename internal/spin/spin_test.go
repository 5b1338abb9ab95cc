package spin

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/event"
	"github.com/SlpAus/sparkle-wheel-backend/internal/lead"
	"github.com/SlpAus/sparkle-wheel-backend/internal/testutil"
	"github.com/SlpAus/sparkle-wheel-backend/pkg/lifecycle"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const testWheel = "wheel-1"

type fixture struct {
	db     *gorm.DB
	svc    *Service
	repo   *lead.Repository
	clock  *testutil.Clock
	events *event.Recorder
	t0     time.Time
}

// fixedRand 让 crypto/rand.Int 对小于256的上界总是返回 v
func fixedRand(v byte) io.Reader {
	return bytes.NewReader(bytes.Repeat([]byte{v}, 1024))
}

func newFixture(t *testing.T, rnd io.Reader) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	if err := lead.MigrateDB(db); err != nil {
		t.Fatal(err)
	}
	if err := MigrateDB(db); err != nil {
		t.Fatal(err)
	}
	repo, err := lead.NewRepository(db)
	if err != nil {
		t.Fatal(err)
	}
	t0 := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	clock := testutil.NewClock(t0)
	rec := &event.Recorder{}
	svc := NewService(db, repo, Options{LockTTL: 2 * time.Minute, Events: rec, Now: clock.Now, Rand: rnd})
	return &fixture{db: db, svc: svc, repo: repo, clock: clock, events: rec, t0: t0}
}

func (f *fixture) seed(t *testing.T, first string, offset time.Duration) string {
	t.Helper()
	l := &lead.Lead{
		ID:           uuid.NewString(),
		WheelID:      testWheel,
		FirstName:    first,
		LastName:     "Test",
		ZipCode:      "78701",
		PhoneNumber:  "5125550100",
		EmailAddress: first + "@example.com",
		Source:       lead.SourceWebForm,
		Status:       lead.StatusNew,
		CreatedAt:    f.t0.Add(offset),
	}
	if err := f.repo.Create(context.Background(), l, lead.DisplayName(first, "Test")); err != nil {
		t.Fatal(err)
	}
	return l.ID
}

func (f *fixture) leads(t *testing.T) map[string]lead.Lead {
	t.Helper()
	var rows []lead.Lead
	if err := f.db.Where("wheel_id = ?", testWheel).Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	out := make(map[string]lead.Lead, len(rows))
	for _, r := range rows {
		out[r.FirstName] = r
	}
	return out
}

func (f *fixture) spin(t *testing.T, id string) Spin {
	t.Helper()
	var sp Spin
	if err := f.db.Where("id = ?", id).Take(&sp).Error; err != nil {
		t.Fatal(err)
	}
	return sp
}

func TestNextStatus(t *testing.T) {
	cases := []struct {
		from    Status
		action  Action
		next    Status
		changed bool
		err     error
	}{
		{StatusPending, ActionFinalize, StatusFinalized, true, nil},
		{StatusPending, ActionCancel, StatusCancelled, true, nil},
		{StatusFinalized, ActionFinalize, StatusFinalized, false, nil},
		{StatusFinalized, ActionCancel, StatusFinalized, false, ErrSpinFinalized},
		{StatusCancelled, ActionCancel, StatusCancelled, false, nil},
		{StatusCancelled, ActionFinalize, StatusCancelled, false, ErrSpinCancelled},
	}
	for _, tc := range cases {
		next, changed, err := NextStatus(tc.from, tc.action)
		if next != tc.next || changed != tc.changed || !errors.Is(err, tc.err) {
			t.Errorf("NextStatus(%s, %s) = %s, %v, %v", tc.from, tc.action, next, changed, err)
		}
	}
	if _, _, err := NextStatus("bogus", ActionFinalize); err == nil {
		t.Error("unknown status should fail")
	}
}

func TestDrawIndexIsUniform(t *testing.T) {
	const (
		n     = 5
		draws = 10000
	)
	counts := make([]int, n)
	for i := 0; i < draws; i++ {
		idx, err := drawIndex(rand.Reader, n)
		if err != nil {
			t.Fatal(err)
		}
		if idx < 0 || idx >= n {
			t.Fatalf("index %d out of range", idx)
		}
		counts[idx]++
	}
	expected := float64(draws) / n
	chi2 := 0.0
	for _, c := range counts {
		d := float64(c) - expected
		chi2 += d * d / expected
	}
	// df=4 时 p=0.0001 的临界值约为 23.5
	if chi2 > 23.5 {
		t.Fatalf("chi-square %.2f too large, counts %v", chi2, counts)
	}
}

func TestLockAcquireReleaseExpiry(t *testing.T) {
	f := newFixture(t, nil)
	m := f.svc.Locks()
	ctx := context.Background()
	ttl := 2 * time.Minute

	ok, err := m.Acquire(ctx, testWheel, "s1", nil, ttl)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	if ok, _ := m.Acquire(ctx, testWheel, "s2", nil, ttl); ok {
		t.Fatal("second acquire should fail while lock is live")
	}
	if ok, _ := m.Acquire(ctx, "wheel-2", "s9", nil, ttl); !ok {
		t.Fatal("other wheel should be independent")
	}

	// 释放不属于自己的锁是空操作
	if err := m.Release(ctx, testWheel, "s2"); err != nil {
		t.Fatal(err)
	}
	l, err := m.Status(ctx, testWheel)
	if err != nil || l == nil || l.SpinID != "s1" {
		t.Fatalf("status = %+v, %v", l, err)
	}

	if err := m.Release(ctx, testWheel, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Release(ctx, testWheel, "s1"); err != nil {
		t.Fatalf("double release: %v", err)
	}
	if ok, _ := m.Acquire(ctx, testWheel, "s2", nil, ttl); !ok {
		t.Fatal("acquire after release should succeed")
	}

	f.clock.Advance(ttl)
	if l, _ := m.Status(ctx, testWheel); l != nil {
		t.Fatalf("lock should be expired, got %+v", l)
	}
	holder := "admin-1"
	if ok, _ := m.Acquire(ctx, testWheel, "s3", &holder, ttl); !ok {
		t.Fatal("acquire after expiry should take over")
	}
	l, _ = m.Status(ctx, testWheel)
	if l == nil || l.SpinID != "s3" || l.HeldBy == nil || *l.HeldBy != holder {
		t.Fatalf("takeover status = %+v", l)
	}
}

func TestScenarioABC(t *testing.T) {
	f := newFixture(t, fixedRand(1))
	ctx := context.Background()
	f.seed(t, "A", 0)
	f.seed(t, "B", time.Second)
	f.seed(t, "C", 2*time.Second)

	created, err := f.svc.Create(ctx, testWheel, "admin-1")
	if err != nil {
		t.Fatal(err)
	}
	if created.WinnerIndex != 1 || created.WinnerDisplayName != "B T." {
		t.Fatalf("winner = %d %q", created.WinnerIndex, created.WinnerDisplayName)
	}
	names := []string{}
	for _, e := range created.EntriesSnapshot {
		names = append(names, e.DisplayName)
	}
	if len(names) != 3 || names[0] != "A T." || names[2] != "C T." {
		t.Fatalf("snapshot = %v", names)
	}
	if created.Animation.WinnerIndex != 1 || created.Animation.EntryCount != 3 {
		t.Fatalf("animation = %+v", created.Animation)
	}
	if l, _ := f.svc.Locks().Status(ctx, testWheel); l == nil || l.SpinID != created.SpinID {
		t.Fatalf("lock should belong to spin, got %+v", l)
	}

	f.clock.Advance(10 * time.Second)
	res, err := f.svc.Finalize(ctx, testWheel, created.SpinID, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.AlreadyApplied || !res.WinnerConfirmed || res.UsedCount != 2 || res.Status != StatusFinalized {
		t.Fatalf("finalize result = %+v", res)
	}

	leads := f.leads(t)
	if !leads["A"].Used || !leads["C"].Used || leads["A"].Winner || leads["C"].Winner {
		t.Fatalf("A/C = %+v %+v", leads["A"], leads["C"])
	}
	if !leads["B"].Winner || leads["B"].Used || leads["B"].WinnerTimestamp == nil {
		t.Fatalf("B = %+v", leads["B"])
	}
	for name, l := range leads {
		if l.SpinID == nil || *l.SpinID != created.SpinID {
			t.Errorf("%s spin_id = %v", name, l.SpinID)
		}
	}
	if l, _ := f.svc.Locks().Status(ctx, testWheel); l != nil {
		t.Fatalf("lock should be released, got %+v", l)
	}
	sp := f.spin(t, created.SpinID)
	if sp.Status != StatusFinalized || sp.FinalizedAt == nil || sp.WinnerConfirmed == nil || !*sp.WinnerConfirmed {
		t.Fatalf("spin = %+v", sp)
	}

	entries, held, err := f.svc.Eligible(ctx, testWheel)
	if err != nil || len(entries) != 0 || held {
		t.Fatalf("eligible after finalize = %v, %v, %v", entries, held, err)
	}

	// 重复定稿不做任何修改
	f.clock.Advance(time.Minute)
	again, err := f.svc.Finalize(ctx, testWheel, created.SpinID, true)
	if err != nil || !again.AlreadyApplied {
		t.Fatalf("re-finalize = %+v, %v", again, err)
	}
	after := f.leads(t)
	for name, l := range leads {
		if !ptrTime(after[name].UsedTimestamp).Equal(ptrTime(l.UsedTimestamp)) {
			t.Errorf("%s used_timestamp changed", name)
		}
		if after[name].Used != l.Used || after[name].Winner != l.Winner {
			t.Errorf("%s flags changed", name)
		}
	}

	winners, err := f.svc.Winners(ctx, testWheel)
	if err != nil || len(winners) != 1 || winners[0].WinnerDisplayName != "B T." || winners[0].ID != created.SpinID {
		t.Fatalf("winners = %+v, %v", winners, err)
	}

	types := f.events.Types()
	if len(types) != 2 || types[0] != event.SpinCreated || types[1] != event.SpinFinalized {
		t.Fatalf("events = %v", types)
	}
}

func ptrTime(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}

func TestSecondCreateConflicts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed(t, "A", 0)
	f.seed(t, "B", time.Second)

	first, err := f.svc.Create(ctx, testWheel, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Create(ctx, testWheel, ""); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second create err = %v", err)
	}

	if _, err := f.svc.Cancel(ctx, testWheel, first.SpinID); err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.Create(ctx, testWheel, "")
	if err != nil {
		t.Fatalf("create after cancel: %v", err)
	}

	// 锁过期后可以再次创建
	if _, err := f.svc.Create(ctx, testWheel, ""); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("create while second live err = %v", err)
	}
	f.clock.Advance(2*time.Minute + time.Second)
	third, err := f.svc.Create(ctx, testWheel, "")
	if err != nil {
		t.Fatalf("create after expiry: %v", err)
	}
	if third.SpinID == second.SpinID {
		t.Fatal("expected a new spin id")
	}
}

func TestCreateWithEmptyPoolReleasesLock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, testWheel, ""); !errors.Is(err, ErrNoEligibleEntries) {
		t.Fatalf("err = %v", err)
	}
	if l, err := f.svc.Locks().Status(ctx, testWheel); err != nil || l != nil {
		t.Fatalf("lock leaked: %+v, %v", l, err)
	}
	var count int64
	f.db.Model(&Spin{}).Count(&count)
	if count != 0 {
		t.Fatalf("spins = %d", count)
	}
}

func TestCreateReleasesLockWhenInsertFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed(t, "A", 0)
	if err := f.db.Migrator().DropTable(&Spin{}); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Create(ctx, testWheel, "admin-1")
	if err == nil || isClientError(err) {
		t.Fatalf("err = %v, want storage failure", err)
	}
	if l, err := f.svc.Locks().Status(ctx, testWheel); err != nil || l != nil {
		t.Fatalf("lock leaked: %+v, %v", l, err)
	}
	if len(f.events.Events()) != 0 {
		t.Fatalf("events = %v", f.events.Types())
	}
}

func TestCreateWinnersAreUniform(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	names := []string{"A", "B", "C", "D"}
	for i, name := range names {
		f.seed(t, name, time.Duration(i)*time.Second)
	}

	const spins = 1200
	counts := map[string]int{}
	for i := 0; i < spins; i++ {
		created, err := f.svc.Create(ctx, testWheel, "")
		if err != nil {
			t.Fatalf("create #%d: %v", i, err)
		}
		snap := created.EntriesSnapshot
		if len(snap) != len(names) {
			t.Fatalf("snapshot size = %d", len(snap))
		}
		for j, e := range snap {
			if e.DisplayName != lead.DisplayName(names[j], "Test") {
				t.Fatalf("snapshot order changed: %+v", snap)
			}
		}
		if w := snap[created.WinnerIndex]; w.WheelEntryID != created.WinnerWheelEntryID || w.DisplayName != created.WinnerDisplayName {
			t.Fatalf("winner %q does not match snapshot[%d] %+v", created.WinnerDisplayName, created.WinnerIndex, w)
		}
		counts[created.WinnerDisplayName]++
		if _, err := f.svc.Cancel(ctx, testWheel, created.SpinID); err != nil {
			t.Fatal(err)
		}
	}

	expected := float64(spins) / float64(len(names))
	chi2 := 0.0
	for _, name := range names {
		d := float64(counts[lead.DisplayName(name, "Test")]) - expected
		chi2 += d * d / expected
	}
	// df=3 时 p=0.0001 的临界值约为 21.1
	if chi2 > 21.1 {
		t.Fatalf("chi-square %.2f too large, counts %v", chi2, counts)
	}
}

func TestCancelLeavesEntriesUntouched(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed(t, "A", 0)
	f.seed(t, "B", time.Second)
	f.seed(t, "C", 2*time.Second)

	created, err := f.svc.Create(ctx, testWheel, "")
	if err != nil {
		t.Fatal(err)
	}
	already, err := f.svc.Cancel(ctx, testWheel, created.SpinID)
	if err != nil || already {
		t.Fatalf("cancel = %v, %v", already, err)
	}
	for name, l := range f.leads(t) {
		if l.Used || l.Winner || l.SpinID != nil {
			t.Errorf("%s mutated by cancel: %+v", name, l)
		}
	}
	entries, held, _ := f.svc.Eligible(ctx, testWheel)
	if len(entries) != 3 || held {
		t.Fatalf("eligible = %d, held = %v", len(entries), held)
	}
	sp := f.spin(t, created.SpinID)
	if sp.Status != StatusCancelled || sp.CancelledAt == nil {
		t.Fatalf("spin = %+v", sp)
	}

	if already, err := f.svc.Cancel(ctx, testWheel, created.SpinID); err != nil || !already {
		t.Fatalf("re-cancel = %v, %v", already, err)
	}
	if _, err := f.svc.Finalize(ctx, testWheel, created.SpinID, true); !errors.Is(err, ErrSpinCancelled) {
		t.Fatalf("finalize cancelled err = %v", err)
	}

	next, err := f.svc.Create(ctx, testWheel, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Finalize(ctx, testWheel, next.SpinID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Cancel(ctx, testWheel, next.SpinID); !errors.Is(err, ErrSpinFinalized) {
		t.Fatalf("cancel finalized err = %v", err)
	}
}

func TestFinalizeUnconfirmedConsumesAll(t *testing.T) {
	f := newFixture(t, fixedRand(0))
	ctx := context.Background()
	f.seed(t, "A", 0)
	f.seed(t, "B", time.Second)

	created, err := f.svc.Create(ctx, testWheel, "")
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Finalize(ctx, testWheel, created.SpinID, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.WinnerConfirmed || res.UsedCount != 2 || res.WinnerDisplayName != "" {
		t.Fatalf("result = %+v", res)
	}
	for name, l := range f.leads(t) {
		if !l.Used || l.Winner {
			t.Errorf("%s = used %v winner %v", name, l.Used, l.Winner)
		}
	}
	winners, _ := f.svc.Winners(ctx, testWheel)
	if len(winners) != 0 {
		t.Fatalf("voided draw listed as winner: %+v", winners)
	}
	again, err := f.svc.Finalize(ctx, testWheel, created.SpinID, true)
	if err != nil || !again.AlreadyApplied || again.WinnerConfirmed {
		t.Fatalf("re-finalize = %+v, %v", again, err)
	}
}

func TestFinalizeAfterLockTakeover(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed(t, "A", 0)
	f.seed(t, "B", time.Second)

	stale, err := f.svc.Create(ctx, testWheel, "")
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(3 * time.Minute)
	fresh, err := f.svc.Create(ctx, testWheel, "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Finalize(ctx, testWheel, stale.SpinID, true); !errors.Is(err, ErrLockConflict) {
		t.Fatalf("finalize while other spin holds lock err = %v", err)
	}
	if _, err := f.svc.Finalize(ctx, testWheel, fresh.SpinID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Finalize(ctx, testWheel, stale.SpinID, true); !errors.Is(err, ErrSnapshotStale) {
		t.Fatalf("finalize stale snapshot err = %v", err)
	}
	if sp := f.spin(t, stale.SpinID); sp.Status != StatusPending || sp.FinalizedAt != nil {
		t.Fatalf("stale spin should be rolled back, got %+v", sp)
	}
	for name, l := range f.leads(t) {
		if l.SpinID == nil || *l.SpinID != fresh.SpinID {
			t.Errorf("%s spin_id = %v", name, l.SpinID)
		}
	}
}

func TestFinalizeAndCancelRejectUnknownSpin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.Finalize(ctx, testWheel, "", true); !errors.Is(err, ErrSpinIDRequired) {
		t.Errorf("empty id err = %v", err)
	}
	if _, err := f.svc.Finalize(ctx, testWheel, "missing", true); !errors.Is(err, ErrSpinNotFound) {
		t.Errorf("finalize missing err = %v", err)
	}
	if _, err := f.svc.Cancel(ctx, testWheel, "missing"); !errors.Is(err, ErrSpinNotFound) {
		t.Errorf("cancel missing err = %v", err)
	}

	f.seed(t, "A", 0)
	created, err := f.svc.Create(ctx, testWheel, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Finalize(ctx, "wheel-2", created.SpinID, true); !errors.Is(err, ErrSpinNotFound) {
		t.Errorf("finalize on other wheel err = %v", err)
	}
}

func TestAnimationReproducesCreatePlan(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed(t, "A", 0)
	f.seed(t, "B", time.Second)
	f.seed(t, "C", 2*time.Second)

	created, err := f.svc.Create(ctx, testWheel, "")
	if err != nil {
		t.Fatal(err)
	}
	view, err := f.svc.Animation(ctx, testWheel, created.SpinID)
	if err != nil {
		t.Fatal(err)
	}
	if view.Plan != created.Animation || view.Status != StatusPending || view.WinnerIndex != created.WinnerIndex {
		t.Fatalf("view = %+v, created plan = %+v", view, created.Animation)
	}
}

func TestSweepStale(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed(t, "A", 0)

	old, err := f.svc.Create(ctx, testWheel, "")
	if err != nil {
		t.Fatal(err)
	}
	if n, err := f.svc.SweepStale(ctx); err != nil || n != 0 {
		t.Fatalf("sweep of fresh spin = %d, %v", n, err)
	}

	f.clock.Advance(2*time.Minute + time.Second)
	current, err := f.svc.Create(ctx, testWheel, "")
	if err != nil {
		t.Fatal(err)
	}
	n, err := f.svc.SweepStale(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
	if sp := f.spin(t, old.SpinID); sp.Status != StatusCancelled {
		t.Fatalf("old spin status = %s", sp.Status)
	}
	if sp := f.spin(t, current.SpinID); sp.Status != StatusPending {
		t.Fatalf("current spin status = %s", sp.Status)
	}
	if l, _ := f.svc.Locks().Status(ctx, testWheel); l == nil || l.SpinID != current.SpinID {
		t.Fatalf("current lock lost: %+v", l)
	}
	types := f.events.Types()
	if types[len(types)-1] != event.SpinCancelled {
		t.Fatalf("events = %v", types)
	}
}

func TestStartSweeperStopsOnShutdown(t *testing.T) {
	f := newFixture(t, nil)
	m := lifecycle.NewManager("test", nil)
	if err := m.Go("sweeper", func(h *lifecycle.Handle) {
		StartSweeper(h, f.svc, 10*time.Millisecond)
	}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	m.Shutdown()
	if remaining := m.WaitWithTimeout(time.Second); len(remaining) != 0 {
		t.Fatalf("sweeper did not stop: %v", remaining)
	}
}
