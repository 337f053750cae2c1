package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

func TestApplyObservedStatusPaidTwiceFiresOnce(t *testing.T) {
	f := newServiceFixture(config.PaymentsConfig{})
	seedTransaction(f.repo, "cs_1", entity.PaymentStatusInitiated, time.Now().UTC().Add(-time.Minute))

	var fired int32
	f.svc.OnPaymentSucceeded(func(context.Context, *entity.PaymentTransaction) {
		atomic.AddInt32(&fired, 1)
	})

	first, err := f.svc.ApplyObservedStatus(context.Background(), "cs_1", "complete", "paid", sourceStatusPoll)
	if err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	if !first.Applied || !first.SideEffectFired || first.Previous != entity.PaymentStatusInitiated || first.Current != entity.PaymentStatusPaid {
		t.Fatalf("unexpected first outcome: %+v", first)
	}

	stored := f.repo.get("cs_1")
	if stored.PaymentStatus != entity.PaymentStatusPaid || stored.CompletedAt == nil {
		t.Fatalf("expected paid with completed_at, got %+v", stored)
	}
	completedAt := *stored.CompletedAt

	second, err := f.svc.ApplyObservedStatus(context.Background(), "cs_1", "complete", "paid", sourceWebhook)
	if err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if second.Applied || second.SideEffectFired {
		t.Fatalf("expected no-op second outcome, got %+v", second)
	}
	if fired != 1 {
		t.Fatalf("expected hook to fire once, fired %d", fired)
	}
	if f.events.count(entity.EventPaymentSucceeded) != 1 {
		t.Fatalf("expected one payment_succeeded event, got %d", f.events.count(entity.EventPaymentSucceeded))
	}
	if after := f.repo.get("cs_1"); !after.CompletedAt.Equal(completedAt) {
		t.Fatalf("completed_at must not move, was %v now %v", completedAt, after.CompletedAt)
	}
}

func TestApplyObservedStatusUnknownSession(t *testing.T) {
	f := newServiceFixture(config.PaymentsConfig{})

	_, err := f.svc.ApplyObservedStatus(context.Background(), "cs_missing", "complete", "paid", sourceWebhook)
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
	if f.repo.casCalls != 0 {
		t.Fatalf("expected no writes, got %d", f.repo.casCalls)
	}
}

func TestApplyObservedStatusTerminalIsNoOp(t *testing.T) {
	f := newServiceFixture(config.PaymentsConfig{})
	seedTransaction(f.repo, "cs_1", entity.PaymentStatusExpired, time.Now().UTC())

	outcome, err := f.svc.ApplyObservedStatus(context.Background(), "cs_1", "complete", "paid", sourceWebhook)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Applied || outcome.Current != entity.PaymentStatusExpired {
		t.Fatalf("expected no-op on terminal state, got %+v", outcome)
	}
	if f.repo.casCalls != 0 {
		t.Fatalf("expected no writes, got %d", f.repo.casCalls)
	}
}

func TestApplyObservedStatusOpenToPending(t *testing.T) {
	f := newServiceFixture(config.PaymentsConfig{})
	seedTransaction(f.repo, "cs_1", entity.PaymentStatusInitiated, time.Now().UTC())

	outcome, err := f.svc.ApplyObservedStatus(context.Background(), "cs_1", "open", "unpaid", sourceStatusPoll)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Applied || outcome.SideEffectFired || outcome.Current != entity.PaymentStatusPending {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if f.repo.get("cs_1").CompletedAt != nil {
		t.Fatal("completed_at must stay unset until paid")
	}

	again, err := f.svc.ApplyObservedStatus(context.Background(), "cs_1", "open", "unpaid", sourceStatusPoll)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Applied {
		t.Fatalf("expected repeated pending poll to be a no-op, got %+v", again)
	}
}

func TestApplyObservedStatusConcurrentPaidSingleSideEffect(t *testing.T) {
	f := newServiceFixture(config.PaymentsConfig{NotifyURL: "http://fulfillment.local/paid"})
	seedTransaction(f.repo, "cs_race", entity.PaymentStatusInitiated, time.Now().UTC())

	// Hold both callers after their first read so both see initiated.
	const callers = 2
	var reads int32
	bothRead := make(chan struct{})
	f.repo.afterFind = func(string) {
		n := atomic.AddInt32(&reads, 1)
		if n == callers {
			close(bothRead)
		}
		if n <= callers {
			<-bothRead
		}
	}

	var fired int32
	f.svc.OnPaymentSucceeded(func(context.Context, *entity.PaymentTransaction) {
		atomic.AddInt32(&fired, 1)
	})

	outcomes := make([]*TransitionOutcome, callers)
	errs := make([]error, callers)
	sources := []string{sourceStatusPoll, sourceWebhook}

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.svc.ApplyObservedStatus(context.Background(), "cs_race", "complete", "paid", sources[i])
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if outcomes[i].Applied {
			applied++
		}
		if outcomes[i].Current != entity.PaymentStatusPaid {
			t.Fatalf("caller %d expected to observe paid, got %s", i, outcomes[i].Current)
		}
	}

	if applied != 1 {
		t.Fatalf("expected exactly one applied transition, got %d", applied)
	}
	if fired != 1 {
		t.Fatalf("expected exactly one side effect, got %d", fired)
	}
	if f.repo.casApplied != 1 {
		t.Fatalf("expected one landed write, got %d", f.repo.casApplied)
	}
	if stored := f.repo.get("cs_race"); stored.NotificationStatus != entity.NotificationPending {
		t.Fatalf("expected notification scheduled once, got %d", stored.NotificationStatus)
	}
}

func TestApplyObservedStatusReevaluatesAfterLostRace(t *testing.T) {
	f := newServiceFixture(config.PaymentsConfig{})
	seedTransaction(f.repo, "cs_1", entity.PaymentStatusInitiated, time.Now().UTC())

	// A concurrent poll moves the record to pending just before our write.
	var once sync.Once
	f.repo.beforeCAS = func(sessionID string) {
		once.Do(func() {
			stored := f.repo.get(sessionID)
			stored.PaymentStatus = entity.PaymentStatusPending
			f.repo.put(stored)
		})
	}

	outcome, err := f.svc.ApplyObservedStatus(context.Background(), "cs_1", "complete", "paid", sourceWebhook)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Applied || outcome.Previous != entity.PaymentStatusPending || outcome.Current != entity.PaymentStatusPaid {
		t.Fatalf("expected paid applied over pending, got %+v", outcome)
	}
	if f.repo.casCalls != 2 {
		t.Fatalf("expected two conditional writes, got %d", f.repo.casCalls)
	}
}

func TestApplyObservedStatusLostRaceToTerminalIsNoOp(t *testing.T) {
	f := newServiceFixture(config.PaymentsConfig{})
	seedTransaction(f.repo, "cs_1", entity.PaymentStatusPending, time.Now().UTC())

	var fired int32
	f.svc.OnPaymentSucceeded(func(context.Context, *entity.PaymentTransaction) {
		atomic.AddInt32(&fired, 1)
	})

	var once sync.Once
	f.repo.beforeCAS = func(sessionID string) {
		once.Do(func() {
			stored := f.repo.get(sessionID)
			stored.PaymentStatus = entity.PaymentStatusPaid
			f.repo.put(stored)
		})
	}

	outcome, err := f.svc.ApplyObservedStatus(context.Background(), "cs_1", "complete", "paid", sourceWebhook)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Applied || outcome.SideEffectFired {
		t.Fatalf("expected no-op after losing to a paid writer, got %+v", outcome)
	}
	if fired != 0 {
		t.Fatalf("expected no side effect from the losing caller, got %d", fired)
	}
	if f.repo.casCalls != 1 {
		t.Fatalf("expected the losing write not to be retried, got %d writes", f.repo.casCalls)
	}
}

func TestApplyObservedStatusSchedulesNotificationOnlyWhenConfigured(t *testing.T) {
	f := newServiceFixture(config.PaymentsConfig{})
	seedTransaction(f.repo, "cs_1", entity.PaymentStatusPending, time.Now().UTC())

	if _, err := f.svc.ApplyObservedStatus(context.Background(), "cs_1", "complete", "paid", sourceWebhook); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored := f.repo.get("cs_1"); stored.NotificationStatus != entity.NotificationNone {
		t.Fatalf("expected no notification without notify url, got %d", stored.NotificationStatus)
	}
}
