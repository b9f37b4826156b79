package trade

import (
	"cardbuff/services/catalog"
	"cardbuff/services/owners"
	"cardbuff/services/partner"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countingLocator records which card each Find targeted, so a test
// can see a target change take effect across passes.
type countingLocator struct {
	mu      sync.Mutex
	cardIDs []int64
}

func (c *countingLocator) Find(ctx context.Context, st *partner.State, partnerID int64, target catalog.CardRecord) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cardIDs = append(c.cardIDs, target.CardID)
	return 601, nil
}

func (c *countingLocator) seen() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.cardIDs...)
}

func testLoop(locator PartnerLocator, sender Sender, pages OwnerPages) *Loop {
	return &Loop{
		Runner: Runner{
			SelfID:  1,
			Pages:   pages,
			Locator: locator,
			Picker:  fakePicker{card: testInventory[0]},
			Sender:  sender,
		},
		Inventory: func(ctx context.Context) ([]catalog.CardRecord, error) {
			return testInventory, nil
		},
		Interval: time.Millisecond,
		Backoff:  time.Millisecond,
	}
}

func TestLoopRunsPassesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	locator := &countingLocator{}
	sender := &fakeSender{}
	l := testLoop(locator, sender, fakePages{pages: []owners.Page{{Number: 1, Owners: []int64{101}}}})

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, testTarget) }()

	require.Eventually(t, func() bool {
		return len(locator.seen()) >= 3
	}, 5*time.Second, time.Millisecond)

	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	require.GreaterOrEqual(t, len(locator.seen()), 3)
}

func TestLoopPicksUpTargetUpdate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	locator := &countingLocator{}
	updates := make(chan catalog.TargetCard, 1)
	l := testLoop(locator, &fakeSender{}, fakePages{pages: []owners.Page{{Number: 1, Owners: []int64{101}}}})
	l.Updates = updates

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, testTarget) }()

	require.Eventually(t, func() bool {
		return len(locator.seen()) >= 1
	}, 5*time.Second, time.Millisecond)

	updates <- catalog.TargetCard{CardID: 77, Rank: "A", Name: "Fresh One"}

	require.Eventually(t, func() bool {
		seen := locator.seen()
		return len(seen) > 0 && seen[len(seen)-1] == 77
	}, 5*time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestLoopBacksOffWhenNoOwners(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	passes := make(chan struct{}, 16)
	l := testLoop(&countingLocator{}, &fakeSender{}, fakePages{})
	l.Inventory = func(ctx context.Context) ([]catalog.CardRecord, error) {
		passes <- struct{}{}
		return testInventory, nil
	}
	l.Backoff = 200 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, testTarget) }()

	<-passes
	start := time.Now()
	select {
	case <-passes:
		// an empty pass must not start the next one before the backoff
		require.GreaterOrEqual(t, time.Since(start), l.Backoff)
	case <-time.After(5 * time.Second):
		t.Fatal("second pass never started")
	}

	cancel()
	<-done
}

func TestLoopStopsWhenInventoryKeepsFailing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := make(chan struct{}, 16)
	l := testLoop(&countingLocator{}, &fakeSender{}, fakePages{})
	l.Inventory = func(ctx context.Context) ([]catalog.CardRecord, error) {
		attempts <- struct{}{}
		return nil, errors.New("listing unavailable")
	}

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, testTarget) }()

	// failures are retried, not fatal
	<-attempts
	<-attempts

	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)
}
