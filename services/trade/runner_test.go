package trade

import (
	"cardbuff/services/catalog"
	"cardbuff/services/owners"
	"cardbuff/services/partner"
	"cardbuff/services/selector"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePages struct {
	pages []owners.Page
}

func (f fakePages) Pages(ctx context.Context, cardID int64, maxPages int, fn func(owners.Page) bool) error {
	for _, p := range f.pages {
		if !fn(p) {
			return nil
		}
	}
	return nil
}

type fakeLocator struct {
	instances map[int64]int64
	calls     []int64
}

func (f *fakeLocator) Find(ctx context.Context, st *partner.State, partnerID int64, target catalog.CardRecord) (int64, error) {
	f.calls = append(f.calls, partnerID)
	inst, ok := f.instances[partnerID]
	if !ok {
		return 0, partner.ErrNotFound
	}
	return inst, nil
}

type fakePicker struct {
	card catalog.CardRecord
	err  error
}

func (f fakePicker) Pick(ctx context.Context, inventory []catalog.CardRecord, target catalog.CardRecord, targetWanters int) (catalog.CardRecord, error) {
	return f.card, f.err
}

type fakeSender struct {
	sent []int64
	err  error
}

func (f *fakeSender) Send(ctx context.Context, receiverID, myInstance, theirInstance int64) error {
	f.sent = append(f.sent, receiverID)
	return f.err
}

var testTarget = catalog.TargetCard{CardID: 42, Rank: "B", Name: "Some Card", WantersCount: 5}

var testInventory = []catalog.CardRecord{
	{InstanceID: 7, CardID: 99, Rank: "B"},
}

func TestRunHappyPath(t *testing.T) {
	locator := &fakeLocator{instances: map[int64]int64{101: 601, 102: 602}}
	sender := &fakeSender{}
	r := Runner{
		SelfID:  1,
		Pages:   fakePages{pages: []owners.Page{{Number: 1, Owners: []int64{101, 102}}}},
		Locator: locator,
		Picker:  fakePicker{card: testInventory[0]},
		Sender:  sender,
	}

	stats, err := r.Run(context.Background(), testTarget, testInventory)
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, 1, stats.PagesChecked)
	require.Equal(t, 2, stats.OwnersSeen)
	require.Equal(t, 2, stats.TradesAttempted)
	require.Equal(t, 2, stats.TradesSucceeded)
	require.Equal(t, []int64{101, 102}, sender.sent)
}

func TestRunSkipsSelf(t *testing.T) {
	locator := &fakeLocator{instances: map[int64]int64{101: 601}}
	sender := &fakeSender{}
	r := Runner{
		SelfID:  101,
		Pages:   fakePages{pages: []owners.Page{{Number: 1, Owners: []int64{101}}}},
		Locator: locator,
		Picker:  fakePicker{card: testInventory[0]},
		Sender:  sender,
	}

	stats, err := r.Run(context.Background(), testTarget, testInventory)
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, 1, stats.SkippedSelf)
	require.Empty(t, locator.calls)
	require.Empty(t, sender.sent)
}

func TestRunSkipCounters(t *testing.T) {
	// owner 101 has no instance, 102 does but we have nothing of the
	// right rank
	locator := &fakeLocator{instances: map[int64]int64{102: 602}}
	sender := &fakeSender{}
	r := Runner{
		SelfID:  1,
		Pages:   fakePages{pages: []owners.Page{{Number: 1, Owners: []int64{101, 102}}}},
		Locator: locator,
		Picker:  fakePicker{err: selector.ErrNoMatchingRank},
		Sender:  sender,
	}

	stats, err := r.Run(context.Background(), testTarget, testInventory)
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, 1, stats.SkippedNoInstance)
	require.Equal(t, 1, stats.SkippedNoRank)
	require.Zero(t, stats.TradesAttempted)
	require.Empty(t, sender.sent)
}

func TestRunNoSuitableCardCounter(t *testing.T) {
	locator := &fakeLocator{instances: map[int64]int64{101: 601}}
	r := Runner{
		SelfID:  1,
		Pages:   fakePages{pages: []owners.Page{{Number: 1, Owners: []int64{101}}}},
		Locator: locator,
		Picker:  fakePicker{err: selector.ErrNoSuitableCard},
		Sender:  &fakeSender{},
	}

	stats, err := r.Run(context.Background(), testTarget, testInventory)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 1, stats.SkippedNoSuitableCard)
}

func TestRunFailedDispatchDoesNotAbort(t *testing.T) {
	locator := &fakeLocator{instances: map[int64]int64{101: 601, 102: 602}}
	sender := &fakeSender{err: errors.New("boom")}
	r := Runner{
		SelfID:  1,
		Pages:   fakePages{pages: []owners.Page{{Number: 1, Owners: []int64{101, 102}}}},
		Locator: locator,
		Picker:  fakePicker{card: testInventory[0]},
		Sender:  sender,
	}

	stats, err := r.Run(context.Background(), testTarget, testInventory)
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, 2, stats.TradesAttempted)
	require.Zero(t, stats.TradesSucceeded)
	require.Len(t, sender.sent, 2)
}

func TestRunStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	locator := &fakeLocator{instances: map[int64]int64{}}
	canceling := &fakeSender{}
	r := Runner{
		SelfID: 1,
		Pages: fakePages{pages: []owners.Page{
			{Number: 1, Owners: []int64{101, 102, 103}},
			{Number: 2, Owners: []int64{104}},
		}},
		Locator: locator,
		Picker:  fakePicker{card: testInventory[0]},
		Sender:  canceling,
	}

	// cancel after the first owner is looked at
	count := 0
	r.Locator = locatorFunc(func(ctx context.Context, st *partner.State, partnerID int64, target catalog.CardRecord) (int64, error) {
		count++
		if count == 1 {
			cancel()
		}
		return 0, partner.ErrNotFound
	})

	stats, err := r.Run(ctx, testTarget, testInventory)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, count)
	require.Equal(t, 1, stats.OwnersSeen)
}

type locatorFunc func(ctx context.Context, st *partner.State, partnerID int64, target catalog.CardRecord) (int64, error)

func (f locatorFunc) Find(ctx context.Context, st *partner.State, partnerID int64, target catalog.CardRecord) (int64, error) {
	return f(ctx, st, partnerID, target)
}
