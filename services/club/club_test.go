package club

import (
	"cardbuff/services/catalog"
	"cardbuff/services/session"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testFinder(t *testing.T, handler http.Handler) *Finder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := session.NewClient(session.ClientOptions{
		BaseURL: srv.URL,
		Profile: session.Profile{UserID: 1},
		Timeout: time.Second * 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewFinder(client, t.TempDir())
}

func TestFindBoostCard(t *testing.T) {
	f := testFinder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/clubs/boost":
			fmt.Fprint(w, `<a class="button button--block" href="/cards/42/users">Найти карту</a>`)
		case r.URL.Path == "/cards/42":
			fmt.Fprint(w, `<h1 class="card-show__title">Some Card</h1>
				<div class="card-show__grade" data-rank="B"></div>`)
		case r.URL.Path == "/cards/42/users":
			fmt.Fprint(w, `<div>
				<a class="card-show__owner" href="/users/1"></a>
				<a class="card-show__owner" href="/users/2"></a>
			</div>`)
		case r.URL.Path == "/cards/42/offers/want":
			fmt.Fprint(w, `<div>
				<a class="profile__friends-item" href="/users/3"></a>
				<a class="profile__friends-item" href="/users/4"></a>
				<a class="profile__friends-item" href="/users/5"></a>
			</div>`)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))

	target, err := f.FindBoostCard(context.Background(), "/clubs/boost")
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, int64(42), target.CardID)
	require.Equal(t, "Some Card", target.Name)
	require.Equal(t, "B", target.Rank)
	require.Equal(t, 2, target.OwnersCount)
	require.Equal(t, 3, target.WantersCount)
	require.True(t, strings.HasSuffix(target.CardURL, "/cards/42/users"))

	// the target survives on disk for the next run
	loaded, err := LoadTarget(f.dir)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, target, loaded)
}

func TestFindBoostCardNoLink(t *testing.T) {
	f := testFinder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div>nothing to boost</div>`)
	}))

	_, err := f.FindBoostCard(context.Background(), "/clubs/boost")
	require.ErrorIs(t, err, ErrNoBoostCard)
}

func TestLoadTargetMissing(t *testing.T) {
	_, err := LoadTarget(t.TempDir())
	require.Error(t, err)
}

func TestSaveAndLoadTarget(t *testing.T) {
	dir := t.TempDir()
	target := catalog.TargetCard{CardID: 7, Rank: "A", Name: "x", WantersCount: 4}
	require.NoError(t, SaveTarget(dir, target))

	loaded, err := LoadTarget(dir)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, target, loaded)
}
