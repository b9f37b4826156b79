package dispatch

import (
	"cardbuff/services/session"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testDispatcher(t *testing.T, opts Options, handler http.Handler) *Dispatcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := session.NewClient(session.ClientOptions{
		BaseURL: srv.URL,
		Profile: session.Profile{UserID: 1, CSRFToken: "token"},
		Timeout: time.Second * 5,
	})
	if err != nil {
		t.Fatal(err)
	}

	if opts.MinInterval == 0 {
		opts.MinInterval = time.Millisecond
	}
	d := New(client, opts)
	d.jitter = func() time.Duration { return 0 }
	return d
}

func TestSendRedirectSuccess(t *testing.T) {
	d := testDispatcher(t, Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trades/create", r.URL.Path)
		w.Header().Set("Location", "/trades/123")
		w.WriteHeader(http.StatusFound)
	}))

	err := d.Send(context.Background(), 7, 501, 601)
	require.NoError(t, err)
}

func TestSendJSONFlagSuccess(t *testing.T) {
	d := testDispatcher(t, Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": true}`)
	}))

	err := d.Send(context.Background(), 7, 501, 601)
	require.NoError(t, err)
}

func TestSendNestedTradeIDSuccess(t *testing.T) {
	d := testDispatcher(t, Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"trade": {"id": 991}}`)
	}))

	err := d.Send(context.Background(), 7, 501, 601)
	require.NoError(t, err)
}

func TestSendPhraseSuccess(t *testing.T) {
	d := testDispatcher(t, Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div>Обмен успешно отправлен</div>`)
	}))

	err := d.Send(context.Background(), 7, 501, 601)
	require.NoError(t, err)
}

func TestSendAmbiguousResubmitsAsJSON(t *testing.T) {
	var contentTypes []string
	d := testDispatcher(t, Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentTypes = append(contentTypes, r.Header.Get("Content-Type"))
		fmt.Fprint(w, `<div>что-то непонятное</div>`)
	}))

	err := d.Send(context.Background(), 7, 501, 601)
	require.ErrorIs(t, err, ErrAmbiguous)
	require.Len(t, contentTypes, 2)
	require.Contains(t, contentTypes[0], "application/x-www-form-urlencoded")
	require.Contains(t, contentTypes[1], "application/json")
}

func TestSendAmbiguousFormThenJSONSuccess(t *testing.T) {
	posts := 0
	d := testDispatcher(t, Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		if posts == 1 {
			fmt.Fprint(w, `<div>что-то непонятное</div>`)
			return
		}
		fmt.Fprint(w, `{"ok": 1}`)
	}))

	err := d.Send(context.Background(), 7, 501, 601)
	require.NoError(t, err)
	require.Equal(t, 2, posts)
}

func TestSendHonorsMinInterval(t *testing.T) {
	interval := 150 * time.Millisecond
	d := testDispatcher(t, Options{MinInterval: interval}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": true}`)
	}))

	start := time.Now()
	require.NoError(t, d.Send(context.Background(), 7, 501, 601))
	require.NoError(t, d.Send(context.Background(), 8, 502, 602))
	require.GreaterOrEqual(t, time.Since(start), interval)
}

func TestSendIntervalCountsFromCompletion(t *testing.T) {
	interval := 100 * time.Millisecond
	jitter := 50 * time.Millisecond

	var requestTimes []time.Time
	d := testDispatcher(t, Options{MinInterval: interval}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestTimes = append(requestTimes, time.Now())
		fmt.Fprint(w, `{"success": true}`)
	}))
	d.jitter = func() time.Duration { return jitter }

	require.NoError(t, d.Send(context.Background(), 7, 501, 601))
	require.NoError(t, d.Send(context.Background(), 8, 502, 602))

	require.Len(t, requestTimes, 2)
	// the clock starts after the first submission and its jitter
	// pause, so the gap exceeds interval alone
	require.GreaterOrEqual(t, requestTimes[1].Sub(requestTimes[0]), interval+jitter)
}

func TestSendDryRunSkipsNetworkButKeepsSpacing(t *testing.T) {
	requests := 0
	interval := 100 * time.Millisecond
	d := testDispatcher(t, Options{DryRun: true, MinInterval: interval}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))

	start := time.Now()
	require.NoError(t, d.Send(context.Background(), 7, 501, 601))
	require.NoError(t, d.Send(context.Background(), 8, 502, 602))
	require.Equal(t, 0, requests)
	require.GreaterOrEqual(t, time.Since(start), interval)
}

func TestClassifyRedirectIgnoresUnrelatedLocation(t *testing.T) {
	d := testDispatcher(t, Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/login")
		w.WriteHeader(http.StatusFound)
	}))

	err := d.Send(context.Background(), 7, 501, 601)
	require.ErrorIs(t, err, ErrAmbiguous)
}
