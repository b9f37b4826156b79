// Package dispatch submits exchange offers to the trade-creation
// endpoint and decides, from deliberately ambiguous responses, whether
// an offer went through.
package dispatch

import (
	"cardbuff/services/session"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("cardbuff.services.dispatch")

// defaultMinInterval is the floor between consecutive dispatches,
// global across the run, to stay under the site's abuse thresholds.
const defaultMinInterval = 11 * time.Second

// ErrAmbiguous means neither submission produced a recognized success
// signal. False negatives are preferred over false positives here, so
// ambiguity is failure.
var ErrAmbiguous = errors.New("trade response matched no known success signal")

type Options struct {
	// DryRun rehearses every step except the actual POST, still
	// advancing the inter-trade clock.
	DryRun bool
	// MinInterval overrides the inter-trade floor when nonzero.
	MinInterval time.Duration
}

type Dispatcher struct {
	client   *session.Client
	interval time.Duration
	lastDone time.Time
	dryRun   bool

	jitter func() time.Duration
	sleep  func(time.Duration)
}

func New(client *session.Client, opts Options) *Dispatcher {
	interval := opts.MinInterval
	if interval == 0 {
		interval = defaultMinInterval
	}
	return &Dispatcher{
		client:   client,
		interval: interval,
		dryRun:   opts.DryRun,
		jitter:   jitterDelay,
		sleep:    time.Sleep,
	}
}

// waitTurn blocks until the minimum interval has passed since the
// previous dispatch finished. The interval counts from the end of the
// prior submission, jitter included, not from its start.
func (d *Dispatcher) waitTurn(ctx context.Context) error {
	if d.lastDone.IsZero() {
		return nil
	}
	remaining := d.interval - time.Since(d.lastDone)
	if remaining <= 0 {
		return nil
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Send offers myInstance for theirInstance to receiverID. It first
// waits out the minimum inter-trade interval, so callers may invoke
// it back to back. The form-encoded submission is classified against
// the known success shapes; when that is inconclusive the same
// payload is resubmitted JSON-encoded before giving up with
// ErrAmbiguous.
func (d *Dispatcher) Send(ctx context.Context, receiverID, myInstance, theirInstance int64) error {
	ctx, span := tracer.Start(ctx, "dispatch:Send")
	defer span.End()

	if err := d.waitTurn(ctx); err != nil {
		return err
	}

	if d.dryRun {
		slog.InfoContext(ctx, "dry run, trade not sent",
			"receiver_id", receiverID, "my_instance", myInstance, "their_instance", theirInstance)
		d.lastDone = time.Now()
		return nil
	}

	defer func() {
		d.sleep(d.jitter())
		d.lastDone = time.Now()
	}()

	resp, err := d.post(ctx, receiverID, false, map[string]string{
		"receiver_id":         strconv.FormatInt(receiverID, 10),
		"creator_card_ids[]":  strconv.FormatInt(myInstance, 10),
		"receiver_card_ids[]": strconv.FormatInt(theirInstance, 10),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "trade submission failed")
		return err
	}
	if classified(resp) {
		slog.InfoContext(ctx, "trade sent", "receiver_id", receiverID)
		return nil
	}

	slog.DebugContext(ctx, "form submission ambiguous, retrying as json",
		"receiver_id", receiverID, "status", resp.StatusCode())

	resp, err = d.post(ctx, receiverID, true, map[string]any{
		"receiver_id":       receiverID,
		"creator_card_ids":  []int64{myInstance},
		"receiver_card_ids": []int64{theirInstance},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "trade resubmission failed")
		return err
	}
	if classified(resp) {
		slog.InfoContext(ctx, "trade sent", "receiver_id", receiverID)
		return nil
	}

	span.SetStatus(codes.Error, ErrAmbiguous.Error())
	return fmt.Errorf("receiver %d: %w", receiverID, ErrAmbiguous)
}

func (d *Dispatcher) post(ctx context.Context, receiverID int64, asJSON bool, payload any) (*resty.Response, error) {
	req := d.client.Api.R().
		SetContext(ctx).
		SetHeader("referer", fmt.Sprintf("%s/trades/offers/%d", d.client.BaseURL, receiverID)).
		SetHeader("accept", "application/json, text/javascript, */*; q=0.01")

	if asJSON {
		req.SetBody(payload)
	} else {
		req.SetFormData(payload.(map[string]string))
	}
	return req.Post("/trades/create")
}

func jitterDelay() time.Duration {
	ms, err := random.IntRange(500, 2000)
	if err != nil {
		ms = 1000
	}
	return time.Duration(ms) * time.Millisecond
}
