package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/carsift/carsift/internal/aggregate"
	"github.com/carsift/carsift/internal/enrich"
	"github.com/carsift/carsift/internal/model"
	"github.com/carsift/carsift/internal/stream"
)

type fakeSearcher struct {
	batch aggregate.Batch
	err   error
}

func (f *fakeSearcher) Search(ctx context.Context, _ model.Criteria) (aggregate.Batch, error) {
	return f.batch, f.err
}

type fakeEnricher struct {
	updates map[string]model.ListingUpdate
}

func (f *fakeEnricher) Run(ctx context.Context, listings []model.Listing) <-chan enrich.Outcome {
	out := make(chan enrich.Outcome)
	go func() {
		defer close(out)
		for _, l := range listings {
			update, ok := f.updates[l.ID]
			if !ok {
				update = model.ListingUpdate{Status: model.StatusComplete}
			}
			select {
			case out <- enrich.Outcome{ID: l.ID, Update: update}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func listings(ids ...string) []model.Listing {
	var out []model.Listing
	for _, id := range ids {
		out = append(out, model.NewListing(model.RawListing{
			SourceID:        model.SourceEbay,
			SourceListingID: id,
			Title:           "Car " + id,
			Price:           1000,
			Currency:        "GBP",
		}))
	}
	return out
}

func drain(t *testing.T, ch <-chan stream.Event) []stream.Event {
	t.Helper()
	var events []stream.Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, open := <-ch:
			if !open {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("event channel never closed")
		}
	}
}

func TestRun_EventOrder(t *testing.T) {
	batch := aggregate.Batch{
		Listings: listings("1", "2"),
		Warnings: []aggregate.Warning{{Source: model.SourceGumtree, Message: "gumtree failed: upstream returned status 503"}},
	}
	p := New(&fakeSearcher{batch: batch}, &fakeEnricher{}, nil)

	events := drain(t, p.Run(context.Background(), model.Criteria{}))

	if len(events) != 4 {
		t.Fatalf("expected warning + batch + 2 updates, got %d: %+v", len(events), events)
	}
	if events[0].Type != stream.TypeError || events[0].Message != "gumtree failed: upstream returned status 503" {
		t.Errorf("first event = %+v, want the warning", events[0])
	}
	if events[1].Type != stream.TypeListings || len(events[1].Listings) != 2 {
		t.Errorf("second event = %+v, want the batch", events[1])
	}

	batchIDs := map[string]bool{}
	for _, l := range events[1].Listings {
		batchIDs[l.ID] = true
	}
	for _, ev := range events[2:] {
		if ev.Type != stream.TypeUpdate {
			t.Errorf("event after batch = %+v, want update", ev)
			continue
		}
		// Every update must address an identity from the initial batch.
		if !batchIDs[ev.ID] {
			t.Errorf("update id %q not present in batch", ev.ID)
		}
	}
}

func TestRun_EmptyBatchSkipsListingsEvent(t *testing.T) {
	batch := aggregate.Batch{
		Warnings: []aggregate.Warning{
			{Source: model.SourceAutoTrader, Message: "autotrader failed: blocked"},
			{Source: model.SourceEbay, Message: "ebay failed: timeout"},
		},
	}
	p := New(&fakeSearcher{batch: batch}, &fakeEnricher{}, nil)

	events := drain(t, p.Run(context.Background(), model.Criteria{}))

	if len(events) != 2 {
		t.Fatalf("expected only the 2 warnings, got %d: %+v", len(events), events)
	}
	for _, ev := range events {
		if ev.Type != stream.TypeError {
			t.Errorf("event = %+v, want error type", ev)
		}
	}
}

func TestRun_NoResultsNoEvents(t *testing.T) {
	p := New(&fakeSearcher{}, &fakeEnricher{}, nil)
	events := drain(t, p.Run(context.Background(), model.Criteria{}))
	if len(events) != 0 {
		t.Fatalf("expected silent close for empty run, got %+v", events)
	}
}

func TestRun_TerminalStatuses(t *testing.T) {
	ls := listings("1", "2")
	p := New(
		&fakeSearcher{batch: aggregate.Batch{Listings: ls}},
		&fakeEnricher{updates: map[string]model.ListingUpdate{
			"ebay-1": {Status: model.StatusComplete, LicensePlate: "AB12 CDE"},
			"ebay-2": {Status: model.StatusFailed},
		}},
		nil)

	events := drain(t, p.Run(context.Background(), model.Criteria{}))

	statuses := map[string]model.Status{}
	for _, ev := range events {
		if ev.Type == stream.TypeUpdate {
			statuses[ev.ID] = ev.Update.Status
		}
	}
	if statuses["ebay-1"] != model.StatusComplete || statuses["ebay-2"] != model.StatusFailed {
		t.Errorf("terminal statuses = %v", statuses)
	}
}

func TestRun_CancelledConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(&fakeSearcher{batch: aggregate.Batch{Listings: listings("1", "2", "3")}}, &fakeEnricher{}, nil)

	ch := p.Run(ctx, model.Criteria{})

	// Read the batch, then walk away.
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no batch event")
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("pipeline did not stop after cancellation")
		}
	}
}
