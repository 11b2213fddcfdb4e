package bus

import (
	"testing"
	"time"

	"github.com/divotmaker/flighthook/internal/schema"
)

func TestSender_StampsSourceAndTimestamp(t *testing.T) {
	b := New(nil, 4)
	recv := b.Subscribe()
	sender := b.NewSender(schema.NewActorID("device", "0"))

	before := time.Now().UTC()
	sender.Send(schema.Event{Kind: schema.KindSetMode})
	after := time.Now().UTC()

	res := recv.Poll()
	if res.Message == nil {
		t.Fatal("expected a delivered message")
	}
	if res.Message.Source != schema.NewActorID("device", "0") {
		t.Errorf("source = %q, want device.0", res.Message.Source)
	}
	if res.Message.Timestamp.Before(before) || res.Message.Timestamp.After(after) {
		t.Errorf("timestamp %v not within [%v, %v]", res.Message.Timestamp, before, after)
	}
}

func TestSender_DropsSilentlyWithNoSubscribers(t *testing.T) {
	b := New(nil, 4)
	sender := b.NewSender(schema.SystemActorID)
	sender.Send(schema.Event{Kind: schema.KindSetMode}) // must not panic or block
}

func TestReceiver_DropsOnFullChannelAndCountsLag(t *testing.T) {
	b := New(nil, 2)
	recv := b.Subscribe()
	sender := b.NewSender(schema.SystemActorID)

	// Fill the backlog, then overflow it.
	for i := 0; i < 5; i++ {
		sender.Send(schema.Event{Kind: schema.KindSetMode})
	}
	if got := recv.sub.lagged.Load(); got != 3 {
		t.Errorf("lagged = %d, want 3 (5 sends into a backlog of 2)", got)
	}

	delivered := 0
	for {
		res := recv.Poll()
		if res.Message == nil {
			break
		}
		delivered++
	}
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2 (backlog capacity)", delivered)
	}
}

func TestReceiver_IndependentFromSlowSubscriber(t *testing.T) {
	b := New(nil, 1)
	slow := b.Subscribe()
	fast := b.Subscribe()
	sender := b.NewSender(schema.SystemActorID)

	sender.Send(schema.Event{Kind: schema.KindSetMode})
	sender.Send(schema.Event{Kind: schema.KindSetMode})

	// fast should still have its one buffered message even though slow
	// dropped its second.
	res := fast.Poll()
	if res.Message == nil {
		t.Fatal("expected fast subscriber to receive a message independent of the slow one")
	}
	_ = slow
}

func TestReceiver_UnsubscribeClosesChannel(t *testing.T) {
	b := New(nil, 4)
	recv := b.Subscribe()
	recv.Unsubscribe()

	res := recv.Poll()
	if !res.Shutdown {
		t.Error("expected Poll on an unsubscribed receiver's closed channel to report Shutdown")
	}

	// Idempotent.
	recv.Unsubscribe()
}

func TestReceiver_ShutdownFlagReportedByIsShutdownAndPoll(t *testing.T) {
	b := New(nil, 4)
	recv := b.Subscribe()

	if recv.IsShutdown() {
		t.Fatal("fresh receiver should not be shut down")
	}
	recv.Shutdown()
	if !recv.IsShutdown() {
		t.Error("expected IsShutdown to report true after Shutdown")
	}
	res := recv.Poll()
	if !res.Shutdown {
		t.Error("expected Poll to report Shutdown once the flag is raised")
	}
}

func TestBus_CloseShutsDownAllReceivers(t *testing.T) {
	b := New(nil, 4)
	r1 := b.Subscribe()
	r2 := b.Subscribe()

	b.Close()

	if res := r1.Poll(); !res.Shutdown {
		t.Error("expected r1 to observe shutdown after Close")
	}
	if res := r2.Poll(); !res.Shutdown {
		t.Error("expected r2 to observe shutdown after Close")
	}
}

func TestReceiver_PollEmptyWhenNothingQueued(t *testing.T) {
	b := New(nil, 4)
	recv := b.Subscribe()
	res := recv.Poll()
	if res.Message != nil || res.Shutdown {
		t.Errorf("expected an empty PollResult, got %+v", res)
	}
}

func TestSender_Source(t *testing.T) {
	b := New(nil, 4)
	sender := b.NewSender(schema.NewActorID("simulator", "1"))
	if sender.Source() != schema.NewActorID("simulator", "1") {
		t.Errorf("Source() = %q, want simulator.1", sender.Source())
	}
}
