package system

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/schema"
	"github.com/divotmaker/flighthook/internal/state"
	"github.com/divotmaker/flighthook/internal/supervisor"
)

type fakeReconciler struct {
	calls []*schema.ActorID
	result supervisor.Result
}

func (f *fakeReconciler) ApplyConfigReload(scope *schema.ActorID) supervisor.Result {
	f.calls = append(f.calls, scope)
	return f.result
}

func newTestSystem(t *testing.T, rec Reconciler) (*Actor, *state.Shared, bus.Sender, *bus.Receiver, *bus.Bus) {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	gs, handle := state.NewGameState()
	cfgStore := state.NewConfigStore(schema.Default())
	shared := state.NewShared(cfgStore, gs)

	b := bus.New(nil, 16)
	a := New(handle, rec, configPath, nil)

	sender := b.NewSender(schema.SystemActorID)
	receiver := b.Subscribe()

	if err := a.Start(context.Background(), shared, sender, receiver); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	select {
	case <-a.Ready():
	case <-time.After(time.Second):
		t.Fatal("system actor never signaled ready")
	}
	return a, shared, sender, receiver, b
}

func TestActor_SetClubInfo_DerivesMode(t *testing.T) {
	rec := &fakeReconciler{}
	a, shared, _, _, b := newTestSystem(t, rec)
	_ = a

	pub := b.NewSender(schema.NewActorID("web", "0"))
	watchRecv := b.Subscribe()

	pub.Send(schema.Event{Kind: schema.KindSetClubInfo, SetClubInfo: &schema.ClubInfo{Club: schema.ClubPutter}})

	deadline := time.Now().Add(time.Second)
	var sawMode bool
	for time.Now().Before(deadline) {
		res := watchRecv.Poll()
		if res.Message != nil && res.Message.Event.Kind == schema.KindSetMode && *res.Message.Event.SetMode == schema.ModePutting {
			sawMode = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !sawMode {
		t.Fatal("expected a SetMode(putting) event derived from SetClubInfo(putter)")
	}

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if shared.Game.Snapshot().Club == schema.ClubPutter {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("game state club was never updated")
}

func TestActor_ConfigCommand_ReplaceAll_EmitsOutcome(t *testing.T) {
	rec := &fakeReconciler{result: supervisor.Result{Restarted: []schema.ActorID{"device.0"}}}
	_, shared, _, _, b := newTestSystem(t, rec)

	pub := b.NewSender(schema.NewActorID("web", "0"))
	watchRecv := b.Subscribe()

	replacement := schema.Default()
	replacement.DefaultUnits = schema.UnitsImperial
	pub.Send(schema.Event{Kind: schema.KindConfigCommand, ConfigCommand: &schema.ConfigCommand{
		RequestID: "req-1", Action: schema.ActionReplaceAll, Replacement: replacement,
	}})

	deadline := time.Now().Add(time.Second)
	var outcome *schema.ConfigOutcome
	for time.Now().Before(deadline) {
		res := watchRecv.Poll()
		if res.Message != nil && res.Message.Event.Kind == schema.KindConfigOutcome {
			outcome = res.Message.Event.ConfigOutcome
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if outcome == nil {
		t.Fatal("expected a ConfigOutcome event")
	}
	if outcome.RequestID != "req-1" {
		t.Errorf("request id = %q, want %q", outcome.RequestID, "req-1")
	}
	if len(outcome.Restarted) != 1 || outcome.Restarted[0] != schema.ActorID("device.0") {
		t.Errorf("restarted = %v, want [device.0]", outcome.Restarted)
	}
	if shared.Config.Snapshot().DefaultUnits != schema.UnitsImperial {
		t.Error("expected replaced config to be cached")
	}
	if len(rec.calls) != 1 || rec.calls[0] != nil {
		t.Errorf("expected ApplyConfigReload called once with a nil (global) scope, got %v", rec.calls)
	}
}

func TestActor_ConfigCommand_Remove_ScopesReload(t *testing.T) {
	rec := &fakeReconciler{}
	_, shared, _, _, b := newTestSystem(t, rec)
	shared.Config.UpsertDevice(false, "0", schema.DeviceSection{Name: "bay-1", Address: "10.0.0.1:1"})

	pub := b.NewSender(schema.NewActorID("web", "0"))
	pub.Send(schema.Event{Kind: schema.KindConfigCommand, ConfigCommand: &schema.ConfigCommand{
		Action: schema.ActionRemove, RemoveID: schema.NewActorID("device", "0"),
	}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(rec.calls) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(rec.calls) != 1 || rec.calls[0] == nil || *rec.calls[0] != schema.NewActorID("device", "0") {
		t.Fatalf("expected ApplyConfigReload scoped to device.0, got %v", rec.calls)
	}
	if _, ok := shared.Config.Snapshot().Device["0"]; ok {
		t.Error("expected device.0 section to be removed from cached config")
	}
}

func TestActor_Ready_BeforeStartupContinues(t *testing.T) {
	// Regression guard for the missed-initial-event race: Ready() must
	// close before any message sent immediately after Start is lost.
	rec := &fakeReconciler{}
	dir := t.TempDir()
	gs, handle := state.NewGameState()
	shared := state.NewShared(state.NewConfigStore(schema.Default()), gs)
	b := bus.New(nil, 16)
	a := New(handle, rec, filepath.Join(dir, "c.toml"), nil)

	sender := b.NewSender(schema.SystemActorID)
	receiver := b.Subscribe()
	a.Start(context.Background(), shared, sender, receiver)
	<-a.Ready()

	pub := b.NewSender(schema.NewActorID("web", "0"))
	pub.Send(schema.Event{Kind: schema.KindSetMode, SetMode: modePtr(schema.ModeChipping)})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if shared.Game.Snapshot().Mode == schema.ModeChipping {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("event sent right after Ready() was lost")
}

func modePtr(m schema.Mode) *schema.Mode { return &m }
