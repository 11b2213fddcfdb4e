package supervisor

import (
	"context"
	"log/slog"
	"testing"

	"github.com/divotmaker/flighthook/internal/actor"
	"github.com/divotmaker/flighthook/internal/bus"
	"github.com/divotmaker/flighthook/internal/registry"
	"github.com/divotmaker/flighthook/internal/schema"
	"github.com/divotmaker/flighthook/internal/state"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// emptyConfig returns a config with no webserver sections, so resolveAll
// never tries to bind a real network listener during these tests.
func emptyConfig() *schema.Config {
	return &schema.Config{
		Webserver:     map[string]schema.WebserverSection{},
		Device:        map[string]schema.DeviceSection{},
		MockDevice:    map[string]schema.DeviceSection{},
		Simulator:     map[string]schema.SimulatorSection{},
		MockSimulator: map[string]schema.SimulatorSection{},
	}
}

func newTestSupervisor(t *testing.T, cfg *schema.Config) (*Supervisor, *state.Shared) {
	t.Helper()
	gs, _ := state.NewGameState()
	shared := state.NewShared(state.NewConfigStore(cfg), gs)
	reg := registry.New()
	b := bus.New(discardLogger(), 64)
	sup := New(context.Background(), reg, b, shared, discardLogger())
	return sup, shared
}

func TestResolve_SkipsSectionsWithoutAddress(t *testing.T) {
	cfg := emptyConfig()
	cfg.Device["0"] = schema.DeviceSection{Name: "bay-1"} // no address
	cfg.Device["1"] = schema.DeviceSection{Name: "bay-2", Address: "10.0.0.1:9000"}
	cfg.Simulator["0"] = schema.SimulatorSection{Name: "gspro"} // no address

	resolved := Resolve(cfg, discardLogger())

	var ids []schema.ActorID
	for _, r := range resolved {
		ids = append(ids, r.ID)
	}
	if len(ids) != 1 || ids[0] != schema.NewActorID("device", "1") {
		t.Fatalf("expected only device.1 to resolve, got %v", ids)
	}
}

func TestResolve_MockSectionsNeverSkipped(t *testing.T) {
	cfg := emptyConfig()
	cfg.MockDevice["0"] = schema.DeviceSection{Name: "synthetic"}
	cfg.MockSimulator["0"] = schema.SimulatorSection{Name: "synthetic-sim"}

	resolved := Resolve(cfg, discardLogger())
	if len(resolved) != 2 {
		t.Fatalf("expected both mock sections to resolve regardless of address, got %d", len(resolved))
	}
}

func TestSupervisor_StartAll(t *testing.T) {
	cfg := emptyConfig()
	cfg.MockDevice["0"] = schema.DeviceSection{Name: "synthetic"}
	sup, _ := newTestSupervisor(t, cfg)

	result := sup.StartAll()

	if len(result.Started) != 1 || result.Started[0] != schema.NewActorID("mock_device", "0") {
		t.Fatalf("Started = %v, want [mock_device.0]", result.Started)
	}
	if _, ok := sup.reg.Lookup(schema.NewActorID("mock_device", "0")); !ok {
		t.Error("expected mock_device.0 to be registered")
	}
}

func TestApplyConfigReload_StopsRemovedActor(t *testing.T) {
	cfg := emptyConfig()
	cfg.MockDevice["0"] = schema.DeviceSection{Name: "a"}
	cfg.MockDevice["1"] = schema.DeviceSection{Name: "b"}
	sup, shared := newTestSupervisor(t, cfg)
	sup.StartAll()

	shared.Config.Remove("mock_device", "1")
	result := sup.ApplyConfigReload(nil)

	if len(result.Stopped) != 1 || result.Stopped[0] != schema.NewActorID("mock_device", "1") {
		t.Fatalf("Stopped = %v, want [mock_device.1]", result.Stopped)
	}
	if _, ok := sup.reg.Lookup(schema.NewActorID("mock_device", "1")); ok {
		t.Error("expected mock_device.1 to be removed from the registry")
	}
	if _, ok := sup.reg.Lookup(schema.NewActorID("mock_device", "0")); !ok {
		t.Error("mock_device.0 should be untouched")
	}
}

func TestApplyConfigReload_StartsNewActor(t *testing.T) {
	cfg := emptyConfig()
	sup, shared := newTestSupervisor(t, cfg)
	sup.StartAll()

	shared.Config.UpsertDevice(true, "0", schema.DeviceSection{Name: "new"})
	result := sup.ApplyConfigReload(nil)

	if len(result.Started) != 1 || result.Started[0] != schema.NewActorID("mock_device", "0") {
		t.Fatalf("Started = %v, want [mock_device.0]", result.Started)
	}
	if _, ok := sup.reg.Lookup(schema.NewActorID("mock_device", "0")); !ok {
		t.Error("expected mock_device.0 to be registered after reload")
	}
}

func TestApplyConfigReload_MockDeviceReconfiguresInPlace(t *testing.T) {
	// Mock actors always report Applied (actor.Applied): changing their
	// section must never produce a restart.
	cfg := emptyConfig()
	cfg.MockDevice["0"] = schema.DeviceSection{Name: "a"}
	sup, shared := newTestSupervisor(t, cfg)
	sup.StartAll()

	shared.Config.UpsertDevice(true, "0", schema.DeviceSection{Name: "a-renamed"})
	result := sup.ApplyConfigReload(nil)

	if len(result.Restarted) != 0 {
		t.Errorf("expected no restarts for a mock actor's in-place reconfigure, got %v", result.Restarted)
	}
	if len(result.Started) != 0 || len(result.Stopped) != 0 {
		t.Errorf("expected no start/stop churn, got started=%v stopped=%v", result.Started, result.Stopped)
	}
}

func TestApplyConfigReload_DeviceAddressChangeRestarts(t *testing.T) {
	cfg := emptyConfig()
	cfg.Device["0"] = schema.DeviceSection{Name: "bay-1", Address: "127.0.0.1:1"}
	sup, shared := newTestSupervisor(t, cfg)
	sup.StartAll()

	shared.Config.UpsertDevice(false, "0", schema.DeviceSection{Name: "bay-1", Address: "127.0.0.1:2"})
	result := sup.ApplyConfigReload(nil)

	if len(result.Restarted) != 1 || result.Restarted[0] != schema.NewActorID("device", "0") {
		t.Fatalf("Restarted = %v, want [device.0]", result.Restarted)
	}
	if _, ok := sup.reg.Lookup(schema.NewActorID("device", "0")); !ok {
		t.Error("expected device.0 to still be registered after restart")
	}
}

func TestApplyConfigReload_ScopeFiltersToOneActor(t *testing.T) {
	cfg := emptyConfig()
	cfg.MockDevice["0"] = schema.DeviceSection{Name: "a"}
	cfg.MockDevice["1"] = schema.DeviceSection{Name: "b"}
	sup, shared := newTestSupervisor(t, cfg)
	sup.StartAll()

	shared.Config.Remove("mock_device", "0")
	shared.Config.Remove("mock_device", "1")

	scope := schema.NewActorID("mock_device", "0")
	result := sup.ApplyConfigReload(&scope)

	if len(result.Stopped) != 1 || result.Stopped[0] != scope {
		t.Fatalf("Stopped = %v, want [mock_device.0] (scoped reload)", result.Stopped)
	}
	if _, ok := sup.reg.Lookup(schema.NewActorID("mock_device", "1")); !ok {
		t.Error("mock_device.1 should survive a reload scoped to mock_device.0, even though it was also removed from config")
	}
}

func TestSupervisor_SystemActorExcludedFromReconciliation(t *testing.T) {
	cfg := emptyConfig()
	sup, _ := newTestSupervisor(t, cfg)
	sup.reg.Register(schema.SystemActorID, registry.Entry{
		Name:     "system",
		Actor:    noopActor{},
		Receiver: sup.bus.Subscribe(),
	})

	result := sup.ApplyConfigReload(nil)

	if len(result.Stopped) != 0 {
		t.Errorf("system actor must never be stopped by reconciliation, got Stopped=%v", result.Stopped)
	}
	if _, ok := sup.reg.Lookup(schema.SystemActorID); !ok {
		t.Error("system actor must remain registered")
	}
}

type noopActor struct{}

func (noopActor) Start(ctx context.Context, shared *state.Shared, sender bus.Sender, receiver *bus.Receiver) error {
	return nil
}
func (noopActor) Stop() {}
func (noopActor) Reconfigure(shared *state.Shared, sender bus.Sender) actor.ReconfigureResult {
	return actor.NoChange
}
