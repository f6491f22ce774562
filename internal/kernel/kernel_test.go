package kernel

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sandwich/pkg/sandwich"
)

func TestRegisterModuleRequiredServices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		provide bool
		wantErr bool
	}{
		{name: "missing service", wantErr: true},
		{name: "service present", provide: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			k := newKernel(t)
			if testCase.provide {
				if err := k.RegisterService("clock", struct{}{}); err != nil {
					t.Fatalf("RegisterService() error = %v", err)
				}
			}
			module := &moduleStub{
				name: "needs-clock",
				spec: sandwich.ModuleSpec{Handlers: []sandwich.ModuleHandler{{
					Capability: sandwich.Capability{
						Name:             "tick",
						Interest:         createdInterest,
						RequiredServices: []string{"clock"},
					},
					Handler: ignore,
				}}},
			}

			err := k.RegisterModule(context.Background(), module)
			if (err != nil) != testCase.wantErr {
				t.Fatalf("RegisterModule() error = %v, wantErr %v", err, testCase.wantErr)
			}
			if testCase.wantErr && !errors.Is(err, sandwich.ErrServiceNotFound) {
				t.Fatalf("RegisterModule() error = %v, want ErrServiceNotFound", err)
			}
			if testCase.wantErr && module.registered.Load() != 0 {
				t.Fatal("OnRegister ran for a module missing services")
			}
		})
	}
}

func TestRegisterModuleRejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    sandwich.ModuleSpec
		wantErr string
	}{
		{
			name: "unnamed capability",
			spec: sandwich.ModuleSpec{Handlers: []sandwich.ModuleHandler{
				{Capability: sandwich.Capability{Interest: createdInterest}, Handler: ignore},
			}},
			wantErr: "capability has no name",
		},
		{
			name: "duplicate capability",
			spec: sandwich.ModuleSpec{Handlers: []sandwich.ModuleHandler{
				{Capability: sandwich.Capability{Name: "a", Interest: createdInterest}, Handler: ignore},
				{Capability: sandwich.Capability{Name: "a", Interest: createdInterest}, Handler: ignore},
			}},
			wantErr: "capability a declared twice",
		},
		{
			name: "nil handler",
			spec: sandwich.ModuleSpec{Handlers: []sandwich.ModuleHandler{
				{Capability: sandwich.Capability{Name: "a", Interest: createdInterest}},
			}},
			wantErr: "nil handler",
		},
		{
			name: "duplicate subscription name",
			spec: sandwich.ModuleSpec{Handlers: []sandwich.ModuleHandler{
				{
					Capability:   sandwich.Capability{Name: "a", Interest: createdInterest},
					Subscription: sandwich.SubscriptionSpec{Name: "shared"},
					Handler:      ignore,
				},
				{
					Capability:   sandwich.Capability{Name: "b", Interest: createdInterest},
					Subscription: sandwich.SubscriptionSpec{Name: "shared"},
					Handler:      ignore,
				},
			}},
			wantErr: "subscription shared declared twice",
		},
		{
			name:    "invalid command",
			spec:    sandwich.ModuleSpec{Commands: []sandwich.CommandSpec{{Name: "!bad"}}},
			wantErr: "must not include prefix",
		},
		{
			name: "duplicate command",
			spec: sandwich.ModuleSpec{Commands: []sandwich.CommandSpec{
				{Name: "ping"},
				{Name: " PING "},
			}},
			wantErr: "!ping declared twice",
		},
		{
			name: "overflow policy unknown",
			spec: sandwich.ModuleSpec{Handlers: []sandwich.ModuleHandler{{
				Capability:   sandwich.Capability{Name: "a", Interest: createdInterest},
				Subscription: sandwich.SubscriptionSpec{Overflow: "spill"},
				Handler:      ignore,
			}}},
			wantErr: "overflow policy",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			k := newKernel(t)
			err := k.RegisterModule(context.Background(), &moduleStub{name: "broken", spec: testCase.spec})
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("RegisterModule() error = %v, want containing %q", err, testCase.wantErr)
			}
			if len(k.modules) != 0 {
				t.Fatalf("modules = %d, want 0 after rejection", len(k.modules))
			}
		})
	}
}

func TestRegisterModuleRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	k := newKernel(t)
	if err := k.RegisterModule(context.Background(), &moduleStub{name: "twin"}); err != nil {
		t.Fatalf("first RegisterModule() error = %v", err)
	}
	err := k.RegisterModule(context.Background(), &moduleStub{name: "twin"})
	if !errors.Is(err, sandwich.ErrModuleAlreadyRegistered) {
		t.Fatalf("second RegisterModule() error = %v, want ErrModuleAlreadyRegistered", err)
	}
}

func TestRegisterModuleRollsBackOnRegisterFailure(t *testing.T) {
	t.Parallel()

	k := newKernel(t)
	failing := &moduleStub{
		name: "flaky",
		spec: sandwich.ModuleSpec{
			Handlers: []sandwich.ModuleHandler{{
				Capability: sandwich.Capability{Name: "watch", Interest: createdInterest},
				Handler:    ignore,
			}},
			Commands: []sandwich.CommandSpec{{Name: "flaky"}},
		},
		onRegister: func(ctx context.Context, runtime sandwich.ModuleRuntime) error {
			if _, err := runtime.Subscribe(ctx, createdInterest, sandwich.SubscriptionSpec{Name: "early"}, ignore); err != nil {
				return err
			}
			return errors.New("boom")
		},
	}

	if err := k.RegisterModule(context.Background(), failing); err == nil {
		t.Fatal("RegisterModule() error = nil, want failure")
	}
	if _, ok := k.commands.lookup("flaky"); ok {
		t.Fatal("command !flaky survived rollback")
	}
	if len(k.dispatcher.active) != 0 {
		t.Fatalf("active subscriptions = %d, want 0", len(k.dispatcher.active))
	}

	// The name and the command are free again.
	retry := &moduleStub{name: "flaky", spec: sandwich.ModuleSpec{Commands: []sandwich.CommandSpec{{Name: "flaky"}}}}
	if err := k.RegisterModule(context.Background(), retry); err != nil {
		t.Fatalf("RegisterModule() after rollback error = %v", err)
	}
}

func TestRegisterModuleRecoversRegisterPanic(t *testing.T) {
	t.Parallel()

	k := newKernel(t)
	module := &moduleStub{
		name: "panicky",
		onRegister: func(context.Context, sandwich.ModuleRuntime) error {
			panic("nil map")
		},
	}

	err := k.RegisterModule(context.Background(), module)
	if err == nil || !strings.Contains(err.Error(), "panic: nil map") {
		t.Fatalf("RegisterModule() error = %v, want recovered panic", err)
	}
}

func TestModuleSubscribeCapabilityGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		declared sandwich.InterestSet
		request  sandwich.InterestSet
		wantErr  bool
	}{
		{
			name:     "same kinds",
			declared: createdInterest,
			request:  createdInterest,
		},
		{
			name: "narrower command filter",
			declared: sandwich.InterestSet{
				Kinds:    []sandwich.EventKind{sandwich.EventKindCommandReceived},
				Commands: []string{"a", "b"},
			},
			request: sandwich.InterestSet{
				Kinds:    []sandwich.EventKind{sandwich.EventKindCommandReceived},
				Commands: []string{"b"},
			},
		},
		{
			name:     "other kind",
			declared: createdInterest,
			request:  sandwich.InterestSet{Kinds: []sandwich.EventKind{sandwich.EventKindMessageRetracted}},
			wantErr:  true,
		},
		{
			name:     "unbounded request",
			declared: createdInterest,
			request:  sandwich.InterestSet{},
			wantErr:  true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			k := newKernel(t)
			var subscribeErr error
			module := &moduleStub{
				name: "gated",
				spec: sandwich.ModuleSpec{Handlers: []sandwich.ModuleHandler{{
					Capability: sandwich.Capability{Name: "declared", Interest: testCase.declared},
					Handler:    ignore,
				}}},
				onRegister: func(ctx context.Context, runtime sandwich.ModuleRuntime) error {
					_, subscribeErr = runtime.Subscribe(ctx, testCase.request, sandwich.SubscriptionSpec{}, ignore)
					return nil
				},
			}

			if err := k.RegisterModule(context.Background(), module); err != nil {
				t.Fatalf("RegisterModule() error = %v", err)
			}
			if (subscribeErr != nil) != testCase.wantErr {
				t.Fatalf("Subscribe() error = %v, wantErr %v", subscribeErr, testCase.wantErr)
			}
		})
	}
}

func TestRegisterDriverRejectsDuplicate(t *testing.T) {
	t.Parallel()

	k := newKernel(t)
	if err := k.RegisterDriver(&driverStub{name: "discord-main"}); err != nil {
		t.Fatalf("RegisterDriver() error = %v", err)
	}
	err := k.RegisterDriver(&driverStub{name: "discord-main"})
	if !errors.Is(err, sandwich.ErrDriverAlreadyRegistered) {
		t.Fatalf("RegisterDriver() error = %v, want ErrDriverAlreadyRegistered", err)
	}
}

func TestRunDeliversDriverEventsAndShutsDown(t *testing.T) {
	t.Parallel()

	k := New()
	delivered := make(chan *sandwich.Event, 1)
	module := &moduleStub{
		name: "listener",
		spec: sandwich.ModuleSpec{Handlers: []sandwich.ModuleHandler{{
			Capability: sandwich.Capability{Name: "listen", Interest: createdInterest},
			Handler: func(_ context.Context, event *sandwich.Event) error {
				delivered <- event
				return nil
			},
		}}},
	}
	if err := k.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("RegisterModule() error = %v", err)
	}
	driver := &driverStub{name: "discord-main", publish: []*sandwich.Event{createdEvent("e1", "hello")}}
	if err := k.RegisterDriver(driver); err != nil {
		t.Fatalf("RegisterDriver() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	if got := receive(t, delivered); got.ID != "e1" {
		t.Fatalf("delivered event id = %q, want e1", got.ID)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	if module.started.Load() != 1 || module.stopped.Load() != 1 {
		t.Fatalf("module started=%d stopped=%d, want 1 and 1", module.started.Load(), module.stopped.Load())
	}
	if driver.shutdown.Load() != 1 {
		t.Fatalf("driver shutdown calls = %d, want 1", driver.shutdown.Load())
	}
	if err := k.dispatcher.Publish(context.Background(), createdEvent("e2", "late")); !errors.Is(err, errDispatcherClosed) {
		t.Fatalf("Publish() after Run error = %v, want errDispatcherClosed", err)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	k := New()
	driver := &driverStub{name: "blocking"}
	if err := k.RegisterDriver(driver); err != nil {
		t.Fatalf("RegisterDriver() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()
	waitFor(t, func() bool { return driver.started.Load() == 1 })

	if err := k.Run(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("second Run() error = %v, want already running", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunReturnsFatalDriverError(t *testing.T) {
	t.Parallel()

	k := New()
	healthy := &driverStub{name: "healthy"}
	broken := &driverStub{name: "broken", startErr: errors.New("token rejected")}
	for _, driver := range []sandwich.Driver{healthy, broken} {
		if err := k.RegisterDriver(driver); err != nil {
			t.Fatalf("RegisterDriver() error = %v", err)
		}
	}

	err := k.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "run driver broken") || !strings.Contains(err.Error(), "token rejected") {
		t.Fatalf("Run() error = %v, want broken driver failure", err)
	}
	if healthy.shutdown.Load() != 1 {
		t.Fatalf("healthy driver shutdown calls = %d, want 1", healthy.shutdown.Load())
	}
}

func TestRunReportsStuckDrivers(t *testing.T) {
	t.Parallel()

	var reported atomic.Int32
	k := New(
		WithShutdownTimeout(20*time.Millisecond),
		WithAsyncErrorHandler(func(context.Context, string, error) { reported.Add(1) }),
	)
	release := make(chan struct{})
	stuck := &stuckDriver{release: release}
	if err := k.RegisterDriver(stuck); err != nil {
		t.Fatalf("RegisterDriver() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := k.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(release)

	if reported.Load() == 0 {
		t.Fatal("stuck driver was not reported")
	}
}

func TestCommandCatalogService(t *testing.T) {
	t.Parallel()

	k := newKernel(t)
	modules := []*moduleStub{
		{name: "zeta", spec: sandwich.ModuleSpec{Commands: []sandwich.CommandSpec{{Name: "Zap", Usage: "<target>"}}}},
		{name: "alpha", spec: sandwich.ModuleSpec{Commands: []sandwich.CommandSpec{{Name: "ask"}, {Name: "help"}}}},
	}
	for _, module := range modules {
		if err := k.RegisterModule(context.Background(), module); err != nil {
			t.Fatalf("RegisterModule(%s) error = %v", module.name, err)
		}
	}

	catalog, err := sandwich.ResolveAs[sandwich.CommandCatalog](k.Services(), sandwich.ServiceCommandCatalog)
	if err != nil {
		t.Fatalf("resolve catalog: %v", err)
	}
	listed, err := catalog.ListCommands(context.Background())
	if err != nil {
		t.Fatalf("ListCommands() error = %v", err)
	}

	var names []string
	for _, entry := range listed {
		names = append(names, entry.ModuleName+":"+entry.Command.Name)
	}
	if got, want := strings.Join(names, ","), "alpha:ask,alpha:help,zeta:zap"; got != want {
		t.Fatalf("ListCommands() = %s, want %s", got, want)
	}

	err = k.RegisterModule(context.Background(), &moduleStub{
		name: "copycat",
		spec: sandwich.ModuleSpec{Commands: []sandwich.CommandSpec{{Name: "ZAP"}}},
	})
	if err == nil || !strings.Contains(err.Error(), "owned by module zeta") {
		t.Fatalf("RegisterModule(copycat) error = %v, want ownership conflict", err)
	}
}

func TestServicesRegistry(t *testing.T) {
	t.Parallel()

	k := newKernel(t)
	if err := k.RegisterService("store", 42); err != nil {
		t.Fatalf("RegisterService() error = %v", err)
	}
	if err := k.RegisterService("store", 43); !errors.Is(err, sandwich.ErrServiceAlreadyRegistered) {
		t.Fatalf("duplicate RegisterService() error = %v", err)
	}
	if err := k.RegisterService("", 1); err == nil {
		t.Fatal("RegisterService(\"\") error = nil")
	}
	if err := k.RegisterService("nothing", nil); err == nil {
		t.Fatal("RegisterService(nil) error = nil")
	}

	value, err := sandwich.ResolveAs[int](k.Services(), "store")
	if err != nil || value != 42 {
		t.Fatalf("ResolveAs() = %d, %v", value, err)
	}
	if _, err := k.Services().Resolve("missing"); !errors.Is(err, sandwich.ErrServiceNotFound) {
		t.Fatalf("Resolve(missing) error = %v", err)
	}
}

// stuckDriver ignores cancellation until released.
type stuckDriver struct {
	release chan struct{}
}

func (*stuckDriver) Name() string { return "stuck" }

func (d *stuckDriver) Start(context.Context, sandwich.EventSink) error {
	<-d.release
	return nil
}

func (*stuckDriver) Shutdown(context.Context) error { return nil }
