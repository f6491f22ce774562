package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sandwich/internal/driver"
	"sandwich/internal/kernel"
	"sandwich/internal/replycache"
	"sandwich/modules/askai"
	"sandwich/modules/gitlines"
	"sandwich/modules/help"
	"sandwich/modules/replytracker"
	"sandwich/modules/utility"
	"sandwich/modules/whitelist"
	"sandwich/pkg/llm"
	"sandwich/pkg/sandwich"
)

type runOptions struct {
	configFile string
	envFile    string
}

func run(options runOptions) error {
	if err := loadEnvFile(options.envFile); err != nil {
		return err
	}

	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}

	cfg, err := loadConfig(options.configFile, registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))
	kernelRuntime := buildKernelRuntime(logger, cfg)

	drivers, sinkDispatcher, err := buildDriverRuntime(logger, cfg, registry)
	if err != nil {
		return err
	}

	replies, err := replycache.New(sinkDispatcher, replycache.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build reply cache: %w", err)
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancelRun := context.WithCancelCause(signalCtx)
	defer cancelRun(nil)

	restarter := newProcessRestarter(logger, cancelRun)

	if err := registerRuntimeDrivers(kernelRuntime, drivers); err != nil {
		return err
	}
	services := runtimeServices{
		logger:     logger,
		dispatcher: sinkDispatcher,
		replies:    replies,
		whitelist:  buildWhitelist(cfg),
		restarter:  restarter,
	}
	if cfg.llm != nil {
		providers, err := llm.NewRegistryFromConfig(*cfg.llm)
		if err != nil {
			return fmt.Errorf("build llm providers: %w", err)
		}
		services.providers = providers
	}
	if err := registerRuntimeServices(kernelRuntime, services); err != nil {
		return err
	}
	if err := registerRuntimeModules(context.Background(), kernelRuntime, cfg); err != nil {
		return err
	}

	runErr := kernelRuntime.Run(runCtx)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancelShutdown()
	if err := replies.Shutdown(shutdownCtx); err != nil {
		logger.Warn("reply cache shutdown failed", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run kernel: %w", runErr)
	}
	if restarter.requested() {
		return restarter.exec()
	}

	return nil
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
		kernel.WithDefaultHandlerTimeout(cfg.handlerTimeout),
	)
}

func buildDriverRuntime(
	logger *slog.Logger,
	cfg appConfig,
	registry *driver.Registry,
) ([]sandwich.Driver, sandwich.SinkDispatcher, error) {
	if registry == nil {
		return nil, nil, fmt.Errorf("build drivers: nil driver registry")
	}

	runtimes, err := registry.BuildEnabled(cfg.drivers, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build drivers: %w", err)
	}

	drivers := make([]sandwich.Driver, 0, len(runtimes))
	for _, runtime := range runtimes {
		drivers = append(drivers, runtime.Driver)
	}

	dispatcher, err := driver.NewRouter(runtimes)
	if err != nil {
		return nil, nil, fmt.Errorf("build sink dispatcher: %w", err)
	}

	return drivers, dispatcher, nil
}

func buildWhitelist(cfg appConfig) *whitelist.Store {
	return whitelist.NewStore(
		whitelist.WithOwners(cfg.ownerIDs...),
		whitelist.WithMembers(sandwich.WhitelistScopeGeneral, cfg.whitelist...),
		whitelist.WithMembers(sandwich.WhitelistScopeAI, cfg.aiWhitelist...),
	)
}

type runtimeServices struct {
	logger     *slog.Logger
	dispatcher sandwich.SinkDispatcher
	replies    sandwich.ReplyCache
	whitelist  sandwich.Whitelist
	restarter  sandwich.Restarter
	// providers is nil when no llm section is configured.
	providers sandwich.LLMProviderRegistry
}

func registerRuntimeServices(kernelRuntime *kernel.Kernel, services runtimeServices) error {
	if services.dispatcher == nil {
		return fmt.Errorf("register sink dispatcher service: nil dispatcher")
	}

	entries := []struct {
		name    string
		service any
	}{
		{name: sandwich.ServiceLogger, service: services.logger},
		{name: sandwich.ServiceSinkDispatcher, service: services.dispatcher},
		{name: sandwich.ServiceReplyCache, service: services.replies},
		{name: sandwich.ServiceWhitelist, service: services.whitelist},
		{name: sandwich.ServiceRestarter, service: services.restarter},
	}
	if services.providers != nil {
		entries = append(entries, struct {
			name    string
			service any
		}{name: sandwich.ServiceLLMProviderRegistry, service: services.providers})
	}

	for _, entry := range entries {
		if err := kernelRuntime.RegisterService(entry.name, entry.service); err != nil {
			return fmt.Errorf("register service %s: %w", entry.name, err)
		}
	}

	return nil
}

func registerRuntimeModules(ctx context.Context, kernelRuntime *kernel.Kernel, cfg appConfig) error {
	modules := []sandwich.Module{
		help.New(),
		whitelist.New(),
		utility.New(),
		replytracker.New(),
		gitlines.New(
			gitlines.WithMaxArchiveBytes(cfg.gitlinesMaxArchiveBytes),
			gitlines.WithDefaultBranch(cfg.gitlinesDefaultBranch),
		),
	}
	if cfg.llm != nil {
		askModule, err := askai.New(*cfg.llm)
		if err != nil {
			return fmt.Errorf("build askai module: %w", err)
		}
		modules = append(modules, askModule)
	}

	for _, module := range modules {
		if err := kernelRuntime.RegisterModule(ctx, module); err != nil {
			return fmt.Errorf("register %s module: %w", module.Name(), err)
		}
	}

	return nil
}

func registerRuntimeDrivers(kernelRuntime *kernel.Kernel, drivers []sandwich.Driver) error {
	for _, runtimeDriver := range drivers {
		if err := kernelRuntime.RegisterDriver(runtimeDriver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtimeDriver.Name(), err)
		}
	}

	return nil
}
