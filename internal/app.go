package internal

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Hamnivore/used-item-aggregator/internal/adapters/craigslistfetcher"
	"github.com/Hamnivore/used-item-aggregator/internal/adapters/ebayfetcher"
	logger_adapter "github.com/Hamnivore/used-item-aggregator/internal/adapters/logger"
	"github.com/Hamnivore/used-item-aggregator/internal/adapters/offerupfetcher"
	rabbitmq_adapter "github.com/Hamnivore/used-item-aggregator/internal/adapters/rabbitmq"
	"github.com/Hamnivore/used-item-aggregator/internal/adapters/rest"
	"github.com/Hamnivore/used-item-aggregator/internal/adapters/resultstore"
	"github.com/Hamnivore/used-item-aggregator/internal/adapters/sink"
	"github.com/Hamnivore/used-item-aggregator/internal/adapters/stream"
	"github.com/Hamnivore/used-item-aggregator/internal/configs"
	"github.com/Hamnivore/used-item-aggregator/internal/constants"
	"github.com/Hamnivore/used-item-aggregator/internal/core/domain"
	"github.com/Hamnivore/used-item-aggregator/internal/core/port"
	"github.com/Hamnivore/used-item-aggregator/internal/core/usecase"
	"github.com/Hamnivore/used-item-aggregator/pkg/fluentlogger"
	"github.com/Hamnivore/used-item-aggregator/pkg/rabbitmq/rabbitmq_common"
	"github.com/Hamnivore/used-item-aggregator/pkg/rabbitmq/rabbitmq_consumer"
	"github.com/Hamnivore/used-item-aggregator/pkg/rabbitmq/rabbitmq_producer"
	"github.com/fluent/fluent-logger-golang/fluent"
)

// App wires every component of the finder service
type App struct {
	config        *configs.AppConfig
	fluentClient  *fluent.Fluent
	connManager   *rabbitmq_common.ConnectionManager
	eventProducer *rabbitmq_producer.Publisher
	logger        port.LoggerPort

	resultStore *resultstore.MemoryResultStore
	restServer  *rest.Server

	// pollDispatcher serves HTTP searches, brokerDispatcher serves the broker queue
	pollDispatcher   *usecase.SearchDispatcher
	brokerDispatcher *usecase.SearchDispatcher

	// Inbound ports
	streamListener   port.EventListenerPort
	commandsListener port.EventListenerPort
}

// NewApp is the composition root: every dependency is created and connected here.
func NewApp() (*App, error) {
	appConfig, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading application configuration: %w", err)
	}

	// --- 1. Loggers ---
	var activeLoggers []port.LoggerPort

	stdoutLogger := logger_adapter.NewSlogAdapter(logger_adapter.SlogConfig{
		Level:    logger_adapter.ParseLevel(appConfig.StdoutLogger.Level),
		IsJSON:   appConfig.StdoutLogger.IsJSON,
		UseColor: !appConfig.StdoutLogger.IsJSON,
	})
	activeLoggers = append(activeLoggers, stdoutLogger)

	var fluentClient *fluent.Fluent
	if appConfig.FluentBit.Enabled {
		fluentClient, err = fluentlogger.NewClient(fluentlogger.Config{
			Host:      appConfig.FluentBit.Host,
			Port:      appConfig.FluentBit.Port,
			TagPrefix: appConfig.AppName,
			Async:     true,
		})
		if err != nil {
			stdoutLogger.Error("Failed to create fluentbit client", err, nil)
			return nil, fmt.Errorf("failed to create fluentbit client: %w", err)
		}

		fluentAdapter, err := logger_adapter.NewFluentLoggerAdapter(fluentClient, logger_adapter.ParseLevel(appConfig.FluentBit.Level))
		if err != nil {
			stdoutLogger.Error("Failed to create fluentbit adapter", err, nil)
			fluentClient.Close()
			return nil, err
		}
		activeLoggers = append(activeLoggers, fluentAdapter)
	}

	multiLogger, err := logger_adapter.NewMultiloggerAdapter(activeLoggers...)
	if err != nil {
		return nil, fmt.Errorf("failed to create multi-logger: %w", err)
	}

	// --- 2. Base logger with service context ---
	baseLogger := multiLogger.WithFields(port.Fields{"service_name": appConfig.AppName})

	appLogger := baseLogger.WithFields(port.Fields{"component": "app"})
	appLogger.Info("Logger system initialized", port.Fields{
		"active_loggers": len(activeLoggers), "fluent_enabled": appConfig.FluentBit.Enabled,
	})

	application := &App{
		config:       appConfig,
		fluentClient: fluentClient,
		logger:       appLogger,
	}

	// --- 3. Source adapters and use cases ---
	adapters, err := buildSourceAdapters(appConfig)
	if err != nil {
		appLogger.Error("Failed to create source adapters", err, nil)
		application.closeResources()
		return nil, err
	}
	appLogger.Info("Source adapters initialized.", port.Fields{"sources": strings.Join(appConfig.Search.Sources, ",")})

	orchestrator, err := usecase.NewOrchestrateSearchUseCase(adapters, usecase.OrchestratorConfig{
		SourceTimeout: appConfig.Search.SourceTimeout,
	})
	if err != nil {
		application.closeResources()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	dispatcherCfg := usecase.DispatcherConfig{QueueCapacity: appConfig.Search.QueueCapacity}
	application.resultStore = resultstore.NewMemoryResultStore()

	// --- 4. Broker ---
	var eventsPublisher *rabbitmq_adapter.SearchEventsPublisher
	if appConfig.RabbitMQ.Enabled {
		connManagerBridge := rabbitmq_adapter.NewPkgLoggerBridge(baseLogger.WithFields(port.Fields{"component": "rabbitmq_conn_manager"}))
		connManager, err := rabbitmq_common.GetManager(appConfig.RabbitMQ.URL, connManagerBridge)
		if err != nil {
			appLogger.Error("Failed to create connection manager", err, nil)
			application.closeResources()
			return nil, fmt.Errorf("failed to create connection manager: %w", err)
		}
		application.connManager = connManager
		appLogger.Info("RabbitMQ Connection Manager initialized.", nil)

		eventProducer, err := rabbitmq_producer.NewPublisher(rabbitmq_producer.PublisherConfig{
			Config:                   rabbitmq_common.Config{URL: appConfig.RabbitMQ.URL},
			ExchangeName:             constants.FinderExchange,
			ExchangeType:             constants.FinderExchangeType,
			DurableExchange:          true,
			DeclareExchangeIfMissing: true,
			Logger:                   rabbitmq_adapter.NewPkgLoggerBridge(baseLogger.WithFields(port.Fields{"component": "rabbitmq_producer"})),
		}, connManager)
		if err != nil {
			appLogger.Error("Failed to create event producer", err, nil)
			application.closeResources()
			return nil, fmt.Errorf("failed to create event producer: %w", err)
		}
		application.eventProducer = eventProducer

		eventsPublisher, err = rabbitmq_adapter.NewSearchEventsPublisher(eventProducer, constants.RoutingKeySearchEvents)
		if err != nil {
			application.closeResources()
			return nil, err
		}

		// broker searches are published and also kept for polling
		brokerSink, err := sink.NewMultiSink(eventsPublisher, application.resultStore)
		if err != nil {
			application.closeResources()
			return nil, err
		}
		application.brokerDispatcher = usecase.NewSearchDispatcher(orchestrator, brokerSink, dispatcherCfg,
			baseLogger.WithFields(port.Fields{"dispatcher": "broker"}))

		commandsListener, err := rabbitmq_adapter.NewSearchCommandsConsumerAdapter(
			searchCommandsConsumerConfig(appConfig.RabbitMQ.URL),
			application.brokerDispatcher,
			baseLogger,
			connManager,
		)
		if err != nil {
			appLogger.Error("Failed to initialize search commands listener", err, nil)
			application.closeResources()
			return nil, err
		}
		application.commandsListener = commandsListener
		appLogger.Info("Search commands listener initialized.", nil)
	}

	// --- 5. Poll front-end ---
	var pollSink port.DeliverySinkPort = application.resultStore
	if eventsPublisher != nil && appConfig.RabbitMQ.MirrorPoll {
		pollSink, err = sink.NewMultiSink(application.resultStore, eventsPublisher)
		if err != nil {
			application.closeResources()
			return nil, err
		}
	}
	application.pollDispatcher = usecase.NewSearchDispatcher(orchestrator, pollSink, dispatcherCfg,
		baseLogger.WithFields(port.Fields{"dispatcher": "poll"}))

	handlers := rest.NewSearchHandlers(application.pollDispatcher, application.resultStore)
	application.restServer = rest.NewServer(rest.ServerConfig{
		Port:           appConfig.HTTP.Port,
		AllowedOrigins: appConfig.HTTP.AllowedOrigins,
	}, handlers, baseLogger)

	// --- 6. Streaming peers ---
	if appConfig.Stream.Enabled {
		application.streamListener = stream.NewServer(appConfig.Stream.Addr, orchestrator, stream.SessionConfig{
			QueueCapacity: appConfig.Search.QueueCapacity,
			DrainTimeout:  appConfig.ShutdownTimeout,
		}, baseLogger)
	}

	appLogger.Info("All components initialized.", nil)
	return application, nil
}

func buildSourceAdapters(cfg *configs.AppConfig) ([]port.SourceAdapterPort, error) {
	// a single request may not outlive the whole source budget
	requestTimeout := cfg.Search.SourceTimeout

	adapters := make([]port.SourceAdapterPort, 0, len(cfg.Search.Sources))
	seen := make(map[domain.SourceID]bool)
	for _, name := range cfg.Search.Sources {
		source := domain.SourceID(strings.ToLower(name))
		if seen[source] {
			continue
		}
		seen[source] = true

		var (
			adapter port.SourceAdapterPort
			err     error
		)
		switch source {
		case domain.SourceCraigslist:
			adapter, err = craigslistfetcher.NewCraigslistFetcherAdapter(craigslistfetcher.Config{
				Location:       cfg.Craigslist.Location,
				RandomDelay:    cfg.Search.RandomDelay,
				RequestTimeout: requestTimeout,
			})
		case domain.SourceEbay:
			adapter, err = ebayfetcher.NewEbayFetcherAdapter(ebayfetcher.Config{
				RandomDelay:    cfg.Search.RandomDelay,
				RequestTimeout: requestTimeout,
			})
		case domain.SourceOfferUp:
			adapter, err = offerupfetcher.NewOfferUpFetcherAdapter(offerupfetcher.Config{
				RandomDelay:    cfg.Search.RandomDelay,
				RequestTimeout: requestTimeout,
			})
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s fetcher: %w", source, err)
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

func searchCommandsConsumerConfig(url string) rabbitmq_consumer.ConsumerConfig {
	return rabbitmq_consumer.ConsumerConfig{
		Config:                 rabbitmq_common.Config{URL: url},
		QueueName:              constants.QueueSearchCommands,
		RoutingKeyForBind:      constants.RoutingKeySearchCommands,
		ExchangeNameForBind:    constants.FinderExchange,
		DeclareExchangeForBind: true,
		ExchangeTypeForBind:    constants.FinderExchangeType,
		DurableExchangeForBind: true,
		PrefetchCount:          constants.SearchCommandsPrefetch,
		DurableQueue:           true,
		ConsumerTag:            constants.SearchCommandsConsumerTag,
		DeclareQueue:           true,

		// a full dispatcher queue sends the command round the retry loop
		EnableRetryMechanism: true,
		RetryExchange:        constants.QueueSearchCommands + "_retry_ex",
		RetryQueue:           constants.QueueSearchCommands + "_retry_wait",
		RetryTTL:             constants.SearchCommandsRetryTTLMs,
		FinalDLXExchange:     constants.FinalDLXExchangeForSearchCommands,
		FinalDLQ:             constants.FinalDLQForSearchCommands,
		FinalDLQRoutingKey:   constants.FinalDLQRoutingKeyForSearchCommands,
		MaxRetries:           constants.SearchCommandsMaxRetries,
	}
}

// Run starts every component and blocks until a signal or a component failure.
func (a *App) Run() error {
	// listenersCtx stops intake, workCtx stops the dispatchers
	listenersCtx, cancelListeners := context.WithCancel(context.Background())
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	var listenersWG, workWG sync.WaitGroup

	defer func() {
		a.logger.Info("Shutdown sequence initiated...", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()

		// 1. stop intake
		if err := a.restServer.Stop(shutdownCtx); err != nil {
			a.logger.Error("Error stopping REST server", err, nil)
		}
		cancelListeners()
		listenersWG.Wait()
		if a.streamListener != nil {
			if err := a.streamListener.Close(); err != nil {
				a.logger.Error("Error closing stream listener", err, nil)
			}
		}
		if a.commandsListener != nil {
			if err := a.commandsListener.Close(); err != nil {
				a.logger.Error("Error closing search commands listener", err, nil)
			}
		}

		// 2. let running searches finish
		a.logger.Info("Waiting for running searches to finish...", nil)
		for _, d := range []*usecase.SearchDispatcher{a.pollDispatcher, a.brokerDispatcher} {
			if d == nil {
				continue
			}
			if err := d.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("Dispatcher did not drain in time", port.Fields{"error": err.Error()})
			}
		}
		cancelWork()
		workWG.Wait()
		a.logger.Info("All background processes finished.", nil)

		// 3. transports and loggers
		a.closeResources()
	}()

	a.logger.Info("Application is starting...", nil)

	// one slot per goroutine that can report: dispatchers, janitor, REST, listeners
	componentErrors := make(chan error, 6)

	startWorker := func(name string, run func(ctx context.Context) error) {
		defer workWG.Done()
		if err := run(workCtx); err != nil {
			a.logger.Error("Worker stopped with an unexpected error", err, port.Fields{"worker_name": name})
			reportComponentError(componentErrors, fmt.Errorf("%s error: %w", name, err))
		}
	}

	startListener := func(name string, listener port.EventListenerPort) {
		defer listenersWG.Done()
		listenerLogger := a.logger.WithFields(port.Fields{"listener_name": name})
		listenerLogger.Info("Starting listener...", nil)

		if err := listener.Start(listenersCtx); err != nil {
			listenerLogger.Error("Listener stopped with an unexpected error", err, nil)
			reportComponentError(componentErrors, fmt.Errorf("%s error: %w", name, err))
		} else {
			listenerLogger.Info("Listener stopped gracefully due to context cancellation.", nil)
		}
	}

	workWG.Add(1)
	go startWorker("Poll Dispatcher", a.pollDispatcher.Run)
	if a.brokerDispatcher != nil {
		workWG.Add(1)
		go startWorker("Broker Dispatcher", a.brokerDispatcher.Run)
	}

	retention := a.config.Search.ResultRetention
	if retention > 0 {
		workWG.Add(1)
		go startWorker("Result Janitor", func(ctx context.Context) error {
			a.resultStore.RunJanitor(ctx, janitorInterval(retention), retention, a.logger.WithFields(port.Fields{"component": "ResultJanitor"}))
			return nil
		})
	}

	go func() {
		if err := a.restServer.Start(); err != nil {
			reportComponentError(componentErrors, fmt.Errorf("rest server error: %w", err))
		}
	}()

	if a.streamListener != nil {
		listenersWG.Add(1)
		go startListener("Stream Listener", a.streamListener)
	}
	if a.commandsListener != nil {
		listenersWG.Add(1)
		go startListener("Search Commands Listener", a.commandsListener)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	a.logger.Info("Application running. Waiting for signals or component error...", nil)
	select {
	case receivedSignal := <-quit:
		a.logger.Warn("Received signal, shutting down", port.Fields{"signal": receivedSignal.String()})
	case err := <-componentErrors:
		a.logger.Error("A critical component failed, shutting down", err, nil)
		return err
	}

	return nil
}

// reportComponentError never blocks. Only the first failure stops Run, so
// an error that finds the channel full is dropped after being logged.
func reportComponentError(errs chan<- error, err error) bool {
	select {
	case errs <- err:
		return true
	default:
		log.Printf("App: component error after shutdown started: %v\n", err)
		return false
	}
}

func janitorInterval(retention time.Duration) time.Duration {
	interval := retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// closeResources releases broker and logging connections. Safe on a partly built App.
func (a *App) closeResources() {
	if a.eventProducer != nil {
		if err := a.eventProducer.Close(); err != nil {
			a.logger.Error("Error closing event producer", err, nil)
		}
		a.eventProducer = nil
	}

	if a.connManager != nil {
		if err := a.connManager.Close(); err != nil {
			a.logger.Error("Error closing RabbitMQ connection manager", err, nil)
		}
		a.connManager = nil
	}

	a.logger.Info("Application shut down gracefully.", nil)

	if a.fluentClient != nil {
		if err := a.fluentClient.Close(); err != nil {
			log.Printf("App: Error closing fluent client: %v\n", err)
		}
		a.fluentClient = nil
	}
}
