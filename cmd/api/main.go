package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetnav/internal/api"
	"fleetnav/internal/auth"
	"fleetnav/internal/buildinfo"
	"fleetnav/internal/config"
	"fleetnav/internal/events"
	"fleetnav/internal/fleet"
	"fleetnav/internal/graph"
	"fleetnav/internal/metrics"
	"fleetnav/internal/model"
	"fleetnav/internal/opt"
	"fleetnav/internal/queue"
	"fleetnav/internal/scheduler"
	"fleetnav/internal/store"
	"fleetnav/internal/traffic"
	"fleetnav/internal/webhooks"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := cfg.Logger(os.Stderr)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterDefault()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	g, err := loadGraph(ctx, cfg, st, log)
	if err != nil {
		return err
	}

	broker, err := openBroker(cfg, log)
	if err != nil {
		return err
	}

	ctrlOpts := []traffic.Option{
		traffic.WithLockRange(cfg.LockRange),
		traffic.WithCandidates(cfg.Candidates),
		traffic.WithLogger(log),
		traffic.WithObserver(metrics.Observer{}),
	}
	if cfg.UndirectedReservations {
		ctrlOpts = append(ctrlOpts, traffic.WithUndirectedReservations())
	}
	ctrl := traffic.NewController(g, nil, ctrlOpts...)

	q := queue.New()
	pending, err := st.PendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("load pending tasks: %w", err)
	}
	q.BatchEnqueue(pending)
	log.Info("queue restored", "tasks", len(pending))

	fm := fleet.NewManager(g, ctrl, fleet.Options{
		HeartbeatTimeout: cfg.HeartbeatTimeout(),
		Simulated:        true,
		Logger:           log,
		Requeue: func(t *model.Task) {
			q.PushFront(t)
			if err := st.UpdateStatus(context.Background(), t.ID, model.StatusQueued); err != nil {
				log.Error("record requeue", "task", t.ID, "err", err)
			}
			broker.Publish(events.Topic, events.New(events.TaskRequeued, map[string]any{"taskId": t.ID}))
		},
		OnComplete: func(t *model.Task, executorID string) {
			if err := st.UpdateStatus(context.Background(), t.ID, model.StatusCompleted); err != nil {
				log.Error("record completion", "task", t.ID, "err", err)
			}
			broker.Publish(events.Topic, events.New(events.TaskCompleted, map[string]any{
				"taskId": t.ID, "executorId": executorID,
			}))
		},
	})
	nodes := g.Nodes()
	for i := 0; i < cfg.FleetSize && len(nodes) > 0; i++ {
		fm.Register(nodes[(i*len(nodes))/cfg.FleetSize])
	}

	seq, err := opt.NewSequencer(cfg.Sequencer, g, cfg.Seed)
	if err != nil {
		return err
	}
	optimizer := opt.NewOptimizer(opt.Deps{
		Graph:      g,
		Queue:      q,
		Executors:  fm,
		Sequencer:  seq,
		Traverser:  fm.Stats(),
		Candidates: cfg.Candidates,
		Logger:     log,
		Observer:   metrics.Observer{},
	})

	sched := scheduler.New(scheduler.Deps{
		Queue:     q,
		Optimizer: optimizer,
		Router:    ctrl,
		Pool:      fm,
		Broker:    broker,
		Recorder:  st,
		Observer:  metrics.Observer{},
		Logger:    log,
	}, scheduler.Config{
		QueueInterval:      cfg.QueueInterval(),
		ExecutorInterval:   cfg.ExecutorInterval(),
		OptimizeIterations: cfg.OptimizeIterations,
	})

	var hooks *webhooks.Worker
	if cfg.WebhookURL != "" {
		hooks = webhooks.NewWorker(broker, webhooks.Config{
			URL:         cfg.WebhookURL,
			Secret:      cfg.WebhookSecret,
			Types:       cfg.WebhookTypes,
			MaxAttempts: cfg.WebhookMaxAttempts,
		}, log)
		go hooks.Run(ctx)
	}

	verifier, err := auth.NewVerifier(cfg.AuthMode, cfg.AuthSecret)
	if err != nil {
		return err
	}
	srv := api.NewServer(api.Deps{
		Store:      st,
		Broker:     broker,
		Graph:      g,
		Controller: ctrl,
		Queue:      q,
		Optimizer:  optimizer,
		Fleet:      fm,
		Auth:       verifier,
		Webhooks:   hooks,
		Config:     cfg,
		Logger:     log,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("API listening", "addr", httpSrv.Addr, "version", buildinfo.Version)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		sched.Shutdown()
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	sched.Shutdown()
	if c, ok := broker.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("using in-memory store")
		return store.NewMemory(), nil
	}
	p, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.DBMigrate {
		if err := p.Migrate(ctx); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	log.Info("using postgres store")
	return p, nil
}

// loadGraph prefers the configured file, then edges persisted by an earlier
// run, then the default grid. The result is written back so edge updates
// made through the API start from the same graph.
func loadGraph(ctx context.Context, cfg config.Config, st store.Store, log *slog.Logger) (*graph.Graph, error) {
	var (
		g   *graph.Graph
		src string
	)
	switch {
	case cfg.GraphFile != "":
		var err error
		if g, err = graph.LoadFile(cfg.GraphFile); err != nil {
			return nil, fmt.Errorf("load graph %s: %w", cfg.GraphFile, err)
		}
		src = cfg.GraphFile
	default:
		edges, err := st.LoadEdges(ctx)
		if err != nil {
			return nil, fmt.Errorf("load edges: %w", err)
		}
		if len(edges) > 0 {
			g = graph.New()
			if err := g.AddEdges(edges...); err != nil {
				return nil, err
			}
			src = "store"
		} else {
			g = graph.Grid(cfg.GridRows, cfg.GridCols, cfg.GridWeight)
			src = "grid"
		}
	}
	if err := st.SaveEdges(ctx, g.EdgeList()); err != nil {
		return nil, fmt.Errorf("save edges: %w", err)
	}
	log.Info("graph loaded", "source", src, "nodes", len(g.Nodes()), "edges", len(g.EdgeList()))
	return g, nil
}

func openBroker(cfg config.Config, log *slog.Logger) (events.Broker, error) {
	if cfg.RedisURL == "" {
		return events.NewMemory(), nil
	}
	rb, err := events.NewRedisBroker(cfg.RedisURL, log)
	if err != nil {
		return nil, fmt.Errorf("redis broker: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rb.Ping(ctx); err != nil {
		log.Warn("redis unreachable, using in-memory broker", "err", err)
		_ = rb.Close()
		return events.NewMemory(), nil
	}
	return rb, nil
}
