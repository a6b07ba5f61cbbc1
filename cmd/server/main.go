package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"kobara/api/grpcserver"
	"kobara/config"
	"kobara/infra/kafka"
	"kobara/infra/logging"
	"kobara/infra/outbox"
	"kobara/jobs/broadcaster"
	"kobara/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "kobara:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		return err
	}

	// ---------------- Metrics ----------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics("kobara", reg)

	// ---------------- Trade pipeline ----------------

	pipe, err := openTradePipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer pipe.Close()

	opts, err := pipe.engineOptions()
	if err != nil {
		return err
	}

	// ---------------- Engine ----------------

	engine := service.NewMatchingEngine(append(opts,
		service.WithMetrics(metrics),
		service.WithLogger(logger),
	)...)

	g, ctx := errgroup.WithContext(ctx)

	// ---------------- Broadcaster ----------------

	if bc := pipe.newBroadcaster(cfg.Broadcast, logger); bc != nil {
		g.Go(func() error { return bc.Run(ctx) })
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.UnaryLogger(logger)))
	grpcserver.RegisterOrderBookServiceServer(grpcSrv, grpcserver.NewServer(engine))

	g.Go(func() error {
		logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		grpcSrv.GracefulStop()
		return nil
	})

	// ---------------- Prometheus ----------------

	if cfg.MetricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info().Msg("kobara stopped")
	return err
}

// tradePipeline is the outbox and the publisher that drains it. Both
// are nil when no publisher is configured: an outbox nobody drains
// would only grow.
type tradePipeline struct {
	outbox    *outbox.Outbox
	publisher broadcaster.Publisher
}

func openTradePipeline(cfg config.Config, logger zerolog.Logger) (*tradePipeline, error) {
	pub, err := newPublisher(cfg.Broadcast)
	if err != nil {
		return nil, err
	}
	if pub == nil {
		logger.Info().Msg("no trade publisher configured, trades are not recorded")
		return &tradePipeline{}, nil
	}

	ob, err := outbox.Open(cfg.Outbox.Dir, outbox.WithLogger(logger.With().Str("module", "outbox").Logger()))
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	return &tradePipeline{outbox: ob, publisher: pub}, nil
}

// engineOptions hands the outbox to the engine as its recorder, with
// trade ids resuming above anything a previous run recorded.
func (p *tradePipeline) engineOptions() ([]service.Option, error) {
	if p.outbox == nil {
		return nil, nil
	}
	last, err := p.outbox.LastTradeID()
	if err != nil {
		return nil, fmt.Errorf("read last trade id: %w", err)
	}
	return []service.Option{
		service.WithRecorder(p.outbox),
		service.WithTradeSeq(last),
	}, nil
}

func (p *tradePipeline) newBroadcaster(cfg config.BroadcastConfig, logger zerolog.Logger) *broadcaster.Broadcaster {
	if p.outbox == nil {
		return nil
	}
	return broadcaster.New(p.outbox, p.publisher, broadcaster.Config{
		Interval:  cfg.Interval,
		BatchSize: cfg.BatchSize,
	}, logger)
}

func (p *tradePipeline) Close() error {
	var errs []error
	if p.publisher != nil {
		errs = append(errs, p.publisher.Close())
	}
	if p.outbox != nil {
		errs = append(errs, p.outbox.Close())
	}
	return errors.Join(errs...)
}

func newPublisher(cfg config.BroadcastConfig) (broadcaster.Publisher, error) {
	switch cfg.Publisher {
	case config.PublisherSarama:
		p, err := broadcaster.NewSaramaPublisher(cfg.Brokers, cfg.Topic)
		if err != nil {
			return nil, fmt.Errorf("sarama publisher: %w", err)
		}
		return p, nil
	case config.PublisherKafka:
		return kafka.NewProducer(cfg.Brokers, cfg.Topic), nil
	default:
		return nil, nil
	}
}
