package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/your-org/procwatch/internal/config"
	"github.com/your-org/procwatch/internal/metrics"
	"github.com/your-org/procwatch/internal/model"
	"github.com/your-org/procwatch/internal/procmon"
	"github.com/your-org/procwatch/internal/sink"
	"github.com/your-org/procwatch/internal/track"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration (optional)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go func() {
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Fatal("metrics HTTP server", zap.Error(err))
		}
	}()

	var writer *sink.FileWriter
	if cfg.OutputFile != "" {
		writer, err = sink.NewFileWriter(cfg.OutputFile)
		if err != nil {
			logger.Fatal("open event file", zap.Error(err))
		}
		defer writer.Close()
	}

	var mon *procmon.Monitor
	if cfg.SubscriberID != 0 {
		mon, err = procmon.OpenWithID(cfg.SubscriberID, logger)
	} else {
		mon, err = procmon.Open(logger)
	}
	if err != nil {
		logger.Fatal("open proc connector session", zap.Error(err))
	}
	defer mon.Close()

	// Poll blocks with no cancellation, so shutdown is handled out of
	// band: flush the sink and exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		if writer != nil {
			writer.Close()
		}
		logger.Sync()
		os.Exit(0)
	}()

	logger.Info("procwatch started", zap.Uint32("subscriber_id", mon.ID()))

	table := track.NewTable()
	for {
		ev := mon.Poll()
		metrics.IncPoll(ev == nil)
		if ev == nil {
			continue
		}
		metrics.IncEvent(ev.Type())
		table.Apply(ev)
		logEvent(logger, ev, table.Len())
		if writer != nil {
			if err := writer.Write(ev); err != nil {
				logger.Warn("write event", zap.Error(err))
			}
		}
	}
}

func logEvent(logger *zap.Logger, ev model.Event, live int) {
	fields := []zap.Field{zap.Int32("pid", ev.Pid()), zap.Int("tracked", live)}
	switch e := ev.(type) {
	case model.Fork:
		fields = append(fields, zap.Int32("parent_pid", e.ParentPid))
	case model.Exit:
		fields = append(fields,
			zap.Uint32("exit_code", e.ExitCode),
			zap.Uint32("exit_signal", e.ExitSignal),
		)
	case model.Coredump:
		fields = append(fields, zap.Int32("parent_pid", e.ParentPid))
	}
	logger.Info(string(ev.Type()), fields...)
}
