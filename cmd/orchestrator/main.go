package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"

	"github.com/Sh00ty/cloud-nlb/failover-node/internal/metrics"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/notifyer"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/orchestrator"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/prober"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/source/postgres"
	"github.com/Sh00ty/cloud-nlb/failover-node/internal/traffic"
)

func loggerLevelFromString(level string) zerolog.Level {
	level = strings.ToLower(level)
	switch level {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.WarnLevel
}

type Config struct {
	NodeID      string `envconfig:"FAILOVER_NODE_ID"`
	LoggerLevel string `envconfig:"LOGGER_LEVEL"`

	HealthCheckInterval    time.Duration `envconfig:"optional"`
	DetectionInterval      time.Duration `envconfig:"optional"`
	MetricsRetentionPeriod time.Duration `envconfig:"optional"`
	ProbeTimeout           time.Duration `envconfig:"optional"`
	ProbeRetries           uint          `envconfig:"optional"`
	ProbeConcurrency       int           `envconfig:"optional"`
	MaxConcurrentFailovers int           `envconfig:"optional"`
	ShutdownGrace          time.Duration `envconfig:"optional"`

	DatabaseHost     string `envconfig:"optional"`
	DatabaseUser     string `envconfig:"optional"`
	DatabasePassword string `envconfig:"optional"`
	DatabasePort     uint16 `envconfig:"optional"`

	QueueAddr               string `envconfig:"optional"`
	QueueNotificationsTopic string `envconfig:"optional"`

	StatsdAddr string `envconfig:"optional"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appCfg := Config{}
	err := envconfig.Init(&appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}
	log.Logger = log.Level(loggerLevelFromString(appCfg.LoggerLevel))

	log.Warn().Msgf("running failover node %s", appCfg.NodeID)

	var mtr metrics.Metrics = metrics.Noop{}
	if appCfg.StatsdAddr != "" {
		mtr = metrics.NewStatsd(appCfg.NodeID, appCfg.StatsdAddr)
	}

	notifier := notifyer.NewNotifier(1024)
	defer notifier.Close()
	if appCfg.QueueAddr != "" {
		pump := notifyer.NewKafkaPump(appCfg.QueueAddr, appCfg.QueueNotificationsTopic, notifier.GetNotificationChan())
		go pump.Run(ctx)
	} else {
		go drainNotifications(ctx, notifier)
	}

	manager := orchestrator.New(
		orchestrator.Config{
			HealthCheckInterval:    appCfg.HealthCheckInterval,
			DetectionInterval:      appCfg.DetectionInterval,
			MetricsRetention:       appCfg.MetricsRetentionPeriod,
			ProbeConcurrency:       appCfg.ProbeConcurrency,
			MaxConcurrentFailovers: appCfg.MaxConcurrentFailovers,
			ShutdownGrace:          appCfg.ShutdownGrace,
		},
		prober.NewHTTPProber(appCfg.ProbeTimeout, appCfg.ProbeRetries),
		traffic.NewTable(),
		notifier,
		mtr,
	)

	if appCfg.DatabaseHost != "" {
		src, err := postgres.New(
			ctx,
			appCfg.DatabaseUser,
			appCfg.DatabasePassword,
			appCfg.DatabaseHost,
			appCfg.DatabasePort,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init config snapshot source")
		}
		endpoints, rules, err := src.Snapshot(ctx)
		src.Close()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load config snapshot")
		}
		for _, ep := range endpoints {
			if err := manager.RegisterEndpoint(ep); err != nil {
				log.Fatal().Err(err).Msgf("rejected endpoint %s from snapshot", ep.ID)
			}
		}
		for _, rule := range rules {
			if err := manager.AddFailoverRule(rule); err != nil {
				// an unparseable rule is a configuration programming
				// error, fatal at startup
				log.Fatal().Err(err).Msgf("rejected rule %s from snapshot", rule.ID)
			}
		}
	}

	manager.Start(ctx)

	serverClose := startProbeServer(manager)
	defer serverClose()

	<-ctx.Done()
	manager.Shutdown()
}

// drainNotifications keeps the notifier buffer moving when no delivery
// collaborator is configured.
func drainNotifications(ctx context.Context, notifier *notifyer.ChanNotifyer) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifier.GetNotificationChan():
			if !ok {
				return
			}
			log.Info().Msgf("notification %s: event %s %s", n.Kind, n.Event.ID, n.Event.Status)
		}
	}
}

func startProbeServer(manager *orchestrator.Manager) func() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		health := manager.GetSystemHealth()
		if health.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := http.Server{
		Handler: mux,
		Addr:    "0.0.0.0:8080",
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start http server")
		}
	}()
	return func() {
		_ = srv.Close()
	}
}
