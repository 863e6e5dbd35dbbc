package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sv-governance/internal/adminclient"
	"sv-governance/internal/app"
	"sv-governance/internal/auth"
	"sv-governance/internal/config"
	"sv-governance/internal/model"
	"sv-governance/internal/ports/http"
	"sv-governance/internal/querycache"
	"sv-governance/internal/votes"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	logger, err := getLogger()
	if err != nil {
		log.Fatalln("setting up the logger failed: ", err)
		return
	}
	defer logger.Sync()

	logger.Info("application started")

	if *configFile != "" {
		if err := config.LoadFile(*configFile); err != nil {
			logger.Fatal(err.Error())
		}
	}
	if err := config.Validate(); err != nil {
		logger.Fatal("invalid configuration: " + err.Error())
	}

	tokenParams := auth.TokenParams{
		Secret:   []byte(config.GetAuthSecret()),
		Audience: config.GetAuthAudience(),
	}
	issuer, err := auth.NewTokenIssuer(tokenParams, config.GetAuthUser())
	if err != nil {
		logger.Fatal(err.Error())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := adminclient.NewClient(logger, config.GetSvURL(), config.GetRequestTimeout(), issuer)
	voteCache := querycache.New[[]model.SvVote](logger, querycache.Options{
		StaleTime: config.GetPollInterval(),
		Retries:   config.GetFetchRetries(),
		Metrics:   querycache.NewPrometheusMetrics(registry, "votes"),
	})
	a := app.NewApp(logger, votes.NewQuery(logger, client), voteCache, config.GetInstanceNames())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		voteCache.RunRefresh(ctx, config.GetPollInterval())
	}()

	ser := http.NewServer(logger, a, auth.NewTokenValidator(logger, tokenParams), registry, http.Options{
		Address:        config.GetPort(),
		RequestTimeout: config.GetRequestTimeout(),
		AllowedOrigins: config.GetAllowedOrigins(),
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ser.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down the server: " + err.Error())
		}
	}()

	if err := ser.Run(); err != nil {
		logger.Error("failed to run the server: " + err.Error())
		stop()
	}

	<-refreshDone
	logger.Info("application finished")
}

func getLogger() (*zap.Logger, error) {
	options := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zap.FatalLevel),
	}

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	config.Development = true
	config.Level.SetLevel(zap.DebugLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.WithOptions(options...), nil
}
