package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/api"
	"github.com/Spok95/classtrack-portal/internal/auth"
	"github.com/Spok95/classtrack-portal/internal/config"
	"github.com/Spok95/classtrack-portal/internal/db"
	"github.com/Spok95/classtrack-portal/internal/events"
	"github.com/Spok95/classtrack-portal/internal/filestore"
	"github.com/Spok95/classtrack-portal/internal/jobs"
	"github.com/Spok95/classtrack-portal/internal/logging"
	"github.com/Spok95/classtrack-portal/internal/notify"
	"github.com/Spok95/classtrack-portal/internal/observability"
	"github.com/Spok95/classtrack-portal/internal/service"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env, "portal")
	if err != nil {
		panic(err)
	}
	defer lg.Closer()
	log := lg.Base

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		log.Warn("sentry init failed", zap.Error(err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer func() { _ = database.Close() }()

	if err := db.Migrate(ctx, database); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	var files filestore.Store = filestore.NewMemory()
	if cfg.MinioEndpoint != "" {
		m, err := filestore.NewMinio(ctx, filestore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, log)
		if err != nil {
			log.Fatal("minio", zap.Error(err))
		}
		files = m
	} else {
		log.Warn("MINIO_ENDPOINT not set, attachments are kept in memory")
	}

	var pub events.Publisher = events.Noop{}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQP(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			log.Fatal("amqp", zap.Error(err))
		}
		pub = p
	}
	defer func() { _ = pub.Close() }()

	var notifier notify.Notifier = notify.Noop{}
	if cfg.BotToken != "" {
		tg, err := notify.NewTelegram(cfg.BotToken, log)
		if err != nil {
			log.Warn("telegram notifications disabled", zap.Error(err))
		} else {
			notifier = tg
		}
	}

	svc := service.New(service.Deps{
		Repo:     db.NewRepo(database),
		Files:    files,
		Events:   pub,
		Notifier: notifier,
		Tokens:   auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL),
		Log:      log,
		AdminIDs: cfg.AdminIDs,
	})

	if cfg.BootstrapAdmin != "" {
		created, err := svc.Bootstrap(ctx, cfg.BootstrapAdmin, cfg.BootstrapPassword)
		if err != nil {
			log.Fatal("bootstrap admin", zap.Error(err))
		}
		if created {
			log.Info("bootstrap admin created", zap.String("username", cfg.BootstrapAdmin))
		}
	}

	runner := jobs.New(ctx, log)
	runner.Every(cfg.BacklogEvery, "ungraded_backlog", jobs.UngradedBacklog(svc))

	h := api.NewHandler(svc, api.Options{
		CORSOrigins: cfg.CORSOrigins,
		Ping:        func(ctx context.Context) error { return db.Ping(ctx, database) },
	}, log)
	srv := api.StartHTTP(ctx, cfg.HTTPAddr, h.Router(), log)

	log.Info("portal started", zap.String("version", version), zap.String("env", cfg.Env))
	<-ctx.Done()
	log.Info("shutting down")
	srv.Wait()
}
