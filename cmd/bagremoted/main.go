package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"bagmachine-remote/config"
	"bagmachine-remote/internal/api"
	"bagmachine-remote/internal/db"
	"bagmachine-remote/internal/device"
	"bagmachine-remote/internal/logging"
	"bagmachine-remote/internal/notify"
	"bagmachine-remote/internal/params"
	"bagmachine-remote/internal/push"
	"bagmachine-remote/internal/session"
	"bagmachine-remote/internal/store"
)

func main() {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "./config/config.yaml" // Default path for local development
	}

	configPath := pflag.StringP("config", "c", defaultConfig, "path to the YAML configuration file")
	envFile := pflag.String("env-file", ".env", "optional dotenv file loaded before the configuration")
	simulate := pflag.Bool("simulate", false, "run against a built-in simulated controller instead of the real device")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logs := logging.NewLogrus(cfg.Log.Level, os.Stdout)
	log := logs.Get("main")
	log.WithField("path", *configPath).Info("configuration loaded")

	if *simulate {
		sim := device.NewMockServer()
		defer sim.Close()
		cfg.Device.BaseURL = sim.URL()
		log.WithField("url", sim.URL()).Warn("simulate mode: using the built-in controller simulator")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var appStore store.Store
	if cfg.Database.DSN != "" {
		gormDB, err := db.Init(&cfg.Database, logs.Get("db"))
		if err != nil {
			log.WithError(err).Fatal("failed to initialize database")
		}
		appStore = store.NewGormStore(gormDB)
	} else {
		log.Info("no database configured, journal and push subscriptions are disabled")
	}

	var scheduler *cron.Cron
	if appStore != nil && cfg.Database.RetentionDays > 0 {
		scheduler = cron.New()
		retention := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
		if _, err := store.SchedulePrune(scheduler, appStore, retention, logs.Get("retention")); err != nil {
			log.WithError(err).Fatal("failed to schedule journal pruning")
		}
		scheduler.Start()
		log.WithField("days", cfg.Database.RetentionDays).Info("journal retention enabled")
	}

	client := device.New(cfg.Device.BaseURL, cfg.Device.Timeout,
		device.WithSpeedFallback(cfg.Device.SpeedFallback),
		device.WithLogger(logs.Get("device")))

	queue := notify.New(cfg.Session.NotificationWindow)
	opts := []session.Option{session.WithLogger(logs.Get("session"))}
	if appStore != nil {
		opts = append(opts, session.WithJournal(appStore))
	}
	ctrl := session.New(client, params.NewStore(), queue, opts...)
	defer ctrl.Close()

	var webpushOptions *webpush.Options
	var pool *push.WorkerPool
	if cfg.Push.Enabled() && appStore != nil {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool = push.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, logs.Get("push"))
		pool.Start(ctx)
		queue.Subscribe(pool.Listener())
		log.WithField("workers", cfg.WorkerPool.Size).Info("push relay started")
	}

	if *cfg.Session.SyncOnStart {
		go func() {
			if err := ctrl.Initialize(ctx); err != nil {
				log.WithError(err).Warn("initial sync skipped")
			}
		}()
	}

	router := api.NewRouter(api.NewHandler(ctrl, appStore, webpushOptions, logs.Get("api")), &cfg.Server)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":   cfg.Server.Port,
			"device": cfg.Device.BaseURL,
		}).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server stopped unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown")
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	cancel()
	if pool != nil {
		pool.Wait()
	}
	log.Info("server gracefully stopped")
}
