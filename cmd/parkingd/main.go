package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"parking-access-backend/config"
	"parking-access-backend/internal/api"
	"parking-access-backend/internal/db"
	"parking-access-backend/internal/gate"
	"parking-access-backend/internal/lane"
	"parking-access-backend/internal/live"
	"parking-access-backend/internal/logging"
	"parking-access-backend/internal/notification"
	"parking-access-backend/internal/ocr"
	"parking-access-backend/internal/payment"
	"parking-access-backend/internal/plate"
	"parking-access-backend/internal/serialport"
	"parking-access-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("parkingd stopped with error", zap.Error(err))
	}
	logger.Info("parkingd gracefully stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()
	appStore := store.NewGormStore(gormDB)

	hub := live.NewHub(logger)
	notifier := notification.NewWorkerPool(cfg.Backend.Workers, cfg.Backend.QueueSize, logger, hub)
	if cfg.Backend.BaseURL != "" {
		notifier.AddSink(notification.NewBackendClient(cfg.Backend.BaseURL, cfg.Backend.Timeout))
	} else {
		logger.Warn("backend base_url not set, events are not forwarded")
	}

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		notifier.AddSink(notification.NewPusher(gormDB, webpushOptions, logger))
	} else {
		logger.Warn("VAPID keys not configured, operator push alerts disabled")
	}

	var reader api.TextReader
	if cfg.OCR.Rekognition {
		r, err := ocr.NewRekognitionReader(ctx, cfg.OCR.Region, cfg.OCR.MinConfidence, logger)
		if err != nil {
			return err
		}
		reader = r
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	notifier.Start(gctx)

	validator := plate.NewValidator(cfg.Plate.RegionPrefix)
	dialer := serialport.NewDialer(cfg.Serial, logger)
	lanes := make(map[string]api.LaneSubmitter)
	var gates []*gate.Actuator

	if cfg.Entry.Enabled {
		act := gate.NewActuator("entry", cfg.Gate.OpenDuration, logger)
		prox := lane.NewProximity(cfg.Proximity)
		ctrl := lane.NewEntryController(appStore, act, notifier, cfg.Entry.Cooldown, logger)
		l := lane.New("entry", cfg.Entry, validator, prox, ctrl.HandleDecision, logger)
		startLane(gctx, g, l, cfg.Entry.Device, act, prox, dialer, cfg.Serial, logger)
		lanes[l.Name()] = l
		gates = append(gates, act)
	}
	if cfg.Exit.Enabled {
		act := gate.NewActuator("exit", cfg.Gate.OpenDuration, logger)
		prox := lane.NewProximity(cfg.Proximity)
		ctrl := lane.NewExitController(appStore, act, notifier, cfg.Exit.Debounce, cfg.Exit.GracePeriod, logger)
		l := lane.New("exit", cfg.Exit, validator, prox, ctrl.HandleDecision, logger)
		startLane(gctx, g, l, cfg.Exit.Device, act, prox, dialer, cfg.Serial, logger)
		lanes[l.Name()] = l
		gates = append(gates, act)
	}
	if len(lanes) == 0 {
		logger.Warn("no lanes enabled")
	}

	settler := payment.NewSettler(appStore, notifier, cfg.Payment, logger)
	if cfg.Payment.Enabled {
		device := cfg.Payment.Device
		if device == "" {
			device = serialport.AutoDevice
		}
		link := payment.NewTerminalLink(settler, notifier, logger)
		sup := serialport.NewSupervisor("payment", link.Dial(dialer.For(device)), cfg.Serial, logger)
		g.Go(func() error { return sup.Run(gctx, link.Serve) })
	}

	handler := api.NewHandler(api.Deps{
		Store:      appStore,
		Webpush:    webpushOptions,
		Lanes:      lanes,
		Reconciler: settler,
		OCR:        reader,
		Live:       hub,
		Logger:     logger,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler, cfg.Server, cfg.Auth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, stopping services")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	for _, act := range gates {
		if cerr := act.Close(); cerr != nil {
			logger.Warn("failed to close gate", zap.Error(cerr))
		}
	}
	return err
}

// startLane runs the lane loop and, when a device is configured, the gate
// link that also carries the lane's distance readings. Without a device the
// gate runs in simulation.
func startLane(ctx context.Context, g *errgroup.Group, l *lane.Lane, device string, act *gate.Actuator,
	prox *lane.Proximity, dialer *serialport.Dialer, serialCfg config.SerialConfig, logger *zap.Logger) {
	g.Go(func() error {
		l.Run(ctx)
		return nil
	})
	if device == "" {
		logger.Warn("no gate device configured, gate simulated", zap.String("lane", l.Name()))
		return
	}
	sup := serialport.NewSupervisor(l.Name()+"-gate", dialer.For(device), serialCfg, logger)
	g.Go(func() error { return sup.Run(ctx, lane.DeviceLink(act, prox, logger)) })
}
