package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"FiscalAgent/app/bridge"
	"FiscalAgent/app/config"
	"FiscalAgent/app/database"
	"FiscalAgent/app/delivery"
	"FiscalAgent/app/receipt"
	"FiscalAgent/app/services"
)

func main() {
	// Initialize logger FIRST to catch all errors
	loggerService := services.NewLoggerService()
	if loggerService == nil {
		fmt.Println("CRITICAL: Logger service failed to initialize")
		os.Exit(1)
	}
	defer loggerService.Close()

	defer func() {
		if r := recover(); r != nil {
			loggerService.LogPanic(r)
			os.Exit(1)
		}
	}()

	loggerService.LogInfo("Application starting", "Fiscal Receipt Agent")

	// Load environment variables from .env file in project root (for development)
	if err := godotenv.Load(".env"); err != nil {
		loggerService.LogWarning(".env file not found, will use config.json if available")
	}

	// Load or create config.json
	exists, err := config.ConfigExists()
	if err != nil {
		loggerService.LogFatal("Could not check configuration", err)
	}

	var cfg *config.AppConfig
	if exists {
		cfg, err = config.LoadConfig()
		if err != nil {
			loggerService.LogFatal("Could not load configuration", err)
		}
	} else {
		loggerService.LogInfo("No configuration found, creating defaults")
		cfg, err = config.CreateDefaultConfig()
		if err != nil {
			loggerService.LogFatal("Could not create default configuration", err)
		}
	}

	// Database: journal, NCF ranges and report settings
	configDir, _ := config.GetConfigDir()
	if err := database.Initialize(filepath.Join(configDir, "fiscalagent.db")); err != nil {
		loggerService.LogFatal("Database initialization failed", err)
	}
	defer database.Close()
	db := database.GetDB()

	// Embedded print bridge
	var bridgeServer *bridge.Server
	if cfg.Bridge.Enabled {
		bridgeServer = bridge.NewServer(bridge.Config{
			ListenAddr:   cfg.Bridge.ListenAddr,
			TokenHash:    cfg.Bridge.TokenHash,
			Announce:     cfg.Bridge.Announce,
			InstanceName: cfg.Bridge.InstanceName,
			Printer: bridge.PrinterConfig{
				Type:    cfg.Bridge.PrinterType,
				Address: cfg.Bridge.PrinterAddress,
				Port:    cfg.Bridge.PrinterPort,
			},
		})
		go func() {
			defer loggerService.RecoverPanic()
			if err := bridgeServer.Start(); err != nil {
				loggerService.LogError("Print bridge stopped", err)
			}
		}()
	}

	// Delivery adapter
	adapter, err := buildAdapter(&cfg.Printing)
	if err != nil {
		loggerService.LogFatal("Could not configure delivery adapter", err)
	}
	loggerService.LogInfo("Delivery adapter ready", adapter.Name())

	// Receipt builder and polling worker
	builder := &receipt.Builder{RasterQR: cfg.Printing.RasterQR}
	backend := services.NewBackendService(&cfg.Backend)
	worker := services.NewPrintWorker(backend, builder, adapter, db,
		cfg.Backend.PollIntervalDuration())
	worker.Start()

	// Daily fiscal report export
	reports := services.NewReportService(db)
	scheduler := services.NewReportScheduler(reports)
	if err := scheduler.Start(); err != nil {
		loggerService.LogWarning("Report scheduler not started", err.Error())
	}

	// Local operations API: status, NCF range administration, manual reprints
	var controlServer *services.ControlServer
	if cfg.Control.Enabled {
		ncfService := services.NewNCFService(db)
		controlServer = services.NewControlServer(cfg.Control.ListenAddr,
			backend, ncfService, worker, builder, adapter, db)
		go func() {
			defer loggerService.RecoverPanic()
			if err := controlServer.Start(); err != nil {
				loggerService.LogError("Control server stopped", err)
			}
		}()
	}

	loggerService.LogInfo("Agent running", fmt.Sprintf("polling %s every %v",
		cfg.Backend.URL, cfg.Backend.PollIntervalDuration()))

	// Block until shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	loggerService.LogInfo("Shutting down", sig.String())

	worker.Stop()
	scheduler.Stop()
	if closer, ok := adapter.(interface{ Close() error }); ok {
		closer.Close()
	}
	if controlServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := controlServer.Shutdown(ctx); err != nil {
			loggerService.LogError("Control server shutdown failed", err)
		}
	}
	if bridgeServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := bridgeServer.Shutdown(ctx); err != nil {
			loggerService.LogError("Bridge shutdown failed", err)
		}
	}
}

// buildAdapter selects and configures the delivery adapter from config.
func buildAdapter(cfg *config.PrintingConfig) (delivery.Adapter, error) {
	switch cfg.Adapter {
	case "", "bridge":
		url := cfg.BridgeURL
		if url == "" && cfg.Discover {
			discovered, err := delivery.DiscoverBridge(context.Background(), 5*time.Second)
			if err != nil {
				return nil, err
			}
			url = discovered
		}
		return delivery.NewBridgeAdapter(url, cfg.BridgeToken), nil

	case "automation":
		if cfg.AutomationURL == "" {
			return nil, fmt.Errorf("automation adapter selected but automation_url is empty")
		}
		return delivery.NewAutomationAdapter(cfg.AutomationURL, cfg.AutomationAPIKey,
			cfg.AutomationPrinter), nil

	default:
		return nil, fmt.Errorf("unknown print adapter: %s", cfg.Adapter)
	}
}
