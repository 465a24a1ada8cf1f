package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flightledger/internal/auth"
	"flightledger/internal/config"
	"flightledger/internal/contracts"
	"flightledger/internal/ledger"
	"flightledger/internal/logging"
	"flightledger/internal/server"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel)

	users, err := auth.NewStore(cfg.Auth.DataDir, cfg.Auth.SessionTTL)
	if err != nil {
		log.Fatalf("auth store init failed: %v", err)
	}

	l, err := ledger.New(ledger.Options{
		DataDir:      cfg.Ledger.DataDir,
		MinePoolSize: cfg.Ledger.MinePoolSize,
		Difficulty:   cfg.Ledger.PohDifficulty,
		UAVKeys:      cfg.UAVs,
	})
	if err != nil {
		log.Fatalf("ledger init failed: %v", err)
	}

	cm := contracts.NewManager(
		contracts.Geofence{
			MaxX:   cfg.Contracts.GeofenceMaxX,
			MaxY:   cfg.Contracts.GeofenceMaxY,
			MinAlt: cfg.Contracts.GeofenceMinAlt,
			MaxAlt: cfg.Contracts.GeofenceMaxAlt,
		},
		contracts.SpeedLimit{MaxSpeed: cfg.Contracts.MaxSpeed},
		contracts.AltitudeSafety{
			WarnThreshold: cfg.Contracts.AltWarnThreshold,
			CritThreshold: cfg.Contracts.AltCritThreshold,
		},
		contracts.FlightDuration{MaxDuration: cfg.Contracts.MaxFlightDuration},
	)

	srv, err := server.New(cfg, users, l, cm)
	if err != nil {
		log.Fatalf("server init failed: %v", err)
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logging.Info("shutting down", logging.System)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("shutdown error", logging.System, "error", err)
	}
}
