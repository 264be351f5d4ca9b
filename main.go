package main

import (
	"fmt"

	"github.com/cuteanbogdan/finance-tracker-backend/internal/config"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/database"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/exchange"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/router"
	"github.com/cuteanbogdan/finance-tracker-backend/internal/service"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// .env overrides are optional
	_ = godotenv.Load()

	// load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}

	// init database
	db, err := database.Init(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	// run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// wire the ledger core
	rates := exchange.NewClient(cfg.Exchange)
	ledger := service.NewLedger(db, rates)

	// setup router
	r := router.SetupRouter(cfg, db, log, ledger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	log.Infof("server listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("run server: %v", err)
	}
}
