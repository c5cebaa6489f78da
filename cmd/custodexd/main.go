package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/custodex/custodex/params"
	"github.com/custodex/custodex/pkg/api"
	"github.com/custodex/custodex/pkg/exchange"
	"github.com/custodex/custodex/pkg/gateway"
	"github.com/custodex/custodex/pkg/storage"
	"github.com/custodex/custodex/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (console, plus file when LOG_FILE is set)
	var logger *zap.Logger
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Infow("custodexd_starting",
		"db_path", cfg.Node.DBPath,
		"api_addr", cfg.Node.APIAddr,
		"fee_account", cfg.Fees.Account.Hex(),
		"fee_percent", cfg.Fees.Percent,
		"dev_auth", cfg.Node.DevAuth)

	// ---- Storage ----
	store, err := storage.NewStore(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	// ---- Asset gateway ----
	// In-process custody: native vault plus registered tokens. The custody
	// account doubles as the approval target for token pulls.
	gw := gateway.NewLocal(cfg.Fees.Account)
	for _, fund := range cfg.DevFunds {
		gw.FundNative(fund.Account, fund.Amount)
		sugar.Infow("dev_fund_granted", "account", fund.Account.Hex(), "amount", fund.Amount.Dec())
	}

	// ---- Exchange engine ----
	ex, err := exchange.New(cfg.Fees.Account, cfg.Fees.Percent, gw, store, util.RealClock{}, sugar)
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}
	sugar.Infow("exchange_ready", "orders", ex.OrderCount(), "balances", len(ex.Balances()))

	// ---- API server ----
	server := api.NewServer(ex, cfg.Node.DevAuth, sugar)
	go func() {
		if err := server.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	sugar.Info("custodexd_shutting_down")
}
