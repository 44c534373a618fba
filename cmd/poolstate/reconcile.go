package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolstate/internal/aggregate"
	"poolstate/internal/chain"
	"poolstate/internal/config"
	"poolstate/internal/indexer"
)

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReconcile(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pools, err := indexer.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	r := aggregate.NewReconciler(st, chainClient, logger)
	if len(pools) == 0 {
		if pools, err = r.RegisteredPools(ctx); err != nil {
			return err
		}
	}

	report, err := r.Reconcile(ctx, pools, cfg.Block)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	mismatches := 0
	for _, d := range report {
		if !d.Match {
			mismatches++
		}
		if err := enc.Encode(d); err != nil {
			return err
		}
	}

	logger.Info("reconcile complete",
		zap.Int("pools", len(pools)),
		zap.Int("checks", len(report)),
		zap.Int("mismatches", mismatches),
	)
	if mismatches > 0 {
		return fmt.Errorf("%d of %d checks differ from chain", mismatches, len(report))
	}
	return nil
}
