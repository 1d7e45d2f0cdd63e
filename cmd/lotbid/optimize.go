package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/iwvelando/lotbid/internal/manifest"
	"github.com/iwvelando/lotbid/internal/optimizer"
	"github.com/iwvelando/lotbid/internal/store"
	"github.com/iwvelando/lotbid/internal/valuation"
	"github.com/iwvelando/lotbid/pkg/constants"
	"github.com/iwvelando/lotbid/pkg/optimization"
	"github.com/iwvelando/lotbid/pkg/output"
	"github.com/iwvelando/lotbid/pkg/validation"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newOptimizeCmd(a *app) *cobra.Command {
	var lotPath string
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search for the highest bid that meets the configured constraints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd, lotPath, store.ModeOptimize, func(r *optimizer.Runner, lot *manifest.Lot) (optimization.BidRecommendation, *valuation.Result, error) {
				return r.OptimizeBid(ctx, lot)
			})
		},
	}
	cmd.Flags().StringVar(&lotPath, "lot", constants.DefaultLotFile, "path to the lot manifest")
	return cmd
}

func newEvaluateCmd(a *app) *cobra.Command {
	var lotPath string
	var bid float64
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Simulate a single bid against a lot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd, lotPath, store.ModeEvaluate, func(r *optimizer.Runner, lot *manifest.Lot) (optimization.BidRecommendation, *valuation.Result, error) {
				return r.EvaluateBid(ctx, lot, bid)
			})
		},
	}
	cmd.Flags().StringVar(&lotPath, "lot", constants.DefaultLotFile, "path to the lot manifest")
	cmd.Flags().Float64Var(&bid, "bid", 0, "hammer bid to evaluate")
	_ = cmd.MarkFlagRequired("bid")
	return cmd
}

type runFunc func(*optimizer.Runner, *manifest.Lot) (optimization.BidRecommendation, *valuation.Result, error)

func (a *app) run(ctx context.Context, cmd *cobra.Command, lotPath, mode string, fn runFunc) error {
	lot, err := manifest.LoadLot(lotPath)
	if err != nil {
		return err
	}
	for _, warning := range validation.ValidateLot(lot) {
		a.logger.Warn("Lot warning: "+warning,
			zap.String("op", "main"),
			zap.String("lot", lotPath),
		)
	}

	runner, err := optimizer.NewRunner(a.logger, a.conf)
	if err != nil {
		return err
	}
	rec, valued, err := fn(runner, lot)
	if err != nil {
		return eris.Wrapf(err, "%s lot %s", mode, lotPath)
	}

	if a.dbPath != "" {
		if err := a.persist(ctx, mode, rec, valued); err != nil {
			return err
		}
	}

	return output.Write(cmd.OutOrStdout(), a.outputFormat, output.Report{
		Recommendation: rec,
		Items:          valued.Valuations,
	})
}

func (a *app) persist(ctx context.Context, mode string, rec optimization.BidRecommendation, valued *valuation.Result) error {
	db, err := store.Open(a.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveRun(ctx, mode, rec, valued.Records); err != nil {
		return err
	}
	a.logger.Info("run recorded",
		zap.String("op", "main"),
		zap.String("runId", rec.RunID),
		zap.String("db", a.dbPath),
	)
	return nil
}
