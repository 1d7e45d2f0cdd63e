package optimizer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/lotbid/internal/config"
	"github.com/iwvelando/lotbid/internal/manifest"
	"github.com/iwvelando/lotbid/internal/simulate"
	"github.com/iwvelando/lotbid/internal/valuation"
	"github.com/iwvelando/lotbid/pkg/format"
	"github.com/iwvelando/lotbid/pkg/mathutil"
	"github.com/iwvelando/lotbid/pkg/optimization"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Runner searches for the largest bid that satisfies the configured
// constraints.
type Runner struct {
	logger   *zap.Logger
	conf     *config.Configuration
	pipeline *valuation.Pipeline
	now      func() time.Time
}

type evaluation struct {
	bid     float64
	outcome simulate.Outcome
	failing []string
}

func (e evaluation) feasible() bool {
	return len(e.failing) == 0
}

// search holds the state of one optimization: the valued lot and, unless
// redraw is enabled, the draws shared by every candidate bid.
type search struct {
	valued *valuation.Result
	params simulate.Params
	draws  *simulate.Draws
	steps  int
}

// NewRunner constructs a Runner for the provided configuration.
func NewRunner(logger *zap.Logger, conf *config.Configuration) (*Runner, error) {
	if conf == nil {
		return nil, config.Invalid("configuration cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := conf.Optimizer.Validate(); err != nil {
		return nil, err
	}
	pipeline, err := valuation.New(logger, conf)
	if err != nil {
		return nil, err
	}
	return &Runner{logger: logger, conf: conf, pipeline: pipeline, now: time.Now}, nil
}

// Value runs the valuation pipeline for a lot.
func (r *Runner) Value(lot *manifest.Lot) (*valuation.Result, error) {
	return r.pipeline.Value(lot, lot.SaleMonth(r.now()))
}

// OptimizeBid values the lot and bisects the bid bracket.
func (r *Runner) OptimizeBid(ctx context.Context, lot *manifest.Lot) (optimization.BidRecommendation, *valuation.Result, error) {
	valued, err := r.Value(lot)
	if err != nil {
		return optimization.BidRecommendation{}, nil, err
	}
	rec, err := r.Optimize(ctx, valued)
	return rec, valued, err
}

// EvaluateBid values the lot and simulates a single bid.
func (r *Runner) EvaluateBid(ctx context.Context, lot *manifest.Lot, bid float64) (optimization.BidRecommendation, *valuation.Result, error) {
	valued, err := r.Value(lot)
	if err != nil {
		return optimization.BidRecommendation{}, nil, err
	}
	rec, err := r.Evaluate(ctx, valued, bid)
	return rec, valued, err
}

// Evaluate simulates one bid against an already valued lot.
func (r *Runner) Evaluate(ctx context.Context, valued *valuation.Result, bid float64) (optimization.BidRecommendation, error) {
	if bid < 0 || math.IsNaN(bid) || math.IsInf(bid, 0) {
		return optimization.BidRecommendation{}, config.Invalid("bid %v must be a non-negative number", bid)
	}
	s := r.newSearch(valued)
	eval, err := r.evaluate(ctx, s, mathutil.FloorCurrency(bid))
	if err != nil {
		return optimization.BidRecommendation{}, err
	}
	rec := r.recommend(valued, eval, 0, eval.feasible())
	r.logger.Info("bid evaluated",
		zap.String("op", "optimizer.Evaluate"),
		zap.Float64("bid", rec.Bid),
		zap.Float64("probMeetsRoi", rec.ProbMeetsROI),
		zap.Float64("cashP5", rec.CashP5),
		zap.Bool("meetsConstraints", rec.MeetsConstraints),
		zap.Strings("failing", rec.FailingConstraints),
	)
	return rec, nil
}

// Optimize bisects [min, max] for the largest feasible bid. Feasibility
// requires P(ROI ≥ target) ≥ risk threshold, cash P5 ≥ cash floor and total
// handling minutes within the available capacity.
func (r *Runner) Optimize(ctx context.Context, valued *valuation.Result) (optimization.BidRecommendation, error) {
	if valued == nil {
		return optimization.BidRecommendation{}, eris.New("valued lot cannot be nil")
	}
	cfg := r.conf.Optimizer
	cfg.Normalize()
	s := r.newSearch(valued)

	minBid := mathutil.FloorCurrency(cfg.Min)
	maxBid := mathutil.FloorCurrency(cfg.Max)

	lowerEval, err := r.evaluate(ctx, s, minBid)
	if err != nil {
		return optimization.BidRecommendation{}, err
	}
	if !lowerEval.feasible() {
		rec := r.recommend(valued, lowerEval, 0, false)
		rec.Tags = append(rec.Tags, optimization.TagLowerInfeasible)
		rec.Notes = append(rec.Notes, fmt.Sprintf(
			"unable to satisfy constraints within bounds %s to %s",
			format.Currency(minBid),
			format.Currency(maxBid),
		))
		r.logResult(rec)
		return rec, nil
	}

	upperEval, err := r.evaluate(ctx, s, maxBid)
	if err != nil {
		return optimization.BidRecommendation{}, err
	}
	if upperEval.feasible() {
		rec := r.recommend(valued, upperEval, 0, true)
		rec.Tags = append(rec.Tags, optimization.TagUpperFeasible)
		rec.Notes = append(rec.Notes, fmt.Sprintf(
			"constraints hold at the upper bound %s; the lot may support a higher bid",
			format.Currency(maxBid),
		))
		r.logResult(rec)
		return rec, nil
	}

	iterations := 0
	finalEval := lowerEval
	lower := lowerEval.bid
	upper := upperEval.bid
	for iterations < cfg.MaxIterations && math.Abs(upper-lower) > cfg.Tolerance {
		mid := mathutil.FloorCurrency(lower + (upper-lower)/2)
		if mid <= lower || mid >= upper {
			break
		}
		evalMid, err := r.evaluate(ctx, s, mid)
		if err != nil {
			return optimization.BidRecommendation{}, err
		}
		iterations++
		if evalMid.feasible() {
			finalEval = evalMid
			lower = evalMid.bid
		} else {
			upper = evalMid.bid
		}
	}

	converged := math.Abs(upper-lower) <= cfg.Tolerance
	rec := r.recommend(valued, finalEval, iterations, converged)
	if !converged {
		rec.Notes = append(rec.Notes, fmt.Sprintf(
			"stopped after %d iterations with bracket %s to %s",
			iterations,
			format.Currency(lower),
			format.Currency(upper),
		))
	}
	r.logResult(rec)
	return rec, nil
}

func (r *Runner) newSearch(valued *valuation.Result) *search {
	params := simulate.ParamsFrom(r.conf)
	return &search{valued: valued, params: params}
}

// evaluate simulates one bid. With fixed draws the outcome depends on the
// bid only through the acquisition cost, so feasibility is monotone.
func (r *Runner) evaluate(ctx context.Context, s *search, bid float64) (evaluation, error) {
	if err := ctx.Err(); err != nil {
		return evaluation{}, eris.Wrap(err, "optimizer cancelled")
	}

	draws := s.draws
	if draws == nil || r.conf.Optimizer.Redraw {
		params := s.params
		if r.conf.Optimizer.Redraw {
			params.Seed += uint64(s.steps)
		}
		var err error
		draws, err = simulate.Draw(ctx, r.logger, s.valued.Core, params)
		if err != nil {
			return evaluation{}, eris.Wrapf(err, "simulate bid %.2f", bid)
		}
		if !r.conf.Optimizer.Redraw {
			s.draws = draws
		}
	}
	s.steps++

	outcome := draws.Outcome(r.conf.AcquisitionCost(bid), s.params.ROITarget)
	eval := evaluation{bid: bid, outcome: outcome, failing: r.failingConstraints(outcome)}

	r.logger.Debug("optimizer evaluated bid",
		zap.String("op", "optimizer.evaluate"),
		zap.Float64("bid", bid),
		zap.Float64("acquisitionCost", outcome.AcquisitionCost),
		zap.Float64("probMeetsRoi", outcome.ProbMeetsROI),
		zap.Float64("cashP5", outcome.CashAtHorizon.P5),
		zap.Bool("feasible", eval.feasible()),
	)
	return eval, nil
}

func (r *Runner) failingConstraints(outcome simulate.Outcome) []string {
	if outcome.NoPriceableItems {
		return []string{optimization.ConstraintPriceableItems}
	}
	var failing []string
	if outcome.ProbMeetsROI < r.conf.Optimizer.RiskThreshold {
		failing = append(failing, optimization.ConstraintROIProbability)
	}
	if outcome.CashAtHorizon.P5 < r.conf.Optimizer.CashFloor {
		failing = append(failing, optimization.ConstraintCashFloor)
	}
	if outcome.OpsMinutesTotal > r.conf.AvailableMinutes() {
		failing = append(failing, optimization.ConstraintThroughput)
	}
	return failing
}

func (r *Runner) recommend(valued *valuation.Result, eval evaluation, iterations int, converged bool) optimization.BidRecommendation {
	outcome := eval.outcome
	available := r.conf.AvailableMinutes()
	rec := optimization.BidRecommendation{
		RunID:              uuid.NewString(),
		Lot:                valued.Lot,
		CreatedAt:          r.now().UTC(),
		Bid:                eval.bid,
		AcquisitionCost:    mathutil.Round(outcome.AcquisitionCost),
		ROIP50:             outcome.ROI.P50,
		ProbMeetsROI:       outcome.ProbMeetsROI,
		CashP5:             mathutil.Round(outcome.CashAtHorizon.P5),
		CashP50:            mathutil.Round(outcome.CashAtHorizon.P50),
		RevenueP50:         mathutil.Round(outcome.Revenue.P50),
		ExpectedCash:       mathutil.Round(outcome.ExpectedCash),
		MeetsConstraints:   eval.feasible(),
		FailingConstraints: eval.failing,
		Throughput: optimization.Throughput{
			TotalMinutes:     outcome.OpsMinutesTotal,
			AvailableMinutes: available,
			Utilization:      mathutil.SafeDiv(outcome.OpsMinutesTotal, available),
			WithinCapacity:   outcome.OpsMinutesTotal <= available,
		},
		Evidence:   valued.Evidence(),
		Iterations: iterations,
		Converged:  converged,
		Tags:       append([]string(nil), outcome.Tags...),
	}
	if r.conf.Optimizer.Redraw {
		rec.Tags = append(rec.Tags, optimization.TagRedraw)
	}
	return rec
}

func (r *Runner) logResult(rec optimization.BidRecommendation) {
	r.logger.Info("optimizer selected bid",
		zap.String("op", "optimizer.Optimize"),
		zap.String("runId", rec.RunID),
		zap.String("lot", rec.Lot),
		zap.Float64("bid", rec.Bid),
		zap.Float64("roiP50", rec.ROIP50),
		zap.Float64("probMeetsRoi", rec.ProbMeetsROI),
		zap.Float64("cashP50", rec.CashP50),
		zap.Bool("meetsConstraints", rec.MeetsConstraints),
		zap.Strings("failing", rec.FailingConstraints),
		zap.Int("iterations", rec.Iterations),
		zap.Bool("converged", rec.Converged),
		zap.Strings("tags", rec.Tags),
	)
}
