// Package simulate draws correlated random outcomes for a lot across many
// trials and reduces them to revenue, cash and ROI distributions.
package simulate

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/iwvelando/lotbid/internal/config"
	"github.com/iwvelando/lotbid/internal/pricing"
	"github.com/iwvelando/lotbid/internal/survival"
	"github.com/iwvelando/lotbid/pkg/constants"
	"github.com/iwvelando/lotbid/pkg/mathutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// chunkSize is the number of trials drawn from one seeded stream. Streams are
// keyed by chunk index, so results do not depend on the worker count.
const chunkSize = 256

// Outcome tags.
const (
	TagNoPriceableItems    = "degenerate:no_priceable_items"
	TagZeroAcquisitionCost = "degenerate:zero_acquisition_cost"
	TagPayoutBeyondHorizon = "payout:lag_beyond_horizon"
)

// Item is an admitted item ready for simulation.
type Item struct {
	ID          string
	Quantity    int
	Price       pricing.Estimate
	PSold       float64
	Hazard      float64
	PriceFactor float64 // 0 is treated as 1
	OpsMinutes  float64 // per unit
}

// Params holds simulation parameters.
type Params struct {
	Trials                int
	Workers               int
	Seed                  uint64
	Distribution          string
	HorizonDays           float64
	MissingRate           float64
	MissingRecovery       float64
	DefectRate            float64
	DefectRecovery        float64
	MismatchRate          float64
	MismatchDiscount      float64
	PayoutLagDays         float64
	SalvageFraction       float64
	MarketplaceFee        float64
	OpsCostPerMinute      float64
	StorageCostPerUnitDay float64
	ROITarget             float64
	AcquisitionCost       float64
}

// ParamsFrom builds simulation parameters from configuration. The
// acquisition cost is left at zero; callers set it per bid.
func ParamsFrom(conf *config.Configuration) Params {
	sim := conf.Simulation
	return Params{
		Trials:                sim.Trials,
		Workers:               sim.Workers,
		Seed:                  uint64(sim.Seed),
		Distribution:          sim.Distribution,
		HorizonDays:           conf.Survival.HorizonDays,
		MissingRate:           sim.MissingRate,
		MissingRecovery:       sim.MissingRecovery,
		DefectRate:            sim.DefectRate,
		DefectRecovery:        sim.DefectRecovery,
		MismatchRate:          sim.MismatchRate,
		MismatchDiscount:      sim.MismatchDiscount,
		PayoutLagDays:         sim.PayoutLagDays,
		SalvageFraction:       sim.SalvageFraction,
		MarketplaceFee:        sim.MarketplaceFee,
		OpsCostPerMinute:      sim.OpsCostPerMinute,
		StorageCostPerUnitDay: sim.StorageCostPerUnitDay,
		ROITarget:             conf.Optimizer.ROITarget,
	}
}

// Percentiles summarizes a distribution.
type Percentiles struct {
	P5  float64 `json:"p5"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
}

// Outcome is the lot-level result of one bid evaluation.
type Outcome struct {
	Revenue          Percentiles `json:"revenue"`
	CashAtHorizon    Percentiles `json:"cashAtHorizon"`
	ROI              Percentiles `json:"roi"`
	ExpectedRevenue  float64     `json:"expectedRevenue"`
	ExpectedCash     float64     `json:"expectedCash"`
	ProbMeetsROI     float64     `json:"probMeetsRoi"`
	OpsCostTotal     float64     `json:"opsCostTotal"`
	StorageCostTotal float64     `json:"storageCostTotal"`
	AcquisitionCost  float64     `json:"acquisitionCost"`
	OpsMinutesTotal  float64     `json:"opsMinutesTotal"`
	Trials           int         `json:"trials"`
	Items            int         `json:"items"`
	NoPriceableItems bool        `json:"noPriceableItems,omitempty"`
	Tags             []string    `json:"tags,omitempty"`
}

// Draws are the bid-independent per-trial totals. Revenue includes salvage;
// Cash is the payout received by the horizon. Costs are deterministic.
type Draws struct {
	Revenue         []float64
	Cash            []float64
	OpsCostTotal    float64
	StorageCost     float64
	OpsMinutesTotal float64
	Items           int
	Tags            []string
}

// Run simulates the lot and reduces the draws at params.AcquisitionCost.
func Run(ctx context.Context, logger *zap.Logger, items []Item, params Params) (Outcome, error) {
	draws, err := Draw(ctx, logger, items, params)
	if err != nil {
		return Outcome{}, err
	}
	return draws.Outcome(params.AcquisitionCost, params.ROITarget), nil
}

// Draw runs every trial. Trials are split into fixed-size chunks, each with
// its own PCG stream, and fanned out over a bounded worker pool; workers
// write only their own trial indices.
func Draw(ctx context.Context, logger *zap.Logger, items []Item, params Params) (*Draws, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if params.Trials <= 0 {
		return nil, config.Invalid("simulation trials must be positive, got %d", params.Trials)
	}

	draws := &Draws{Items: len(items)}
	if len(items) == 0 {
		logger.Warn("no priceable items to simulate",
			zap.String("op", "simulate.Draw"),
		)
		draws.Tags = append(draws.Tags, TagNoPriceableItems)
		return draws, nil
	}
	if params.PayoutLagDays >= params.HorizonDays {
		draws.Tags = append(draws.Tags, TagPayoutBeyondHorizon)
	}

	prepared := make([]preparedItem, len(items))
	for i, item := range items {
		prepared[i] = prepare(item, params)
		units := float64(prepared[i].quantity)
		draws.OpsMinutesTotal += units * prepared[i].opsMinutes
		draws.StorageCost += units * survival.ExpectedHoldingDays(prepared[i].hazard, params.HorizonDays) * params.StorageCostPerUnitDay
	}
	draws.OpsCostTotal = draws.OpsMinutesTotal * params.OpsCostPerMinute

	draws.Revenue = make([]float64, params.Trials)
	draws.Cash = make([]float64, params.Trials)

	workers := params.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < params.Trials; start += chunkSize {
		start := start
		end := min(start+chunkSize, params.Trials)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "simulation cancelled")
			}
			rng := rand.New(rand.NewPCG(params.Seed, uint64(start/chunkSize)))
			sampler := newSampler(prepared, params.Distribution, rng)
			for trial := start; trial < end; trial++ {
				draws.Revenue[trial], draws.Cash[trial] = runTrial(prepared, params, sampler, rng)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("simulation complete",
		zap.String("op", "simulate.Draw"),
		zap.Int("items", len(items)),
		zap.Int("trials", params.Trials),
		zap.Float64("opsMinutes", draws.OpsMinutesTotal),
		zap.Float64("storageCost", draws.StorageCost),
	)
	return draws, nil
}

// Outcome reduces the draws for a given acquisition cost. Ops and storage
// costs are subtracted from revenue and cash after trial aggregation. Cash at
// horizon is the payout recovered by the horizon; the acquisition cost only
// enters ROI.
func (d *Draws) Outcome(acquisitionCost, roiTarget float64) Outcome {
	out := Outcome{
		OpsCostTotal:     d.OpsCostTotal,
		StorageCostTotal: d.StorageCost,
		AcquisitionCost:  acquisitionCost,
		OpsMinutesTotal:  d.OpsMinutesTotal,
		Trials:           len(d.Revenue),
		Items:            d.Items,
		Tags:             append([]string(nil), d.Tags...),
	}
	if d.Items == 0 || len(d.Revenue) == 0 {
		out.NoPriceableItems = true
		if !contains(out.Tags, TagNoPriceableItems) {
			out.Tags = append(out.Tags, TagNoPriceableItems)
		}
		return out
	}

	fixedCosts := d.OpsCostTotal + d.StorageCost
	zeroCost := acquisitionCost < constants.Epsilon
	if zeroCost {
		out.Tags = append(out.Tags, TagZeroAcquisitionCost)
	}

	n := len(d.Revenue)
	revenue := make([]float64, n)
	cash := make([]float64, n)
	roi := make([]float64, n)
	meets := 0
	for i := 0; i < n; i++ {
		revenue[i] = d.Revenue[i] - fixedCosts
		cash[i] = d.Cash[i] - fixedCosts
		if zeroCost {
			// ROI is undefined without an outlay; count break-even trials.
			if revenue[i] >= 0 {
				meets++
			}
			continue
		}
		roi[i] = revenue[i] / acquisitionCost
		if roi[i] >= roiTarget {
			meets++
		}
	}

	out.ExpectedRevenue = stat.Mean(revenue, nil)
	out.ExpectedCash = stat.Mean(cash, nil)
	out.ProbMeetsROI = mathutil.Clip01(float64(meets) / float64(n))
	out.Revenue = percentiles(revenue)
	out.CashAtHorizon = percentiles(cash)
	out.ROI = percentiles(roi)
	return out
}

type preparedItem struct {
	quantity      int
	opsMinutes    float64
	floor         float64
	mu            float64
	sigma         float64
	pSold         float64
	hazard        float64
	priceFactor   float64
	payoutFactor  float64
	degenerate    bool
	logMu, logSig float64
}

func prepare(item Item, params Params) preparedItem {
	p := preparedItem{
		quantity:    item.Quantity,
		opsMinutes:  math.Max(item.OpsMinutes, 0),
		floor:       math.Max(item.Price.Floor, 0),
		mu:          math.Max(item.Price.Mu, 0),
		sigma:       math.Max(item.Price.Sigma, 0),
		pSold:       mathutil.Clip01(item.PSold),
		hazard:      math.Max(item.Hazard, 0),
		priceFactor: item.PriceFactor,
	}
	if p.quantity < 1 {
		p.quantity = 1
	}
	if p.priceFactor <= 0 {
		p.priceFactor = 1
	}
	p.payoutFactor = PayoutFraction(p.hazard, p.pSold, params.HorizonDays, params.PayoutLagDays)
	p.degenerate = p.sigma < constants.Epsilon || p.mu < constants.Epsilon
	if !p.degenerate {
		// moment-matched lognormal
		variance := math.Log1p((p.sigma * p.sigma) / (p.mu * p.mu))
		p.logSig = math.Sqrt(variance)
		p.logMu = math.Log(p.mu) - variance/2
	}
	return p
}

// PayoutFraction is the share of sold revenue received as cash by the
// horizon given a payout lag: (1 − e^(−λ(H − lag))) / max(p, ε), clipped to
// [0, 1]. A lag at or beyond the horizon yields zero.
func PayoutFraction(hazard, pSold, horizonDays, lagDays float64) float64 {
	if lagDays >= horizonDays {
		return 0
	}
	effective := horizonDays - math.Max(lagDays, 0)
	return mathutil.Clip01((1 - math.Exp(-hazard*effective)) / math.Max(pSold, constants.Epsilon))
}

type sampler struct {
	draw []func() float64
}

func newSampler(items []preparedItem, distribution string, rng *rand.Rand) *sampler {
	s := &sampler{draw: make([]func() float64, len(items))}
	for i, item := range items {
		item := item
		switch {
		case item.degenerate:
			s.draw[i] = func() float64 { return item.mu }
		case distribution == config.DistributionNormal:
			dist := distuv.Normal{Mu: item.mu, Sigma: item.sigma, Src: rng}
			s.draw[i] = dist.Rand
		default:
			dist := distuv.LogNormal{Mu: item.logMu, Sigma: item.logSig, Src: rng}
			s.draw[i] = dist.Rand
		}
	}
	return s
}

// riskCell is a group of sold units that share the same combination of
// manifest-risk events.
type riskCell struct {
	units  int
	factor float64
}

// runTrial returns gross revenue (sold net of risk events and fees, plus
// salvage for unsold units) and the cash received by the horizon. Unit
// outcomes are drawn as binomial counts per item, so the cost of a trial
// does not grow with quantity.
func runTrial(items []preparedItem, params Params, s *sampler, rng *rand.Rand) (float64, float64) {
	events := [...]struct{ rate, factor float64 }{
		{params.MissingRate, params.MissingRecovery},
		{params.DefectRate, params.DefectRecovery},
		{params.MismatchRate, 1 - params.MismatchDiscount},
	}

	var revenue, cash float64
	var cells [1 << len(events)]riskCell
	for i, item := range items {
		price := math.Max(s.draw[i](), 0)
		price = math.Max(price, item.floor)
		listed := price * item.priceFactor

		sold := binomial(item.quantity, item.pSold, rng)
		revenue += float64(item.quantity-sold) * params.SalvageFraction * price

		// Split the sold units on each event in turn; the cells end up
		// multinomially distributed over every event combination.
		cells[0] = riskCell{units: sold, factor: 1}
		n := 1
		for _, ev := range events {
			for c := 0; c < n; c++ {
				hit := binomial(cells[c].units, ev.rate, rng)
				cells[n+c] = riskCell{units: hit, factor: cells[c].factor * ev.factor}
				cells[c].units -= hit
			}
			n *= 2
		}

		var realized float64
		for _, cell := range cells[:n] {
			realized += float64(cell.units) * cell.factor
		}
		realized *= listed * (1 - params.MarketplaceFee)
		revenue += realized
		cash += realized * item.payoutFactor
	}
	return revenue, cash
}

// binomial draws the number of successes in n trials with probability p.
func binomial(n int, p float64, rng *rand.Rand) int {
	switch {
	case n <= 0 || p <= 0:
		return 0
	case p >= 1:
		return n
	}
	dist := distuv.Binomial{N: float64(n), P: p, Src: rng}
	k := int(math.Round(dist.Rand()))
	return min(max(k, 0), n)
}

func percentiles(values []float64) Percentiles {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return Percentiles{
		P5:  stat.Quantile(0.05, stat.Empirical, sorted, nil),
		P50: stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95: stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
