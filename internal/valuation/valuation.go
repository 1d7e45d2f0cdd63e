// Package valuation runs a lot through normalization, price aggregation,
// survival estimation and the evidence gate, producing the items the
// simulator consumes.
package valuation

import (
	"time"

	"github.com/iwvelando/lotbid/internal/config"
	"github.com/iwvelando/lotbid/internal/evidence"
	"github.com/iwvelando/lotbid/internal/manifest"
	"github.com/iwvelando/lotbid/internal/pricing"
	"github.com/iwvelando/lotbid/internal/simulate"
	"github.com/iwvelando/lotbid/internal/survival"
	"github.com/iwvelando/lotbid/pkg/optimization"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TagUnpriced marks an admitted item with no usable price observation. It is
// kept out of the simulation.
const TagUnpriced = "price:none"

// Valuation is the per-item output of the pipeline.
type Valuation struct {
	Item     manifest.Item    `json:"-"`
	ItemID   string           `json:"itemId"`
	Title    string           `json:"title"`
	Price    pricing.Estimate `json:"price"`
	Survival survival.Result  `json:"survival"`
	Gate     evidence.Record  `json:"gate"`
	Priced   bool             `json:"priced"`
}

// Result holds the valuation of a whole lot.
type Result struct {
	Lot        string
	Month      time.Month
	Valuations []Valuation
	Core       []simulate.Item
	Records    []evidence.Record
	Summary    evidence.Summary
}

// Evidence converts the gate summary to its serializable form.
func (r *Result) Evidence() optimization.EvidenceSummary {
	return optimization.EvidenceSummary{
		CoreCount:    r.Summary.CoreCount,
		UpsideCount:  r.Summary.UpsideCount,
		GatePassRate: r.Summary.GatePassRate,
	}
}

// Pipeline values lots against one configuration. It is safe for
// concurrent use.
type Pipeline struct {
	logger     *zap.Logger
	conf       *config.Configuration
	model      *survival.Model
	detector   *evidence.Detector
	thresholds evidence.Thresholds
}

// New builds a Pipeline.
func New(logger *zap.Logger, conf *config.Configuration) (*Pipeline, error) {
	if conf == nil {
		return nil, config.Invalid("valuation requires a configuration")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	model, err := survival.NewModel(conf)
	if err != nil {
		return nil, eris.Wrap(err, "build survival model")
	}
	return &Pipeline{
		logger:     logger,
		conf:       conf,
		model:      model,
		detector:   evidence.NewDetector(conf.Gate.GenericTerms),
		thresholds: evidence.ThresholdsFrom(conf.Gate),
	}, nil
}

// Value normalizes and values every line of the lot for the given month.
func (p *Pipeline) Value(lot *manifest.Lot, month time.Month) (*Result, error) {
	if lot == nil {
		return nil, eris.New("lot cannot be nil")
	}
	items := manifest.NormalizeLot(lot, p.conf.Valuation)
	result := &Result{Lot: lot.Name, Month: month}

	var ladder []config.LadderPhase
	if p.conf.Survival.LadderEnabled {
		ladder = p.conf.Survival.Ladder
	}

	for _, item := range items {
		v, err := p.valueItem(item, month, ladder)
		if err != nil {
			return nil, eris.Wrapf(err, "value item %s", item.ID)
		}
		result.Valuations = append(result.Valuations, v)
		result.Records = append(result.Records, v.Gate)
		if v.Gate.Admitted && v.Priced {
			result.Core = append(result.Core, simulate.Item{
				ID:          item.ID,
				Quantity:    item.Quantity,
				Price:       v.Price,
				PSold:       v.Survival.PSold,
				Hazard:      v.Survival.HazardRate,
				PriceFactor: v.Survival.PriceFactor,
				OpsMinutes:  p.opsMinutes(item),
			})
		}
	}
	result.Summary = evidence.Summarize(result.Records)

	if len(result.Core) == 0 {
		p.logger.Warn("lot has no priceable admitted items",
			zap.String("op", "valuation.Value"),
			zap.String("lot", lot.Name),
			zap.Int("items", len(items)),
		)
	}
	p.logger.Info("lot valued",
		zap.String("op", "valuation.Value"),
		zap.String("lot", lot.Name),
		zap.Int("items", len(items)),
		zap.Int("core", result.Summary.CoreCount),
		zap.Int("upside", result.Summary.UpsideCount),
		zap.Float64("gatePassRate", result.Summary.GatePassRate),
	)
	return result, nil
}

func (p *Pipeline) valueItem(item manifest.Item, month time.Month, ladder []config.LadderPhase) (Valuation, error) {
	if item.QuantityCapped {
		p.logger.Warn("item quantity capped",
			zap.String("op", "valuation.Value"),
			zap.String("item", item.ID),
			zap.Int("quantity", item.Quantity),
		)
	}
	price := pricing.Aggregate(item.Observations, item.Condition, item.Category, month, p.conf.Valuation)
	if price.LowConfidence {
		p.logger.Warn("item priced at floor without observations",
			zap.String("op", "valuation.Value"),
			zap.String("item", item.ID),
			zap.Float64("floor", price.Floor),
		)
	}

	surv, err := p.model.Estimate(survival.Input{
		Price:     price,
		ListPrice: item.ListPrice,
		Condition: item.Condition,
		Category:  item.Category,
		Month:     month,
		Ladder:    ladder,
	})
	if err != nil {
		return Valuation{}, err
	}

	signals := evidence.Signals{
		ItemID:        item.ID,
		Title:         item.Title,
		Brand:         item.Brand,
		Condition:     item.Condition,
		HighTrustID:   item.HighTrustID,
		LowConfidence: price.LowConfidence,
	}
	record := evidence.Gate(signals, item.CompCount, item.SecondarySignals, p.detector.Detect(signals), p.thresholds)

	priced := price.Observations > 0
	if record.Admitted && !priced {
		record.Tags = append(record.Tags, TagUnpriced)
	}

	p.logger.Debug("item valued",
		zap.String("op", "valuation.Value"),
		zap.String("item", item.ID),
		zap.Float64("mu", price.Mu),
		zap.Float64("sigma", price.Sigma),
		zap.Float64("pSold", surv.PSold),
		zap.Bool("admitted", record.Admitted),
		zap.Strings("tags", record.Tags),
	)

	return Valuation{
		Item:     item,
		ItemID:   item.ID,
		Title:    item.Title,
		Price:    price,
		Survival: surv,
		Gate:     record,
		Priced:   priced,
	}, nil
}

func (p *Pipeline) opsMinutes(item manifest.Item) float64 {
	if item.OpsMinutes != nil {
		return *item.OpsMinutes
	}
	return p.conf.Simulation.OpsMinutesPerUnit
}
