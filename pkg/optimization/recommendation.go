// Package optimization provides shared data structures for bid optimization results.
package optimization

import "time"

// Constraint names reported when a bid fails the feasibility predicate.
const (
	ConstraintROIProbability = "roi_probability"
	ConstraintCashFloor      = "cash_floor"
	ConstraintThroughput     = "throughput"
	ConstraintPriceableItems = "priceable_items"
)

// Recommendation tags.
const (
	TagUpperFeasible   = "bracket:upper_feasible"
	TagLowerInfeasible = "bracket:lower_infeasible"
	TagRedraw          = "optimizer:redraw"
)

// Throughput compares the labor a lot needs with the labor available.
type Throughput struct {
	TotalMinutes     float64 `json:"totalMinutes"`
	AvailableMinutes float64 `json:"availableMinutes"`
	Utilization      float64 `json:"utilization"`
	WithinCapacity   bool    `json:"withinCapacity"`
}

// EvidenceSummary counts the gate decisions behind a recommendation.
type EvidenceSummary struct {
	CoreCount    int     `json:"coreCount"`
	UpsideCount  int     `json:"upsideCount"`
	GatePassRate float64 `json:"gatePassRate"`
}

// BidRecommendation is the result of a bid search or single-bid evaluation.
type BidRecommendation struct {
	RunID              string          `json:"runId,omitempty"`
	Lot                string          `json:"lot,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	Bid                float64         `json:"bid"`
	AcquisitionCost    float64         `json:"acquisitionCost"`
	ROIP50             float64         `json:"roiP50"`
	ProbMeetsROI       float64         `json:"probMeetsRoi"`
	CashP5             float64         `json:"cashP5"`
	CashP50            float64         `json:"cashP50"`
	RevenueP50         float64         `json:"revenueP50"`
	ExpectedCash       float64         `json:"expectedCash"`
	MeetsConstraints   bool            `json:"meetsConstraints"`
	FailingConstraints []string        `json:"failingConstraints,omitempty"`
	Throughput         Throughput      `json:"throughput"`
	Evidence           EvidenceSummary `json:"evidence"`
	Iterations         int             `json:"iterations"`
	Converged          bool            `json:"converged"`
	Tags               []string        `json:"tags,omitempty"`
	Notes              []string        `json:"notes,omitempty"`
}
