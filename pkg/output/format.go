// Package output renders bid recommendations and run history.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iwvelando/lotbid/internal/store"
	"github.com/iwvelando/lotbid/internal/valuation"
	"github.com/iwvelando/lotbid/pkg/constants"
	"github.com/iwvelando/lotbid/pkg/format"
	"github.com/iwvelando/lotbid/pkg/optimization"
	"github.com/olekukonko/tablewriter"
	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Report bundles a recommendation with the item valuations behind it.
type Report struct {
	Recommendation optimization.BidRecommendation `json:"recommendation"`
	Items          []valuation.Valuation          `json:"items,omitempty"`
}

// PrettyFormat outputs a human-readable rather than machine-readable report.
func PrettyFormat(w io.Writer, report Report) error {
	rec := report.Recommendation
	p := message.NewPrinter(language.English)

	status := "meets constraints"
	if !rec.MeetsConstraints {
		status = "does not meet constraints: " + strings.Join(rec.FailingConstraints, ", ")
	}
	if _, err := p.Fprintf(w, "--- Bid recommendation for lot %s ---\n", lotName(rec.Lot)); err != nil {
		return eris.Wrap(err, "write report header")
	}

	summary := tablewriter.NewWriter(w)
	summary.Header("Metric", "Value")
	rows := [][]string{
		{"Bid", format.Currency(rec.Bid)},
		{"Acquisition cost", format.Currency(rec.AcquisitionCost)},
		{"Status", status},
		{"ROI P50", format.Multiple(rec.ROIP50)},
		{"P(ROI >= target)", format.Percent(rec.ProbMeetsROI)},
		{"Cash at horizon P5", format.Currency(rec.CashP5)},
		{"Cash at horizon P50", format.Currency(rec.CashP50)},
		{"Revenue P50", format.Currency(rec.RevenueP50)},
		{"Handling minutes", p.Sprintf("%.0f of %.0f (%s)", rec.Throughput.TotalMinutes, rec.Throughput.AvailableMinutes, format.Percent(rec.Throughput.Utilization))},
		{"Core / upside items", p.Sprintf("%d / %d (%s pass)", rec.Evidence.CoreCount, rec.Evidence.UpsideCount, format.Percent(rec.Evidence.GatePassRate))},
		{"Iterations", p.Sprintf("%d (converged: %t)", rec.Iterations, rec.Converged)},
	}
	if len(rec.Tags) > 0 {
		rows = append(rows, []string{"Tags", strings.Join(rec.Tags, ", ")})
	}
	for _, note := range rec.Notes {
		rows = append(rows, []string{"Note", note})
	}
	summary.Bulk(rows)
	summary.Render()

	if len(report.Items) == 0 {
		return nil
	}
	items := tablewriter.NewWriter(w)
	items.Header("Item", "Title", "Mu", "Sigma", "P(sold)", "Comps", "Required", "Gate", "Tags")
	itemRows := make([][]string, 0, len(report.Items))
	for _, v := range report.Items {
		gate := "upside"
		if v.Gate.Admitted {
			gate = "core"
		}
		itemRows = append(itemRows, []string{
			v.ItemID,
			v.Title,
			format.Currency(v.Price.Mu),
			format.Currency(v.Price.Sigma),
			format.Percent(v.Survival.PSold),
			strconv.Itoa(v.Gate.CompCount),
			strconv.Itoa(v.Gate.RequiredComps),
			gate,
			strings.Join(v.Gate.Tags, " "),
		})
	}
	items.Bulk(itemRows)
	items.Render()
	return nil
}

// JSONFormat outputs the report as indented JSON.
func JSONFormat(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(report), "encode report")
}

// CsvFormat outputs the recommendation as metric,value rows.
func CsvFormat(w io.Writer, report Report) error {
	rec := report.Recommendation
	cw := csv.NewWriter(w)
	records := [][]string{
		{"metric", "value"},
		{"run_id", rec.RunID},
		{"lot", rec.Lot},
		{"bid", formatFloat(rec.Bid)},
		{"acquisition_cost", formatFloat(rec.AcquisitionCost)},
		{"roi_p50", formatFloat(rec.ROIP50)},
		{"prob_meets_roi", formatFloat(rec.ProbMeetsROI)},
		{"cash_p5", formatFloat(rec.CashP5)},
		{"cash_p50", formatFloat(rec.CashP50)},
		{"revenue_p50", formatFloat(rec.RevenueP50)},
		{"meets_constraints", strconv.FormatBool(rec.MeetsConstraints)},
		{"failing_constraints", strings.Join(rec.FailingConstraints, ";")},
		{"total_minutes", formatFloat(rec.Throughput.TotalMinutes)},
		{"available_minutes", formatFloat(rec.Throughput.AvailableMinutes)},
		{"utilization", formatFloat(rec.Throughput.Utilization)},
		{"within_capacity", strconv.FormatBool(rec.Throughput.WithinCapacity)},
		{"core_count", strconv.Itoa(rec.Evidence.CoreCount)},
		{"upside_count", strconv.Itoa(rec.Evidence.UpsideCount)},
		{"gate_pass_rate", formatFloat(rec.Evidence.GatePassRate)},
		{"iterations", strconv.Itoa(rec.Iterations)},
		{"converged", strconv.FormatBool(rec.Converged)},
		{"tags", strings.Join(rec.Tags, ";")},
	}
	if err := cw.WriteAll(records); err != nil {
		return eris.Wrap(err, "write csv")
	}
	return nil
}

// Write renders the report in the named format.
func Write(w io.Writer, outputFormat string, report Report) error {
	switch outputFormat {
	case constants.OutputFormatJSON:
		return JSONFormat(w, report)
	case constants.OutputFormatCSV:
		return CsvFormat(w, report)
	default:
		return PrettyFormat(w, report)
	}
}

// HistoryTable lists stored runs.
func HistoryTable(w io.Writer, runs []store.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	table := tablewriter.NewWriter(w)
	table.Header("Run", "Created", "Mode", "Lot", "Bid", "P(ROI)", "Cash P50", "Meets")
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rec := run.Recommendation
		rows = append(rows, []string{
			rec.RunID,
			rec.CreatedAt.Format("2006-01-02 15:04"),
			run.Mode,
			lotName(rec.Lot),
			format.Currency(rec.Bid),
			format.Percent(rec.ProbMeetsROI),
			format.Currency(rec.CashP50),
			strconv.FormatBool(rec.MeetsConstraints),
		})
	}
	table.Bulk(rows)
	table.Render()
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func lotName(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}
