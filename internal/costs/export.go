package costs

import (
	"encoding/csv"
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// WriteRollupCSV renders quarterly rollup rows as CSV for the reporting
// download. Costs are grouped with thousands separators for spreadsheets.
func WriteRollupCSV(w io.Writer, ethiopianYear int, rollups []QuarterRollup) error {
	printer := message.NewPrinter(language.English)
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"fiscal_year", "quarter", "planned", "completed", "accomplishment_pct", "cost"}); err != nil {
		return err
	}
	for _, r := range rollups {
		cost, _ := r.Cost.Round(2).Float64()
		row := []string{
			fmt.Sprintf("%d", ethiopianYear),
			r.Label,
			fmt.Sprintf("%d", r.PlannedCount),
			fmt.Sprintf("%d", r.CompletedCount),
			r.AccomplishmentPercent.StringFixed(2),
			printer.Sprintf("%.2f", cost),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
