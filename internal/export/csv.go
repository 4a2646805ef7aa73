// Package export renders current forecasts for downstream consumers.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// Header is the first CSV row
var Header = []string{
	"Commodity",
	"Municipality",
	"Forecast Month",
	"Forecasted Kilograms",
	"Unit Count",
	"Batch ID",
	"Batch Generated At",
}

// WriteCSV writes one row per current forecast
func WriteCSV(w io.Writer, rows []contracts.CurrentForecast) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range rows {
		if err := cw.Write(Record(r)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Record formats a single forecast row
func Record(r contracts.CurrentForecast) []string {
	units := ""
	if r.PredictedUnits != nil {
		units = decimal.NewFromFloat(*r.PredictedUnits).StringFixed(2)
	}
	return []string{
		r.CommodityName,
		r.MunicipalityName,
		MonthLabel(r.Year, r.Month),
		decimal.NewFromFloat(r.PredictedKG).StringFixed(2),
		units,
		fmt.Sprintf("%d", r.BatchID),
		r.BatchCreatedAt.UTC().Format(time.RFC3339),
	}
}

// MonthLabel renders "{Month} {Year}", e.g. "March 2024"
func MonthLabel(year, month int) string {
	return fmt.Sprintf("%s %d", time.Month(month), year)
}

// Filename is the attachment name for an export generated at now
func Filename(now time.Time) string {
	return fmt.Sprintf("harvest_forecast_%s.csv", now.Format("20060102"))
}
