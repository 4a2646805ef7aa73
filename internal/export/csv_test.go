package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/wonny/harvest/backend/internal/contracts"
)

func TestWriteCSV(t *testing.T) {
	units := 600.0
	rows := []contracts.CurrentForecast{
		{
			ForecastResult: contracts.ForecastResult{
				BatchID: 4, CommodityID: 1, MunicipalityID: 7, Month: 3, Year: 2024,
				PredictedKG: 150.004, PredictedUnits: &units,
			},
			CommodityName:    "Mango",
			MunicipalityName: "Pilar",
			BatchCreatedAt:   time.Date(2024, 2, 20, 8, 30, 0, 0, time.UTC),
		},
		{
			ForecastResult: contracts.ForecastResult{
				BatchID: 5, CommodityID: 2, MunicipalityID: 14, Month: 12, Year: 2024, PredictedKG: 0,
			},
			CommodityName:    "Papaya",
			MunicipalityName: "Overall",
			BatchCreatedAt:   time.Date(2024, 2, 21, 0, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}

	want := []string{"Mango", "Pilar", "March 2024", "150.00", "600.00", "4", "2024-02-20T08:30:00Z"}
	for i, v := range want {
		if records[1][i] != v {
			t.Errorf("row 1 col %d: got %q, want %q", i, records[1][i], v)
		}
	}
	if records[2][2] != "December 2024" || records[2][3] != "0.00" || records[2][4] != "" {
		t.Errorf("row 2 = %v", records[2])
	}
}

func TestFilename(t *testing.T) {
	got := Filename(time.Date(2024, 10, 18, 15, 0, 0, 0, time.UTC))
	if got != "harvest_forecast_20241018.csv" {
		t.Errorf("Filename = %q", got)
	}
}
