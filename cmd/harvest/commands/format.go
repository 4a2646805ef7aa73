package commands

import (
	"fmt"
	"strings"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// PrintSection prints a section title
func PrintSection(title string) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("  %s\n", title)
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintBatchReport prints the outcome of a batch run
func PrintBatchReport(r *contracts.BatchReport) {
	PrintSection(fmt.Sprintf("Batch #%d (%s)", r.BatchID, r.Mode))
	fmt.Printf("  Segments  : %d\n", r.Segments)
	fmt.Printf("  Trained   : %d\n", r.Trained)
	fmt.Printf("  Rows      : %d\n", r.RowsWritten)
	fmt.Printf("  Duration  : %s\n", r.Duration.Round(1e6))

	if len(r.Skipped) == 0 {
		fmt.Println("═══════════════════════════════════════════════════════════")
		return
	}

	fmt.Printf("  Skipped   : %d\n", len(r.Skipped))
	byReason := make(map[string][]string)
	for _, s := range r.Skipped {
		byReason[s.Reason] = append(byReason[s.Reason], s.Segment)
	}
	for reason, segs := range byReason {
		fmt.Printf("    %-22s %s\n", reason, strings.Join(segs, ", "))
	}
	fmt.Println("═══════════════════════════════════════════════════════════")
}
