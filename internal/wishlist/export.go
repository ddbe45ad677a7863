package wishlist

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// ExportSchemaVersion identifies the CSV export format. Bump it when columns change.
const ExportSchemaVersion = "1"

var exportColumns = []string{
	"schemaVersion",
	"fullName",
	"email",
	"occupation",
	"favouriteGames",
	"additionalMessage",
	"createdAt",
}

// Lister is implemented by repositories that can enumerate the waitlist.
type Lister interface {
	List(ctx context.Context) ([]Entry, error)
}

// ExportCSV writes entries as CSV with a header row.
func ExportCSV(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(exportColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, entry := range entries {
		if err := writer.Write(entryToRow(entry)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func entryToRow(entry Entry) []string {
	return []string{
		ExportSchemaVersion,
		entry.FullName,
		entry.Email,
		optionalString(entry.Occupation),
		optionalString(entry.FavouriteGames),
		optionalString(entry.AdditionalMessage),
		formatTime(entry.CreatedAt),
	}
}

func optionalString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
