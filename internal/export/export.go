// Package export renders a venue's reservation day as an xlsx workbook for
// venue managers.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"mesto/internal/database"
	"mesto/internal/models"
)

type Exporter struct {
	db     *database.DB
	dir    string
	logger *zerolog.Logger
}

func NewExporter(db *database.DB, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{db: db, dir: dir, logger: logger}
}

// ExportDay writes the venue's reservations for one calendar day and returns
// the path of the created file.
func (e *Exporter) ExportDay(ctx context.Context, venueID string, day time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	venue, err := e.db.GetVenue(ctx, venueID)
	if err != nil {
		return "", fmt.Errorf("failed to get venue: %w", err)
	}
	tables, err := e.db.TablesByVenue(ctx, venueID)
	if err != nil {
		return "", fmt.Errorf("failed to list tables: %w", err)
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	reservations, err := e.db.ReservationsForDay(ctx, venueID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return "", fmt.Errorf("failed to list reservations: %w", err)
	}

	tableNames := make(map[string]string, len(tables))
	for _, t := range tables {
		tableNames[t.ID] = t.Name
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Reservations"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s: %s",
		venue.Name, dayStart.Format("02.01.2006")))

	headers := []string{"Table", "#", "Start", "End", "Guests", "Status", "Client", "Comment"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, r := range reservations {
		row := i + 3
		e.writeRow(f, sheetName, row, r, tableNames[r.TableID])
	}

	_ = f.SetColWidth(sheetName, "A", "A", 20)
	_ = f.SetColWidth(sheetName, "B", "F", 12)
	_ = f.SetColWidth(sheetName, "G", "H", 25)

	lastCol, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.MergeCell(sheetName, "A1", lastCol)
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("reservations_%s_%s.xlsx", venueID, dayStart.Format("2006-01-02"))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("failed to save export file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("export file created")
	return filePath, nil
}

func (e *Exporter) writeRow(f *excelize.File, sheetName string, row int, r models.Reservation, tableName string) {
	values := []any{
		tableName,
		r.SequenceNumber,
		r.StartTime.UTC().Format("15:04"),
		r.EndTime.UTC().Format("15:04"),
		r.Guests,
		r.Status,
		r.ClientID,
		r.Comment,
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheetName, cell, v)
	}
}
