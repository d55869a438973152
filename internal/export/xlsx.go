package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/xuri/excelize/v2"
)

// Exporter writes booking reports as .xlsx workbooks: one sheet with every
// booking in the requested date range, one sheet summarizing schedule
// occupancy.
type Exporter struct {
	store domain.Store
	dir   string
}

func NewExporter(store domain.Store, dir string) *Exporter {
	return &Exporter{store: store, dir: dir}
}

// ExportBookings builds the workbook for [start, end] (both "2006-01-02",
// inclusive; defaults to today through one week out) and returns the file
// path.
func (e *Exporter) ExportBookings(ctx context.Context, start, end string) (string, error) {
	if start == "" {
		start = time.Now().Format("2006-01-02")
	}
	if end == "" {
		end = time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", start); err != nil {
		return "", fmt.Errorf("%w: invalid start date %q", domain.ErrInvalidInput, start)
	}
	if _, err := time.Parse("2006-01-02", end); err != nil {
		return "", fmt.Errorf("%w: invalid end date %q", domain.ErrInvalidInput, end)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	bookings, err := e.collectBookings(ctx, start, end)
	if err != nil {
		return "", err
	}
	schedules, err := e.store.ListSchedules(ctx, models.ScheduleFilter{})
	if err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeBookingsSheet(f, bookings, start, end); err != nil {
		return "", err
	}
	if err := e.writeSchedulesSheet(f, schedules, start, end); err != nil {
		return "", err
	}
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx", start, end)
	path := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

func (e *Exporter) collectBookings(ctx context.Context, start, end string) ([]*models.Booking, error) {
	var all []*models.Booking
	page := 1
	for {
		items, total, err := e.store.ListBookings(ctx, models.BookingFilter{Page: page, PageSize: models.MaxPageSize})
		if err != nil {
			return nil, err
		}
		for _, b := range items {
			if b.Date >= start && b.Date <= end {
				all = append(all, b)
			}
		}
		if page*models.MaxPageSize >= total || len(items) == 0 {
			break
		}
		page++
	}
	return all, nil
}

func (e *Exporter) writeBookingsSheet(f *excelize.File, bookings []*models.Booking, start, end string) error {
	const sheet = "Bookings"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("Bookings %s - %s", start, end))
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.MergeCell(sheet, "A1", "I1")
	_ = f.SetCellStyle(sheet, "A1", "A1", headerStyle)

	headers := []string{"Booking ID", "Schedule ID", "Course", "Date", "Start", "End", "User", "Phone", "Status"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for row, b := range bookings {
		values := []any{b.ID, b.ScheduleID, b.CourseID, b.Date, b.StartTime, b.EndTime, b.UserName, b.UserPhone, b.Status}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+3)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "B", 38)
	_ = f.SetColWidth(sheet, "C", "I", 16)
	return nil
}

func (e *Exporter) writeSchedulesSheet(f *excelize.File, schedules []*models.Schedule, start, end string) error {
	const sheet = "Schedules"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headers := []string{"Schedule ID", "Course", "Coach", "Date", "Start", "Capacity", "Booked", "Free", "Status"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, s := range schedules {
		if s.Date < start || s.Date > end {
			continue
		}
		values := []any{s.ID, s.CourseID, s.CoachID, s.Date, s.StartTime, s.MaxCapacity, s.BookedCount, s.AvailableSeats(), s.Status}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "I", 14)
	return nil
}
