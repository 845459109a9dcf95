package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"frontdesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Брони"
	paymentsSheet = "Платежи"

	displayDate = "02.01.2006"
)

// Source is the read side of storage a report needs.
type Source interface {
	ListRooms(ctx context.Context, filter models.RoomFilter) ([]*models.Room, error)
	ListGuests(ctx context.Context, search string) ([]*models.Guest, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	ListPaymentTransactions(ctx context.Context, bookingID int64) ([]*models.PaymentTransaction, error)
}

// Exporter builds XLSX reports of bookings and payments for a period.
type Exporter struct {
	source      Source
	exportsPath string
	logger      *zerolog.Logger
}

func NewExporter(source Source, exportsPath string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{source: source, exportsPath: exportsPath, logger: logger}
}

var bookingHeaders = []string{
	"ID", "Номер", "Гость", "Заезд", "Выезд", "Ночей", "Статус", "Оплата", "Способ оплаты", "Сумма", "Примечание",
}

var paymentHeaders = []string{
	"ID", "Счёт", "Бронь", "Сумма", "Способ", "Статус", "Дата оплаты", "Примечание",
}

var statusFills = map[models.BookingStatus]string{
	models.BookingPending:    "#FFF2CC",
	models.BookingConfirmed:  "#E2EFDA",
	models.BookingCheckedIn:  "#F8CBAD",
	models.BookingCheckedOut: "#DDEBF7",
	models.BookingCancelled:  "#D9D9D9",
}

// FileName is the name an export for the period is saved under.
func FileName(startDate, endDate time.Time) string {
	return fmt.Sprintf("export_%s_to_%s.xlsx", startDate.Format(models.DateLayout), endDate.Format(models.DateLayout))
}

// Build assembles the workbook for stays touching [startDate, endDate], both days inclusive.
// The caller closes the returned file.
func (e *Exporter) Build(ctx context.Context, startDate, endDate time.Time) (*excelize.File, error) {
	startDate = models.NormalizeDate(startDate)
	endDate = models.NormalizeDate(endDate)
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("report period %s..%s is reversed", startDate.Format(models.DateLayout), endDate.Format(models.DateLayout))
	}

	// Получаем данные из БД
	bookings, err := e.source.ListBookings(ctx, models.BookingFilter{From: startDate, To: endDate.AddDate(0, 0, 1)})
	if err != nil {
		return nil, fmt.Errorf("error getting bookings: %w", err)
	}
	rooms, err := e.source.ListRooms(ctx, models.RoomFilter{})
	if err != nil {
		return nil, fmt.Errorf("error getting rooms: %w", err)
	}
	guests, err := e.source.ListGuests(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("error getting guests: %w", err)
	}
	transactions, err := e.source.ListPaymentTransactions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("error getting payment transactions: %w", err)
	}

	f := excelize.NewFile()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(paymentsSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}

	period := fmt.Sprintf("Период: %s - %s", startDate.Format(displayDate), endDate.Format(displayDate))
	writeTitle(f, bookingsSheet, period, len(bookingHeaders))
	writeTitle(f, paymentsSheet, period, len(paymentHeaders))

	writeBookings(f, bookings, roomNumbers(rooms), guestNames(guests))
	writePayments(f, periodTransactions(transactions, bookings, startDate, endDate))

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// Write streams the workbook for the period to w.
func (e *Exporter) Write(ctx context.Context, w io.Writer, startDate, endDate time.Time) error {
	f, err := e.Build(ctx, startDate, endDate)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// ExportToFile saves the workbook for the period into the exports directory and returns its path.
func (e *Exporter) ExportToFile(ctx context.Context, startDate, endDate time.Time) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(e.exportsPath, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.Build(ctx, startDate, endDate)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.exportsPath, FileName(startDate, endDate))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func writeTitle(f *excelize.File, sheetName, title string, columns int) {
	_ = f.SetCellValue(sheetName, "A1", title)

	lastCell, _ := excelize.CoordinatesToCellName(columns, 1)
	_ = f.MergeCell(sheetName, "A1", lastCell)

	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", style)
}

func writeHeaders(f *excelize.File, sheetName string, headers []string) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
}

func writeBookings(f *excelize.File, bookings []*models.Booking, rooms map[int64]string, guests map[int64]string) {
	writeHeaders(f, bookingsSheet, bookingHeaders)

	moneyStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 2})
	statusStyles := make(map[models.BookingStatus]int, len(statusFills))
	for status, color := range statusFills {
		statusStyles[status], _ = f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
	}

	total := decimal.Zero
	row := 3
	for _, b := range bookings {
		values := []interface{}{
			b.ID,
			lookup(rooms, b.RoomID),
			lookup(guests, b.GuestID),
			b.CheckIn.Format(displayDate),
			b.CheckOut.Format(displayDate),
			b.Nights(),
			string(b.Status),
			string(b.PaymentStatus),
			b.PaymentMethod,
			b.TotalAmount.Round(2).InexactFloat64(),
			b.Notes,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(bookingsSheet, cell, v)
		}

		statusCell, _ := excelize.CoordinatesToCellName(7, row)
		_ = f.SetCellStyle(bookingsSheet, statusCell, statusCell, statusStyles[b.Status])
		amountCell, _ := excelize.CoordinatesToCellName(10, row)
		_ = f.SetCellStyle(bookingsSheet, amountCell, amountCell, moneyStyle)

		// Отменённые брони в итог не входят
		if b.Status != models.BookingCancelled {
			total = total.Add(b.TotalAmount)
		}
		row++
	}

	writeTotal(f, bookingsSheet, row, 9, total, moneyStyle)

	_ = f.SetColWidth(bookingsSheet, "A", "A", 8)
	_ = f.SetColWidth(bookingsSheet, "B", "B", 10)
	_ = f.SetColWidth(bookingsSheet, "C", "C", 25)
	_ = f.SetColWidth(bookingsSheet, "D", "J", 14)
	_ = f.SetColWidth(bookingsSheet, "K", "K", 30)
}

func writePayments(f *excelize.File, transactions []*models.PaymentTransaction) {
	writeHeaders(f, paymentsSheet, paymentHeaders)

	moneyStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 2})

	// Итог: одобренные платежи за период
	received := decimal.Zero
	row := 3
	for _, t := range transactions {
		var booking interface{} = ""
		if t.BookingID != nil {
			booking = *t.BookingID
		}
		values := []interface{}{
			t.ID,
			t.Reference,
			booking,
			t.Amount.Round(2).InexactFloat64(),
			t.Method,
			string(t.Status),
			t.PaymentDate.Format(displayDate),
			t.Notes,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(paymentsSheet, cell, v)
		}
		amountCell, _ := excelize.CoordinatesToCellName(4, row)
		_ = f.SetCellStyle(paymentsSheet, amountCell, amountCell, moneyStyle)

		if t.Status == models.TransactionApproved {
			received = received.Add(t.Amount)
		}
		row++
	}

	writeTotal(f, paymentsSheet, row, 3, received, moneyStyle)

	_ = f.SetColWidth(paymentsSheet, "A", "A", 8)
	_ = f.SetColWidth(paymentsSheet, "B", "B", 16)
	_ = f.SetColWidth(paymentsSheet, "C", "G", 14)
	_ = f.SetColWidth(paymentsSheet, "H", "H", 30)
}

// writeTotal puts "Итого" in labelCol and the amount in the next column.
func writeTotal(f *excelize.File, sheetName string, row, labelCol int, amount decimal.Decimal, moneyStyle int) {
	labelCell, _ := excelize.CoordinatesToCellName(labelCol, row)
	amountCell, _ := excelize.CoordinatesToCellName(labelCol+1, row)

	_ = f.SetCellValue(sheetName, labelCell, "Итого")
	_ = f.SetCellValue(sheetName, amountCell, amount.Round(2).InexactFloat64())

	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(sheetName, labelCell, labelCell, bold)
	_ = f.SetCellStyle(sheetName, amountCell, amountCell, moneyStyle)
}

// periodTransactions keeps transactions of the listed bookings plus standalone invoices paid
// within the period, oldest first.
func periodTransactions(
	transactions []*models.PaymentTransaction,
	bookings []*models.Booking,
	startDate, endDate time.Time,
) []*models.PaymentTransaction {
	inPeriod := make(map[int64]bool, len(bookings))
	for _, b := range bookings {
		inPeriod[b.ID] = true
	}

	until := endDate.AddDate(0, 0, 1)
	var out []*models.PaymentTransaction
	for i := len(transactions) - 1; i >= 0; i-- {
		t := transactions[i]
		if t.BookingID != nil {
			if inPeriod[*t.BookingID] {
				out = append(out, t)
			}
			continue
		}
		paid := models.NormalizeDate(t.PaymentDate)
		if !paid.Before(startDate) && paid.Before(until) {
			out = append(out, t)
		}
	}
	return out
}

func roomNumbers(rooms []*models.Room) map[int64]string {
	out := make(map[int64]string, len(rooms))
	for _, r := range rooms {
		out[r.ID] = r.Number
	}
	return out
}

func guestNames(guests []*models.Guest) map[int64]string {
	out := make(map[int64]string, len(guests))
	for _, g := range guests {
		out[g.ID] = g.FullName
	}
	return out
}

func lookup(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}
