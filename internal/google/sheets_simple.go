package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"frontdesk/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	bookingsSheet  = "Bookings"
	occupancySheet = "Шахматка"

	// bookings sheet columns
	colStatus    = "G"
	colPayment   = "H"
	colUpdatedAt = "L"
	lastColumn   = "L"

	sheetTimeLayout = "2006-01-02 15:04:05"
	maxGridDays     = 100
)

var bookingHeaders = []interface{}{
	"ID", "Room ID", "Guest ID", "Check-in", "Check-out", "Nights",
	"Status", "Payment Status", "Payment Method", "Total", "Created At", "Updated At",
}

var errRowNotFound = errors.New("booking row not found")

// SheetsService mirrors bookings into a spreadsheet. The mirror is write-only: nothing
// read back from the sheet feeds booking decisions.
type SheetsService struct {
	service         *sheets.Service
	bookingsSheetID string
	rowCache        map[int64]int
	cacheMu         sync.RWMutex
}

func NewSimpleSheetsService(ctx context.Context, credentialsFile, bookingsSheetID string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	service := &SheetsService{
		service:         srv,
		bookingsSheetID: bookingsSheetID,
		rowCache:        make(map[int64]int),
	}

	go service.refreshCache(ctx)

	return service, nil
}

// refreshCache warms the row cache now and then every SheetsCacheTTL until ctx is done.
func (s *SheetsService) refreshCache(ctx context.Context) {
	ticker := time.NewTicker(models.SheetsCacheTTL * time.Second)
	defer ticker.Stop()
	for {
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_ = s.WarmUpCache(warmCtx)
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.bookingsSheetID, bookingsSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.bookingsSheetID, bookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[int64]int, len(resp.Values))
	for i, row := range resp.Values {
		if id, ok := cellID(row); ok {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// AppendBooking добавляет новую строку брони
func (s *SheetsService) AppendBooking(ctx context.Context, booking *models.Booking) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.bookingsSheetID, bookingsSheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := firstRowOfRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(booking.ID, row)
		}
	}
	return nil
}

// UpsertBooking updates an existing booking row or appends a new one if not found.
func (s *SheetsService) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return errors.New("booking is nil")
	}

	rowIdx, err := s.FindBookingRow(ctx, booking.ID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return s.AppendBooking(ctx, booking)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", bookingsSheet, rowIdx, lastColumn, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		s.deleteCacheRow(booking.ID)
	}
	return err
}

// UpdateBookingStatus updates the lifecycle status (and Updated At) of a booking row.
func (s *SheetsService) UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error {
	return s.updateCell(ctx, bookingID, colStatus, status)
}

// UpdatePaymentStatus updates the payment status (and Updated At) of a booking row.
func (s *SheetsService) UpdatePaymentStatus(ctx context.Context, bookingID int64, status string) error {
	return s.updateCell(ctx, bookingID, colPayment, status)
}

func (s *SheetsService) updateCell(ctx context.Context, bookingID int64, column, value string) error {
	rowIdx, err := s.FindBookingRow(ctx, bookingID)
	if err != nil {
		return err
	}

	valueRange := fmt.Sprintf("%s!%s%d:%s%d", bookingsSheet, column, rowIdx, column, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, valueRange, &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		// the row may have moved; rescan on the next attempt
		s.deleteCacheRow(bookingID)
		return err
	}

	updatedRange := fmt.Sprintf("%s!%s%d:%s%d", bookingsSheet, colUpdatedAt, rowIdx, colUpdatedAt, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, updatedRange, &sheets.ValueRange{
		Values: [][]interface{}{{time.Now().UTC().Format(sheetTimeLayout)}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// FindBookingRow locates row index (1-based) for booking_id in column A with cache.
func (s *SheetsService) FindBookingRow(ctx context.Context, bookingID int64) (int, error) {
	if bookingID == 0 {
		return 0, errors.New("booking id is required")
	}

	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.bookingsSheetID, bookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if id, ok := cellID(row); ok && id == bookingID {
			rowIdx := i + 1 // Values are zero-based; sheet rows are 1-based
			s.setCachedRow(bookingID, rowIdx)
			return rowIdx, nil
		}
	}
	return 0, errRowNotFound
}

// ReplaceBookingsSheet полностью перезаписывает лист с бронями
func (s *SheetsService) ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.bookingsSheetID, bookingsSheet+"!A:Z", &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear bookings sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(bookings)+1)
	values = append(values, bookingHeaders)
	for _, booking := range bookings {
		values = append(values, bookingRowValues(booking))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, bookingsSheet+"!A1", &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update bookings sheet: %w", err)
	}

	s.ClearCache()
	for i, b := range bookings {
		s.setCachedRow(b.ID, i+2) // +2 because data starts at row 2
	}
	return nil
}

// UpdateOccupancySheet перерисовывает шахматку: номера по строкам, даты по колонкам.
func (s *SheetsService) UpdateOccupancySheet(
	ctx context.Context,
	startDate, endDate time.Time,
	rooms []*models.Room,
	bookings []*models.Booking,
) error {
	startDate, endDate = models.NormalizeDate(startDate), models.NormalizeDate(endDate)
	if endDate.Before(startDate) {
		return fmt.Errorf("invalid date range: %s - %s", startDate.Format(models.DateLayout), endDate.Format(models.DateLayout))
	}

	sheetID, err := s.GetSheetIdByName(ctx, s.bookingsSheetID, occupancySheet)
	if err != nil {
		return fmt.Errorf("unable to get sheet ID: %w", err)
	}

	_, err = s.service.Spreadsheets.Values.Clear(s.bookingsSheetID, occupancySheet+"!A:ZZ", &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to clear sheet: %w", err)
	}

	headerRow, dateCols := s.prepareDateHeaders(startDate, endDate)
	data := [][]interface{}{
		{fmt.Sprintf("Период: %s - %s", startDate.Format("02.01.2006"), endDate.Format("02.01.2006"))},
		{},
		headerRow,
	}

	daily := nightlyBookings(bookings, startDate, dateCols)
	var formatRequests []*sheets.Request
	for rowIndex, room := range rooms {
		rowData, cellFormats := s.prepareRoomRowData(room, startDate, dateCols, daily)
		data = append(data, rowData)
		for colIndex, cell := range cellFormats {
			formatRequests = append(formatRequests, &sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:          sheetID,
						StartRowIndex:    int64(rowIndex + 3),
						EndRowIndex:      int64(rowIndex + 4),
						StartColumnIndex: int64(colIndex + 1),
						EndColumnIndex:   int64(colIndex + 2),
					},
					Cell:   cell,
					Fields: "userEnteredFormat(backgroundColor,verticalAlignment,wrapStrategy)",
				},
			})
		}
	}
	if len(rooms) == 0 {
		data = append(data, s.prepareEmptyRoomsRow(dateCols))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, occupancySheet+"!A1", &sheets.ValueRange{
		Values: data,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to update occupancy sheet: %w", err)
	}

	formatRequests = append(formatRequests, headerFormatRequests(sheetID, len(headerRow))...)
	formatRequests = append(formatRequests, columnWidthRequests(sheetID, dateCols)...)
	_, err = s.service.Spreadsheets.BatchUpdate(s.bookingsSheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: formatRequests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to apply formatting: %w", err)
	}
	return nil
}

func (s *SheetsService) prepareDateHeaders(startDate, endDate time.Time) ([]interface{}, int) {
	headers := []interface{}{""}
	cols := 0
	for d := startDate; !d.After(endDate) && cols < maxGridDays; d = d.AddDate(0, 0, 1) {
		headers = append(headers, d.Format("02.01"))
		cols++
	}
	return headers, cols
}

// nightlyBookings indexes blocking bookings by room and by night offset from startDate.
func nightlyBookings(bookings []*models.Booking, startDate time.Time, days int) map[int64]map[int]*models.Booking {
	out := make(map[int64]map[int]*models.Booking)
	for _, b := range bookings {
		if !b.Status.Blocks() {
			continue
		}
		for d := 0; d < days; d++ {
			night := startDate.AddDate(0, 0, d)
			if night.Before(b.CheckIn) || !night.Before(b.CheckOut) {
				continue
			}
			if out[b.RoomID] == nil {
				out[b.RoomID] = make(map[int]*models.Booking)
			}
			out[b.RoomID][d] = b
		}
	}
	return out
}

func (s *SheetsService) prepareRoomRowData(
	room *models.Room,
	startDate time.Time,
	dateCols int,
	daily map[int64]map[int]*models.Booking,
) ([]interface{}, []*sheets.CellData) {
	rowData := []interface{}{fmt.Sprintf("%s (%s)", room.Number, room.Type)}
	cellFormats := make([]*sheets.CellData, 0, dateCols)
	for col := 0; col < dateCols; col++ {
		value, color := s.formatOccupancyCell(daily[room.ID][col])
		rowData = append(rowData, value)
		cellFormats = append(cellFormats, &sheets.CellData{
			UserEnteredFormat: &sheets.CellFormat{
				BackgroundColor:   color,
				VerticalAlignment: "TOP",
				WrapStrategy:      "WRAP",
			},
		})
	}
	return rowData, cellFormats
}

// formatOccupancyCell: свободно - белый, ожидает подтверждения - жёлтый, подтверждена - зелёный,
// гость заселён - красный.
func (s *SheetsService) formatOccupancyCell(booking *models.Booking) (string, *sheets.Color) {
	if booking == nil {
		return "Свободно", &sheets.Color{Red: 1.0, Green: 1.0, Blue: 1.0}
	}

	value := fmt.Sprintf("[№%d] %s\n%s", booking.ID, booking.Status, booking.PaymentStatus)
	switch booking.Status {
	case models.BookingCheckedIn:
		return value, &sheets.Color{Red: 1.0, Green: 0.78, Blue: 0.81}
	case models.BookingConfirmed:
		return value, &sheets.Color{Red: 0.78, Green: 0.94, Blue: 0.81}
	default:
		return value, &sheets.Color{Red: 1.0, Green: 0.92, Blue: 0.61}
	}
}

func (s *SheetsService) prepareEmptyRoomsRow(dateCols int) []interface{} {
	row := []interface{}{"Нет номеров"}
	for i := 0; i < dateCols; i++ {
		row = append(row, "")
	}
	return row
}

func headerFormatRequests(sheetID int64, headerLen int) []*sheets.Request {
	return []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{SheetId: sheetID, StartRowIndex: 0, EndRowIndex: 1, StartColumnIndex: 0, EndColumnIndex: 1},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						HorizontalAlignment: "CENTER",
						TextFormat:          &sheets.TextFormat{Bold: true, FontSize: 14},
					},
				},
				Fields: "userEnteredFormat(textFormat,horizontalAlignment)",
			},
		},
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{SheetId: sheetID, StartRowIndex: 2, EndRowIndex: 3, StartColumnIndex: 1, EndColumnIndex: int64(headerLen)},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						HorizontalAlignment: "CENTER",
						TextFormat:          &sheets.TextFormat{Bold: true},
						BackgroundColor:     &sheets.Color{Red: 0.86, Green: 0.92, Blue: 0.97},
					},
				},
				Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
			},
		},
	}
}

func columnWidthRequests(sheetID int64, dateCols int) []*sheets.Request {
	width := func(start, end, px int64) *sheets.Request {
		return &sheets.Request{
			UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
				Range:      &sheets.DimensionRange{SheetId: sheetID, Dimension: "COLUMNS", StartIndex: start, EndIndex: end},
				Properties: &sheets.DimensionProperties{PixelSize: px},
				Fields:     "pixelSize",
			},
		}
	}
	requests := []*sheets.Request{width(0, 1, 160)}
	if dateCols > 0 {
		requests = append(requests, width(1, int64(dateCols+1), 110))
	}
	return requests
}

// GetSheetIdByName возвращает ID листа по его названию
func (s *SheetsService) GetSheetIdByName(ctx context.Context, spreadID, sheetName string) (int64, error) {
	spreadsheet, err := s.service.Spreadsheets.Get(spreadID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == sheetName {
			return sheet.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet '%s' not found", sheetName)
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCacheRow(id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func bookingRowValues(booking *models.Booking) []interface{} {
	return []interface{}{
		booking.ID,
		booking.RoomID,
		booking.GuestID,
		booking.CheckIn.Format(models.DateLayout),
		booking.CheckOut.Format(models.DateLayout),
		booking.Nights(),
		string(booking.Status),
		string(booking.PaymentStatus),
		booking.PaymentMethod,
		booking.TotalAmount.StringFixed(2),
		booking.CreatedAt.UTC().Format(sheetTimeLayout),
		booking.UpdatedAt.UTC().Format(sheetTimeLayout),
	}
}

// cellID reads a booking id from the first cell of a row; the header row yields false.
func cellID(row []interface{}) (int64, bool) {
	if len(row) == 0 {
		return 0, false
	}
	switch v := row[0].(type) {
	case float64:
		return int64(v), v > 0
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}

// firstRowOfRange extracts 10 from "Bookings!A10:L10".
func firstRowOfRange(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	a1, _, _ = strings.Cut(a1, ":")
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	return row, err == nil && row > 0
}
