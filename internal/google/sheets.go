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

	"consultbook/internal/config"
	"consultbook/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	sheetTimestampLayout = "2006-01-02 15:04:05"
	lastColumn           = "M"
	statusColumn         = "K"
	updatedColumn        = "M"
)

var ErrRowNotFound = errors.New("consultation row not found")

var sheetHeaders = []interface{}{
	"ID", "Reference", "Date", "Start", "End", "Duration", "Name", "Email", "Company", "Message", "Status", "Created At", "Updated At",
}

// SheetsService зеркалит заявки на консультации в Google Sheets.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
	logger        *zerolog.Logger
}

// NewSheetsService builds the client from a service-account credentials file.
func NewSheetsService(ctx context.Context, cfg config.GoogleConfig, logger *zerolog.Logger) (*SheetsService, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newSheetsService(srv, cfg.ConsultationsSpreadsheetID, cfg.SheetName, logger), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID, sheetName string, logger *zerolog.Logger) *SheetsService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if sheetName == "" {
		sheetName = "Consultations"
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowCache:      make(map[int64]int),
		logger:        logger,
	}
}

// ServiceAccountEmail возвращает email сервисного аккаунта, которому нужно дать доступ к таблице.
func ServiceAccountEmail(credentialsFile string) (string, error) {
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

func (s *SheetsService) rangeOf(a1 string) string {
	return s.sheetName + "!" + a1
}

// TestConnection проверяет подключение к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the header row and makes it bold.
func (s *SheetsService) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf("A1:"+lastColumn+"1"), &sheets.ValueRange{
		Values: [][]interface{}{sheetHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	sheetID, err := s.SheetIDByName(ctx, s.sheetName)
	if err != nil {
		return err
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:          sheetID,
						StartRowIndex:    0,
						EndRowIndex:      1,
						StartColumnIndex: 0,
						EndColumnIndex:   int64(len(sheetHeaders)),
					},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							TextFormat: &sheets.TextFormat{Bold: true},
							BackgroundColor: &sheets.Color{
								Red:   0.86,
								Green: 0.92,
								Blue:  0.97,
							},
						},
					},
					Fields: "userEnteredFormat(backgroundColor,textFormat)",
				},
			},
			{
				UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
					Properties: &sheets.SheetProperties{
						SheetId:        sheetID,
						GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
					},
					Fields: "gridProperties.frozenRowCount",
				},
			},
		},
	}
	if _, err := s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("format header: %w", err)
	}
	return nil
}

// SheetIDByName возвращает ID листа по его названию
func (s *SheetsService) SheetIDByName(ctx context.Context, sheetName string) (int64, error) {
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == sheetName {
			return sheet.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet '%s' not found", sheetName)
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[int64]int)
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id := cellID(row[0]); id > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// StartCacheRefresh periodically re-reads the ID column until ctx is done.
func (s *SheetsService) StartCacheRefresh(ctx context.Context, interval time.Duration) {
	refresh := func() {
		c, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.WarmUpCache(c); err != nil {
			s.logger.Warn().Err(err).Msg("sheets cache refresh failed")
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// AppendConsultation добавляет строку с новой заявкой
func (s *SheetsService) AppendConsultation(ctx context.Context, c *models.Consultation) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rangeOf("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{consultationRowValues(c)},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(c.ID, row)
		}
	}
	return nil
}

// UpsertConsultation updates an existing row or appends a new one if not found.
func (s *SheetsService) UpsertConsultation(ctx context.Context, c *models.Consultation) error {
	if c == nil {
		return fmt.Errorf("consultation is nil")
	}

	rowIdx, err := s.FindConsultationRow(ctx, c.ID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return s.AppendConsultation(ctx, c)
		}
		return err
	}

	rangeData := s.rangeOf(fmt.Sprintf("A%d:%s%d", rowIdx, lastColumn, rowIdx))
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{consultationRowValues(c)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// UpdateConsultationStatus updates status and Updated At cells for a row.
func (s *SheetsService) UpdateConsultationStatus(ctx context.Context, consultationID int64, status string) error {
	rowIdx, err := s.FindConsultationRow(ctx, consultationID)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(sheetTimestampLayout)

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data: []*sheets.ValueRange{
			{
				Range:  s.rangeOf(fmt.Sprintf("%s%d", statusColumn, rowIdx)),
				Values: [][]interface{}{{status}},
			},
			{
				Range:  s.rangeOf(fmt.Sprintf("%s%d", updatedColumn, rowIdx)),
				Values: [][]interface{}{{now}},
			},
		},
	}
	_, err = s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	return err
}

// FindConsultationRow locates row index (1-based) for consultation id in column A with cache.
func (s *SheetsService) FindConsultationRow(ctx context.Context, consultationID int64) (int, error) {
	if consultationID == 0 {
		return 0, fmt.Errorf("consultation id is required")
	}

	if row, ok := s.getCachedRow(consultationID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if cellID(row[0]) == consultationID {
			rowIdx := i + 1 // Values are zero-based; sheet rows are 1-based
			s.setCachedRow(consultationID, rowIdx)
			return rowIdx, nil
		}
	}

	return 0, ErrRowNotFound
}

// ReplaceConsultationsSheet полностью перезаписывает лист с заявками
func (s *SheetsService) ReplaceConsultationsSheet(ctx context.Context, consultations []*models.Consultation) error {
	// Очищаем весь лист (кроме заголовков)
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rangeOf("A2:"+lastColumn), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear consultations sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(consultations))
	for _, c := range consultations {
		values = append(values, consultationRowValues(c))
	}

	if len(values) > 0 {
		_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf("A2"), &sheets.ValueRange{
			Values: values,
		}).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to update consultations sheet: %w", err)
		}
	}

	cache := make(map[int64]int, len(consultations))
	for i, c := range consultations {
		cache[c.ID] = i + 2 // +2 because data starts at row 2
	}
	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()

	return nil
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

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func consultationRowValues(c *models.Consultation) []interface{} {
	return []interface{}{
		c.ID,
		c.Reference,
		c.DateString(),
		c.StartTime,
		c.EndTime,
		c.Duration,
		c.Name,
		c.Email,
		c.Company,
		c.Message,
		c.Status,
		c.CreatedAt.UTC().Format(sheetTimestampLayout),
		c.UpdatedAt.UTC().Format(sheetTimestampLayout),
	}
}

// cellID reads an ID cell that may come back as a number or as text.
func cellID(v interface{}) int64 {
	switch val := v.(type) {
	case float64:
		return int64(val)
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0
		}
		return id
	}
	return 0
}

// rowFromRange extracts the first row number from "Sheet!A10:M10".
func rowFromRange(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ$")
	row, err := strconv.Atoi(digits)
	if err != nil || row <= 0 {
		return 0, false
	}
	return row, true
}
