package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"consultbook/internal/models"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(ctx context.Context) (*http.ServeMux, *httptest.Server, *SheetsService) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	srv, _ := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	return mux, server, newSheetsService(srv, "consult_tid", "Consultations", nil)
}

func testConsultation(id int64) *models.Consultation {
	now := time.Now()
	return &models.Consultation{
		ID:        id,
		Reference: "ref",
		Date:      now,
		StartTime: "10:00",
		EndTime:   "10:30",
		Duration:  30,
		Status:    models.StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSheetsService_TestConnection(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/consult_tid/values/Consultations!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	if err := s.TestConnection(ctx); err != nil {
		t.Errorf("TestConnection failed: %v", err)
	}
}

func TestSheetsService_TestConnection_Error(t *testing.T) {
	ctx := context.Background()
	_, server, s := setupMockServer(ctx)
	defer server.Close()
	if err := s.TestConnection(ctx); err == nil {
		t.Errorf("expected error from unknown route")
	}
}

func TestSheetsService_EnsureHeader(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()

	var headerWritten, formatted bool
	mux.HandleFunc("/v4/spreadsheets/consult_tid/values/Consultations!A1:M1", func(w http.ResponseWriter, r *http.Request) {
		var body sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&body)
		headerWritten = len(body.Values) == 1 && len(body.Values[0]) == len(sheetHeaders)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/consult_tid", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.Spreadsheet{
			Sheets: []*sheets.Sheet{
				{Properties: &sheets.SheetProperties{Title: "Other", SheetId: 1}},
				{Properties: &sheets.SheetProperties{Title: "Consultations", SheetId: 999}},
			},
		})
	})
	mux.HandleFunc("/v4/spreadsheets/consult_tid:batchUpdate", func(w http.ResponseWriter, r *http.Request) {
		var body sheets.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		formatted = len(body.Requests) == 2 && body.Requests[0].RepeatCell.Range.SheetId == 999
		_ = json.NewEncoder(w).Encode(sheets.BatchUpdateSpreadsheetResponse{})
	})

	if err := s.EnsureHeader(ctx); err != nil {
		t.Fatalf("EnsureHeader failed: %v", err)
	}
	if !headerWritten || !formatted {
		t.Errorf("header written=%v formatted=%v", headerWritten, formatted)
	}
}

func TestSheetsService_SheetIDByName_NotFound(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/consult_tid", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.Spreadsheet{})
	})
	if _, err := s.SheetIDByName(ctx, "Consultations"); err == nil {
		t.Errorf("expected error for missing sheet")
	}
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/consult_tid/values/Consultations!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"123"}, {}, {456}},
		})
	})
	if err := s.WarmUpCache(ctx); err != nil {
		t.Errorf("WarmUpCache failed: %v", err)
	}
	if row, ok := s.getCachedRow(123); !ok || row != 2 {
		t.Errorf("Expected row 2 for ID 123, got %d", row)
	}
	if row, ok := s.getCachedRow(456); !ok || row != 4 {
		t.Errorf("Expected row 4 for ID 456, got %d", row)
	}
}

func TestSheetsService_AppendConsultation(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/consult_tid/values/Consultations!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("insertDataOption"); got != "INSERT_ROWS" {
			t.Errorf("unexpected insertDataOption %q", got)
		}
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{
				UpdatedRange: "Consultations!A10:M10",
			},
		})
	})
	if err := s.AppendConsultation(ctx, testConsultation(789)); err != nil {
		t.Errorf("AppendConsultation failed: %v", err)
	}
	if row, _ := s.getCachedRow(789); row != 10 {
		t.Errorf("Expected cached row 10, got %d", row)
	}
}

func TestSheetsService_UpsertConsultation_Update(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow(123, 2)

	var updated bool
	mux.HandleFunc("/v4/spreadsheets/consult_tid/values/Consultations!A2:M2", func(w http.ResponseWriter, r *http.Request) {
		updated = true
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	if err := s.UpsertConsultation(ctx, testConsultation(123)); err != nil {
		t.Errorf("UpsertConsultation failed: %v", err)
	}
	if !updated {
		t.Errorf("expected row update")
	}
}

func TestSheetsService_UpsertConsultation_Append(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()

	mux.HandleFunc("/v4/spreadsheets/consult_tid/values/Consultations!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"1"}}})
	})
	var appended bool
	mux.HandleFunc("/v4/spreadsheets/consult_tid/values/Consultations!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		appended = true
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Consultations!A3:M3"},
		})
	})

	if err := s.UpsertConsultation(ctx, testConsultation(2)); err != nil {
		t.Fatalf("UpsertConsultation failed: %v", err)
	}
	if !appended {
		t.Errorf("expected append for unknown row")
	}
	if row, _ := s.getCachedRow(2); row != 3 {
		t.Errorf("Expected cached row 3, got %d", row)
	}

	if err := s.UpsertConsultation(ctx, nil); err == nil {
		t.Errorf("expected error for nil consultation")
	}
}

func TestSheetsService_UpdateConsultationStatus(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow(123, 2)

	var ranges []string
	mux.HandleFunc("/v4/spreadsheets/consult_tid/values:batchUpdate", func(w http.ResponseWriter, r *http.Request) {
		var body sheets.BatchUpdateValuesRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, d := range body.Data {
			ranges = append(ranges, d.Range)
		}
		_ = json.NewEncoder(w).Encode(sheets.BatchUpdateValuesResponse{})
	})
	if err := s.UpdateConsultationStatus(ctx, 123, models.StatusContacted); err != nil {
		t.Fatalf("UpdateConsultationStatus failed: %v", err)
	}
	if len(ranges) != 2 || ranges[0] != "Consultations!K2" || ranges[1] != "Consultations!M2" {
		t.Errorf("unexpected ranges %v", ranges)
	}
}

func TestSheetsService_FindConsultationRow(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/consult_tid/values/Consultations!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"999"}},
		})
	})

	row, err := s.FindConsultationRow(ctx, 999)
	if err != nil {
		t.Errorf("FindConsultationRow failed: %v", err)
	}
	if row != 2 {
		t.Errorf("Expected row 2, got %d", row)
	}

	if _, err := s.FindConsultationRow(ctx, 5); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("expected ErrRowNotFound, got %v", err)
	}
	if _, err := s.FindConsultationRow(ctx, 0); err == nil {
		t.Errorf("expected error for zero id")
	}
}

func TestSheetsService_ReplaceConsultationsSheet(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow(77, 9)

	mux.HandleFunc("/v4/spreadsheets/consult_tid/values/Consultations!A2:M:clear", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/consult_tid/values/Consultations!A2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	err := s.ReplaceConsultationsSheet(ctx, []*models.Consultation{testConsultation(1), testConsultation(5)})
	if err != nil {
		t.Errorf("ReplaceConsultationsSheet failed: %v", err)
	}
	if row, _ := s.getCachedRow(5); row != 3 {
		t.Errorf("Expected cached row 3, got %d", row)
	}
	if _, ok := s.getCachedRow(77); ok {
		t.Errorf("stale cache entry survived replace")
	}
}

func TestSheetsService_StartCacheRefresh(t *testing.T) {
	mux, server, s := setupMockServer(context.Background())
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/consult_tid/values/Consultations!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"3"}}})
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.StartCacheRefresh(ctx, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := s.getCachedRow(3); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cache was not warmed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}
