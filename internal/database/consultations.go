package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"consultbook/internal/models"
)

const consultationColumns = `id, reference, date, start_time, end_time, duration, name, email, company, message, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsultation(row rowScanner) (*models.Consultation, error) {
	var c models.Consultation
	var company sql.NullString
	err := row.Scan(
		&c.ID, &c.Reference, &c.Date, &c.StartTime, &c.EndTime, &c.Duration,
		&c.Name, &c.Email, &company, &c.Message, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Company = company.String
	return &c, nil
}

// CreateConsultation сохраняет новую заявку и проставляет ID
func (db *DB) CreateConsultation(ctx context.Context, c *models.Consultation) error {
	if c == nil {
		return errors.New("consultation is nil")
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.Status == "" {
		c.Status = models.StatusNew
	}

	query := `
        INSERT INTO consultations (reference, date, start_time, end_time, duration, name, email, company, message, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	result, err := db.ExecContext(ctx, query,
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
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create consultation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// GetConsultation возвращает заявку по ID
func (db *DB) GetConsultation(ctx context.Context, id int64) (*models.Consultation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+consultationColumns+` FROM consultations WHERE id = ?`, id)
	c, err := scanConsultation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consultation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consultation: %w", err)
	}
	return c, nil
}

// GetConsultationByReference ищет заявку по номеру из подтверждения
func (db *DB) GetConsultationByReference(ctx context.Context, reference string) (*models.Consultation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+consultationColumns+` FROM consultations WHERE reference = ?`, reference)
	c, err := scanConsultation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consultation %s: %w", reference, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consultation: %w", err)
	}
	return c, nil
}

// GetConsultationsByDateRange возвращает заявки с датой встречи в [start, end]
func (db *DB) GetConsultationsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Consultation, error) {
	query := `SELECT ` + consultationColumns + `
        FROM consultations
        WHERE date >= ? AND date <= ?
        ORDER BY date, start_time, id`

	rows, err := db.QueryContext(ctx, query, start.Format(models.DateLayout), end.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query consultations: %w", err)
	}
	defer rows.Close()

	consultations := []*models.Consultation{}
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consultation: %w", err)
		}
		consultations = append(consultations, c)
	}
	return consultations, rows.Err()
}

// UpdateConsultationStatus меняет статус обработки заявки менеджером
func (db *DB) UpdateConsultationStatus(ctx context.Context, id int64, status string) error {
	switch status {
	case models.StatusNew, models.StatusContacted, models.StatusClosed:
	default:
		return fmt.Errorf("unknown consultation status %q", status)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE consultations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update consultation status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("consultation %d: %w", id, ErrNotFound)
	}
	return nil
}

// CountConsultationsByStatus для readiness/статистики
func (db *DB) CountConsultationsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM consultations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count consultations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
