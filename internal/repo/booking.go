package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coursebook/internal/dto"
	"coursebook/internal/model"
)

// enqueueOutboxTx appends a durable outbound message inside the caller's
// transaction, so the notification exists iff the business writes commit.
func enqueueOutboxTx(ctx context.Context, tx *sql.Tx, queueName string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (queue_name, body, headers, created_at)
		VALUES ($1, $2, '{}', NOW())
	`, queueName, body)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox message: %w", err)
	}
	return nil
}

// ReserveWithCreditTx claims a seat using the caller's earliest-expiring usable
// session book. Seat re-check, duplicate check, book selection and all three
// writes happen under row locks in one transaction. ErrNoUsableBook means
// nothing was mutated and the caller should fall back to the payment flow.
func (r *repository) ReserveWithCreditTx(ctx context.Context, userID string, sessionID int64, now time.Time) (*ReserveResult, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var spots int
	err = tx.QueryRowContext(ctx, `
		SELECT available_spots FROM sessions WHERE id = $1 FOR UPDATE
	`, sessionID).Scan(&spots)
	if err != nil {
		_ = tx.Rollback()
		return nil, ErrSessionNotFound
	}
	if spots <= 0 {
		_ = tx.Rollback()
		return nil, ErrNoCapacity
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM registrations
		WHERE user_id = $1 AND session_id = $2 AND status = 'confirmed'
	`, userID, sessionID).Scan(&existing)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to check duplicate registration: %w", err)
	}
	if existing > 0 {
		_ = tx.Rollback()
		return nil, ErrDuplicateRegistration
	}

	var book model.SessionBook
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, name, total_sessions, remaining_sessions, price, created_at, expires_at
		FROM session_books
		WHERE user_id = $1 AND remaining_sessions > 0 AND expires_at > $2
		ORDER BY expires_at ASC
		LIMIT 1
		FOR UPDATE
	`, userID, now).Scan(
		&book.ID, &book.UserID, &book.Name, &book.TotalSessions,
		&book.RemainingSessions, &book.Price, &book.CreatedAt, &book.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, ErrNoUsableBook
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to select session book: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE session_books SET remaining_sessions = remaining_sessions - 1 WHERE id = $1
	`, book.ID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to consume session book credit: %w", err)
	}
	book.RemainingSessions--

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET available_spots = available_spots - 1 WHERE id = $1
	`, sessionID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to decrement available spots: %w", err)
	}

	reg := &model.Registration{
		UserID:        userID,
		SessionID:     sessionID,
		SessionBookID: &book.ID,
		Status:        model.RegistrationConfirmed,
		RegisteredAt:  now,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO registrations (user_id, session_id, session_book_id, status, registered_at)
		VALUES ($1, $2, $3, 'confirmed', $4)
		RETURNING id
	`, userID, sessionID, book.ID, now).Scan(&reg.ID)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err, "registrations_confirmed_user_session_idx") {
			return nil, ErrDuplicateRegistration
		}
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}

	notice := dto.BookingNoticeMessage{
		Kind:           dto.NoticeReserved,
		UserID:         userID,
		RegistrationID: reg.ID,
		SessionID:      sessionID,
		SessionBookID:  book.ID,
	}
	if err := enqueueOutboxTx(ctx, tx, dto.QueueBookingNotices, notice); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &ReserveResult{Registration: reg, Book: &book}, nil
}

// CancelRegistrationTx releases a confirmed seat claim, restoring the seat and,
// for book-backed registrations, the consumed credit.
func (r *repository) CancelRegistrationTx(ctx context.Context, userID string, registrationID int64, now time.Time, asAdmin bool) (*model.Registration, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var (
		reg       model.Registration
		startTime time.Time
	)
	err = tx.QueryRowContext(ctx, `
		SELECT r.id, r.user_id, r.session_id, r.session_book_id, r.status, r.registered_at, s.start_time
		FROM registrations r
		JOIN sessions s ON s.id = r.session_id
		WHERE r.id = $1
		FOR UPDATE OF r
	`, registrationID).Scan(
		&reg.ID, &reg.UserID, &reg.SessionID, &reg.SessionBookID,
		&reg.Status, &reg.RegisteredAt, &startTime,
	)
	if err != nil {
		_ = tx.Rollback()
		return nil, ErrRegistrationNotFound
	}

	if !asAdmin && reg.UserID != userID {
		_ = tx.Rollback()
		return nil, ErrForbidden
	}
	if reg.Status != model.RegistrationConfirmed {
		_ = tx.Rollback()
		return nil, ErrAlreadyCancelled
	}
	if !startTime.After(now) {
		_ = tx.Rollback()
		return nil, ErrSessionPast
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE registrations SET status = 'cancelled', cancelled_at = $1 WHERE id = $2
	`, now, registrationID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to cancel registration: %w", err)
	}
	reg.Status = model.RegistrationCancelled
	reg.CancelledAt = &now

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET available_spots = available_spots + 1 WHERE id = $1
	`, reg.SessionID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to restore available spots: %w", err)
	}

	if reg.SessionBookID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE session_books SET remaining_sessions = remaining_sessions + 1 WHERE id = $1
		`, *reg.SessionBookID); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to restore session book credit: %w", err)
		}
	}

	notice := dto.BookingNoticeMessage{
		Kind:           dto.NoticeCancelled,
		UserID:         reg.UserID,
		RegistrationID: reg.ID,
		SessionID:      reg.SessionID,
	}
	if err := enqueueOutboxTx(ctx, tx, dto.QueueBookingNotices, notice); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation transaction: %w", err)
	}

	return &reg, nil
}

func (r *repository) GetRegistrationByID(ctx context.Context, id int64) (*model.Registration, error) {
	query := `
		SELECT id, user_id, session_id, session_book_id, status, registered_at, cancelled_at
		FROM registrations
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var reg model.Registration
	if err := row.Scan(
		&reg.ID, &reg.UserID, &reg.SessionID, &reg.SessionBookID,
		&reg.Status, &reg.RegisteredAt, &reg.CancelledAt,
	); err != nil {
		return nil, ErrRegistrationNotFound
	}
	return &reg, nil
}

func (r *repository) GetUserRegistrations(ctx context.Context, userID string) ([]model.Registration, error) {
	return r.queryRegistrations(ctx, `
		SELECT id, user_id, session_id, session_book_id, status, registered_at, cancelled_at
		FROM registrations
		WHERE user_id = $1
		ORDER BY registered_at ASC
	`, userID)
}

func (r *repository) GetSessionRegistrations(ctx context.Context, sessionID int64) ([]model.Registration, error) {
	return r.queryRegistrations(ctx, `
		SELECT id, user_id, session_id, session_book_id, status, registered_at, cancelled_at
		FROM registrations
		WHERE session_id = $1
		ORDER BY registered_at ASC
	`, sessionID)
}

func (r *repository) queryRegistrations(ctx context.Context, query string, arg interface{}) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(
			&reg.ID, &reg.UserID, &reg.SessionID, &reg.SessionBookID,
			&reg.Status, &reg.RegisteredAt, &reg.CancelledAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, reg)
	}

	return regs, rows.Err()
}
