package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coursebook/internal/dto"
	"coursebook/internal/model"
)

func (r *repository) GetPaymentByExternalID(ctx context.Context, externalID string) (*model.Payment, error) {
	query := `
		SELECT id, user_id, amount, external_payment_id, registration_id, session_book_id, created_at
		FROM payments
		WHERE external_payment_id = $1
	`
	row := r.db.QueryRowContext(ctx, query, externalID)

	var p model.Payment
	err := row.Scan(
		&p.ID, &p.UserID, &p.Amount, &p.ExternalPaymentID,
		&p.RegistrationID, &p.SessionBookID, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

// ConfirmSessionPaymentTx reconciles a gateway-confirmed session payment:
// seat re-check under lock, confirmed registration, payment row and seat
// decrement commit together. The unique external_payment_id constraint closes
// the race between two concurrent confirmations of the same transaction;
// losers surface ErrPaymentProcessed.
func (r *repository) ConfirmSessionPaymentTx(ctx context.Context, userID string, sessionID int64, amount float64, externalID string, now time.Time) (*ConfirmResult, error) {
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

	reg := &model.Registration{
		UserID:       userID,
		SessionID:    sessionID,
		Status:       model.RegistrationConfirmed,
		RegisteredAt: now,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO registrations (user_id, session_id, status, registered_at)
		VALUES ($1, $2, 'confirmed', $3)
		RETURNING id
	`, userID, sessionID, now).Scan(&reg.ID)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err, "registrations_confirmed_user_session_idx") {
			return nil, ErrDuplicateRegistration
		}
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}

	pay := &model.Payment{
		UserID:            userID,
		Amount:            amount,
		ExternalPaymentID: externalID,
		RegistrationID:    &reg.ID,
		CreatedAt:         now,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO payments (user_id, amount, external_payment_id, registration_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, userID, amount, externalID, reg.ID, now).Scan(&pay.ID)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err, "payments_external_payment_id_key") {
			return nil, ErrPaymentProcessed
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET available_spots = available_spots - 1 WHERE id = $1
	`, sessionID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to decrement available spots: %w", err)
	}

	notice := dto.BookingNoticeMessage{
		Kind:           dto.NoticePaymentConfirmed,
		UserID:         userID,
		RegistrationID: reg.ID,
		SessionID:      sessionID,
	}
	if err := enqueueOutboxTx(ctx, tx, dto.QueueBookingNotices, notice); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &ConfirmResult{Registration: reg, Payment: pay}, nil
}

// ConfirmCreditPurchaseTx creates the purchased session book and its payment
// row together, with the same idempotency guard as session payments.
func (r *repository) ConfirmCreditPurchaseTx(ctx context.Context, userID, bookName string, totalSessions int, price float64, externalID string, now time.Time) (*ConfirmResult, error) {
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

	book := &model.SessionBook{
		UserID:            userID,
		Name:              bookName,
		TotalSessions:     totalSessions,
		RemainingSessions: totalSessions,
		Price:             price,
		CreatedAt:         now,
		ExpiresAt:         now.AddDate(1, 0, 0),
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO session_books (user_id, name, total_sessions, remaining_sessions, price, created_at, expires_at)
		VALUES ($1, $2, $3, $3, $4, $5, $6)
		RETURNING id
	`, userID, bookName, totalSessions, price, now, book.ExpiresAt).Scan(&book.ID)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to create session book: %w", err)
	}

	pay := &model.Payment{
		UserID:            userID,
		Amount:            price,
		ExternalPaymentID: externalID,
		SessionBookID:     &book.ID,
		CreatedAt:         now,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO payments (user_id, amount, external_payment_id, session_book_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, userID, price, externalID, book.ID, now).Scan(&pay.ID)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err, "payments_external_payment_id_key") {
			return nil, ErrPaymentProcessed
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	notice := dto.BookingNoticeMessage{
		Kind:          dto.NoticeBookPurchased,
		UserID:        userID,
		SessionBookID: book.ID,
	}
	if err := enqueueOutboxTx(ctx, tx, dto.QueueBookingNotices, notice); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &ConfirmResult{Book: book, Payment: pay}, nil
}

func (r *repository) GetUserPayments(ctx context.Context, userID string) ([]model.Payment, error) {
	query := `
		SELECT id, user_id, amount, external_payment_id, registration_id, session_book_id, created_at
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Amount, &p.ExternalPaymentID,
			&p.RegistrationID, &p.SessionBookID, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}

	return payments, rows.Err()
}

func (r *repository) GetUserSessionBooks(ctx context.Context, userID string) ([]model.SessionBook, error) {
	query := `
		SELECT id, user_id, name, total_sessions, remaining_sessions, price, created_at, expires_at
		FROM session_books
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session books: %w", err)
	}
	defer rows.Close()

	var books []model.SessionBook
	for rows.Next() {
		var b model.SessionBook
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.Name, &b.TotalSessions,
			&b.RemainingSessions, &b.Price, &b.CreatedAt, &b.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session book: %w", err)
		}
		books = append(books, b)
	}

	return books, rows.Err()
}
