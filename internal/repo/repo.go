package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"coursebook/internal/model"
)

var (
	ErrCourseNotFound        = errors.New("course not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrNoCapacity            = errors.New("no available spots")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrNoUsableBook          = errors.New("no usable session book")
	ErrForbidden             = errors.New("registration belongs to another user")
	ErrAlreadyCancelled      = errors.New("registration already cancelled")
	ErrSessionPast           = errors.New("session already started")
	ErrHasRegistrations      = errors.New("session has registrations")
	ErrHasSessions           = errors.New("course has sessions")
	ErrPaymentProcessed      = errors.New("payment already processed")
	ErrEmailTaken            = errors.New("email already registered")
)

// ReserveResult is what a successful credit-backed reservation produced.
type ReserveResult struct {
	Registration *model.Registration
	Book         *model.SessionBook
}

// ConfirmResult is what a successful payment confirmation produced.
type ConfirmResult struct {
	Registration *model.Registration
	Book         *model.SessionBook
	Payment      *model.Payment
}

type Repository interface {
	// Courses
	CreateCourse(ctx context.Context, c *model.Course) (int64, error)
	UpdateCourse(ctx context.Context, c *model.Course) error
	DeleteCourse(ctx context.Context, id int64) error
	GetCourseByID(ctx context.Context, id int64) (*model.Course, error)
	GetCourses(ctx context.Context, onlyActive bool) ([]model.Course, error)

	// Sessions
	CreateSession(ctx context.Context, s *model.Session) (int64, error)
	UpdateSession(ctx context.Context, s *model.Session) error
	DeleteSession(ctx context.Context, id int64) error
	GetSessionByID(ctx context.Context, id int64) (*model.Session, error)
	GetUpcomingSessions(ctx context.Context, courseID int64, day *time.Time, now time.Time) ([]model.Session, error)

	// Registrations
	ReserveWithCreditTx(ctx context.Context, userID string, sessionID int64, now time.Time) (*ReserveResult, error)
	CancelRegistrationTx(ctx context.Context, userID string, registrationID int64, now time.Time, asAdmin bool) (*model.Registration, error)
	GetRegistrationByID(ctx context.Context, id int64) (*model.Registration, error)
	GetUserRegistrations(ctx context.Context, userID string) ([]model.Registration, error)
	GetSessionRegistrations(ctx context.Context, sessionID int64) ([]model.Registration, error)

	// Payments
	GetPaymentByExternalID(ctx context.Context, externalID string) (*model.Payment, error)
	ConfirmSessionPaymentTx(ctx context.Context, userID string, sessionID int64, amount float64, externalID string, now time.Time) (*ConfirmResult, error)
	ConfirmCreditPurchaseTx(ctx context.Context, userID, bookName string, totalSessions int, price float64, externalID string, now time.Time) (*ConfirmResult, error)
	GetUserPayments(ctx context.Context, userID string) ([]model.Payment, error)

	// Session books
	GetUserSessionBooks(ctx context.Context, userID string) ([]model.SessionBook, error)

	// Users
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetAllUsers(ctx context.Context) ([]model.User, error)
	SetUserRoles(ctx context.Context, userID string, roles []string) error

	// Outbox
	FetchUndispatched(ctx context.Context, limit int) ([]model.OutboxMessage, error)
	MarkDispatched(ctx context.Context, id int64) error

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

// isUniqueViolation reports whether err is a postgres unique-constraint error,
// optionally on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
