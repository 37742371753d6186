package model

import "time"

const (
	SessionScheduled = "scheduled"
	SessionCancelled = "cancelled"
	SessionCompleted = "completed"

	RegistrationConfirmed = "confirmed"
	RegistrationCancelled = "cancelled"

	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

type Course struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Description     string    `db:"description,omitempty" json:"description,omitempty"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Price           float64   `db:"price" json:"price"`
	MaxParticipants int       `db:"max_participants" json:"max_participants"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

type Session struct {
	ID             int64     `db:"id" json:"id"`
	CourseID       int64     `db:"course_id" json:"course_id"`
	StartTime      time.Time `db:"start_time" json:"start_time"`
	EndTime        time.Time `db:"end_time" json:"end_time"`
	AvailableSpots int       `db:"available_spots" json:"available_spots"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type Registration struct {
	ID            int64      `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	SessionID     int64      `db:"session_id" json:"session_id"`
	SessionBookID *int64     `db:"session_book_id,omitempty" json:"session_book_id,omitempty"`
	Status        string     `db:"status" json:"status"`
	RegisteredAt  time.Time  `db:"registered_at" json:"registered_at"`
	CancelledAt   *time.Time `db:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
}

// SessionBook is a prepaid bundle of session credits, redeemed one per
// reservation until exhausted or expired.
type SessionBook struct {
	ID                int64     `db:"id" json:"id"`
	UserID            string    `db:"user_id" json:"user_id"`
	Name              string    `db:"name" json:"name"`
	TotalSessions     int       `db:"total_sessions" json:"total_sessions"`
	RemainingSessions int       `db:"remaining_sessions" json:"remaining_sessions"`
	Price             float64   `db:"price" json:"price"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	ExpiresAt         time.Time `db:"expires_at" json:"expires_at"`
}

// Payment records one processed gateway transaction. ExternalPaymentID is
// unique in storage, which is what makes confirmation idempotent. Exactly one
// of RegistrationID and SessionBookID is set.
type Payment struct {
	ID                int64     `db:"id" json:"id"`
	UserID            string    `db:"user_id" json:"user_id"`
	Amount            float64   `db:"amount" json:"amount"`
	ExternalPaymentID string    `db:"external_payment_id" json:"external_payment_id"`
	RegistrationID    *int64    `db:"registration_id,omitempty" json:"registration_id,omitempty"`
	SessionBookID     *int64    `db:"session_book_id,omitempty" json:"session_book_id,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Roles        []string  `db:"roles" json:"roles"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// OutboxMessage is a durable outbound-message row. Business transactions
// append rows; the dispatcher publishes them to the broker and stamps
// DispatchedAt.
type OutboxMessage struct {
	ID           int64      `db:"id" json:"id"`
	QueueName    string     `db:"queue_name" json:"queue_name"`
	Body         []byte     `db:"body" json:"body"`
	Headers      []byte     `db:"headers,omitempty" json:"headers,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	DispatchedAt *time.Time `db:"dispatched_at,omitempty" json:"dispatched_at,omitempty"`
}
