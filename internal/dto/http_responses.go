package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	NotFound              = "NOT_FOUND"
	Forbidden             = "FORBIDDEN"
	Unauthorized          = "UNAUTHORIZED"
	AlreadyPast           = "ALREADY_PAST"
	NoCapacity            = "NO_CAPACITY"
	DuplicateRegistration = "DUPLICATE_REGISTRATION"
	AlreadyCancelled      = "ALREADY_CANCELLED"
	DurationMismatch      = "DURATION_MISMATCH"
	HasRegistrations      = "HAS_REGISTRATIONS"
	HasSessions           = "HAS_SESSIONS"
	SelfModification      = "SELF_MODIFICATION"
	MissingParameters     = "MISSING_PARAMETERS"
	PaymentNotCompleted   = "PAYMENT_NOT_COMPLETED"
	AmountMismatch        = "AMOUNT_MISMATCH"
	AlreadyProcessed      = "ALREADY_PROCESSED"
	GatewayError          = "GATEWAY_ERROR"
	EmailTaken            = "EMAIL_TAKEN"
	InvalidCredentials    = "INVALID_CREDENTIALS"
)

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func NotFoundError(c *ginext.Context, desc string) {
	c.JSON(404, Response{
		Status: "error",
		Error: &Error{
			Code: NotFound,
			Desc: desc,
		},
	})
}

func ForbiddenError(c *ginext.Context, desc string) {
	c.JSON(403, Response{
		Status: "error",
		Error: &Error{
			Code: Forbidden,
			Desc: desc,
		},
	})
}

func UnauthorizedError(c *ginext.Context, desc string) {
	c.JSON(401, Response{
		Status: "error",
		Error: &Error{
			Code: Unauthorized,
			Desc: desc,
		},
	})
}

func ConflictError(c *ginext.Context, code, desc string) {
	c.JSON(409, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func GatewayFailureError(c *ginext.Context, desc string) {
	c.JSON(502, Response{
		Status: "error",
		Error: &Error{
			Code: GatewayError,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}

// ---- auth ----

type SignUpRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=255"`
	LastName  string `json:"last_name" validate:"required,max=255"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles,omitempty"`
	Token     string   `json:"token,omitempty"`
	ExpiresIn int      `json:"expires_in,omitempty"`
}

// ---- catalog ----

type CreateCourseRequest struct {
	Name            string  `json:"name" validate:"required,max=255"`
	Description     string  `json:"description"`
	DurationMinutes int     `json:"duration_minutes" validate:"required,positive"`
	Price           float64 `json:"price" validate:"gte=0"`
	MaxParticipants int     `json:"max_participants" validate:"required,positive"`
	IsActive        bool    `json:"is_active"`
}

type CreateSessionRequest struct {
	CourseID  int64     `json:"course_id" validate:"required,positive64"`
	StartTime time.Time `json:"start_time" validate:"required,future"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}

type UpdateSessionRequest struct {
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
	Status    string    `json:"status" validate:"required,oneof=scheduled cancelled completed"`
}

type SessionResponse struct {
	ID             int64     `json:"id"`
	CourseID       int64     `json:"course_id"`
	CourseName     string    `json:"course_name,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	AvailableSpots int       `json:"available_spots"`
	Status         string    `json:"status"`
}

// ---- booking ----

type ReserveResponse struct {
	RegistrationID    int64  `json:"registration_id,omitempty"`
	SessionID         int64  `json:"session_id"`
	Status            string `json:"status,omitempty"`
	UsedSessionBook   bool   `json:"used_session_book"`
	RemainingSessions int    `json:"remaining_sessions,omitempty"`
	CheckoutURL       string `json:"checkout_url,omitempty"`
}

type RegistrationResponse struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"user_id"`
	SessionID     int64      `json:"session_id"`
	SessionBookID *int64     `json:"session_book_id,omitempty"`
	Status        string     `json:"status"`
	RegisteredAt  time.Time  `json:"registered_at"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

// ---- shop / payments ----

type CheckoutBookRequest struct {
	TotalSessions int `json:"total_sessions" validate:"required,positive"`
}

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

type PaymentConfirmedResponse struct {
	PaymentID         int64   `json:"payment_id"`
	ExternalPaymentID string  `json:"external_payment_id"`
	Amount            float64 `json:"amount"`
	RegistrationID    *int64  `json:"registration_id,omitempty"`
	SessionBookID     *int64  `json:"session_book_id,omitempty"`
	AlreadyProcessed  bool    `json:"already_processed"`
}

type SessionBookResponse struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	TotalSessions     int       `json:"total_sessions"`
	RemainingSessions int       `json:"remaining_sessions"`
	Price             float64   `json:"price"`
	ExpiresAt         time.Time `json:"expires_at"`
}

type BundleResponse struct {
	TotalSessions int     `json:"total_sessions"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Description   string  `json:"description,omitempty"`
}

type PaymentResponse struct {
	ID                int64     `json:"id"`
	Amount            float64   `json:"amount"`
	ExternalPaymentID string    `json:"external_payment_id"`
	RegistrationID    *int64    `json:"registration_id,omitempty"`
	SessionBookID     *int64    `json:"session_book_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type DashboardResponse struct {
	Registrations []RegistrationResponse `json:"registrations"`
	SessionBooks  []SessionBookResponse  `json:"session_books"`
	Payments      []PaymentResponse      `json:"payments"`
}

// ---- admin ----

type ToggleRoleResponse struct {
	UserID  string   `json:"user_id"`
	Roles   []string `json:"roles"`
	IsAdmin bool     `json:"is_admin"`
}

// ---- outbox / notifications ----

const QueueBookingNotices = "booking.notices"

const (
	NoticeReserved         = "reserved"
	NoticeCancelled        = "cancelled"
	NoticePaymentConfirmed = "payment_confirmed"
	NoticeBookPurchased    = "book_purchased"
)

// BookingNoticeMessage is the payload written to the outbox table and relayed
// to the broker; the notification worker resolves user/session details before
// mailing.
type BookingNoticeMessage struct {
	Kind           string `json:"kind"`
	UserID         string `json:"user_id"`
	RegistrationID int64  `json:"registration_id,omitempty"`
	SessionID      int64  `json:"session_id,omitempty"`
	SessionBookID  int64  `json:"session_book_id,omitempty"`
}
