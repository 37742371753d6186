package service

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"coursebook/internal/dto"
	"coursebook/internal/gateway"
	"coursebook/internal/repo"
)

type Service interface {
	// Auth
	SignUp(ctx *ginext.Context)
	Login(ctx *ginext.Context)

	// Public catalog
	GetCourses(ctx *ginext.Context)
	GetCourse(ctx *ginext.Context)
	GetSessions(ctx *ginext.Context)

	// Booking
	Reserve(ctx *ginext.Context)
	Cancel(ctx *ginext.Context)
	PaymentReturn(ctx *ginext.Context)
	Dashboard(ctx *ginext.Context)

	// Shop
	ListBundles(ctx *ginext.Context)
	CheckoutBundle(ctx *ginext.Context)
	ShopReturn(ctx *ginext.Context)

	// Admin
	AdminCreateCourse(ctx *ginext.Context)
	AdminUpdateCourse(ctx *ginext.Context)
	AdminDeleteCourse(ctx *ginext.Context)
	AdminListCourses(ctx *ginext.Context)
	AdminCreateSession(ctx *ginext.Context)
	AdminUpdateSession(ctx *ginext.Context)
	AdminDeleteSession(ctx *ginext.Context)
	AdminSessionRegistrations(ctx *ginext.Context)
	AdminCancelRegistration(ctx *ginext.Context)
	AdminListUsers(ctx *ginext.Context)
	AdminToggleRole(ctx *ginext.Context)
}

// Config carries the booking-surface settings assembled in cmd/buildcfg.
type Config struct {
	BaseURL   string
	Currency  string
	Location  *time.Location
	JWTSecret []byte
	TokenTTL  time.Duration
}

type service struct {
	repo     repo.Repository
	log      *zerolog.Logger
	checkout gateway.Checkout
	cfg      Config
}

func NewService(repository repo.Repository, logger *zerolog.Logger, checkout gateway.Checkout, cfg Config) Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &service{
		repo:     repository,
		log:      logger,
		checkout: checkout,
		cfg:      cfg,
	}
}

// now is the business clock: all "already past" decisions are made in the
// studio's timezone.
func (s *service) now() time.Time {
	return time.Now().In(s.cfg.Location)
}

func amountCents(price float64) int64 {
	return int64(math.Round(price * 100))
}

// Bundle is one purchasable credit package. The catalog is server-owned:
// client input selects a size, never a price.
type Bundle struct {
	Name          string
	TotalSessions int
	Price         float64
	Description   string
}

var bundleCatalog = map[int]Bundle{
	10: {Name: "10-session book", TotalSessions: 10, Price: 200.00, Description: "Ideal to get started"},
	20: {Name: "20-session book", TotalSessions: 20, Price: 380.00, Description: "Most popular"},
	30: {Name: "30-session book", TotalSessions: 30, Price: 520.00, Description: "Best value"},
}

func bundleFor(totalSessions int) (Bundle, bool) {
	b, ok := bundleCatalog[totalSessions]
	return b, ok
}

// callerID returns the authenticated user id placed in the context by the
// auth middleware.
func callerID(ctx *ginext.Context) string {
	return ctx.GetString("userId")
}

// respondRepoError maps storage sentinels shared across handlers; handlers
// deal with their operation-specific sentinels before falling through here.
func (s *service) respondRepoError(ctx *ginext.Context, err error) {
	switch {
	case errors.Is(err, repo.ErrCourseNotFound):
		dto.NotFoundError(ctx, "Course not found")
	case errors.Is(err, repo.ErrSessionNotFound):
		dto.NotFoundError(ctx, "Session not found")
	case errors.Is(err, repo.ErrRegistrationNotFound):
		dto.NotFoundError(ctx, "Registration not found")
	case errors.Is(err, repo.ErrUserNotFound):
		dto.NotFoundError(ctx, "User not found")
	default:
		s.log.Error().Err(err).Msg("unexpected repository error")
		dto.InternalServerError(ctx)
	}
}
