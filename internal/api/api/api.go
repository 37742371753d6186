package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"coursebook/cmd/middleware"
	"coursebook/internal/service"
)

type Routers struct {
	Service   service.Service
	JWTSecret []byte
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	apiGroup := app.Group("/v1")

	// Public catalog
	apiGroup.GET("/courses", r.Service.GetCourses)
	apiGroup.GET("/courses/:id", r.Service.GetCourse)
	apiGroup.GET("/sessions", r.Service.GetSessions)
	apiGroup.GET("/shop/bundles", r.Service.ListBundles)

	// Auth
	apiGroup.POST("/auth/signup", r.Service.SignUp)
	apiGroup.POST("/auth/login", r.Service.Login)

	// Authenticated booking and shop surface
	authGroup := apiGroup.Group("")
	authGroup.Use(middleware.Auth(r.JWTSecret))
	authGroup.POST("/sessions/:sessionId/reserve", r.Service.Reserve)
	authGroup.POST("/registrations/:id/cancel", r.Service.Cancel)
	authGroup.GET("/booking/payment-success", r.Service.PaymentReturn)
	authGroup.GET("/dashboard", r.Service.Dashboard)
	authGroup.POST("/shop/checkout", r.Service.CheckoutBundle)
	authGroup.GET("/shop/success", r.Service.ShopReturn)

	// Admin surface
	adminGroup := apiGroup.Group("/admin")
	adminGroup.Use(middleware.Auth(r.JWTSecret), middleware.AdminOnly())
	adminGroup.GET("/courses", r.Service.AdminListCourses)
	adminGroup.POST("/courses", r.Service.AdminCreateCourse)
	adminGroup.PUT("/courses/:id", r.Service.AdminUpdateCourse)
	adminGroup.DELETE("/courses/:id", r.Service.AdminDeleteCourse)
	adminGroup.POST("/sessions", r.Service.AdminCreateSession)
	adminGroup.PUT("/sessions/:id", r.Service.AdminUpdateSession)
	adminGroup.DELETE("/sessions/:id", r.Service.AdminDeleteSession)
	adminGroup.GET("/sessions/:id/registrations", r.Service.AdminSessionRegistrations)
	adminGroup.POST("/registrations/:id/cancel", r.Service.AdminCancelRegistration)
	adminGroup.GET("/users", r.Service.AdminListUsers)
	adminGroup.POST("/users/:id/toggle-role", r.Service.AdminToggleRole)

	return app
}
