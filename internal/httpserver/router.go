package httpserver

import (
	"context"
	"errors"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/service/address"
	cartsvc "storefront-checkout/internal/service/cart"
	"storefront-checkout/internal/service/checkout"
	"storefront-checkout/internal/service/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type projectRepo interface {
	GetByKey(ctx context.Context, key string) (*domain.Project, error)
}

type sessionService interface {
	IssueAnonymous(projectID string) (accessToken, refreshToken, anonymousID string, err error)
	Refresh(projectID, refreshToken string) (string, error)
	Verify(projectID, token string) (session.Claims, error)
	AccessTTLSeconds() int
}

type cartService interface {
	Create(ctx context.Context, projectID string, owner domain.CartOwner, currency string) (*domain.Cart, error)
	Get(ctx context.Context, projectID string, owner domain.CartOwner, id string) (*domain.Cart, error)
	Active(ctx context.Context, projectID string, owner domain.CartOwner) (*domain.Cart, error)
	Update(ctx context.Context, projectID string, owner domain.CartOwner, cartID string, in cartsvc.UpdateInput) (*domain.Cart, error)
}

type checkoutService interface {
	PlaceOrder(ctx context.Context, projectID string, sess checkout.Session, req checkout.Request) (*domain.Order, error)
	GetOrder(ctx context.Context, projectID, customerID, orderID string) (*domain.Order, error)
}

type addressService interface {
	Save(ctx context.Context, ownerID string, typ domain.AddressType, in address.Input) (*domain.Address, error)
	SetDefault(ctx context.Context, ownerID, addressID string) (*domain.Address, error)
	Archive(ctx context.Context, ownerID, addressID string) (*domain.Address, error)
	Restore(ctx context.Context, ownerID, addressID string) (*domain.Address, error)
	Delete(ctx context.Context, ownerID, addressID string) (bool, error)
	List(ctx context.Context, ownerID string, typ domain.AddressType, includeArchived bool) ([]domain.Address, error)
	Versions(ctx context.Context, ownerID, addressID string) ([]domain.AddressVersion, error)
}

// Deps are the services the routes call into.
type Deps struct {
	ProjectRepo projectRepo
	Sessions    sessionService
	CartSvc     cartService
	CheckoutSvc checkoutService
	AddressSvc  addressService
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, db Pinger, deps Deps) (*gin.Engine, error) {
	if deps.ProjectRepo == nil || deps.Sessions == nil {
		return nil, errors.New("project repository and session service are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger, deps.Metrics))
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	h := &handlers{deps: deps, logger: logger}
	project := router.Group("/:projectKey", projectMiddleware(deps.ProjectRepo), sessionMiddleware(deps.Sessions))
	{
		project.POST("/anonymous/token", h.issueAnonymousToken)
		project.POST("/anonymous/refresh", h.refreshToken)

		if deps.CartSvc != nil {
			project.POST("/carts", h.createCart)
			project.GET("/carts/active", h.activeCart)
			project.GET("/carts/:cartID", h.getCart)
			project.POST("/carts/:cartID", h.updateCart)
			project.POST("/carts/:cartID/line-items", h.addLineItem)
			project.PATCH("/carts/:cartID/line-items/:lineID", h.changeLineItem)
		}

		if deps.CheckoutSvc != nil {
			project.POST("/checkout", h.placeOrder)
			project.GET("/orders/:orderID", h.getOrder)
		}

		if deps.AddressSvc != nil {
			me := project.Group("/me", requireCustomer())
			me.GET("/addresses", h.listAddresses)
			me.POST("/addresses", h.saveAddress)
			me.GET("/addresses/:addressID/versions", h.addressVersions)
			me.POST("/addresses/:addressID/default", h.setDefaultAddress)
			me.POST("/addresses/:addressID/archive", h.archiveAddress)
			me.POST("/addresses/:addressID/restore", h.restoreAddress)
			me.DELETE("/addresses/:addressID", h.deleteAddress)
		}
	}

	return router, nil
}

type handlers struct {
	deps   Deps
	logger *zap.Logger
}
