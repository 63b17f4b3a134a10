package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/payments"
	"github.com/glowmane/api/internal/platform/config"
	"github.com/glowmane/api/internal/repositories"
	"github.com/glowmane/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing   *services.CartPricingEngine
	Cart      services.CartService
	Checkout  services.CheckoutService
	Orders    services.OrderService
	Refunds   services.RefundService
	Coupons   services.CouponService
	Catalog   services.CatalogService
	Inventory services.InventoryService
	Reviews   services.ReviewService
	Customers services.CustomerService
	Wishlist  services.WishlistService
	Reports   services.ReportService
	Counters  services.CounterService
	System    services.SystemService
	Audit     services.AuditLogService
}

// Infrastructure carries the externally constructed adapters the service layer
// depends on. Nil fields disable the services that need them.
type Infrastructure struct {
	Payments *payments.Manager
	Events   services.OrderEventPublisher
	Uploader services.ReportUploader
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring will provide real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services
	if reg == nil {
		return svc, nil
	}

	if auditRepo := reg.AuditLogs(); auditRepo != nil {
		auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
			Repository: auditRepo,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.Audit = auditSvc
	}

	counterRepo := reg.Counters()
	if counterRepo != nil {
		counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
			Repository: counterRepo,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build counter service: %w", err)
		}
		svc.Counters = counterSvc
	}

	if inventoryRepo := reg.Inventory(); inventoryRepo != nil {
		inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
			Repository: inventoryRepo,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build inventory service: %w", err)
		}
		svc.Inventory = inventorySvc
	}

	if couponRepo := reg.Coupons(); couponRepo != nil {
		couponSvc, err := services.NewCouponService(services.CouponServiceDeps{
			Coupons: couponRepo,
			Clock:   time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build coupon service: %w", err)
		}
		svc.Coupons = couponSvc
	}

	if productRepo := reg.Products(); productRepo != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Products:   productRepo,
			Categories: reg.Categories(),
			Audit:      svc.Audit,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc
	}

	if customerRepo := reg.Customers(); customerRepo != nil {
		customerSvc, err := services.NewCustomerService(services.CustomerServiceDeps{
			Repository: customerRepo,
			Audit:      svc.Audit,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build customer service: %w", err)
		}
		svc.Customers = customerSvc
	}

	if wishlistRepo := reg.Wishlists(); wishlistRepo != nil && svc.Catalog != nil {
		wishlistSvc, err := services.NewWishlistService(services.WishlistServiceDeps{
			Repository: wishlistRepo,
			Catalog:    svc.Catalog,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build wishlist service: %w", err)
		}
		svc.Wishlist = wishlistSvc
	}

	if reviewRepo := reg.Reviews(); reviewRepo != nil {
		reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
			Reviews: reviewRepo,
			Catalog: svc.Catalog,
			Audit:   svc.Audit,
			Clock:   time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build review service: %w", err)
		}
		svc.Reviews = reviewSvc
	}

	engine, err := services.NewCartPricingEngine(services.CartPricingEngineDeps{
		Config: pricingConfig(cfg.Pricing),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart pricing engine: %w", err)
	}
	svc.Pricing = engine

	if cartRepo := reg.Carts(); cartRepo != nil && svc.Catalog != nil {
		cartSvc, err := services.NewCartService(services.CartServiceDeps{
			Repository:      cartRepo,
			Catalog:         svc.Catalog,
			Coupons:         svc.Coupons,
			Stock:           svc.Inventory,
			Engine:          engine,
			Clock:           time.Now,
			DefaultCurrency: cfg.Pricing.Currency,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build cart service: %w", err)
		}
		svc.Cart = cartSvc
	}

	ordersRepo := reg.Orders()
	if ordersRepo != nil && svc.Counters != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Repository: ordersRepo,
			Numbers:    svc.Counters,
			UnitOfWork: reg,
			Events:     infra.Events,
			Audit:      svc.Audit,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if svc.Cart != nil && svc.Orders != nil && infra.Payments != nil {
		checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Carts:    svc.Cart,
			Catalog:  svc.Catalog,
			Engine:   engine,
			Orders:   svc.Orders,
			Payments: infra.Payments,
			Clock:    time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc
	}

	if svc.Orders != nil && infra.Payments != nil {
		refundSvc, err := services.NewRefundService(services.RefundServiceDeps{
			Orders:   svc.Orders,
			Payments: infra.Payments,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build refund service: %w", err)
		}
		svc.Refunds = refundSvc
	}

	if ordersRepo != nil && infra.Uploader != nil {
		reportSvc, err := services.NewReportService(services.ReportServiceDeps{
			Orders:       ordersRepo,
			Uploader:     infra.Uploader,
			ExportBucket: cfg.Storage.ExportsBucket,
			Currency:     cfg.Pricing.Currency,
			Clock:        time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build report service: %w", err)
		}
		svc.Reports = reportSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func pricingConfig(cfg config.PricingConfig) services.PricingConfig {
	return services.PricingConfig{
		TaxRate:  cfg.TaxRate,
		Currency: cfg.Currency,
		ShippingRates: map[services.ShippingMethod]services.ShippingRate{
			domain.ShippingStandard: {
				Method:        domain.ShippingStandard,
				Rate:          cfg.StandardShippingRate,
				FreeThreshold: cfg.StandardFreeThreshold,
			},
			domain.ShippingExpress: {
				Method:        domain.ShippingExpress,
				Rate:          cfg.ExpressShippingRate,
				FreeThreshold: cfg.ExpressFreeThreshold,
			},
			domain.ShippingPickup: {
				Method: domain.ShippingPickup,
			},
		},
		DefaultMethod: domain.ShippingStandard,
	}
}
