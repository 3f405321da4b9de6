package provider

import (
	"time"

	"github.com/sitegrade/sitegrade/internal/cache"
	"github.com/sitegrade/sitegrade/internal/config"
	"github.com/sitegrade/sitegrade/internal/fetcher"
	"github.com/sitegrade/sitegrade/internal/logger"
	"github.com/sitegrade/sitegrade/internal/models"
	"github.com/sitegrade/sitegrade/internal/payment/razorpay"
	"github.com/sitegrade/sitegrade/internal/queue"
	"github.com/sitegrade/sitegrade/internal/repository"
	"github.com/sitegrade/sitegrade/internal/scanner"
	"github.com/sitegrade/sitegrade/internal/service"
	"github.com/sitegrade/sitegrade/internal/urlguard"

	"github.com/shopspring/decimal"
)

// Container is the dependency injection container.
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	AuditRepo       repository.AuditRepository
	CouponRepo      repository.CouponRepository
	ReservationRepo repository.ReservationRepository
	RedemptionRepo  repository.RedemptionRepository
	Atomic          repository.AtomicRunner

	// Scan pipeline
	Guard        *urlguard.Guard
	Fetcher      *fetcher.Fetcher
	ScanPipeline *scanner.Pipeline

	// Services
	AuditService   *service.AuditService
	CouponService  *service.CouponService
	UnlockService  *service.UnlockService
	PaymentService *service.PaymentService
}

// NewContainer wires up repositories and services.
func NewContainer(cfg *config.Config) *Container {
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	c.initRepositories()
	c.initPipeline()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AuditRepo = repository.NewAuditRepository(db)
	c.CouponRepo = repository.NewCouponRepository(db)
	c.ReservationRepo = repository.NewReservationRepository(db)
	c.RedemptionRepo = repository.NewRedemptionRepository(db)
	c.Atomic = repository.NewAtomicRunner(db)
}

func (c *Container) initPipeline() {
	c.Guard = urlguard.New()
	c.Fetcher = fetcher.New(c.Guard, nil, fetcher.Config{
		Timeout:      c.Config.Scan.FetchTimeout(),
		MaxBytes:     c.Config.Scan.MaxHTMLBytes,
		MinBytes:     c.Config.Scan.MinHTMLBytes,
		MaxRedirects: c.Config.Scan.MaxRedirects,
		UserAgent:    c.Config.Scan.UserAgent,
	})
	c.ScanPipeline = scanner.NewPipeline(c.Fetcher)
}

func (c *Container) initServices() {
	basePrice := parseBasePrice(c.Config.Pricing.BasePriceINR)

	c.UnlockService = service.NewUnlockService(c.AuditRepo, c.CouponRepo, c.ReservationRepo, c.RedemptionRepo, c.Atomic)
	c.AuditService = service.NewAuditService(c.AuditRepo, c.Guard, c.UnlockService, basePrice)
	c.CouponService = service.NewCouponService(
		c.AuditRepo,
		c.CouponRepo,
		c.ReservationRepo,
		c.Atomic,
		c.QueueClient,
		c.UnlockService,
		c.Config.Coupon.ReservationTTL(),
	)

	gateway := razorpay.New(razorpay.Config{
		GatewayURL:    c.Config.Payment.GatewayURL,
		KeyID:         c.Config.Payment.KeyID,
		KeySecret:     c.Config.Payment.KeySecret,
		WebhookSecret: c.Config.Payment.WebhookSecret,
		Timeout:       time.Duration(c.Config.Payment.TimeoutMS) * time.Millisecond,
	}, nil)
	c.PaymentService = service.NewPaymentService(
		c.AuditRepo,
		c.UnlockService,
		gateway,
		c.Config.Payment.KeyID,
		c.Config.Payment.KeySecret,
		c.Config.Payment.WebhookSecret,
		c.Config.Pricing.Currency,
	)
}

func parseBasePrice(raw string) models.Money {
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		logger.Warnw("provider_base_price_invalid", "value", raw, "fallback", "499")
		return models.NewMoneyFromInt(499)
	}
	return models.NewMoneyFromDecimal(d)
}
