package main

import (
	"log"
	"strings"
	"time"

	config "github.com/anjiri1684/course_market/configs"
	"github.com/anjiri1684/course_market/database"
	"github.com/anjiri1684/course_market/handlers"
	"github.com/anjiri1684/course_market/jobs"
	"github.com/anjiri1684/course_market/notifications"
	"github.com/anjiri1684/course_market/payments"
	"github.com/anjiri1684/course_market/routes"
	"github.com/anjiri1684/course_market/services"
	"github.com/anjiri1684/course_market/utils"
	"github.com/anjiri1684/course_market/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	settings := config.Load()

	db, err := database.ConnectDB(settings)
	if err != nil {
		log.Fatalf("🔥 %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("🔥 Migration failed: %v", err)
	}

	var locker utils.Locker = utils.NewKeyedMutex()
	if settings.RedisURL != "" {
		client, err := utils.ConnectRedis(settings.RedisURL)
		if err != nil {
			log.Fatalf("🔥 %v", err)
		}
		locker = utils.NewRedisLocker(client)
		log.Println("✅ Using Redis for order and withdrawal locks")
	}

	var providers []payments.Provider
	if settings.StripeSecretKey != "" {
		providers = append(providers, payments.NewStripeProvider(payments.StripeConfig{
			APIBase:       settings.StripeAPIBase,
			SecretKey:     settings.StripeSecretKey,
			WebhookSecret: settings.StripeWebhookSecret,
			SuccessURL:    settings.CheckoutSuccessURL,
			CancelURL:     settings.CheckoutCancelURL,
		}))
	}
	var payouts payments.PayoutProvider
	if settings.PayPalClientID != "" {
		paypal := payments.NewPayPalClient(payments.PayPalConfig{
			APIBase:      settings.PayPalAPIBase,
			ClientID:     settings.PayPalClientID,
			ClientSecret: settings.PayPalClientSecret,
			WebhookID:    settings.PayPalWebhookID,
			ReturnURL:    settings.CheckoutSuccessURL,
			CancelURL:    settings.CheckoutCancelURL,
		})
		providers = append(providers, payments.NewPayPalProvider(paypal))
		payouts = payments.NewPayPalPayouts(paypal)
	}
	if settings.KcbAPIKey != "" {
		providers = append(providers, payments.NewMpesaProvider(payments.MpesaConfig{
			APIBase:         settings.KcbAPIBase,
			TokenURL:        settings.KcbTokenURL,
			APIKey:          settings.KcbAPIKey,
			APISecret:       settings.KcbAPISecret,
			AccountNumber:   settings.KcbAccountNumber,
			RouteCode:       settings.KcbRouteCode,
			CallbackURL:     strings.TrimRight(settings.WebhookBaseURL, "/") + "/api/v1/webhooks/mpesa",
			TransactionDesc: settings.KcbTransactionDesc,
			WebhookSecret:   settings.KcbWebhookSecret,
		}))
	}
	if len(providers) == 0 {
		log.Println("Warning: no payment providers configured")
	}

	hub := websocket.NewHub()
	var mailer notifications.Mailer
	if brevo := notifications.NewBrevoService(settings.BrevoAPIKey, settings.EmailSender, settings.EmailSenderName); brevo != nil {
		mailer = brevo
	}
	dispatcher := notifications.NewDispatcher(db, mailer, hub)

	var (
		renderer services.PDFRenderer
		uploader services.FileUploader
	)
	if settings.InvoicePDF && settings.CloudinaryURL != "" {
		cld, err := services.NewCloudinaryUploader(settings.CloudinaryURL, "course_market")
		if err != nil {
			log.Fatalf("🔥 %v", err)
		}
		renderer, uploader = services.ChromeRenderer{}, cld
	}

	rates := services.NewExchangeRateService(settings.ExchangeRateAPIKey, settings.ExchangeRateBaseURL)
	catalog := services.NewGormCatalog(db)
	vouchers := services.NewVoucherService(db, catalog)
	orders := services.NewOrderService(db, catalog, vouchers, locker, settings.PlatformCurrency)
	wallet := services.NewWalletService(db, settings.PlatformFeePercent, settings.PlatformCurrency)
	invoices := services.NewInvoiceService(db, renderer, uploader)
	settlement := services.NewSettlementService(db, locker, orders, vouchers, wallet,
		services.NewGormEnrollmentSink(), invoices, dispatcher)
	paymentService := services.NewPaymentService(db, payments.NewRegistry(providers...), rates, settlement, locker)
	withdrawals := services.NewWithdrawalService(db, wallet, rates, payouts, locker, dispatcher,
		settings.WithdrawalMinimums, settings.PayoutCurrency)

	c := cron.New()
	c.AddFunc("@every 6h", jobs.RefreshRates(rates))
	c.AddFunc("*/5 * * * *", jobs.ExpireStaleOrders(orders, settings.OrderTTL))
	go c.Start()
	log.Println("✅ Cron jobs for rates and order expiry scheduled successfully.")
	if settings.ExchangeRateAPIKey != "" {
		go jobs.RefreshRates(rates)()
	}

	app := fiber.New(fiber.Config{
		Prefork:       false,
		AppName:       "Course Market",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler:  handlers.ErrorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Africa/Nairobi",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Course Market API",
		})
	})

	h := &handlers.Handler{
		Orders:      orders,
		Payments:    paymentService,
		Vouchers:    vouchers,
		Wallet:      wallet,
		Withdrawals: withdrawals,
		Rates:       rates,
		Hub:         hub,
		JWTSecret:   settings.JWTSecret,
	}
	routes.PublicRoutes(app, h)
	routes.PaymentRoutes(app, h)
	routes.OrderRoutes(app, h)
	routes.InstructorRoutes(app, h)
	routes.AdminRoutes(app, h)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Printf("✅ Server is running on port %s", settings.Port)
	if err := app.Listen(":" + settings.Port); err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
