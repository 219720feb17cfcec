package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Syed-Nuhad/automart/common/logger"
	"github.com/Syed-Nuhad/automart/config"
	"github.com/Syed-Nuhad/automart/controllers"
	"github.com/Syed-Nuhad/automart/database"
	"github.com/Syed-Nuhad/automart/models"
	"github.com/Syed-Nuhad/automart/repository"
	"github.com/Syed-Nuhad/automart/routes"
	"github.com/Syed-Nuhad/automart/services"

	aws_pkg "github.com/Syed-Nuhad/automart/pkg/aws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger.Initialize(cfg.Environment)
	log := logger.Log
	defer log.Sync()

	db, err := database.ConnectPostgres(log, &models.Order{}, &models.OrderItem{}, &models.Listing{})
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer database.Close()

	redisClient := database.NewRedisClient(cfg.RedisURL)
	cartRepo := database.NewCartRepository(redisClient, cfg.CartTTL)

	awsCfg, err := aws_pkg.LoadAWSConfig(context.Background())
	if err != nil {
		log.Fatal("Failed to load AWS config", zap.Error(err))
	}
	snsClient := aws_pkg.NewSNSClient(awsCfg)

	var receipts services.ReceiptSender
	if smtpSender, err := services.NewSMTPSender(); err != nil {
		log.Warn("SMTP not configured, receipts disabled", zap.Error(err))
	} else {
		receipts = smtpSender
	}

	orderRepo := repository.NewGormOrderRepository(db)
	listingRepo := repository.NewGormListingRepository(db)

	paypalClient := services.NewPayPalClient(cfg.PayPalAPIBase, cfg.PayPalClientID, cfg.PayPalClientSecret)
	stripeService := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	effects := &services.SideEffectDispatcher{
		Carts:      cartRepo,
		CatalogSvc: listingRepo,
		Markers:    cartRepo,
		Receipts:   receipts,
		Events:     snsClient,
		TopicArn:   cfg.PaymentSNSTopicARN,
		AdminEmail: cfg.AdminEmail,
		Logger:     log,
	}

	checkoutService := services.NewCheckoutService(
		orderRepo,
		cartRepo,
		cartRepo,
		paypalClient,
		stripeService,
		effects,
		cfg.Currency,
		cfg.PublicBaseURL,
		cfg.FrontendURL,
		log,
	)

	cartController := controllers.NewCartController(cartRepo, listingRepo, log)
	checkoutController := controllers.NewCheckoutController(checkoutService, log)
	webhookController := controllers.NewWebhookController(checkoutService, stripeService, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logger.RequestLogger(), gin.Recovery())

	routes.RegisterRoutes(router, cartController, checkoutController, webhookController)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("Checkout service is running", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Shutdown error", zap.Error(err))
	}
	log.Info("Server shutdown complete")
}
