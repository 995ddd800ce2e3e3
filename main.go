package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"unschooling-payment-service/apperrors"
	"unschooling-payment-service/cache"
	"unschooling-payment-service/config"
	"unschooling-payment-service/consumer"
	"unschooling-payment-service/controllers"
	"unschooling-payment-service/database"
	"unschooling-payment-service/events"
	"unschooling-payment-service/gateway"
	"unschooling-payment-service/logger"
	"unschooling-payment-service/middleware"
	aws_pkg "unschooling-payment-service/pkg/aws"
	"unschooling-payment-service/pricing"
	"unschooling-payment-service/repository"
	"unschooling-payment-service/routes"
	"unschooling-payment-service/services"
	"unschooling-payment-service/signature"
)

const serviceName = "payment-service"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// AWS is optional locally; every AWS-backed feature checks awsErr.
	awsCfg, awsErr := aws_pkg.LoadAWSConfig(ctx)

	var secrets config.SecretSource
	if config.UseSecretsManager() {
		if awsErr != nil {
			log.Fatalf("[PaymentService] AWS_USE_SECRETS set but AWS config failed: %v", awsErr)
		}
		secrets = aws_pkg.NewSecretsClient(awsCfg)
	}

	cfg, err := config.Load(ctx, secrets)
	if err != nil {
		log.Fatalf("[PaymentService] Failed to load config: %v", err)
	}

	var appLogs, auditLogs io.Writer
	if cfg.CloudWatchEnabled && awsErr == nil {
		if w, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.AppLogGroup, serviceName, 30); err != nil {
			log.Printf("[PaymentService] CloudWatch app logs disabled: %v", err)
		} else {
			appLogs = w
		}
		// audit records are kept longer than app logs
		if w, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.AuditLogGroup, serviceName, 400); err != nil {
			log.Printf("[PaymentService] CloudWatch audit logs disabled: %v", err)
		} else {
			auditLogs = w
		}
	}

	appLogger, err := logger.New(cfg.AppEnv, appLogs)
	if err != nil {
		log.Fatalf("[PaymentService] Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	auditLogger := logger.NewAuditLogger(auditLogs)
	defer auditLogger.Sync()

	if awsErr != nil {
		appLogger.Warn("AWS config unavailable; SNS, SQS and CloudWatch disabled", zap.Error(awsErr))
	}

	db, err := database.ConnectPostgres(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to DB", zap.Error(err))
	}
	defer database.Close(db)

	var locker services.Locker = cache.NewLocalLocker()
	var index services.ReceiptIndex
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		store := cache.NewRedisStore(redisClient, "payments:", cfg.IdempotencyTTL)
		locker, index = store, store
	} else {
		appLogger.Warn("REDIS_URL not set; idempotency locks are per instance")
	}

	publisher := buildPublisher(cfg, awsCfg, awsErr, appLogger)
	defer publisher.Close()

	var metricsClient *aws_pkg.MetricsClient
	var recorder services.MetricsRecorder
	if awsErr == nil {
		metricsClient = aws_pkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)
		if metricsClient.IsEnabled() {
			recorder = metricsClient
		}
	}

	catalog := pricing.DefaultCatalog()
	gw := gateway.NewRazorpayClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayBaseURL, cfg.GatewayTimeout)
	inflight := semaphore.NewWeighted(cfg.GatewayMaxInflight)

	subscriptionSvc := services.NewSubscriptionService(services.SubscriptionServiceDeps{
		Catalog:       catalog,
		Gateway:       gw,
		Subscriptions: repository.NewGormSubscriptionRepository(db),
		Locker:        locker,
		Publisher:     publisher,
		Metrics:       recorder,
		Limiter:       inflight,
		LockTTL:       cfg.LockTTL,
		Logger:        appLogger,
	})
	orderSvc := services.NewOrderService(services.OrderServiceDeps{
		Catalog:       catalog,
		Gateway:       gw,
		Orders:        repository.NewGormOrderRepository(db),
		Verifier:      signature.NewVerifier(cfg.RazorpayKeySecret),
		Subscriptions: subscriptionSvc,
		Locker:        locker,
		Index:         index,
		Publisher:     publisher,
		Metrics:       recorder,
		Limiter:       inflight,
		Retry:         services.DefaultRetryPolicy,
		LockTTL:       cfg.LockTTL,
		Logger:        appLogger,
		Audit:         auditLogger,
	})

	if cfg.OrderRequestQueueURL != "" && awsErr == nil {
		sqsConsumer := aws_pkg.NewSQSConsumer(awsCfg, cfg.OrderRequestQueueURL, appLogger)
		go consumer.NewOrderRequestConsumer(sqsConsumer, orderSvc, recorder, appLogger).Start(ctx)
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(appLogger),
		middleware.SecurityHeaders(),
		middleware.CORSMiddleware(cfg.AllowedOrigins),
		middleware.RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst), // per client IP
		middleware.MetricsMiddleware(metricsClient, serviceName),
		middleware.Timeout(cfg.RequestTimeout),
		apperrors.ErrorMiddleware(),
	)
	routes.RegisterRoutes(r, routes.Controllers{
		Plans:         &controllers.PlanController{Catalog: catalog, Logger: appLogger},
		Payments:      &controllers.PaymentController{Orders: orderSvc, KeyID: cfg.RazorpayKeyID, Logger: appLogger},
		Subscriptions: &controllers.SubscriptionController{Subscriptions: subscriptionSvc, Logger: appLogger},
		Webhooks: &controllers.WebhookController{
			Subscriptions: subscriptionSvc,
			Secret:        cfg.RazorpayWebhookSecret,
			Logger:        appLogger,
			Audit:         auditLogger,
		},
	}, middleware.RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst)) // per authenticated user

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("Payment service running", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Shutdown error", zap.Error(err))
	}
	appLogger.Info("Server shutdown complete")
}

// buildPublisher fans events out to Kafka and SNS when configured. Delivery
// failures are logged, never returned to the payment flow.
func buildPublisher(cfg *config.Config, awsCfg aws.Config, awsErr error, log *zap.Logger) events.Publisher {
	var targets events.Multi
	if len(cfg.KafkaBrokers) > 0 {
		targets = append(targets, events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log))
	}
	if cfg.PaymentSNSTopicARN != "" && awsErr == nil {
		targets = append(targets, events.NewSNSPublisher(aws_pkg.NewSNSClient(awsCfg), cfg.PaymentSNSTopicARN))
	}

	switch len(targets) {
	case 0:
		log.Warn("No event broker configured; payment events are dropped")
		return events.NoopPublisher{}
	case 1:
		return events.NewLoggingPublisher(targets[0], log)
	default:
		return events.NewLoggingPublisher(targets, log)
	}
}
