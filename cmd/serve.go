package cmd

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/controller"
	"github.com/vibast-solutions/ms-go-account/app/entity"
	accountgrpc "github.com/vibast-solutions/ms-go-account/app/grpc"
	"github.com/vibast-solutions/ms-go-account/app/hasher"
	"github.com/vibast-solutions/ms-go-account/app/metrics"
	"github.com/vibast-solutions/ms-go-account/app/middleware"
	"github.com/vibast-solutions/ms-go-account/app/notifier"
	"github.com/vibast-solutions/ms-go-account/app/repository"
	"github.com/vibast-solutions/ms-go-account/app/service"
	"github.com/vibast-solutions/ms-go-account/app/session"
	"github.com/vibast-solutions/ms-go-account/config"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start both HTTP (Echo) and gRPC servers for the account service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type application struct {
	cfg       *config.Config
	db        *sql.DB
	redis     *redis.Client
	sessions  *session.Store
	cookies   *session.CookieJar
	accounts  *service.AccountService
	keys      *service.ServiceKeyService
	registry  *prometheus.Registry
	closeMail func() error
}

func runServe(cmd *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize application")
	}
	defer app.close()

	e := app.newHTTPServer()
	grpcServer, healthServer := app.newGRPCServer()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		httpAddr := cfg.HTTP.Addr()
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		grpcAddr := cfg.GRPC.Addr()
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}
		logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
		return grpcServer.Serve(lis)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logrus.Info("Shutting down servers")

		healthServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("HTTP server shutdown failed")
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := group.Wait(); err != nil {
		logrus.WithError(err).Fatal("Server stopped with error")
	}
	logrus.Info("Servers stopped")
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	db, err := openDatabase(ctx, cfg.MySQL.DSN)
	if err != nil {
		return nil, err
	}

	redisClient, err := openRedis(ctx, cfg.Redis.URL)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	app := &application{
		cfg:      cfg,
		db:       db,
		redis:    redisClient,
		registry: metrics.NewRegistry(),
	}

	m := metrics.NewMetrics(app.registry)
	tokenNotifier := app.newNotifier()
	app.sessions = session.NewStore(redisClient, cfg.Session.Prefix, cfg.Session.TTL)
	app.cookies = session.NewCookieJar(cfg.Session.Secret, session.CookieOptions{
		Name:     cfg.Session.Name,
		TTL:      cfg.Session.TTL,
		HTTPOnly: cfg.Session.HTTPOnly,
		Secure:   cfg.Session.Secure,
		SameSite: sameSiteMode(cfg),
	})

	app.accounts = service.NewAccountService(
		db,
		repository.NewUserRepository(db),
		service.NewTokenStore(db, cfg.Tokens.TTL),
		app.sessions,
		hasher.New(hasher.Params{
			MemoryKB:   cfg.Password.Hash.MemoryKB,
			Iterations: cfg.Password.Hash.Iterations,
			Threads:    cfg.Password.Hash.Threads,
		}),
		tokenNotifier,
		cfg.Password.Policy,
		service.WithMetrics(m),
	)
	app.keys = service.NewServiceKeyService(
		repository.NewServiceKeyRepository(db),
		service.WithServiceKeyMetrics(m),
	)

	return app, nil
}

func (a *application) newNotifier() notifier.Notifier {
	if len(a.cfg.Mail.KafkaBrokers) == 0 {
		logrus.Warn("KAFKA_BROKERS not set, account emails will only be logged")
		return notifier.NewLogNotifier(a.cfg.Mail.AppOrigin)
	}

	kafkaNotifier := notifier.NewKafkaNotifier(
		notifier.NewKafkaWriter(a.cfg.Mail.KafkaBrokers, a.cfg.Mail.KafkaTopic),
		a.cfg.Mail.AppOrigin,
	)
	a.closeMail = kafkaNotifier.Close
	logrus.WithFields(logrus.Fields{
		"brokers": a.cfg.Mail.KafkaBrokers,
		"topic":   a.cfg.Mail.KafkaTopic,
	}).Info("Publishing account emails to kafka")
	return kafkaNotifier
}

// close drains pending notifications before the mail publisher and the
// stores they write to go away.
func (a *application) close() {
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.accounts.Wait(waitCtx); err != nil {
		logrus.WithError(err).Warn("Background account tasks still running at shutdown")
	}

	if a.closeMail != nil {
		if err := a.closeMail(); err != nil {
			logrus.WithError(err).Error("Failed to close mail publisher")
		}
	}
	if err := a.redis.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close redis client")
	}
	if err := a.db.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close database")
	}
}

func (a *application) newHTTPServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     []string{a.cfg.Mail.AppOrigin},
		AllowCredentials: true,
	}))

	accountController := controller.NewAccountController(a.accounts, a.cookies)
	internalController := controller.NewInternalController(a.accounts, a.cookies)
	sessionMiddleware := middleware.NewSessionMiddleware(a.accounts, a.cookies)
	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(a.keys)

	e.GET("/health", a.health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(a.registry)))

	account := e.Group("/api/account")
	account.POST("/register", accountController.Register)
	account.POST("/login", accountController.Login)
	account.POST("/email/verify", accountController.ConfirmEmail)
	account.POST("/email/verification/send", accountController.SendVerificationEmail)
	account.POST("/password/reset/send", accountController.SendPasswordResetEmail)
	account.POST("/password/reset", accountController.ResetPassword)

	accountProtected := account.Group("")
	accountProtected.Use(sessionMiddleware.RequireSession)
	accountProtected.POST("/logout", accountController.Logout)
	accountProtected.GET("/@me", accountController.Me)
	accountProtected.PATCH("/@me", accountController.UpdateMe)

	users := e.Group("/api/users")
	users.Use(sessionMiddleware.RequireSession, middleware.RequireRole(entity.RoleAdmin))
	users.GET("/:id", accountController.GetUser)

	internal := e.Group("/internal")
	internal.Use(apiKeyMiddleware.RequireScope(entity.ScopeSessionsResolve))
	internal.POST("/sessions/resolve", internalController.ResolveSession)

	return e
}

func (a *application) health(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	if err := a.db.PingContext(reqCtx); err != nil {
		logrus.WithError(err).Error("Health check failed: database")
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	if err := a.sessions.Ping(reqCtx); err != nil {
		logrus.WithError(err).Error("Health check failed: redis")
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *application) newGRPCServer() (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		accountgrpc.APIKeyUnaryInterceptor(a.keys, map[string]string{
			accountgrpc.FullMethod("ResolveSession"): entity.ScopeSessionsResolve,
		}),
	))
	accountgrpc.RegisterAccountServer(grpcServer, accountgrpc.NewAccountServer(a.accounts, a.cookies))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(accountgrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer, healthServer
}

func sameSiteMode(cfg *config.Config) http.SameSite {
	if cfg.IsDevelopment() {
		return http.SameSiteLaxMode
	}
	return http.SameSiteNoneMode
}
