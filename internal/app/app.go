package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"veilink/internal/auth"
	"veilink/internal/config"
	"veilink/internal/events"
	httpserver "veilink/internal/http"
	"veilink/internal/http/handlers"
	"veilink/internal/http/middleware"
	"veilink/internal/ledger"
	"veilink/internal/payments"
	"veilink/internal/redisstore"
	"veilink/internal/repository"
	"veilink/internal/service"
	"veilink/internal/ws"
	libdb "veilink/libs/db"
	libredis "veilink/libs/redis"
)

// App wires readings-service dependencies.
type App struct {
	server      *httpserver.Server
	hub         *ws.Hub
	sessions    *service.ReadingsService
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgres(cfg.Database.DSN, libdb.PoolOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	accountRepo := repository.NewAccountRepository(sqlDB)
	walletRepo := repository.NewWalletRepository(sqlDB)
	txRepo := repository.NewTransactionRepository(sqlDB)
	readingRepo := repository.NewReadingRepository(sqlDB)
	readerRepo := repository.NewReaderRepository(sqlDB)
	chatRepo := repository.NewChatRepository(sqlDB)

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authService := auth.NewService(accountRepo, auth.NewBcryptHasher(0), tokens, logger)

	capture := payments.NewClient(cfg.Payments.BaseURL, payments.NewDefaultHTTPClient(cfg.Payments.Timeout))
	ledgerService := ledger.NewService(walletRepo, txRepo, capture, logger)

	bus := events.NewBus(logger)
	activeCache := redisstore.NewStore(redisClient, cfg.Redis.TTL)
	sessions := service.NewReadingsService(readingRepo, ledgerService, bus, activeCache, cfg.Metering.TickInterval, logger)
	negotiator := service.NewNegotiator(readingRepo, readerRepo, ledgerService, sessions, logger)
	chatService := service.NewChatService(chatRepo, sessions, logger)

	hub := ws.NewHub(bus, 30*time.Second, logger)
	gateway := ws.NewGateway(sessions, chatService, logger)
	wsServer := ws.NewServer(hub, gateway, 10*time.Second, logger)

	routes := httpserver.Routes{
		Signup: handlers.NewSignupHandler(authService),
		Login:  handlers.NewLoginHandler(authService),

		WalletMe:           handlers.NewWalletMeHandler(ledgerService),
		WalletDeposit:      handlers.NewWalletDepositHandler(ledgerService),
		WalletTransactions: handlers.NewWalletTransactionsHandler(ledgerService),

		ReadingsRequest: handlers.NewReadingsRequestHandler(negotiator),
		ReadingsAccept:  handlers.NewReadingsAcceptHandler(sessions, readerRepo),
		ReadingsGet:     handlers.NewReadingsGetHandler(sessions, readerRepo),
		ReadingsMe:      handlers.NewReadingsMeHandler(sessions),
		ReadingsActive:  handlers.NewReadingsActiveHandler(sessions),
		ReadingsPause:   handlers.NewReadingsPauseHandler(sessions, readerRepo),
		ReadingsResume:  handlers.NewReadingsResumeHandler(sessions, readerRepo),
		ReadingsEnd:     handlers.NewReadingsEndHandler(sessions, readerRepo),

		ChatMessage: handlers.NewChatMessageHandler(chatService, sessions, readerRepo),
		ChatHistory: handlers.NewChatHistoryHandler(chatService, sessions, readerRepo),

		ReadersOnline: handlers.NewReadersOnlineHandler(readerRepo),

		ReadingsWS: handlers.NewReadingsWSHandler(wsServer, sessions, readerRepo),

		Health:  handlers.NewHealthHandler(),
		Metrics: promhttp.Handler(),
	}

	router := httpserver.NewRouter(routes, middleware.Auth(tokens))
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		hub:         hub,
		sessions:    sessions,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the HTTP server and the WebSocket keepalive loop, blocking until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.hub.Start(ctx)
	return a.server.Run(ctx)
}

// Close releases resources. Live metering loops are stopped first so no charge
// is attempted against a closed pool.
func (a *App) Close() {
	a.sessions.Shutdown()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
