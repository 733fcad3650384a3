package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	cloudstorage "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"finitefield.org/arcade/internal/catalog"
	"finitefield.org/arcade/internal/favorites"
	"finitefield.org/arcade/internal/handlers"
	"finitefield.org/arcade/internal/platform/auth"
	"finitefield.org/arcade/internal/platform/config"
	"finitefield.org/arcade/internal/platform/connectivity"
	pfirestore "finitefield.org/arcade/internal/platform/firestore"
	"finitefield.org/arcade/internal/platform/localstore"
	"finitefield.org/arcade/internal/platform/observability"
	"finitefield.org/arcade/internal/platform/signal"
	platformstorage "finitefield.org/arcade/internal/platform/storage"
	"finitefield.org/arcade/internal/repositories"
	firestoreRepo "finitefield.org/arcade/internal/repositories/firestore"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("arcade")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, startedAt)

	localStore, err := localstore.OpenSQLite(cfg.LocalStore.Path)
	if err != nil {
		logger.Fatal("failed to open local store", zap.Error(err), zap.String("path", cfg.LocalStore.Path))
	}
	defer func() {
		if err := localStore.Close(); err != nil {
			logger.Warn("local store close error", zap.Error(err))
		}
	}()

	source, closeSource, err := newCatalogSource(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise catalog source", zap.Error(err))
	}
	defer closeSource()

	loader, err := catalog.NewLoader(catalog.LoaderDeps{
		Source:       source,
		StaleAfter:   cfg.Catalog.StaleAfter,
		FetchTimeout: cfg.Catalog.Timeout,
		Logger:       logger.Named("catalog"),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog loader", zap.Error(err))
	}

	var (
		firestoreProvider *pfirestore.Provider
		remote            repositories.FavoriteRepository
	)
	if cfg.Features.RemoteFavorites {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		if _, err := firestoreProvider.Client(ctx); err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := firestoreProvider.Close(closeCtx); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()

		favoriteRepo, err := firestoreRepo.NewFavoriteRepository(firestoreProvider)
		if err != nil {
			logger.Fatal("failed to initialise favorite repository", zap.Error(err))
		}
		remote = favoriteRepo
	} else {
		logger.Info("remote favorites disabled; favorites stay on this device")
	}

	var authenticator *auth.Authenticator
	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
		}
		authenticator = auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))
	} else {
		logger.Warn("firebase project not configured; sign-in disabled")
	}

	users := auth.NewUserSignal()
	online := signal.NewComparable(true)
	session := auth.NewSession(users, logger.Named("auth"))

	monitorCtx, monitorCancel := context.WithCancel(ctx)
	var background sync.WaitGroup
	if check := newConnectivityChecker(cfg, firestoreProvider); check != nil {
		monitor, err := connectivity.NewMonitor(check, online, connectivity.Options{
			Interval: cfg.Connectivity.Interval,
			Logger:   logger.Named("connectivity"),
		})
		if err != nil {
			logger.Fatal("failed to initialise connectivity monitor", zap.Error(err))
		}
		// Settle the initial flag before favorites decide where to load from.
		monitor.CheckNow(ctx)
		background.Add(1)
		go func() {
			defer background.Done()
			if err := monitor.Run(monitorCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("connectivity monitor stopped", zap.Error(err))
			}
		}()
	}

	favoritesStore, err := favorites.New(ctx, favorites.Deps{
		Local:  localStore,
		Remote: remote,
		User:   users,
		Online: online,
		Logger: logger.Named("favorites"),
		Meter:  otel.GetMeterProvider().Meter("finitefield.org/arcade/favorites"),
	})
	if err != nil {
		logger.Fatal("failed to initialise favorites store", zap.Error(err))
	}

	healthRepo, err := newHealthRepository(localStore, firestoreProvider, loader)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthRepository(healthRepo),
		handlers.WithHealthOnline(online.Get),
	)

	catalogHandlers := handlers.NewCatalogHandlers(loader,
		handlers.WithCatalogFavorites(favoritesStore),
		handlers.WithCatalogFeatured(cfg.Catalog.FeaturedCount, nil),
	)
	searchHandlers := handlers.NewSearchHandlers(loader.Home,
		handlers.WithSearchDebounce(cfg.Search.Debounce),
		handlers.WithSearchMaxResults(cfg.Search.MaxResults),
		handlers.WithSearchLogger(logger.Named("search")),
	)
	favoriteHandlers := handlers.NewFavoriteHandlers(favoritesStore, authenticator)
	sessionHandlers := handlers.NewSessionHandlers(session, authenticator)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(func() string { return users.Get().ID }),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithSearchRoutes(searchHandlers.Routes),
		handlers.WithFavoriteRoutes(favoriteHandlers.Routes),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
	)
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     observability.NewServerErrorLog(logger),
	}

	shutdown := make(chan os.Signal, 1)
	ossignal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("arcade listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	monitorCancel()
	background.Wait()
	favoritesStore.Close()
}

func buildInfoFromEnv(env map[string]string, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["ARCADE_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["ARCADE_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(env["ARCADE_ENVIRONMENT"])
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// newCatalogSource prefers the static web origin and falls back to reading the
// same layout from a bucket.
func newCatalogSource(ctx context.Context, cfg config.Config) (catalog.Source, func(), error) {
	if baseURL := strings.TrimSpace(cfg.Catalog.BaseURL); baseURL != "" {
		src, err := catalog.NewHTTPSource(baseURL, catalog.WithHTTPTimeout(cfg.Catalog.Timeout))
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	}

	var clientOpts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	client, err := cloudstorage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise storage client: %w", err)
	}
	reader, err := platformstorage.NewReader(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	src, err := catalog.NewBucketSource(reader, cfg.Catalog.Bucket, cfg.Catalog.Prefix)
	if err != nil {
		_ = reader.Close()
		return nil, nil, err
	}
	return src, func() { _ = reader.Close() }, nil
}

func newConnectivityChecker(cfg config.Config, provider *pfirestore.Provider) connectivity.Checker {
	if checkURL := strings.TrimSpace(cfg.Connectivity.CheckURL); checkURL != "" {
		return connectivity.HTTPCheck{URL: checkURL, Client: &http.Client{Timeout: 5 * time.Second}}
	}
	if provider != nil {
		return connectivity.CheckFunc(provider.Ping)
	}
	return nil
}

func newHealthRepository(local *localstore.SQLiteStore, provider *pfirestore.Provider, loader *catalog.Loader) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{
		{
			Name:    "localstore",
			Timeout: time.Second,
			Check:   local.Ping,
		},
		{
			Name:    "catalog",
			Timeout: 3 * time.Second,
			Check: func(ctx context.Context) error {
				_, err := loader.Home(ctx)
				return err
			},
		},
	}
	if provider != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "firestore",
			Timeout:  1500 * time.Millisecond,
			Optional: true,
			Check:    provider.Ping,
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
