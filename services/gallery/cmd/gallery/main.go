package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"momentsstudio/internal/ratelimit"
	"momentsstudio/internal/usertoken"
	"momentsstudio/internal/util"
	"momentsstudio/pkg/gdrive"
	"momentsstudio/pkg/storage"
	"momentsstudio/pkg/store"
	"momentsstudio/pkg/supabase"
	"momentsstudio/services/gallery/internal/app"
	"momentsstudio/services/gallery/internal/config"
	"momentsstudio/services/gallery/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)
	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	upstream := &http.Client{Timeout: cfg.UpstreamTimeout()}

	var supabaseClient *supabase.Client
	if cfg.SupabaseURL != "" {
		supabaseClient, err = supabase.NewClient(supabase.Config{
			URL:        cfg.SupabaseURL,
			AnonKey:    cfg.SupabaseAnonKey,
			HTTPClient: upstream,
		})
		if err != nil {
			log.Fatalf("failed to init supabase client: %v", err)
		}
	}

	var stores store.Scoper
	switch cfg.MetadataBackend {
	case config.BackendPostgres:
		gormStore, err := store.NewGormStore(cfg.DatabaseURL, store.WithAutoMigrate(cfg.AutoMigrate))
		if err != nil {
			log.Fatalf("failed to init postgres store: %v", err)
		}
		stores = gormStore
	case config.BackendMemory:
		logger.Warn("using in-memory metadata store; data is lost on restart")
		stores = store.NewMemoryStore()
	default:
		stores = supabaseClient
	}

	var verifier *usertoken.Verifier
	if cfg.JWKSURL != "" || cfg.JWTSecret != "" {
		verifier, err = usertoken.NewVerifier(usertoken.Config{
			JWKSURL:    cfg.JWKSURL,
			Secret:     cfg.JWTSecret,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			Leeway:     jwtLeeway,
			HTTPClient: &http.Client{Timeout: 5 * time.Second},
		})
		if err != nil {
			log.Fatalf("failed to init token verifier: %v", err)
		}
	}
	serverCfg := server.Config{MaxUploadBytes: cfg.MaxUploadBytes}
	if cfg.AuthMode == config.AuthModeJWT {
		serverCfg.Auth = verifier
	} else {
		serverCfg.Auth = supabaseClient
		if verifier != nil {
			serverCfg.TokenVerifier = verifier
		}
	}

	var archive storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(context.Background(), storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("failed to init archive store: %v", err)
		}
		archive = minioStore
	}

	if cfg.RedisAddr != "" {
		redisClient, err := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("failed to init redis: %v", err)
		}
		uploadLimiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "moments:ratelimit:upload", cfg.UploadRateLimit, cfg.RateLimitWindow())
		if err != nil {
			log.Fatalf("failed to init upload limiter: %v", err)
		}
		accessLimiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "moments:ratelimit:access", cfg.AccessRateLimit, cfg.RateLimitWindow())
		if err != nil {
			log.Fatalf("failed to init access limiter: %v", err)
		}
		serverCfg.UploadLimiter = uploadLimiter
		serverCfg.AccessLimiter = accessLimiter
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	serverCfg.TrustedProxies = trusted

	tokens := gdrive.NewRefreshTokenProvider(gdrive.TokenConfig{
		ClientID:     cfg.GoogleDriveClientID,
		ClientSecret: cfg.GoogleDriveClientSecret,
		RefreshToken: cfg.GoogleDriveRefreshToken,
		TokenURL:     cfg.GoogleTokenURL,
		HTTPClient:   upstream,
	})
	if !tokens.Configured() {
		logger.Warn("google drive credentials missing; uploads will fail until they are set")
	}

	driveClient, err := gdrive.NewClient(context.Background(), gdrive.Config{
		APIBaseURL:    cfg.DriveAPIBaseURL,
		UploadBaseURL: cfg.DriveUploadBaseURL,
		ViewBaseURL:   cfg.DriveViewBaseURL,
		HTTPClient:    upstream,
	})
	if err != nil {
		log.Fatalf("failed to init drive client: %v", err)
	}

	appCore, err := app.New(app.Config{
		Stores:              stores,
		Tokens:              tokens,
		Drive:               driveClient,
		Archive:             archive,
		RootFolderID:        cfg.DriveRootFolderID,
		MaxPhotosPerUpload:  cfg.MaxPhotosPerUpload,
		AllowedContentTypes: cfg.AllowedContentTypes,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	serverCfg.App = appCore

	httpServer, err := server.New(serverCfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: httpServer.Router(),
		// photo batches are large and are uploaded to Drive before the reply
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("gallery server listening", "addr", addr, "metadata_backend", cfg.MetadataBackend, "auth_mode", cfg.AuthMode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
