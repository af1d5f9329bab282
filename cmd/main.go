package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	_ "atelier/docs"
	"atelier/pkg/artworks"
	"atelier/pkg/auctions"
	"atelier/pkg/auth"
	"atelier/pkg/config"
	"atelier/pkg/db"
	"atelier/pkg/feed"
	"atelier/pkg/logger"
	"atelier/pkg/metrics"
	"atelier/pkg/middleware"
	"atelier/pkg/profiles"
	"atelier/pkg/response"
	"atelier/pkg/storage"
)

// @title           Atelier API
// @version         1.0
// @description     Artist galleries, live auctions and the bid change feed.

// @host      localhost:8080
// @BasePath  /

// @schemes   http https
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}
	logger.SetLevel(cfg.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", map[string]any{"error": err.Error()})
	}
	defer pool.Close()

	broker, closeBroker := openBroker(ctx, cfg)
	defer closeBroker()

	store, err := storage.NewLocalStore(cfg.StorageDir, cfg.PublicBaseURL+"/storage")
	if err != nil {
		logger.Fatal("failed to open object storage", map[string]any{"error": err.Error()})
	}

	var mailer auth.EmailSender
	if cfg.SendGridAPIKey != "" {
		mailer = auth.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridSenderEmail, cfg.SendGridSenderName)
	} else {
		logger.Warn("SENDGRID_API_KEY not set, verification emails are disabled", nil)
	}

	authService := auth.NewAuthService(
		auth.NewPostgresAccountRepository(pool),
		auth.NewPostgresVerificationRepository(pool),
		auth.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL),
		mailer,
	)
	requireSession := auth.RequireSession(authService)
	authHandler := auth.NewAuthHandler(authService)

	publisher := feed.NewBidPublisher(broker)
	auctionsService := auctions.NewAuctionService(auctions.NewPostgresAuctionRepository(pool), publisher)
	auctionsHandler := auctions.NewAuctionHandler(auctionsService, requireSession)

	artworksService := artworks.NewArtworkService(artworks.NewPostgresArtworkRepository(pool), store, publisher, cfg.BidIncrement())
	artworksHandler := artworks.NewArtworkHandler(artworksService, requireSession)

	profilesService := profiles.NewProfileService(profiles.NewPostgresProfileRepository(pool), store)
	profilesHandler := profiles.NewProfileHandler(profilesService, requireSession)

	feedHandler := feed.NewHandler(feed.NewHub(broker), cfg.AllowedOrigins())

	router := gin.New()
	router.Use(logger.Middleware(), metrics.Middleware(), gin.Recovery())

	corsCfg := cors.Config{
		AllowOrigins:     cfg.AllowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsCfg))
	router.Use(middleware.SanitizeInput())

	authHandler.RegisterRoutes(router)
	artworksHandler.RegisterRoutes(router)
	auctionsHandler.RegisterRoutes(router)
	profilesHandler.RegisterRoutes(router)
	feedHandler.RegisterRoutes(router)

	router.Static("/storage", cfg.StorageDir)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", healthz(pool))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              ":" + cfg.ListenPort(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", map[string]any{"addr": srv.Addr, "tls": cfg.EnableTLS})
		return serve(srv, cfg)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", map[string]any{"error": err.Error()})
		return
	}
	logger.Info("server exiting", nil)
}

// openBroker uses Redis when REDIS_URL is set so several instances share one feed.
func openBroker(ctx context.Context, cfg *config.Config) (feed.Broker, func()) {
	if cfg.RedisURL == "" {
		mem := feed.NewMemoryBroker()
		return mem, func() { _ = mem.Close() }
	}

	rdb, err := feed.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to redis", map[string]any{"error": err.Error()})
	}
	logger.Info("change feed backed by redis", nil)
	return feed.NewRedisBroker(rdb), func() { _ = rdb.Close() }
}

func healthz(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			response.SendAPIResponse(c, http.StatusServiceUnavailable, false, "database unavailable", nil)
			return
		}
		response.SendAPIResponse(c, http.StatusOK, true, "ok", nil)
	}
}

func serve(srv *http.Server, cfg *config.Config) error {
	var err error
	if !cfg.EnableTLS {
		err = srv.ListenAndServe()
	} else {
		tlsConfig, certFile, keyFile, buildErr := buildTLSConfig(cfg)
		if buildErr != nil {
			return fmt.Errorf("TLS setup: %w", buildErr)
		}
		srv.TLSConfig = tlsConfig
		err = srv.ListenAndServeTLS(certFile, keyFile)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// buildTLSConfig prefers certificate files and falls back to inline PEM (TLS_CERT/TLS_KEY)
// or a self-signed certificate outside production.
func buildTLSConfig(cfg *config.Config) (*tls.Config, string, string, error) {
	if cfg.TLSCertPath != "" && cfg.TLSKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertPath, cfg.TLSKeyPath)
		if err != nil {
			return nil, "", "", err
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, cfg.TLSCertPath, cfg.TLSKeyPath, nil
	}

	certPEM := os.Getenv("TLS_CERT")
	keyPEM := os.Getenv("TLS_KEY")
	if certPEM != "" && keyPEM != "" {
		cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
		if err != nil {
			return nil, "", "", err
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, "", "", nil
	}

	if !cfg.IsProduction() && cfg.TLSSelfSigned {
		cert, err := generateSelfSignedCert()
		if err != nil {
			return nil, "", "", err
		}
		logger.Warn("serving with a generated self-signed certificate", nil)
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, "", "", nil
	}

	return nil, "", "", errors.New("no TLS certificates available")
}

// generateSelfSignedCert creates a minimal self-signed certificate for localhost usage.
func generateSelfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	tmpl := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: "localhost", Organization: []string{"Atelier"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	return tls.X509KeyPair(certPEM, keyPEM)
}
