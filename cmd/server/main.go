package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/astroulette/backend/internal/api"
	"github.com/astroulette/backend/internal/auth"
	"github.com/astroulette/backend/internal/config"
	"github.com/astroulette/backend/internal/core"
	"github.com/astroulette/backend/internal/imagegen"
	"github.com/astroulette/backend/internal/llm"
	"github.com/astroulette/backend/internal/logging"
	"github.com/astroulette/backend/internal/store"
	"github.com/astroulette/backend/internal/tracing"
)

func main() {
	seedFile := flag.String("seed", "", "Insert characters from a JSON file and exit")
	flag.Parse()

	// LoadConfig reads .env, so the level is only known afterwards.
	log := logging.New("info")
	cfg := config.LoadConfig(log)
	logging.SetLevel(log, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *seedFile, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, seedFile string, log *logrus.Logger) error {
	tp, err := tracing.Setup(ctx, tracing.Config{
		Exporter:    cfg.TraceExporter,
		Endpoint:    cfg.TraceEndpoint,
		ServiceName: "astroulette-backend",
		Version:     "1.0.0",
		SampleRatio: cfg.TraceSampleRatio,
	}, log)
	if err != nil {
		log.WithError(err).Warn("failed to start tracer")
	} else if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.WithError(err).Error("Error shutting down tracer provider")
			}
		}()
	}

	// Initialize database store
	dbStore, err := store.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	if err := dbStore.Migrate(ctx); err != nil {
		return err
	}

	admin, err := dbStore.EnsureAdmin(ctx, cfg.AdminEmail)
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin user: %w", err)
	}

	if seedFile != "" {
		n, err := dbStore.SeedCharactersFromFile(ctx, seedFile, admin.ID)
		if err != nil {
			return fmt.Errorf("seeding failed: %w", err)
		}
		log.WithField("count", n).Info("Seeding complete. Exiting.")
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Text and image services
	generator, err := llm.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, llm.NewRandomizer(nil), log)
	if err != nil {
		return err
	}
	defer generator.Close()

	streamer := llm.NewOpenAIStreamer(cfg.OpenAIAPIKey, cfg.OpenAIModel, log)

	leonardo := imagegen.NewLeonardoClient(cfg.LeonardoBaseURL, cfg.LeonardoAPIKey, nil)
	images := imagegen.NewPoller(imagegen.NewBreakerClient(leonardo, log), cfg.ImagePolls, cfg.ImagePollDelay, log)

	var mailer auth.Mailer
	if cfg.MailEnabled() {
		mailer = auth.NewMailgunMailer(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailFrom, cfg.FrontendURL)
	} else {
		log.Warn("Mailgun is not configured, login links will be logged")
		mailer = auth.NewLogMailer(cfg.FrontendURL, log)
	}

	// Services
	provisioner := core.NewProvisioner(dbStore, generator, images, cfg.ProvisionAttempts, cfg.ProvisionBackoff, log)
	resolver := core.NewResolver(dbStore, provisioner, log)
	chatService := core.NewChatService(dbStore, resolver, streamer, log)
	characterService := core.NewCharacterService(dbStore, provisioner, log)
	authService := auth.NewService(dbStore, auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL), mailer, log)

	// Initialize API Handler and Router
	secureCookie := strings.HasPrefix(cfg.FrontendURL, "https://")
	apiHandler := api.NewAPIHandler(authService, chatService, characterService, cfg.AllowedOrigins, secureCookie, log)
	router := api.NewRouter(apiHandler, cfg.AllowedOrigins, log)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // character provisioning polls the image service
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", serverAddr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server exiting gracefully")
	return nil
}
