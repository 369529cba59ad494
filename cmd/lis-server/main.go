package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openlis/lis/internal/config"
	"github.com/openlis/lis/internal/domain/billing"
	"github.com/openlis/lis/internal/domain/catalog"
	"github.com/openlis/lis/internal/domain/franchise"
	"github.com/openlis/lis/internal/domain/patient"
	"github.com/openlis/lis/internal/domain/report"
	"github.com/openlis/lis/internal/domain/sid"
	"github.com/openlis/lis/internal/platform/auth"
	"github.com/openlis/lis/internal/platform/middleware"
	"github.com/openlis/lis/internal/platform/store"
)

// tenantDirectoryAdapter adapts the franchise registry to the
// auth.TenantDirectory interface, avoiding circular imports between the
// auth and franchise packages.
type tenantDirectoryAdapter struct {
	reg *franchise.Registry
}

func (a *tenantDirectoryAdapter) ListTenants(ctx context.Context) ([]auth.TenantInfo, error) {
	tenants, err := a.reg.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]auth.TenantInfo, 0, len(tenants))
	for _, t := range tenants {
		infos = append(infos, auth.TenantInfo{ID: t.ID, IsHub: t.IsHub, Active: t.IsActive})
	}
	return infos, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "lis-server",
		Short: "Laboratory Information System API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sidCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the LIS API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func sidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sid",
		Short: "Inspect and repair sample identification numbers",
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Scan billings and reports for duplicate SIDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			alloc, _, err := offlineAllocator()
			if err != nil {
				return err
			}
			groups, err := alloc.FindDuplicates(context.Background())
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Println("No duplicate SIDs found.")
				return nil
			}
			fmt.Printf("%d duplicate SID group(s):\n", len(groups))
			for _, g := range groups {
				fmt.Printf("  %s\n", g.SID)
				for _, e := range g.Entries {
					fmt.Printf("    %-16s id=%-6d tenant=%-4d created_at=%s\n",
						e.Collection, e.RecordID, e.TenantID, e.CreatedAt)
				}
			}
			fmt.Println("Run 'lis-server sid repair' to reassign duplicates.")
			return nil
		},
	}
	cmd.AddCommand(checkCmd)

	repairCmd := &cobra.Command{
		Use:   "repair",
		Short: "Reassign duplicate SIDs, keeping the oldest record",
		RunE: func(cmd *cobra.Command, args []string) error {
			alloc, st, err := offlineAllocator()
			if err != nil {
				return err
			}
			n, err := alloc.Repair(context.Background())
			if err != nil {
				return fmt.Errorf("repair failed, backups left in %s: %w", st.Dir(), err)
			}
			if n == 0 {
				fmt.Println("Nothing to repair.")
				return nil
			}
			fmt.Printf("Reassigned %d record(s). Regenerate reports for the affected billings.\n", n)
			return nil
		},
	}
	cmd.AddCommand(repairCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Inspect the franchise registry",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st, err := store.New(cfg.DataDir)
			if err != nil {
				return err
			}
			reg := franchise.NewRegistry(franchise.NewRepo(st))

			tenants, err := reg.ListAll(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("%-6s %-30s %-10s %-8s %-6s %s\n", "ID", "NAME", "SITE CODE", "PREFIX", "HUB", "ACTIVE")
			for _, t := range tenants {
				fmt.Printf("%-6d %-30s %-10s %-8v %-6v %v\n",
					t.ID, t.Name, t.SiteCode, t.UsePrefix, t.IsHub, t.IsActive)
			}
			if err := reg.CheckSiteCodes(context.Background()); err != nil {
				fmt.Printf("WARNING: %v\n", err)
			}
			return nil
		},
	}
	cmd.AddCommand(listCmd)

	return cmd
}

func offlineAllocator() (*sid.Allocator, *store.Store, error) {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	reg := franchise.NewRegistry(franchise.NewRepo(st))
	alloc := sid.NewAllocator(st, reg, logger,
		cfg.SIDMaxRetries, time.Duration(cfg.SIDRetryBaseMS)*time.Millisecond)
	return alloc, st, nil
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Store
	st, err := store.New(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open data dir")
	}
	logger.Info().Str("dir", st.Dir()).Msg("data store ready")

	// Domain wiring
	registry := franchise.NewRegistry(franchise.NewRepo(st))
	tenantDir := &tenantDirectoryAdapter{reg: registry}

	allocator := sid.NewAllocator(st, registry, logger,
		cfg.SIDMaxRetries, time.Duration(cfg.SIDRetryBaseMS)*time.Millisecond)

	catalogSvc := catalog.NewService(catalog.NewRepo(st))

	billingRepo := billing.NewRepo(st)
	patientRepo := patient.NewRepo(st)
	reportRepo := report.NewRepo(st)

	builder := report.NewBuilder(billingRepo, patientRepo, registry, catalogSvc, reportRepo, logger)
	billingSvc := billing.NewService(billingRepo, registry, allocator, builder, logger)
	reportSvc := report.NewService(reportRepo)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.JWTSigningKey),
		}))
	}

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Domain routes
	franchise.NewHandler(registry).RegisterRoutes(apiV1)
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)
	billing.NewHandler(billingSvc, tenantDir).RegisterRoutes(apiV1)
	report.NewHandler(reportSvc, tenantDir).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
