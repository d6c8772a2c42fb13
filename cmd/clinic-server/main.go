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

	"github.com/clinicore/clinicore/internal/config"
	"github.com/clinicore/clinicore/internal/domain/auditevent"
	"github.com/clinicore/clinicore/internal/domain/billing"
	"github.com/clinicore/clinicore/internal/domain/directory"
	"github.com/clinicore/clinicore/internal/domain/inventory"
	"github.com/clinicore/clinicore/internal/domain/prescription"
	"github.com/clinicore/clinicore/internal/domain/scheduling"
	"github.com/clinicore/clinicore/internal/domain/visit"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/clock"
	"github.com/clinicore/clinicore/internal/platform/codes"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic operations API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
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

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	runTx := db.PoolRunner(pool)
	clk := clock.Real{}
	codeGen := codes.NewGenerator(pool)

	// Directory
	doctorRepo := directory.NewDoctorRepoPG(pool)
	patientRepo := directory.NewPatientRepoPG(pool)
	directorySvc := directory.NewService(doctorRepo, patientRepo)
	directoryHandler := directory.NewHandler(directorySvc)

	// Billing
	invoiceRepo := billing.NewInvoiceRepoPG(pool)
	invoiceItemRepo := billing.NewInvoiceItemRepoPG(pool)
	billingSvc := billing.NewService(invoiceRepo, invoiceItemRepo)
	billingHandler := billing.NewHandler(billingSvc)

	// Scheduling
	shiftRepo := scheduling.NewShiftRepoPG(pool)
	dutyRepo := scheduling.NewDutyRepoPG(pool)
	apptRepo := scheduling.NewAppointmentRepoPG(pool)
	policy := scheduling.Policy{
		SlotMinutes:       cfg.SlotMinutes,
		ConsultMinutes:    cfg.ConsultMinutes,
		MaxSlotsPerShift:  cfg.MaxSlotsPerShift,
		MaxPerDay:         cfg.MaxPerDay,
		CancelBeforeHours: cfg.CancelBeforeHrs,
	}
	schedulingSvc := scheduling.NewService(shiftRepo, dutyRepo, apptRepo,
		directorySvc, codeGen, clk, policy, runTx, logger)
	schedulingHandler := scheduling.NewHandler(schedulingSvc)

	// Visits
	visitRepo := visit.NewVisitRepoPG(pool)
	visitSvc := visit.NewService(visitRepo, apptRepo, codeGen, billingSvc,
		clk, cfg.ExaminationFee, runTx, logger)
	visitHandler := visit.NewHandler(visitSvc)

	// Inventory
	medicineRepo := inventory.NewMedicineRepoPG(pool)
	stockExportRepo := inventory.NewStockExportRepoPG(pool)
	stockImportRepo := inventory.NewStockImportRepoPG(pool)
	inventorySvc := inventory.NewService(medicineRepo, stockExportRepo, stockImportRepo, codeGen, runTx)
	inventoryHandler := inventory.NewHandler(inventorySvc)

	// Prescriptions
	prescriptionRepo := prescription.NewPrescriptionRepoPG(pool)
	detailRepo := prescription.NewDetailRepoPG(pool)
	prescriptionSvc := prescription.NewService(prescriptionRepo, detailRepo,
		visitSvc, inventorySvc, billingSvc, codeGen, clk, cfg.ExaminationFee, runTx, logger)
	prescriptionHandler := prescription.NewHandler(prescriptionSvc)

	// Audit log
	auditRepo := auditevent.NewRepoPG(pool)
	auditSvc := auditevent.NewService(auditRepo, logger)
	auditHandler := auditevent.NewHandler(auditSvc)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	// RequestID runs first so recovery and logging can tag their output.
	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health checks stay outside auth
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// API group: auth, rate limiting, audit trail
	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevMiddleware())
	} else {
		apiV1.Use(auth.Middleware([]byte(cfg.JWTSecret)))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.Audit(auditSvc))

	directoryHandler.RegisterRoutes(apiV1)
	schedulingHandler.RegisterRoutes(apiV1)
	visitHandler.RegisterRoutes(apiV1)
	prescriptionHandler.RegisterRoutes(apiV1)
	inventoryHandler.RegisterRoutes(apiV1)
	billingHandler.RegisterRoutes(apiV1)
	auditHandler.RegisterRoutes(apiV1)

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
