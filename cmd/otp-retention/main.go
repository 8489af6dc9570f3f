package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gigmarket/gigauth/internal/config"
	pgRepo "github.com/gigmarket/gigauth/internal/repository/postgres"
	"github.com/gigmarket/gigauth/internal/retention"
	"github.com/gigmarket/gigauth/pkg/database"
)

type options struct {
	dryRun     bool
	reportPath string
	olderThan  time.Duration
}

// Очистка погашенных и истекших OTP-записей. Запускается по расписанию (cron/k8s CronJob).
func main() {
	var opts options
	flag.BoolVar(&opts.dryRun, "dry-run", false, "только посчитать записи, ничего не удалять")
	flag.StringVar(&opts.reportPath, "report", "", "путь к xlsx-отчету (пусто: без отчета)")
	flag.DurationVar(&opts.olderThan, "older-than", 0, "переопределить otp.retention")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: не удалось прочитать .env: %v", err)
	}
	if err := run(opts); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sqlDB, err := sql.Open("postgres", cfg.Database.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer sqlDB.Close()

	// Job может стартовать раньше API: схема должна быть актуальной
	if err := database.MigrateSQL(sqlDB, database.DefaultMigrationsPath); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize gorm: %w", err)
	}

	keep := cfg.OTP.Retention
	if opts.olderThan > 0 {
		keep = opts.olderThan
	}
	job, err := retention.NewJob(pgRepo.NewOTPRepo(db), keep)
	if err != nil {
		return fmt.Errorf("failed to create retention job: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := job.Run(ctx, opts.dryRun)
	if err != nil {
		return fmt.Errorf("retention run failed: %w", err)
	}

	if opts.reportPath != "" {
		f, err := os.Create(opts.reportPath)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		if err := retention.WriteReport(f, result); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		log.Printf("Отчет сохранен в %s", opts.reportPath)
	}

	log.Printf("Готово: найдено %d, удалено %d (dry-run=%t)", result.Total(), result.Purged, result.DryRun)
	return nil
}
