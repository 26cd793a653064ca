package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"FiscalAgent/app/models"
)

var db *gorm.DB

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return db
}

// postgresDSN constructs a PostgreSQL connection string from environment
// variables. Priority: DATABASE_URL > individual variables (DB_HOST, DB_PORT,
// etc.). Returns empty when nothing PostgreSQL-related is configured, which
// selects the embedded SQLite store.
func postgresDSN() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		log.Printf("Using DATABASE_URL for database connection")
		return dsn
	}

	host := os.Getenv("DB_HOST")
	if host == "" {
		return ""
	}

	port := os.Getenv("DB_PORT")
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	dbname := os.Getenv("DB_NAME")
	sslmode := os.Getenv("DB_SSLMODE")

	if port == "" {
		port = "5432"
	}
	if user == "" {
		user = "postgres"
	}
	if password == "" {
		password = "postgres"
	}
	if dbname == "" {
		dbname = "fiscalagent"
	}
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	log.Printf("Built database connection from individual variables: host=%s port=%s dbname=%s sslmode=%s",
		host, port, dbname, sslmode)

	return dsn
}

// Initialize opens the database and runs migrations. A PostgreSQL DSN in the
// environment selects Postgres; otherwise the agent uses an embedded SQLite
// file (CGO-free driver). sqlitePath may be empty to use "fiscalagent.db" in
// the working directory.
func Initialize(sqlitePath string) error {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var err error
	if dsn := postgresDSN(); dsn != "" {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get database instance: %w", err)
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		if sqlitePath == "" {
			sqlitePath = "fiscalagent.db"
		}
		if dir := filepath.Dir(sqlitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to local database: %w", err)
		}
		log.Printf("Using embedded SQLite database at %s", sqlitePath)
	}

	if err := RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := SeedInitialData(); err != nil {
		log.Printf("Warning: failed to seed initial data: %v", err)
	}

	return nil
}

// RunMigrations runs database migrations
func RunMigrations() error {
	err := db.AutoMigrate(
		&models.NCFRange{},
		&models.PrintRecord{},
		&models.ReportConfig{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	createIndexes()
	return nil
}

// createIndexes creates database indexes for better query performance
func createIndexes() {
	db.Exec("CREATE INDEX IF NOT EXISTS idx_print_records_printed_at ON print_records(printed_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_print_records_ncf_type ON print_records(ncf_type)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_ncf_ranges_ncf_type ON ncf_ranges(ncf_type)")
}

// SeedInitialData seeds the default report configuration
func SeedInitialData() error {
	var count int64
	db.Model(&models.ReportConfig{}).Count(&count)
	if count == 0 {
		cfg := models.ReportConfig{
			IsEnabled: false,
			SheetName: "Fiscal",
		}
		if err := db.Create(&cfg).Error; err != nil {
			return fmt.Errorf("error creating default report config: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction executes a function within a database transaction
func Transaction(fn func(*gorm.DB) error) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	return db.Transaction(fn)
}
