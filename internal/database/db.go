package database

import (
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // PostgreSQL dialect
	_ "github.com/jinzhu/gorm/dialects/sqlite"  // SQLite dialect

	"proofbench/internal/models"
)

var DB *gorm.DB

// InitDB initializes the database connection. Dialect is "sqlite3" or
// "postgres"; source is the file path or connection string.
func InitDB(dialect, source string) error {
	var err error
	DB, err = gorm.Open(dialect, source)
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	return nil
}

// Migrate creates or updates the schema for all engine entities.
func Migrate() error {
	return DB.AutoMigrate(
		&models.Agent{},
		&models.TestCase{},
		&models.TestExecution{},
		&models.SecurityTestExecution{},
		&models.BatchExecution{},
		&models.AgreementAnalysis{},
		&models.ComplianceReport{},
		&models.ImprovementReport{},
		&models.Improvement{},
	).Error
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// CloseDB closes the database connection
func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
