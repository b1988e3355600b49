package db

import (
	"fmt"
	"time"

	"deploy-controller/internal/config"
	"deploy-controller/internal/logging"
	"deploy-controller/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect는 PostgreSQL 연결을 열고 커넥션 풀을 설정합니다.
// 연결의 수명(Close)은 호출한 main이 책임집니다.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	logMode := logger.Warn
	if cfg.GinMode == "debug" {
		logMode = logger.Info
	}

	// 1. GORM을 사용하여 PostgreSQL 드라이버로 연결
	database, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database (DB 연결 실패): %w", err)
	}

	// 2. Connection Pool(커넥션 풀) 설정
	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get generic database object: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logging.WithComponent("db").Info().Str("host", cfg.DB_Host).Msg("Successfully connected to PostgreSQL database (PostgreSQL 연결 성공)")
	return database, nil
}

// Migrate는 모델 기반으로 테이블을 생성/갱신합니다.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.TenantIdentity{},
		&models.Deployment{},
	); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return nil
}

// Close는 커넥션 풀을 닫습니다.
func Close(database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
