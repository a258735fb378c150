package database

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitOptions 初始化选项
type InitOptions struct {
	DSN      string
	AdminDSN string // 维护库连接串，为空则不自动建库
	DBName   string
	Pool     PoolConfig
	Models   []interface{}
}

// Initialize 建库（可选）→ 连接 → 建表
func Initialize(ctx context.Context, opts InitOptions, gl gormlogger.Interface, log *zap.Logger) (*gorm.DB, error) {
	if opts.AdminDSN != "" {
		if err := EnsureDatabase(ctx, opts.AdminDSN, opts.DBName, gl, log); err != nil {
			return nil, err
		}
	}

	db, err := Open(opts.DSN, opts.Pool, gl)
	if err != nil {
		return nil, err
	}
	log.Info("数据库连接成功", zap.String("dbname", opts.DBName))

	if len(opts.Models) > 0 {
		if err := Migrate(db.WithContext(ctx), log, opts.Models...); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// EnsureDatabase 目标库不存在时创建
func EnsureDatabase(ctx context.Context, adminDSN, dbName string, gl gormlogger.Interface, log *zap.Logger) error {
	admin, err := Open(adminDSN, PoolConfig{MaxOpenConns: 1}, gl)
	if err != nil {
		return fmt.Errorf("连接维护库失败: %w", err)
	}
	defer Close(admin)

	var count int64
	if err := admin.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM pg_database WHERE datname = ?", dbName).
		Scan(&count).Error; err != nil {
		return fmt.Errorf("检查数据库 %s 失败: %w", dbName, err)
	}

	if count > 0 {
		log.Info("数据库已存在", zap.String("dbname", dbName))
		return nil
	}

	// CREATE DATABASE 不支持参数占位符，只能拼接带引号的标识符
	if err := admin.WithContext(ctx).Exec("CREATE DATABASE " + quoteIdent(dbName)).Error; err != nil {
		return fmt.Errorf("创建数据库 %s 失败: %w", dbName, err)
	}
	log.Info("数据库创建成功", zap.String("dbname", dbName))
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
