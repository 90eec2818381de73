package mysql

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xiebiao/library/internal/infrastructure/config"
	"github.com/xiebiao/library/pkg/logger"
)

// NewDB 创建数据库连接
// 1. 配置连接池参数(MaxOpenConns、MaxIdleConns、ConnMaxLifetime)
// 2. 按配置决定SQL日志级别
// 3. 按配置自动迁移表结构
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg.Database.DSN(), cfg.Database.LogLevel)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取SQL DB失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}
	logger.L().Info("数据库连接成功", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))

	if cfg.Database.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("数据库迁移失败: %w", err)
		}
	}
	return db, nil
}

// Open 打开连接
// DATETIME精度为秒,时间统一UTC,与领域层的时钟保持一致
func Open(dsn, logLevel string) (*gorm.DB, error) {
	precision := 0
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                      dsn,
		DefaultDatetimePrecision: &precision,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(parseLogLevel(logLevel)),
		NowFunc: func() time.Time {
			return time.Now().UTC().Truncate(time.Second)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	return db, nil
}

func parseLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// AutoMigrate 自动迁移表结构
// 顺序即外键依赖顺序
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&BookModel{},
		&InventoryRecordModel{},
		&InventoryLogModel{},
		&ActiveCheckoutModel{},
		&ArchivedCheckoutModel{},
	)
}

// UserModel GORM用户模型
// infrastructure层的数据模型,domain/user/entity.go是不依赖GORM的领域实体
type UserModel struct {
	ID        uint      `gorm:"primaryKey"`
	Email     string    `gorm:"uniqueIndex;size:100;not null;comment:邮箱(小写)"`
	Password  string    `gorm:"size:255;not null;comment:密码(bcrypt加密)"`
	Nickname  string    `gorm:"size:50;not null;comment:昵称"`
	Bio       string    `gorm:"size:500;comment:简介(小写)"`
	Role      string    `gorm:"size:20;not null;default:member;comment:角色(member/librarian)"`
	CreatedAt time.Time `gorm:"comment:创建时间"`
	UpdatedAt time.Time `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (UserModel) TableName() string {
	return "users"
}

// BookModel GORM图书模型
// 书名、ISBN各有唯一索引;删除时被借阅记录引用则由外键拒绝
type BookModel struct {
	ID            uint       `gorm:"primaryKey"`
	Title         string     `gorm:"uniqueIndex:uk_books_title;size:200;not null;comment:书名"`
	Author        string     `gorm:"index;size:75;not null;comment:作者"`
	ISBN          string     `gorm:"uniqueIndex:uk_books_isbn;size:13;not null;comment:ISBN(规范化)"`
	PublishedDate *time.Time `gorm:"type:date;comment:出版日期"`
	CreatedAt     time.Time  `gorm:"comment:创建时间"`
	UpdatedAt     time.Time  `gorm:"comment:更新时间"`
}

// TableName 指定表名
func (BookModel) TableName() string {
	return "books"
}

// InventoryRecordModel 馆藏记录,主键即book_id,随图书级联删除
type InventoryRecordModel struct {
	BookID    uint      `gorm:"primaryKey;autoIncrement:false;comment:图书ID"`
	Copies    int       `gorm:"index;not null;default:0;comment:在架副本数"`
	Available bool      `gorm:"not null;default:false;comment:是否可借(copies>=1)"`
	Version   int64     `gorm:"not null;default:1;comment:变更版本号"`
	DateAdded time.Time `gorm:"not null;comment:入库时间"`
	UpdatedAt time.Time `gorm:"comment:更新时间"`

	Book BookModel `gorm:"foreignKey:BookID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName 指定表名
func (InventoryRecordModel) TableName() string {
	return "inventory_records"
}

// InventoryLogModel 库存流水
type InventoryLogModel struct {
	ID          uint      `gorm:"primaryKey"`
	BookID      uint      `gorm:"index;not null;comment:图书ID"`
	ChangeType  string    `gorm:"size:16;not null;comment:变更类型(checkout/return/restock/adjust)"`
	Delta       int       `gorm:"not null;comment:变化量"`
	CopiesAfter int       `gorm:"not null;comment:变更后副本数"`
	CheckoutID  *uint     `gorm:"index;comment:关联借阅ID"`
	CreatedAt   time.Time `gorm:"index;comment:创建时间"`

	Book BookModel `gorm:"foreignKey:BookID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName 指定表名
func (InventoryLogModel) TableName() string {
	return "inventory_logs"
}

// ActiveCheckoutModel 在借记录
// (user_id, book_id)唯一,兜底并发下的重复借阅
type ActiveCheckoutModel struct {
	ID           uint       `gorm:"primaryKey"`
	UserID       uint       `gorm:"uniqueIndex:uk_checkout_user_book,priority:1;not null;comment:读者ID"`
	BookID       uint       `gorm:"uniqueIndex:uk_checkout_user_book,priority:2;index;not null;comment:图书ID"`
	Status       string     `gorm:"index:idx_status_due,priority:1;size:16;not null;default:pending;comment:状态(小写)"`
	CheckoutDate time.Time  `gorm:"not null;comment:借出时间"`
	DueDate      time.Time  `gorm:"index:idx_status_due,priority:2;not null;comment:应还时间"`
	ReturnDate   *time.Time `gorm:"comment:归还时间"`
	UpdatedAt    time.Time  `gorm:"comment:更新时间"`

	Book BookModel `gorm:"foreignKey:BookID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	User UserModel `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName 指定表名
func (ActiveCheckoutModel) TableName() string {
	return "active_checkouts"
}

// ArchivedCheckoutModel 借阅历史
// idempotency_key唯一,重复归档走ON DUPLICATE KEY空操作
type ArchivedCheckoutModel struct {
	ID               uint      `gorm:"primaryKey"`
	SourceCheckoutID uint      `gorm:"index;not null;comment:原在借记录ID"`
	BookID           uint      `gorm:"index;not null;comment:图书ID"`
	UserID           uint      `gorm:"index;not null;comment:读者ID"`
	CheckoutDate     time.Time `gorm:"not null;comment:借出时间"`
	ReturnDate       time.Time `gorm:"index;not null;comment:归还时间"`
	IdempotencyKey   string    `gorm:"uniqueIndex:uk_archive_key;size:64;not null;comment:幂等键"`
	CreatedAt        time.Time `gorm:"comment:归档时间"`

	Book BookModel `gorm:"foreignKey:BookID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	User UserModel `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName 指定表名
func (ArchivedCheckoutModel) TableName() string {
	return "archived_checkouts"
}
