package db

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/michael-freling/telecloud/internal/config"
	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite" // Sqlite driver based on CGO
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrRecordNotFound = gorm.ErrRecordNotFound

type Client struct {
	connection *gorm.DB
}

type clientOptions struct {
	gormLogger logger.Interface
	driver     config.DatabaseDriver
}

type ClientOption func(*clientOptions)

func WithNopLogger() ClientOption {
	return func(c *clientOptions) {
		c.gormLogger = logger.New(nil, logger.Config{})
	}
}

func WithGormLogger(l *slog.Logger) ClientOption {
	return func(c *clientOptions) {
		c.gormLogger = slogGorm.New(
			slogGorm.WithHandler(l.Handler()),
			slogGorm.WithTraceAll(), // trace all messages
		)
	}
}

func WithDriver(driver config.DatabaseDriver) ClientOption {
	return func(c *clientOptions) {
		c.driver = driver
	}
}

type DSN string

// DSNFromFilePath enables foreign keys, which SQLite leaves off per connection
// unless the DSN asks for them. Cascading deletes depend on it.
func DSNFromFilePath(directory string, filename string) DSN {
	return DSN(
		fmt.Sprintf("file:%s?cache=shared&_foreign_keys=1",
			filepath.Join(directory, filename),
		),
	)
}

// DSNMemory returns a named in-memory database, so that each caller gets an
// isolated database while all of its pooled connections share it.
func DSNMemory(name string) DSN {
	return DSN(fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name))
}

func (dsn DSN) String() string {
	return string(dsn)
}

func FromConfig(conf config.Config, logger *slog.Logger) (*Client, error) {
	dsn := DSN(conf.Database.DSN)
	if conf.Database.Driver == config.DatabaseDriverSQLite && dsn == "" {
		dsn = DSNFromFilePath(conf.ConfigDirectory,
			fmt.Sprintf("%s_v1.sqlite", conf.Environment),
		)
	}
	logger.Info("Connecting to a DB", "driver", conf.Database.Driver)

	options := []ClientOption{WithDriver(conf.Database.Driver)}
	if conf.Environment == config.EnvironmentDevelopment {
		options = append(options, WithGormLogger(logger))
	} else {
		options = append(options, WithNopLogger())
	}
	return NewClient(dsn, options...)
}

func NewClient(dsn DSN, options ...ClientOption) (*Client, error) {
	opts := clientOptions{
		driver: config.DatabaseDriverSQLite,
	}
	for _, option := range options {
		option(&opts)
	}

	var dialector gorm.Dialector
	switch opts.driver {
	case config.DatabaseDriverSQLite:
		dialector = sqlite.Open(dsn.String())
	case config.DatabaseDriverMySQL:
		dialector = mysql.Open(dsn.String())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.driver)
	}

	connection, err := gorm.Open(dialector, &gorm.Config{
		Logger: opts.gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("gorm.Open: %w", err)
	}

	return &Client{
		connection: connection,
	}, nil
}

func (client *Client) Close() error {
	sqlDB, err := client.connection.DB()
	if err != nil {
		return fmt.Errorf("connection.DB: %w", err)
	}
	return sqlDB.Close()
}

func (client *Client) Migrate() error {
	if err := client.connection.AutoMigrate(
		&Owner{},
		&Item{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := client.backfillSearchNames(); err != nil {
		return fmt.Errorf("backfillSearchNames: %w", err)
	}
	return nil
}

// backfillSearchNames fills search_name for rows written before the column
// existed.
func (client *Client) backfillSearchNames() error {
	items := make([]Item, 0)
	return client.connection.
		Select("id", "name").
		Where("search_name = ? AND name <> ?", "", "").
		FindInBatches(&items, 500, func(_ *gorm.DB, _ int) error {
			for _, item := range items {
				if err := client.connection.
					Model(&Item{}).
					Where("id = ?", item.ID).
					Update("search_name", searchName(item.Name)).
					Error; err != nil {
					return err
				}
			}
			return nil
		}).
		Error
}

type ORMClient[Model any] struct {
	connection *gorm.DB
}

func GetAll[Model any](client *Client) ([]Model, error) {
	var values []Model
	err := client.connection.Find(&values).Error
	return values, err
}

func BatchCreate[Model any](client *Client, values []Model) error {
	if len(values) == 0 {
		return nil
	}
	return client.connection.Create(&values).Error
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
