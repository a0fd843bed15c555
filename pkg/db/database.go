package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/thep200/dothub-crawler/cfg"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverMysql    = "mysql"
	DriverSqlite   = "sqlite"
)

// Database is the process-wide connection pool. It is opened once on first
// use; every caller checks a connection out per statement through gorm.
type Database struct {
	Config  *cfg.Config
	once    sync.Once
	db      *gorm.DB
	initErr error
}

func NewDatabase(config *cfg.Config) (*Database, error) {
	switch config.Database.Driver {
	case DriverPostgres, DriverMysql, DriverSqlite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Database.Driver)
	}
	return &Database{
		Config: config,
	}, nil
}

func (d *Database) DSN() string {
	c := d.Config.Database
	if c.Dsn != "" || c.Driver != DriverMysql {
		return c.Dsn
	}
	config := mysqlDriver.NewConfig()
	config.User = c.Username
	config.Passwd = c.Password
	config.DBName = c.Database
	config.Addr = c.Host + ":" + c.Port
	config.Net = "tcp"
	config.ParseTime = true
	config.AllowNativePasswords = true
	return config.FormatDSN()
}

func (d *Database) dialector() (gorm.Dialector, error) {
	switch d.Config.Database.Driver {
	case DriverPostgres:
		pgxConfig, err := pgx.ParseConfig(d.DSN())
		if err != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		return postgres.New(postgres.Config{Conn: stdlib.OpenDB(*pgxConfig)}), nil
	case DriverMysql:
		return mysql.Open(d.DSN()), nil
	default:
		return sqlite.Open(sqliteDSN(d.DSN())), nil
	}
}

// sqliteDSN turns on foreign keys so association rows cannot point at
// missing repositories or configurations.
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "dothub.sqlite"
	}
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

func (d *Database) Db() (*gorm.DB, error) {
	d.once.Do(func() {
		var dialector gorm.Dialector
		dialector, d.initErr = d.dialector()
		if d.initErr != nil {
			return
		}

		// Open connection
		var db *gorm.DB
		db, d.initErr = gorm.Open(dialector, &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if d.initErr != nil {
			return
		}

		// Get sqlDB
		var sqlDB *sql.DB
		sqlDB, d.initErr = db.DB()
		if d.initErr != nil {
			return
		}

		// Setting connection pool
		c := d.Config.Database
		maxOpen := c.MaxOpenConnection
		if c.Driver == DriverSqlite {
			// sqlite serialises writers; one connection avoids "database is locked".
			maxOpen = 1
		}
		sqlDB.SetMaxIdleConns(c.MaxIdleConnection)
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetConnMaxLifetime(time.Duration(c.MaxLifeTimeConnection) * time.Second)

		d.db = db
	})
	return d.db, d.initErr
}

// Session hands out the pool bound to ctx.
func (d *Database) Session(ctx context.Context) (*gorm.DB, error) {
	db, err := d.Db()
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx), nil
}

func (d *Database) Ping(ctx context.Context) error {
	db, err := d.Db()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	if d.db != nil {
		sqlDB, err := d.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func (d *Database) Migrate(ctx context.Context, models ...interface{}) error {
	db, err := d.Session(ctx)
	if err != nil {
		return err
	}
	return db.AutoMigrate(models...)
}
