package data

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"citylayers/internal/conf"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/store/go_cache/v4"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/google/wire"
	gocache "github.com/patrickmn/go-cache"
	"github.com/qustavo/sqlhooks/v2"

	"modernc.org/sqlite"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewSqlDriver,
	NewGraphDriver,
	NewGraphRepo,
	NewSessionRepo,
	NewAddressCache,
	NewLanguageModel,
	NewReverseGeocoder,
	NewExternalSources,
)

// Data .
type Data struct {
	cache  cache.CacheInterface[any]
	conf   *conf.Data
	sqlDrv *entsql.Driver
	graph  neo4j.DriverWithContext
}

// SQLDB 返回共享的 *sql.DB（由 ent 驱动管理的连接池）
func (d *Data) SQLDB() *sql.DB {
	if d.sqlDrv != nil {
		return d.sqlDrv.DB()
	}
	return nil
}

// Graph 返回图数据库驱动
func (d *Data) Graph() neo4j.DriverWithContext {
	return d.graph
}

// Cache 返回缓存客户端
func (d *Data) Cache() cache.CacheInterface[any] {
	return d.cache
}

// NewData .
func NewData(
	c *conf.Data,
	drv *entsql.Driver,
	graph neo4j.DriverWithContext,
	logger log.Logger) (*Data, func(), error) {
	goCache := gocache.New(5*time.Minute, 10*time.Minute)
	store := go_cache.NewGoCache(goCache)
	cacheManager := cache.New[any](store)
	data := &Data{
		conf:   c,
		cache:  cacheManager,
		sqlDrv: drv,
		graph:  graph,
	}
	cleanup := func() {
		log.NewHelper(logger).Info("closing the data resources")
		if graph != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = graph.Close(ctx)
		}
		_ = drv.Close()
	}
	// 会话表不依赖 ent 代码生成，启动时按方言建表
	if err := migrateSessions(context.Background(), drv); err != nil {
		cleanup()
		return nil, nil, err
	}
	return data, cleanup, nil
}

// NewGraphDriver 创建图数据库驱动，连接在首次查询时建立。
func NewGraphDriver(c *conf.Data) (neo4j.DriverWithContext, error) {
	g := c.Graph
	if g.URI == "" {
		return nil, fmt.Errorf("graph uri is not configured")
	}
	return neo4j.NewDriverWithContext(g.URI, neo4j.BasicAuth(g.Username, g.Password, ""), func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = 50
		cfg.ConnectionAcquisitionTimeout = g.Timeout.AsDuration()
	})
}

func NewSqlDriver(conf *conf.Data) (*entsql.Driver, error) {
	hooks := &Hooks{slow: conf.Database.SlowThreshold.AsDuration(), debug: conf.Database.Debug}
	switch conf.Database.Driver {
	case "mysql":
		return newMySqlDriver(conf, hooks)
	case "sqlite3", "sqlite":
		return newSqliteDriver(conf, hooks)
	case "postgres", "postgresql", "pgx":
		return newPostgresDriver(conf, hooks)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conf.Database.Driver)
	}
}

var registered sync.Map

// registerHooked 同一驱动名只能注册一次。
func registerHooked(name string, register func()) {
	if _, loaded := registered.LoadOrStore(name, true); !loaded {
		register()
	}
}

func configurePool(db *sql.DB) {
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(100)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(time.Minute * 10)
}

func newSqliteDriver(conf *conf.Data, hooks *Hooks) (*entsql.Driver, error) {
	registerHooked("sqlite3WithHooks", func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite.Driver{}, hooks))
	})
	db, err := sql.Open("sqlite3WithHooks", conf.Database.Source)
	if err != nil {
		return nil, err
	}
	configurePool(db)
	return entsql.OpenDB(dialect.SQLite, db), nil
}

func newMySqlDriver(conf *conf.Data, hooks *Hooks) (*entsql.Driver, error) {
	registerHooked("mysqlWithHooks", func() {
		sql.Register("mysqlWithHooks", sqlhooks.Wrap(&mysql.MySQLDriver{}, hooks))
	})
	cfg, err := mysql.ParseDSN(conf.Database.Source)
	if err != nil {
		return nil, err
	}
	DBName := cfg.DBName
	// 去除数据库名字
	cfg.DBName = ""
	tdb, err := sql.Open("mysqlWithHooks", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	defer tdb.Close()
	// 自动创建数据库
	if _, err = tdb.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s CHARACTER SET utf8mb4", DBName)); err != nil {
		return nil, err
	}

	db, err := sql.Open("mysqlWithHooks", conf.Database.Source)
	if err != nil {
		return nil, err
	}
	configurePool(db)
	return entsql.OpenDB(dialect.MySQL, db), nil
}

func newPostgresDriver(conf *conf.Data, hooks *Hooks) (*entsql.Driver, error) {
	registerHooked("pgxWithHooks", func() {
		sql.Register("pgxWithHooks", sqlhooks.Wrap(&stdlib.Driver{}, hooks))
	})
	db, err := sql.Open("pgxWithHooks", conf.Database.Source)
	if err != nil {
		return nil, err
	}
	configurePool(db)
	return entsql.OpenDB(dialect.Postgres, db), nil
}
