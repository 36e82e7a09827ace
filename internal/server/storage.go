package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/actiontokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var errRedisNeedsPostgres = errors.New("redis action tokens require the postgres storage backend")

// Storage bundles the repository manager with the connections behind it.
// DB and Redis are nil when the corresponding backend is not in use.
type Storage struct {
	DB    *sql.DB
	Redis redis.UniversalClient
	Repos repomanager.RepositoryManager
}

// OpenStorage builds the repository manager selected by c. The postgres
// backend is migrated before use. On error everything opened so far is
// closed again.
func OpenStorage(ctx context.Context, c *config.Config, log logging.Logger) (*Storage, error) {
	if c.StorageBackend == config.BackendMemory {
		if c.ActionTokenBackend == config.BackendRedis {
			return nil, errRedisNeedsPostgres
		}
		log.Warn(ctx, "using in-memory storage, all data is lost on restart")
		return &Storage{Repos: memory.NewManager()}, nil
	}

	s := &Storage{}
	if err := s.openPostgres(ctx, c); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) openPostgres(ctx context.Context, c *config.Config) error {
	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	s.DB = db
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping error: %w", err)
	}

	var opts []repomanager.Option
	if c.ActionTokenBackend == config.BackendRedis {
		s.Redis = redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping error: %w", err)
		}
		opts = append(opts, repomanager.WithActionTokenRepository(
			actiontokens.NewRedisRepository(s.Redis, actiontokens.DefaultRedisPrefix),
		))
	}

	repos, err := repomanager.NewPostgresRepositoryManager(db, opts...)
	if err != nil {
		return fmt.Errorf("repository init error: %w", err)
	}
	if err := repos.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}
	s.Repos = repos
	return nil
}

// Ping checks the connections in use.
func (s *Storage) Ping(ctx context.Context) error {
	var errs []error
	if s.DB != nil {
		errs = append(errs, s.DB.PingContext(ctx))
	}
	if s.Redis != nil {
		errs = append(errs, s.Redis.Ping(ctx).Err())
	}
	return errors.Join(errs...)
}

// Close releases database and redis connections.
func (s *Storage) Close() {
	if s == nil {
		return
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
}
