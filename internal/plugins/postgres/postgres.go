package postgres

import (
	"context"
	"database/sql"
	"errors"

	"meshup/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func New(ctx context.Context, cfg *config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// Pool tuning
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	// Health check
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Store bundles every repository over one pool.
type Store struct {
	*UserRepo
	*ServerRepo
	*ChannelRepo
	*MessageRepo
	*DirectMessageRepo
	*EventRepo
	*CallRepo
	*TxManager
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		UserRepo:          NewUserRepo(db),
		ServerRepo:        NewServerRepo(db),
		ChannelRepo:       NewChannelRepo(db),
		MessageRepo:       NewMessageRepo(db),
		DirectMessageRepo: NewDirectMessageRepo(db),
		EventRepo:         NewEventRepo(db),
		CallRepo:          NewCallRepo(db),
		TxManager:         NewTxManager(db),
	}
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}

func affected(res sql.Result, sentinel error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sentinel
	}
	return nil
}
