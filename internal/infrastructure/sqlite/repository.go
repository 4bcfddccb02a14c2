package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"devdash/internal/application"
	"devdash/internal/domain"

	_ "modernc.org/sqlite"
)

const (
	settingEndpoint  = "endpoint"
	settingSealedKey = "sealed_key"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// modernc sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS verifications (
			address TEXT NOT NULL PRIMARY KEY,
			name TEXT NOT NULL,
			abi TEXT NOT NULL,
			source TEXT NOT NULL,
			compiler TEXT NOT NULL,
			optimized INTEGER NOT NULL,
			verified_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deployments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			address TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			abi TEXT NOT NULL,
			deployed_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT NOT NULL PRIMARY KEY,
			value BLOB NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) GetVerification(ctx context.Context, address string) (domain.Verification, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		v          domain.Verification
		abiRaw     string
		optimized  int
		verifiedAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT name, abi, source, compiler, optimized, verified_at
		FROM verifications WHERE address = ?`, domain.NormalizeAddress(address)).
		Scan(&v.Name, &abiRaw, &v.Source, &v.Compiler, &optimized, &verifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Verification{}, false, nil
		}
		return domain.Verification{}, false, err
	}
	v.ABI = []byte(abiRaw)
	v.Optimized = optimized != 0
	v.VerifiedAt = time.Unix(0, verifiedAt).UTC()
	return v, true, nil
}

func (r *Repository) PutVerification(ctx context.Context, address string, v domain.Verification) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	optimized := 0
	if v.Optimized {
		optimized = 1
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO verifications (address, name, abi, source, compiler, optimized, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = excluded.name,
			abi = excluded.abi,
			source = excluded.source,
			compiler = excluded.compiler,
			optimized = excluded.optimized,
			verified_at = excluded.verified_at`,
		domain.NormalizeAddress(address), v.Name, string(v.ABI), v.Source, v.Compiler, optimized, v.VerifiedAt.UnixNano())
	return err
}

func (r *Repository) AddDeployment(ctx context.Context, d domain.Deployment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO deployments (name, address, tx_hash, abi, deployed_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.Name, domain.NormalizeAddress(d.Address), d.TxHash, string(d.ABI), d.DeployedAt.UnixNano())
	return err
}

func (r *Repository) ListDeployments(ctx context.Context, limit int) ([]domain.Deployment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT name, address, tx_hash, abi, deployed_at
		FROM deployments ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []domain.Deployment
	for rows.Next() {
		var (
			d          domain.Deployment
			abiRaw     string
			deployedAt int64
		)
		if err := rows.Scan(&d.Name, &d.Address, &d.TxHash, &abiRaw, &deployedAt); err != nil {
			return nil, err
		}
		d.ABI = []byte(abiRaw)
		d.DeployedAt = time.Unix(0, deployedAt).UTC()
		deployments = append(deployments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deployments, nil
}

func (r *Repository) SaveConnection(ctx context.Context, settings application.ConnectionSettings) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, settingEndpoint, []byte(settings.Endpoint)); err != nil {
		return err
	}
	if len(settings.SealedKey) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, settingSealedKey); err != nil {
			return err
		}
	} else if _, err := stmt.ExecContext(ctx, settingSealedKey, settings.SealedKey); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) LoadConnection(ctx context.Context) (application.ConnectionSettings, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings WHERE key IN (?, ?)`,
		settingEndpoint, settingSealedKey)
	if err != nil {
		return application.ConnectionSettings{}, false, err
	}
	defer rows.Close()

	var (
		settings application.ConnectionSettings
		found    bool
	)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return application.ConnectionSettings{}, false, err
		}
		switch key {
		case settingEndpoint:
			settings.Endpoint = string(value)
			found = true
		case settingSealedKey:
			settings.SealedKey = value
		}
	}
	if err := rows.Err(); err != nil {
		return application.ConnectionSettings{}, false, err
	}
	if !found {
		return application.ConnectionSettings{}, false, nil
	}
	return settings, true, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}
