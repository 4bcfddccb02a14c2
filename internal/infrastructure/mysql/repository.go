package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"devdash/internal/application"
	"devdash/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	settingEndpoint  = "endpoint"
	settingSealedKey = "sealed_key"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS verifications (
			address VARCHAR(42) NOT NULL,
			name VARCHAR(255) NOT NULL,
			abi MEDIUMTEXT NOT NULL,
			source MEDIUMTEXT NOT NULL,
			compiler VARCHAR(64) NOT NULL,
			optimized TINYINT(1) NOT NULL,
			verified_at BIGINT NOT NULL,
			PRIMARY KEY (address)
		)`,
		`CREATE TABLE IF NOT EXISTS deployments (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL,
			address VARCHAR(42) NOT NULL,
			tx_hash VARCHAR(66) NOT NULL,
			abi MEDIUMTEXT NOT NULL,
			deployed_at BIGINT NOT NULL,
			PRIMARY KEY (id),
			KEY deployments_address_idx (address)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			setting_key VARCHAR(64) NOT NULL,
			setting_value BLOB NOT NULL,
			PRIMARY KEY (setting_key)
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
	address = domain.NormalizeAddress(address)
	ctx, span := startDBSpan(ctx, "mysql.GetVerification", attribute.String("address", address))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		v          domain.Verification
		abiRaw     string
		optimized  int
		verifiedAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT name, abi, source, compiler, optimized, verified_at
		FROM verifications WHERE address = ?`, address).
		Scan(&v.Name, &abiRaw, &v.Source, &v.Compiler, &optimized, &verifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Verification{}, false, nil
		}
		recordSpanError(span, err)
		return domain.Verification{}, false, err
	}
	v.ABI = []byte(abiRaw)
	v.Optimized = optimized != 0
	v.VerifiedAt = time.Unix(0, verifiedAt).UTC()
	return v, true, nil
}

func (r *Repository) PutVerification(ctx context.Context, address string, v domain.Verification) error {
	address = domain.NormalizeAddress(address)
	ctx, span := startDBSpan(ctx, "mysql.PutVerification", attribute.String("address", address))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	optimized := 0
	if v.Optimized {
		optimized = 1
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO verifications (address, name, abi, source, compiler, optimized, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			abi = VALUES(abi),
			source = VALUES(source),
			compiler = VALUES(compiler),
			optimized = VALUES(optimized),
			verified_at = VALUES(verified_at)`,
		address, v.Name, string(v.ABI), v.Source, v.Compiler, optimized, v.VerifiedAt.UnixNano())
	if err != nil {
		recordSpanError(span, err)
	}
	return err
}

func (r *Repository) AddDeployment(ctx context.Context, d domain.Deployment) error {
	ctx, span := startDBSpan(ctx, "mysql.AddDeployment", attribute.String("address", domain.NormalizeAddress(d.Address)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO deployments (name, address, tx_hash, abi, deployed_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.Name, domain.NormalizeAddress(d.Address), d.TxHash, string(d.ABI), d.DeployedAt.UnixNano())
	if err != nil {
		recordSpanError(span, err)
	}
	return err
}

func (r *Repository) ListDeployments(ctx context.Context, limit int) ([]domain.Deployment, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	ctx, span := startDBSpan(ctx, "mysql.ListDeployments", attribute.Int("limit", limit))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT name, address, tx_hash, abi, deployed_at
		FROM deployments ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		recordSpanError(span, err)
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
			recordSpanError(span, err)
			return nil, err
		}
		d.ABI = []byte(abiRaw)
		d.DeployedAt = time.Unix(0, deployedAt).UTC()
		deployments = append(deployments, d)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("deployment.count", len(deployments)))
	return deployments, nil
}

func (r *Repository) SaveConnection(ctx context.Context, settings application.ConnectionSettings) error {
	ctx, span := startDBSpan(ctx, "mysql.SaveConnection", attribute.Bool("sealed_key", len(settings.SealedKey) > 0))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO settings (setting_key, setting_value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value)`)
	if err != nil {
		_ = tx.Rollback()
		recordSpanError(span, err)
		return err
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, settingEndpoint, []byte(settings.Endpoint)); err != nil {
		_ = tx.Rollback()
		recordSpanError(span, err)
		return err
	}
	if len(settings.SealedKey) == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM settings WHERE setting_key = ?`, settingSealedKey)
	} else {
		_, err = stmt.ExecContext(ctx, settingSealedKey, settings.SealedKey)
	}
	if err != nil {
		_ = tx.Rollback()
		recordSpanError(span, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

func (r *Repository) LoadConnection(ctx context.Context) (application.ConnectionSettings, bool, error) {
	ctx, span := startDBSpan(ctx, "mysql.LoadConnection")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT setting_key, setting_value FROM settings WHERE setting_key IN (?, ?)`,
		settingEndpoint, settingSealedKey)
	if err != nil {
		recordSpanError(span, err)
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
			recordSpanError(span, err)
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
		recordSpanError(span, err)
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

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("devdash/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
