package cashier

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/google/uuid"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// PostgresConfig configures the connection pool for the Postgres stores.
type PostgresConfig struct {
	ConnectionString string        `env:"CASHIER_PG_CONN_URL,required"`
	MaxOpenConns     int32         `env:"CASHIER_PG_MAX_OPEN_CONNS" envDefault:"10"`
	MinIdleConns     int32         `env:"CASHIER_PG_MIN_IDLE_CONNS" envDefault:"2"`
	RetryAttempts    int           `env:"CASHIER_PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval    time.Duration `env:"CASHIER_PG_RETRY_INTERVAL" envDefault:"5s"`
}

// ErrDatabaseNotReady is returned when the pool cannot be established within
// the configured retry attempts.
var ErrDatabaseNotReady = errors.New("failed to open database connection")

// ConnectPostgres establishes the connection pool with linear retry so
// simultaneous service restarts don't hammer a recovering database.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	connConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrDatabaseNotReady, err)
	}
	connConfig.MaxConns = cfg.MaxOpenConns
	connConfig.MinConns = cfg.MinIdleConns

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := range attempts {
		pool, err := pgxpool.NewWithConfig(ctx, connConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrDatabaseNotReady, ctx.Err())
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}
	return nil, ErrDatabaseNotReady
}

// MigratePostgres applies the kit's embedded schema migrations.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	// goose speaks database/sql, so bridge the pgx pool to it; the wrapper
	// shares the underlying connections.
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// PostgresStores bundles the Postgres-backed store implementations.
type PostgresStores struct {
	Customers     *PostgresCustomerStore
	Subscriptions *PostgresSubscriptionStore
	Plans         *PostgresPlanStore
}

// NewPostgresStores creates the store set over an established pool.
func NewPostgresStores(pool *pgxpool.Pool) *PostgresStores {
	return &PostgresStores{
		Customers:     &PostgresCustomerStore{pool: pool},
		Subscriptions: &PostgresSubscriptionStore{pool: pool},
		Plans:         &PostgresPlanStore{pool: pool},
	}
}

// PostgresCustomerStore is the pgx-backed CustomerStore.
type PostgresCustomerStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresCustomerStore) Get(ctx context.Context, id uuid.UUID) (*Customer, error) {
	const q = `SELECT id, email, name, processor_id, card_brand, card_last_four, trial_ends_at, created_at, updated_at
		FROM cashier_customers WHERE id = $1`

	var c Customer
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&c.ID, &c.Email, &c.Name, &c.ProcessorID, &c.CardBrand, &c.CardLastFour,
		&c.TrialEndsAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresCustomerStore) Save(ctx context.Context, customer *Customer) error {
	const q = `INSERT INTO cashier_customers (id, email, name, processor_id, card_brand, card_last_four, trial_ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			processor_id = EXCLUDED.processor_id,
			card_brand = EXCLUDED.card_brand,
			card_last_four = EXCLUDED.card_last_four,
			trial_ends_at = EXCLUDED.trial_ends_at,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, q,
		customer.ID, customer.Email, customer.Name, customer.ProcessorID,
		customer.CardBrand, customer.CardLastFour, customer.TrialEndsAt,
		customer.CreatedAt, customer.UpdatedAt,
	)
	return err
}

// PostgresSubscriptionStore is the pgx-backed SubscriptionStore. Writes go
// through the optimistic version column so webhook-driven and user-driven
// transitions racing across processes cannot silently overwrite each other.
type PostgresSubscriptionStore struct {
	pool *pgxpool.Pool
}

const subscriptionColumns = `id, customer_id, name, processor_id, plan_id, quantity, trial_ends_at, ends_at, created_at, updated_at, version`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.ID, &sub.CustomerID, &sub.Name, &sub.ProcessorID, &sub.PlanID,
		&sub.Quantity, &sub.TrialEndsAt, &sub.EndsAt,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *PostgresSubscriptionStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM cashier_subscriptions WHERE id = $1`
	return scanSubscription(s.pool.QueryRow(ctx, q, id))
}

func (s *PostgresSubscriptionStore) FindBySlot(ctx context.Context, customerID uuid.UUID, name string) (*Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM cashier_subscriptions WHERE customer_id = $1 AND name = $2`
	return scanSubscription(s.pool.QueryRow(ctx, q, customerID, name))
}

func (s *PostgresSubscriptionStore) FindByProcessorID(ctx context.Context, processorID string) (*Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM cashier_subscriptions WHERE processor_id = $1`
	return scanSubscription(s.pool.QueryRow(ctx, q, processorID))
}

func (s *PostgresSubscriptionStore) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM cashier_subscriptions WHERE customer_id = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PostgresSubscriptionStore) Save(ctx context.Context, subscription *Subscription) error {
	if subscription.Version == 0 {
		const q = `INSERT INTO cashier_subscriptions (id, customer_id, name, processor_id, plan_id, quantity, trial_ends_at, ends_at, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)`
		_, err := s.pool.Exec(ctx, q,
			subscription.ID, subscription.CustomerID, subscription.Name,
			subscription.ProcessorID, subscription.PlanID, subscription.Quantity,
			subscription.TrialEndsAt, subscription.EndsAt,
			subscription.CreatedAt, subscription.UpdatedAt,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Unique violation on (customer_id, name) or processor_id: a row
			// already occupies the slot.
			return ErrDuplicateSlot
		}
		if err != nil {
			return err
		}
		subscription.Version = 1
		return nil
	}

	const q = `UPDATE cashier_subscriptions SET
			plan_id = $3, quantity = $4, trial_ends_at = $5, ends_at = $6, updated_at = $7, version = version + 1
		WHERE id = $1 AND version = $2`
	tag, err := s.pool.Exec(ctx, q,
		subscription.ID, subscription.Version,
		subscription.PlanID, subscription.Quantity,
		subscription.TrialEndsAt, subscription.EndsAt, subscription.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}
	subscription.Version++
	return nil
}

func (s *PostgresSubscriptionStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM cashier_subscriptions WHERE id = $1`, id)
	return err
}

// PostgresPlanStore is the pgx-backed PlanStore.
type PostgresPlanStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresPlanStore) Get(ctx context.Context, id string) (*Plan, error) {
	const q = `SELECT id, name, amount, currency, billing_interval, interval_count, trial_days, expiry_count
		FROM cashier_plans WHERE id = $1`

	var p Plan
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.Name, &p.Amount, &p.Currency, &p.Interval,
		&p.IntervalCount, &p.TrialDays, &p.ExpiryCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresPlanStore) Save(ctx context.Context, plan *Plan) error {
	const q = `INSERT INTO cashier_plans (id, name, amount, currency, billing_interval, interval_count, trial_days, expiry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			billing_interval = EXCLUDED.billing_interval,
			interval_count = EXCLUDED.interval_count,
			trial_days = EXCLUDED.trial_days,
			expiry_count = EXCLUDED.expiry_count`

	_, err := s.pool.Exec(ctx, q,
		plan.ID, plan.Name, plan.Amount, plan.Currency, plan.Interval,
		plan.IntervalCount, plan.TrialDays, plan.ExpiryCount,
	)
	return err
}
