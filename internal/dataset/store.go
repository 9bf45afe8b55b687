// Package dataset persists analyzed experiments, their step statistics and
// fitted coefficients in SQLite or PostgreSQL.
package dataset

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/thermoffset/internal/analysis"
	"github.com/chrissnell/thermoffset/internal/offsetfit"
	"github.com/chrissnell/thermoffset/internal/types"
	"github.com/chrissnell/thermoffset/pkg/migrate"
)

//go:embed migrations
var migrationsFS embed.FS

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// MigrationTable records the applied schema version
const MigrationTable = "schema_migrations"

// ErrNotFound is returned when a requested experiment does not exist
var ErrNotFound = errors.New("not found")

// Store is a dataset of analyzed experiments
type Store struct {
	db     *sql.DB
	driver string
	logger *zap.SugaredLogger
}

// Experiment is a stored experiment without its step statistics
type Experiment struct {
	ID           uuid.UUID                `json:"id" msgpack:"id"`
	Name         string                   `json:"name" msgpack:"name"`
	Path         string                   `json:"path" msgpack:"path"`
	Date         string                   `json:"date" msgpack:"date"`
	Time         string                   `json:"time" msgpack:"time"`
	Settings     types.ExperimentSettings `json:"settings" msgpack:"settings"`
	Mode         string                   `json:"mode" msgpack:"mode"`
	ReadingCount int                      `json:"reading_count" msgpack:"reading_count"`
	AnalyzedAt   time.Time                `json:"analyzed_at" msgpack:"analyzed_at"`
}

// FitRecord is a stored model fit
type FitRecord struct {
	ID           uuid.UUID               `json:"id" msgpack:"id"`
	CreatedAt    time.Time               `json:"created_at" msgpack:"created_at"`
	Coefficients types.ModelCoefficients `json:"coefficients" msgpack:"coefficients"`
	RSquared     float64                 `json:"r_squared" msgpack:"r_squared"`
	RMSE         float64                 `json:"rmse" msgpack:"rmse"`
	AIC          float64                 `json:"aic" msgpack:"aic"`
	StepCount    int                     `json:"step_count" msgpack:"step_count"`
}

// Open connects to the dataset database and brings its schema up to date
func Open(driver, dsn string, logger *zap.SugaredLogger) (*Store, error) {
	logger.Infof("connecting to %s dataset...", driver)
	db, err := Connect(driver, dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, driver: driver, logger: logger}
	if err := s.Migrator().MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate dataset: %w", err)
	}
	return s, nil
}

// Connect opens and checks a connection to the dataset database without
// touching its schema
func Connect(driver, dsn string) (*sql.DB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: unsupported dataset driver %q", types.ErrConfig, driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%w: dataset DSN is empty", types.ErrConfig)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to dataset: %w", err)
	}
	if driver == DriverSQLite {
		// a single connection keeps writers from tripping over SQLITE_BUSY
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	return db, nil
}

// Migrator returns a migrator over the embedded schema for the store's driver
func (s *Store) Migrator() *migrate.Migrator {
	return NewMigrator(s.db, s.driver, s.logger.Named("migrate"))
}

// NewMigrator returns a migrator over the embedded schema for driver
func NewMigrator(db *sql.DB, driver string, logger *zap.SugaredLogger) *migrate.Migrator {
	provider := migrate.NewFSProvider(migrationsFS, "migrations/"+driver, MigrationTable, driver)
	return migrate.NewMigrator(db, provider, logger)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveExperiment stores an analyzed experiment with its step statistics. An
// experiment stored earlier under the same name is replaced.
func (s *Store) SaveExperiment(ctx context.Context, res analysis.ExperimentResult) (uuid.UUID, error) {
	if res.Metadata.Name == "" {
		return uuid.Nil, fmt.Errorf("%w: experiment has no name", types.ErrData)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT id FROM experiments WHERE name = ?`), res.Metadata.Name).Scan(&existing)
	switch {
	case err == nil:
		if err := s.deleteExperiment(ctx, tx, existing); err != nil {
			return uuid.Nil, err
		}
		s.logger.Debugf("replacing stored experiment %s", res.Metadata.Name)
	case errors.Is(err, sql.ErrNoRows):
	default:
		return uuid.Nil, fmt.Errorf("failed to look up experiment %s: %w", res.Metadata.Name, err)
	}

	id := uuid.New()
	settings := res.Metadata.Settings
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO experiments
		(id, name, path, recorded_date, recorded_time, start_temp, stop_temp, increment,
		 stabilization_minutes, segmentation_mode, reading_count, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id.String(), res.Metadata.Name, res.Path, res.Metadata.Date, res.Metadata.Time,
		settings.StartTemp, settings.StopTemp, settings.Increment, settings.StabilizationMinutes,
		string(res.Mode), res.ReadingCount, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert experiment %s: %w", res.Metadata.Name, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO step_statistics
		(experiment_id, step_index, target_temp, holder_mean, holder_std, holder_offset,
		 liquid_mean, liquid_std, liquid_offset, ambient_mean, ambient_std,
		 time_to_stability_seconds, stability_detected, sample_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to prepare step insert: %w", err)
	}
	defer stmt.Close()

	for i, st := range res.Steps {
		_, err := stmt.ExecContext(ctx, id.String(), i, st.TargetTemp,
			st.HolderMean, st.HolderStd, st.HolderOffset,
			st.LiquidMean, st.LiquidStd, st.LiquidOffset,
			st.AmbientMean, st.AmbientStd,
			st.TimeToStability.Seconds(), st.StabilityDetected, st.SampleCount)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to insert step %d of %s: %w", i, res.Metadata.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit experiment %s: %w", res.Metadata.Name, err)
	}

	s.logger.Infof("stored experiment %s with %d steps", res.Metadata.Name, len(res.Steps))
	return id, nil
}

func (s *Store) deleteExperiment(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM step_statistics WHERE experiment_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete steps of experiment %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM experiments WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete experiment %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteExperiment removes an experiment and its step statistics
func (s *Store) DeleteExperiment(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.deleteExperiment(ctx, tx, id.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// ListExperiments returns every stored experiment ordered by name
func (s *Store) ListExperiments(ctx context.Context) ([]Experiment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, path, recorded_date, recorded_time,
		start_temp, stop_temp, increment, stabilization_minutes, segmentation_mode,
		reading_count, analyzed_at
		FROM experiments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query experiments: %w", err)
	}
	defer rows.Close()

	var experiments []Experiment
	for rows.Next() {
		var e Experiment
		var id string
		err := rows.Scan(&id, &e.Name, &e.Path, &e.Date, &e.Time,
			&e.Settings.StartTemp, &e.Settings.StopTemp, &e.Settings.Increment, &e.Settings.StabilizationMinutes,
			&e.Mode, &e.ReadingCount, &e.AnalyzedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: experiment id %q: %v", types.ErrData, id, err)
		}
		experiments = append(experiments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read experiments: %w", err)
	}
	return experiments, nil
}

// Steps returns the step statistics of the given experiments, or of every
// stored experiment when no ids are given. Steps are ordered by experiment
// name and step index.
func (s *Store) Steps(ctx context.Context, ids ...uuid.UUID) ([]types.StepStatistics, error) {
	query := `SELECT st.target_temp, st.holder_mean, st.holder_std, st.holder_offset,
		st.liquid_mean, st.liquid_std, st.liquid_offset, st.ambient_mean, st.ambient_std,
		st.time_to_stability_seconds, st.stability_detected, st.sample_count
		FROM step_statistics st JOIN experiments e ON e.id = st.experiment_id`
	args := make([]interface{}, 0, len(ids))
	if len(ids) > 0 {
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			placeholders[i] = "?"
			args = append(args, id.String())
		}
		query += ` WHERE st.experiment_id IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY e.name, st.step_index`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query step statistics: %w", err)
	}
	defer rows.Close()

	var steps []types.StepStatistics
	for rows.Next() {
		var st types.StepStatistics
		var seconds float64
		err := rows.Scan(&st.TargetTemp, &st.HolderMean, &st.HolderStd, &st.HolderOffset,
			&st.LiquidMean, &st.LiquidStd, &st.LiquidOffset, &st.AmbientMean, &st.AmbientStd,
			&seconds, &st.StabilityDetected, &st.SampleCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step statistics: %w", err)
		}
		st.TimeToStability = time.Duration(seconds * float64(time.Second))
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read step statistics: %w", err)
	}
	return steps, nil
}

// SaveFit records a fit result
func (s *Store) SaveFit(ctx context.Context, res offsetfit.Result) (uuid.UUID, error) {
	id := uuid.New()
	c := res.Coefficients
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO fits
		(id, created_at, variant, a, b, c, d, reference_temp, r_squared, rmse, aic, step_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id.String(), time.Now().UTC(), string(c.Variant), c.A, c.B, c.C, c.D, c.ReferenceTemp,
		res.RSquared, res.RootMeanSquaredError, res.AIC, res.SampleCount)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to store fit: %w", err)
	}
	return id, nil
}

// ListFits returns up to limit stored fits, newest first. A limit of 0 or
// less returns all of them.
func (s *Store) ListFits(ctx context.Context, limit int) ([]FitRecord, error) {
	query := `SELECT id, created_at, variant, a, b, c, d, reference_temp, r_squared, rmse, aic, step_count
		FROM fits ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fits: %w", err)
	}
	defer rows.Close()

	var fits []FitRecord
	for rows.Next() {
		var f FitRecord
		var id, variant string
		c := &f.Coefficients
		err := rows.Scan(&id, &f.CreatedAt, &variant, &c.A, &c.B, &c.C, &c.D, &c.ReferenceTemp,
			&f.RSquared, &f.RMSE, &f.AIC, &f.StepCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fit: %w", err)
		}
		if f.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: fit id %q: %v", types.ErrData, id, err)
		}
		c.Variant = types.ModelVariant(variant)
		fits = append(fits, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fits: %w", err)
	}
	return fits, nil
}
