package config

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/chrissnell/thermoffset/internal/types"
)

const correctionSchema = `CREATE TABLE IF NOT EXISTS correction_params (
	key TEXT PRIMARY KEY,
	value REAL NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

// correction_params keys
const (
	keyA             = "a"
	keyB             = "b"
	keyC             = "c"
	keyD             = "d"
	keyReferenceTemp = "reference_temp"
	keyUseAmbient    = "use_ambient"
)

// SQLiteProvider implements CorrectionProvider on a key-value table in a
// SQLite database
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider, creating
// the parameter table if needed
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(correctionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create correction_params table: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig returns the default configuration with the stored correction
// parameters. The dataset store shares the configuration database.
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := DefaultConfig()

	correction, err := s.LoadCorrection()
	if err != nil {
		return nil, fmt.Errorf("failed to load correction parameters: %w", err)
	}
	config.Correction = correction
	config.Analysis.ReferenceTemp = correction.ReferenceTemp
	config.Analysis.UseAmbient = correction.UsesAmbient()
	config.Dataset = DatasetData{Driver: "sqlite", DSN: s.dbPath}

	return config, nil
}

// LoadCorrection reads the stored parameters. Keys that have never been
// written keep their default value.
func (s *SQLiteProvider) LoadCorrection() (types.ModelCoefficients, error) {
	rows, err := s.db.Query(`SELECT key, value FROM correction_params`)
	if err != nil {
		return types.ModelCoefficients{}, fmt.Errorf("failed to query correction parameters: %w", err)
	}
	defer rows.Close()

	coeffs := DefaultCorrection()
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return types.ModelCoefficients{}, fmt.Errorf("failed to scan correction parameter: %w", err)
		}

		switch key {
		case keyA:
			coeffs.A = value
		case keyB:
			coeffs.B = value
		case keyC:
			coeffs.C = value
		case keyD:
			coeffs.D = value
		case keyReferenceTemp:
			coeffs.ReferenceTemp = value
		case keyUseAmbient:
			coeffs.Variant = types.VariantQuadratic
			if value != 0 {
				coeffs.Variant = types.VariantAmbient
			}
		}
	}
	if err := rows.Err(); err != nil {
		return types.ModelCoefficients{}, fmt.Errorf("failed to read correction parameters: %w", err)
	}

	return coeffs, nil
}

// SaveCorrection stores all parameters in one transaction
func (s *SQLiteProvider) SaveCorrection(coeffs types.ModelCoefficients) error {
	if err := validateCorrection(coeffs); err != nil {
		return err
	}

	// Start transaction
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	useAmbient := 0.0
	if coeffs.UsesAmbient() {
		useAmbient = 1
	}

	params := []struct {
		key   string
		value float64
	}{
		{keyA, coeffs.A},
		{keyB, coeffs.B},
		{keyC, coeffs.C},
		{keyD, coeffs.D},
		{keyReferenceTemp, coeffs.ReferenceTemp},
		{keyUseAmbient, useAmbient},
	}

	query := `INSERT OR REPLACE INTO correction_params (key, value, updated_at) VALUES (?, ?, datetime('now'))`
	for _, p := range params {
		if _, err := tx.Exec(query, p.key, p.value); err != nil {
			return fmt.Errorf("failed to store correction parameter %s: %w", p.key, err)
		}
	}

	// Commit transaction
	return tx.Commit()
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
