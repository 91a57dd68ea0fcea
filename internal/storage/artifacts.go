package storage

import (
	"bytes"
	"database/sql"
	"time"

	"github.com/klauspost/compress/zstd"

	"sma/internal/errors"
	"sma/internal/logging"
	"sma/internal/mapping"
	"sma/internal/sources"
)

// Pipeline stage names used as artifact keys.
const (
	StageRaw       = "raw"
	StageProcessed = "processed"
	StagePriority  = "priority"
)

// ArtifactInfo describes one stored artifact.
type ArtifactInfo struct {
	ConfigKey    string
	Stage        string
	RunID        string
	CreatedAt    time.Time
	MappingCount int
}

// SaveArtifact stores a stage's mapping collection, replacing any
// previous artifact for the same configuration and stage. Payloads are
// archived line-delimited JSON, zstd-compressed.
func (db *DB) SaveArtifact(configKey, stage, runID string, mappings []mapping.Mapping) error {
	ix := mapping.NewIndex(mappings)
	var buf bytes.Buffer
	// Zero frames keep an empty collection's payload non-empty, so
	// the NOT NULL payload column accepts it.
	zw, err := zstd.NewWriter(&buf, zstd.WithZeroFrames(true))
	if err != nil {
		return err
	}
	if err := sources.WriteArchive(zw, ix); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	err = db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
INSERT INTO artifacts (config_key, stage, run_id, created_at, mapping_count, payload)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (config_key, stage) DO UPDATE SET
	run_id = excluded.run_id,
	created_at = excluded.created_at,
	mapping_count = excluded.mapping_count,
	payload = excluded.payload`,
			configKey, stage, runID, time.Now().UTC().Format(time.RFC3339), ix.Len(), buf.Bytes())
		return err
	})
	if err != nil {
		return err
	}
	if db.logger != nil {
		db.logger.Debug("artifact saved", logging.Fields{
			"config": configKey,
			"stage":  stage,
			"count":  ix.Len(),
			"bytes":  buf.Len(),
		})
	}
	return nil
}

// LoadArtifact retrieves a stage's mapping collection. The second
// return value reports whether the artifact exists.
func (db *DB) LoadArtifact(configKey, stage string) ([]mapping.Mapping, bool, error) {
	var payload []byte
	err := db.conn.QueryRow(
		`SELECT payload FROM artifacts WHERE config_key = ? AND stage = ?`,
		configKey, stage,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	zr, err := zstd.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	defer zr.Close()
	mappings, err := sources.ReadArchive(zr)
	if err != nil {
		return nil, false, err
	}
	return mappings, true, nil
}

// MustLoadArtifact is LoadArtifact that fails with ARTIFACT_MISSING
// when the artifact was never materialized.
func (db *DB) MustLoadArtifact(configKey, stage string) ([]mapping.Mapping, error) {
	mappings, ok, err := db.LoadArtifact(configKey, stage)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Newf(errors.ArtifactMissing, "no %q artifact for configuration %q", stage, configKey)
	}
	return mappings, nil
}

// ListArtifacts returns the stored artifacts for a configuration.
func (db *DB) ListArtifacts(configKey string) ([]ArtifactInfo, error) {
	rows, err := db.conn.Query(
		`SELECT config_key, stage, run_id, created_at, mapping_count
		 FROM artifacts WHERE config_key = ? ORDER BY stage`,
		configKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArtifactInfo
	for rows.Next() {
		var info ArtifactInfo
		var created string
		if err := rows.Scan(&info.ConfigKey, &info.Stage, &info.RunID, &created, &info.MappingCount); err != nil {
			return nil, err
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteArtifacts removes every artifact for a configuration,
// typically before a forced re-run.
func (db *DB) DeleteArtifacts(configKey string) error {
	return db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM artifacts WHERE config_key = ?`, configKey)
		return err
	})
}
