package chunk

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/strata/api"
)

// ErrChunkNotFound is returned when a chunk ID is unknown to the store.
// Callers recover from it; it is never fatal.
var ErrChunkNotFound = errors.New("chunk not found")

// ErrPayloadCorrupted is returned when a stored payload fails to
// decompress or decode. Fatal for the model load, not the process.
var ErrPayloadCorrupted = errors.New("corrupted chunk payload")

// Store is the authoritative, sqlite-backed home of chunk payloads.
// Payloads are zstd-compressed JSON entity arrays; the chunk records
// themselves (bounds, histograms, token counts) stay in memory on the
// model snapshot.
type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// OpenStore opens (or creates) the chunk database at path.
// Use ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open chunk db: %w", err)
	}
	// One connection: sqlite is single-writer, and a pooled ":memory:"
	// would give every connection its own empty database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id         TEXT PRIMARY KEY,
			model_id   TEXT NOT NULL,
			payload    BLOB NOT NULL,
			size_bytes INTEGER NOT NULL,
			tokens     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_model ON chunks(model_id);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create chunks table: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Put persists one chunk's entity payload and stamps the chunk record with
// its serialized size and compression tag.
func (s *Store) Put(modelID string, c *api.SmartChunk, entities []api.Entity) error {
	raw, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("marshal chunk %s: %w", c.ID, err)
	}
	compressed := s.enc.EncodeAll(raw, nil)

	if _, err := s.db.Exec(`
		INSERT OR REPLACE INTO chunks (id, model_id, payload, size_bytes, tokens)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, modelID, compressed, len(compressed), c.TokenCount); err != nil {
		return fmt.Errorf("insert chunk %s: %w", c.ID, err)
	}

	c.SizeBytes = len(compressed)
	c.Compression = "zstd"
	return nil
}

// Hydrate loads and decompresses one chunk's entities.
func (s *Store) Hydrate(chunkID string) ([]api.Entity, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM chunks WHERE id = ?", chunkID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, chunkID)
	}
	if err != nil {
		return nil, fmt.Errorf("load chunk %s: %w", chunkID, err)
	}

	raw, err := s.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadCorrupted, chunkID, err)
	}
	var ents []api.Entity
	if err := json.Unmarshal(raw, &ents); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadCorrupted, chunkID, err)
	}
	return ents, nil
}

// DeleteModel removes all chunks belonging to one model load.
func (s *Store) DeleteModel(modelID string) error {
	if _, err := s.db.Exec("DELETE FROM chunks WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("delete model %s chunks: %w", modelID, err)
	}
	return nil
}

// Close releases the database and codec resources.
func (s *Store) Close() error {
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}
