package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	storeDBName = "accessmon.db"

	// SchemaVersion is written into a freshly initialized common info row.
	SchemaVersion = 1
)

// execer is the part of *sql.DB and *sql.Tx the row helpers need.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// EncryptedStore implements domain.Store using a SQLCipher encrypted SQLite
// database. Every aggregate table holds rows of an id and a JSON object of
// named fields.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewEncryptedStore opens (or creates) the encrypted store database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	// Open with SQLCipher key as DSN parameter
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// One connection: writes are serialized by the service anyway and the
	// key pragma applies per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{db: db, dbPath: dbPath, now: time.Now}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// createTables creates the schema if it doesn't exist.
func (s *EncryptedStore) createTables() error {
	for _, t := range domain.Tables {
		_, err := s.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			fields TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`, t))
		if err != nil {
			return err
		}
	}
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS common_info (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		info TEXT NOT NULL
	)`)
	return err
}

// Table names are interpolated into SQL, so only known ones pass.
func checkTable(t domain.Table) error {
	for _, known := range domain.Tables {
		if t == known {
			return nil
		}
	}
	return fmt.Errorf("unknown table %q", t)
}

func encodeFields(f domain.Fields) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(f))
	for k, v := range f {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", k, err)
		}
		out[k] = raw
	}
	return out, nil
}

// FindAll returns every row of t.
func (s *EncryptedStore) FindAll(t domain.Table) ([]domain.Record, error) {
	if err := checkTable(t); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(fmt.Sprintf(`SELECT id, fields FROM %s ORDER BY id`, t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var id, fields string
		if err := rows.Scan(&id, &fields); err != nil {
			return nil, err
		}
		rec := domain.Record{ID: id}
		if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
			return nil, fmt.Errorf("corrupt row %s in %s: %w", id, t, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Add inserts a new row.
func (s *EncryptedStore) Add(t domain.Table, id string, f domain.Fields) error {
	return s.add(s.db, t, id, f)
}

// Update merges the changed fields into an existing row.
func (s *EncryptedStore) Update(t domain.Table, id string, f domain.Fields) error {
	return s.update(s.db, t, id, f)
}

// Delete removes a row. Deleting a missing row is not an error.
func (s *EncryptedStore) Delete(t domain.Table, id string) error {
	return s.delete(s.db, t, id)
}

// Commit applies all changes in one transaction.
func (s *EncryptedStore) Commit(changes []domain.Change) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, c := range changes {
		switch c.Op {
		case domain.ChangeAdd:
			err = s.add(tx, c.Table, c.ID, c.Fields)
		case domain.ChangeUpdate:
			err = s.update(tx, c.Table, c.ID, c.Fields)
		case domain.ChangeDelete:
			err = s.delete(tx, c.Table, c.ID)
		default:
			err = fmt.Errorf("unknown change %q", c.Op)
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to %s %s/%s: %w", c.Op, c.Table, c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *EncryptedStore) add(ex execer, t domain.Table, id string, f domain.Fields) error {
	if err := checkTable(t); err != nil {
		return err
	}
	encoded, err := encodeFields(f)
	if err != nil {
		return err
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return err
	}
	_, err = ex.Exec(fmt.Sprintf(`INSERT INTO %s (id, fields, updated_at) VALUES (?, ?, ?)`, t),
		id, string(data), s.now().Unix())
	return err
}

func (s *EncryptedStore) update(ex execer, t domain.Table, id string, f domain.Fields) error {
	if err := checkTable(t); err != nil {
		return err
	}
	var current string
	err := ex.QueryRow(fmt.Sprintf(`SELECT fields FROM %s WHERE id = ?`, t), id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("row %s not found in %s", id, t)
	}
	if err != nil {
		return err
	}

	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal([]byte(current), &merged); err != nil {
		return fmt.Errorf("corrupt row %s in %s: %w", id, t, err)
	}
	changed, err := encodeFields(f)
	if err != nil {
		return err
	}
	for k, v := range changed {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	_, err = ex.Exec(fmt.Sprintf(`UPDATE %s SET fields = ?, updated_at = ? WHERE id = ?`, t),
		string(data), s.now().Unix(), id)
	return err
}

func (s *EncryptedStore) delete(ex execer, t domain.Table, id string) error {
	if err := checkTable(t); err != nil {
		return err
	}
	_, err := ex.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t), id)
	return err
}

// CommonInfo returns the singleton info row. A missing or unreadable row is
// reinitialized with defaults.
func (s *EncryptedStore) CommonInfo() (domain.CommonInfo, error) {
	var data string
	err := s.db.QueryRow(`SELECT info FROM common_info WHERE id = 1`).Scan(&data)
	if err == nil {
		var info domain.CommonInfo
		if json.Unmarshal([]byte(data), &info) == nil && info.SchemaVersion > 0 {
			return info, nil
		}
	} else if err != sql.ErrNoRows {
		return domain.CommonInfo{}, err
	}

	info := domain.CommonInfo{SchemaVersion: SchemaVersion, CreatedAt: s.now().UTC()}
	return info, s.saveCommonInfo(info)
}

// RecordStart stamps the info row with a daemon start at t.
func (s *EncryptedStore) RecordStart(t time.Time) (domain.CommonInfo, error) {
	info, err := s.CommonInfo()
	if err != nil {
		return info, err
	}
	info.LastStartedAt = t.UTC()
	info.StartCount++
	return info, s.saveCommonInfo(info)
}

func (s *EncryptedStore) saveCommonInfo(info domain.CommonInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO common_info (id, info) VALUES (1, ?)`, string(data))
	return err
}

// GetStorePath returns the database file path.
func (s *EncryptedStore) GetStorePath() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStore implements domain.Store.
var _ domain.Store = (*EncryptedStore)(nil)
