// Package sqlstore persists the audit chain in SQLite.
package sqlstore

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/davidahmann/proctor/internal/audit"
)

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := audit.Migrate(db, audit.DBSQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Append(entry audit.Entry) error {
	payload, err := audit.EncodePayload(entry.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO audit_entries(seq, ts, entry_type, run_id, payload_json, prev_hash, hash)
VALUES(?,?,?,?,?,?,?)`,
		entry.Seq,
		entry.Timestamp,
		string(entry.Type),
		entry.RunID,
		string(payload),
		entry.PrevHash,
		entry.Hash,
	)
	return err
}

func (s *Store) Get(seq uint64) (audit.Entry, bool, error) {
	row := s.db.QueryRow(`SELECT seq, ts, entry_type, run_id, payload_json, prev_hash, hash
FROM audit_entries WHERE seq = ?`, seq)
	return scanEntry(row)
}

func (s *Store) Last() (audit.Entry, bool, error) {
	row := s.db.QueryRow(`SELECT seq, ts, entry_type, run_id, payload_json, prev_hash, hash
FROM audit_entries ORDER BY seq DESC LIMIT 1`)
	return scanEntry(row)
}

func (s *Store) Range(from, to uint64) ([]audit.Entry, error) {
	if from == 0 {
		from = 1
	}
	query := `SELECT seq, ts, entry_type, run_id, payload_json, prev_hash, hash
FROM audit_entries WHERE seq >= ?`
	args := []any{from}
	if to > 0 {
		query += ` AND seq <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []audit.Entry{}
	for rows.Next() {
		var entry audit.Entry
		var payload string
		if err := rows.Scan(&entry.Seq, &entry.Timestamp, &entry.Type, &entry.RunID, &payload, &entry.PrevHash, &entry.Hash); err != nil {
			return nil, err
		}
		if entry.Payload, err = audit.DecodePayload([]byte(payload)); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanEntry(row *sql.Row) (audit.Entry, bool, error) {
	var entry audit.Entry
	var payload string
	if err := row.Scan(&entry.Seq, &entry.Timestamp, &entry.Type, &entry.RunID, &payload, &entry.PrevHash, &entry.Hash); err != nil {
		if err == sql.ErrNoRows {
			return audit.Entry{}, false, nil
		}
		return audit.Entry{}, false, err
	}
	decoded, err := audit.DecodePayload([]byte(payload))
	if err != nil {
		return audit.Entry{}, false, err
	}
	entry.Payload = decoded
	return entry, true, nil
}
