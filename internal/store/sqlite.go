package store

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Create events table
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL,
		level TEXT,
		code TEXT,
		msg TEXT,
		meta TEXT
	)`); err != nil {
		return nil, err
	}

	// Create generations table with full session content
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS generations(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL,
		req_id TEXT,
		source TEXT,
		model TEXT,
		direction TEXT,
		continuation INTEGER,
		response_text TEXT,
		fragments INTEGER,
		truncated INTEGER,
		filename TEXT,
		dur_ms REAL,
		status TEXT,
		error TEXT
	)`); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func (db *DB) Event(level, code, msg string, meta map[string]interface{}) {
	m := ""
	if meta != nil {
		b, _ := json.Marshal(meta)
		m = string(b)
	}
	_, _ = db.Exec(`INSERT INTO events(ts,level,code,msg,meta) VALUES(?,?,?,?,?)`,
		float64(time.Now().UnixNano())/1e9, level, code, msg, m)
}

func (db *DB) Generation(start time.Time, reqID, source, model, direction string,
	continuation bool, responseText string, fragments int, truncated bool,
	filename string, dur time.Duration, status, errStr string) {
	_, _ = db.Exec(`INSERT INTO generations(
		ts, req_id, source, model, direction, continuation, response_text, fragments, truncated, filename, dur_ms, status, error)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		float64(start.UnixNano())/1e9, reqID, source, model, direction, continuation,
		responseText, fragments, truncated, filename, float64(dur.Milliseconds()), status, errStr)
}
