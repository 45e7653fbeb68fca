package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/irtrack/internal/optical"
	"github.com/banshee-data/irtrack/internal/optical/l4pose"
	"github.com/banshee-data/irtrack/internal/optical/pipeline"
)

const logs optical.Scope = "sqlite"

// connection pragmas, applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(1)",
}

// Session summarises one tracking session.
type Session struct {
	ID          string    `json:"session_id"`
	Started     time.Time `json:"started"`
	Last        time.Time `json:"last"`
	Frames      int       `json:"frames"`
	ValidFrames int       `json:"valid_frames"`
}

// FrameRecord is one row of the detection log.
type FrameRecord struct {
	SessionID     string        `json:"session_id,omitempty"`
	Index         uint64        `json:"frame_index"`
	Timestamp     time.Time     `json:"timestamp"`
	Phase         l4pose.Phase  `json:"phase"`
	Verdict       string        `json:"verdict"`
	Valid         bool          `json:"valid"`
	Disabled      bool          `json:"disabled"`
	RecoveredSlot string        `json:"recovered_slot,omitempty"`
	Candidates    int           `json:"candidates"`
	Selected      int           `json:"selected"`
	Elapsed       time.Duration `json:"elapsed"`
	Center        r3.Vec        `json:"center"`
	Orientation   quat.Number   `json:"orientation"`
	Slots         [4]r3.Vec     `json:"slots"` // south, west, north, east
}

// Store is the detection log database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open detection log: %w", err)
	}
	if path == ":memory:" {
		// each pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open detection log: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	logs.Diagf("detection log ready at %s", path)
	return s, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	if path == ":memory:" {
		return "file::memory:?" + q.Encode()
	}
	return "file:" + path + "?" + q.Encode()
}

// DB exposes the underlying handle for debugging tools.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// PublishDetection appends fr to the log and updates its session summary.
func (s *Store) PublishDetection(ctx context.Context, fr *pipeline.FrameResult) error {
	rec := recordFromResult(fr)
	ts := nanos(rec.Timestamp)
	valid := 0
	if rec.Valid {
		valid = 1
	}

	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var session interface{}
		if rec.SessionID != "" {
			session = rec.SessionID
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO optical_sessions (session_id, started_ns, last_ns, frames, valid_frames)
				VALUES (?, ?, ?, 1, ?)
				ON CONFLICT (session_id) DO UPDATE SET
					last_ns = excluded.last_ns,
					frames = frames + 1,
					valid_frames = valid_frames + excluded.valid_frames`,
				rec.SessionID, ts, ts, valid,
			); err != nil {
				return fmt.Errorf("upsert session %s: %w", rec.SessionID, err)
			}
		}

		var slot interface{}
		if rec.RecoveredSlot != "" {
			slot = rec.RecoveredSlot
		}
		c, q, p := rec.Center, rec.Orientation, rec.Slots
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO optical_frames (
				session_id, frame_index, timestamp_ns, phase, verdict, valid, disabled,
				recovered_slot, candidates, selected, elapsed_us,
				center_x, center_y, center_z,
				quat_w, quat_x, quat_y, quat_z,
				south_x, south_y, south_z,
				west_x, west_y, west_z,
				north_x, north_y, north_z,
				east_x, east_y, east_z
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session, int64(rec.Index), ts, string(rec.Phase), rec.Verdict, valid, rec.Disabled,
			slot, rec.Candidates, rec.Selected, rec.Elapsed.Microseconds(),
			c.X, c.Y, c.Z,
			q.Real, q.Imag, q.Jmag, q.Kmag,
			p[0].X, p[0].Y, p[0].Z,
			p[1].X, p[1].Y, p[1].Z,
			p[2].X, p[2].Y, p[2].Z,
			p[3].X, p[3].Y, p[3].Z,
		); err != nil {
			return fmt.Errorf("insert frame %d: %w", rec.Index, err)
		}
		return tx.Commit()
	})
}

func recordFromResult(fr *pipeline.FrameResult) FrameRecord {
	det := fr.Pose.Detection
	rec := FrameRecord{
		SessionID:   fr.Pose.SessionID,
		Index:       fr.Index,
		Timestamp:   fr.Timestamp,
		Phase:       fr.Pose.Phase,
		Verdict:     string(fr.Pose.Verdict),
		Valid:       det.Valid,
		Disabled:    fr.Disabled,
		Candidates:  fr.Stats.Candidates,
		Selected:    fr.Stats.Selected,
		Elapsed:     fr.Stats.Elapsed,
		Center:      det.Center,
		Orientation: det.Orientation,
		Slots:       det.Positions(),
	}
	if fr.Pose.Recovered {
		rec.RecoveredSlot = fr.Pose.RecoveredSlot.String()
	}
	return rec
}

// Sessions lists every session, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, started_ns, last_ns, frames, valid_frames
		FROM optical_sessions
		ORDER BY started_ns, session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess          Session
			started, last int64
		)
		if err := rows.Scan(&sess.ID, &started, &last, &sess.Frames, &sess.ValidFrames); err != nil {
			return nil, err
		}
		sess.Started = fromNanos(started)
		sess.Last = fromNanos(last)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Frames returns up to limit log rows in insertion order. An empty
// sessionID returns rows from every session, including frames logged
// before any session started. limit <= 0 means no limit.
func (s *Store) Frames(ctx context.Context, sessionID string, limit int) ([]FrameRecord, error) {
	query := `
		SELECT session_id, frame_index, timestamp_ns, phase, verdict, valid, disabled,
			recovered_slot, candidates, selected, elapsed_us,
			center_x, center_y, center_z,
			quat_w, quat_x, quat_y, quat_z,
			south_x, south_y, south_z,
			west_x, west_y, west_z,
			north_x, north_y, north_z,
			east_x, east_y, east_z
		FROM optical_frames`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var (
			rec       FrameRecord
			session   sql.NullString
			slot      sql.NullString
			index, ts int64
			phase     string
			elapsedUS int64
			c         r3.Vec
			q         quat.Number
			p         [4]r3.Vec
		)
		if err := rows.Scan(
			&session, &index, &ts, &phase, &rec.Verdict, &rec.Valid, &rec.Disabled,
			&slot, &rec.Candidates, &rec.Selected, &elapsedUS,
			&c.X, &c.Y, &c.Z,
			&q.Real, &q.Imag, &q.Jmag, &q.Kmag,
			&p[0].X, &p[0].Y, &p[0].Z,
			&p[1].X, &p[1].Y, &p[1].Z,
			&p[2].X, &p[2].Y, &p[2].Z,
			&p[3].X, &p[3].Y, &p[3].Z,
		); err != nil {
			return nil, err
		}
		rec.SessionID = session.String
		rec.RecoveredSlot = slot.String
		rec.Index = uint64(index)
		rec.Timestamp = fromNanos(ts)
		rec.Phase = l4pose.Phase(phase)
		rec.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		rec.Center, rec.Orientation, rec.Slots = c, q, p
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
