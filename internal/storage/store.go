package storage

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/san-kum/platesim/internal/dynamo"
	"github.com/san-kum/platesim/internal/logging"
	"github.com/san-kum/platesim/internal/sim"
)

const catalogFile = "runs.db"

var ErrRunNotFound = errors.New("storage: run not found")

// Store keeps a sqlite catalog of runs under baseDir and writes each run's
// field frames as CSV into baseDir/<id>/.
type Store struct {
	baseDir string
	db      *sql.DB
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Dir() string { return s.baseDir }

func (s *Store) Init() error {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", filepath.Join(s.baseDir, catalogFile))
	if err != nil {
		return fmt.Errorf("failed to open run catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping run catalog: %w", err)
	}
	if err := createSchemas(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schemas: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func createSchemas(db *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			initial TEXT NOT NULL,
			nx INTEGER NOT NULL,
			ny INTEGER NOT NULL,
			lx REAL NOT NULL,
			ly REAL NOT NULL,
			rigidity REAL NOT NULL,
			dt REAL NOT NULL,
			duration REAL NOT NULL,
			boundary TEXT NOT NULL,
			bootstrap TEXT NOT NULL,
			steps INTEGER NOT NULL,
			frames INTEGER NOT NULL,
			energy_drift REAL NOT NULL DEFAULT 0.0,
			elapsed_ns INTEGER NOT NULL,
			metrics TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS energy (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			kinetic REAL NOT NULL,
			bending REAL NOT NULL,
			total REAL NOT NULL,
			PRIMARY KEY (run_id, step),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);`,
		`CREATE TABLE IF NOT EXISTS frames (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			step INTEGER NOT NULL,
			time REAL NOT NULL,
			file TEXT NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);`,
	}

	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	Initial     string             `json:"initial"`
	Nx          int                `json:"nx"`
	Ny          int                `json:"ny"`
	Lx          float64            `json:"lx"`
	Ly          float64            `json:"ly"`
	Rigidity    float64            `json:"rigidity"`
	Dt          float64            `json:"dt"`
	Duration    float64            `json:"duration"`
	Boundary    string             `json:"boundary"`
	Bootstrap   string             `json:"bootstrap"`
	Steps       int                `json:"steps"`
	Frames      int                `json:"frames"`
	EnergyDrift float64            `json:"energy_drift"`
	Elapsed     time.Duration      `json:"elapsed"`
	Metrics     map[string]float64 `json:"metrics"`
}

func (m *RunMetadata) Spacing() (dx, dy float64) {
	return m.Lx / float64(m.Nx-1), m.Ly / float64(m.Ny-1)
}

// Save catalogs result and writes its frames. The run ID is taken from ctx
// when one is attached, otherwise a new one is generated. An ID that already
// has a directory is rejected. On failure the run directory is removed, so
// no frames outlive a missing catalog row.
func (s *Store) Save(ctx context.Context, result *sim.Result) (_ string, err error) {
	if s.db == nil {
		return "", fmt.Errorf("storage: store not initialized")
	}
	if result == nil {
		return "", fmt.Errorf("storage: nil result")
	}

	runID := logging.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
	}
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.Mkdir(runDir, 0755); err != nil {
		return "", fmt.Errorf("storage: run %s: %w", runID, err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(runDir)
		}
	}()

	frames := result.Frames
	if len(frames) == 0 && result.Final.Field.Nx > 0 {
		frames = []dynamo.Snapshot{result.Final}
	}
	files := make([]string, len(frames))
	for k, f := range frames {
		files[k] = fmt.Sprintf("frame_%06d.csv", f.Step)
		if err := writeField(filepath.Join(runDir, files[k]), f.Field); err != nil {
			return "", fmt.Errorf("failed to write frame %d: %w", f.Step, err)
		}
	}
	if result.Final.Field.Nx > 0 {
		if err := writeField(filepath.Join(runDir, "final.csv"), result.Final.Field); err != nil {
			return "", fmt.Errorf("failed to write final field: %w", err)
		}
	}

	metricsJSON, err := json.Marshal(finite(result.Metrics))
	if err != nil {
		return "", fmt.Errorf("failed to marshal metrics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// a diverged run has no meaningful drift; its stability metric records the failure
	drift := result.EnergyDrift
	if math.IsNaN(drift) || math.IsInf(drift, 0) {
		drift = 0
	}

	cfg := result.Config
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, initial, nx, ny, lx, ly, rigidity, dt, duration, boundary, bootstrap, steps, frames, energy_drift, elapsed_ns, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, time.Now().UnixNano(), result.Initial, cfg.Nx, cfg.Ny, cfg.Lx, cfg.Ly, cfg.Rigidity,
		cfg.Dt, cfg.Duration, cfg.Boundary.String(), cfg.Bootstrap.String(), result.StepsTaken,
		len(frames), drift, int64(result.Elapsed), string(metricsJSON),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, e := range result.Energy {
		if math.IsNaN(e.Total) || math.IsInf(e.Total, 0) {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO energy (run_id, step, kinetic, bending, total) VALUES (?, ?, ?, ?, ?)`,
			runID, e.Step, e.Kinetic, e.Bending, e.Total,
		); err != nil {
			return "", fmt.Errorf("failed to insert energy sample %d: %w", e.Step, err)
		}
	}
	for k, f := range frames {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO frames (run_id, seq, step, time, file) VALUES (?, ?, ?, ?, ?)`,
			runID, k, f.Step, f.Time, files[k],
		); err != nil {
			return "", fmt.Errorf("failed to index frame %d: %w", f.Step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

// finite drops values JSON cannot carry; a blown-up run still gets catalogued.
func finite(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

const runColumns = `id, created_at, initial, nx, ny, lx, ly, rigidity, dt, duration, boundary, bootstrap, steps, frames, energy_drift, elapsed_ns, metrics`

func scanRun(row interface{ Scan(...any) error }) (*RunMetadata, error) {
	var (
		m         RunMetadata
		createdAt int64
		elapsed   int64
		metrics   string
	)
	err := row.Scan(&m.ID, &createdAt, &m.Initial, &m.Nx, &m.Ny, &m.Lx, &m.Ly, &m.Rigidity,
		&m.Dt, &m.Duration, &m.Boundary, &m.Bootstrap, &m.Steps, &m.Frames, &m.EnergyDrift, &elapsed, &metrics)
	if err != nil {
		return nil, err
	}
	m.Timestamp = time.Unix(0, createdAt)
	m.Elapsed = time.Duration(elapsed)
	if err := json.Unmarshal([]byte(metrics), &m.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics of run %s: %w", m.ID, err)
	}
	return &m, nil
}

// List returns all runs, newest first.
func (s *Store) List(ctx context.Context) ([]RunMetadata, error) {
	if s.db == nil {
		return []RunMetadata{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]RunMetadata, 0)
	for rows.Next() {
		m, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *m)
	}
	return runs, rows.Err()
}

func (s *Store) Load(ctx context.Context, runID string) (*RunMetadata, error) {
	if s.db == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	m, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return m, err
}

func (s *Store) LoadEnergy(ctx context.Context, runID string) ([]dynamo.EnergySample, error) {
	if _, err := s.Load(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, kinetic, bending, total FROM energy WHERE run_id = ? ORDER BY step ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series []dynamo.EnergySample
	for rows.Next() {
		var e dynamo.EnergySample
		if err := rows.Scan(&e.Step, &e.Kinetic, &e.Bending, &e.Total); err != nil {
			return nil, err
		}
		series = append(series, e)
	}
	return series, rows.Err()
}

func (s *Store) LoadFinal(ctx context.Context, runID string) (dynamo.Field, error) {
	if _, err := s.Load(ctx, runID); err != nil {
		return dynamo.Field{}, err
	}
	return readField(filepath.Join(s.baseDir, runID, "final.csv"))
}

// LoadFrames returns the stored snapshots in step order. Energy is attached
// where a sample exists for the frame's step.
func (s *Store) LoadFrames(ctx context.Context, runID string) ([]dynamo.Snapshot, error) {
	energy, err := s.LoadEnergy(ctx, runID)
	if err != nil {
		return nil, err
	}
	byStep := make(map[int]dynamo.EnergySample, len(energy))
	for _, e := range energy {
		byStep[e.Step] = e
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT step, time, file FROM frames WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type entry struct {
		step int
		time float64
		file string
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.step, &e.time, &e.file); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snaps := make([]dynamo.Snapshot, 0, len(entries))
	for _, e := range entries {
		f, err := readField(filepath.Join(s.baseDir, runID, e.file))
		if err != nil {
			return nil, err
		}
		snap := dynamo.Snapshot{Step: e.step, Time: e.time, Field: f}
		if sample, ok := byStep[e.step]; ok {
			snap.Energy = &sample
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// WriteFieldCSV writes f as Nx rows of Ny values with shortest round-trip
// formatting, so reading it back reproduces every float64 exactly.
func WriteFieldCSV(path string, f dynamo.Field) error {
	return writeField(path, f)
}

func ReadFieldCSV(path string) (dynamo.Field, error) {
	return readField(path)
}

func writeField(path string, f dynamo.Field) error {
	if len(f.Data) != f.Nx*f.Ny {
		return fmt.Errorf("%w: field %dx%d holds %d values", dynamo.ErrDimensionMismatch, f.Nx, f.Ny, len(f.Data))
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	row := make([]string, f.Ny)
	for i := 0; i < f.Nx; i++ {
		for j := 0; j < f.Ny; j++ {
			row[j] = strconv.FormatFloat(f.At(i, j), 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return file.Close()
}

func readField(path string) (dynamo.Field, error) {
	file, err := os.Open(path)
	if err != nil {
		return dynamo.Field{}, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return dynamo.Field{}, err
	}
	if len(records) == 0 {
		return dynamo.Field{}, fmt.Errorf("%w: empty field file %s", dynamo.ErrDimensionMismatch, path)
	}

	f := dynamo.NewField(len(records), len(records[0]))
	for i, record := range records {
		for j, cell := range record {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return dynamo.Field{}, fmt.Errorf("%s row %d col %d: %w", path, i, j, err)
			}
			f.Set(i, j, v)
		}
	}
	return f, nil
}
