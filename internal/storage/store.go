package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/sim"
	"go.uber.org/zap"
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
)

var stateColumns = []string{"x", "y", "z", "vx", "vy", "vz"}
var forceColumns = []string{"fx", "fy", "fz"}

type Store struct {
	baseDir string
	logger  *zap.Logger
}

func New(baseDir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{baseDir: baseDir, logger: logger}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata describes a stored run. Models lists the mechanism names in
// pool order, which is also the order of the phase columns.
type RunMetadata struct {
	ID         string             `json:"id"`
	Scenario   string             `json:"scenario"`
	Timestamp  time.Time          `json:"timestamp"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Mode       string             `json:"mode"`
	Order      string             `json:"order"`
	Integrator string             `json:"integrator"`
	Operator   string             `json:"operator"`
	Models     []string           `json:"models"`
	Steps      int                `json:"steps"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Series is the tabular content of states.csv.
type Series struct {
	Times  []float64
	States [][]float64
	Forces [][]float64
	Phases [][]float64
}

// Save writes a new run directory and returns its id. meta.ID and
// meta.Timestamp are filled in.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	meta.ID = uuid.NewString()
	meta.Timestamp = time.Now()
	meta.Steps = result.StepsTaken
	meta.Metrics = result.Metrics

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, statesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()
	if err := writeStates(csvFile, result); err != nil {
		return "", fmt.Errorf("storage: %s: %w", meta.ID, err)
	}

	s.logger.Info("run saved", zap.String("id", meta.ID), zap.String("dir", runDir), zap.Int("rows", len(result.Times)))
	return meta.ID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func maxPhases(result *sim.Result) int {
	n := 0
	for _, ph := range result.Phases {
		n = max(n, len(ph))
	}
	return n
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeStates(out io.Writer, result *sim.Result) error {
	w := csv.NewWriter(out)

	numPhases := maxPhases(result)
	header := []string{"time"}
	header = append(header, stateColumns...)
	header = append(header, forceColumns...)
	for i := 0; i < numPhases; i++ {
		header = append(header, fmt.Sprintf("phase%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	row := make([]string, 0, len(header))
	for i := range result.Times {
		row = append(row[:0], formatFloat(result.Times[i]))
		for j := range stateColumns {
			row = append(row, cell(result.States, i, j))
		}
		for j := range forceColumns {
			row = append(row, cell(result.Forces, i, j))
		}
		for j := 0; j < numPhases; j++ {
			if i < len(result.Phases) && j < len(result.Phases[i]) {
				row = append(row, formatFloat(result.Phases[i][j]))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func cell[T ~[]float64](rows []T, i, j int) string {
	if i >= len(rows) || j >= len(rows[i]) {
		return "0"
	}
	return formatFloat(rows[i][j])
}

// List returns the stored runs, newest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			s.logger.Debug("skipping run directory", zap.String("dir", entry.Name()), zap.Error(err))
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadStates(runID string) (*Series, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	series := &Series{}
	if len(records) < 2 {
		return series, nil
	}

	header := records[0]
	numPhases := 0
	for _, col := range header {
		if strings.HasPrefix(col, "phase") {
			numPhases++
		}
	}
	base := 1 + len(stateColumns) + len(forceColumns)
	if len(header) != base+numPhases {
		return nil, fmt.Errorf("%w: %s: unexpected header %v", dynamo.ErrDimensionMismatch, statesFile, header)
	}

	for _, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			if field == "" {
				vals[j] = -1
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("storage: %s: %w", statesFile, err)
			}
			vals[j] = v
		}
		series.Times = append(series.Times, vals[0])
		series.States = append(series.States, vals[1:1+len(stateColumns)])
		series.Forces = append(series.Forces, vals[1+len(stateColumns):base])
		phases := vals[base:]
		for len(phases) > 0 && phases[len(phases)-1] < 0 {
			phases = phases[:len(phases)-1]
		}
		series.Phases = append(series.Phases, phases)
	}
	return series, nil
}

// ExportData is the JSON form of a run.
type ExportData struct {
	RunMetadata
	Times  []float64   `json:"times"`
	States [][]float64 `json:"states"`
	Forces [][]float64 `json:"forces"`
	Phases [][]float64 `json:"phases"`
}

// ExportJSON writes a stored run as one JSON document.
func (s *Store) ExportJSON(runID string, out io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	series, err := s.LoadStates(runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{
		RunMetadata: *meta,
		Times:       series.Times,
		States:      series.States,
		Forces:      series.Forces,
		Phases:      series.Phases,
	})
}
