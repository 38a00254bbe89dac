package storage

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/platesim/internal/dynamo"
)

type ExportData struct {
	Run    RunMetadata           `json:"run"`
	Dx     float64               `json:"dx"`
	Dy     float64               `json:"dy"`
	Energy []dynamo.EnergySample `json:"energy"`
	Final  [][]float64           `json:"final,omitempty"`
}

// Export gathers the catalog entry, energy series and final field of a run.
func (s *Store) Export(ctx context.Context, runID string, withField bool) (*ExportData, error) {
	meta, err := s.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	energy, err := s.LoadEnergy(ctx, runID)
	if err != nil {
		return nil, err
	}
	data := &ExportData{Run: *meta, Energy: energy}
	data.Dx, data.Dy = meta.Spacing()
	if data.Energy == nil {
		data.Energy = []dynamo.EnergySample{}
	}

	if withField {
		final, err := s.LoadFinal(ctx, runID)
		if err != nil {
			return nil, err
		}
		data.Final = Rows(final)
	}
	return data, nil
}

// Rows splits f into Nx rows of Ny values.
func Rows(f dynamo.Field) [][]float64 {
	rows := make([][]float64, f.Nx)
	for i := range rows {
		rows[i] = f.Data[i*f.Ny : (i+1)*f.Ny]
	}
	return rows
}

func ExportJSON(path string, data *ExportData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, data)
}

func WriteJSON(w io.Writer, data *ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
