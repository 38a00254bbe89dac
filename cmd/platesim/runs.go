package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/platesim/internal/analysis"
	"github.com/san-kum/platesim/internal/export"
	"github.com/san-kum/platesim/internal/storage"
	"github.com/san-kum/platesim/internal/viz"
)

// nodal.svg canvas size in Braille characters
const nodalCols, nodalRows = 64, 32

var (
	showWidth    int
	showHeight   int
	showSpectrum bool
	withField    bool
	outPath      string
	cellSize     int
)

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tGRID\tBOUNDARY\tINITIAL\tDT\tSTEPS\tDRIFT\tELAPSED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%dx%d\t%s\t%s\t%.3g\t%s\t%.2e\t%v\n",
			run.ID,
			humanize.Time(run.Timestamp),
			run.Nx, run.Ny,
			run.Boundary,
			run.Initial,
			run.Dt,
			humanize.Comma(int64(run.Steps)),
			run.EnergyDrift,
			run.Elapsed.Round(time.Microsecond),
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	meta, err := st.Load(cmd.Context(), runID)
	if err != nil {
		return err
	}
	samples, err := st.LoadEnergy(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(samples) < 2 {
		return fmt.Errorf("run %s has %d energy samples, need at least 2 to plot", runID, len(samples))
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("plate: %dx%d %s, %s\n", meta.Nx, meta.Ny, meta.Boundary, meta.Initial)
	fmt.Printf("samples: %d\n\n", len(samples))

	series := map[string][]float64{}
	for _, s := range samples {
		series["total"] = append(series["total"], s.Total)
		series["kinetic"] = append(series["kinetic"], s.Kinetic)
		series["bending"] = append(series["bending"], s.Bending)
	}
	for _, name := range []string{"total", "kinetic", "bending"} {
		graph := asciigraph.Plot(series[name],
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(name+" energy vs sample"),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	fmt.Printf("energy drift: %.3e\n", meta.EnergyDrift)
	return nil
}

func showRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	meta, err := st.Load(cmd.Context(), runID)
	if err != nil {
		return err
	}
	final, err := st.LoadFinal(cmd.Context(), runID)
	if err != nil {
		return err
	}

	theme := viz.GetTheme(themeName)
	fmt.Println(viz.HeaderStyle.Render(fmt.Sprintf("%s  t=%g", meta.ID, float64(meta.Steps)*meta.Dt)))
	fmt.Println(viz.Heatmap(final, showWidth, showHeight, theme))
	fmt.Printf("peak |u| = %.4g\n", final.MaxAbs())

	if !showSpectrum {
		return nil
	}
	frames, err := st.LoadFrames(cmd.Context(), runID)
	if err != nil {
		return err
	}
	peaks := make([]float64, len(frames))
	for i, f := range frames {
		peaks[i] = f.Field.MaxAbs()
	}
	fmt.Println()
	fmt.Println(viz.MetricLabel.Render("Peak") + viz.SparklineChart(peaks, min(len(peaks), 60)))
	if len(frames) < 2 {
		return nil
	}
	spacing := frames[1].Time - frames[0].Time
	ps := analysis.PowerSpectrum(peaks)
	if len(ps) > 1 {
		graph := asciigraph.Plot(ps[1:], asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("peak displacement power spectrum"))
		fmt.Println(graph)
	}
	if f, err := analysis.DominantFrequency(peaks, spacing); err == nil {
		fmt.Printf("dominant frequency: %.4g Hz\n", f)
	}
	if rate, err := analysis.GrowthRate(frames); err == nil {
		fmt.Printf("growth rate: %+.4g 1/s\n", rate)
	}

	probe := analysis.CenterProbe(meta.Nx, meta.Ny)
	for _, f := range frames {
		probe.OnStep(f)
	}
	if portrait := analysis.PhasePortraitToASCII(analysis.GeneratePhasePortrait(probe, spacing), 60, 16); portrait != "" {
		fmt.Println("\ncenter node phase portrait (u vs du/dt):")
		fmt.Print(portrait)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := st.Export(cmd.Context(), args[0], withField)
	if err != nil {
		return err
	}
	if outPath != "" {
		return storage.ExportJSON(outPath, data)
	}
	return storage.WriteJSON(os.Stdout, data)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	meta, err := st.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadEnergy(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no energy samples to export")
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()
	if err := w.Write([]string{"step", "time", "kinetic", "bending", "total"}); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.Itoa(s.Step),
			strconv.FormatFloat(float64(s.Step)*meta.Dt, 'g', -1, 64),
			strconv.FormatFloat(s.Kinetic, 'g', -1, 64),
			strconv.FormatFloat(s.Bending, 'g', -1, 64),
			strconv.FormatFloat(s.Total, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func exportSVG(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	final, err := st.LoadFinal(cmd.Context(), runID)
	if err != nil {
		return err
	}
	samples, err := st.LoadEnergy(cmd.Context(), runID)
	if err != nil {
		return err
	}

	dir := outPath
	if dir == "" {
		dir = filepath.Join(st.Dir(), runID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	theme := viz.GetTheme(themeName)
	fieldPath := filepath.Join(dir, "final.svg")
	if err := os.WriteFile(fieldPath, []byte(export.FieldToSVG(final, cellSize, theme)), 0644); err != nil {
		return err
	}
	fmt.Println(fieldPath)

	nodalPath := filepath.Join(dir, "nodal.svg")
	if err := os.WriteFile(nodalPath, []byte(export.NodalToSVG(final, nodalCols, nodalRows, 4, theme)), 0644); err != nil {
		return err
	}
	fmt.Println(nodalPath)

	if svg := export.EnergyToSVG(samples, 800, 300); svg != "" {
		energyPath := filepath.Join(dir, "energy.svg")
		if err := os.WriteFile(energyPath, []byte(svg), 0644); err != nil {
			return err
		}
		fmt.Println(energyPath)
	}
	return nil
}
