package main

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/san-kum/platesim/internal/automation"
	"github.com/san-kum/platesim/internal/logging"
	"github.com/san-kum/platesim/internal/optim"
	"github.com/san-kum/platesim/internal/sim"
)

var (
	searchParams []string
	searchMetric string

	sweepParam  string
	sweepMin    float64
	sweepMax    float64
	sweepPoints int
)

// parseSearchParam reads "name=v1,v2,...".
func parseSearchParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("search parameter must be name=v1,v2,..., got %q", s)
	}
	var values []float64
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return "", nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}

func searchGrid(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if len(searchParams) == 0 {
		return fmt.Errorf("at least one --param is required (available: %v)", optim.ParameterNames())
	}
	names := make([]string, len(searchParams))
	ranges := make([][]float64, len(searchParams))
	for i, p := range searchParams {
		if names[i], ranges[i], err = parseSearchParam(p); err != nil {
			return err
		}
	}
	limit := base.Workers
	if cmd.Flags().Changed("workers") {
		limit = workers
	}
	gs, err := optim.NewGridSearch(names, ranges, limit)
	if err != nil {
		return err
	}

	ctx, log := logging.WithRunLogger(cmd.Context(), logger)
	res, err := gs.Search(ctx, base, optim.Metric(searchMetric), sim.WithLogger(log))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(searchMetric))
	for _, trial := range res.Trials {
		for _, name := range names {
			fmt.Fprintf(w, "%g\t", trial.Params[name])
		}
		if trial.Err != nil {
			fmt.Fprintf(w, "skipped: %v\n", trial.Err)
			continue
		}
		fmt.Fprintf(w, "%.6g\n", trial.Value)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nbest %s = %.6g at %v\n", searchMetric, res.Value, res.Best)
	return nil
}

func sweepParameter(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	limit := base.Workers
	if cmd.Flags().Changed("workers") {
		limit = workers
	}

	ctx, log := logging.WithRunLogger(cmd.Context(), logger)
	results, err := automation.RunSweep(ctx, base, automation.ParameterSweep{
		Param:    sweepParam,
		Min:      sweepMin,
		Max:      sweepMax,
		NumSteps: sweepPoints,
		Workers:  limit,
	}, sim.WithLogger(log))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tSTEPS\tDRIFT\tMAX PEAK\tFINAL PEAK\tFREQ (HZ)\n", strings.ToUpper(sweepParam))
	for _, r := range results {
		freq := "-"
		if !math.IsNaN(r.Frequency) {
			freq = humanize.CommafWithDigits(r.Frequency, 2)
		}
		fmt.Fprintf(w, "%g\t%s\t%.2e\t%.4g\t%.4g\t%s\n",
			r.ParamValue,
			humanize.Comma(int64(r.Steps)),
			r.EnergyDrift,
			r.MaxPeak,
			r.FinalPeak,
			freq,
		)
	}
	return w.Flush()
}

func runScenarioFile(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if scenario.Description != "" {
		fmt.Printf("%s: %s\n", scenario.Name, scenario.Description)
	}
	results, runErr := automation.RunScenario(cmd.Context(), scenario, st, logger)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tPLATE\tSTEPS\tDRIFT\tPEAK\tRUN")
	for _, r := range results {
		id := r.RunID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2e\t%.4g\t%s\n",
			r.Name,
			r.Result.Config,
			humanize.Comma(int64(r.Result.StepsTaken)),
			r.Result.EnergyDrift,
			r.Result.Metrics["peak_displacement"],
			id,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return runErr
}
