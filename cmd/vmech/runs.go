package main

import (
	"fmt"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/vmech/internal/export"
	"github.com/san-kum/vmech/internal/storage"
	"github.com/spf13/cobra"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir, logger)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tDURATION\tDT\tMODE\tORDER\tMODELS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%s\t%s\n",
			run.ID,
			run.Scenario,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Mode,
			run.Order,
			strings.Join(run.Models, ","),
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir, logger)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	series, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(series.Times) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scenario: %s (%s, %s order)\n", meta.Scenario, meta.Mode, meta.Order)
	fmt.Printf("samples: %d\n\n", len(series.Times))

	for j, name := range meta.Models {
		data := phaseColumn(series.Phases, j)
		if len(data) < 2 {
			continue
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(8),
			asciigraph.Width(80),
			asciigraph.LowerBound(0),
			asciigraph.UpperBound(1),
			asciigraph.Caption(fmt.Sprintf("phase of %s", name)),
		))
		fmt.Println()
	}

	norms := make([]float64, len(series.Forces))
	for i, f := range series.Forces {
		var sum float64
		for _, v := range f {
			sum += v * v
		}
		norms[i] = math.Sqrt(sum)
	}
	fmt.Println(asciigraph.Plot(norms,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("guidance force |F|"),
	))

	pos := make([][]float64, 3)
	for axis := range pos {
		pos[axis] = make([]float64, len(series.States))
		for i, s := range series.States {
			pos[axis][i] = s[axis]
		}
	}
	fmt.Println()
	fmt.Println(asciigraph.PlotMany(pos,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Red, asciigraph.Green, asciigraph.Blue),
		asciigraph.Caption("robot position x (red) y (green) z (blue)"),
	))
	return nil
}

// phaseColumn collects the samples in which mechanism j was live.
func phaseColumn(rows [][]float64, j int) []float64 {
	var data []float64
	for _, row := range rows {
		if j < len(row) && row[j] >= 0 {
			data = append(data, row[j])
		}
	}
	return data
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir, logger)
	if svgOut == "" {
		return st.ExportJSON(args[0], os.Stdout)
	}

	plane, err := export.ParsePlane(svgPlane)
	if err != nil {
		return err
	}
	series, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	f, err := os.Create(svgOut)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := export.PathSVG(f, series, plane, svgWidth, svgHeight); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", svgOut)
	return nil
}
