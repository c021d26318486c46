package main

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/trajectory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const inspectSamples = 80

func inspectModel(cmd *cobra.Command, args []string) error {
	model, err := trajectory.LoadModel(args[0])
	if err != nil {
		return err
	}
	if model.Dim() != dynamo.PositionDim {
		return fmt.Errorf("%w: %s has dimension %d", dynamo.ErrDimensionMismatch, args[0], model.Dim())
	}

	mean := make([]float64, model.Dim())
	variance := make([]float64, model.Dim())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tX\tY\tZ\tSX\tSY\tSZ")
	for i := 0; i <= 10; i++ {
		s := float64(i) / 10
		model.SetPhase(s)
		if err := model.LocalKernel(mean, variance); err != nil {
			return err
		}
		fmt.Fprintf(w, "%.1f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n", s,
			mean[0], mean[1], mean[2],
			math.Sqrt(variance[0]), math.Sqrt(variance[1]), math.Sqrt(variance[2]))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	curves := make([][]float64, model.Dim())
	for axis := range curves {
		curves[axis] = make([]float64, inspectSamples)
	}
	for i := 0; i < inspectSamples; i++ {
		model.SetPhase(float64(i) / float64(inspectSamples-1))
		model.Position(mean)
		for axis := range curves {
			curves[axis][i] = mean[axis]
		}
	}
	fmt.Println()
	fmt.Println(asciigraph.PlotMany(curves,
		asciigraph.Height(12),
		asciigraph.Width(inspectSamples),
		asciigraph.SeriesColors(asciigraph.Red, asciigraph.Green, asciigraph.Blue),
		asciigraph.Caption("expected position over phase: x (red) y (green) z (blue)"),
	))
	return nil
}

func generateModel(cmd *cobra.Command, args []string) error {
	g, err := trajectory.NewLinearGMR(genFrom, genTo, genComponents, genVariance)
	if err != nil {
		return err
	}
	if err := trajectory.Save(args[0], g); err != nil {
		return err
	}
	logger.Debug("model written",
		zap.String("path", args[0]),
		zap.Int("components", g.Components()),
		zap.Float64s("from", genFrom),
		zap.Float64s("to", genTo),
	)
	fmt.Printf("wrote %s (%d components)\n", args[0], g.Components())
	return nil
}
