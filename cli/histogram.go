package cli

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"go.viam.com/meshprune/prune"
)

const histogramBins = 40

// writeDensityHistogram plots the distribution of vertex densities with a vertical line at
// the pruning threshold. The image format follows the extension of path.
func writeDensityHistogram(path string, res *prune.Result) error {
	values := plotter.Values(res.Densities.Values())
	if len(values) == 0 {
		return errors.New("no densities to plot")
	}

	p := plot.New()
	p.Title.Text = "Vertex density"
	p.X.Label.Text = "density (sum of inverse neighbor distances)"
	p.Y.Label.Text = "vertices"

	hist, err := plotter.NewHist(values, histogramBins)
	if err != nil {
		return errors.Wrap(err, "building histogram")
	}
	p.Add(hist)

	var tallest float64
	for _, bin := range hist.Bins {
		if bin.Weight > tallest {
			tallest = bin.Weight
		}
	}
	cut, err := plotter.NewLine(plotter.XYs{
		{X: res.Threshold, Y: 0},
		{X: res.Threshold, Y: tallest},
	})
	if err != nil {
		return errors.Wrap(err, "building threshold line")
	}
	cut.Width = vg.Points(2)
	cut.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(cut)
	p.Legend.Add("threshold", cut)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "cannot save histogram %q", path)
	}
	return nil
}
