package explain

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// DefaultTopN is the number of rows drawn by RenderWaterfall.
const DefaultTopN = 10

var (
	increaseColor = color.RGBA{R: 255, G: 0, B: 82, A: 255}
	decreaseColor = color.RGBA{R: 0, G: 139, B: 251, A: 255}
	baselineColor = color.Gray{Y: 140}
)

// RenderWaterfall draws the topN contributions as a PNG waterfall that starts
// at the expected value and ends at the model output.
func RenderWaterfall(x Explanation, topN int, w io.Writer) error {
	if len(x.Contributions) == 0 {
		return errors.New("explanation has no contributions")
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	p, err := waterfallPlot(x, topN)
	if err != nil {
		return err
	}

	rows := len(x.Top(topN))
	height := vg.Length(rows)*0.45*vg.Inch + 1.5*vg.Inch
	wt, err := p.WriterTo(8*vg.Inch, height, "png")
	if err != nil {
		return fmt.Errorf("render waterfall: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

func waterfallPlot(x Explanation, topN int) (*plot.Plot, error) {
	top := x.Top(topN)

	// Bottom row first so the cumulative sum climbs to the output at the top.
	steps := make([]Contribution, len(top))
	names := make([]string, len(top))
	for i, c := range top {
		j := len(top) - 1 - i
		steps[j] = c
		names[j] = tickLabel(c)
	}

	bars := &waterfallBars{
		Base:     x.ExpectedValue,
		Steps:    steps,
		Width:    vg.Points(14),
		Increase: increaseColor,
		Decrease: decreaseColor,
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("f(x) = %.3f   E[f(X)] = %.3f", x.Output, x.ExpectedValue)
	p.X.Label.Text = fmt.Sprintf("model output for class %d", x.Class)
	p.NominalY(names...)
	p.Add(bars)

	baseline, err := plotter.NewLine(plotter.XYs{
		{X: x.ExpectedValue, Y: -0.5},
		{X: x.ExpectedValue, Y: float64(len(steps)) - 0.5},
	})
	if err != nil {
		return nil, err
	}
	baseline.LineStyle.Color = baselineColor
	baseline.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(baseline)

	labels, err := plotter.NewLabels(bars.valueLabels())
	if err != nil {
		return nil, err
	}
	labels.Offset = vg.Point{X: vg.Points(4), Y: -vg.Points(3)}
	p.Add(labels)

	xmin, xmax, _, _ := bars.DataRange()
	pad := (xmax - xmin) * 0.15
	if pad == 0 {
		pad = 0.05
	}
	p.X.Min, p.X.Max = xmin-pad, xmax+pad
	return p, nil
}

func tickLabel(c Contribution) string {
	if c.Aggregate {
		return c.Feature
	}
	return strconv.FormatFloat(c.Value, 'g', 4, 64) + " = " + c.Feature
}

// waterfallBars is a plot.Plotter drawing one horizontal bar per step, each
// starting where the previous one ended.
type waterfallBars struct {
	Base     float64
	Steps    []Contribution
	Width    vg.Length
	Increase color.Color
	Decrease color.Color
}

// Plot implements plot.Plotter.
func (b *waterfallBars) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	half := b.Width / 2
	cum := b.Base
	for i, s := range b.Steps {
		x0, x1 := trX(cum), trX(cum+s.SHAP)
		cum += s.SHAP
		y := trY(float64(i))

		clr := b.Increase
		if s.SHAP < 0 {
			clr = b.Decrease
		}
		pts := []vg.Point{
			{X: x0, Y: y - half},
			{X: x1, Y: y - half},
			{X: x1, Y: y + half},
			{X: x0, Y: y + half},
		}
		c.FillPolygon(clr, c.ClipPolygonXY(pts))
	}
}

// DataRange implements plot.DataRanger.
func (b *waterfallBars) DataRange() (xmin, xmax, ymin, ymax float64) {
	xmin, xmax = b.Base, b.Base
	cum := b.Base
	for _, s := range b.Steps {
		cum += s.SHAP
		xmin = math.Min(xmin, cum)
		xmax = math.Max(xmax, cum)
	}
	return xmin, xmax, -0.5, float64(len(b.Steps)) - 0.5
}

// valueLabels places a signed SHAP value at the far end of each bar.
func (b *waterfallBars) valueLabels() plotter.XYLabels {
	labels := plotter.XYLabels{
		XYs:    make(plotter.XYs, len(b.Steps)),
		Labels: make([]string, len(b.Steps)),
	}
	cum := b.Base
	for i, s := range b.Steps {
		cum += s.SHAP
		labels.XYs[i] = plotter.XY{X: math.Max(cum, cum-s.SHAP), Y: float64(i)}
		labels.Labels[i] = fmt.Sprintf("%+.3f", s.SHAP)
	}
	return labels
}
