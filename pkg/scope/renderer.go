package scope

import (
	"image/color"
	"math"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/chewxy/math32"

	"github.com/itohio/gooven/pkg/channel"
)

var (
	gridColor   = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor  = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	traceColor  = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	targetColor = color.RGBA{R: 100, G: 200, B: 255, A: 255}
	bandColor   = color.RGBA{R: 0, G: 100, B: 200, A: 255}
	faultColor  = color.RGBA{R: 230, G: 60, B: 60, A: 255}
)

const (
	marginLeft   = float32(60)
	marginRight  = float32(20)
	marginTop    = float32(24)
	marginBottom = float32(36)
)

// plotRenderer renders the plot widget.
type plotRenderer struct {
	plot    *PlotWidget
	bg      *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// area is the drawable rectangle inside the margins.
type area struct {
	x, y, w, h float32
}

func plotArea(size fyne.Size) area {
	return area{
		x: marginLeft,
		y: marginTop,
		w: math32.Max(size.Width-marginLeft-marginRight, 1),
		h: math32.Max(size.Height-marginTop-marginBottom, 1),
	}
}

// project maps v from [lo, hi] onto [0, length], clamped to the plot.
func project(v, lo, hi float64, length float32) float32 {
	if hi <= lo {
		return 0
	}
	f := float32((v - lo) / (hi - lo))
	return math32.Min(math32.Max(f, 0), 1) * length
}

func (a area) pos(at, xMin, xMax time.Duration, v, yMin, yMax float64) fyne.Position {
	x := a.x + project(float64(at), float64(xMin), float64(xMax), a.w)
	y := a.y + a.h - project(v, yMin, yMax, a.h)
	return fyne.NewPos(x, y)
}

// MinSize returns the minimum size of the widget.
func (r *plotRenderer) MinSize() fyne.Size {
	return fyne.NewSize(320, 200)
}

// Layout arranges the widget components.
func (r *plotRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	if r.lastSize != size {
		r.lastSize = size
		r.plot.BaseWidget.Refresh()
	}
}

// Refresh rebuilds every canvas object from the current data.
func (r *plotRenderer) Refresh() {
	r.plot.mu.RLock()
	s := r.plot.series
	points := r.plot.display
	yMin, yMax := r.plot.yMin, r.plot.yMax
	xMin, xMax := r.plot.xMin, r.plot.xMax
	r.plot.mu.RUnlock()

	size := r.plot.Size()
	r.objects = []fyne.CanvasObject{r.bg}
	if size.Width == 0 || size.Height == 0 {
		return
	}

	a := plotArea(size)
	r.drawGrid(a, yMin, yMax, xMin, xMax)
	if s.HasTarget {
		r.drawTarget(a, s, yMin, yMax)
	}
	r.drawTrace(a, points, yMin, yMax, xMin, xMax)
	r.drawTitle(a, s)

	canvas.Refresh(r.bg)
}

func (r *plotRenderer) drawGrid(a area, yMin, yMax float64, xMin, xMax time.Duration) {
	const hLines, vLines = 6, 10

	for i := range hLines + 1 {
		y := a.y + float32(i)*a.h/hLines
		r.line(gridColor, 1, fyne.NewPos(a.x, y), fyne.NewPos(a.x+a.w, y))

		value := yMax - float64(i)*(yMax-yMin)/hLines
		r.text(formatTemperature(value), labelColor, 10, fyne.TextAlignTrailing, fyne.NewPos(a.x-5, y-6))
	}

	for i := range vLines + 1 {
		x := a.x + float32(i)*a.w/vLines
		r.line(gridColor, 1, fyne.NewPos(x, a.y), fyne.NewPos(x, a.y+a.h))

		at := xMin + time.Duration(float64(i)*float64(xMax-xMin)/vLines)
		r.text(formatTime(at), labelColor, 10, fyne.TextAlignCenter, fyne.NewPos(x-20, a.y+a.h+5))
	}
}

// drawTarget draws the target line and the band edges.
func (r *plotRenderer) drawTarget(a area, s Series, yMin, yMax float64) {
	hline := func(v float64, c color.Color, width float32) {
		if v < yMin || v > yMax {
			return
		}
		y := a.y + a.h - project(v, yMin, yMax, a.h)
		r.line(c, width, fyne.NewPos(a.x, y), fyne.NewPos(a.x+a.w, y))
	}

	if s.Band > 0 {
		hline(s.Target-s.Band/2, bandColor, 1)
		hline(s.Target+s.Band/2, bandColor, 1)
	}
	hline(s.Target, targetColor, 1.5)
}

func (r *plotRenderer) drawTrace(a area, points []channel.Point, yMin, yMax float64, xMin, xMax time.Duration) {
	for i := 1; i < len(points); i++ {
		r.line(traceColor, 1.5,
			a.pos(points[i-1].At, xMin, xMax, points[i-1].Value, yMin, yMax),
			a.pos(points[i].At, xMin, xMax, points[i].Value, yMin, yMax),
		)
	}
}

func (r *plotRenderer) drawTitle(a area, s Series) {
	title := s.Title
	c := color.Color(labelColor)
	switch {
	case s.Faulted:
		title += ": thermocouple is not functioning"
		c = faultColor
	case !s.Latest.IsFaulted():
		title += ": " + formatTemperature(s.Latest.Or(0))
		if s.HasTarget {
			title += " → " + formatTemperature(s.Target)
		}
	}
	r.text(title, c, 12, fyne.TextAlignLeading, fyne.NewPos(a.x, 4))
}

func (r *plotRenderer) line(c color.Color, width float32, p1, p2 fyne.Position) {
	l := canvas.NewLine(c)
	l.Position1 = p1
	l.Position2 = p2
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *plotRenderer) text(s string, c color.Color, size float32, align fyne.TextAlign, pos fyne.Position) {
	t := canvas.NewText(s, c)
	t.TextSize = size
	t.Alignment = align
	t.Move(pos)
	r.objects = append(r.objects, t)
}

// Objects returns all canvas objects for rendering.
func (r *plotRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *plotRenderer) Destroy() {}

func formatTemperature(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "°C"
}

func formatTime(d time.Duration) string {
	return strconv.FormatFloat(math.Round(d.Seconds()*10)/10, 'f', -1, 64) + "s"
}
