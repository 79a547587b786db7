// Package scope draws temperature histories in Fyne widgets.
package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gooven/pkg/channel"
)

const defaultMaxDisplayPoints = 1000

// PlotWidget is a custom Fyne widget showing one temperature trace, the target and the band.
type PlotWidget struct {
	widget.BaseWidget

	// Data (protected by mu)
	mu      sync.RWMutex
	series  Series
	display []channel.Point // downsampled, reused between updates

	yMin, yMax float64
	xMin, xMax time.Duration

	maxDisplayPoints int
}

// New creates a plot with the given title.
func New(title string) *PlotWidget {
	p := &PlotWidget{
		series:           Series{Title: title, Latest: channel.FaultMarker},
		display:          make([]channel.Point, 0, defaultMaxDisplayPoints),
		maxDisplayPoints: defaultMaxDisplayPoints,
	}
	p.yMin, p.yMax = YRange(p.series)
	p.xMin, p.xMax = XRange(p.series)
	p.ExtendBaseWidget(p)
	return p
}

// Update replaces the plotted data. Must be called on the Fyne thread (see fyne.Do).
func (p *PlotWidget) Update(s Series) {
	p.mu.Lock()
	p.display = Downsample(p.display, s.Points, p.maxDisplayPoints)
	p.series = s
	p.yMin, p.yMax = YRange(s)
	p.xMin, p.xMax = XRange(s)
	p.mu.Unlock()

	// Outside the lock: the renderer takes a read lock.
	p.Refresh()
}

// Series returns the currently plotted data.
func (p *PlotWidget) Series() Series {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.series
}

// CreateRenderer creates the widget renderer.
func (p *PlotWidget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &plotRenderer{
		plot:    p,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
