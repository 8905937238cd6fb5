package tile

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"runtime"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"

	"github.com/i5heu/qrtile/pkg/model"
	"github.com/i5heu/qrtile/pkg/qr"
)

// minLabelHeight is the smallest label strip, enough for basicfont with a
// little padding.
const minLabelHeight = 24

var ErrNoFragments = errors.New("tile: nothing to pack")

// Options tune a Packer.
type Options struct {
	// Labels draws an "index+1/total" strip under every tile.
	Labels bool
	// Concurrency bounds parallel renders. Zero means GOMAXPROCS.
	Concurrency int
	Logger      *slog.Logger
}

// Sheet is a packed composite image.
type Sheet struct {
	Image *image.RGBA
	Grid  Grid
	// CellWidth and CellHeight are the uniform cell size, label included.
	CellWidth  int
	CellHeight int
}

// Packer renders fragments and composites them onto one sheet.
type Packer struct {
	renderer qr.Renderer
	opts     Options
	log      *slog.Logger
}

// NewPacker returns a Packer rendering through r.
func NewPacker(r qr.Renderer, opts Options) *Packer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Packer{renderer: r, opts: opts, log: log}
}

// Pack renders every fragment and places fragment i at Grid.Cell(i). The
// result does not depend on render scheduling.
func (p *Packer) Pack(ctx context.Context, fragments []model.Fragment) (*Sheet, error) { // A
	if len(fragments) == 0 {
		return nil, ErrNoFragments
	}

	tiles := make([]image.Image, len(fragments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, f := range fragments {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := p.renderer.RenderCode(f.Encode())
			if err != nil {
				return fmt.Errorf("tile: render fragment %s: %w", f.Label(), err)
			}
			tiles[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var tileW, tileH int
	for _, t := range tiles {
		tileW = max(tileW, t.Bounds().Dx())
		tileH = max(tileH, t.Bounds().Dy())
	}
	labelH := 0
	if p.opts.Labels {
		labelH = max(minLabelHeight, tileH/6)
	}

	grid := GridFor(len(tiles))
	sheet := &Sheet{
		Grid:       grid,
		CellWidth:  tileW,
		CellHeight: tileH + labelH,
	}
	sheet.Image = image.NewRGBA(image.Rect(0, 0, grid.Columns*sheet.CellWidth, grid.Rows*sheet.CellHeight))
	draw.Draw(sheet.Image, sheet.Image.Bounds(), image.White, image.Point{}, draw.Src)

	for i, t := range tiles {
		row, col := grid.Cell(i)
		origin := image.Pt(col*sheet.CellWidth, row*sheet.CellHeight)
		b := t.Bounds()
		// center smaller tiles in their cell
		offset := image.Pt((tileW-b.Dx())/2, (tileH-b.Dy())/2)
		dst := image.Rectangle{Min: origin.Add(offset), Max: origin.Add(offset).Add(b.Size())}
		draw.Draw(sheet.Image, dst, t, b.Min, draw.Src)
		if labelH > 0 {
			strip := image.Rect(origin.X, origin.Y+tileH, origin.X+tileW, origin.Y+tileH+labelH)
			drawLabel(sheet.Image, strip, fragments[i].Label())
		}
	}

	p.log.Debug("packed sheet",
		"tiles", len(tiles),
		"columns", grid.Columns,
		"rows", grid.Rows,
		"width", sheet.Image.Bounds().Dx(),
		"height", sheet.Image.Bounds().Dy())
	return sheet, nil
}

func drawLabel(dst draw.Image, strip image.Rectangle, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	width := d.MeasureString(text).Ceil()
	x := strip.Min.X + (strip.Dx()-width)/2
	m := face.Metrics()
	textH := (m.Ascent + m.Descent).Ceil()
	y := strip.Min.Y + (strip.Dy()-textH)/2 + m.Ascent.Ceil()
	d.Dot = fixed.P(max(x, strip.Min.X), y)
	d.DrawString(text)
}
