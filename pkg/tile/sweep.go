package tile

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/i5heu/qrtile/pkg/model"
	"github.com/i5heu/qrtile/pkg/qr"
)

// minCellSize is the edge of a version 1 symbol at one pixel per module.
const minCellSize = 21

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// SweepScanner scans a sheet as a whole and then once per grid cell, which
// finds tiles a whole-image scan misses on dense grids. The grid is derived
// from the total_chunks of any fragment the whole-image scan found, so it
// only helps for sheets laid out by Packer.
type SweepScanner struct {
	Scanner qr.Scanner
	// Concurrency bounds parallel cell scans. Zero means GOMAXPROCS.
	Concurrency int
	Logger      *slog.Logger
}

// NewSweepScanner wraps s.
func NewSweepScanner(s qr.Scanner) *SweepScanner {
	return &SweepScanner{Scanner: s}
}

// ScanCodes returns the distinct codes found in img. It collects every cell
// before returning.
func (s *SweepScanner) ScanCodes(ctx context.Context, img image.Image) ([]string, error) { // A
	whole, err := s.Scanner.ScanCodes(ctx, img)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(whole))
	var out []string
	add := func(codes []string) {
		for _, c := range codes {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	add(whole)

	total := learnTotal(whole)
	sub, ok := img.(subImager)
	if total <= 1 || !ok {
		return out, nil
	}

	grid := GridFor(total)
	b := img.Bounds()
	cellW, cellH := b.Dx()/grid.Columns, b.Dy()/grid.Rows
	if cellW < minCellSize || cellH < minCellSize {
		return out, nil
	}

	limit := s.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	cells := make([][]string, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < total; i++ {
		g.Go(func() error {
			row, col := grid.Cell(i)
			origin := b.Min.Add(image.Pt(col*cellW, row*cellH))
			cell := sub.SubImage(image.Rectangle{Min: origin, Max: origin.Add(image.Pt(cellW, cellH))})
			codes, err := s.Scanner.ScanCodes(gctx, cell)
			if err != nil {
				return fmt.Errorf("tile: scan cell %d: %w", i, err)
			}
			cells[i] = codes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, codes := range cells {
		add(codes)
	}

	if s.Logger != nil {
		s.Logger.Debug("sweep scan finished", "whole", len(whole), "distinct", len(out), "cells", total)
	}
	return out, nil
}

// learnTotal returns the most common total_chunks among parseable codes.
func learnTotal(codes []string) int {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, c := range codes {
		f, err := model.ParseFragment(c)
		if err != nil {
			continue
		}
		counts[f.Total]++
		if n := counts[f.Total]; n > bestCount || (n == bestCount && f.Total < best) {
			best, bestCount = f.Total, n
		}
	}
	return best
}
