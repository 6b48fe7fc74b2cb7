package reproject

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-proj/v10"
)

// DefaultCacheSize bounds the number of cached PROJ pipelines.
const DefaultCacheSize = 64

type pipeline struct {
	mu sync.Mutex
	pj *proj.PJ
}

// ProjTransformer transforms between arbitrary CRS definitions through
// PROJ. Pipelines are created on first use and kept in an LRU cache.
type ProjTransformer struct {
	cache *lru.Cache[string, *pipeline]
}

// NewProjTransformer creates a transformer caching up to size pipelines.
func NewProjTransformer(size int) (*ProjTransformer, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.NewWithEvict[string, *pipeline](size, func(_ string, p *pipeline) {
		p.mu.Lock()
		if p.pj != nil {
			p.pj.Destroy()
			p.pj = nil
		}
		p.mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return &ProjTransformer{cache: cache}, nil
}

func (t *ProjTransformer) pipeline(from, to string) (*pipeline, error) {
	key := from + "\x00" + to
	if p, ok := t.cache.Get(key); ok {
		return p, nil
	}

	pj, err := proj.NewCRSToCRS(from, to, nil)
	if err != nil {
		return nil, fmt.Errorf("reproject: create transform: %w", err)
	}
	// traditional GIS axis order: x = longitude/easting
	norm, err := pj.NormalizeForVisualization()
	pj.Destroy()
	if err != nil {
		return nil, fmt.Errorf("reproject: normalize axis order: %w", err)
	}

	p := &pipeline{pj: norm}
	t.cache.Add(key, p)
	return p, nil
}

func (t *ProjTransformer) Transform(g orb.Geometry, from, to string) (orb.Geometry, error) {
	if SameCRS(from, to) {
		return orb.Clone(g), nil
	}
	p, err := t.pipeline(from, to)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pj == nil {
		return nil, fmt.Errorf("reproject: transform %q to %q was evicted during use", abbreviate(from), abbreviate(to))
	}

	return mapPoints(g, func(pt orb.Point) (orb.Point, error) {
		c, err := p.pj.Forward(proj.NewCoord(pt[0], pt[1], 0, 0))
		if err != nil {
			return pt, fmt.Errorf("reproject: %v: %w", pt, err)
		}
		return orb.Point{c[0], c[1]}, nil
	})
}

// Close releases every cached pipeline.
func (t *ProjTransformer) Close() {
	t.cache.Purge()
}
