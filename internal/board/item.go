// Package board holds the board items the viewport engine consumes, plus
// the transient overlays (ghost positions, hidden set) collaborators feed it.
package board

import (
	"cmp"
	"slices"

	"refboard/pkg/geometry"
)

// Kind identifies what an item shows.
type Kind string

const (
	KindImage       Kind = "image"
	KindAd          Kind = "ad"
	KindPlaceholder Kind = "placeholder"
	KindText        Kind = "text"
	KindVideo       Kind = "video"
	KindAINode      Kind = "ai-node"
)

// Item is a rectangle on the board. The engine treats it as opaque apart
// from the media kinds the bitmap renderer paints itself.
type Item struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	ZIndex   int     `json:"zIndex"`
	Kind     Kind    `json:"type"`
	Rotation float64 `json:"rotation,omitempty"` // degrees, clockwise
	FlipX    bool    `json:"flipX,omitempty"`
	FlipY    bool    `json:"flipY,omitempty"`

	// Source is the resolved image source (file path or URL) for image kinds.
	Source string `json:"src,omitempty"`
	// AssetID is the remote file identifier; when set it is the source key.
	AssetID string `json:"assetId,omitempty"`
}

// Bounds returns the item's world-space rectangle.
func (it Item) Bounds() geometry.Rect {
	return geometry.NewRect(it.X, it.Y, it.Width, it.Height)
}

// Shape returns the item's outline in world space with its rotation
// applied. Flips do not change the outline.
func (it Item) Shape() []geometry.Point2D {
	return geometry.RotatedCorners(it.Bounds(), it.Rotation)
}

// Extent returns the axis-aligned box enclosing the rotated item.
func (it Item) Extent() geometry.Rect {
	if it.Rotation == 0 {
		return it.Bounds()
	}
	return geometry.PolygonBounds(it.Shape())
}

// Contains reports whether world point p lies on the rotated item.
func (it Item) Contains(p geometry.Point2D) bool {
	if it.Rotation == 0 {
		return it.Bounds().Contains(p)
	}
	return geometry.PointInPolygon(p, it.Shape())
}

// Overlaps reports whether the rotated item shares area with r.
func (it Item) Overlaps(r geometry.Rect) bool {
	if it.Rotation == 0 {
		return it.Bounds().Intersects(r)
	}
	return geometry.Overlaps(it.Shape(), r.Corners())
}

// At returns a copy of the item moved to p.
func (it Item) At(p geometry.Point2D) Item {
	it.X, it.Y = p.X, p.Y
	return it
}

// IsImage reports whether the item draws from the image cache.
func (it Item) IsImage() bool {
	return it.Kind == KindImage || it.Kind == KindAd
}

// AlwaysVisible reports whether the item bypasses viewport culling.
func (it Item) AlwaysVisible() bool {
	return it.Kind == KindAd
}

// SourceKey returns the identity of the item's resolved image source.
func (it Item) SourceKey() string {
	if it.AssetID != "" {
		return "asset:" + it.AssetID
	}
	return it.Source
}

// DrawOrder sorts items into paint order: selected items last, then by
// z-index ascending, then by id so ties never reorder between frames.
// The input slice is sorted in place.
func DrawOrder(items []Item, selected func(id string) bool) {
	slices.SortStableFunc(items, func(a, b Item) int {
		sa, sb := selected(a.ID), selected(b.ID)
		if sa != sb {
			if sa {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(a.ZIndex, b.ZIndex); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
