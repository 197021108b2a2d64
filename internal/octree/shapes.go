package octree

import (
	"math"

	"github.com/agentic-research/strata/api"
)

// Shape is a query volume. The same box test serves both node pruning and
// the per-entity filter, so a query result equals a brute-force scan.
type Shape interface {
	IntersectsBox(api.Box) bool
}

// BoxShape queries an axis-aligned region.
type BoxShape struct {
	Box api.Box
}

func (s BoxShape) IntersectsBox(b api.Box) bool {
	return s.Box.Intersects(b)
}

// Sphere queries a center-plus-radius region.
type Sphere struct {
	Center api.Vec3
	Radius float64
}

func (s Sphere) IntersectsBox(b api.Box) bool {
	return distSqPointBox(s.Center, b) <= s.Radius*s.Radius
}

// Plane is a half-space boundary: points p with dot(Normal, p) + D >= 0
// are inside.
type Plane struct {
	Normal api.Vec3
	D      float64
}

// Frustum queries a convex volume bounded by planes (normals point inward).
type Frustum struct {
	Planes []Plane
}

func (f Frustum) IntersectsBox(b api.Box) bool {
	for _, p := range f.Planes {
		// Positive vertex test: if the box corner furthest along the
		// normal is outside, the whole box is outside.
		v := b.Min
		if p.Normal.X >= 0 {
			v.X = b.Max.X
		}
		if p.Normal.Y >= 0 {
			v.Y = b.Max.Y
		}
		if p.Normal.Z >= 0 {
			v.Z = b.Max.Z
		}
		if p.Normal.X*v.X+p.Normal.Y*v.Y+p.Normal.Z*v.Z+p.D < 0 {
			return false
		}
	}
	return true
}

// Ray queries everything whose box the ray passes through.
type Ray struct {
	Origin    api.Vec3
	Direction api.Vec3 // need not be normalized
	MaxDist   float64  // 0 means unbounded
}

func (r Ray) IntersectsBox(b api.Box) bool {
	tmin, tmax := 0.0, math.Inf(1)
	if r.MaxDist > 0 {
		tmax = r.MaxDist
	}
	origin := [3]float64{r.Origin.X, r.Origin.Y, r.Origin.Z}
	dir := [3]float64{r.Direction.X, r.Direction.Y, r.Direction.Z}
	lo := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}

	for i := 0; i < 3; i++ {
		if dir[i] == 0 {
			if origin[i] < lo[i] || origin[i] > hi[i] {
				return false
			}
			continue
		}
		t1 := (lo[i] - origin[i]) / dir[i]
		t2 := (hi[i] - origin[i]) / dir[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return false
		}
	}
	return true
}

func distSqPointBox(p api.Vec3, b api.Box) float64 {
	d := 0.0
	for _, a := range [3][3]float64{
		{p.X, b.Min.X, b.Max.X},
		{p.Y, b.Min.Y, b.Max.Y},
		{p.Z, b.Min.Z, b.Max.Z},
	} {
		v, lo, hi := a[0], a[1], a[2]
		if v < lo {
			d += (lo - v) * (lo - v)
		} else if v > hi {
			d += (v - hi) * (v - hi)
		}
	}
	return d
}
