package core

// InvalidTriID marks a miss in a Hit record
const InvalidTriID = -1

// Ray carries its near and far bounds alongside origin and direction, matching
// the packed layout the traversal backend consumes (tmin rides with the origin,
// tmax with the direction).
type Ray struct {
	Org  Vec3
	Tmin float64
	Dir  Vec3
	Tmax float64
}

// NewRay creates a ray with the given bounds
func NewRay(org, dir Vec3, tmin, tmax float64) Ray {
	return Ray{Org: org, Tmin: tmin, Dir: dir, Tmax: tmax}
}

// At returns the point at parameter t along the ray
func (r Ray) At(t float64) Vec3 {
	return r.Org.Add(r.Dir.Multiply(t))
}

// IsInert reports whether the ray is a harmless padding ray that traversal
// must treat as a guaranteed miss.
func (r Ray) IsInert() bool {
	return r.Tmax < r.Tmin
}

// InertRay returns a padding ray used to fill a traversal batch up to the
// block size.
func InertRay() Ray {
	return Ray{Org: Vec3{}, Tmin: 1, Dir: Vec3{X: 1}, Tmax: -1}
}

// Hit is the traversal result for one ray. TriID < 0 means the ray missed.
type Hit struct {
	TriID  int32
	InstID int32
	U, V   float64 // barycentric coordinates on the hit triangle
	T      float64 // parametric distance along the ray
}

// Miss returns a Hit record marking no intersection
func Miss() Hit {
	return Hit{TriID: InvalidTriID, InstID: InvalidTriID}
}

// Intersection is the resolved world-space surface record at a hit point.
type Intersection struct {
	Pos        Vec3
	OutDir     Vec3 // inverted ray direction, pointing back along the path
	Distance   float64
	Normal     Vec3 // shading normal
	GeomNormal Vec3
	UV         Vec2
	Area       float64 // area of the hit primitive
	MatID      int32
}
