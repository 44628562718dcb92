package sweep

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Plan is an ordered sequence of bias setpoints. Plans handed out by this
// package are fresh slices; callers may keep them without aliasing the
// executor's copy.
type Plan []float64

// Generate returns points evenly spaced setpoints from start to stop
// inclusive. With hysteresis the forward plan is followed by its reverse
// without the repeated stop value, so the sweep returns to start and the
// plan has 2*points-1 entries.
func Generate(start, stop float64, points int, hysteresis bool) (Plan, error) {
	shape := ShapeLinear
	if hysteresis {
		shape = ShapeReverse
	}
	return GenerateShape(start, stop, points, shape)
}

// GenerateShape is Generate with an explicit Shape.
//
// ShapeZeroCentered starts at 0, runs out to the stop-side extreme and
// back, through 0 to the start-side extreme and back, and ends at 0. It
// needs start and stop on opposite sides of zero; otherwise it falls back
// to ShapeReverse.
func GenerateShape(start, stop float64, points int, shape Shape) (Plan, error) {
	if points < 1 {
		return nil, invalidf("points must be >= 1, got %d", points)
	}
	if math.IsNaN(start) || math.IsInf(start, 0) || math.IsNaN(stop) || math.IsInf(stop, 0) {
		return nil, invalidf("start and stop must be finite")
	}

	forward := linear(start, stop, points)
	switch shape {
	case "", ShapeLinear:
		return forward, nil
	case ShapeReverse:
		return reverseSweep(forward), nil
	case ShapeZeroCentered:
		if points < 2 || start*stop >= 0 {
			return reverseSweep(forward), nil
		}
		return zeroCentered(forward, stop > 0), nil
	default:
		return nil, invalidf("unknown shape %q", shape)
	}
}

func linear(start, stop float64, points int) Plan {
	if points == 1 {
		return Plan{start}
	}
	p := floats.Span(make([]float64, points), start, stop)
	p[points-1] = stop
	return p
}

func reverseSweep(forward Plan) Plan {
	out := make(Plan, 0, 2*len(forward))
	out = append(out, forward...)
	return append(out, returnLeg(forward)...)
}

// returnLeg is leg reversed without its last element.
func returnLeg(leg []float64) []float64 {
	out := make([]float64, 0, len(leg))
	for i := len(leg) - 2; i >= 0; i-- {
		out = append(out, leg[i])
	}
	return out
}

func zeroCentered(forward Plan, positiveFirst bool) Plan {
	var pos, neg []float64
	for _, v := range forward {
		switch {
		case v > 0:
			pos = append(pos, v)
		case v < 0:
			neg = append(neg, v)
		}
	}
	// Both legs ordered by increasing magnitude regardless of sweep direction.
	sort.Float64s(pos)
	sort.Sort(sort.Reverse(sort.Float64Slice(neg)))

	first, second := pos, neg
	if !positiveFirst {
		first, second = neg, pos
	}

	out := make(Plan, 0, 2*len(forward)+1)
	out = append(out, 0)
	out = append(out, first...)
	out = append(out, returnLeg(first)...)
	out = append(out, 0)
	out = append(out, second...)
	out = append(out, returnLeg(second)...)
	out = append(out, 0)
	return out
}
