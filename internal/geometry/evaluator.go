// Package geometry implements the alert evaluator: a pure geometric
// predicate over a source pose and a set of target positions.
package geometry

import "math"

// Vec2 is a 2-D point in meters.
type Vec2 struct {
	X float64
	Y float64
}

// Source is a node's pose as seen by the evaluator.
type Source struct {
	Pos    Vec2
	YawDeg float64
}

// Result is the evaluator's verdict for one target: whether it falls inside
// the strict cone (inside_on), the wider hysteresis margin (inside_off),
// and the intensity that would be assigned if it were the chosen alert
// target.
type Result struct {
	InsideOn   bool
	InsideOff  bool
	Intensity  uint8
	BearingDeg float64
	RangeM     float64
}

// marginFactor widens both range and cone for the "off" threshold of the
// hysteresis pair, per the 1.2x margin specified for inside_off.
const marginFactor = 1.2

// EvaluateTargets checks every target against src's forward cone, returning
// one Result per target and the best (highest) inside_on intensity across
// all of them. maxRangeM and coneHalfAngleDeg bound the strict cone;
// the margin cone is 1.2x both. Targets closer than 1e-6 m to src (self or
// coincident) are skipped and their Result is the zero value.
func EvaluateTargets(src Source, targets []Vec2, maxRangeM, coneHalfAngleDeg float64) (results []Result, bestIntensity uint8, anyInsideOn, anyInsideOff bool) {
	yawRad := degToRad(src.YawDeg)
	coneHalfRad := degToRad(coneHalfAngleDeg)
	rangeOff := marginFactor * maxRangeM
	coneOffRad := marginFactor * coneHalfRad

	results = make([]Result, len(targets))
	for i, tgt := range targets {
		vx := tgt.X - src.Pos.X
		vy := tgt.Y - src.Pos.Y
		d := math.Hypot(vx, vy)
		if d < 1e-6 {
			continue
		}
		bearing := math.Atan2(vy, vx)
		dyaw := wrapPi(yawRad - bearing)
		absDyaw := math.Abs(dyaw)

		r := Result{
			RangeM:     d,
			BearingDeg: radToDeg(bearing),
		}
		r.InsideOff = d < rangeOff && absDyaw < coneOffRad
		r.InsideOn = d < maxRangeM && absDyaw < coneHalfRad
		if r.InsideOff {
			anyInsideOff = true
		}
		if r.InsideOn {
			r.Intensity = intensity(d, absDyaw, maxRangeM, coneHalfRad)
			anyInsideOn = true
			if r.Intensity > bestIntensity {
				bestIntensity = r.Intensity
			}
		}
		results[i] = r
	}
	return results, bestIntensity, anyInsideOn, anyInsideOff
}

func intensity(d, absDyaw, maxRangeM, coneHalfRad float64) uint8 {
	rangeTerm := clip01(1 - d/maxRangeM)
	angleTerm := clip01(1 - absDyaw/coneHalfRad)
	score := 0.55*rangeTerm + 0.45*angleTerm
	v := math.Round(40 + 215*score)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// wrapPi wraps a radian angle to [-pi, pi].
func wrapPi(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }
