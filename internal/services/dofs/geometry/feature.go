// Package geometry projects a scene state into the inputs a DoF model
// consumes: a bounded polar feature vector or a synthetic raster image.
package geometry

import (
	"math"
	"strconv"

	apperrors "github.com/louisbranch/dofsim/internal/platform/errors"
)

// StateLen is the number of components in a scene state.
const StateLen = 8

// distanceScale scales the inverse distance so an object 10 units away maps to 1.
const distanceScale = 10.0

// Scene state layout.
const (
	TargetX = iota
	TargetY
	Box1X
	Box1Y
	Box1Rot
	Box2X
	Box2Y
	Box2Rot
)

// Feature vector layout.
const (
	FeatureTargetDist = iota
	FeatureTargetAngle
	FeatureBox1Dist
	FeatureBox1Angle
	FeatureBox1Rot
	FeatureBox2Dist
	FeatureBox2Angle
	FeatureBox2Rot
)

// SceneState is the raw snapshot of the simulated objects relative to the
// gripper: target x,y, box1 x,y,rotation, box2 x,y,rotation.
type SceneState []float64

// FeatureVector is the polar projection of a scene state. Distances are
// inverse distances (0 = infinitely far); angles and rotations are radians
// divided by pi, so 0 is straight ahead.
type FeatureVector [StateLen]float64

// Pose is a planar position with rotation in radians.
type Pose struct {
	X, Y, Rot float64
}

// Validate reports an InvalidInput error unless the state has exactly eight
// finite components.
func (s SceneState) Validate() error {
	if len(s) != StateLen {
		return apperrors.WithMetadata(apperrors.CodeInvalidInput,
			"scene state must have 8 components, got "+strconv.Itoa(len(s)),
			map[string]string{"Reason": "expected 8 components"})
	}
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return apperrors.WithMetadata(apperrors.CodeInvalidInput,
				"scene state component "+strconv.Itoa(i)+" is not finite",
				map[string]string{"Reason": "component " + strconv.Itoa(i) + " is not finite"})
		}
	}
	return nil
}

// Box1 returns the pose of the first box.
func (s SceneState) Box1() Pose {
	return Pose{X: s[Box1X], Y: s[Box1Y], Rot: s[Box1Rot]}
}

// Box2 returns the pose of the second box.
func (s SceneState) Box2() Pose {
	return Pose{X: s[Box2X], Y: s[Box2Y], Rot: s[Box2Rot]}
}

// ToFeatureVector converts a scene state into its polar feature vector.
func ToFeatureVector(state SceneState) (FeatureVector, error) {
	if err := state.Validate(); err != nil {
		return FeatureVector{}, err
	}
	return FeatureVector{
		inverseDistance(state[TargetX], state[TargetY]),
		angle(state[TargetX], state[TargetY]),
		inverseDistance(state[Box1X], state[Box1Y]),
		angle(state[Box1X], state[Box1Y]),
		state[Box1Rot] / math.Pi,
		inverseDistance(state[Box2X], state[Box2Y]),
		angle(state[Box2X], state[Box2Y]),
		state[Box2Rot] / math.Pi,
	}, nil
}

// Slice returns the feature vector as a fresh slice.
func (f FeatureVector) Slice() []float64 {
	out := make([]float64, StateLen)
	copy(out, f[:])
	return out
}

// inverseDistance is 10/||p||, or 0 when p is the origin.
func inverseDistance(x, y float64) float64 {
	norm := math.Hypot(x, y)
	if norm == 0 {
		return 0
	}
	return distanceScale / norm
}

func angle(x, y float64) float64 {
	return math.Atan2(y, x) / math.Pi
}
