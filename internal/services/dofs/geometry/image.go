package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Feature image dimensions.
const (
	ImageWidth    = 600
	ImageHeight   = 600
	ImageChannels = 3
)

const (
	// canvasOffsetY shifts every draw down so negative y stays on the canvas.
	canvasOffsetY = 300
	targetRadius  = 10
	box1Side      = 20
	box2Side      = 30
	poleGap       = 15
)

// Pole geometry of a 5x30 rectangle: the angle between its long axis and its
// diagonal, and its half diagonal.
var (
	poleHalfAngle    = math.Atan2(2.5, 15)
	poleHalfDiagonal = math.Hypot(2.5, 15)
)

type color [ImageChannels]float64

var (
	targetColor = color{1, 0, 0}
	boxColor    = color{0, 0, 1}
)

// ImageOptions selects optional marks on the feature image.
type ImageOptions struct {
	// Poles draws a pole marker in front of each box.
	Poles bool
}

// FeatureImage is a row-major height x width x channel raster with values
// in [0,1].
type FeatureImage struct {
	Pix []float64
}

// NewFeatureImage returns a blank canvas.
func NewFeatureImage() *FeatureImage {
	return &FeatureImage{Pix: make([]float64, ImageHeight*ImageWidth*ImageChannels)}
}

// Shape returns the image dimensions as height, width, channels.
func (img *FeatureImage) Shape() []int {
	return []int{ImageHeight, ImageWidth, ImageChannels}
}

// At returns the value of one channel at row y, column x.
func (img *FeatureImage) At(x, y, channel int) float64 {
	return img.Pix[(y*ImageWidth+x)*ImageChannels+channel]
}

func (img *FeatureImage) set(x, y int, c color) {
	if x < 0 || y < 0 || x >= ImageWidth || y >= ImageHeight {
		return
	}
	offset := (y*ImageWidth + x) * ImageChannels
	copy(img.Pix[offset:offset+ImageChannels], c[:])
}

// ToFeatureImage renders a scene state: the target as a filled circle, each
// box as a rotated filled square and, when requested, a pole per box.
func ToFeatureImage(state SceneState, opts ImageOptions) (*FeatureImage, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	img := NewFeatureImage()
	img.fillCircle(int(state[TargetX]), int(state[TargetY]+canvasOffsetY), targetRadius, targetColor)
	img.drawBox(state.Box1(), box1Side, opts)
	img.drawBox(state.Box2(), box2Side, opts)
	return img, nil
}

func (img *FeatureImage) drawBox(pose Pose, side float64, opts ImageOptions) {
	img.fillPolygon(squareCorners(pose, side), boxColor)
	if opts.Poles {
		img.fillPolygon(poleCorners(pose, side), boxColor)
	}
}

// squareCorners rotates a canonical square by pose.Rot+pi/4. Positions are
// truncated to whole pixels before the canvas offset is applied.
func squareCorners(pose Pose, side float64) orb.Ring {
	a := pose.Rot + math.Pi/4
	r := side / math.Sqrt2
	co, si := math.Cos(a)*r, math.Sin(a)*r
	offsets := [4][2]float64{{-si, co}, {co, si}, {si, -co}, {-co, -si}}

	ring := make(orb.Ring, 0, len(offsets)+1)
	for _, o := range offsets {
		ring = append(ring, orb.Point{
			math.Trunc(o[0] + pose.X),
			math.Trunc(o[1]+pose.Y) + canvasOffsetY,
		})
	}
	return append(ring, ring[0])
}

// poleCorners places a 5x30 rectangle along the box rotation axis, centred
// side/2+15 away from the box centre.
func poleCorners(pose Pose, side float64) orb.Ring {
	offset := side/2 + poleGap
	cx := pose.X + math.Cos(pose.Rot)*offset
	cy := pose.Y + canvasOffsetY + math.Sin(pose.Rot)*offset

	si, co := math.Sincos(pose.Rot + poleHalfAngle)
	siM, coM := math.Sincos(pose.Rot - poleHalfAngle)
	offsets := [4][2]float64{{-co, -si}, {-coM, -siM}, {co, si}, {coM, siM}}

	ring := make(orb.Ring, 0, len(offsets)+1)
	for _, o := range offsets {
		ring = append(ring, orb.Point{
			math.Trunc(o[0]*poleHalfDiagonal + cx),
			math.Trunc(o[1]*poleHalfDiagonal + cy),
		})
	}
	return append(ring, ring[0])
}

// fillPolygon paints every pixel whose coordinate lies inside or on the ring.
func (img *FeatureImage) fillPolygon(ring orb.Ring, c color) {
	bound := ring.Bound()
	minX, maxX := clamp(int(math.Floor(bound.Min[0])), ImageWidth), clamp(int(math.Ceil(bound.Max[0])), ImageWidth)
	minY, maxY := clamp(int(math.Floor(bound.Min[1])), ImageHeight), clamp(int(math.Ceil(bound.Max[1])), ImageHeight)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if planar.RingContains(ring, orb.Point{float64(x), float64(y)}) {
				img.set(x, y, c)
			}
		}
	}
}

func (img *FeatureImage) fillCircle(cx, cy, radius int, c color) {
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= radius*radius {
				img.set(x, y, c)
			}
		}
	}
}

// clamp limits v to [-1, size] so loops over off-canvas shapes stay short;
// set discards the out-of-range edge pixels.
func clamp(v, size int) int {
	return max(-1, min(v, size))
}
