package network

import (
	"fmt"
	"math"
	"slices"

	"github.com/louisbranch/dofsim/internal/services/dofs/eigen"
	"gonum.org/v1/gonum/mat"
)

// Layer is one evaluated step of a network.
type Layer interface {
	Name() string
	Class() string
	OutputShape() []int
	Forward(in Tensor) (Tensor, error)
}

// ParamSpec names a trainable tensor a layer expects from the weights.
type ParamSpec struct {
	Layer string
	Name  string
	Shape []int
}

// Parameter names.
const (
	ParamKernel = "kernel"
	ParamBias   = "bias"
)

type parameterized interface {
	Params() []ParamSpec
	bind(w Weights) error
}

// Weights maps layer name to parameter name to tensor.
type Weights map[string]map[string]Tensor

// Get returns one parameter.
func (w Weights) Get(layer, name string) (Tensor, bool) {
	t, ok := w[layer][name]
	return t, ok
}

// Set stores one parameter.
func (w Weights) Set(layer, name string, t Tensor) {
	if w[layer] == nil {
		w[layer] = make(map[string]Tensor)
	}
	w[layer][name] = t
}

func lookup(w Weights, spec ParamSpec) (Tensor, error) {
	t, ok := w.Get(spec.Layer, spec.Name)
	if !ok {
		return Tensor{}, fmt.Errorf("%w: %s/%s", ErrMissingWeight, spec.Layer, spec.Name)
	}
	if !slices.Equal(t.Shape, spec.Shape) || len(t.Data) != shapeSize(spec.Shape) {
		return Tensor{}, fmt.Errorf("%w: %s/%s has shape %v, want %v", ErrShapeMismatch, spec.Layer, spec.Name, t.Shape, spec.Shape)
	}
	return t, nil
}

type base struct {
	name  string
	class string
	out   []int
}

func (b base) Name() string       { return b.name }
func (b base) Class() string      { return b.class }
func (b base) OutputShape() []int { return slices.Clone(b.out) }

// activation is applied in place; last is the size of the trailing axis.
type activation func(data []float64, last int)

func activationFor(name string) (activation, error) {
	switch name {
	case "", "linear":
		return nil, nil
	case "relu":
		return elementwise(func(v float64) float64 { return max(v, 0) }), nil
	case "tanh":
		return elementwise(math.Tanh), nil
	case "sigmoid":
		return elementwise(func(v float64) float64 { return 1 / (1 + math.Exp(-v)) }), nil
	case "softmax":
		return softmax, nil
	default:
		return nil, fmt.Errorf("%w: activation %q", ErrUnsupported, name)
	}
}

func elementwise(f func(float64) float64) activation {
	return func(data []float64, _ int) {
		for i, v := range data {
			data[i] = f(v)
		}
	}
}

func softmax(data []float64, last int) {
	if last == 0 {
		return
	}
	for start := 0; start < len(data); start += last {
		row := data[start : start+last]
		peak := slices.Max(row)
		sum := 0.0
		for i, v := range row {
			row[i] = math.Exp(v - peak)
			sum += row[i]
		}
		for i := range row {
			row[i] /= sum
		}
	}
}

// dense applies kernel and bias along the last axis.
type dense struct {
	base
	in, units int
	useBias   bool
	act       activation
	kernel    *mat.Dense
	bias      []float64
}

func newDense(name string, cfg LayerConfig, in []int) (*dense, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: dense layer %s needs at least rank 1 input", ErrShapeMismatch, name)
	}
	if cfg.Units <= 0 {
		return nil, fmt.Errorf("%w: dense layer %s has %d units", ErrInvalidDefinition, name, cfg.Units)
	}
	act, err := activationFor(cfg.Activation)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(in)
	out[len(out)-1] = cfg.Units
	return &dense{
		base:    base{name: name, class: ClassDense, out: out},
		in:      in[len(in)-1],
		units:   cfg.Units,
		useBias: cfg.UseBias == nil || *cfg.UseBias,
		act:     act,
	}, nil
}

func (d *dense) Params() []ParamSpec {
	params := []ParamSpec{{Layer: d.name, Name: ParamKernel, Shape: []int{d.in, d.units}}}
	if d.useBias {
		params = append(params, ParamSpec{Layer: d.name, Name: ParamBias, Shape: []int{d.units}})
	}
	return params
}

func (d *dense) bind(w Weights) error {
	params := d.Params()
	kernel, err := lookup(w, params[0])
	if err != nil {
		return err
	}
	d.kernel = mat.NewDense(d.in, d.units, slices.Clone(kernel.Data))
	if d.useBias {
		bias, err := lookup(w, params[1])
		if err != nil {
			return err
		}
		d.bias = slices.Clone(bias.Data)
	}
	return nil
}

func (d *dense) Forward(in Tensor) (Tensor, error) {
	rows, cols := in.rows()
	if cols != d.in || rows == 0 {
		return Tensor{}, fmt.Errorf("%w: dense layer %s got shape %v", ErrShapeMismatch, d.name, in.Shape)
	}
	x := mat.NewDense(rows, cols, in.Data)
	y := mat.NewDense(rows, d.units, nil)
	y.Mul(x, d.kernel)
	data := y.RawMatrix().Data
	if d.bias != nil {
		for r := 0; r < rows; r++ {
			row := data[r*d.units : (r+1)*d.units]
			for i := range row {
				row[i] += d.bias[i]
			}
		}
	}
	if d.act != nil {
		d.act(data, d.units)
	}
	out := slices.Clone(in.Shape)
	out[len(out)-1] = d.units
	return Tensor{Shape: out, Data: data}, nil
}

type activationLayer struct {
	base
	act activation
}

func newActivation(name string, cfg LayerConfig, in []int) (*activationLayer, error) {
	act, err := activationFor(cfg.Activation)
	if err != nil {
		return nil, err
	}
	return &activationLayer{base: base{name: name, class: ClassActivation, out: slices.Clone(in)}, act: act}, nil
}

func (a *activationLayer) Forward(in Tensor) (Tensor, error) {
	out := in.Clone()
	if a.act != nil {
		_, last := out.rows()
		a.act(out.Data, last)
	}
	return out, nil
}

// reshape covers Reshape, Flatten and the identity Dropout.
type reshape struct {
	base
}

func newReshape(name, class string, target []int, in []int) (*reshape, error) {
	size := shapeSize(in)
	out := slices.Clone(target)
	free := -1
	known := 1
	for i, d := range out {
		switch {
		case d == -1 && free == -1:
			free = i
		case d <= 0:
			return nil, fmt.Errorf("%w: %s target shape %v", ErrInvalidDefinition, name, target)
		default:
			known *= d
		}
	}
	if free >= 0 {
		if known == 0 || size%known != 0 {
			return nil, fmt.Errorf("%w: %s cannot reshape %v to %v", ErrShapeMismatch, name, in, target)
		}
		out[free] = size / known
	}
	if shapeSize(out) != size {
		return nil, fmt.Errorf("%w: %s cannot reshape %v to %v", ErrShapeMismatch, name, in, target)
	}
	return &reshape{base: base{name: name, class: class, out: out}}, nil
}

func (r *reshape) Forward(in Tensor) (Tensor, error) {
	return in.Reshape(r.out...)
}

// pathNormalization scales every vector along the last axis to unit length.
type pathNormalization struct {
	base
}

func (p *pathNormalization) Forward(in Tensor) (Tensor, error) {
	rows, cols := in.rows()
	if rows == 0 {
		return in.Clone(), nil
	}
	normalized := eigen.Normalize(mat.NewDense(rows, cols, in.Data))
	return Tensor{Shape: slices.Clone(in.Shape), Data: normalized.RawMatrix().Data}, nil
}

// covariance turns m predicted vectors of length n into an n x n matrix.
type covariance struct {
	base
}

func newCovariance(name string, in []int) (*covariance, error) {
	if len(in) != 2 {
		return nil, fmt.Errorf("%w: covariance layer %s needs (m,n) input, got %v", ErrShapeMismatch, name, in)
	}
	n := in[1]
	return &covariance{base: base{name: name, class: ClassCovariance, out: []int{n, n}}}, nil
}

func (c *covariance) Forward(in Tensor) (Tensor, error) {
	vectors, err := in.Matrix()
	if err != nil {
		return Tensor{}, err
	}
	sigma, err := eigen.Covariance(vectors)
	if err != nil {
		return Tensor{}, err
	}
	n := sigma.SymmetricDim()
	out := Zeros(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Data[i*n+j] = sigma.At(i, j)
		}
	}
	return out, nil
}
