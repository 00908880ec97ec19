package network

import (
	"fmt"
	"slices"
)

// Network is an immutable sequence of bound layers.
type Network struct {
	name   string
	input  []int
	layers []Layer
}

// Build compiles a definition and binds every parameter from weights.
func Build(def Definition, weights Weights) (*Network, error) {
	n, err := compile(def)
	if err != nil {
		return nil, err
	}
	for _, layer := range n.layers {
		p, ok := layer.(parameterized)
		if !ok {
			continue
		}
		if err := p.bind(weights); err != nil {
			return nil, fmt.Errorf("bind layer %s: %w", layer.Name(), err)
		}
	}
	return n, nil
}

// Params lists the parameters a definition needs, in layer order.
func Params(def Definition) ([]ParamSpec, error) {
	n, err := compile(def)
	if err != nil {
		return nil, err
	}
	var params []ParamSpec
	for _, layer := range n.layers {
		if p, ok := layer.(parameterized); ok {
			params = append(params, p.Params()...)
		}
	}
	return params, nil
}

func compile(def Definition) (*Network, error) {
	input, err := def.InputShape()
	if err != nil {
		return nil, err
	}
	n := &Network{name: def.Config.Name, input: input}
	shape := slices.Clone(input)
	seen := make(map[string]bool)
	for i, spec := range def.Config.Layers {
		if spec.ClassName == ClassInputLayer {
			if i != 0 {
				return nil, fmt.Errorf("%w: input layer at position %d", ErrInvalidDefinition, i)
			}
			continue
		}
		name := spec.layerName(i)
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate layer name %q", ErrInvalidDefinition, name)
		}
		seen[name] = true

		layer, err := newLayer(name, spec, shape)
		if err != nil {
			return nil, err
		}
		n.layers = append(n.layers, layer)
		shape = layer.OutputShape()
	}
	if len(n.layers) == 0 {
		return nil, fmt.Errorf("%w: model has no computational layers", ErrInvalidDefinition)
	}
	return n, nil
}

func newLayer(name string, spec LayerSpec, in []int) (Layer, error) {
	cfg := spec.Config
	switch spec.ClassName {
	case ClassDense:
		return newDense(name, cfg, in)
	case ClassActivation:
		return newActivation(name, cfg, in)
	case ClassReshape:
		return newReshape(name, ClassReshape, cfg.TargetShape, in)
	case ClassFlatten:
		return newReshape(name, ClassFlatten, []int{shapeSize(in)}, in)
	case ClassDropout:
		return newReshape(name, ClassDropout, in, in)
	case ClassConv2D:
		return newConv2D(name, cfg, in)
	case ClassMaxPooling2D:
		return newMaxPooling2D(name, cfg, in)
	case ClassPathNormalization:
		return &pathNormalization{base: base{name: name, class: ClassPathNormalization, out: slices.Clone(in)}}, nil
	case ClassCovariance:
		return newCovariance(name, in)
	default:
		return nil, fmt.Errorf("%w: layer class %q", ErrUnsupported, spec.ClassName)
	}
}

// Name returns the model name from the definition.
func (n *Network) Name() string {
	return n.name
}

// InputShape returns the per-sample input shape.
func (n *Network) InputShape() []int {
	return slices.Clone(n.input)
}

// OutputShape returns the per-sample output shape.
func (n *Network) OutputShape() []int {
	return n.layers[len(n.layers)-1].OutputShape()
}

// Layers returns the evaluated layers in order.
func (n *Network) Layers() []Layer {
	return slices.Clone(n.layers)
}

// LastClass returns the class of the final layer.
func (n *Network) LastClass() string {
	return n.layers[len(n.layers)-1].Class()
}

// Truncate returns a network sharing this one's layers without the final
// depth layers.
func (n *Network) Truncate(depth int) (*Network, error) {
	if depth < 0 || depth >= len(n.layers) {
		return nil, fmt.Errorf("%w: cannot drop %d of %d layers", ErrInvalidDefinition, depth, len(n.layers))
	}
	return &Network{name: n.name, input: n.input, layers: n.layers[:len(n.layers)-depth:len(n.layers)-depth]}, nil
}

// Forward evaluates one sample.
func (n *Network) Forward(in Tensor) (Tensor, error) {
	if !slices.Equal(in.Shape, n.input) || len(in.Data) != shapeSize(n.input) {
		return Tensor{}, fmt.Errorf("%w: network input %v, got %v", ErrShapeMismatch, n.input, in.Shape)
	}
	out := in
	for _, layer := range n.layers {
		next, err := layer.Forward(out)
		if err != nil {
			return Tensor{}, fmt.Errorf("layer %s: %w", layer.Name(), err)
		}
		out = next
	}
	return out, nil
}
