package network

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Layer class names understood by Build.
const (
	ClassInputLayer        = "InputLayer"
	ClassDense             = "Dense"
	ClassActivation        = "Activation"
	ClassReshape           = "Reshape"
	ClassFlatten           = "Flatten"
	ClassDropout           = "Dropout"
	ClassConv2D            = "Conv2D"
	ClassMaxPooling2D      = "MaxPooling2D"
	ClassPathNormalization = "PathNormalization"
	ClassCovariance        = "Covariance"
)

// SequentialClass is the only model class supported.
const SequentialClass = "Sequential"

// Definition is the model.json document.
type Definition struct {
	ClassName string      `json:"class_name"`
	Config    ModelConfig `json:"config"`
}

// ModelConfig lists the layers in evaluation order.
type ModelConfig struct {
	Name   string      `json:"name,omitempty"`
	Layers []LayerSpec `json:"layers"`
}

// LayerSpec is one entry of the layer list.
type LayerSpec struct {
	ClassName string      `json:"class_name"`
	Config    LayerConfig `json:"config"`
}

// LayerConfig holds the union of options used by the supported layers.
// BatchInputShape keeps the leading null batch dimension.
type LayerConfig struct {
	Name            string `json:"name,omitempty"`
	BatchInputShape []*int `json:"batch_input_shape,omitempty"`
	Units           int    `json:"units,omitempty"`
	Activation      string `json:"activation,omitempty"`
	UseBias         *bool  `json:"use_bias,omitempty"`
	TargetShape     []int  `json:"target_shape,omitempty"`
	Filters         int    `json:"filters,omitempty"`
	KernelSize      []int  `json:"kernel_size,omitempty"`
	Strides         []int  `json:"strides,omitempty"`
	Padding         string `json:"padding,omitempty"`
	PoolSize        []int  `json:"pool_size,omitempty"`
}

// ParseDefinition decodes a model.json document.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("decode model definition: %w", err)
	}
	if def.ClassName != SequentialClass {
		return Definition{}, fmt.Errorf("%w: model class %q", ErrUnsupported, def.ClassName)
	}
	if len(def.Config.Layers) == 0 {
		return Definition{}, fmt.Errorf("%w: model has no layers", ErrInvalidDefinition)
	}
	return def, nil
}

// Marshal encodes the definition as indented JSON.
func (d Definition) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// InputShape returns the per-sample input shape declared by the first layer.
func (d Definition) InputShape() ([]int, error) {
	if len(d.Config.Layers) == 0 {
		return nil, fmt.Errorf("%w: model has no layers", ErrInvalidDefinition)
	}
	batch := d.Config.Layers[0].Config.BatchInputShape
	if len(batch) < 2 {
		return nil, fmt.Errorf("%w: first layer declares no batch_input_shape", ErrInvalidDefinition)
	}
	shape := make([]int, 0, len(batch)-1)
	for i, dim := range batch[1:] {
		if dim == nil || *dim <= 0 {
			return nil, fmt.Errorf("%w: input dimension %d is not fixed", ErrInvalidDefinition, i+1)
		}
		shape = append(shape, *dim)
	}
	return shape, nil
}

// layerName returns the configured name or a generated one.
func (s LayerSpec) layerName(index int) string {
	if s.Config.Name != "" {
		return s.Config.Name
	}
	return fmt.Sprintf("%s_%d", strings.ToLower(s.ClassName), index)
}
