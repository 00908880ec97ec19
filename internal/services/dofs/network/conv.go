package network

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

const (
	paddingValid = "valid"
	paddingSame  = "same"
)

// window describes a 2D sliding window over an (H,W,C) input.
type window struct {
	kh, kw   int
	sh, sw   int
	outH     int
	outW     int
	padTop   int
	padLeft  int
	inH, inW int
}

func newWindow(name string, in []int, kernel, strides []int, padding string) (window, error) {
	if len(in) != 3 {
		return window{}, fmt.Errorf("%w: %s needs (H,W,C) input, got %v", ErrShapeMismatch, name, in)
	}
	kh, kw, err := pair(name, "kernel", kernel, 0)
	if err != nil {
		return window{}, err
	}
	sh, sw, err := pair(name, "strides", strides, 1)
	if err != nil {
		return window{}, err
	}
	w := window{kh: kh, kw: kw, sh: sh, sw: sw, inH: in[0], inW: in[1]}
	switch padding {
	case "", paddingValid:
		w.outH = (w.inH-kh)/sh + 1
		w.outW = (w.inW-kw)/sw + 1
	case paddingSame:
		w.outH = ceilDiv(w.inH, sh)
		w.outW = ceilDiv(w.inW, sw)
		w.padTop = max((w.outH-1)*sh+kh-w.inH, 0) / 2
		w.padLeft = max((w.outW-1)*sw+kw-w.inW, 0) / 2
	default:
		return window{}, fmt.Errorf("%w: %s padding %q", ErrUnsupported, name, padding)
	}
	if padding != paddingSame && (w.inH < kh || w.inW < kw) || w.outH <= 0 || w.outW <= 0 {
		return window{}, fmt.Errorf("%w: %s window %dx%d does not fit input %v", ErrShapeMismatch, name, kh, kw, in)
	}
	return w, nil
}

// origin returns the top-left input coordinate of output (y, x).
func (w window) origin(y, x int) (int, int) {
	return y*w.sh - w.padTop, x*w.sw - w.padLeft
}

func (w window) inside(y, x int) bool {
	return y >= 0 && x >= 0 && y < w.inH && x < w.inW
}

func pair(name, field string, v []int, fallback int) (int, int, error) {
	switch {
	case len(v) == 0 && fallback > 0:
		return fallback, fallback, nil
	case len(v) == 1 && v[0] > 0:
		return v[0], v[0], nil
	case len(v) == 2 && v[0] > 0 && v[1] > 0:
		return v[0], v[1], nil
	default:
		return 0, 0, fmt.Errorf("%w: %s %s %v", ErrInvalidDefinition, name, field, v)
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

type conv2D struct {
	base
	win       window
	cin, cout int
	useBias   bool
	act       activation
	kernel    *mat.Dense
	bias      []float64
}

func newConv2D(name string, cfg LayerConfig, in []int) (*conv2D, error) {
	if cfg.Filters <= 0 {
		return nil, fmt.Errorf("%w: conv layer %s has %d filters", ErrInvalidDefinition, name, cfg.Filters)
	}
	win, err := newWindow(name, in, cfg.KernelSize, cfg.Strides, cfg.Padding)
	if err != nil {
		return nil, err
	}
	act, err := activationFor(cfg.Activation)
	if err != nil {
		return nil, err
	}
	return &conv2D{
		base:    base{name: name, class: ClassConv2D, out: []int{win.outH, win.outW, cfg.Filters}},
		win:     win,
		cin:     in[2],
		cout:    cfg.Filters,
		useBias: cfg.UseBias == nil || *cfg.UseBias,
		act:     act,
	}, nil
}

func (c *conv2D) Params() []ParamSpec {
	params := []ParamSpec{{Layer: c.name, Name: ParamKernel, Shape: []int{c.win.kh, c.win.kw, c.cin, c.cout}}}
	if c.useBias {
		params = append(params, ParamSpec{Layer: c.name, Name: ParamBias, Shape: []int{c.cout}})
	}
	return params
}

func (c *conv2D) bind(w Weights) error {
	params := c.Params()
	kernel, err := lookup(w, params[0])
	if err != nil {
		return err
	}
	// (kh,kw,cin,cout) row-major is already the (kh*kw*cin, cout) patch matrix.
	c.kernel = mat.NewDense(c.win.kh*c.win.kw*c.cin, c.cout, slices.Clone(kernel.Data))
	if c.useBias {
		bias, err := lookup(w, params[1])
		if err != nil {
			return err
		}
		c.bias = slices.Clone(bias.Data)
	}
	return nil
}

// Forward gathers one output row of patches at a time and multiplies it by
// the kernel matrix.
func (c *conv2D) Forward(in Tensor) (Tensor, error) {
	if !slices.Equal(in.Shape, []int{c.win.inH, c.win.inW, c.cin}) {
		return Tensor{}, fmt.Errorf("%w: conv layer %s got shape %v", ErrShapeMismatch, c.name, in.Shape)
	}
	w := c.win
	patchLen := w.kh * w.kw * c.cin
	out := Zeros(w.outH, w.outW, c.cout)
	patches := mat.NewDense(w.outW, patchLen, nil)
	rowOut := mat.NewDense(w.outW, c.cout, nil)

	for y := 0; y < w.outH; y++ {
		patches.Zero()
		for x := 0; x < w.outW; x++ {
			oy, ox := w.origin(y, x)
			patch := patches.RawRowView(x)
			for ky := 0; ky < w.kh; ky++ {
				for kx := 0; kx < w.kw; kx++ {
					iy, ix := oy+ky, ox+kx
					if !w.inside(iy, ix) {
						continue
					}
					src := in.Data[(iy*w.inW+ix)*c.cin : (iy*w.inW+ix+1)*c.cin]
					copy(patch[(ky*w.kw+kx)*c.cin:], src)
				}
			}
		}
		rowOut.Mul(patches, c.kernel)
		dst := out.Data[y*w.outW*c.cout : (y+1)*w.outW*c.cout]
		copy(dst, rowOut.RawMatrix().Data)
	}

	if c.bias != nil {
		for i := range out.Data {
			out.Data[i] += c.bias[i%c.cout]
		}
	}
	if c.act != nil {
		c.act(out.Data, c.cout)
	}
	return out, nil
}

type maxPooling2D struct {
	base
	win      window
	channels int
}

func newMaxPooling2D(name string, cfg LayerConfig, in []int) (*maxPooling2D, error) {
	pool := cfg.PoolSize
	if len(pool) == 0 {
		pool = []int{2, 2}
	}
	strides := cfg.Strides
	if len(strides) == 0 {
		strides = pool
	}
	win, err := newWindow(name, in, pool, strides, cfg.Padding)
	if err != nil {
		return nil, err
	}
	return &maxPooling2D{
		base:     base{name: name, class: ClassMaxPooling2D, out: []int{win.outH, win.outW, in[2]}},
		win:      win,
		channels: in[2],
	}, nil
}

func (p *maxPooling2D) Forward(in Tensor) (Tensor, error) {
	w := p.win
	if !slices.Equal(in.Shape, []int{w.inH, w.inW, p.channels}) {
		return Tensor{}, fmt.Errorf("%w: pooling layer %s got shape %v", ErrShapeMismatch, p.name, in.Shape)
	}
	out := Zeros(w.outH, w.outW, p.channels)
	for y := 0; y < w.outH; y++ {
		for x := 0; x < w.outW; x++ {
			oy, ox := w.origin(y, x)
			for ch := 0; ch < p.channels; ch++ {
				peak := math.Inf(-1)
				for ky := 0; ky < w.kh; ky++ {
					for kx := 0; kx < w.kw; kx++ {
						iy, ix := oy+ky, ox+kx
						if !w.inside(iy, ix) {
							continue
						}
						peak = max(peak, in.Data[(iy*w.inW+ix)*p.channels+ch])
					}
				}
				out.Data[(y*w.outW+x)*p.channels+ch] = peak
			}
		}
	}
	return out, nil
}
