package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/louisbranch/dofsim/internal/services/dofs/network"
	"github.com/louisbranch/dofsim/internal/services/dofs/storage"
	"github.com/louisbranch/dofsim/internal/services/dofs/storage/sqlite"
)

// WriteDirectory writes a model directory: the definition, every tensor of
// weights and, when about is not empty, the about file. An existing weights
// file is never overwritten.
func WriteDirectory(ctx context.Context, dir string, def network.Definition, weights network.Weights, about string) error {
	if _, err := network.Build(def, weights); err != nil {
		return fmt.Errorf("weights do not fit definition: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}
	weightsPath := filepath.Join(dir, WeightsFile)
	if _, err := os.Stat(weightsPath); err == nil {
		return fmt.Errorf("%s: %w", weightsPath, storage.ErrAlreadyExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat weights file: %w", err)
	}

	raw, err := def.Marshal()
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DefinitionFile), raw, 0o644); err != nil {
		return fmt.Errorf("write definition: %w", err)
	}

	store, err := sqlite.Create(ctx, weightsPath)
	if err != nil {
		return fmt.Errorf("create weights store: %w", err)
	}
	if err := storeWeights(ctx, store, weights); err != nil {
		_ = store.Close()
		return err
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("close weights store: %w", err)
	}

	if about != "" {
		if err := os.WriteFile(filepath.Join(dir, AboutFile), []byte(about), 0o644); err != nil {
			return fmt.Errorf("write about file: %w", err)
		}
	}
	return nil
}

func storeWeights(ctx context.Context, writer storage.WeightsWriter, weights network.Weights) error {
	layers := make([]string, 0, len(weights))
	for layer := range weights {
		layers = append(layers, layer)
	}
	sort.Strings(layers)
	for _, layer := range layers {
		names := make([]string, 0, len(weights[layer]))
		for name := range weights[layer] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			tensor := weights[layer][name]
			if err := writer.PutTensor(ctx, storage.Tensor{
				Layer: layer,
				Name:  name,
				Shape: tensor.Shape,
				Data:  tensor.Data,
			}); err != nil {
				return fmt.Errorf("store %s/%s: %w", layer, name, err)
			}
		}
	}
	return nil
}

// InitWeights draws Xavier-uniform kernels and zero biases for every
// parameter of def.
func InitWeights(def network.Definition, rng *rand.Rand) (network.Weights, error) {
	params, err := network.Params(def)
	if err != nil {
		return nil, err
	}
	weights := network.Weights{}
	for _, p := range params {
		tensor := network.Zeros(p.Shape...)
		if p.Name == network.ParamKernel {
			fanIn, fanOut := fans(p.Shape)
			limit := math.Sqrt(6 / float64(fanIn+fanOut))
			for i := range tensor.Data {
				tensor.Data[i] = (rng.Float64()*2 - 1) * limit
			}
		}
		weights.Set(p.Layer, p.Name, tensor)
	}
	return weights, nil
}

// fans returns fan-in and fan-out of a dense (in,out) or conv (kh,kw,in,out)
// kernel.
func fans(shape []int) (int, int) {
	receptive := 1
	for _, d := range shape[:len(shape)-2] {
		receptive *= d
	}
	return shape[len(shape)-2] * receptive, shape[len(shape)-1] * receptive
}
