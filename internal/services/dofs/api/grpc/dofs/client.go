package dofs

import (
	"context"
	"fmt"

	"github.com/louisbranch/dofsim/internal/services/dofs/model"
	"github.com/louisbranch/dofsim/internal/services/dofs/network"
	"github.com/louisbranch/dofsim/internal/services/dofs/registry"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a typed client for dofs.v1.DofService.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// UpdateDofs runs the named model on a scene state.
func (c *Client) UpdateDofs(ctx context.Context, name string, state []float64, opts ...grpc.CallOption) (model.DofSet, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, UpdateDofsMethod, modelStateRequest(name, state), out, opts...); err != nil {
		return model.DofSet{}, err
	}
	set, err := protoToDofSet(out)
	if err != nil {
		return model.DofSet{}, fmt.Errorf("decode update dofs response: %w", err)
	}
	return set, nil
}

// GetDescription returns the about text of the named model.
func (c *Client) GetDescription(ctx context.Context, name string, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, GetDescriptionMethod, wrapperspb.String(name), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// GetReducedOutput returns the truncated network output of the named model.
func (c *Client) GetReducedOutput(ctx context.Context, name string, state []float64, opts ...grpc.CallOption) (network.Tensor, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, GetReducedOutputMethod, modelStateRequest(name, state), out, opts...); err != nil {
		return network.Tensor{}, err
	}
	tensor, err := protoToTensor(out)
	if err != nil {
		return network.Tensor{}, fmt.Errorf("decode reduced output response: %w", err)
	}
	return tensor, nil
}

// ListModels returns the loaded model names matching filter, an AIP-160
// expression over name, head and projection. An empty filter lists all.
func (c *Client) ListModels(ctx context.Context, filter string, opts ...grpc.CallOption) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, ListModelsMethod, wrapperspb.String(filter), out, opts...); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}

// ReloadModels reloads every model on the server.
func (c *Client) ReloadModels(ctx context.Context, opts ...grpc.CallOption) (registry.Report, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ReloadModelsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return registry.Report{}, err
	}
	report, err := protoToReport(out)
	if err != nil {
		return registry.Report{}, fmt.Errorf("decode reload response: %w", err)
	}
	return report, nil
}

func modelStateRequest(name string, state []float64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldModel: structpb.NewStringValue(name),
		FieldState: numberList(state),
	}}
}
