// Package dofs exposes the DoF model registry over gRPC.
package dofs

import (
	"context"
	"log"
	"strings"

	apperrors "github.com/louisbranch/dofsim/internal/platform/errors"
	"github.com/louisbranch/dofsim/internal/services/dofs/geometry"
	"github.com/louisbranch/dofsim/internal/services/dofs/model"
	"github.com/louisbranch/dofsim/internal/services/dofs/network"
	"github.com/louisbranch/dofsim/internal/services/dofs/registry"
	"golang.org/x/text/language"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Request and response fields.
const (
	FieldModel       = "model"
	FieldState       = "state"
	FieldDofs        = "dofs"
	FieldEigenvalues = "eigenvalues"
	FieldShape       = "shape"
	FieldValues      = "values"
	FieldLoaded      = "loaded"
	FieldFailed      = "failed"
)

// localeHeader carries the caller's preferred languages.
const localeHeader = "accept-language"

// Model is the per-model surface the service calls.
type Model interface {
	UpdateDofs(ctx context.Context, state geometry.SceneState) (model.DofSet, error)
	Description() string
	ReducedOutput(ctx context.Context, state geometry.SceneState) (network.Tensor, error)
}

// Models resolves names to loaded models and reloads them.
type Models interface {
	Lookup(name string) (Model, error)
	List(filter string) ([]string, error)
	ReloadAll(ctx context.Context) (registry.Report, error)
}

// RegistryModels adapts a registry to Models.
type RegistryModels struct {
	*registry.Registry
}

// Lookup returns the loaded handle for name.
func (r RegistryModels) Lookup(name string) (Model, error) {
	h, err := r.Model(name)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// List returns the sorted names of loaded models matching filter.
func (r RegistryModels) List(filter string) ([]string, error) {
	f, err := registry.ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	return r.Registry.List(f)
}

// Service exposes dofs.v1 gRPC operations.
//
// UpdateDofs and GetReducedOutput take {"model": string, "state": [8]number}.
// UpdateDofs returns {"dofs": [[number]], "eigenvalues": [number]} and
// GetReducedOutput returns {"shape": [number], "values": [number]}.
// ListModels takes an AIP-160 filter string and returns [string].
// ReloadModels returns {"loaded": [string], "failed": {name: message}}.
type Service struct {
	models Models
}

// NewService creates a DoF service backed by models.
func NewService(models Models) *Service {
	return &Service{models: models}
}

// UpdateDofs runs one model on a scene state.
func (s *Service) UpdateDofs(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "update dofs request is required")
	}
	if s == nil || s.models == nil {
		return nil, status.Error(codes.Internal, "model registry is not configured")
	}
	name, state, err := parseModelState(in)
	if err != nil {
		return nil, err
	}
	m, err := s.models.Lookup(name)
	if err != nil {
		return nil, apperrors.ToGRPC(err, localeFrom(ctx))
	}
	set, err := m.UpdateDofs(ctx, state)
	if err != nil {
		return nil, apperrors.ToGRPC(err, localeFrom(ctx))
	}
	return dofSetToProto(set), nil
}

// GetDescription returns the about text of a model.
func (s *Service) GetDescription(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "get description request is required")
	}
	if s == nil || s.models == nil {
		return nil, status.Error(codes.Internal, "model registry is not configured")
	}
	name := in.GetValue()
	if strings.TrimSpace(name) == "" {
		return nil, status.Error(codes.InvalidArgument, "model name is required")
	}
	m, err := s.models.Lookup(name)
	if err != nil {
		return nil, apperrors.ToGRPC(err, localeFrom(ctx))
	}
	return wrapperspb.String(m.Description()), nil
}

// GetReducedOutput returns the raw output of a model's truncated network.
func (s *Service) GetReducedOutput(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "get reduced output request is required")
	}
	if s == nil || s.models == nil {
		return nil, status.Error(codes.Internal, "model registry is not configured")
	}
	name, state, err := parseModelState(in)
	if err != nil {
		return nil, err
	}
	m, err := s.models.Lookup(name)
	if err != nil {
		return nil, apperrors.ToGRPC(err, localeFrom(ctx))
	}
	out, err := m.ReducedOutput(ctx, state)
	if err != nil {
		return nil, apperrors.ToGRPC(err, localeFrom(ctx))
	}
	return tensorToProto(out), nil
}

// ListModels returns the sorted names of discovered models that match the
// request's AIP-160 filter. An empty or missing filter lists all.
func (s *Service) ListModels(ctx context.Context, in *wrapperspb.StringValue) (*structpb.ListValue, error) {
	if s == nil || s.models == nil {
		return nil, status.Error(codes.Internal, "model registry is not configured")
	}
	names, err := s.models.List(in.GetValue())
	if err != nil {
		return nil, apperrors.ToGRPC(err, localeFrom(ctx))
	}
	return stringList(names), nil
}

// ReloadModels rediscovers and reloads every model.
func (s *Service) ReloadModels(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.models == nil {
		return nil, status.Error(codes.Internal, "model registry is not configured")
	}
	report, err := s.models.ReloadAll(ctx)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeUnknown && ctx.Err() == nil {
			log.Printf("reload models: %v", err)
			return nil, status.Error(codes.Internal, "reload models failed")
		}
		return nil, apperrors.ToGRPC(err, localeFrom(ctx))
	}
	return reportToProto(report), nil
}

func parseModelState(in *structpb.Struct) (string, geometry.SceneState, error) {
	fields := in.GetFields()
	name := fields[FieldModel].GetStringValue()
	if strings.TrimSpace(name) == "" {
		return "", nil, status.Error(codes.InvalidArgument, "model name is required")
	}
	list, ok := fields[FieldState].GetKind().(*structpb.Value_ListValue)
	if !ok {
		return "", nil, status.Error(codes.InvalidArgument, "state must be a list of numbers")
	}
	values := list.ListValue.GetValues()
	state := make(geometry.SceneState, len(values))
	for i, v := range values {
		number, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return "", nil, status.Errorf(codes.InvalidArgument, "state component %d is not a number", i)
		}
		state[i] = number.NumberValue
	}
	return name, state, nil
}

// localeFrom picks the first language of the accept-language header.
func localeFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, header := range md.Get(localeHeader) {
		tags, _, err := language.ParseAcceptLanguage(header)
		if err == nil && len(tags) > 0 {
			return tags[0].String()
		}
	}
	return ""
}
