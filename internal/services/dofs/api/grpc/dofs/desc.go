package dofs

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "dofs.v1.DofService"

// Full method names.
const (
	UpdateDofsMethod       = "/" + ServiceName + "/UpdateDofs"
	GetDescriptionMethod   = "/" + ServiceName + "/GetDescription"
	GetReducedOutputMethod = "/" + ServiceName + "/GetReducedOutput"
	ListModelsMethod       = "/" + ServiceName + "/ListModels"
	ReloadModelsMethod     = "/" + ServiceName + "/ReloadModels"
)

// DofServiceServer is the server API for dofs.v1.DofService. Messages are
// protobuf well-known types; the field layout is documented on Service.
type DofServiceServer interface {
	UpdateDofs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDescription(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	GetReducedOutput(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListModels(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	ReloadModels(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterDofServiceServer registers srv on s.
func RegisterDofServiceServer(s grpc.ServiceRegistrar, srv DofServiceServer) {
	s.RegisterService(&DofServiceDesc, srv)
}

// DofServiceDesc describes dofs.v1.DofService.
var DofServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DofServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "UpdateDofs", Handler: updateDofsHandler},
		{MethodName: "GetDescription", Handler: getDescriptionHandler},
		{MethodName: "GetReducedOutput", Handler: getReducedOutputHandler},
		{MethodName: "ListModels", Handler: listModelsHandler},
		{MethodName: "ReloadModels", Handler: reloadModelsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dofs/v1/dofs.proto",
}

func updateDofsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DofServiceServer).UpdateDofs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: UpdateDofsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DofServiceServer).UpdateDofs(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getDescriptionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DofServiceServer).GetDescription(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetDescriptionMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DofServiceServer).GetDescription(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getReducedOutputHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DofServiceServer).GetReducedOutput(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetReducedOutputMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DofServiceServer).GetReducedOutput(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listModelsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DofServiceServer).ListModels(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListModelsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DofServiceServer).ListModels(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func reloadModelsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DofServiceServer).ReloadModels(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReloadModelsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DofServiceServer).ReloadModels(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
