package dofs

import (
	"context"
	"errors"
	"net"
	"slices"
	"strings"
	"testing"

	apperrors "github.com/louisbranch/dofsim/internal/platform/errors"
	"github.com/louisbranch/dofsim/internal/services/dofs/geometry"
	"github.com/louisbranch/dofsim/internal/services/dofs/model"
	"github.com/louisbranch/dofsim/internal/services/dofs/network"
	"github.com/louisbranch/dofsim/internal/services/dofs/registry"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type fakeModel struct {
	set         model.DofSet
	description string
	reduced     network.Tensor
	reducedErr  error
	lastState   geometry.SceneState
}

func (m *fakeModel) UpdateDofs(_ context.Context, state geometry.SceneState) (model.DofSet, error) {
	m.lastState = state
	if err := state.Validate(); err != nil {
		return model.DofSet{}, err
	}
	return m.set, nil
}

func (m *fakeModel) Description() string { return m.description }

func (m *fakeModel) ReducedOutput(_ context.Context, state geometry.SceneState) (network.Tensor, error) {
	m.lastState = state
	return m.reduced, m.reducedErr
}

type fakeModels struct {
	models     map[string]*fakeModel
	report     registry.Report
	reloadErr  error
	reloads    int
	lastFilter string
}

func (f *fakeModels) Lookup(name string) (Model, error) {
	m, ok := f.models[name]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeModelNotFound, "model "+name+" is not loaded", map[string]string{"Model": name})
	}
	return m, nil
}

func (f *fakeModels) List(filter string) ([]string, error) {
	f.lastFilter = filter
	if filter == "bogus" {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "parse model filter")
	}
	names := make([]string, 0, len(f.models))
	for name := range f.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (f *fakeModels) ReloadAll(context.Context) (registry.Report, error) {
	f.reloads++
	return f.report, f.reloadErr
}

func newFakeModels() *fakeModels {
	return &fakeModels{
		models: map[string]*fakeModel{
			"push": {
				set: model.DofSet{
					Dofs:        [][]float64{{0, 1}, {1, 0}},
					Eigenvalues: []float64{2, 0.5},
				},
				description: "pushes boxes",
				reduced:     network.Tensor{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}},
			},
			"plain": {
				reducedErr: apperrors.WithMetadata(apperrors.CodeNotConfigured, "no reduced output", map[string]string{"Model": "plain"}),
			},
		},
		report: registry.Report{
			Loaded: []string{"plain", "push"},
			Failed: map[string]error{"broken": apperrors.Wrap(apperrors.CodeModelCorrupt,
				"model broken: read weights", errors.New("open /srv/models/broken/model_weights.db: no such file"))},
		},
	}
}

func stateRequest(t *testing.T, name string, state ...any) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]any{FieldModel: name, FieldState: state})
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	return req
}

func TestUpdateDofs_NilRequest(t *testing.T) {
	svc := NewService(newFakeModels())
	_, err := svc.UpdateDofs(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.InvalidArgument)
	}
}

func TestUpdateDofs_NotConfigured(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.UpdateDofs(context.Background(), stateRequest(t, "push"))
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.Internal)
	}
}

func TestUpdateDofs_RejectsMalformedRequests(t *testing.T) {
	svc := NewService(newFakeModels())
	testCases := []struct {
		name string
		req  *structpb.Struct
	}{
		{name: "missing model", req: stateRequest(t, " ", 1.0)},
		{name: "state not a list", req: &structpb.Struct{Fields: map[string]*structpb.Value{
			FieldModel: structpb.NewStringValue("push"),
			FieldState: structpb.NewStringValue("1,2"),
		}}},
		{name: "state with text", req: stateRequest(t, "push", 1.0, "two")},
		{name: "short state", req: stateRequest(t, "push", 1.0, 2.0)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpdateDofs(context.Background(), tc.req)
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("code = %v, want %v", status.Code(err), codes.InvalidArgument)
			}
		})
	}
}

func TestUpdateDofs_Success(t *testing.T) {
	models := newFakeModels()
	svc := NewService(models)
	resp, err := svc.UpdateDofs(context.Background(), stateRequest(t, "push", 100.0, 0.0, 50.0, 50.0, 0.0, -50.0, -50.0, 1.5))
	if err != nil {
		t.Fatalf("update dofs: %v", err)
	}
	if got := models.models["push"].lastState; !slices.Equal(got, geometry.SceneState{100, 0, 50, 50, 0, -50, -50, 1.5}) {
		t.Fatalf("state = %v", got)
	}
	set, err := protoToDofSet(resp)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !slices.Equal(set.Eigenvalues, []float64{2, 0.5}) {
		t.Fatalf("eigenvalues = %v", set.Eigenvalues)
	}
	if len(set.Dofs) != 2 || !slices.Equal(set.Dofs[0], []float64{0, 1}) {
		t.Fatalf("dofs = %v", set.Dofs)
	}
}

func TestUpdateDofs_UnknownModelIsNotFound(t *testing.T) {
	svc := NewService(newFakeModels())
	_, err := svc.UpdateDofs(context.Background(), stateRequest(t, "missing", 1.0))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.NotFound)
	}
	st := status.Convert(err)
	var info *errdetails.ErrorInfo
	for _, detail := range st.Details() {
		if d, ok := detail.(*errdetails.ErrorInfo); ok {
			info = d
		}
	}
	if info == nil || info.GetReason() != string(apperrors.CodeModelNotFound) {
		t.Fatalf("error info = %v, want reason %s", info, apperrors.CodeModelNotFound)
	}
}

func TestUpdateDofs_LocalizesFromAcceptLanguage(t *testing.T) {
	svc := NewService(newFakeModels())
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("accept-language", "de-AT,de;q=0.9,en;q=0.5"))
	_, err := svc.UpdateDofs(ctx, stateRequest(t, "missing", 1.0))
	var localized *errdetails.LocalizedMessage
	for _, detail := range status.Convert(err).Details() {
		if d, ok := detail.(*errdetails.LocalizedMessage); ok {
			localized = d
		}
	}
	if localized == nil {
		t.Fatal("expected a localized message")
	}
	if localized.GetLocale() != "de-DE" {
		t.Fatalf("locale = %q, want de-DE", localized.GetLocale())
	}
	if want := "Modell missing wurde nicht gefunden"; localized.GetMessage() != want {
		t.Fatalf("message = %q, want %q", localized.GetMessage(), want)
	}
}

func TestGetDescription(t *testing.T) {
	svc := NewService(newFakeModels())
	resp, err := svc.GetDescription(context.Background(), wrapperspb.String("push"))
	if err != nil {
		t.Fatalf("get description: %v", err)
	}
	if resp.GetValue() != "pushes boxes" {
		t.Fatalf("description = %q", resp.GetValue())
	}
	if _, err := svc.GetDescription(context.Background(), wrapperspb.String("")); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("empty name code = %v", status.Code(err))
	}
	if _, err := svc.GetDescription(context.Background(), wrapperspb.String("missing")); status.Code(err) != codes.NotFound {
		t.Fatalf("missing model code = %v", status.Code(err))
	}
}

func TestModelNamesAreMatchedVerbatim(t *testing.T) {
	models := newFakeModels()
	models.models[" push "] = &fakeModel{
		set:         model.DofSet{Dofs: [][]float64{{1, 0}}, Eigenvalues: []float64{1}},
		description: "padded",
	}
	svc := NewService(models)

	resp, err := svc.GetDescription(context.Background(), wrapperspb.String(" push "))
	if err != nil {
		t.Fatalf("get description: %v", err)
	}
	if resp.GetValue() != "padded" {
		t.Fatalf("description = %q, want padded", resp.GetValue())
	}
	resp2, err := svc.UpdateDofs(context.Background(), stateRequest(t, " push ", 100.0, 0.0, 50.0, 50.0, 0.0, -50.0, -50.0, 1.5))
	if err != nil {
		t.Fatalf("update dofs: %v", err)
	}
	set, err := protoToDofSet(resp2)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !slices.Equal(set.Eigenvalues, []float64{1}) {
		t.Fatalf("eigenvalues = %v, want the padded model's", set.Eigenvalues)
	}
	if _, err := svc.GetDescription(context.Background(), wrapperspb.String("push ")); status.Code(err) != codes.NotFound {
		t.Fatalf("trailing space code = %v, want %v", status.Code(err), codes.NotFound)
	}
}

func TestGetReducedOutput(t *testing.T) {
	svc := NewService(newFakeModels())
	resp, err := svc.GetReducedOutput(context.Background(), stateRequest(t, "push", 1.0))
	if err != nil {
		t.Fatalf("get reduced output: %v", err)
	}
	tensor, err := protoToTensor(resp)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !slices.Equal(tensor.Shape, []int{2, 2}) || !slices.Equal(tensor.Data, []float64{1, 2, 3, 4}) {
		t.Fatalf("tensor = %+v", tensor)
	}

	_, err = svc.GetReducedOutput(context.Background(), stateRequest(t, "plain", 1.0))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("not configured code = %v, want %v", status.Code(err), codes.FailedPrecondition)
	}
}

func TestListModels(t *testing.T) {
	models := newFakeModels()
	svc := NewService(models)
	resp, err := svc.ListModels(context.Background(), wrapperspb.String(`head = "sigma"`))
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if models.lastFilter != `head = "sigma"` {
		t.Fatalf("filter = %q", models.lastFilter)
	}
	var names []string
	for _, v := range resp.GetValues() {
		names = append(names, v.GetStringValue())
	}
	if !slices.Equal(names, []string{"plain", "push"}) {
		t.Fatalf("names = %v", names)
	}

	if _, err := svc.ListModels(context.Background(), nil); err != nil {
		t.Fatalf("list models without filter: %v", err)
	}
	if models.lastFilter != "" {
		t.Fatalf("filter = %q, want empty", models.lastFilter)
	}
	if _, err := svc.ListModels(context.Background(), wrapperspb.String("bogus")); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad filter code = %v, want %v", status.Code(err), codes.InvalidArgument)
	}
}

func TestReloadModels(t *testing.T) {
	models := newFakeModels()
	svc := NewService(models)
	resp, err := svc.ReloadModels(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("reload models: %v", err)
	}
	report, err := protoToReport(resp)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !slices.Equal(report.Loaded, []string{"plain", "push"}) {
		t.Fatalf("loaded = %v", report.Loaded)
	}
	if report.Failed["broken"] == nil || report.Failed["broken"].Error() != "model broken: read weights" {
		t.Fatalf("failed = %v", report.Failed)
	}

	models.reloadErr = errors.New("read model root /srv/models: permission denied")
	_, err = svc.ReloadModels(context.Background(), &emptypb.Empty{})
	if status.Code(err) != codes.Internal {
		t.Fatalf("reload error code = %v, want %v", status.Code(err), codes.Internal)
	}
	if msg := status.Convert(err).Message(); strings.Contains(msg, "/srv/models") {
		t.Fatalf("reload error leaks the model root: %q", msg)
	}
	if models.reloads != 2 {
		t.Fatalf("reloads = %d, want 2", models.reloads)
	}
}

func TestClientRoundTrip(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := grpc.NewServer()
	RegisterDofServiceServer(server, NewService(newFakeModels()))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	client := NewClient(conn)
	ctx := context.Background()

	set, err := client.UpdateDofs(ctx, "push", []float64{100, 0, 50, 50, 0, -50, -50, 1.5})
	if err != nil {
		t.Fatalf("update dofs: %v", err)
	}
	if !slices.Equal(set.Eigenvalues, []float64{2, 0.5}) {
		t.Fatalf("eigenvalues = %v", set.Eigenvalues)
	}

	description, err := client.GetDescription(ctx, "push")
	if err != nil {
		t.Fatalf("get description: %v", err)
	}
	if description != "pushes boxes" {
		t.Fatalf("description = %q", description)
	}

	tensor, err := client.GetReducedOutput(ctx, "push", []float64{1})
	if err != nil {
		t.Fatalf("get reduced output: %v", err)
	}
	if !slices.Equal(tensor.Shape, []int{2, 2}) {
		t.Fatalf("shape = %v", tensor.Shape)
	}

	names, err := client.ListModels(ctx, "")
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if !slices.Equal(names, []string{"plain", "push"}) {
		t.Fatalf("names = %v", names)
	}

	report, err := client.ReloadModels(ctx)
	if err != nil {
		t.Fatalf("reload models: %v", err)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("failed = %v", report.Failed)
	}

	if _, err := client.UpdateDofs(ctx, "missing", []float64{1}); status.Code(err) != codes.NotFound {
		t.Fatalf("missing model code = %v, want %v", status.Code(err), codes.NotFound)
	}
}
