package dofs

import (
	"errors"
	"fmt"

	apperrors "github.com/louisbranch/dofsim/internal/platform/errors"
	"github.com/louisbranch/dofsim/internal/services/dofs/model"
	"github.com/louisbranch/dofsim/internal/services/dofs/network"
	"github.com/louisbranch/dofsim/internal/services/dofs/registry"
	"google.golang.org/protobuf/types/known/structpb"
)

func numberList(values []float64) *structpb.Value {
	list := make([]*structpb.Value, len(values))
	for i, v := range values {
		list[i] = structpb.NewNumberValue(v)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: list})
}

func stringList(values []string) *structpb.ListValue {
	list := make([]*structpb.Value, len(values))
	for i, v := range values {
		list[i] = structpb.NewStringValue(v)
	}
	return &structpb.ListValue{Values: list}
}

func dofSetToProto(set model.DofSet) *structpb.Struct {
	rows := make([]*structpb.Value, len(set.Dofs))
	for i, row := range set.Dofs {
		rows[i] = numberList(row)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldDofs:        structpb.NewListValue(&structpb.ListValue{Values: rows}),
		FieldEigenvalues: numberList(set.Eigenvalues),
	}}
}

func tensorToProto(t network.Tensor) *structpb.Struct {
	shape := make([]float64, len(t.Shape))
	for i, d := range t.Shape {
		shape[i] = float64(d)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldShape:  numberList(shape),
		FieldValues: numberList(t.Data),
	}}
}

func reportToProto(report registry.Report) *structpb.Struct {
	failed := make(map[string]*structpb.Value, len(report.Failed))
	for name, err := range report.Failed {
		failed[name] = structpb.NewStringValue(apperrors.PublicMessage(err))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldLoaded: structpb.NewListValue(stringList(report.Loaded)),
		FieldFailed: structpb.NewStructValue(&structpb.Struct{Fields: failed}),
	}}
}

func protoNumbers(v *structpb.Value, field string) ([]float64, error) {
	list, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, fmt.Errorf("%s is not a list", field)
	}
	out := make([]float64, len(list.ListValue.GetValues()))
	for i, item := range list.ListValue.GetValues() {
		number, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not a number", field, i)
		}
		out[i] = number.NumberValue
	}
	return out, nil
}

func protoToDofSet(in *structpb.Struct) (model.DofSet, error) {
	fields := in.GetFields()
	values, err := protoNumbers(fields[FieldEigenvalues], FieldEigenvalues)
	if err != nil {
		return model.DofSet{}, err
	}
	rows, ok := fields[FieldDofs].GetKind().(*structpb.Value_ListValue)
	if !ok {
		return model.DofSet{}, fmt.Errorf("%s is not a list", FieldDofs)
	}
	set := model.DofSet{Eigenvalues: values, Dofs: make([][]float64, len(rows.ListValue.GetValues()))}
	for i, row := range rows.ListValue.GetValues() {
		if set.Dofs[i], err = protoNumbers(row, fmt.Sprintf("%s[%d]", FieldDofs, i)); err != nil {
			return model.DofSet{}, err
		}
	}
	return set, nil
}

func protoToTensor(in *structpb.Struct) (network.Tensor, error) {
	fields := in.GetFields()
	dims, err := protoNumbers(fields[FieldShape], FieldShape)
	if err != nil {
		return network.Tensor{}, err
	}
	values, err := protoNumbers(fields[FieldValues], FieldValues)
	if err != nil {
		return network.Tensor{}, err
	}
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
	}
	return network.NewTensor(shape, values)
}

func protoToReport(in *structpb.Struct) (registry.Report, error) {
	fields := in.GetFields()
	loaded, ok := fields[FieldLoaded].GetKind().(*structpb.Value_ListValue)
	if !ok {
		return registry.Report{}, fmt.Errorf("%s is not a list", FieldLoaded)
	}
	report := registry.Report{Failed: map[string]error{}}
	for _, v := range loaded.ListValue.GetValues() {
		report.Loaded = append(report.Loaded, v.GetStringValue())
	}
	for name, v := range fields[FieldFailed].GetStructValue().GetFields() {
		report.Failed[name] = errors.New(v.GetStringValue())
	}
	return report, nil
}
