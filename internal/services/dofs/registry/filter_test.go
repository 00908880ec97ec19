package registry

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	apperrors "github.com/louisbranch/dofsim/internal/platform/errors"
	"github.com/louisbranch/dofsim/internal/services/dofs/model"
)

func TestFilterMatch(t *testing.T) {
	sigmaVector := Attributes{Name: "cov_8", Head: HeadSigma, Projection: "vector"}
	vectorsImage := Attributes{Name: "cnn_poles", Head: HeadVectors, Projection: "image"}

	testCases := []struct {
		filter string
		want   []bool
	}{
		{filter: "", want: []bool{true, true}},
		{filter: `head = "sigma"`, want: []bool{true, false}},
		{filter: `projection != "image"`, want: []bool{true, false}},
		{filter: `head = "vectors" AND projection = "image"`, want: []bool{false, true}},
		{filter: `name = "cov_8" OR projection = "image"`, want: []bool{true, true}},
		{filter: `NOT head = "sigma"`, want: []bool{false, true}},
	}
	for _, tc := range testCases {
		t.Run(tc.filter, func(t *testing.T) {
			f, err := ParseFilter(tc.filter)
			if err != nil {
				t.Fatalf("parse filter: %v", err)
			}
			for i, attrs := range []Attributes{sigmaVector, vectorsImage} {
				got, err := f.Match(attrs)
				if err != nil {
					t.Fatalf("match %s: %v", attrs.Name, err)
				}
				if got != tc.want[i] {
					t.Fatalf("match %s = %v, want %v", attrs.Name, got, tc.want[i])
				}
			}
		})
	}
}

func TestParseFilterRejectsInvalidFilters(t *testing.T) {
	for _, filter := range []string{
		`weights = "x"`,
		`head = `,
		`head = "sigma" AND (`,
	} {
		t.Run(filter, func(t *testing.T) {
			_, err := ParseFilter(filter)
			if err == nil {
				t.Fatal("expected parse error")
			}
			if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
				t.Fatalf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeInvalidInput)
			}
		})
	}
}

func TestListAppliesFilter(t *testing.T) {
	root := t.TempDir()
	writeModel(t, root, "alpha")
	writeModel(t, root, "beta")
	reg := New(root, model.LoadOptions{})
	if _, err := reg.ReloadAll(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	all, err := reg.List(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !slices.Equal(all, []string{"alpha", "beta"}) {
		t.Fatalf("all = %v", all)
	}

	f, err := ParseFilter(`head = "sigma" AND name != "alpha"`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	got, err := reg.List(f)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !slices.Equal(got, []string{"beta"}) {
		t.Fatalf("filtered = %v, want [beta]", got)
	}

	f, err = ParseFilter(`head = "vectors"`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	got, err = reg.List(f)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("filtered = %v, want none", got)
	}
}

func TestAttributesOf(t *testing.T) {
	root := t.TempDir()
	writeModel(t, root, "alpha")
	h, err := model.Load(context.Background(), root, "alpha", model.LoadOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Attributes{Name: "alpha", Head: HeadSigma, Projection: "vector"}
	if got := AttributesOf(h); got != want {
		t.Fatalf("attributes = %+v, want %+v", got, want)
	}
}

func TestListIncludesFailedModelsByNameOnly(t *testing.T) {
	root := t.TempDir()
	writeModel(t, root, "good")
	if err := os.Mkdir(filepath.Join(root, "broken"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	reg := New(root, model.LoadOptions{})
	if _, err := reg.ReloadAll(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	tests := []struct {
		filter string
		want   []string
	}{
		{filter: "", want: []string{"broken", "good"}},
		{filter: `name = "broken"`, want: []string{"broken"}},
		{filter: `head = "sigma"`, want: []string{"good"}},
		{filter: `NOT projection = "vector"`, want: []string{"broken"}},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			f, err := ParseFilter(tt.filter)
			if err != nil {
				t.Fatalf("parse filter: %v", err)
			}
			got, err := reg.List(f)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("list(%q) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}
