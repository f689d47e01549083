package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(calls *int) *Registry {
	r := NewRegistry()
	handler := func(_ context.Context, args Args) (any, error) {
		*calls++
		return map[string]any(args), nil
	}
	r.Register(Spec{
		Name:     "create_object",
		Category: CategoryHost,
		Args: []Arg{
			Enum("type", "CUBE", "SPHERE", "TORUS").WithDefault("CUBE"),
			String("name"),
			Vector("location", 3, 3).WithDefault([]float64{0, 0, 0}),
			Int("major_segments").WithDefault(48).Range(3, 256),
			Bool("generate_uvs").WithDefault(true),
		},
		Handler: handler,
	})
	r.Register(Spec{
		Name:     "delete_object",
		Category: CategoryHost,
		Args:     []Arg{String("name").Require()},
		Handler:  handler,
	})
	r.Register(Spec{
		Name:     "set_material",
		Category: CategoryHost,
		Args: []Arg{
			String("object_name").Require(),
			Vector("color", 3, 4).Range(0, 1),
		},
		Handler: handler,
	})
	return r
}

func TestRegistry_ValidateAppliesDefaults(t *testing.T) {
	var calls int
	r := testRegistry(&calls)

	spec, args, err := r.Validate(New("create_object", nil))
	require.NoError(t, err)
	assert.Equal(t, "create_object", spec.Name)
	assert.Equal(t, "CUBE", args.String("type"))
	assert.Equal(t, []float64{0, 0, 0}, args.Vector("location"))
	assert.Equal(t, 48, args.Int("major_segments"))
	assert.True(t, args.Bool("generate_uvs"))
	assert.False(t, args.Has("name"))
}

func TestRegistry_DefaultsAreNotShared(t *testing.T) {
	var calls int
	r := testRegistry(&calls)

	_, first, err := r.Validate(New("create_object", nil))
	require.NoError(t, err)
	first.Vector("location")[0] = 99

	_, second, err := r.Validate(New("create_object", nil))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, second.Vector("location"))
}

func TestRegistry_ValidateNormalizes(t *testing.T) {
	var calls int
	r := testRegistry(&calls)

	_, args, err := r.Validate(New("create_object", map[string]any{
		"type":           "torus",
		"location":       []any{1.0, 2.0, 3.5},
		"major_segments": float64(64),
	}))
	require.NoError(t, err)
	assert.Equal(t, "TORUS", args.String("type"))
	assert.Equal(t, []float64{1, 2, 3.5}, args.Vector("location"))
	assert.Equal(t, 64, args.Int("major_segments"))
}

func TestRegistry_ValidateRejects(t *testing.T) {
	var calls int
	r := testRegistry(&calls)

	tests := []struct {
		name string
		cmd  Command
		want error
	}{
		{"unknown command", New("explode_scene", nil), ErrUnknownCommand},
		{"missing required", New("delete_object", nil), ErrMissingArgument},
		{"blank required", New("delete_object", map[string]any{"name": "  "}), ErrMissingArgument},
		{"null required", New("delete_object", map[string]any{"name": nil}), ErrMissingArgument},
		{"wrong type", New("delete_object", map[string]any{"name": 3.0}), ErrInvalidArgument},
		{"bad enum", New("create_object", map[string]any{"type": "TEAPOT"}), ErrInvalidArgument},
		{"short vector", New("create_object", map[string]any{"location": []any{1.0, 2.0}}), ErrInvalidArgument},
		{"non numeric vector", New("create_object", map[string]any{"location": []any{1.0, "x", 2.0}}), ErrInvalidArgument},
		{"fractional int", New("create_object", map[string]any{"major_segments": 4.5}), ErrInvalidArgument},
		{"int out of range", New("create_object", map[string]any{"major_segments": 1.0}), ErrInvalidArgument},
		{"color out of range", New("set_material", map[string]any{"object_name": "Cube", "color": []any{1.0, 2.0, 0.0}}), ErrInvalidArgument},
		{"unexpected arg", New("delete_object", map[string]any{"name": "Cube", "force": true}), ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := r.Validate(tt.cmd)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, IsValidation(err))
		})
	}
	assert.Zero(t, calls)
}

func TestRegistry_ErrorMessageNamesArgument(t *testing.T) {
	var calls int
	r := testRegistry(&calls)

	_, _, err := r.Validate(New("create_object", map[string]any{"location": []any{1.0}}))
	require.Error(t, err)
	assert.Equal(t, "create_object: location: invalid argument: expected 3 numbers, got 1", err.Error())
}

func TestRegistry_RegisterPanics(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, Args) (any, error) { return nil, nil }
	r.Register(Spec{Name: "a", Handler: noop})

	assert.Panics(t, func() { r.Register(Spec{Name: "a", Handler: noop}) })
	assert.Panics(t, func() { r.Register(Spec{Name: "b"}) })
	assert.Panics(t, func() { r.Register(Spec{Handler: noop}) })
}

func TestRegistry_Names(t *testing.T) {
	var calls int
	r := testRegistry(&calls)
	assert.Equal(t, []string{"create_object", "delete_object", "set_material"}, r.Names())
}

func TestFailureKeepsKind(t *testing.T) {
	var calls int
	r := testRegistry(&calls)
	_, _, err := r.Validate(New("nope", nil))

	res := Failure(err)
	assert.True(t, res.Failed())
	assert.Equal(t, KindValidation, res.Kind)

	res = Failure(errors.New("host not connected"))
	assert.Equal(t, KindExecution, res.Kind)
	assert.Nil(t, res.Data)
}
