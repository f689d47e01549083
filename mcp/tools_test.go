package mcpbridge

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blender-mcp-bridge/command"
)

type fakeDispatcher struct {
	got  []command.Command
	data any
	err  error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, cmd command.Command) (any, error) {
	f.got = append(f.got, cmd)
	return f.data, f.err
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHandlerOmitsEmptyFields(t *testing.T) {
	d := &fakeDispatcher{data: map[string]any{"name": "Cube"}}
	tools := &Tools{Dispatcher: d}

	res, _, err := handler[createObjectArgs](tools, "create_object")(context.Background(), nil, createObjectArgs{
		Type:     "SPHERE",
		Location: []float64{1, 2, 3},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"name":"Cube"}`, text(t, res))

	require.Len(t, d.got, 1)
	assert.Equal(t, "create_object", d.got[0].Name)
	assert.Equal(t, map[string]any{"type": "SPHERE", "location": []any{1.0, 2.0, 3.0}}, d.got[0].Args)
}

func TestHandlerKeepsExplicitFalse(t *testing.T) {
	d := &fakeDispatcher{}
	tools := &Tools{Dispatcher: d}
	hidden := false

	_, _, err := handler[modifyObjectArgs](tools, "modify_object")(context.Background(), nil, modifyObjectArgs{
		Name:    "Box",
		Visible: &hidden,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Box", "visible": false}, d.got[0].Args)
}

func TestHandlerKeepsExplicitZeroNumbers(t *testing.T) {
	d := &fakeDispatcher{}
	tools := &Tools{Dispatcher: d}
	zero, radius := 0, 0.0

	_, _, err := handler[searchModelsArgs](tools, "search_csm_models")(context.Background(), nil, searchModelsArgs{
		SearchText: "chair",
		Limit:      &zero,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"search_text": "chair", "limit": 0.0}, d.got[0].Args)

	_, _, err = handler[createObjectArgs](tools, "create_object")(context.Background(), nil, createObjectArgs{
		Type:          "TORUS",
		MinorSegments: &zero,
		MajorRadius:   &radius,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "TORUS", "minor_segments": 0.0, "major_radius": 0.0}, d.got[1].Args)

	_, _, err = handler[searchModelsArgs](tools, "search_csm_models")(context.Background(), nil, searchModelsArgs{SearchText: "lamp"})
	require.NoError(t, err)
	assert.NotContains(t, d.got[2].Args, "limit")
}

func TestExecuteCodeToolMapsToCommand(t *testing.T) {
	d := &fakeDispatcher{data: map[string]any{"executed": true}}
	tools := &Tools{Dispatcher: d}

	_, _, err := handler[executeCodeArgs](tools, "execute_code")(context.Background(), nil, executeCodeArgs{Code: "print(1)"})
	require.NoError(t, err)
	assert.Equal(t, "execute_code", d.got[0].Name)
}

func TestErrorsRenderAsToolErrors(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("host not connected")}
	tools := &Tools{Dispatcher: d}

	res, _, err := handler[struct{}](tools, "get_scene_info")(context.Background(), nil, struct{}{})
	require.NoError(t, err, "failures are reported in the result, not as protocol errors")
	assert.True(t, res.IsError)
	assert.Equal(t, "host not connected", text(t, res))
}

func TestRenderResultIndents(t *testing.T) {
	res, _, err := renderResult(map[string]any{"a": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", text(t, res))
}

func TestRegisterDoesNotPanic(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0"}, nil)
	assert.NotPanics(t, func() {
		(&Tools{Dispatcher: &fakeDispatcher{}}).Register(server)
		RegisterPrompts(server)
	})
}

func TestAssetCreationStrategyPrompt(t *testing.T) {
	res, err := handleAssetCreationStrategy(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	tc, ok := res.Messages[0].Content.(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, tc.Text, "search_csm_models")
	assert.Contains(t, tc.Text, "get_scene_info")
}
