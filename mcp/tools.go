package mcpbridge

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"blender-mcp-bridge/command"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Dispatcher runs one command. Implemented by node.Node, which validates the
// command and routes it to the leader it owns or to the leader process.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Command) (any, error)
}

type Tools struct {
	Dispatcher Dispatcher
}

type objectNameArgs struct {
	Name string `json:"name" jsonschema:"the name of the object"`
}

// Numeric arguments whose zero is meaningful or invalid are pointers, so an
// explicit 0 reaches validation instead of falling back to the default.
type createObjectArgs struct {
	Type          string    `json:"type,omitempty" jsonschema:"CUBE (default), SPHERE, CYLINDER, PLANE, CONE, TORUS, EMPTY, CAMERA or LIGHT"`
	Name          string    `json:"name,omitempty" jsonschema:"optional object name; pick a meaningful one"`
	Location      []float64 `json:"location,omitempty" jsonschema:"[x, y, z], default [0, 0, 0]"`
	Rotation      []float64 `json:"rotation,omitempty" jsonschema:"[x, y, z] in radians, default [0, 0, 0]"`
	Scale         []float64 `json:"scale,omitempty" jsonschema:"[x, y, z], default [1, 1, 1]; ignored for TORUS"`
	Align         string    `json:"align,omitempty" jsonschema:"TORUS only: WORLD (default), VIEW or CURSOR"`
	MajorSegments *int      `json:"major_segments,omitempty" jsonschema:"TORUS only: segments of the main ring, default 48"`
	MinorSegments *int      `json:"minor_segments,omitempty" jsonschema:"TORUS only: segments of the cross section, default 12"`
	Mode          string    `json:"mode,omitempty" jsonschema:"TORUS only: MAJOR_MINOR (default) or EXT_INT"`
	MajorRadius   *float64  `json:"major_radius,omitempty" jsonschema:"TORUS only: default 1.0"`
	MinorRadius   *float64  `json:"minor_radius,omitempty" jsonschema:"TORUS only: default 0.25"`
	AbsoMajorRad  *float64  `json:"abso_major_rad,omitempty" jsonschema:"TORUS only, EXT_INT mode: outer radius, default 1.25"`
	AbsoMinorRad  *float64  `json:"abso_minor_rad,omitempty" jsonschema:"TORUS only, EXT_INT mode: inner radius, default 0.75"`
	GenerateUVs   *bool     `json:"generate_uvs,omitempty" jsonschema:"TORUS only: default true"`
}

type modifyObjectArgs struct {
	Name     string    `json:"name" jsonschema:"the object to modify"`
	Location []float64 `json:"location,omitempty" jsonschema:"new [x, y, z] location"`
	Rotation []float64 `json:"rotation,omitempty" jsonschema:"new [x, y, z] rotation in radians"`
	Scale    []float64 `json:"scale,omitempty" jsonschema:"new [x, y, z] scale"`
	Visible  *bool     `json:"visible,omitempty" jsonschema:"show or hide the object"`
}

type setMaterialArgs struct {
	ObjectName   string    `json:"object_name" jsonschema:"the object to assign the material to"`
	MaterialName string    `json:"material_name,omitempty" jsonschema:"material to use or create, default <object>_material"`
	Color        []float64 `json:"color,omitempty" jsonschema:"[r, g, b] or [r, g, b, a], each 0..1"`
}

type executeCodeArgs struct {
	Code string `json:"code" jsonschema:"Python code to run inside Blender"`
}

type importFileArgs struct {
	Filepath string `json:"filepath" jsonschema:"path to a .glb, .gltf, .fbx or .obj file on the Blender machine"`
	Name     string `json:"name,omitempty" jsonschema:"optional name for the imported object"`
}

type animateObjectArgs struct {
	ObjectName       string `json:"object_name" jsonschema:"the mesh to animate"`
	AnimationFBXPath string `json:"animation_fbx_path" jsonschema:"path to the FBX animation on the Blender machine"`
	TempFormat       string `json:"temp_format,omitempty" jsonschema:"export format for the mesh upload: glb (default) or fbx"`
	HandleOriginal   string `json:"handle_original,omitempty" jsonschema:"what to do with the duplicated source: hide (default), keep or delete"`
	CollectionName   string `json:"collection_name,omitempty" jsonschema:"collection for the animated result, default <object>_Animations"`
}

type correctTierArgs struct {
	APIKey     string `json:"api_key,omitempty" jsonschema:"API key to check instead of the configured one"`
	GetKeyOnly *bool  `json:"get_key_only,omitempty" jsonschema:"only return the API key without calling CSM.ai"`
}

type searchModelsArgs struct {
	SearchText string `json:"search_text" jsonschema:"description of the model to find"`
	Limit      *int   `json:"limit,omitempty" jsonschema:"maximum number of results, 1..100, default 20"`
	Tier       string `json:"tier,omitempty" jsonschema:"free, pro, enterprise or user (the account's own tier)"`
}

type sessionDetailsArgs struct {
	SessionCode string `json:"session_code" jsonschema:"the CSM.ai session code"`
}

type importCSMModelArgs struct {
	ModelID    string `json:"model_id" jsonschema:"the model id from search_csm_models"`
	MeshURLGLB string `json:"mesh_url_glb" jsonschema:"the model's GLB URL from search_csm_models"`
	Name       string `json:"name,omitempty" jsonschema:"optional object name, default CSM_Model_<id>"`
}

func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_scene_info",
		Description: "Get the current Blender scene: name, object count, the first ten objects with their locations, and the material count.",
	}, handler[struct{}](t, "get_scene_info"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_object_info",
		Description: "Get one object's type, location, rotation, scale, visibility, materials, mesh statistics and world bounding box.",
	}, handler[objectNameArgs](t, "get_object_info"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_object",
		Description: "Create a primitive, empty, camera or light in the scene. Returns the new object's info.",
	}, handler[createObjectArgs](t, "create_object"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "modify_object",
		Description: "Change an existing object's location, rotation, scale or visibility. Only the given fields change.",
	}, handler[modifyObjectArgs](t, "modify_object"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_object",
		Description: "Delete an object from the scene.",
	}, handler[objectNameArgs](t, "delete_object"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_material",
		Description: "Assign a material to an object, creating it if needed, optionally setting its base color.",
	}, handler[setMaterialArgs](t, "set_material"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "execute_blender_code",
		Description: "Run arbitrary Python code in Blender. Prefer the dedicated tools when they cover the task.",
	}, handler[executeCodeArgs](t, "execute_code"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "import_file",
		Description: "Import a GLB, glTF, FBX or OBJ file from the Blender machine's filesystem.",
	}, handler[importFileArgs](t, "import_file"))

	mcp.AddTool(server, &mcp.Tool{
		Name: "animate_object",
		Description: "Animate a mesh with an FBX animation (for example from Mixamo) through the CSM.ai animation service. " +
			"The mesh is duplicated first and the animated result is grouped into a collection. This can take a minute or more.",
	}, handler[animateObjectArgs](t, "animate_object"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_csm_status",
		Description: "Check whether the CSM.ai integration is enabled in Blender. Call this before using CSM.ai tools.",
	}, handler[struct{}](t, "get_csm_status"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_correct_tier",
		Description: "Look up the CSM.ai account tier. Later searches with tier \"user\" use it.",
	}, handler[correctTierArgs](t, "get_correct_tier"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_csm_models",
		Description: "Search CSM.ai for existing 3D models by text. Only models with a downloadable GLB are returned.",
	}, handler[searchModelsArgs](t, "search_csm_models"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_csm_session_details",
		Description: "Get the status, progress and mesh URLs of a CSM.ai image-to-3D session.",
	}, handler[sessionDetailsArgs](t, "get_csm_session_details"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "import_csm_model",
		Description: "Import a CSM.ai model into the scene by its GLB URL. Check its world_bounding_box afterwards.",
	}, handler[importCSMModelArgs](t, "import_csm_model"))
}

// handler adapts a typed tool input into one command.
func handler[In any](t *Tools, name string) func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		args, err := toArgs(in)
		if err != nil {
			return renderResult(nil, err)
		}
		data, err := t.Dispatcher.Dispatch(ctx, command.New(name, args))
		return renderResult(data, err)
	}
}

// toArgs flattens a tool input to the loose map a command carries; fields
// left empty are omitted so the command's defaults apply.
func toArgs(in any) (map[string]any, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	args := map[string]any{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func renderResult(data any, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	payload, marshalErr := json.MarshalIndent(data, "", "  ")
	if marshalErr != nil {
		return errorResult(marshalErr.Error()), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(payload)},
		},
	}, nil, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
