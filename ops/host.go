package ops

import (
	"context"

	"go.uber.org/zap"

	"blender-mcp-bridge/bridge"
	"blender-mcp-bridge/command"
)

var objectTypes = []string{"CUBE", "SPHERE", "CYLINDER", "PLANE", "CONE", "TORUS", "EMPTY", "CAMERA", "LIGHT"}

var torusArgs = []string{
	"align", "major_segments", "minor_segments", "mode",
	"major_radius", "minor_radius", "abso_major_rad", "abso_minor_rad", "generate_uvs",
}

type hostOps struct {
	host   bridge.Host
	logger *zap.Logger
}

// send forwards one command to the host. Some addon handlers report failure
// inside a successful reply as {"error": ...} or {"status": "error"}; those
// are surfaced as host errors too.
func (h *hostOps) send(ctx context.Context, commandType string, params map[string]any) (any, error) {
	if h.host == nil {
		return nil, bridge.ErrNotConnected
	}
	resp, err := h.host.Send(ctx, commandType, params)
	if err != nil {
		return nil, err
	}
	if m := resp.ResultMap(); m != nil {
		if msg, ok := m["error"].(string); ok && msg != "" {
			return nil, &bridge.HostError{Command: commandType, Message: msg}
		}
		if status, _ := m["status"].(string); status == bridge.StatusError {
			msg, _ := m["message"].(string)
			return nil, &bridge.HostError{Command: commandType, Message: msg}
		}
	}
	return resp.Result, nil
}

// forward sends the validated arguments unchanged.
func (h *hostOps) forward(commandType string) command.Handler {
	return func(ctx context.Context, args command.Args) (any, error) {
		return h.send(ctx, commandType, map[string]any(args))
	}
}

func (h *hostOps) register(r *command.Registry) {
	r.Register(command.Spec{
		Name:        "get_scene_info",
		Category:    command.CategoryQuery,
		Description: "Summarize the current scene: object count, the first objects and material count.",
		Handler:     h.forward("get_scene_info"),
	})
	r.Register(command.Spec{
		Name:        "get_object_info",
		Category:    command.CategoryQuery,
		Description: "Describe one object: transform, visibility, materials and mesh statistics.",
		Args:        []command.Arg{command.String("name").Require()},
		Handler:     h.forward("get_object_info"),
	})
	r.Register(command.Spec{
		Name:        "create_object",
		Category:    command.CategoryHost,
		Description: "Create a primitive, empty, camera or light.",
		Args: []command.Arg{
			command.Enum("type", objectTypes...).WithDefault("CUBE"),
			command.String("name"),
			command.Vector("location", 3, 3).WithDefault([]float64{0, 0, 0}),
			command.Vector("rotation", 3, 3).WithDefault([]float64{0, 0, 0}),
			command.Vector("scale", 3, 3).WithDefault([]float64{1, 1, 1}),
			command.Enum("align", "WORLD", "VIEW", "CURSOR").WithDefault("WORLD"),
			command.Int("major_segments").Range(3, 256).WithDefault(48),
			command.Int("minor_segments").Range(3, 256).WithDefault(12),
			command.Enum("mode", "MAJOR_MINOR", "EXT_INT").WithDefault("MAJOR_MINOR"),
			command.Float("major_radius").Range(0, 10000).WithDefault(1.0),
			command.Float("minor_radius").Range(0, 10000).WithDefault(0.25),
			command.Float("abso_major_rad").Range(0, 10000).WithDefault(1.25),
			command.Float("abso_minor_rad").Range(0, 10000).WithDefault(0.75),
			command.Bool("generate_uvs").WithDefault(true),
		},
		Handler: h.createObject,
	})
	r.Register(command.Spec{
		Name:        "modify_object",
		Category:    command.CategoryHost,
		Description: "Change an object's location, rotation, scale or visibility.",
		Args: []command.Arg{
			command.String("name").Require(),
			command.Vector("location", 3, 3),
			command.Vector("rotation", 3, 3),
			command.Vector("scale", 3, 3),
			command.Bool("visible"),
		},
		Handler: h.forward("modify_object"),
	})
	r.Register(command.Spec{
		Name:        "delete_object",
		Category:    command.CategoryHost,
		Description: "Remove an object from the scene.",
		Args:        []command.Arg{command.String("name").Require()},
		Handler:     h.forward("delete_object"),
	})
	r.Register(command.Spec{
		Name:        "set_material",
		Category:    command.CategoryHost,
		Description: "Assign a material to an object, creating it when missing. Color components are 0..1.",
		Args: []command.Arg{
			command.String("object_name").Require(),
			command.String("material_name"),
			command.Vector("color", 3, 4).Range(0, 1),
		},
		Handler: h.forward("set_material"),
	})
	r.Register(command.Spec{
		Name:        "execute_code",
		Category:    command.CategoryHost,
		Description: "Run Python code inside the host.",
		Args:        []command.Arg{command.String("code").Require()},
		Handler:     h.forward("execute_code"),
	})
	r.Register(command.Spec{
		Name:        "import_file",
		Category:    command.CategoryHost,
		Description: "Import a GLB, glTF, FBX or OBJ file from the host's filesystem.",
		Args: []command.Arg{
			command.String("filepath").Require(),
			command.String("name"),
		},
		Handler: h.forward("import_file"),
	})
	r.Register(command.Spec{
		Name:        "import_csm_model",
		Category:    command.CategoryHost,
		Description: "Download a CSM.ai model by its GLB URL and import it into the scene.",
		Args: []command.Arg{
			command.String("model_id").Require(),
			command.String("mesh_url_glb").Require().Validate(httpURL),
			command.String("name"),
		},
		Handler: h.forward("import_csm_model"),
	})
	r.Register(command.Spec{
		Name:        "get_csm_status",
		Category:    command.CategoryQuery,
		Description: "Report whether the CSM.ai integration is enabled in the host.",
		Handler:     h.forward("get_csm_status"),
	})
}

// createObject sends the torus parameters only for TORUS, and scale only for the other types.
func (h *hostOps) createObject(ctx context.Context, args command.Args) (any, error) {
	kind := args.String("type")
	params := map[string]any{
		"type":     kind,
		"location": args.Vector("location"),
		"rotation": args.Vector("rotation"),
	}
	if args.Has("name") {
		params["name"] = args.String("name")
	}
	if kind == "TORUS" {
		for _, k := range torusArgs {
			params[k] = args[k]
		}
	} else {
		params["scale"] = args.Vector("scale")
	}
	return h.send(ctx, "create_object", params)
}
