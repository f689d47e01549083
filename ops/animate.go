package ops

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"blender-mcp-bridge/command"
	"blender-mcp-bridge/config"
)

const animationTimeoutSeconds = 120

// A JSON string literal is also a valid Python string literal.
func pyString(s string) (string, error) {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(s)
	return string(b), err
}

var animateScript = template.Must(template.New("animate").Funcs(template.FuncMap{"py": pyString}).Parse(`import base64
import os
import tempfile
from pathlib import Path

import bpy
import requests

SERVER_URL = {{py .ServerURL}}
SOURCE_NAME = {{py .ObjectName}}
DUPLICATE_NAME = {{py .DuplicateName}}
FBX_PATH = {{py .AnimationFBXPath}}
TEMP_FORMAT = {{py .TempFormat}}
HANDLE_ORIGINAL = {{py .HandleOriginal}}
COLLECTION_NAME = {{py .CollectionName}}
API_KEY = {{if .APIKey}}{{py .APIKey}}{{else}}bpy.context.scene.blendermcp_csm_api_key{{end}}


def fail(message):
    raise RuntimeError(message)


source = bpy.data.objects.get(SOURCE_NAME)
if source is None:
    fail("Object %s not found" % SOURCE_NAME)
if source.type != 'MESH':
    fail("Object %s is not a mesh" % SOURCE_NAME)
if not API_KEY:
    fail("CSM.ai API key is not set")
if not os.path.exists(FBX_PATH):
    fail("Animation FBX file not found: %s" % FBX_PATH)

bpy.ops.object.select_all(action='DESELECT')
source.select_set(True)
bpy.context.view_layer.objects.active = source
bpy.ops.object.duplicate()
obj = bpy.context.active_object
obj.name = DUPLICATE_NAME

anim_name = Path(FBX_PATH).stem
with tempfile.TemporaryDirectory() as temp_dir:
    mesh_path = os.path.join(temp_dir, "%s_temp.%s" % (obj.name, TEMP_FORMAT))
    output_path = os.path.join(temp_dir, "%s_%s.fbx" % (obj.name, anim_name))

    bpy.ops.object.select_all(action='DESELECT')
    obj.select_set(True)
    bpy.context.view_layer.objects.active = obj
    if TEMP_FORMAT == "glb":
        bpy.ops.export_scene.gltf(filepath=mesh_path, export_format='GLB', use_selection=True, export_animations=False)
    else:
        bpy.ops.export_scene.fbx(filepath=mesh_path, use_selection=True, embed_textures=True)
    if not os.path.exists(mesh_path):
        fail("Failed to export temporary mesh file")

    with open(mesh_path, "rb") as f:
        mesh_b64 = base64.b64encode(f.read()).decode("utf-8")
    with open(FBX_PATH, "rb") as f:
        anim_b64 = base64.b64encode(f.read()).decode("utf-8")

    resp = requests.post(
        SERVER_URL,
        json={"mesh_b64_str": mesh_b64, "animation_fbx_b64_str": anim_b64},
        headers={"Content-Type": "application/json", "x-api-key": API_KEY},
        stream=True,
        timeout={{.TimeoutSeconds}},
    )
    if resp.status_code != 200:
        fail("Animation server error: %d %s" % (resp.status_code, resp.text[:500]))
    with open(output_path, "wb") as f:
        for chunk in resp.iter_content(chunk_size=8192):
            if chunk:
                f.write(chunk)

    existing = set(bpy.data.objects)
    bpy.ops.import_scene.fbx(filepath=output_path)
    imported = list(set(bpy.data.objects) - existing)

if not imported:
    fail("No objects imported from animation")

armature = None
for new_obj in imported:
    if new_obj.type == 'ARMATURE':
        armature = new_obj
        new_obj.name = "%s_%s_armature" % (obj.name, anim_name)
    elif new_obj.type == 'MESH':
        new_obj.name = "%s_%s" % (obj.name, anim_name)

collection = bpy.data.collections.get(COLLECTION_NAME)
if collection is None:
    collection = bpy.data.collections.new(COLLECTION_NAME)
    bpy.context.scene.collection.children.link(collection)
for new_obj in imported:
    for coll in list(new_obj.users_collection):
        coll.objects.unlink(new_obj)
    collection.objects.link(new_obj)

if armature is not None:
    armature.location = obj.location.copy()

if HANDLE_ORIGINAL == "hide":
    obj.hide_viewport = True
    obj.hide_render = True
elif HANDLE_ORIGINAL == "delete":
    bpy.data.objects.remove(obj)
else:
    obj.location.x += 3.0
`))

type animateParams struct {
	ServerURL        string
	ObjectName       string
	DuplicateName    string
	AnimationFBXPath string
	TempFormat       string
	HandleOriginal   string
	CollectionName   string
	APIKey           string
	TimeoutSeconds   int
}

// renderAnimateScript builds the Python program that performs the whole
// animation round trip inside the host.
func renderAnimateScript(p animateParams) (string, error) {
	var b strings.Builder
	if err := animateScript.Execute(&b, p); err != nil {
		return "", fmt.Errorf("rendering animation script: %w", err)
	}
	return b.String(), nil
}

func registerAnimate(r *command.Registry, h *hostOps, cfg config.CSMConfig) {
	serverURL := cfg.AnimationURL
	if serverURL == "" {
		serverURL = config.DefaultConfig().CSM.AnimationURL
	}

	r.Register(command.Spec{
		Name:     "animate_object",
		Category: command.CategoryHost,
		Description: "Animate a mesh with an FBX animation through the CSM.ai animation service. " +
			"The mesh is duplicated first; handle_original applies to the duplicate. May take a minute or more.",
		Args: []command.Arg{
			command.String("object_name").Require(),
			command.String("animation_fbx_path").Require(),
			command.Enum("temp_format", "glb", "fbx").WithDefault("glb"),
			command.Enum("handle_original", "keep", "hide", "delete").WithDefault("hide"),
			command.String("collection_name"),
		},
		Handler: func(ctx context.Context, args command.Args) (any, error) {
			name := args.String("object_name")
			if _, err := h.send(ctx, "get_object_info", map[string]any{"name": name}); err != nil {
				return nil, fmt.Errorf("object %q not found: %w", name, err)
			}

			collection := args.String("collection_name")
			if collection == "" {
				collection = name + "_Animations"
			}
			p := animateParams{
				ServerURL:        serverURL,
				ObjectName:       name,
				DuplicateName:    name + "_to_animate",
				AnimationFBXPath: args.String("animation_fbx_path"),
				TempFormat:       args.String("temp_format"),
				HandleOriginal:   args.String("handle_original"),
				CollectionName:   collection,
				APIKey:           cfg.APIKey,
				TimeoutSeconds:   animationTimeoutSeconds,
			}
			script, err := renderAnimateScript(p)
			if err != nil {
				return nil, err
			}

			h.logger.Info("starting animation",
				zap.String("object", name),
				zap.String("animation", p.AnimationFBXPath),
			)
			if _, err := h.send(ctx, "execute_code", map[string]any{"code": script}); err != nil {
				return nil, err
			}

			stem := strings.TrimSuffix(filepath.Base(p.AnimationFBXPath), filepath.Ext(p.AnimationFBXPath))
			return map[string]any{
				"status":          "success",
				"object":          name,
				"animated_object": p.DuplicateName + "_" + stem,
				"collection":      collection,
				"handle_original": p.HandleOriginal,
			}, nil
		},
	})
}
