package mcpbridge

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const assetCreationStrategy = `When building 3D content in Blender:

0. Start with get_scene_info to see what is already there.

1. CSM.ai finds existing 3D models (not animations). Check get_csm_status first.
   When it is enabled:
   a. search_csm_models with a descriptive text query.
   b. Pick the most suitable model from the results.
   c. import_csm_model with that model's id and GLB URL.
   d. Inspect the imported object's world_bounding_box and fix its location, scale and rotation.

2. When CSM.ai is disabled, or for simple shapes, use create_object for primitives
   and set_material for colors.

3. Give every object a meaningful name.

4. Use world_bounding_box to keep objects from clipping into each other and to
   keep their spatial relationships right.

5. After create_object or modify_object, confirm the result with get_object_info.

6. Animation:
   - Character motion (walking, running, dancing, gestures) or an explicit request
     to use CSM: obtain an FBX animation (for example from Mixamo) on the Blender
     machine and call animate_object with the mesh and the FBX path.
   - Simple transforms (spin, rotate, move, scale with keyframes): write them with
     execute_blender_code instead.`

func RegisterPrompts(server *mcp.Server) {
	server.AddPrompt(&mcp.Prompt{
		Name:        "asset_creation_strategy",
		Description: "Preferred workflow for creating assets in Blender with the bridge tools",
	}, handleAssetCreationStrategy)
}

func handleAssetCreationStrategy(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Preferred workflow for creating assets in Blender",
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: assetCreationStrategy},
			},
		},
	}, nil
}
