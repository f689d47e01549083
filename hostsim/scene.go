// Package hostsim is an in-memory stand-in for the Blender addon. It keeps a
// small scene graph and answers the addon's wire protocol, so the bridge can
// be exercised without a running host.
package hostsim

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"blender-mcp-bridge/bridge"
)

// Object is a scene object as the simulator tracks it.
type Object struct {
	Name      string
	Type      string
	Primitive string
	Location  [3]float64
	Rotation  [3]float64
	Scale     [3]float64
	Visible   bool
	Materials []string
}

// Material is a named material with an optional base color.
type Material struct {
	Name  string
	Color []float64
}

type meshStats struct{ vertices, edges, polygons int }

var primitives = map[string]struct {
	objType  string
	baseName string
	mesh     meshStats
}{
	"CUBE":     {"MESH", "Cube", meshStats{8, 12, 6}},
	"SPHERE":   {"MESH", "Sphere", meshStats{482, 992, 512}},
	"CYLINDER": {"MESH", "Cylinder", meshStats{64, 96, 34}},
	"PLANE":    {"MESH", "Plane", meshStats{4, 4, 1}},
	"CONE":     {"MESH", "Cone", meshStats{33, 64, 33}},
	"TORUS":    {"MESH", "Torus", meshStats{576, 1152, 576}},
	"EMPTY":    {"EMPTY", "Empty", meshStats{}},
	"CAMERA":   {"CAMERA", "Camera", meshStats{}},
	"LIGHT":    {"LIGHT", "Point", meshStats{}},
}

var importFormats = map[string]bool{".glb": true, ".gltf": true, ".fbx": true, ".obj": true}

// Scene is safe for concurrent use; commands are applied one at a time.
type Scene struct {
	mu        sync.Mutex
	name      string
	objects   map[string]*Object
	order     []string
	materials map[string]*Material
	calls     map[string]int
	executed  []string

	csmEnabled bool
	apiKey     string
	tier       string
}

func NewScene() *Scene {
	return &Scene{
		name:      "Scene",
		objects:   make(map[string]*Object),
		materials: make(map[string]*Material),
		calls:     make(map[string]int),
		tier:      "free",
	}
}

// SetCSM sets the asset-service settings the host reports.
func (s *Scene) SetCSM(enabled bool, apiKey, tier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csmEnabled = enabled
	s.apiKey = apiKey
	if tier != "" {
		s.tier = tier
	}
}

// Objects returns a snapshot in creation order.
func (s *Scene) Objects() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Object, 0, len(s.order))
	for _, name := range s.order {
		o := *s.objects[name]
		o.Materials = append([]string(nil), o.Materials...)
		out = append(out, o)
	}
	return out
}

func (s *Scene) Object(name string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[name]
	if !ok {
		return Object{}, false
	}
	cp := *o
	cp.Materials = append([]string(nil), o.Materials...)
	return cp, true
}

func (s *Scene) Material(name string) (Material, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[name]
	if !ok {
		return Material{}, false
	}
	return Material{Name: m.Name, Color: append([]float64(nil), m.Color...)}, true
}

// Calls counts received commands of one type.
func (s *Scene) Calls(commandType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[commandType]
}

// TotalCalls counts every received command.
func (s *Scene) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// Executed returns the code strings received through execute_code.
func (s *Scene) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

// Handle applies one request and returns the addon-style response.
func (s *Scene) Handle(req bridge.Request) bridge.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.Type]++

	p := params(req.Params)
	var (
		result any
		err    error
	)
	switch req.Type {
	case "get_scene_info":
		result = s.sceneInfo()
	case "get_object_info":
		result, err = s.objectInfo(p.str("name"))
	case "create_object":
		result, err = s.createObject(p)
	case "modify_object":
		result, err = s.modifyObject(p)
	case "delete_object":
		result, err = s.deleteObject(p.str("name"))
	case "set_material":
		result, err = s.setMaterial(p)
	case "execute_code":
		s.executed = append(s.executed, p.str("code"))
		result = map[string]any{"executed": true}
	case "get_csm_status":
		result = s.csmStatus()
	case "get_correct_tier":
		if p.boolean("get_key_only", false) {
			result = s.apiKey
		} else {
			result = s.tier
		}
	case "import_csm_model":
		result, err = s.importCSMModel(p)
	case "import_file":
		result, err = s.importFile(p)
	default:
		err = fmt.Errorf("Unknown command type: %s", req.Type)
	}

	if err != nil {
		return bridge.Response{ID: req.ID, Status: bridge.StatusError, Message: err.Error()}
	}
	return bridge.Response{ID: req.ID, Status: bridge.StatusSuccess, Result: result}
}

func (s *Scene) sceneInfo() map[string]any {
	objects := make([]any, 0, 10)
	for i, name := range s.order {
		if i >= 10 {
			break
		}
		o := s.objects[name]
		objects = append(objects, map[string]any{
			"name": o.Name,
			"type": o.Type,
			"location": []float64{
				round2(o.Location[0]), round2(o.Location[1]), round2(o.Location[2]),
			},
		})
	}
	return map[string]any{
		"name":            s.name,
		"object_count":    len(s.order),
		"objects":         objects,
		"materials_count": len(s.materials),
	}
}

func (s *Scene) objectInfo(name string) (map[string]any, error) {
	o, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("Object not found: %s", name)
	}
	info := describe(o)
	info["materials"] = append([]string{}, o.Materials...)
	if o.Type == "MESH" {
		m := primitives[o.Primitive].mesh
		info["mesh"] = map[string]any{
			"vertices": m.vertices,
			"edges":    m.edges,
			"polygons": m.polygons,
		}
	}
	return info, nil
}

func (s *Scene) createObject(p params) (map[string]any, error) {
	kind := strings.ToUpper(p.str("type"))
	if kind == "" {
		kind = "CUBE"
	}
	prim, ok := primitives[kind]
	if !ok {
		return nil, fmt.Errorf("Unsupported object type: %s", kind)
	}
	name := p.str("name")
	if name == "" {
		name = prim.baseName
	}
	o := &Object{
		Name:      s.uniqueName(name),
		Type:      prim.objType,
		Primitive: kind,
		Location:  p.vec3("location", [3]float64{}),
		Rotation:  p.vec3("rotation", [3]float64{}),
		Scale:     p.vec3("scale", [3]float64{1, 1, 1}),
		Visible:   true,
	}
	if kind == "TORUS" {
		r := p.num("major_radius", 1) + p.num("minor_radius", 0.25)
		o.Scale = [3]float64{r, r, p.num("minor_radius", 0.25) * 4}
	}
	s.add(o)
	return describe(o), nil
}

func (s *Scene) modifyObject(p params) (map[string]any, error) {
	name := p.str("name")
	o, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("Object not found: %s", name)
	}
	if p.has("location") {
		o.Location = p.vec3("location", o.Location)
	}
	if p.has("rotation") {
		o.Rotation = p.vec3("rotation", o.Rotation)
	}
	if p.has("scale") {
		o.Scale = p.vec3("scale", o.Scale)
	}
	if p.has("visible") {
		o.Visible = p.boolean("visible", o.Visible)
	}
	info := describe(o)
	info["visible"] = o.Visible
	return info, nil
}

func (s *Scene) deleteObject(name string) (map[string]any, error) {
	if _, ok := s.objects[name]; !ok {
		return nil, fmt.Errorf("Object not found: %s", name)
	}
	delete(s.objects, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return map[string]any{"deleted": name}, nil
}

func (s *Scene) setMaterial(p params) (map[string]any, error) {
	objName := p.str("object_name")
	o, ok := s.objects[objName]
	if !ok {
		return nil, fmt.Errorf("Object not found: %s", objName)
	}
	if o.Type != "MESH" {
		return nil, fmt.Errorf("Object %s cannot accept materials", objName)
	}
	matName := p.str("material_name")
	if matName == "" {
		matName = objName + "_material"
	}
	mat, ok := s.materials[matName]
	if !ok {
		mat = &Material{Name: matName}
		s.materials[matName] = mat
	}
	color := p.floats("color")
	if len(color) >= 3 {
		mat.Color = color
	}
	if len(o.Materials) == 0 {
		o.Materials = append(o.Materials, mat.Name)
	} else {
		o.Materials[0] = mat.Name
	}
	var outColor any
	if len(color) > 0 {
		outColor = color
	}
	return map[string]any{
		"status":   "success",
		"object":   objName,
		"material": mat.Name,
		"color":    outColor,
	}, nil
}

func (s *Scene) csmStatus() map[string]any {
	if !s.csmEnabled {
		return map[string]any{"enabled": false, "message": "CSM.ai integration is disabled"}
	}
	if s.apiKey == "" {
		return map[string]any{"enabled": false, "message": "CSM.ai API key is not set"}
	}
	return map[string]any{"enabled": true}
}

func (s *Scene) importCSMModel(p params) (map[string]any, error) {
	url := p.str("mesh_url_glb")
	if url == "" {
		return map[string]any{"status": "error", "message": "No GLB URL provided"}, nil
	}
	name := p.str("name")
	if name == "" {
		name = "CSM_Model_" + p.str("model_id")
	}
	o := s.importMesh(name)
	info := describe(o)
	info["succeed"] = true
	return info, nil
}

func (s *Scene) importFile(p params) (map[string]any, error) {
	path := p.str("filepath")
	ext := strings.ToLower(filepath.Ext(path))
	if !importFormats[ext] {
		return map[string]any{"succeed": false, "error": "Unsupported file format: " + ext}, nil
	}
	name := p.str("name")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	o := s.importMesh(name)
	return map[string]any{
		"succeed":          true,
		"imported_objects": []string{o.Name},
		"name":             o.Name,
	}, nil
}

func (s *Scene) importMesh(name string) *Object {
	o := &Object{
		Name:      s.uniqueName(name),
		Type:      "MESH",
		Primitive: "CUBE",
		Scale:     [3]float64{1, 1, 1},
		Visible:   true,
	}
	s.add(o)
	return o
}

func (s *Scene) add(o *Object) {
	s.objects[o.Name] = o
	s.order = append(s.order, o.Name)
}

// uniqueName mimics Blender's ".001" suffixing on name collisions.
func (s *Scene) uniqueName(base string) string {
	if _, taken := s.objects[base]; !taken {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%03d", base, i)
		if _, taken := s.objects[candidate]; !taken {
			return candidate
		}
	}
}

func describe(o *Object) map[string]any {
	info := map[string]any{
		"name":     o.Name,
		"type":     o.Type,
		"location": o.Location[:],
		"rotation": o.Rotation[:],
		"scale":    o.Scale[:],
		"visible":  o.Visible,
	}
	if o.Type == "MESH" {
		info["world_bounding_box"] = boundingBox(o)
	}
	return info
}

// boundingBox treats every mesh as a unit-extent box around its origin, ignoring rotation.
func boundingBox(o *Object) [][]float64 {
	lo := make([]float64, 3)
	hi := make([]float64, 3)
	for i := 0; i < 3; i++ {
		ext := math.Abs(o.Scale[i])
		lo[i] = o.Location[i] - ext
		hi[i] = o.Location[i] + ext
	}
	return [][]float64{lo, hi}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

