package compute

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/softlyplease/soft-compute-gateway/pkg/artifact"
	"github.com/softlyplease/soft-compute-gateway/pkg/cache"
	"github.com/softlyplease/soft-compute-gateway/pkg/params"
)

// Upload is a geometry file received from a client.
type Upload struct {
	Name    string
	Content []byte
}

// geometry encodes the upload for a JSON payload.
func (u Upload) geometry() json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"fileName": u.Name,
		"format":   strings.TrimPrefix(strings.ToLower(filepath.Ext(u.Name)), "."),
		"encoding": "base64",
		"checksum": artifact.Checksum(u.Content),
		"data":     base64.StdEncoding.EncodeToString(u.Content),
	})
	return raw
}

// algorithmOperations maps request algorithm names to compute operations.
var algorithmOperations = map[string]string{
	"standard":       "TopologyOptimization",
	"sensitivity":    "AdvancedSensitivityAnalysis",
	"beso":           "AdvancedTopologyOptimization.BESOOptimization",
	"levelset":       "AdvancedTopologyOptimization.LevelSetOptimization",
	"multiobjective": "AdvancedTopologyOptimization.MultiObjectiveOptimization",
	"adaptivemesh":   "AdvancedTopologyOptimization.AdaptiveMeshOptimization",
	"stressbased":    "AdvancedTopologyOptimization.StressBasedOptimization",
	"frequencybased": "AdvancedTopologyOptimization.FrequencyBasedOptimization",
}

// OperationForAlgorithm returns the compute operation for a validated
// algorithm name.
func OperationForAlgorithm(algorithm string) (string, bool) {
	op, ok := algorithmOperations[strings.ToLower(algorithm)]
	return op, ok
}

// Optimize runs topology optimization on an uploaded geometry file.
func (c *Client) Optimize(ctx context.Context, upload Upload, p params.TopOptParams) (*OperationResult, error) {
	if err := params.ValidateUpload(upload.Name, int64(len(upload.Content))); err != nil {
		return nil, err
	}
	op, ok := OperationForAlgorithm(p.Algorithm)
	if !ok {
		return nil, params.Invalid("algorithm", "Unsupported algorithm: %s", p.Algorithm)
	}
	return c.Execute(ctx, op, upload.geometry(), p.Map())
}

// Grasshopper solves a Grasshopper definition through the /grasshopper
// endpoint. Inputs become single-item data trees; an uploaded file is
// passed as the "Geometry" input.
func (c *Client) Grasshopper(ctx context.Context, hp params.HopsParams, upload *Upload) (*OperationResult, error) {
	if err := params.Struct(hp); err != nil {
		return nil, err
	}

	inputs := make(map[string]any, len(hp.Inputs)+1)
	for name, v := range hp.Inputs {
		inputs[name] = v
	}
	if upload != nil {
		if err := params.ValidateUpload(upload.Name, int64(len(upload.Content))); err != nil {
			return nil, err
		}
		inputs["Geometry"] = upload.geometry()
	}

	payload := map[string]any{
		"pointer": hp.Definition,
		"values":  dataTrees(inputs),
	}
	key := cacheKey(map[string]any{"operation": "grasshopper", "payload": payload})

	start := c.now()
	value, cached, err := c.exec.Fetch(ctx, "compute.grasshopper", key, c.config.CacheTTL, func(ctx context.Context) (json.RawMessage, error) {
		body, err := c.do(ctx, http.MethodPost, "/grasshopper", payload)
		if err != nil {
			return nil, err
		}
		if !json.Valid(body) {
			return nil, fmt.Errorf("decode grasshopper response: invalid JSON")
		}
		return json.Marshal(OperationResult{
			Success:       true,
			Result:        body,
			Operation:     "grasshopper",
			OperationType: "grasshopper",
			ResponseTime:  c.now().Sub(start).Milliseconds(),
		})
	})
	if err != nil {
		c.logger.Error().Err(err).Str("definition", hp.Definition).Msg("Grasshopper solve failed")
		return nil, err
	}

	var result OperationResult
	if err := json.Unmarshal(value, &result); err != nil {
		return nil, fmt.Errorf("decode cached grasshopper result: %w", err)
	}
	result.Cached = cached
	return &result, nil
}

type dataTree struct {
	ParamName string                `json:"ParamName"`
	InnerTree map[string][]treeItem `json:"InnerTree"`
}

type treeItem struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// dataTrees converts inputs to compute data trees, sorted by name.
func dataTrees(inputs map[string]any) []dataTree {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	trees := make([]dataTree, 0, len(names))
	for _, name := range names {
		trees = append(trees, dataTree{
			ParamName: name,
			InnerTree: map[string][]treeItem{"{0}": {treeValue(inputs[name])}},
		})
	}
	return trees
}

func treeValue(v any) treeItem {
	var typ string
	switch v.(type) {
	case bool:
		typ = "System.Boolean"
	case float64, float32:
		typ = "System.Double"
	case int, int64, int32:
		typ = "System.Int32"
	case string:
		typ = "System.String"
	default:
		typ = "System.String"
	}
	data, _ := json.Marshal(v)
	return treeItem{Type: typ, Data: string(data)}
}

func cacheKey(input any) string {
	return cache.Key(CacheNamespace, input)
}
