package exporter

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/born-ml/zooexport/internal/onnx"
)

// Manifest is the JSON sidecar written next to an export.
type Manifest struct {
	RunID           string            `json:"run_id"`
	CreatedAt       time.Time         `json:"created_at"`
	Producer        string            `json:"producer"`
	ProducerVersion string            `json:"producer_version"`
	Path            string            `json:"path"`
	Bytes           int               `json:"bytes"`
	SHA256          string            `json:"sha256"`
	IRVersion       int64             `json:"ir_version"`
	Opset           int64             `json:"opset"`
	Input           ManifestValue     `json:"input"`
	Output          ManifestValue     `json:"output"`
	Nodes           int               `json:"nodes"`
	Initializers    int               `json:"initializers"`
	Params          int64             `json:"params"`
	OpCounts        map[string]int    `json:"op_counts"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ManifestValue is a graph boundary value.
type ManifestValue struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Shape []int64 `json:"shape"`
}

func manifestValue(v *onnx.ValueInfoProto) ManifestValue {
	return ManifestValue{Name: v.Name, Type: onnx.DataTypeName(v.ElemType()), Shape: v.Dims()}
}

// ManifestPath returns the sidecar path for an export path.
func ManifestPath(outputPath string) string {
	return outputPath + ".json"
}

func writeManifest(outputPath string, m *onnx.ModelProto, r *Result) (string, error) {
	man := Manifest{
		RunID:           uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
		Producer:        m.ProducerName,
		ProducerVersion: m.ProducerVersion,
		Path:            outputPath,
		Bytes:           r.Bytes,
		SHA256:          r.SHA256,
		IRVersion:       m.IRVersion,
		Input:           manifestValue(&r.Input),
		Output:          manifestValue(&r.Output),
		Nodes:           r.Nodes,
		Initializers:    r.Initializers,
		Params:          r.Params,
		OpCounts:        r.OpCounts,
	}
	if len(m.OpsetImport) > 0 {
		man.Opset = m.OpsetImport[0].Version
	}
	if len(m.MetadataProps) > 0 {
		man.Metadata = make(map[string]string, len(m.MetadataProps))
		for _, e := range m.MetadataProps {
			man.Metadata[e.Key] = e.Value
		}
	}

	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	path := ManifestPath(outputPath)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// ReadManifest decodes a sidecar written by Export.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var man Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &man, nil
}
