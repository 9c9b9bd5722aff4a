package program

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Manifest describes the program for an out-of-process compute backend: cache key,
// grid and workgroup sizes, bindings, uniforms and the generated source.
func (p *Program) Manifest() (*structpb.Struct, error) {
	inputs := make([]any, len(p.Inputs))
	for i, in := range p.Inputs {
		inputs[i] = map[string]any{
			"name":  in.Name,
			"shape": intList(in.Shape),
		}
	}
	uniforms := make(map[string]any, len(p.Uniforms))
	for _, u := range p.Uniforms {
		vals := make([]any, len(u.Values))
		for i, v := range u.Values {
			vals[i] = v
		}
		uniforms[u.Name] = vals
	}

	s, err := structpb.NewStruct(map[string]any{
		"name":          p.Name,
		"shaderKey":     p.ShaderKey,
		"outputShape":   intList(p.OutputShape),
		"workgroupSize": intList(p.Workgroup[:]),
		"dispatch":      intList(p.Dispatch[:]),
		"dispatchLayout": map[string]any{
			"x": intList(p.Layout.X),
			"y": intList(p.Layout.Y),
			"z": intList(p.Layout.Z),
		},
		"inputs":   inputs,
		"uniforms": uniforms,
		"source":   p.Source(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "program %s: manifest", p.Name)
	}
	return s, nil
}

// MarshalManifest encodes the manifest as deterministic protobuf bytes.
func (p *Program) MarshalManifest() ([]byte, error) {
	s, err := p.Manifest()
	if err != nil {
		return nil, err
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(s)
	if err != nil {
		return nil, errors.Wrapf(err, "program %s: marshal manifest", p.Name)
	}
	return data, nil
}

// UnmarshalManifest decodes bytes produced by MarshalManifest.
func UnmarshalManifest(data []byte) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, errors.Wrap(err, "program: unmarshal manifest")
	}
	return s, nil
}

func intList[S ~[]int](v S) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}
