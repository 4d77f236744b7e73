package embedding

import "context"

// FakeEmbedder returns deterministic vectors derived from input length,
// for tests that need an Embedder without a live endpoint.
type FakeEmbedder struct {
	Dimensions int
	Err        error
	Calls      []string
}

var _ Embedder = (*FakeEmbedder)(nil)

// EmbedText implements Embedder.
func (f *FakeEmbedder) EmbedText(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.Calls = append(f.Calls, inputs...)
	dims := f.Dimensions
	if dims == 0 {
		dims = 4
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v := make([]float32, dims)
		for j := range v {
			v[j] = float32(len(in)+j) / 100.0
		}
		out[i] = v
	}
	return out, nil
}
