package llmcap

import (
	"context"
	"time"
)

// FakeInvoker is an in-memory Invoker for tests, returning canned responses
// or a configured error.
type FakeInvoker struct {
	Response string
	Err      error
	Calls    []string
}

func (f *FakeInvoker) InvokeModel(ctx context.Context, prompt, modelName string, timeout time.Duration) (string, error) {
	f.Calls = append(f.Calls, prompt)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Response, nil
}

var _ Invoker = (*FakeInvoker)(nil)
