package stealth

import (
	"context"

	json "github.com/json-iterator/go"
)

// fakeEvaluator records expressions and answers with a canned JSON result.
type fakeEvaluator struct {
	result      string
	err         error
	expressions []string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, expression string, out interface{}) error {
	f.expressions = append(f.expressions, expression)
	if f.err != nil {
		return f.err
	}
	if out == nil || f.result == "" {
		return nil
	}
	return json.Unmarshal([]byte(f.result), out)
}
