// internal/browser/session/evaluate.go
package session

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
)

// Evaluate runs expression in the page, awaiting a returned promise, and
// decodes the JSON-serializable result into out (which may be nil).
func (s *Session) Evaluate(ctx context.Context, expression string, out interface{}) error {
	opCtx, cancel := withOperationTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()

	var (
		remote    *runtime.RemoteObject
		exception *runtime.ExceptionDetails
	)
	err := s.runActions(opCtx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		remote, exception, err = runtime.Evaluate(expression).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(c)
		return err
	}))
	if err != nil {
		return err
	}
	if exception != nil {
		return newEvaluationError(expression, exception)
	}
	return decodeRemote(remote, out)
}

func newEvaluationError(expression string, details *runtime.ExceptionDetails) *EvaluationError {
	msg := details.Text
	if details.Exception != nil && details.Exception.Description != "" {
		msg = details.Exception.Description
	}
	return &EvaluationError{
		Expression: expressionLabel(expression),
		Message:    msg,
		Line:       details.LineNumber,
		Column:     details.ColumnNumber,
	}
}

// decodeRemote leaves out untouched for undefined and empty results.
func decodeRemote(remote *runtime.RemoteObject, out interface{}) error {
	if out == nil || remote == nil {
		return nil
	}
	if remote.Type == runtime.TypeUndefined || len(remote.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal([]byte(remote.Value), out); err != nil {
		return fmt.Errorf("session: decode evaluation result: %w", err)
	}
	return nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel := withOperationTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()

	var buf []byte
	if err := s.runActions(opCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("session: screenshot: %w", err)
	}
	return buf, nil
}

// ResponseBody returns the decoded body of a finished response.
func (s *Session) ResponseBody(ctx context.Context, requestID string) ([]byte, error) {
	opCtx, cancel := withOperationTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()

	var body []byte
	err := s.runActions(opCtx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		body, err = network.GetResponseBody(network.RequestID(requestID)).Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("session: response body %s: %w", requestID, err)
	}
	return body, nil
}
