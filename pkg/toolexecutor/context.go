package toolexecutor

import (
	"context"
	"io"
)

type outputKey struct{}

// WithOutput attaches the writer tools use for incidental text output.
func WithOutput(ctx context.Context, w io.Writer) context.Context {
	if w == nil {
		return ctx
	}
	return context.WithValue(ctx, outputKey{}, w)
}

// Output returns the writer attached by WithOutput, or io.Discard.
func Output(ctx context.Context) io.Writer {
	if ctx != nil {
		if w, ok := ctx.Value(outputKey{}).(io.Writer); ok {
			return w
		}
	}
	return io.Discard
}
