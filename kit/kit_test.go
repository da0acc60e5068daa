package kit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}
	base := func(context.Context, any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}, order)
}

func TestLoggingPropagatesError(t *testing.T) {
	errFail := errors.New("fail")
	ep := Logging(nil, "x")(func(context.Context, any) (any, error) { return nil, errFail })

	_, err := ep(WithTraceID(context.Background(), "abc"), nil)
	assert.ErrorIs(t, err, errFail)
}

func TestContextKeys(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "http", GetTransport(ctx))
	assert.Equal(t, "", GetTraceID(ctx))

	ctx = WithTransport(WithTraceID(ctx, "t1"), "mcp")
	assert.Equal(t, "mcp", GetTransport(ctx))
	assert.Equal(t, "t1", GetTraceID(ctx))
}
