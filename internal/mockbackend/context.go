package mockbackend

import "context"

type tokenValue struct {
	id string
	t  *token
}

func withToken(ctx context.Context, id string, t *token) context.Context {
	return context.WithValue(ctx, tokenCtxKey{}, tokenValue{id: id, t: t})
}

func tokenFrom(ctx context.Context) (string, *token) {
	v, _ := ctx.Value(tokenCtxKey{}).(tokenValue)
	if v.t == nil {
		return v.id, &token{}
	}
	return v.id, v.t
}
