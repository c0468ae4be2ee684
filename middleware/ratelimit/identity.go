package ratelimit

import "context"

type userKey struct{}

// WithUser marca o contexto com o usuário autenticado. Quem chama é a camada de
// autenticação, depois de validar o token; este pacote não valida credenciais.
func WithUser(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey{}, id)
}

func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}
