package auth

import (
	"context"

	"github.com/trektide/apiserver/types"
)

type ctxKey int

const accountKey ctxKey = 0

// ContextWithAccount stores the resolved account in the context. Only the
// session middleware writes this key; downstream stages read it through
// AccountFromContext.
func ContextWithAccount(ctx context.Context, account types.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// AccountFromContext returns the account attached by the session
// middleware, if any.
func AccountFromContext(ctx context.Context) (types.Account, bool) {
	account, ok := ctx.Value(accountKey).(types.Account)
	return account, ok
}
