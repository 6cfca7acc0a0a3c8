package services

import (
	"context"

	"github.com/iota-uz/leadrouter/pkg/composables"
)

// TxRunner runs fn inside a transaction carried by the context it receives.
type TxRunner func(ctx context.Context, fn func(context.Context) error) error

var defaultTxRunner TxRunner = composables.InTx
