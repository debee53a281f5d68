package services

import (
	"context"

	"github.com/guseggert/k4/rpc"
)

type Accounts struct {
	stub rpc.Stub
}

func NewAccounts(s *rpc.Session) *Accounts {
	return &Accounts{stub: s.Namespace("Accounts")}
}

// Lookup resolves a network user ID to an account handle.
func (a *Accounts) Lookup(ctx context.Context, userID string) (string, error) {
	var handle string
	if err := a.stub.CallInto(ctx, "Lookup", rpc.Args{"userID": userID}, &handle); err != nil {
		return "", err
	}
	return handle, nil
}
