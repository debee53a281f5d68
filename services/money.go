package services

import (
	"context"
	"errors"

	"github.com/guseggert/k4/rpc"
)

// Money moves funds escrowed for the current invocation.
type Money struct {
	stub rpc.Stub
}

func NewMoney(s *rpc.Session) *Money {
	return &Money{stub: s.Namespace("Money")}
}

func (m *Money) GetEscrowedFunds(ctx context.Context) (int64, error) {
	var funds int64
	if err := m.stub.CallInto(ctx, "GetEscrowedFunds", rpc.Args{}, &funds); err != nil {
		return 0, err
	}
	return funds, nil
}

// Charge moves amount from the invoking user's escrowed funds to the target account.
func (m *Money) Charge(ctx context.Context, targetAccountHandle string, amount int64) error {
	if amount <= 0 {
		return errors.New("amount must be positive")
	}
	return m.stub.CallInto(ctx, "Charge", rpc.Args{"targetAccountHandle": targetAccountHandle, "amount": amount}, nil)
}

// Pay moves amount from the script's own account to the target account.
func (m *Money) Pay(ctx context.Context, targetAccountHandle string, amount int64) error {
	if amount <= 0 {
		return errors.New("amount must be positive")
	}
	return m.stub.CallInto(ctx, "Pay", rpc.Args{"targetAccountHandle": targetAccountHandle, "amount": amount}, nil)
}
