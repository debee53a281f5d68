package services

import (
	"context"

	"github.com/guseggert/k4/rpc"
)

type Messaging struct {
	stub rpc.Stub
}

func NewMessaging(s *rpc.Session) *Messaging {
	return &Messaging{stub: s.Namespace("Messaging")}
}

// Message is an outgoing message. An empty Format means "text".
type Message struct {
	ID      string
	Content string
	Format  string
}

func (m Message) args() rpc.Args {
	return rpc.Args{"id": m.ID, "content": m.Content, "format": m.Format}
}

func (m *Messaging) MessageChannel(ctx context.Context, msg Message) error {
	return m.stub.CallInto(ctx, "MessageChannel", msg.args(), nil)
}

func (m *Messaging) MessageUser(ctx context.Context, msg Message) error {
	return m.stub.CallInto(ctx, "MessageUser", msg.args(), nil)
}
