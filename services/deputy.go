package services

import (
	"context"

	"github.com/guseggert/k4/rpc"
)

// Deputy performs moderation actions on behalf of the script.
type Deputy struct {
	stub rpc.Stub
}

func NewDeputy(s *rpc.Session) *Deputy {
	return &Deputy{stub: s.Namespace("Deputy")}
}

// DeleteInputMessage deletes the message that invoked the script.
func (d *Deputy) DeleteInputMessage(ctx context.Context) error {
	return d.stub.CallInto(ctx, "DeleteInputMessage", rpc.Args{}, nil)
}
