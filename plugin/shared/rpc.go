package shared

import (
	"context"
	"net/rpc"
)

// RPCClient is an implementation of Tagger that talks over RPC.
type RPCClient struct{ client *rpc.Client }

func (m *RPCClient) Tag(ctx context.Context, req TagRequest) (TagResponse, error) {
	var resp TagResponse
	call := m.client.Go("Plugin.Tag", req, &resp, make(chan *rpc.Call, 1))

	select {
	case <-ctx.Done():
		return TagResponse{}, ctx.Err()
	case res := <-call.Done:
		return resp, res.Error
	}
}

// Here is the RPC server that RPCClient talks to, conforming to
// the requirements of net/rpc
type RPCServer struct {
	// This is the real implementation
	Impl Tagger
}

func (m *RPCServer) Tag(req TagRequest, resp *TagResponse) error {
	v, err := m.Impl.Tag(context.Background(), req)
	*resp = v
	return err
}
