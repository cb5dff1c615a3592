package shared

import (
	"audio-tagging/internal/core/types"
	"context"
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "AUDIO_TAGGER_PLUGIN",
	MagicCookieValue: "tagger",
}

const TaggerPluginName = "tagger"

var PluginMap = map[string]plugin.Plugin{
	TaggerPluginName: &TaggerPlugin{},
}

type TagRequest struct {
	Config types.ClassifierConfig
}

type TagResponse struct {
	Prediction types.Prediction
}

// Tagger is the interface served by a plugin process.
type Tagger interface {
	Tag(ctx context.Context, req TagRequest) (TagResponse, error)
}

type TaggerPlugin struct {
	Impl Tagger
}

func (p *TaggerPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (TaggerPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}
