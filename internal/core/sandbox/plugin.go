package sandbox

import (
	"audio-tagging/internal/core/types"
	"audio-tagging/plugin/shared"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/hashicorp/go-plugin"
)

const BackendEnvVar = "AUDIO_TAGGER_BACKEND"

var ErrPluginExited = errors.New("classifier plugin process exited")

// PluginClassifier forwards every call to a tagger plugin running in its own
// process. A segfault or OOM kill in the model takes down the plugin, not the
// batch.
type PluginClassifier struct {
	tagger shared.Tagger

	// Backed by the plugin client. Kept as funcs so the classifier can sit on
	// any connection to a Tagger.
	exited func() bool
	kill   func()
}

func newPluginClassifier(tagger shared.Tagger, exited func() bool, kill func()) *PluginClassifier {
	return &PluginClassifier{tagger: tagger, exited: exited, kill: kill}
}

func LoadPluginClassifier(binary, backend string) (*PluginClassifier, error) {
	if binary == "" {
		return nil, fmt.Errorf("plugin binary path is required")
	}

	cmd := exec.Command(binary)
	cmd.Env = append(os.Environ(), BackendEnvVar+"="+backend)

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  shared.Handshake,
		Plugins:          shared.PluginMap,
		Cmd:              cmd,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("error establishing RPC connection: %w", err)
	}

	raw, err := rpcClient.Dispense(shared.TaggerPluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("error dispensing '%s': %w", shared.TaggerPluginName, err)
	}

	tagger, ok := raw.(shared.Tagger)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("dispensed interface '%s' is not of expected type shared.Tagger (actual type: %T)", shared.TaggerPluginName, raw)
	}

	return newPluginClassifier(tagger, client.Exited, client.Kill), nil
}

func (p *PluginClassifier) Classify(ctx context.Context, cfg types.ClassifierConfig) (types.Prediction, error) {
	if p.tagger == nil {
		return types.Prediction{}, ErrPluginExited
	}

	resp, err := p.tagger.Tag(ctx, shared.TagRequest{Config: cfg})
	if err != nil {
		if p.exited() {
			return types.Prediction{}, fmt.Errorf("%w: %w", ErrPluginExited, err)
		}
		return types.Prediction{}, err
	}
	return resp.Prediction, nil
}

func (p *PluginClassifier) Exited() bool {
	return p.tagger == nil || p.exited()
}

func (p *PluginClassifier) Release() {
	if p.tagger == nil {
		return
	}

	p.kill()
	p.tagger = nil
}
