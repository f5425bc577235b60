package cli

import (
	"fmt"
	"strings"

	"github.com/nghyane/query-gateway/internal/bootstrap"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var gatewayURL string

// gatewayBase is --url, or the local listener from the config file.
func gatewayBase() (string, error) {
	if gatewayURL != "" {
		return strings.TrimRight(gatewayURL, "/"), nil
	}
	result, err := bootstrap.Bootstrap(cfgFile)
	if err != nil {
		return "", err
	}
	host := result.Config.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, result.Config.Port), nil
}

// newClient returns an OpenAI client pointed at the gateway. The gateway
// does not check keys but the client requires one.
func newClient(base string) openai.Client {
	return openai.NewClient(
		option.WithBaseURL(base+"/openai/v1/"),
		option.WithAPIKey("query-gateway"),
		option.WithMaxRetries(0),
	)
}
