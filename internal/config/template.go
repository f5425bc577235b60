package config

const defaultConfigYAML = `# query-gateway configuration

host: ""
port: 8080
debug: false
logging-to-file: false

# Namespace used when a request does not name one.
namespace: default

backend:
  # "http" talks to a Kubernetes-style resource API, "memory" keeps
  # resources in process (useful for local development).
  type: memory
  base-url: ""
  group: ark.mckinsey.com
  version: v1alpha1
  token: ""
  token-file: ""
  timeout: 30s
  proxy-url: ""
  rate-limit: 0
  burst: 0

poll:
  interval: 1s
  max-interval: 5s
  timeout: 5m

stream:
  connect-timeout: 10s
  idle-timeout: 0s
  wait-for-job: 30s

models:
  owned-by: ark

usage:
  # sqlite://~/.local/share/query-gateway/usage.db or postgres://...
  dsn: ""
  batch-size: 100
  flush-interval: 5s
  retention-days: 30
`

// GenerateDefaultConfigYAML returns the commented default configuration file.
func GenerateDefaultConfigYAML() []byte {
	return []byte(defaultConfigYAML)
}
