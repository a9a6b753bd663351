package config

import (
	"fmt"
	"time"

	"github.com/casement-ui/casement/transport"
	"github.com/casement-ui/casement/types"
)

// Config represents a casement.yaml manifest. All values are optional
// and act as defaults for the embedding application; values set in
// code always override the manifest.
type Config struct {
	// Shell is the rendering-shell binary to spawn.
	Shell string `yaml:"shell"`
	// ShellArgs are extra flags appended after the transport flags.
	ShellArgs []string `yaml:"shell_args,omitempty"`
	// Root is the project root for disk-backed asset resolution.
	Root string `yaml:"root,omitempty"`

	Transport TransportConfig     `yaml:"transport"`
	Window    types.WindowOptions `yaml:"window"`
	Assets    AssetsConfig        `yaml:"assets"`
	Adapter   AdapterConfig       `yaml:"adapter"`

	// AcceptTimeout bounds the wait for the shell to connect back.
	AcceptTimeout Duration `yaml:"accept_timeout,omitempty"`
	// ReplyTimeout bounds host-side waits for command replies.
	ReplyTimeout Duration `yaml:"reply_timeout,omitempty"`
}

// TransportConfig selects the transport binding.
type TransportConfig struct {
	// Kind is tcp, unix, or pipe. Empty defaults to tcp.
	Kind string `yaml:"kind,omitempty"`
	// Addr is a host:port for tcp, a socket path for unix, or the pipe
	// base path for pipe. Empty tcp means an ephemeral loopback port.
	Addr string `yaml:"addr,omitempty"`
}

// Endpoint converts the transport section into a transport.Endpoint.
func (t TransportConfig) Endpoint() (transport.Endpoint, error) {
	kind := transport.Kind(t.Kind)
	if t.Kind == "" {
		kind = transport.KindTCP
	}
	switch kind {
	case transport.KindTCP:
		addr := t.Addr
		if addr == "" {
			addr = "127.0.0.1:0"
		}
		return transport.Endpoint{Kind: kind, Addr: addr}, nil
	case transport.KindUnix, transport.KindPipe:
		if t.Addr == "" {
			return transport.Endpoint{}, fmt.Errorf("transport kind %q requires addr", kind)
		}
		return transport.Endpoint{Kind: kind, Addr: t.Addr}, nil
	default:
		return transport.Endpoint{}, fmt.Errorf("unknown transport kind %q", t.Kind)
	}
}

// AssetsConfig holds Virtual Asset Provider defaults.
type AssetsConfig struct {
	// Origin selects the remote fallback: "s3" or empty for none.
	Origin string `yaml:"origin,omitempty"`

	// S3 settings, used when origin is s3.
	Bucket      string `yaml:"bucket,omitempty"`
	Prefix      string `yaml:"prefix,omitempty"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// AdapterConfig holds lifecycle adapter defaults.
type AdapterConfig struct {
	// Type is webhook, redis, or empty for none.
	Type    string            `yaml:"type,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
