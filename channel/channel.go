// Package channel defines the pluggable source abstraction: the Channel
// interface every source adapter implements, the record types they produce,
// the dated artifact layout they export to, and the Registry that owns them.
package channel

import (
	"context"
	"strings"
	"time"
)

// ChannelKind is the variant family of a channel.
type ChannelKind string

const (
	SourceControl  ChannelKind = "source_control"
	LinkAggregator ChannelKind = "link_aggregator"
	Feed           ChannelKind = "feed"
)

// Channel is a source adapter for one external information source.
//
// Fetch never panics; failures are returned marked with the errors taxonomy
// (Throttled, PermanentFailure, Transient). Export of an empty record slice
// returns an empty ExportArtifact and no error.
type Channel interface {
	Descriptor() Descriptor
	Fetch(ctx context.Context, req FetchRequest) ([]RawRecord, error)
	Export(records []RawRecord, opts ExportOptions) (ExportArtifact, error)
}

// Descriptor identifies a registered channel. Config never carries secrets.
type Descriptor struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Kind   ChannelKind       `json:"kind"`
	Config map[string]string `json:"config,omitempty"`
}

// ExportOptions carries the request that produced the records (date-ranged
// channels name their artifact after the window) and the generation time.
type ExportOptions struct {
	Request FetchRequest
	Now     time.Time // zero = wall clock
}

// ExportArtifact is the durable, time-addressable file an export produced.
type ExportArtifact struct {
	Path        string    `json:"path"`
	Channel     string    `json:"channel"`
	GeneratedAt time.Time `json:"generated_at"`
	Records     int       `json:"records"`
}

// IsEmpty reports whether the export wrote nothing.
func (a ExportArtifact) IsEmpty() bool {
	return a.Path == ""
}

// Factory constructs a channel from its name and string configuration.
type Factory func(name string, config map[string]string) (Channel, error)

// IsSecretKey reports whether a config key holds a credential.
func IsSecretKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "secret") ||
		strings.Contains(k, "password") || strings.HasSuffix(k, "api_key")
}

// RedactConfig copies cfg with credential values masked, for descriptors
// and listings.
func RedactConfig(cfg map[string]string) map[string]string {
	out := make(map[string]string, len(cfg))
	for k, v := range cfg {
		if IsSecretKey(k) && v != "" {
			v = "********"
		}
		out[k] = v
	}
	return out
}
