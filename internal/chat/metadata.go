package chat

import (
	"encoding/json"
	"time"
)

// Location is the position attached to panic alerts and location shares.
type Location struct {
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Accuracy  *float64   `json:"accuracy,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	// Fallback is set when the position came from the neighborhood centroid
	// instead of the device.
	Fallback bool `json:"fallback,omitempty"`
}

// MediaDescriptor points at an attachment stored elsewhere.
type MediaDescriptor struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Name     string `json:"name,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Metadata carries the optional extras of a message. Keys the client does
// not know about are kept in Extra and written back unchanged.
type Metadata struct {
	Location  *Location         `json:"location,omitempty"`
	Address   string            `json:"address,omitempty"`
	ReplyTo   string            `json:"replyTo,omitempty"`
	ThreadID  string            `json:"threadId,omitempty"`
	ParentID  string            `json:"parentId,omitempty"`
	Media     []MediaDescriptor `json:"media,omitempty"`
	Anonymous bool              `json:"anonymous,omitempty"`
	Extra     map[string]any    `json:"-"`
}

var knownMetadataKeys = map[string]bool{
	"location":  true,
	"address":   true,
	"replyTo":   true,
	"threadId":  true,
	"parentId":  true,
	"media":     true,
	"anonymous": true,
}

type metadataAlias Metadata

// MarshalJSON flattens Extra into the top-level object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(metadataAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]any, len(m.Extra)+len(knownMetadataKeys))
	for k, v := range m.Extra {
		if !knownMetadataKeys[k] {
			merged[k] = v
		}
	}
	var fields map[string]any
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON fills the typed fields and stashes the rest in Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var alias metadataAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metadata(alias)
	for k, v := range raw {
		if knownMetadataKeys[k] {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = v
	}
	return nil
}

// WithLocation returns a copy of m (which may be nil) carrying loc.
func (m *Metadata) WithLocation(loc *Location) *Metadata {
	var out Metadata
	if m != nil {
		out = *m
	}
	out.Location = loc
	return &out
}
