// Package memory defines the read-only Memory record returned by the Engram
// service. recall never creates memories locally; it only passes them through
// from API responses into chat context, listings and tool output.
package memory

import (
	"fmt"
	"time"
)

// Modality identifies the kind of content a memory was extracted from.
type Modality string

// Supported modalities.
const (
	ModalityText  Modality = "text"
	ModalityWeb   Modality = "web"
	ModalityPDF   Modality = "pdf"
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
	ModalityChat  Modality = "chat"
)

// Modalities lists every modality in display order.
var Modalities = []Modality{
	ModalityText,
	ModalityWeb,
	ModalityPDF,
	ModalityImage,
	ModalityVideo,
	ModalityChat,
}

// Valid reports whether m is one of the known modalities.
func (m Modality) Valid() bool {
	for _, known := range Modalities {
		if m == known {
			return true
		}
	}
	return false
}

// ParseModality converts a user-supplied string into a Modality.
func ParseModality(s string) (Modality, error) {
	m := Modality(s)
	if !m.Valid() {
		return "", fmt.Errorf("memory: unknown modality %q", s)
	}
	return m, nil
}

// Memory is a stored knowledge item as reported by the service.
type Memory struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	Modality       Modality       `json:"modality,omitempty"`
	Importance     float64        `json:"importance"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at,omitzero"`
	SourceURI      *string        `json:"source_uri,omitempty"`
	Score          *float64       `json:"score,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Source returns the source URI or an empty string.
func (m Memory) Source() string {
	if m.SourceURI == nil {
		return ""
	}
	return *m.SourceURI
}

// Relevance returns the relevance score, or -1 when the service did not
// attach one (listings are unscored, searches are scored).
func (m Memory) Relevance() float64 {
	if m.Score == nil {
		return -1
	}
	return *m.Score
}

// Clone returns a copy that shares no mutable state with m.
func (m Memory) Clone() Memory {
	cp := m
	if m.SourceURI != nil {
		s := *m.SourceURI
		cp.SourceURI = &s
	}
	if m.Score != nil {
		v := *m.Score
		cp.Score = &v
	}
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// CloneAll copies a slice of memories. A nil input yields nil.
func CloneAll(in []Memory) []Memory {
	if in == nil {
		return nil
	}
	out := make([]Memory, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}
