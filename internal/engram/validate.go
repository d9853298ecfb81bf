package engram

import (
	"net/url"
	"strings"

	"github.com/flemzord/recall/pkg/memory"
)

// Validation bounds enforced before a request leaves the process.
const (
	MaxTemperature = 2.0
	maxTopK        = 100
)

func validateModalities(ms []memory.Modality) error {
	for _, m := range ms {
		if !m.Valid() {
			return invalid("unknown modality %q", m)
		}
	}
	return nil
}

func validateImportance(v float64) error {
	if v < 0 || v > 1 {
		return invalid("importance %v outside 0..1", v)
	}
	return nil
}

func validateTemperature(v float64) error {
	if v < 0 || v > MaxTemperature {
		return invalid("temperature %v outside 0..%v", v, MaxTemperature)
	}
	return nil
}

func validateQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return invalid("query must not be empty")
	}
	return nil
}

// validateHTTPURL accepts absolute http(s) URLs with a host.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return invalid("url %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return invalid("url %q has no host", raw)
	}
	return nil
}

func (r ChatRequest) validate() error {
	if len(r.Messages) == 0 {
		return invalid("chat needs at least one message")
	}
	hasUser := false
	for _, m := range r.Messages {
		if m.Role == "user" {
			hasUser = true
		}
	}
	if !hasUser {
		return invalid("chat needs a user message")
	}
	if r.Temperature != nil {
		if err := validateTemperature(*r.Temperature); err != nil {
			return err
		}
	}
	if r.RetrievalHints != nil {
		if r.RetrievalHints.K < 0 || r.RetrievalHints.K > maxTopK {
			return invalid("retrieval k %d outside 0..%d", r.RetrievalHints.K, maxTopK)
		}
		return validateModalities(r.RetrievalHints.Modalities)
	}
	return nil
}

func (r SearchRequest) validate() error {
	if err := validateQuery(r.Query); err != nil {
		return err
	}
	if r.TopK < 0 || r.TopK > maxTopK {
		return invalid("top_k %d outside 1..%d", r.TopK, maxTopK)
	}
	if r.ImportanceThreshold != nil {
		if err := validateImportance(*r.ImportanceThreshold); err != nil {
			return err
		}
	}
	return validateModalities(r.Modalities)
}

func (r IngestURLRequest) validate() error {
	if err := validateHTTPURL(r.URL); err != nil {
		return err
	}
	if !r.Type.Valid() {
		return invalid("unknown content type %q", r.Type)
	}
	return nil
}

func (r IngestFileRequest) validate() error {
	if strings.TrimSpace(r.Filename) == "" {
		return invalid("file name must not be empty")
	}
	if len(r.Content) == 0 {
		return invalid("file %q is empty", r.Filename)
	}
	if !r.Type.Valid() {
		return invalid("unknown content type %q", r.Type)
	}
	return nil
}

func (r IngestChatRequest) validate() error {
	if strings.TrimSpace(r.Platform) == "" {
		return invalid("platform must not be empty")
	}
	if len(r.Items) == 0 {
		return invalid("chat export has no items")
	}
	return nil
}

func (r CreateKeyRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return invalid("key name must not be empty")
	}
	return nil
}

func (r ConnectorSyncRequest) validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return invalid("connector source must not be empty")
	}
	return nil
}

// Upsert limits mirror the service's own request validation.
const (
	maxUpsertTexts = 100
	maxTextLength  = 2048
)

func (r UpsertRequest) validate() error {
	if len(r.Texts) == 0 || len(r.Texts) > maxUpsertTexts {
		return invalid("upsert needs 1..%d texts, got %d", maxUpsertTexts, len(r.Texts))
	}
	for i, t := range r.Texts {
		if strings.TrimSpace(t) == "" {
			return invalid("text %d is empty", i)
		}
		if len(t) > maxTextLength {
			return invalid("text %d exceeds %d characters", i, maxTextLength)
		}
	}
	if r.Importance != nil && len(r.Importance) != len(r.Texts) {
		return invalid("importance has %d entries for %d texts", len(r.Importance), len(r.Texts))
	}
	for _, v := range r.Importance {
		if err := validateImportance(v); err != nil {
			return err
		}
	}
	if r.Metadata != nil && len(r.Metadata) != len(r.Texts) {
		return invalid("metadata has %d entries for %d texts", len(r.Metadata), len(r.Texts))
	}
	return nil
}
