package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"learning-assistant/internal/models"
)

type ChatRequest struct {
	Message string           `json:"message"`
	History []models.Message `json:"history"`
	UserAge *int             `json:"user_age"`
}

// DocumentID accepts a JSON string or number. LMS clients send the numeric
// course module id.
type DocumentID string

func (d *DocumentID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DocumentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("document_id must be a string or number: %w", err)
	}
	*d = DocumentID(n.String())
	return nil
}

// ChunkMetadata is a metadata object whose scalar values are kept as their
// string form, so {"page": 3} stores "3".
type ChunkMetadata models.Metadata

func (m *ChunkMetadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	out := make(ChunkMetadata, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = fmt.Sprint(val)
		case nil:
			out[k] = ""
		default:
			return fmt.Errorf("metadata %q must be a scalar", k)
		}
	}
	*m = out
	return nil
}

type IngestTextRequest struct {
	DocumentID DocumentID      `json:"document_id"`
	Texts      []string        `json:"texts"`
	Metadatas  []ChunkMetadata `json:"metadatas"`
}

type IngestURLRequest struct {
	DocumentID DocumentID `json:"document_id"`
	Source     string     `json:"source"`
}

// IngestPDFRequest carries a base64 encoded upload in a JSON body.
type IngestPDFRequest struct {
	DocumentID  DocumentID `json:"document_id"`
	Source      string     `json:"source"`
	FileContent string     `json:"file_content"`
	Filename    string     `json:"filename"`
}

type IngestResponse struct {
	Success bool   `json:"success"`
	Chunks  int    `json:"chunks"`
	Title   string `json:"title,omitempty"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Version  string `json:"version"`
}

type ServiceStatus struct {
	Status   string                  `json:"status"`
	Provider string                  `json:"provider,omitempty"`
	Info     *models.CollectionStats `json:"info,omitempty"`
}

type DetailedHealthResponse struct {
	Status   string                   `json:"status"`
	Services map[string]ServiceStatus `json:"services"`
}
