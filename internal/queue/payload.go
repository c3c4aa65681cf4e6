/**
 * Job payloads for the Document Validation Worker
 *
 * Shared by the Asynq task handler and the Redis LIST consumer.
 */

package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adverant/nexus/docvalidate-worker/internal/matching"
	"github.com/adverant/nexus/docvalidate-worker/internal/processor"
)

// JobPayload contains the actual job data
type JobPayload struct {
	JobID      string                 `json:"jobId"`
	UserID     string                 `json:"userId"`
	Filename   string                 `json:"filename"`
	MimeType   string                 `json:"mimeType,omitempty"`
	FileSize   int64                  `json:"fileSize,omitempty"`
	FileURL    string                 `json:"fileUrl,omitempty"`
	FileBuffer []byte                 `json:"-"` // Will be set by custom UnmarshalJSON
	Metadata   map[string]interface{} `json:"metadata,omitempty"`

	// Validation input
	Mode           string              `json:"mode,omitempty"`
	ExpectedValues string              `json:"expectedValues,omitempty"` // "value1~value2~value3"
	FormData       map[string]string   `json:"formData,omitempty"`
	FieldSynonyms  map[string][]string `json:"fieldSynonyms,omitempty"`
	NumericFields  []string            `json:"numericFields,omitempty"`
}

// UnmarshalJSON implements custom JSON unmarshaling for JobPayload to handle Buffer serialization
// Supports both base64 string format (new) and Node.js Buffer object format (legacy)
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	// Create alias type to avoid recursion
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	// Handle fileBuffer field with multiple format support
	if aux.FileBuffer != nil {
		switch v := aux.FileBuffer.(type) {
		case string:
			decoded, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
			}
			p.FileBuffer = decoded

		case map[string]interface{}:
			if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
				return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
			}
			dataArray, ok := v["data"].([]interface{})
			if !ok {
				return fmt.Errorf("Buffer object missing 'data' array")
			}
			p.FileBuffer = make([]byte, len(dataArray))
			for i, val := range dataArray {
				byteVal, ok := val.(float64)
				if !ok || byteVal < 0 || byteVal > 255 {
					return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
				}
				p.FileBuffer[i] = byte(byteVal)
			}

		default:
			return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
		}
	}

	return nil
}

// MarshalJSON writes the file buffer as a base64 string.
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type Alias JobPayload
	aux := struct {
		FileBuffer string `json:"fileBuffer,omitempty"`
		Alias
	}{
		Alias: Alias(p),
	}
	if len(p.FileBuffer) > 0 {
		aux.FileBuffer = base64.StdEncoding.EncodeToString(p.FileBuffer)
	}
	return json.Marshal(aux)
}

// Validate checks the fields every job needs regardless of mode.
func (p *JobPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if len(p.FileBuffer) == 0 && p.FileURL == "" {
		return fmt.Errorf("either fileBuffer or fileUrl is required")
	}
	return nil
}

// ToProcessRequest converts the payload to processor format
func (p *JobPayload) ToProcessRequest() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:          p.JobID,
		UserID:         p.UserID,
		Filename:       p.Filename,
		MimeType:       p.MimeType,
		FileSize:       p.FileSize,
		FileURL:        p.FileURL,
		FileBuffer:     p.FileBuffer,
		Metadata:       p.Metadata,
		Mode:           processor.Mode(strings.ToLower(strings.TrimSpace(p.Mode))),
		ExpectedValues: matching.ParseExpectedValues(p.ExpectedValues),
		FormData:       matching.FormData(p.FormData),
		FieldSynonyms:  matching.FieldSynonyms(p.FieldSynonyms),
		NumericFields:  p.NumericFields,
	}
}

// decodePayload parses and validates a raw job payload.
func decodePayload(raw []byte) (*JobPayload, error) {
	var payload JobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return &payload, err
	}
	return &payload, nil
}
