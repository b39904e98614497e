package release

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Payload is the retrieval reference carried between the search surface and
// the queue surface. The search response embeds it (base64url) in the
// download URL so the queue surface can accept the grab without another
// provider round trip.
type Payload struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Display  string   `json:"display_title"`
	Category int      `json:"category"`
	Size     int64    `json:"size"`
	Links    []string `json:"links"`
}

// Payload builds the retrieval reference for a release.
func (r SyntheticRelease) Payload() Payload {
	return Payload{
		ID:       r.ID,
		Title:    r.Title,
		Display:  r.DisplayTitle,
		Category: r.Category,
		Size:     r.Size,
		Links:    r.Links,
	}
}

// EncodePayload serializes a retrieval reference for embedding in a URL.
func EncodePayload(p Payload) string {
	data, _ := json.Marshal(p)
	return base64.URLEncoding.EncodeToString(data)
}

// DecodePayload parses an encoded retrieval reference.
func DecodePayload(s string) (Payload, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to decode retrieval reference: %w", err)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("failed to parse retrieval reference: %w", err)
	}

	if p.ID == "" || len(p.Links) == 0 {
		return Payload{}, fmt.Errorf("retrieval reference missing id or links")
	}

	return p, nil
}
