package domain

import (
	"regexp"
	"strings"
	"time"
)

type ProcessingStatus string

const (
	StatusProcessing ProcessingStatus = "processing"
	StatusProcessed  ProcessingStatus = "processed"
	StatusFailed     ProcessingStatus = "failed"
)

// Terminal reports whether no further automatic transition leaves the status.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

type SourceType string

const (
	SourcePDF SourceType = "pdf"
	SourceURL SourceType = "url"
	SourceDOI SourceType = "doi"
)

// AllSourceTypes lists every source type in the order used for grouping search results.
var AllSourceTypes = []SourceType{SourcePDF, SourceURL, SourceDOI}

// ParseSourceType validates a raw source type value.
func ParseSourceType(raw string) (SourceType, bool) {
	switch SourceType(strings.ToLower(strings.TrimSpace(raw))) {
	case SourcePDF:
		return SourcePDF, true
	case SourceURL:
		return SourceURL, true
	case SourceDOI:
		return SourceDOI, true
	}
	return "", false
}

// Content is the unit of ingestion.
type Content struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	SourceType       SourceType       `json:"sourceType"`
	ProcessingStatus ProcessingStatus `json:"processingStatus"`
	Title            *string          `json:"title"`
	Summary          *string          `json:"summary"`
	RawText          *string          `json:"rawText,omitempty"`
	ViewText         *string          `json:"viewText"`
	StorageRef       *string          `json:"storageRef,omitempty"`
	Image            *string          `json:"image,omitempty"`
	Source           *string          `json:"source,omitempty"`
	Annotations      []Annotation     `json:"annotations"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Annotation is a user highlight or comment attached to a content record.
type Annotation struct {
	ID        string    `json:"id"`
	Quote     string    `json:"quote"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ContentPatch describes a conditional update of a content record.
// Nil fields are left untouched. When IfStatus is set the update only
// applies while the record still has that status.
type ContentPatch struct {
	Title            *string
	Summary          *string
	RawText          *string
	ViewText         *string
	StorageRef       *string
	Image            *string
	Source           *string
	ProcessingStatus *ProcessingStatus
	IfStatus         ProcessingStatus
	UpdatedAt        time.Time
}

// Source is a raw submission: either uploaded bytes or a locator string.
type Source struct {
	Data []byte
	Text string
}

// SourceFromBytes wraps an uploaded payload.
func SourceFromBytes(data []byte) Source {
	return Source{Data: data}
}

// SourceFromString wraps a URL or DOI reference.
func SourceFromString(s string) Source {
	return Source{Text: strings.TrimSpace(s)}
}

// IsBytes reports whether the source carries a byte payload.
func (s Source) IsBytes() bool {
	return s.Data != nil
}

var doiURLPattern = regexp.MustCompile(`^https?://(dx\.)?doi\.org/.*`)

// ClassifySource derives the source type from the structure of the submission.
func ClassifySource(src Source) SourceType {
	if src.IsBytes() {
		return SourcePDF
	}
	if IsDOI(src.Text) {
		return SourceDOI
	}
	return SourceURL
}

// IsDOI matches bare DOIs ("10.xxxx/...") and doi.org resolver URLs.
func IsDOI(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "10.") || doiURLPattern.MatchString(s)
}

// CanonicalDOIURL turns a bare DOI into its doi.org URL.
func CanonicalDOIURL(doi string) string {
	doi = strings.TrimSpace(doi)
	if strings.HasPrefix(doi, "http") {
		return doi
	}
	return "https://doi.org/" + doi
}

// ChunkMetadata is copied verbatim onto every chunk derived from one document.
type ChunkMetadata struct {
	SourceID   string     `json:"sourceId"`
	SourceType SourceType `json:"sourceType"`
	UserID     string     `json:"userId"`
}

// Hit is a single nearest-neighbour match.
type Hit struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
	Distance float32       `json:"distance"`
}

// SearchGroup lists the content ids that matched for one source type.
type SearchGroup struct {
	Type SourceType `json:"type"`
	IDs  []string   `json:"ids"`
}

// SearchResult is the response of a cross-source search.
type SearchResult struct {
	Groups []SearchGroup `json:"searchResults"`
	Answer string        `json:"answer"`
}

// DocumentAnswer is the response of a question scoped to one content record.
type DocumentAnswer struct {
	Answer    string   `json:"answer"`
	Documents []string `json:"documents"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
