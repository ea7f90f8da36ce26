package analytics

import "strings"

// Substrings the extraction pipeline writes into the client name field when
// it could not read the document.
var extractionFailureMarkers = []string{
	"conversion alternative",
	"document pdf",
	"non extrait",
	"pdf - conversion",
	"erreur conversion",
	"échec extraction",
}

// IsExtractionFailureMarker reports whether text is a diagnostic placeholder
// rather than a real customer name. Matching is case-insensitive on substrings.
func IsExtractionFailureMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range extractionFailureMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
