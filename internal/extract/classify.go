package extract

import (
	"fmt"
	"strings"
)

// Classifier decides whether a line of worker output carries a URL.
type Classifier interface {
	Classify(line string) (string, bool)
}

// MarkerClassifier finds absolute URLs (starting at http:// or https://
// and ending at the next whitespace) and returns the first one that names
// a YouTube video. Other URLs on the line are skipped.
type MarkerClassifier struct{}

// Classify implements Classifier.
func (MarkerClassifier) Classify(line string) (string, bool) {
	for rest := line; ; {
		start := -1
		for _, m := range []string{"https://", "http://"} {
			if i := strings.Index(rest, m); i >= 0 && (start < 0 || i < start) {
				start = i
			}
		}
		if start < 0 {
			return "", false
		}
		rest = rest[start:]
		candidate := rest
		if end := strings.IndexAny(rest, " \t\r\n"); end >= 0 {
			candidate = rest[:end]
			rest = rest[end:]
		} else {
			rest = ""
		}
		if _, ok := ExtractID(candidate); ok {
			return candidate, true
		}
		if rest == "" {
			return "", false
		}
	}
}

// PrefixClassifier only accepts lines that begin with Prefix (after leading
// whitespace) and returns the trimmed remainder.
type PrefixClassifier struct {
	Prefix string
}

// Classify implements Classifier.
func (p PrefixClassifier) Classify(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if p.Prefix == "" || !strings.HasPrefix(trimmed, p.Prefix) {
		return "", false
	}
	return MarkerClassifier{}.Classify(strings.TrimPrefix(trimmed, p.Prefix))
}

// Classifier names accepted in configuration.
const (
	ClassifierMarker   = "marker"
	ClassifierDetected = "detected"
)

// DetectedPrefix is what cmd/scanner prints in front of each URL.
const DetectedPrefix = "DETECTED:"

// NewClassifier returns the classifier registered under name.
func NewClassifier(name string) (Classifier, error) {
	switch name {
	case "", ClassifierMarker:
		return MarkerClassifier{}, nil
	case ClassifierDetected:
		return PrefixClassifier{Prefix: DetectedPrefix}, nil
	default:
		return nil, fmt.Errorf("extract: unknown classifier %q", name)
	}
}
