package advisor

import (
	"encoding/json"
	"strings"

	"github.com/dmelton/grokswing/internal/models"
)

// ParseAdvice extracts and decodes the JSON document embedded in a
// free-form advisory response. The document is the substring from the
// first '{' to the last '}'; anything around it (prose, markdown fences)
// is ignored. Failures yield a *MalformedResponseError, never a panic.
func ParseAdvice(raw string) (*models.AdviceResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil, &MalformedResponseError{Reason: "no JSON object found in response text"}
	}

	var result models.AdviceResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &result); err != nil {
		return nil, &MalformedResponseError{Reason: "decoding embedded JSON", Err: err}
	}
	return &result, nil
}
