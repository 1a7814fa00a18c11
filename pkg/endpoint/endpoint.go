// Package endpoint builds the upstream URL for a translated request, the
// way the teacher SDK's provider packages each centralize their own
// endpoint construction rather than scattering string formatting through
// the caller.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	opGenerate       = "generateContent"
	opStreamGenerate = "streamGenerateContent"
)

// Build constructs the upstream call URL:
// <baseURL>/models/<model>:<op>?key=<apiKey>[&alt=sse]
//
// model falls back to defaultModel when empty. baseURL's trailing slash,
// if any, is trimmed before joining.
func Build(baseURL, apiKey, model, defaultModel string, streaming bool) string {
	if model == "" {
		model = defaultModel
	}

	op := opGenerate
	if streaming {
		op = opStreamGenerate
	}

	base := strings.TrimSuffix(baseURL, "/")
	query := url.Values{}
	query.Set("key", apiKey)
	if streaming {
		query.Set("alt", "sse")
	}

	return fmt.Sprintf("%s/models/%s:%s?%s", base, model, op, query.Encode())
}
