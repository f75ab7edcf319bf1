package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateEndpointURL checks that endpoint is an absolute http or https URL
// with a host. Paths such as /v1 are allowed.
func ValidateEndpointURL(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("endpoint URL cannot be empty")
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL must use http or https scheme, got: %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}
