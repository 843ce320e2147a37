package http

import (
	"fmt"
	"net/url"
	"path"
)

// BuildURL joins path onto baseURL (keeping any path prefix of baseURL) and
// sets queryParams.
func BuildURL(baseURL, p string, queryParams map[string]string) (string, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("error parsing base URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("base URL must be absolute: %q", baseURL)
	}

	parsedURL.Path = path.Join("/", parsedURL.Path, p)

	if len(queryParams) > 0 {
		q := url.Values{}
		for key, value := range queryParams {
			q.Set(key, value)
		}
		parsedURL.RawQuery = q.Encode()
	}

	return parsedURL.String(), nil
}
