// Package auth computes the per-request signatures the remote services
// require. Two schemes exist: HMAC over canonical headers for the
// assistant websocket endpoints, and MD5-then-HMAC-SHA1 for the
// knowledge-base service.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// SparkSigner builds signed connection URLs for the assistant websocket
// endpoints. Signatures are bound to the current wall clock; the remote
// side rejects them outside a short skew window.
type SparkSigner struct {
	APIKey    string
	APISecret string

	// Now is overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

// SignURL returns endpoint plus authorization, date and host query
// parameters computed from the endpoint's host and path.
func (s *SparkSigner) SignURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	date := now().UTC().Format(http.TimeFormat)

	origin := "host: " + u.Host + "\n" +
		"date: " + date + "\n" +
		"GET " + u.Path + " HTTP/1.1"

	mac := hmac.New(sha256.New, []byte(s.APISecret))
	mac.Write([]byte(origin))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	authOrigin := fmt.Sprintf(
		`api_key="%s", algorithm="hmac-sha256", headers="host date request-line", signature="%s"`,
		s.APIKey, signature)
	authorization := base64.StdEncoding.EncodeToString([]byte(authOrigin))

	q := url.Values{}
	q.Set("authorization", authorization)
	q.Set("date", date)
	q.Set("host", u.Host)

	return endpoint + "?" + q.Encode(), nil
}
