package auth

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DocSigner signs knowledge-base requests: MD5 of appID+timestamp, then
// HMAC-SHA1 of that checksum with the API secret, base64-encoded. REST
// calls carry the signature in headers, the streaming search carries it
// in query parameters.
type DocSigner struct {
	AppID     string
	APISecret string

	Now func() time.Time
}

// Signature computes the signature for the given decimal Unix timestamp.
func (s *DocSigner) Signature(timestamp string) string {
	sum := md5.Sum([]byte(s.AppID + timestamp))
	checksum := hex.EncodeToString(sum[:])

	mac := hmac.New(sha1.New, []byte(s.APISecret))
	mac.Write([]byte(checksum))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Timestamp returns the current decimal Unix timestamp.
func (s *DocSigner) Timestamp() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return strconv.FormatInt(now().Unix(), 10)
}

// SetHeaders stamps appId, timestamp and signature headers on a REST
// request.
func (s *DocSigner) SetHeaders(h http.Header) {
	ts := s.Timestamp()
	h.Set("appId", s.AppID)
	h.Set("timestamp", ts)
	h.Set("signature", s.Signature(ts))
}

// SignURL appends appId, timestamp and signature query parameters for
// the streaming search endpoint.
func (s *DocSigner) SignURL(endpoint string) string {
	ts := s.Timestamp()
	q := url.Values{}
	q.Set("appId", s.AppID)
	q.Set("timestamp", ts)
	q.Set("signature", s.Signature(ts))
	return endpoint + "?" + q.Encode()
}
