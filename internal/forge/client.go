// Package forge talks to the model conversion service: it resolves uploaded
// objects to derivative URNs, reads derivative manifests and downloads
// derivative files.
package forge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"derivdiff/internal/difference"
)

// DefaultBaseURL is the public service endpoint.
const DefaultBaseURL = "https://developer.api.autodesk.com"

// Scopes requested for two-legged access.
var Scopes = []string{"data:read", "viewables:read"}

// Credentials identify the calling application.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Client is a blocking client of the conversion service.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL string
	base    *http.Client
}

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(o *clientOptions) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the transport used for both token and API requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.base = c }
}

// NewClient returns a client that authenticates with the client credentials
// grant. Tokens are fetched lazily and refreshed when they expire.
func NewClient(ctx context.Context, creds Credentials, opts ...Option) *Client {
	o := clientOptions{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.base)
	}
	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     o.baseURL + "/authentication/v2/token",
		Scopes:       Scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return &Client{baseURL: o.baseURL, http: cfg.Client(ctx)}
}

// URN encodes an object id the way the derivative endpoints expect it:
// unpadded URL-safe base64.
func URN(objectID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(objectID))
}

// ObjectDetails describes an uploaded object.
type ObjectDetails struct {
	BucketKey string `json:"bucketKey"`
	ObjectKey string `json:"objectKey"`
	ObjectID  string `json:"objectId"`
	SHA1      string `json:"sha1,omitempty"`
	Size      int64  `json:"size"`
	Location  string `json:"location,omitempty"`
}

// ObjectDetails fetches the details of bucket/object.
func (c *Client) ObjectDetails(ctx context.Context, bucket, object string) (*ObjectDetails, error) {
	u := fmt.Sprintf("%s/oss/v2/buckets/%s/objects/%s/details", c.baseURL, url.PathEscape(bucket), url.PathEscape(object))
	body, err := c.get(ctx, "object details", u)
	if err != nil {
		return nil, err
	}
	var d ObjectDetails
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, difference.Transport("object details", u, errors.Wrap(err, "decode"))
	}
	return &d, nil
}

// Manifest fetches the raw derivative manifest of urn.
func (c *Client) Manifest(ctx context.Context, urn string) ([]byte, error) {
	return c.get(ctx, "manifest", c.manifestURL(urn))
}

// Derivative downloads one derivative file identified by its derivative URN.
func (c *Client) Derivative(ctx context.Context, urn, derivativeURN string) ([]byte, error) {
	return c.get(ctx, "derivative", c.manifestURL(urn)+"/"+url.PathEscape(derivativeURN))
}

func (c *Client) manifestURL(urn string) string {
	return fmt.Sprintf("%s/modelderivative/v2/designdata/%s/manifest", c.baseURL, url.PathEscape(urn))
}

func (c *Client) get(ctx context.Context, op, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, difference.Transport(op, u, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, difference.Transport(op, u, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, difference.Transport(op, u, errors.Wrap(err, "read body"))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, difference.Transport(op, u, errors.Errorf("%s: %s", resp.Status, snippet(body)))
	}
	return body, nil
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
