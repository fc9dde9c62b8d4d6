package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/halcyonforge/cutplane/util/log"
)

// recentSplitsLimit bounds the fallback listing; the owning upload is
// expected to be near the top when the fallback fires at all.
const recentSplitsLimit = 20

// Client talks JSON over HTTP to the crop, signing, and detection
// collaborators. It implements CropGenerator, AssetSigner, SplitReader
// and SectionDetector.
type Client struct {
	cropBase   string
	signBase   string
	detectBase string

	httpClient *http.Client
	limiter    *rate.Limiter
	token      string
	timeout    time.Duration
}

// ClientOptions configures a collaborator Client.
type ClientOptions struct {
	CropBaseURL   string
	SignBaseURL   string
	DetectBaseURL string
	HTTPClient    *http.Client
	Token         string

	// RequestTimeout bounds each call; failures fall into the caller's
	// skip path rather than blocking a gallery build.
	RequestTimeout time.Duration

	// RequestsPerSecond throttles outbound calls. Zero disables the limiter.
	RequestsPerSecond float64
}

// NewClient creates a collaborator client.
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), int(opts.RequestsPerSecond)+1)
	}
	return &Client{
		cropBase:   opts.CropBaseURL,
		signBase:   opts.SignBaseURL,
		detectBase: opts.DetectBaseURL,
		httpClient: httpClient,
		limiter:    limiter,
		token:      opts.Token,
		timeout:    timeout,
	}
}

// GenerateCrops implements CropGenerator.
func (c *Client) GenerateCrops(ctx context.Context, splitID string, sections []CropRequest, force bool) ([]CropAsset, error) {
	reqBody := struct {
		Sections []CropRequest `json:"sections"`
		Force    bool          `json:"force,omitempty"`
	}{Sections: sections, Force: force}

	var respBody struct {
		Assets []CropAsset `json:"assets"`
	}

	endpoint := fmt.Sprintf("%s/splits/%s/crops", c.cropBase, url.PathEscape(splitID))
	if err := c.doJSON(ctx, http.MethodPost, endpoint, reqBody, &respBody); err != nil {
		return nil, fmt.Errorf("generating crops for split %s: %w", splitID, err)
	}
	return respBody.Assets, nil
}

// SignURL implements AssetSigner.
func (c *Client) SignURL(ctx context.Context, key string, ttl time.Duration) (SignedURL, error) {
	u, err := url.Parse(c.signBase + "/assets/sign")
	if err != nil {
		return SignedURL{}, fmt.Errorf("invalid signer URL: %w", err)
	}
	q := u.Query()
	q.Set("key", key)
	q.Set("ttl_ms", strconv.FormatInt(ttl.Milliseconds(), 10))
	u.RawQuery = q.Encode()

	var signed SignedURL
	if err := c.doJSON(ctx, http.MethodGet, u.String(), nil, &signed); err != nil {
		return SignedURL{}, fmt.Errorf("signing asset %s: %w", key, err)
	}
	if signed.URL == "" {
		return SignedURL{}, fmt.Errorf("signing asset %s: empty URL in response", key)
	}
	return signed, nil
}

// GetSplit implements SplitReader.
func (c *Client) GetSplit(ctx context.Context, id string) (Split, error) {
	var split Split
	endpoint := fmt.Sprintf("%s/splits/%s", c.cropBase, url.PathEscape(id))
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &split); err != nil {
		return Split{}, fmt.Errorf("reading split %s: %w", id, err)
	}
	return split, nil
}

// FindSplitForUpload implements the recent-splits fallback. The listing
// endpoint has no upload filter, so matching happens client-side.
func (c *Client) FindSplitForUpload(ctx context.Context, uploadID string) (Split, error) {
	var respBody struct {
		Splits []Split `json:"splits"`
	}
	endpoint := fmt.Sprintf("%s/splits/recent?limit=%d", c.cropBase, recentSplitsLimit)
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &respBody); err != nil {
		return Split{}, fmt.Errorf("listing recent splits: %w", err)
	}

	for _, split := range respBody.Splits {
		if split.UploadID == uploadID {
			return split, nil
		}
	}
	return Split{}, fmt.Errorf("no recent split found for upload %s", uploadID)
}

// DetectSections implements SectionDetector.
func (c *Client) DetectSections(ctx context.Context, imageRef string) ([]Section, error) {
	reqBody := struct {
		ImageRef string `json:"image_ref"`
	}{ImageRef: imageRef}

	var respBody struct {
		Sections []Section `json:"sections"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.detectBase+"/detect", reqBody, &respBody); err != nil {
		return nil, fmt.Errorf("detecting sections for %s: %w", imageRef, err)
	}

	for i := range respBody.Sections {
		respBody.Sections[i].Type = respBody.Sections[i].Type.Normalize()
	}
	return respBody.Sections, nil
}

// doJSON performs one collaborator call: rate limit, bounded timeout,
// bearer auth, status check, decode.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Printf("Collaborator error from %s: %s", endpoint, string(respBody))
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
