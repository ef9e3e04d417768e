package sharepoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second

	// RequestRate throttles Graph calls per second.
	RequestRate = 10

	// MaxFileSize bounds downloaded files.
	MaxFileSize = 32 << 20

	// maxFolderDepth bounds recursion into library folders.
	maxFolderDepth = 8

	pageSize = 200
)

type drive struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
}

type driveItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
	Size   int64  `json:"size"`
	File   *struct {
		MimeType string `json:"mimeType"`
	} `json:"file,omitempty"`
	Folder *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder,omitempty"`
}

type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// Client calls Microsoft Graph with an app-only token.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Graph client. base, when non-nil, carries both token
// requests and Graph calls.
func NewClient(cfg Config, base *http.Client) *Client {
	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.tokenURL(),
		Scopes:       []string{GraphScope},
	}
	hc := cc.Client(ctx)
	hc.Timeout = DefaultTimeout

	return &Client{
		cfg:        cfg,
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Limit(RequestRate), 1),
	}
}

// ResolveDrive finds the site drive backing the configured library. The
// library matches a drive name or the last segment of its web URL, so
// "Shared Documents" finds the default "Documents" library.
func (c *Client) ResolveDrive(ctx context.Context) (drive, error) {
	endpoint := fmt.Sprintf("%s/sites/%s/drives", c.cfg.graphURL(), c.cfg.SiteID)

	var drives []drive
	for endpoint != "" {
		var p page[drive]
		if err := c.getJSON(ctx, endpoint, &p); err != nil {
			return drive{}, err
		}
		drives = append(drives, p.Value...)
		endpoint = p.NextLink
	}

	want := strings.ToLower(c.cfg.Library)
	for _, d := range drives {
		if strings.ToLower(d.Name) == want {
			return d, nil
		}
	}
	for _, d := range drives {
		if seg, err := url.PathUnescape(lastSegment(d.WebURL)); err == nil && strings.ToLower(seg) == want {
			return d, nil
		}
	}
	return drive{}, fmt.Errorf("%w: %q on site %s", ErrLibraryNotFound, c.cfg.Library, c.cfg.SiteID)
}

// ListFiles returns every file in the drive, descending into folders.
func (c *Client) ListFiles(ctx context.Context, driveID string) ([]driveItem, error) {
	type folder struct {
		endpoint string
		depth    int
	}
	base := c.cfg.graphURL() + "/drives/" + url.PathEscape(driveID)
	queue := []folder{{endpoint: fmt.Sprintf("%s/root/children?$top=%d", base, pageSize)}}

	var files []driveItem
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		endpoint := f.endpoint
		for endpoint != "" {
			var p page[driveItem]
			if err := c.getJSON(ctx, endpoint, &p); err != nil {
				return nil, err
			}
			for _, item := range p.Value {
				switch {
				case item.Folder != nil && f.depth < maxFolderDepth:
					queue = append(queue, folder{
						endpoint: fmt.Sprintf("%s/items/%s/children?$top=%d", base, url.PathEscape(item.ID), pageSize),
						depth:    f.depth + 1,
					})
				case item.File != nil:
					files = append(files, item)
				}
			}
			endpoint = p.NextLink
		}
	}
	return files, nil
}

// Download returns the content of a drive item.
func (c *Client) Download(ctx context.Context, driveID, itemID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/drives/%s/items/%s/content", c.cfg.graphURL(), url.PathEscape(driveID), url.PathEscape(itemID))

	resp, err := c.do(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("sharepoint: read content: %w", err)
	}
	if len(body) > MaxFileSize {
		return nil, fmt.Errorf("sharepoint: item %s exceeds %d bytes", itemID, MaxFileSize)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	resp, err := c.do(ctx, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("sharepoint: decode %s: %w", endpoint, err)
	}
	return nil
}

// do performs a GET and converts failures into tokenError or GraphError.
// The caller closes the body of a successful response.
func (c *Client) do(ctx context.Context, endpoint string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("sharepoint: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, &tokenError{err: re}
		}
		return nil, fmt.Errorf("sharepoint: request %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		ge := &GraphError{StatusCode: resp.StatusCode, URL: endpoint}
		var payload struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			ge.Code = payload.Error.Code
			ge.Message = payload.Error.Message
		}
		return nil, ge
	}
	return resp, nil
}

func lastSegment(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
