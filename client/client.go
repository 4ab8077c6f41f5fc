// Package client talks to the remote developer-management API. The remote
// system is the source of truth for developer records; this client only
// memoizes reads for a short time to absorb request bursts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ngonendi/edgestore"
)

const defaultTimeout = 10 * time.Second

// APIError is a failure reported by the remote API. Code and Message carry
// the remote system's own error identifier and description.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: %s (code %s)", e.Message, e.Code)
	}
	return fmt.Sprintf("api error: %s (status %d)", e.Message, e.Status)
}

// NotFound reports whether the failure means the addressed record does not
// exist on the remote system.
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

type Client struct {
	client   *http.Client
	cache    *cache.Cache
	endpoint string
	org      string
	username string
	password string
}

func New(endpoint, org, username, password string) *Client {
	return &Client{
		client:   &http.Client{Timeout: defaultTimeout},
		cache:    cache.New(1*time.Minute, 5*time.Minute),
		endpoint: endpoint,
		org:      org,
		username: username,
		password: password,
	}
}

// developerPayload is the wire form of a developer record. The API keeps
// timestamps as unix milliseconds and attributes as a name/value list.
type developerPayload struct {
	Email          string           `json:"email"`
	DeveloperID    string           `json:"developerId,omitempty"`
	FirstName      string           `json:"firstName,omitempty"`
	LastName       string           `json:"lastName,omitempty"`
	UserName       string           `json:"userName,omitempty"`
	Status         edgestore.Status `json:"status,omitempty"`
	Attributes     []attribute      `json:"attributes,omitempty"`
	CreatedAt      int64            `json:"createdAt,omitempty"`
	LastModifiedAt int64            `json:"lastModifiedAt,omitempty"`
}

type attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type developerList struct {
	Developer []developerPayload `json:"developer"`
}

func toPayload(dev *edgestore.Developer) developerPayload {
	p := developerPayload{
		Email:       edgestore.NormalizeEmail(dev.Email),
		DeveloperID: dev.DeveloperID,
		FirstName:   dev.FirstName,
		LastName:    dev.LastName,
		UserName:    dev.UserName,
		Status:      dev.Status,
	}
	for name, value := range dev.Attributes {
		p.Attributes = append(p.Attributes, attribute{Name: name, Value: value})
	}
	return p
}

func (p developerPayload) toDeveloper() edgestore.Developer {
	dev := edgestore.Developer{
		Email:       edgestore.NormalizeEmail(p.Email),
		DeveloperID: p.DeveloperID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		UserName:    p.UserName,
		Status:      p.Status,
	}
	if len(p.Attributes) > 0 {
		dev.Attributes = make(map[string]string, len(p.Attributes))
		for _, a := range p.Attributes {
			dev.Attributes[a.Name] = a.Value
		}
	}
	if p.CreatedAt > 0 {
		dev.CreatedAt = time.UnixMilli(p.CreatedAt).UTC()
	}
	if p.LastModifiedAt > 0 {
		dev.ModifiedAt = time.UnixMilli(p.LastModifiedAt).UTC()
	}
	return dev
}

func (c *Client) request(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	endpoint := c.endpoint + "/organizations/" + url.PathEscape(c.org) + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return &apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %v", err)
		}
	}
	return nil
}

// Load fetches one developer by email or developer identifier.
func (c *Client) Load(ctx context.Context, id string) (*edgestore.Developer, error) {
	id = edgestore.NormalizeEmail(id)

	if x, found := c.cache.Get("developer:" + id); found {
		dev := x.(edgestore.Developer)
		return &dev, nil
	}

	var payload developerPayload
	err := c.request(ctx, http.MethodGet, "/developers/"+url.PathEscape(id), nil, &payload)
	if err != nil {
		return nil, err
	}

	dev := payload.toDeveloper()
	c.memoize(dev)
	return &dev, nil
}

// LoadMultiple fetches developers for the given ids, keyed by email. Ids
// that do not resolve on the remote system are silently omitted. A nil id
// list loads every developer in the organization.
func (c *Client) LoadMultiple(ctx context.Context, ids []string) (map[string]*edgestore.Developer, error) {
	result := make(map[string]*edgestore.Developer)

	if ids == nil {
		var list developerList
		err := c.request(ctx, http.MethodGet, "/developers?expand=true", nil, &list)
		if err != nil {
			return nil, err
		}
		for _, payload := range list.Developer {
			dev := payload.toDeveloper()
			c.memoize(dev)
			result[dev.Email] = &dev
		}
		return result, nil
	}

	for _, id := range ids {
		dev, err := c.Load(ctx, id)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.NotFound() {
				continue
			}
			return nil, err
		}
		result[dev.Email] = dev
	}
	return result, nil
}

// Create registers a new developer. The remote response is folded back into
// dev so the assigned developer identifier and timestamps become visible.
func (c *Client) Create(ctx context.Context, dev *edgestore.Developer) error {
	var payload developerPayload
	err := c.request(ctx, http.MethodPost, "/developers", toPayload(dev), &payload)
	if err != nil {
		return err
	}
	*dev = mergeRemote(dev, payload)
	c.memoize(*dev)
	return nil
}

// Update replaces the remote record. While an email change is in flight the
// record is addressed by its previous email.
func (c *Client) Update(ctx context.Context, dev *edgestore.Developer) error {
	addr := dev.OriginalEmail
	if addr == "" {
		addr = dev.Email
	}
	c.forget(addr, dev.Email, dev.DeveloperID)

	var payload developerPayload
	err := c.request(ctx, http.MethodPut, "/developers/"+url.PathEscape(addr), toPayload(dev), &payload)
	if err != nil {
		return err
	}
	merged := mergeRemote(dev, payload)
	merged.OriginalEmail = dev.OriginalEmail
	*dev = merged
	c.memoize(*dev)
	return nil
}

// Delete removes the developer addressed by email or developer identifier.
func (c *Client) Delete(ctx context.Context, id string) error {
	id = edgestore.NormalizeEmail(id)
	c.forgetAliases(id)
	return c.request(ctx, http.MethodDelete, "/developers/"+url.PathEscape(id), nil, nil)
}

// SetStatus performs the explicit status-change call. It is a separate API
// operation from update on the remote system.
func (c *Client) SetStatus(ctx context.Context, id string, status edgestore.Status) error {
	id = edgestore.NormalizeEmail(id)
	c.forgetAliases(id)
	path := "/developers/" + url.PathEscape(id) + "?action=" + url.QueryEscape(string(status))
	return c.request(ctx, http.MethodPost, path, nil, nil)
}

// mergeRemote keeps locally-held fields that the remote response does not
// echo back (the owner reference lives only on this side).
func mergeRemote(local *edgestore.Developer, payload developerPayload) edgestore.Developer {
	dev := payload.toDeveloper()
	dev.OwnerID = local.OwnerID
	if dev.Status == "" {
		dev.Status = local.Status
	}
	return dev
}

func (c *Client) memoize(dev edgestore.Developer) {
	c.cache.Set("developer:"+dev.Email, dev, cache.DefaultExpiration)
	if dev.DeveloperID != "" {
		c.cache.Set("developer:"+dev.DeveloperID, dev, cache.DefaultExpiration)
	}
}

func (c *Client) forget(ids ...string) {
	for _, id := range ids {
		if id != "" {
			c.cache.Delete("developer:" + id)
		}
	}
}

// forgetAliases drops the memoized entry for id and, if the entry was
// present, for its other key too.
func (c *Client) forgetAliases(id string) {
	if x, found := c.cache.Get("developer:" + id); found {
		dev := x.(edgestore.Developer)
		c.forget(dev.Email, dev.DeveloperID)
	}
	c.forget(id)
}
