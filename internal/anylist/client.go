// Package anylist implements the AnyList side of the synchronizer: an
// HTTP client for the AnyList API with token auth, a credential cache, a
// cached list snapshot, and a WebSocket push listener that invalidates the
// cache when the account changes elsewhere.
//
// The AnyList wire payloads are carried as opaque JSON; only identifier,
// name and checked are interpreted.
package anylist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alexa2anylist/alexa2anylist/internal/types"
)

const (
	// DefaultBaseURL is the AnyList API host.
	DefaultBaseURL = "https://www.anylist.com"

	apiVersionHeader = "X-AnyLeaf-API-Version"
	apiVersion       = "3"
	clientIDHeader   = "X-AnyLeaf-Client-Identifier"
)

// Options configures a Client.
type Options struct {
	Email    string
	Password string
	ListName string

	// BaseURL overrides the API host (tests). Empty means DefaultBaseURL.
	BaseURL string
	// CredentialsPath is the token cache file; empty disables caching.
	CredentialsPath string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the AnyList API on behalf of one account and one list.
// It satisfies the sync engine's primary-client contract: Snapshot serves a
// cached view that the push listener invalidates, and every mutator retries
// once after a token refresh before surfacing a failure.
type Client struct {
	email    string
	password string
	listName string

	baseURL   string
	credsPath string
	http      *http.Client
	log       *slog.Logger

	mu           sync.Mutex // guards tokens and credential cache writes
	clientID     string
	accessToken  string
	refreshToken string

	stale  atomic.Bool // set by the push listener, cleared by Snapshot
	listID string
	userID string
	items  types.List
}

// New creates a client. Call Login before anything else.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		email:     opts.Email,
		password:  opts.Password,
		listName:  opts.ListName,
		baseURL:   strings.TrimRight(baseURL, "/"),
		credsPath: opts.CredentialsPath,
		http:      httpClient,
		log:       logger,
		clientID:  uuid.NewString(),
	}
}

// Login authenticates (cached tokens first, password second) and resolves
// the configured list. It must succeed before the sync loop starts.
func (c *Client) Login(ctx context.Context) error {
	creds, err := loadCredentials(c.credentialsPath())
	if err != nil {
		c.log.Warn("Credential cache unreadable, falling back to password login", "error", err)
	}
	if creds != nil {
		c.mu.Lock()
		if creds.ClientID != "" {
			c.clientID = creds.ClientID
		}
		c.accessToken = creds.AccessToken
		c.refreshToken = creds.RefreshToken
		c.mu.Unlock()
		c.log.Info("Loaded credentials from cache")
	} else {
		if err := c.fetchTokens(ctx); err != nil {
			return err
		}
	}

	if err := c.refresh(ctx); err != nil {
		return fmt.Errorf("fetching user data: %w", err)
	}
	if c.listID == "" {
		return fmt.Errorf("list %q not found on account", c.listName)
	}
	c.log.Info("Logged in to AnyList", "list", c.listName, "items", len(c.items))
	return nil
}

// Invalidate marks the cached snapshot stale; the next Snapshot refetches.
// Safe for concurrent use; this is the only cross-task signal.
func (c *Client) Invalidate() {
	c.stale.Store(true)
}

// Snapshot returns the current list view, refetching when the push listener
// has signaled a change or no view has been fetched yet.
func (c *Client) Snapshot(ctx context.Context) (types.List, error) {
	if c.stale.Swap(false) || c.items == nil {
		if err := c.refresh(ctx); err != nil {
			c.stale.Store(true)
			return nil, err
		}
	}
	out := make(types.List, len(c.items))
	copy(out, c.items)
	return out, nil
}

// Add creates a new unchecked item and returns it.
func (c *Client) Add(ctx context.Context, name string) (types.Item, error) {
	it := types.Item{ID: uuid.NewString(), Name: name}
	op := c.newOperation("add-shopping-list-item", it.ID)
	op.Item = wireItemFrom(it, c.listID, c.userID)
	if err := c.execute(ctx, op); err != nil {
		return types.Item{}, fmt.Errorf("adding %q: %w", name, err)
	}
	c.items = append(c.items, it)
	c.log.Debug("Added item", "name", name, "id", it.ID)
	return it, nil
}

// Remove deletes the item with the given id.
func (c *Client) Remove(ctx context.Context, id string) error {
	it, ok := c.items.ByID(id)
	if !ok {
		return fmt.Errorf("removing item %s: not in current view", id)
	}
	op := c.newOperation("remove-shopping-list-item", id)
	op.Item = wireItemFrom(it, c.listID, c.userID)
	if err := c.execute(ctx, op); err != nil {
		return fmt.Errorf("removing %q: %w", it.Name, err)
	}
	out := c.items[:0]
	for _, existing := range c.items {
		if existing.ID != id {
			out = append(out, existing)
		}
	}
	c.items = out
	c.log.Debug("Removed item", "name", it.Name, "id", id)
	return nil
}

// Check marks the item done.
func (c *Client) Check(ctx context.Context, id string) error {
	return c.setChecked(ctx, id, true)
}

// Uncheck marks the item active again.
func (c *Client) Uncheck(ctx context.Context, id string) error {
	return c.setChecked(ctx, id, false)
}

// Rename changes the item's name, id stable.
func (c *Client) Rename(ctx context.Context, id, name string) error {
	op := c.newOperation("set-list-item-name", id)
	op.UpdatedValue = name
	if err := c.execute(ctx, op); err != nil {
		return fmt.Errorf("renaming item %s to %q: %w", id, name, err)
	}
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Name = name
		}
	}
	c.log.Debug("Renamed item", "id", id, "name", name)
	return nil
}

// AddOrUncheck creates the item unchecked when absent, unchecks it when
// present and checked, and no-ops when present and active.
func (c *Client) AddOrUncheck(ctx context.Context, name string) (types.Item, error) {
	it, ok := c.items.ByName(name)
	if !ok {
		return c.Add(ctx, name)
	}
	if it.Checked {
		if err := c.Uncheck(ctx, it.ID); err != nil {
			return types.Item{}, err
		}
		it.Checked = false
	}
	return it, nil
}

func (c *Client) setChecked(ctx context.Context, id string, checked bool) error {
	op := c.newOperation("set-list-item-checked", id)
	if checked {
		op.UpdatedValue = "y"
	} else {
		op.UpdatedValue = "n"
	}
	if err := c.execute(ctx, op); err != nil {
		return fmt.Errorf("setting checked=%v on item %s: %w", checked, id, err)
	}
	c.items.SetChecked(id, checked)
	c.log.Debug("Set checked", "id", id, "checked", checked)
	return nil
}

// refresh refetches the user data and rebuilds the item view.
func (c *Client) refresh(ctx context.Context) error {
	resp, err := c.postWithReauth(ctx, "/data/user-data/get", nil, "")
	if err != nil {
		return err
	}

	var data userDataResponse
	if err := json.Unmarshal(resp, &data); err != nil {
		return fmt.Errorf("parsing user data: %w", err)
	}

	for _, l := range data.ShoppingListsResponse.NewLists {
		if l.Name != c.listName {
			continue
		}
		c.listID = l.Identifier
		c.userID = l.Creator
		items := make(types.List, 0, len(l.Items))
		for _, wi := range l.Items {
			items = append(items, wi.toItem())
		}
		c.items = items
		return nil
	}
	return fmt.Errorf("list %q not found on account", c.listName)
}

// execute posts a single list operation through the reauth-retry path.
func (c *Client) execute(ctx context.Context, op listOperation) error {
	raw, err := json.Marshal(operationList{Operations: []listOperation{op}})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	_, err = c.postWithReauth(ctx, "/data/shopping-lists/update", raw, "application/json")
	return err
}

// fetchTokens performs a password login.
func (c *Client) fetchTokens(ctx context.Context) error {
	form := url.Values{"email": {c.email}, "password": {c.password}}
	resp, err := c.postForm(ctx, "/auth/token", form, false)
	if err != nil {
		return fmt.Errorf("fetching tokens: %w", err)
	}
	if err := c.storeTokens(resp, "fetch"); err != nil {
		return err
	}
	c.log.Info("Fetched tokens")
	return nil
}

// refreshTokens exchanges the refresh token, falling back to a password
// login when the refresh token itself is rejected.
func (c *Client) refreshTokens(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()

	form := url.Values{"refresh_token": {refresh}}
	resp, err := c.postForm(ctx, "/auth/token/refresh", form, false)
	if err != nil {
		c.log.Warn("Token refresh failed, retrying password login", "error", err)
		return c.fetchTokens(ctx)
	}
	if err := c.storeTokens(resp, "refresh"); err != nil {
		return err
	}
	c.log.Info("Refreshed tokens")
	return nil
}

func (c *Client) storeTokens(resp []byte, method string) error {
	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(resp, &tokens); err != nil {
		return fmt.Errorf("parsing token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}

	c.mu.Lock()
	c.accessToken = tokens.AccessToken
	c.refreshToken = tokens.RefreshToken
	creds := credentials{
		ClientID:     c.clientID,
		AccessToken:  c.accessToken,
		RefreshToken: c.refreshToken,
	}
	c.mu.Unlock()

	if path := c.credentialsPath(); path != "" {
		if err := saveCredentials(path, creds, method); err != nil {
			c.log.Warn("Saving credential cache failed", "error", err)
		}
	}
	return nil
}

func (c *Client) credentialsPath() string {
	return c.credsPath
}

// postWithReauth sends an authenticated POST, retrying once after a token
// refresh when the first attempt fails. Every authenticated call goes
// through here, so an expired access token recovers whether it surfaces on
// a mutation or on a user-data fetch. A second failure is surfaced and
// fails the cycle.
func (c *Client) postWithReauth(ctx context.Context, path string, raw []byte, contentType string) ([]byte, error) {
	resp, err := c.do(ctx, path, bytes.NewReader(raw), contentType, true)
	if err == nil {
		return resp, nil
	}
	c.log.Warn("AnyList request failed, refreshing tokens and retrying", "path", path, "error", err)
	if err := c.refreshTokens(ctx); err != nil {
		return nil, err
	}
	return c.do(ctx, path, bytes.NewReader(raw), contentType, true)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, auth bool) ([]byte, error) {
	return c.do(ctx, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", auth)
}

func (c *Client) do(ctx context.Context, path string, body io.Reader, contentType string, auth bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set(apiVersionHeader, apiVersion)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth {
		c.mu.Lock()
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set(clientIDHeader, c.clientID)
		c.mu.Unlock()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("POST %s: reading response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, truncate(raw, 200))
	}
	return raw, nil
}

func (c *Client) newOperation(handlerID, itemID string) listOperation {
	return listOperation{
		ListID:     c.listID,
		ListItemID: itemID,
		Metadata: operationMetadata{
			OperationID: uuid.NewString(),
			HandlerID:   handlerID,
			UserID:      c.userID,
		},
	}
}

func truncate(raw []byte, n int) string {
	s := string(raw)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
