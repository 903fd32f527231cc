package client

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

	"github.com/daniacca/graphitecore/internal/config"
	"github.com/daniacca/graphitecore/internal/reactor"
)

// ReactorBuilder provides a fluent API for declaring a reactor.
// Use it to describe the rods, pipe, consoles and notification routing a
// reactor starts with.
type ReactorBuilder struct {
	cfg config.ReactorConfig
}

// NewReactor creates a new reactor builder with the given ID.
// The ID must be unique within the plant.
func NewReactor(id string) *ReactorBuilder {
	return &ReactorBuilder{cfg: config.ReactorConfig{ID: id}}
}

// Seed fixes the random source of the reactor. Zero picks a time-based seed.
func (rb *ReactorBuilder) Seed(seed int64) *ReactorBuilder {
	rb.cfg.Seed = seed
	return rb
}

// At places the reactor in the plant. Explosions are centred on it.
func (rb *ReactorBuilder) At(x, y, z int) *ReactorBuilder {
	rb.cfg.Position = reactor.Position{X: x, Y: y, Z: z}
	return rb
}

// Coolant overrides the plant's coolant loop for this reactor.
func (rb *ReactorBuilder) Coolant(cc config.CoolantConfig) *ReactorBuilder {
	rb.cfg.Coolant = &cc
	return rb
}

// ControlRodDepth sets the initial insertion depth of the control rods.
func (rb *ReactorBuilder) ControlRodDepth(depth float64) *ReactorBuilder {
	rb.cfg.ControlRodDepth = depth
	return rb
}

// Console connects a control console. Starter rods need at least one.
func (rb *ReactorBuilder) Console(ids ...string) *ReactorBuilder {
	rb.cfg.Consoles = append(rb.cfg.Consoles, ids...)
	return rb
}

// Rod adds a rod from the catalog to the first empty slot.
func (rb *ReactorBuilder) Rod(kind reactor.RodKind, id string) *ReactorBuilder {
	rb.cfg.Rods = append(rb.cfg.Rods, config.RodConfig{Kind: kind, ID: id})
	return rb
}

// RodAt adds a rod from the catalog to a specific slot.
func (rb *ReactorBuilder) RodAt(slot int, kind reactor.RodKind, id string) *ReactorBuilder {
	rb.cfg.Rods = append(rb.cfg.Rods, config.RodConfig{Kind: kind, ID: id, Slot: &slot})
	return rb
}

// Pipe fills the pipe slot.
func (rb *ReactorBuilder) Pipe(id string) *ReactorBuilder {
	rb.cfg.Pipe = id
	return rb
}

// Autostart schedules the reactor as soon as it is created.
func (rb *ReactorBuilder) Autostart() *ReactorBuilder {
	rb.cfg.Autostart = true
	return rb
}

// Notify configures which events of the reactor reach which notifiers.
func (rb *ReactorBuilder) Notify(nb *NotificationBuilder) *ReactorBuilder {
	rb.cfg.Notifications = nb.Build()
	return rb
}

// Build converts the builder to a ReactorConfig.
func (rb *ReactorBuilder) Build() config.ReactorConfig {
	return rb.cfg
}

// NotificationBuilder provides a fluent API for building notification
// configurations. Events are delivered through webhooks or the WebSocket
// stream.
type NotificationBuilder struct {
	enabled   bool
	notifiers []string
	kinds     []reactor.EventKind
}

// NewNotification creates a new notification builder with notifications
// enabled by default.
func NewNotification() *NotificationBuilder {
	return &NotificationBuilder{enabled: true}
}

// Enabled sets whether notifications are enabled for the reactor.
func (nb *NotificationBuilder) Enabled(enabled bool) *NotificationBuilder {
	nb.enabled = enabled
	return nb
}

// Notifiers adds notifier IDs. With none, every registered notifier is used.
func (nb *NotificationBuilder) Notifiers(ids ...string) *NotificationBuilder {
	nb.notifiers = append(nb.notifiers, ids...)
	return nb
}

// Kinds restricts delivery to the given event kinds. With none, every kind
// is delivered.
func (nb *NotificationBuilder) Kinds(kinds ...reactor.EventKind) *NotificationBuilder {
	nb.kinds = append(nb.kinds, kinds...)
	return nb
}

// Build converts the builder to a NotificationConfig.
func (nb *NotificationBuilder) Build() reactor.NotificationConfig {
	return reactor.NotificationConfig{
		Enabled:   nb.enabled,
		Notifiers: nb.notifiers,
		Kinds:     nb.kinds,
	}
}

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to a reactord server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL (e.g. "http://localhost:8080").
// A nil httpClient uses a client with a 10s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// do sends body as JSON and decodes a JSON answer into out when out is non-nil.
func (c *Client) do(ctx context.Context, method string, query url.Values, body, out any, path ...string) error {
	u, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CreateReactor declares a new reactor on the server.
func (c *Client) CreateReactor(ctx context.Context, rb *ReactorBuilder) (reactor.Status, error) {
	var st reactor.Status
	err := c.do(ctx, http.MethodPost, nil, rb.Build(), &st, "reactors")
	return st, err
}

// ListReactors returns the IDs of every reactor on the server.
func (c *Client) ListReactors(ctx context.Context) ([]string, error) {
	var out struct {
		Reactors []string `json:"reactors"`
	}
	err := c.do(ctx, http.MethodGet, nil, nil, &out, "reactors")
	return out.Reactors, err
}

// Status returns the current state of a reactor.
func (c *Client) Status(ctx context.Context, id string) (reactor.Status, error) {
	var st reactor.Status
	err := c.do(ctx, http.MethodGet, nil, nil, &st, "reactors", id)
	return st, err
}

// DeleteReactor tears the reactor down and removes it.
func (c *Client) DeleteReactor(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, nil, nil, nil, "reactors", id)
}

// Tick runs one tick of the reactor and returns its report.
func (c *Client) Tick(ctx context.Context, id string) (reactor.TickReport, error) {
	var report reactor.TickReport
	err := c.do(ctx, http.MethodPost, nil, nil, &report, "reactors", id, "tick")
	return report, err
}

// Start schedules the reactor. A zero interval uses the server's default.
func (c *Client) Start(ctx context.Context, id string, interval time.Duration) error {
	var q url.Values
	if interval > 0 {
		q = url.Values{"interval": {strconv.FormatInt(interval.Milliseconds(), 10)}}
	}
	return c.do(ctx, http.MethodPost, q, nil, nil, "reactors", id, "start")
}

// Stop unschedules the reactor.
func (c *Client) Stop(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, nil, nil, nil, "reactors", id, "stop")
}

// RodPlacement is a rod and the slot it occupies.
type RodPlacement struct {
	Slot int          `json:"slot"`
	Rod  *reactor.Rod `json:"rod"`
}

// InsertRod inserts a catalog rod. A negative slot takes the first empty one.
func (c *Client) InsertRod(ctx context.Context, id string, kind reactor.RodKind, rodID string, slot int) (RodPlacement, error) {
	body := struct {
		Kind reactor.RodKind `json:"kind"`
		ID   string          `json:"id"`
		Slot *int            `json:"slot,omitempty"`
	}{Kind: kind, ID: rodID}
	if slot >= 0 {
		body.Slot = &slot
	}
	var out RodPlacement
	err := c.do(ctx, http.MethodPost, nil, body, &out, "reactors", id, "rods")
	return out, err
}

// RemoveRod takes the rod out of slot.
func (c *Client) RemoveRod(ctx context.Context, id string, slot int) (RodPlacement, error) {
	var out RodPlacement
	err := c.do(ctx, http.MethodDelete, nil, nil, &out, "reactors", id, "rods", strconv.Itoa(slot))
	return out, err
}

// PullRod removes the rod in the highest occupied slot.
func (c *Client) PullRod(ctx context.Context, id string) (RodPlacement, error) {
	var out RodPlacement
	err := c.do(ctx, http.MethodPost, nil, nil, &out, "reactors", id, "rods", "pull")
	return out, err
}

// InsertPipe fills the pipe slot.
func (c *Client) InsertPipe(ctx context.Context, id, pipeID string) error {
	return c.do(ctx, http.MethodPost, nil, reactor.Pipe{ID: pipeID}, nil, "reactors", id, "pipe")
}

// RemovePipe empties the pipe slot and returns the pipe.
func (c *Client) RemovePipe(ctx context.Context, id string) (reactor.Pipe, error) {
	var p reactor.Pipe
	err := c.do(ctx, http.MethodDelete, nil, nil, &p, "reactors", id, "pipe")
	return p, err
}

// SetControlRodDepth moves the control rods and returns the applied depth.
func (c *Client) SetControlRodDepth(ctx context.Context, id string, depth float64) (float64, error) {
	var out struct {
		Depth float64 `json:"depth"`
	}
	err := c.do(ctx, http.MethodPut, nil, map[string]float64{"depth": depth}, &out, "reactors", id, "control-rods")
	return out.Depth, err
}

// Scram drives the control rods fully in.
func (c *Client) Scram(ctx context.Context, id string) (reactor.Status, error) {
	return c.lifecycle(ctx, id, "scram")
}

// Deconstruct welds apart an intact, empty reactor.
func (c *Client) Deconstruct(ctx context.Context, id string) (reactor.Status, error) {
	return c.lifecycle(ctx, id, "deconstruct")
}

// Demolish breaks a melted reactor apart.
func (c *Client) Demolish(ctx context.Context, id string) (reactor.Status, error) {
	return c.lifecycle(ctx, id, "demolish")
}

func (c *Client) lifecycle(ctx context.Context, id, op string) (reactor.Status, error) {
	var st reactor.Status
	err := c.do(ctx, http.MethodPost, nil, nil, &st, "reactors", id, op)
	return st, err
}

// ConnectConsole wires a control console to the reactor and returns how many
// are connected.
func (c *Client) ConnectConsole(ctx context.Context, id, consoleID string) (int, error) {
	var out struct {
		Connected int `json:"connected"`
	}
	err := c.do(ctx, http.MethodPost, nil, map[string]string{"id": consoleID}, &out, "reactors", id, "consoles")
	return out.Connected, err
}

// DisconnectConsole unwires a control console.
func (c *Client) DisconnectConsole(ctx context.Context, id, consoleID string) (int, error) {
	var out struct {
		Connected int `json:"connected"`
	}
	err := c.do(ctx, http.MethodDelete, nil, nil, &out, "reactors", id, "consoles", consoleID)
	return out.Connected, err
}

// SetNotifications replaces the reactor's notification routing.
func (c *Client) SetNotifications(ctx context.Context, id string, nb *NotificationBuilder) error {
	return c.do(ctx, http.MethodPut, nil, nb.Build(), nil, "reactors", id, "notifications")
}

// RegisterWebhook registers a webhook notifier. An empty secret sends
// unsigned payloads.
func (c *Client) RegisterWebhook(ctx context.Context, notifierID, hookURL, secret string) error {
	nc := config.NotifierConfig{ID: notifierID, Type: config.NotifierWebhook, URL: hookURL, Secret: secret}
	return c.do(ctx, http.MethodPost, nil, nc, nil, "notifiers")
}

// UnregisterNotifier removes a notifier.
func (c *Client) UnregisterNotifier(ctx context.Context, notifierID string) error {
	return c.do(ctx, http.MethodDelete, nil, nil, nil, "notifiers", notifierID)
}

// SaveSnapshot stores a snapshot of the reactor and returns its tick.
func (c *Client) SaveSnapshot(ctx context.Context, id string) (int64, error) {
	var out struct {
		Tick int64 `json:"tick"`
	}
	err := c.do(ctx, http.MethodPost, nil, nil, &out, "reactors", id, "snapshot")
	return out.Tick, err
}

// Snapshot returns the latest stored snapshot of the reactor.
func (c *Client) Snapshot(ctx context.Context, id string) (reactor.Snapshot, error) {
	var snap reactor.Snapshot
	err := c.do(ctx, http.MethodGet, nil, nil, &snap, "reactors", id, "snapshot")
	return snap, err
}

// Restore rebuilds a reactor from its latest stored snapshot.
func (c *Client) Restore(ctx context.Context, id string) (reactor.Status, error) {
	var st reactor.Status
	err := c.do(ctx, http.MethodPost, nil, nil, &st, "snapshots", id, "restore")
	return st, err
}
