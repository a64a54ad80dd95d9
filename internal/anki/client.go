// Package anki pushes card drafts into Anki through the AnkiConnect add-on.
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/TobiSchelling/ankiforge/internal/apperr"
	"github.com/TobiSchelling/ankiforge/internal/trace"
)

const (
	DefaultURL = "http://127.0.0.1:8765"
	apiVersion = 6

	previewLimit = 200
)

// Client is an AnkiConnect JSON-RPC client.
type Client struct {
	URL    string
	key    string
	client *http.Client
}

// NewClient creates a client. An empty url uses DefaultURL.
func NewClient(url, key string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{URL: url, key: key, client: &http.Client{Timeout: timeout}}
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
	Key     string `json:"key,omitempty"`
}

// Invoke calls action and decodes the result into out (which may be nil).
// Every failure is an E_ANKICONNECT_ERROR.
func (c *Client) Invoke(ctx context.Context, action string, params, out any) error {
	traceID := trace.FromContext(ctx)
	fail := func(err error, format string, args ...any) error {
		return apperr.Wrap(apperr.AnkiConnectError, traceID, err, format, args...)
	}

	data, err := json.Marshal(request{Action: action, Version: apiVersion, Params: params, Key: c.key})
	if err != nil {
		return fail(err, "encoding %s request: %v", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(data))
	if err != nil {
		return fail(err, "creating %s request: %v", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if isConnectError(err) {
			return fail(err, "Cannot connect to AnkiConnect. Is Anki running with AnkiConnect installed?")
		}
		return fail(err, "AnkiConnect HTTP error: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(err, "AnkiConnect HTTP error: reading response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(nil, "AnkiConnect HTTP error: HTTP %d", resp.StatusCode)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		if json.Valid(body) {
			return fail(err, "AnkiConnect returned invalid response payload: %s", jsonKind(body))
		}
		msg := fmt.Sprintf("AnkiConnect returned non-JSON response (HTTP %d)", resp.StatusCode)
		if preview := preview(body); preview != "" {
			msg += ": " + preview
		}
		return fail(err, "%s", msg)
	}

	if raw, ok := envelope["error"]; ok {
		var appErr any
		_ = json.Unmarshal(raw, &appErr)
		if truthy(appErr) {
			return fail(nil, "AnkiConnect error: %v", appErr)
		}
	}

	if out == nil {
		return nil
	}
	result, ok := envelope["result"]
	if !ok {
		result = json.RawMessage("null")
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fail(err, "decoding %s result: %v", action, err)
	}
	return nil
}

// Version returns the AnkiConnect API version.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	err := c.Invoke(ctx, "version", nil, &v)
	return v, err
}

// CheckConnection reports whether AnkiConnect answers.
func (c *Client) CheckConnection(ctx context.Context) bool {
	_, err := c.Version(ctx)
	return err == nil
}

func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.Invoke(ctx, "deckNames", nil, &names)
	return names, err
}

func (c *Client) CreateDeck(ctx context.Context, name string) error {
	return c.Invoke(ctx, "createDeck", map[string]any{"deck": name}, nil)
}

func (c *Client) ModelNames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.Invoke(ctx, "modelNames", nil, &names)
	return names, err
}

func (c *Client) ModelFieldNames(ctx context.Context, modelName string) ([]string, error) {
	var names []string
	err := c.Invoke(ctx, "modelFieldNames", map[string]any{"modelName": modelName}, &names)
	return names, err
}

func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	err := c.Invoke(ctx, "findNotes", map[string]any{"query": query}, &ids)
	return ids, err
}

// AddNote creates a note. A null or zero result usually means Anki rejected
// the note as a duplicate.
func (c *Client) AddNote(ctx context.Context, note Note) (int64, error) {
	var id *int64
	if err := c.Invoke(ctx, "addNote", map[string]any{"note": note}, &id); err != nil {
		return 0, err
	}
	if id == nil || *id == 0 {
		return 0, apperr.New(apperr.AnkiConnectError, trace.FromContext(ctx), "addNote returned no note id - possible duplicate")
	}
	return *id, nil
}

// UpdateNoteFields replaces the fields (and attaches the media) of note id.
func (c *Client) UpdateNoteFields(ctx context.Context, id int64, note Note) error {
	params := map[string]any{"note": noteUpdate{
		ID:      id,
		Fields:  note.Fields,
		Audio:   note.Audio,
		Video:   note.Video,
		Picture: note.Picture,
	}}
	return c.Invoke(ctx, "updateNoteFields", params, nil)
}

func isConnectError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if r := []rune(s); len(r) > previewLimit {
		s = string(r[:previewLimit]) + "..."
	}
	return s
}

func jsonKind(body []byte) string {
	var v any
	_ = json.Unmarshal(body, &v)
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}
