package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"court-intake-service/internal/models"
)

// client talks to the intake service's HTTP API.
type client struct {
	base string
	http *http.Client
}

func newClient(server, basePath string) *client {
	return &client{
		base: strings.TrimRight(server, "/") + "/" + strings.Trim(basePath, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) submit(ctx context.Context, content string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/messages", map[string]string{"content": content}, &out)
	return out.ID, err
}

func (c *client) get(ctx context.Context, id string) (models.Record, error) {
	var rec models.Record
	err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(id), nil, &rec)
	return rec, err
}

func (c *client) list(ctx context.Context, statuses []string, limit int) ([]models.Record, error) {
	q := url.Values{}
	if len(statuses) > 0 {
		q.Set("status", strings.Join(statuses, ","))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var list []models.Record
	err := c.do(ctx, http.MethodGet, "/messages?"+q.Encode(), nil, &list)
	return list, err
}

func (c *client) assign(ctx context.Context, id string, caseID int64) (models.Record, error) {
	var rec models.Record
	err := c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(id)+"/assign", map[string]int64{"case_id": caseID}, &rec)
	return rec, err
}

func (c *client) retry(ctx context.Context, id string) (models.Record, error) {
	var rec models.Record
	err := c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(id)+"/retry", nil, &rec)
	return rec, err
}

// watch streams status events until ctx is done or the server hangs up.
func (c *client) watch(ctx context.Context, recordID string, fn func(map[string]any)) error {
	u := "ws" + strings.TrimPrefix(c.base, "http") + "/ws"
	if recordID != "" {
		u += "?record_id=" + url.QueryEscape(recordID)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		var ev map[string]any
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		fn(ev)
	}
}
