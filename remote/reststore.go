// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package remote

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
)

// RESTStore talks to the remote backend over its HTTPS per-table CRUD
// surface (PostgREST-style routes, bearer JWT). It is the single place
// where transport and HTTP failures are turned into classified Errors.
type RESTStore struct {
	BaseURL string
	Token   func(context.Context) (string, error) // returns bearer JWT
	HTTP    *http.Client
}

// NewRESTStore returns a RESTStore against baseURL. tok supplies the bearer
// token per request, mirroring how the session layer refreshes tokens.
func NewRESTStore(baseURL string, tok func(context.Context) (string, error)) *RESTStore {
	return &RESTStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   tok,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Select fetches rows from table owned by f.UserID, optionally changed
// strictly after f.UpdatedAfter.
func (r *RESTStore) Select(ctx context.Context, table string, f Filter) ([]json.RawMessage, error) {
	q := url.Values{}
	if f.UserID != "" {
		q.Set("user_id", "eq."+f.UserID)
	}
	if f.UpdatedAfter != "" {
		q.Set("updated_at", "gt."+f.UpdatedAfter)
	}
	endpoint := fmt.Sprintf("%s/rest/v1/%s", r.BaseURL, table)
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	body, err := r.do(ctx, http.MethodGet, endpoint, nil, "select", table)
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &Error{Kind: KindOther, Op: "select", Table: table,
			Msg: "malformed response body", Cause: err}
	}
	return rows, nil
}

// Insert creates a new row.
func (r *RESTStore) Insert(ctx context.Context, table string, row json.RawMessage) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", r.BaseURL, table)
	_, err := r.do(ctx, http.MethodPost, endpoint, row, "insert", table)
	return err
}

// Update patches the row matching rowID.
func (r *RESTStore) Update(ctx context.Context, table string, rowID string, row json.RawMessage) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s", r.BaseURL, table, url.QueryEscape(rowID))
	_, err := r.do(ctx, http.MethodPatch, endpoint, row, "update", table)
	return err
}

// Delete removes the row matching rowID.
func (r *RESTStore) Delete(ctx context.Context, table string, rowID string) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s", r.BaseURL, table, url.QueryEscape(rowID))
	_, err := r.do(ctx, http.MethodDelete, endpoint, nil, "delete", table)
	return err
}

func (r *RESTStore) do(ctx context.Context, method, endpoint string, payload json.RawMessage, op, table string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &Error{Kind: KindOther, Op: op, Table: table, Msg: "failed to build request", Cause: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if r.Token != nil {
		token, err := r.Token(ctx)
		if err != nil {
			return nil, &Error{Kind: KindOther, Op: op, Table: table, Msg: "failed to obtain token", Cause: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.HTTP.Do(req)
	if err != nil {
		// No HTTP response at all: DNS, dial, timeout.
		return nil, &Error{Kind: KindUnreachable, Op: op, Table: table, Cause: err}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if readErr != nil {
			return nil, &Error{Kind: KindOther, Op: op, Table: table, Msg: "failed to read response", Cause: readErr}
		}
		return respBody, nil
	}

	return nil, classifyHTTP(resp.StatusCode, respBody, op, table)
}

// classifyHTTP maps an HTTP failure to a Kind. PostgREST surfaces Postgres
// SQLSTATEs in the body ("23505" unique violation, "PGRST116" zero rows),
// so the body is consulted when the status alone is ambiguous.
func classifyHTTP(status int, body []byte, op, table string) *Error {
	msg := strings.TrimSpace(string(body))

	kind := KindOther
	switch {
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusConflict:
		kind = KindConflict
	default:
		var detail struct {
			Code string `json:"code"`
		}
		if json.Unmarshal(body, &detail) == nil {
			switch detail.Code {
			case "23505":
				kind = KindConflict
			case "PGRST116":
				kind = KindNotFound
			}
		}
	}

	return &Error{Kind: kind, Op: op, Table: table,
		Msg: fmt.Sprintf("status %d: %s", status, msg)}
}
