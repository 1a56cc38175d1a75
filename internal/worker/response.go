// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/staranto/swcache/internal/store"
)

const (
	// FallbackStatus, FallbackContentType and FallbackBody make up the page
	// served when neither the network nor the cache can answer.
	FallbackStatus      = http.StatusOK
	FallbackContentType = "text/html;charset=utf-8"
	FallbackBody        = "<h1>Network connection failed, please check your network</h1>"
)

// Response is a fully buffered response. Unlike an http.Response body it can
// be read any number of times, and Clone gives an independent copy.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	c := &Response{Status: r.Status, Header: r.Header.Clone()}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return c
}

// Fallback returns the offline page.
func Fallback() *Response {
	h := http.Header{}
	h.Set("Content-Type", FallbackContentType)
	return &Response{Status: FallbackStatus, Header: h, Body: []byte(FallbackBody)}
}

// ReadResponse drains and closes resp.Body into a Response.
func ReadResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}

// WriteTo sends r to w. Content-Length is recomputed from the buffered body.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	h := w.Header()
	for k, vv := range r.Header {
		h[k] = append([]string(nil), vv...)
	}
	h.Del("Transfer-Encoding")
	h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := w.Write(r.Body)
	return err
}

func (r *Response) toEntry(key string, now time.Time) *store.Entry {
	return &store.Entry{
		Key:      key,
		Status:   r.Status,
		Header:   r.Header,
		Body:     r.Body,
		StoredAt: now,
	}
}

func fromEntry(e *store.Entry) *Response {
	return &Response{Status: e.Status, Header: e.Header.Clone(), Body: e.Body}
}
