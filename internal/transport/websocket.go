// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/aleutian-ai/toolhost/internal/manifest"
)

// websocketChannel frames one JSON-RPC message per websocket text frame —
// the websocket frame boundary already delimits the message, so no
// Content-Length header is needed (SPEC_FULL.md §4.8).
type websocketChannel struct {
	conn *websocket.Conn
}

func dialWebSocket(cfg manifest.ToolServerConfig) (Channel, error) {
	if cfg.Transport.URL == "" {
		return nil, fmt.Errorf("transport: server %q: websocket transport requires a url", cfg.Name)
	}

	header := http.Header{}
	for k, v := range cfg.Transport.Headers {
		header.Set(k, v)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(cfg.Transport.URL, header)
	if err != nil {
		return nil, fmt.Errorf("transport: server %q: dial %s: %w", cfg.Name, cfg.Transport.URL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	return &websocketChannel{conn: conn}, nil
}

func (c *websocketChannel) ReadMessage() (json.RawMessage, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (c *websocketChannel) WriteMessage(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Stderr: a websocket connection has no separate diagnostic stream.
func (c *websocketChannel) Stderr() io.Reader { return nil }

func (c *websocketChannel) Close() error {
	return c.conn.Close()
}

// Kill: nothing to forcibly terminate beyond closing the socket.
func (c *websocketChannel) Kill() error {
	return c.conn.Close()
}

// Wait: no subprocess to wait on; the connection is already fully torn down
// once Close returns.
func (c *websocketChannel) Wait() error {
	return nil
}
