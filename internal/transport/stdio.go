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
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/aleutian-ai/toolhost/internal/jsonrpc"
	"github.com/aleutian-ai/toolhost/internal/manifest"
	"github.com/aleutian-ai/toolhost/internal/secrets"
)

// stdioChannel frames JSON-RPC messages over a spawned child process's
// stdin/stdout pipes, per spec §4.2's launch contract.
type stdioChannel struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr io.ReadCloser
}

func launchStdio(cfg manifest.ToolServerConfig) (Channel, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("transport: server %q: command must not be empty", cfg.Name)
	}

	path, err := exec.LookPath(cfg.Command[0])
	if err != nil {
		return nil, fmt.Errorf("transport: server %q: %w", cfg.Name, err)
	}

	args := append(append([]string{}, cfg.Command[1:]...), cfg.Args...)
	cmd := exec.Command(path, args...)
	cmd.Env = buildEnv(cfg)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: server %q: stdin pipe: %w", cfg.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: server %q: stdout pipe: %w", cfg.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: server %q: stderr pipe: %w", cfg.Name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: server %q: start: %w", cfg.Name, err)
	}

	return &stdioChannel{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		stderr: stderr,
	}, nil
}

// buildEnv merges the current process environment with the manifest's
// per-server overrides, unwrapping any secret-like values staged through
// internal/secrets so the child still receives plaintext.
func buildEnv(cfg manifest.ToolServerConfig) []string {
	env := os.Environ()
	for k, v := range secrets.StageEnv(cfg.Env) {
		env = append(env, k+"="+v)
	}
	return env
}

func (c *stdioChannel) ReadMessage() (json.RawMessage, error) {
	return jsonrpc.ReadMessage(c.stdout)
}

func (c *stdioChannel) WriteMessage(v interface{}) error {
	return jsonrpc.WriteMessage(c.stdin, v)
}

func (c *stdioChannel) Stderr() io.Reader {
	return c.stderr
}

func (c *stdioChannel) Close() error {
	return c.stdin.Close()
}

func (c *stdioChannel) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}

func (c *stdioChannel) Wait() error {
	return c.cmd.Wait()
}
