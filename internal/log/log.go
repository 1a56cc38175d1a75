// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// InitLogger sets up Apex with a custom handler and a log level from the
// SWCACHE_LOG env variable. Logs go to stderr; stdout carries command
// output.
func InitLogger() {
	level := strings.ToUpper(os.Getenv("SWCACHE_LOG"))
	if level == "" {
		level = "INFO"
	}
	log.SetHandler(NewCustomHandler(os.Stderr))
	log.SetLevelFromString(strings.ToLower(level))
}

// CustomHandler formats log messages as single lines and writes them to w.
type CustomHandler struct {
	mu sync.Mutex
	w  io.Writer
}

// NewCustomHandler returns a handler writing to w. A nil w means stderr.
func NewCustomHandler(w io.Writer) *CustomHandler {
	if w == nil {
		w = os.Stderr
	}
	return &CustomHandler{w: w}
}

// HandleLog implements the log.Handler interface
func (h *CustomHandler) HandleLog(e *log.Entry) error {
	timestamp := e.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	level := strings.ToUpper(e.Level.String())

	var b strings.Builder
	fmt.Fprintf(&b, "%s %.1s %s", timestamp.Format("2006-01-02 15:04:05"), level, e.Message)

	// Fields are emitted in a stable order so lines diff cleanly.
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, b.String())
	return err
}
