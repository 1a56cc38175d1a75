// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

// Package worker implements the offline cache worker: it precaches a fixed
// manifest into a versioned cache generation, garbage-collects every other
// generation on activation, and answers same-origin GET requests
// network-first with a cache fallback.
package worker
