// Copyright 2025 Lexigate
// SPDX-License-Identifier: Apache-2.0

// Package logger provides structured JSON logging for all gateway
// components. Entries carry the component name, host, and — for metered
// traffic — the client and request IDs, so billing anomalies can be
// traced back to individual calls.
package logger
