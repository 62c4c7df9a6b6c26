// Copyright 2025 Lexigate
// SPDX-License-Identifier: Apache-2.0

// Package base defines the shared contract for dialect connectors: the
// caller-supplied connection Descriptor, the typed query union produced
// by the validator (FindQuery, PipelineQuery, SQLQuery), and the Executor
// interface every dialect implements.
package base
