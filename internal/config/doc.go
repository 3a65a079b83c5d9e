// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for ffplaylist.
//
// Precedence, lowest first: built-in defaults, the YAML file, environment
// variables, command line flags.
package config
