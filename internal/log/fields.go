// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID = "run_id"
	FieldSeq   = "seq"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldFD        = "fd"
	FieldSignal    = "signal"
	FieldCommand   = "command"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldReason   = "reason"

	// Path fields
	FieldPath         = "path"
	FieldLinkPath     = "link_path"
	FieldPlaylistPath = "playlist_path"
	FieldWorkspace    = "workspace"

	// Progress fields
	FieldFraction = "fraction"
	FieldQueueLen = "queue_len"
)
