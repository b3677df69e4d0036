// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package contextstore

// Record is the serializable context attached to a session. Records are
// JSON-encoded whole on write and decoded whole on read; Validate runs on
// every merged record before a patch is persisted, so an implementation's
// schema rules hold for partial updates too.
type Record interface {
	Validate() error
}

// Object is a schema-free Record for callers that treat context as loose
// JSON, such as the HTTP surface. Validation always passes.
type Object map[string]any

// Validate implements Record.
func (Object) Validate() error { return nil }
