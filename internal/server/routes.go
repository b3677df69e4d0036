// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/parley-dev/parley/internal/contextstore"
	"github.com/parley-dev/parley/internal/manager"
	"github.com/parley-dev/parley/internal/session"
	"github.com/parley-dev/parley/internal/store"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
	"github.com/parley-dev/parley/pkg/health"
)

// Deps are the service dependencies handlers delegate to. The HTTP surface
// uses the schema-free Object record; typed records stay a library concern.
type Deps struct {
	Manager     *manager.Manager[contextstore.Object]
	Coordinator *contextstore.Coordinator[contextstore.Object]
	Store       store.Store
	Health      *health.Tracker
}

// RegisterDeps sets the service dependencies and registers REST routes.
func (s *Server) RegisterDeps(deps *Deps) {
	if deps.Health == nil {
		deps.Health = health.NewTracker()
	}
	s.deps = deps
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	// Status
	huma.Register(s.api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Service status including store reachability",
		Tags:        []string{"system"},
	}, s.handleStatus)

	// Session endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List known sessions",
		Tags:        []string{"sessions"},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Session overview",
		Tags:        []string{"sessions"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-session",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Delete a session's messages, metadata, and context",
		Tags:        []string{"sessions"},
	}, s.handleDeleteSession)

	// Message endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "append-messages",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/messages",
		Summary:     "Append messages to the conversation log",
		Tags:        []string{"messages"},
	}, s.handleAppendMessages)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/messages",
		Summary:     "Read the conversation log, oldest first",
		Tags:        []string{"messages"},
	}, s.handleListMessages)

	huma.Register(s.api, huma.Operation{
		OperationID: "pop-message",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/messages/pop",
		Summary:     "Remove and return the newest message",
		Tags:        []string{"messages"},
	}, s.handlePopMessage)

	// Context endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "get-context",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/context",
		Summary:     "Get the session's context record",
		Tags:        []string{"context"},
	}, s.handleGetContext)

	huma.Register(s.api, huma.Operation{
		OperationID: "put-context",
		Method:      http.MethodPut,
		Path:        "/api/v1/sessions/{id}/context",
		Summary:     "Replace the session's context record",
		Tags:        []string{"context"},
	}, s.handlePutContext)

	huma.Register(s.api, huma.Operation{
		OperationID: "patch-context",
		Method:      http.MethodPatch,
		Path:        "/api/v1/sessions/{id}/context",
		Summary:     "Merge fields into the session's context record",
		Tags:        []string{"context"},
	}, s.handlePatchContext)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-context",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/context/update",
		Summary:     "Merge fields into the context record under the session lock, creating it when absent",
		Tags:        []string{"context"},
	}, s.handleUpdateContext)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-context",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}/context",
		Summary:     "Delete the session's context record",
		Tags:        []string{"context"},
	}, s.handleDeleteContext)

	// Maintenance
	huma.Register(s.api, huma.Operation{
		OperationID: "sweep-expired",
		Method:      http.MethodPost,
		Path:        "/api/v1/sweep",
		Summary:     "Count context keys already reclaimed by expiry",
		Tags:        []string{"maintenance"},
	}, s.handleSweep)
}

// --- Request/Response types for huma ---

type statusOutput struct {
	Body struct {
		Status string         `json:"status" example:"ok" doc:"Service status"`
		Store  string         `json:"store" example:"ok" doc:"Store reachability"`
		Health health.Metrics `json:"health" doc:"Store health metrics"`
	}
}

type listSessionsOutput struct {
	Body manager.Sessions
}

type sessionIDInput struct {
	ID string `path:"id" minLength:"1"`
}

type getSessionOutput struct {
	Body manager.Overview[contextstore.Object]
}

type deleteSessionOutput struct {
	Body manager.Deleted
}

type appendMessagesInput struct {
	ID   string `path:"id" minLength:"1"`
	Body struct {
		Messages []session.Item `json:"messages" doc:"Messages appended in order"`
	}
}
type appendMessagesOutput struct {
	Body struct {
		Count int64 `json:"count" doc:"Log length after the append"`
	}
}

type listMessagesInput struct {
	ID    string `path:"id" minLength:"1"`
	Limit int    `query:"limit" minimum:"0" doc:"Return only the newest N messages; 0 returns all"`
}
type listMessagesOutput struct {
	Body struct {
		Messages []session.Item `json:"messages"`
	}
}

type popMessageOutput struct {
	Body struct {
		Message session.Item `json:"message"`
	}
}

type getContextOutput struct {
	Body contextstore.Object
}

type putContextInput struct {
	ID   string `path:"id" minLength:"1"`
	Body contextstore.Object
}

type patchContextInput struct {
	ID   string `path:"id" minLength:"1"`
	Body map[string]any
}

type updateContextInput struct {
	ID   string `path:"id" minLength:"1"`
	Body map[string]any
}

type deleteContextOutput struct {
	Body struct {
		Deleted bool `json:"deleted"`
	}
}

type sweepOutput struct {
	Body struct {
		Expired int `json:"expired" doc:"Keys observed already reclaimed"`
	}
}

// apiError maps an internal error to the huma status model using the
// error's code.
func apiError(err error, msg string) error {
	return huma.NewError(parleyerr.HTTPStatus(err), msg, err)
}

// --- Handlers ---

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	out := &statusOutput{}
	out.Body.Status = "ok"
	out.Body.Store = "ok"
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.deps.Health.RecordFailure()
		out.Body.Status = "degraded"
		out.Body.Store = "unreachable"
	} else {
		s.deps.Health.RecordSuccess()
	}
	out.Body.Health = s.deps.Health.Snapshot()
	return out, nil
}

func (s *Server) handleListSessions(ctx context.Context, _ *struct{}) (*listSessionsOutput, error) {
	sessions, err := s.deps.Manager.ListSessions(ctx)
	if err != nil {
		return nil, apiError(err, "listing sessions")
	}
	return &listSessionsOutput{Body: sessions}, nil
}

func (s *Server) handleGetSession(ctx context.Context, input *sessionIDInput) (*getSessionOutput, error) {
	ov, err := s.deps.Manager.Overview(ctx, input.ID)
	if err != nil {
		return nil, apiError(err, "reading session overview")
	}
	if ov.Info == nil && ov.MessageCount == 0 && !ov.HasContext {
		return nil, huma.Error404NotFound(fmt.Sprintf("session %q not found", input.ID))
	}
	return &getSessionOutput{Body: ov}, nil
}

func (s *Server) handleDeleteSession(ctx context.Context, input *sessionIDInput) (*deleteSessionOutput, error) {
	d, err := s.deps.Manager.DeleteSession(ctx, input.ID)
	if err != nil {
		return nil, apiError(err, "deleting session")
	}
	return &deleteSessionOutput{Body: d}, nil
}

func (s *Server) handleAppendMessages(ctx context.Context, input *appendMessagesInput) (*appendMessagesOutput, error) {
	if err := s.deps.Manager.Log().Append(ctx, input.ID, input.Body.Messages); err != nil {
		return nil, apiError(err, "appending messages")
	}
	count, err := s.deps.Manager.Log().Size(ctx, input.ID)
	if err != nil {
		return nil, apiError(err, "reading log length")
	}
	out := &appendMessagesOutput{}
	out.Body.Count = count
	return out, nil
}

func (s *Server) handleListMessages(ctx context.Context, input *listMessagesInput) (*listMessagesOutput, error) {
	items, err := s.deps.Manager.Log().Items(ctx, input.ID, input.Limit)
	if err != nil {
		return nil, apiError(err, "reading messages")
	}
	out := &listMessagesOutput{}
	out.Body.Messages = items
	return out, nil
}

func (s *Server) handlePopMessage(ctx context.Context, input *sessionIDInput) (*popMessageOutput, error) {
	item, ok, err := s.deps.Manager.Log().PopLast(ctx, input.ID)
	if err != nil {
		return nil, apiError(err, "popping message")
	}
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("session %q has no messages", input.ID))
	}
	out := &popMessageOutput{}
	out.Body.Message = item
	return out, nil
}

func (s *Server) handleGetContext(ctx context.Context, input *sessionIDInput) (*getContextOutput, error) {
	rec, ok, err := s.deps.Manager.Contexts().Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err, "reading context")
	}
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("session %q has no context", input.ID))
	}
	return &getContextOutput{Body: rec}, nil
}

func (s *Server) handlePutContext(ctx context.Context, input *putContextInput) (*getContextOutput, error) {
	if err := s.deps.Manager.SaveContext(ctx, input.ID, input.Body); err != nil {
		return nil, apiError(err, "saving context")
	}
	return &getContextOutput{Body: input.Body}, nil
}

func (s *Server) handlePatchContext(ctx context.Context, input *patchContextInput) (*getContextOutput, error) {
	rec, ok, err := s.deps.Manager.PatchContext(ctx, input.ID, input.Body)
	if err != nil {
		return nil, apiError(err, "patching context")
	}
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("session %q has no context to patch", input.ID))
	}
	return &getContextOutput{Body: rec}, nil
}

// handleUpdateContext is the write path for concurrent workers: unlike a
// plain PATCH, the merge runs inside the session lock, and an absent record
// is created rather than 404ed. Lock contention surfaces as 429.
func (s *Server) handleUpdateContext(ctx context.Context, input *updateContextInput) (*getContextOutput, error) {
	rec, err := s.deps.Coordinator.Update(ctx, input.ID,
		func() contextstore.Object { return contextstore.Object{} },
		func(_ context.Context, cur contextstore.Object) (contextstore.Object, error) {
			for k, v := range input.Body {
				cur[k] = v
			}
			return cur, nil
		})
	if err != nil {
		return nil, apiError(err, "updating context")
	}
	return &getContextOutput{Body: rec}, nil
}

func (s *Server) handleDeleteContext(ctx context.Context, input *sessionIDInput) (*deleteContextOutput, error) {
	deleted, err := s.deps.Manager.Contexts().Delete(ctx, input.ID)
	if err != nil {
		return nil, apiError(err, "deleting context")
	}
	out := &deleteContextOutput{}
	out.Body.Deleted = deleted
	return out, nil
}

func (s *Server) handleSweep(ctx context.Context, _ *struct{}) (*sweepOutput, error) {
	n, err := s.deps.Manager.CleanupExpired(ctx)
	if err != nil {
		return nil, apiError(err, "sweeping expired contexts")
	}
	out := &sweepOutput{}
	out.Body.Expired = n
	return out, nil
}
