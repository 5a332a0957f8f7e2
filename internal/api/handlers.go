package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"tabsync/internal/logging"
	"tabsync/internal/orders"
	"tabsync/internal/outbox"
	"tabsync/internal/resolver"
)

const maxRequestBody = 1 << 20

// handleOrders takes an order either straight into authoritative storage or
// through the outbox. A direct write that fails against storage degrades to
// an enqueue instead of bouncing the ticket back to the floor.
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.queue == nil {
		s.writeError(w, http.StatusServiceUnavailable, "queue store unavailable")
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TableID <= 0 || req.SessionID <= 0 {
		s.writeError(w, http.StatusBadRequest, "table_id and session_id are required")
		return
	}

	if !req.Deferred && s.orders != nil {
		order, err := s.orders.CreateOrder(r.Context(), req.toNewOrder())
		if err == nil {
			s.writeJSON(w, http.StatusCreated, CreateOrderResponse{Order: fromOrder(order)})
			return
		}
		s.logger.Warn("direct order write failed, deferring",
			logging.Int64(logging.FieldTableID, req.TableID),
			logging.Error(err))
	}

	payload, err := outbox.EncodeOrderCreate(outbox.OrderCreate{
		TableID:    req.TableID,
		SessionID:  req.SessionID,
		Items:      req.Items,
		TotalCents: req.TotalCents,
		Notes:      req.Notes,
		PlacedBy:   req.PlacedBy,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := s.queue.Enqueue(r.Context(), outbox.EnqueueRequest{
		LocalID:      req.LocalID,
		TargetEntity: outbox.EntityOrders,
		Operation:    outbox.OpCreate,
		PayloadJSON:  payload,
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "enqueue failed: "+err.Error())
		return
	}

	if s.hub != nil {
		s.hub.QueueAccepted(entry.ID, entry.LocalID, entry.TargetEntity)
	}
	if s.worker != nil {
		s.worker.Kick()
	}
	s.writeJSON(w, http.StatusAccepted, CreateOrderResponse{
		Queued:  true,
		EntryID: entry.ID,
		LocalID: entry.LocalID,
	})
}

// handleSync is a fire-and-forget drain trigger.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.worker == nil {
		s.writeError(w, http.StatusServiceUnavailable, "sync worker unavailable")
		return
	}
	s.worker.Kick()
	s.writeJSON(w, http.StatusAccepted, SyncTriggerResponse{Triggered: true})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.queue == nil {
		s.writeError(w, http.StatusServiceUnavailable, "queue store unavailable")
		return
	}

	var statuses []outbox.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := outbox.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(value))
			return
		}
		statuses = append(statuses, status)
	}

	entries, err := s.queue.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, QueueListResponse{Entries: QueueEntriesFromStore(entries)})
}

func (s *Server) handleQueuePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.queue == nil {
		s.writeError(w, http.StatusServiceUnavailable, "queue store unavailable")
		return
	}
	count, err := s.queue.CountPending(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, PendingResponse{Pending: count})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.resolver == nil {
		s.writeError(w, http.StatusServiceUnavailable, "resolver unavailable")
		return
	}
	conflicts, err := s.resolver.ListConflicts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ConflictListResponse{Conflicts: ConflictsFromResolver(conflicts)})
}

// handleConflictResolve serves POST /api/conflicts/{id}/resolve.
func (s *Server) handleConflictResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.resolver == nil {
		s.writeError(w, http.StatusServiceUnavailable, "resolver unavailable")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/conflicts/")
	idStr, action, found := strings.Cut(rest, "/")
	if !found || action != "resolve" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	entryID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.resolver.Resolve(r.Context(), entryID, resolver.Decision(req.Decision))
	switch {
	case err == nil:
	case errors.Is(err, resolver.ErrInvalidDecision):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, outbox.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, resolver.ErrNotConflict):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, ResolveResponseFromResolution(res))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.queue == nil {
		s.writeError(w, http.StatusServiceUnavailable, "queue store unavailable")
		return
	}

	health, err := s.queue.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := StatusResponse{
		Running:     true,
		PID:         os.Getpid(),
		QueueDBPath: s.queue.Path(),
		Queue:       QueueHealthFromSummary(health),
	}
	if s.orders != nil {
		status.OrdersDBPath = s.orders.Path()
	}
	if s.hub != nil {
		status.RealtimeClients = s.hub.ClientCount("")
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.writeError(w, http.StatusServiceUnavailable, "realtime hub unavailable")
		return
	}
	s.hub.ServeWS(w, r)
}

func (req CreateOrderRequest) toNewOrder() orders.NewOrder {
	return orders.NewOrder{
		TableID:    req.TableID,
		SessionID:  req.SessionID,
		ItemsJSON:  string(req.Items),
		TotalCents: req.TotalCents,
		Notes:      req.Notes,
		PlacedBy:   req.PlacedBy,
		Origin:     orders.OriginDirect,
	}
}
