package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/daniacca/graphitecore/internal/config"
	"github.com/daniacca/graphitecore/internal/reactor"
	"github.com/daniacca/graphitecore/internal/store/sqlite"
)

// extractReactorID extracts the reactor ID from a path like "/reactors/{id}/..."
// Returns the reactor ID and the remaining path, or empty string if not found
func extractReactorID(path string) (reactor.ReactorID, string) {
	if !strings.HasPrefix(path, "/reactors/") {
		return "", ""
	}

	rest := path[len("/reactors/"):]
	idx := strings.Index(rest, "/")
	if idx == -1 {
		return reactor.ReactorID(rest), ""
	}
	return reactor.ReactorID(rest[:idx]), rest[idx:]
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, reactor.ErrNotFound), errors.Is(err, sqlite.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, reactor.ErrSlotFull), errors.Is(err, reactor.ErrPipeOccupied),
		errors.Is(err, reactor.ErrStarterNotReady):
		return http.StatusConflict
	case errors.Is(err, reactor.ErrInvalidOperation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "cannot encode: "+err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// routes builds the server's mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/reactors", s.handleReactors)
	mux.HandleFunc("/reactors/", s.handleReactorRoutes)
	mux.HandleFunc("/snapshots", s.handleSnapshotsRoutes)
	mux.HandleFunc("/snapshots/", s.handleSnapshotsRoutes)
	mux.HandleFunc("/notifiers", s.handleNotifiersRoutes)
	mux.HandleFunc("/notifiers/", s.handleNotifiersRoutes)
	mux.HandleFunc("/radiation", s.handleRadiation)
	mux.Handle("/ws", s.ws)
	mux.Handle("/metrics", s.metricsHandler())
	return mux
}

// GET /reactors lists reactor IDs; POST /reactors creates one from a
// ReactorConfig body.
func (s *Server) handleReactors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ids := s.manager.List()
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = string(id)
		}
		writeJSON(w, http.StatusOK, map[string][]string{"reactors": out})
	case http.MethodPost:
		s.handleCreateReactor(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateReactor(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var rc config.ReactorConfig
	if err := json.NewDecoder(r.Body).Decode(&rc); err != nil {
		http.Error(w, "invalid reactor json: "+err.Error(), http.StatusBadRequest)
		return
	}

	// notifiers may have been registered at runtime, so they are checked
	// against the live pipeline rather than the config file
	for _, nid := range rc.Notifications.Notifiers {
		if _, ok := s.notifications.GetNotifier(nid); !ok {
			http.Error(w, "notifier not found: "+nid, http.StatusBadRequest)
			return
		}
	}
	probe := *s.cfg
	declared := rc
	declared.Notifications.Notifiers = nil
	probe.Notifiers = nil
	probe.Reactors = []config.ReactorConfig{declared}
	if err := probe.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	core, err := s.createReactor(rc)
	if err != nil {
		s.logger.Warnf("Failed to create reactor: reactor_id=%s error=%v", rc.ID, err)
		writeError(w, err)
		return
	}
	s.logger.Infof("Reactor created: reactor_id=%s rods=%d", rc.ID, len(rc.Rods))
	writeJSON(w, http.StatusCreated, core.State())
}

// handleReactorRoutes routes requests to reactor-specific handlers
// Handles paths like /reactors/{id}/tick, /reactors/{id}/rods, etc.
func (s *Server) handleReactorRoutes(w http.ResponseWriter, r *http.Request) {
	id, rest := extractReactorID(r.URL.Path)
	if id == "" {
		http.Error(w, "reactor ID is required in path: /reactors/{id}/...", http.StatusBadRequest)
		return
	}

	if rest == "" && r.Method == http.MethodDelete {
		s.handleDeleteReactor(w, id)
		return
	}

	core, exists := s.manager.Get(id)
	if !exists {
		http.Error(w, "reactor not found", http.StatusNotFound)
		return
	}

	switch {
	case rest == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, core.State())
	case rest == "/tick" && r.Method == http.MethodPost:
		s.handleTick(w, core)
	case rest == "/start" && r.Method == http.MethodPost:
		s.handleStart(w, r, id)
	case rest == "/stop" && r.Method == http.MethodPost:
		s.handleStop(w, id)
	case rest == "/rods" && r.Method == http.MethodPost:
		s.handleInsertRod(w, r, core)
	case rest == "/rods/pull" && r.Method == http.MethodPost:
		s.handlePullRod(w, core)
	case strings.HasPrefix(rest, "/rods/") && r.Method == http.MethodDelete:
		s.handleRemoveRod(w, core, strings.TrimPrefix(rest, "/rods/"))
	case rest == "/pipe" && r.Method == http.MethodPost:
		s.handleInsertPipe(w, r, core)
	case rest == "/pipe" && r.Method == http.MethodDelete:
		s.handleRemovePipe(w, core)
	case rest == "/control-rods" && r.Method == http.MethodPut:
		s.handleControlRods(w, r, core)
	case rest == "/scram" && r.Method == http.MethodPost:
		s.handleLifecycle(w, core, "scram", core.Scram)
	case rest == "/deconstruct" && r.Method == http.MethodPost:
		s.handleLifecycle(w, core, "deconstruct", core.Deconstruct)
	case rest == "/demolish" && r.Method == http.MethodPost:
		s.handleLifecycle(w, core, "demolish", core.Demolish)
	case rest == "/consoles" && r.Method == http.MethodPost:
		s.handleConsole(w, r, core, "")
	case strings.HasPrefix(rest, "/consoles/") && r.Method == http.MethodDelete:
		s.handleConsole(w, r, core, strings.TrimPrefix(rest, "/consoles/"))
	case rest == "/notifications" && r.Method == http.MethodPut:
		s.handleSetNotifications(w, r, id)
	case rest == "/inventory" && r.Method == http.MethodGet:
		s.handleInventory(w, core)
	case rest == "/snapshot" && r.Method == http.MethodPost:
		s.handleSaveSnapshot(w, r, id)
	case rest == "/snapshot" && r.Method == http.MethodGet:
		s.handleGetSnapshot(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// DELETE /reactors/{id}
func (s *Server) handleDeleteReactor(w http.ResponseWriter, id reactor.ReactorID) {
	if err := s.deleteReactor(id); err != nil {
		s.logger.Warnf("Failed to delete reactor: reactor_id=%s error=%v", id, err)
		writeError(w, err)
		return
	}
	s.logger.Infof("Reactor deleted: reactor_id=%s", id)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("reactor deleted"))
}

// POST /reactors/{id}/tick
// Manually runs one tick; useful when the reactor is not scheduled.
func (s *Server) handleTick(w http.ResponseWriter, core *reactor.Core) {
	report := core.Tick()
	s.onTick(report)
	writeJSON(w, http.StatusOK, report)
}

// POST /reactors/{id}/start
// Query param: interval in milliseconds (default: scheduler.tick_interval)
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, id reactor.ReactorID) {
	interval := s.cfg.Scheduler.TickInterval
	if intervalStr := r.URL.Query().Get("interval"); intervalStr != "" {
		if ms, err := strconv.Atoi(intervalStr); err == nil && ms > 0 {
			interval = time.Duration(ms) * time.Millisecond
		} else {
			http.Error(w, "invalid interval: must be a positive integer (milliseconds)", http.StatusBadRequest)
			return
		}
	}

	if err := s.manager.Start(id, interval); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Infof("Reactor started: reactor_id=%s interval=%v", id, interval)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("reactor started"))
}

// POST /reactors/{id}/stop
func (s *Server) handleStop(w http.ResponseWriter, id reactor.ReactorID) {
	if err := s.manager.Stop(id); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Infof("Reactor stopped: reactor_id=%s", id)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("reactor stopped"))
}

// POST /reactors/{id}/rods
// Body: { "kind": "fuel", "id": "f1", "slot": 3 }. Slot may be omitted.
type insertRodRequest struct {
	Kind reactor.RodKind `json:"kind"`
	ID   string          `json:"id"`
	Slot *int            `json:"slot,omitempty"`
}

type rodResponse struct {
	Slot int          `json:"slot"`
	Rod  *reactor.Rod `json:"rod"`
}

func (s *Server) handleInsertRod(w http.ResponseWriter, r *http.Request, core *reactor.Core) {
	defer r.Body.Close()

	var req insertRodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "rod ID is required", http.StatusBadRequest)
		return
	}

	rod, err := core.Params().Rods.NewRod(req.Kind, req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	hint := reactor.AnySlot
	if req.Slot != nil {
		hint = *req.Slot
	}
	// the core owns rod once inserted; answer with the state it went in with
	placed := *rod
	slot, err := core.InsertRod(rod, hint)
	if err != nil {
		writeError(w, err)
		return
	}
	s.logger.Debugf("Rod inserted: reactor_id=%s rod=%s slot=%d", core.ID(), placed.ID, slot)
	writeJSON(w, http.StatusOK, rodResponse{Slot: slot, Rod: &placed})
}

// DELETE /reactors/{id}/rods/{slot}
func (s *Server) handleRemoveRod(w http.ResponseWriter, core *reactor.Core, slotStr string) {
	slot, err := strconv.Atoi(slotStr)
	if err != nil {
		http.Error(w, "invalid slot: "+slotStr, http.StatusBadRequest)
		return
	}
	rod := core.RemoveRod(slot)
	if rod == nil {
		http.Error(w, "slot is empty", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rodResponse{Slot: slot, Rod: rod})
}

// POST /reactors/{id}/rods/pull
func (s *Server) handlePullRod(w http.ResponseWriter, core *reactor.Core) {
	slot, rod := core.PullRod()
	if rod == nil {
		http.Error(w, "no rods inserted", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rodResponse{Slot: slot, Rod: rod})
}

// POST /reactors/{id}/pipe
// Body: { "id": "p1" }
func (s *Server) handleInsertPipe(w http.ResponseWriter, r *http.Request, core *reactor.Core) {
	defer r.Body.Close()

	var p reactor.Pipe
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if p.ID == "" {
		http.Error(w, "pipe ID is required", http.StatusBadRequest)
		return
	}
	if err := core.InsertPipe(&p); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pipe inserted"))
}

// DELETE /reactors/{id}/pipe
func (s *Server) handleRemovePipe(w http.ResponseWriter, core *reactor.Core) {
	p := core.RemovePipe()
	if p == nil {
		http.Error(w, "no pipe inserted", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PUT /reactors/{id}/control-rods
// Body: { "depth": 0.75 }. The applied (clamped) depth is returned.
type controlRodsRequest struct {
	Depth *float64 `json:"depth"`
}

func (s *Server) handleControlRods(w http.ResponseWriter, r *http.Request, core *reactor.Core) {
	defer r.Body.Close()

	var req controlRodsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Depth == nil {
		http.Error(w, "depth is required", http.StatusBadRequest)
		return
	}
	applied, err := core.SetControlRodDepth(*req.Depth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"depth": applied})
}

// POST /reactors/{id}/{scram,deconstruct,demolish}
func (s *Server) handleLifecycle(w http.ResponseWriter, core *reactor.Core, name string, op func() error) {
	if err := op(); err != nil {
		s.logger.Warnf("Reactor %s refused: reactor_id=%s error=%v", name, core.ID(), err)
		writeError(w, err)
		return
	}
	s.logger.Infof("Reactor %s: reactor_id=%s", name, core.ID())
	writeJSON(w, http.StatusOK, core.State())
}

// POST /reactors/{id}/consoles with body { "id": "desk" } connects a console;
// DELETE /reactors/{id}/consoles/{console} disconnects it.
func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request, core *reactor.Core, consoleID string) {
	bank, ok := core.Consoles().(*reactor.ConsoleBank)
	if !ok {
		http.Error(w, "reactor consoles are not managed by this server", http.StatusConflict)
		return
	}

	if r.Method == http.MethodPost {
		defer r.Body.Close()
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.ID == "" {
			http.Error(w, "console ID is required", http.StatusBadRequest)
			return
		}
		bank.Connect(req.ID)
	} else {
		bank.Disconnect(consoleID)
	}
	writeJSON(w, http.StatusOK, map[string]int{"connected": bank.ConnectedConsoleCount()})
}

// PUT /reactors/{id}/notifications
// Body: NotificationConfig JSON
func (s *Server) handleSetNotifications(w http.ResponseWriter, r *http.Request, id reactor.ReactorID) {
	defer r.Body.Close()

	var nc reactor.NotificationConfig
	if err := json.NewDecoder(r.Body).Decode(&nc); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	for _, nid := range nc.Notifiers {
		if _, ok := s.notifications.GetNotifier(nid); !ok {
			http.Error(w, "notifier not found: "+nid, http.StatusBadRequest)
			return
		}
	}
	if err := s.manager.SetNotifications(id, nc); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("notifications updated"))
}

type inventoryResponse struct {
	Rods      []*reactor.Rod           `json:"rods"`
	Pipes     []*reactor.Pipe          `json:"pipes"`
	Materials map[reactor.Material]int `json:"materials"`
}

// GET /reactors/{id}/inventory
func (s *Server) handleInventory(w http.ResponseWriter, core *reactor.Core) {
	bin, ok := core.Inventory().(*reactor.Bin)
	if !ok {
		http.Error(w, "reactor inventory is not managed by this server", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, inventoryResponse{
		Rods:      bin.Rods(),
		Pipes:     bin.Pipes(),
		Materials: bin.Materials(),
	})
}

// POST /reactors/{id}/snapshot
// Saves a snapshot synchronously.
func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request, id reactor.ReactorID) {
	if s.store == nil {
		http.Error(w, "snapshot store not configured", http.StatusInternalServerError)
		return
	}

	rowID, snap, err := s.saveSnapshot(r.Context(), id)
	if err != nil {
		s.logger.Errorf("Failed to save snapshot: reactor_id=%s error=%v", id, err)
		http.Error(w, "failed to save snapshot: "+err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"id":     rowID,
		"tick":   snap.Tick,
	})
}

// GET /reactors/{id}/snapshot
// Returns the latest stored snapshot.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request, id reactor.ReactorID) {
	if s.store == nil {
		http.Error(w, "snapshot store not configured", http.StatusInternalServerError)
		return
	}

	snap, err := s.store.Latest(r.Context(), id)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			http.Error(w, "snapshot not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to read snapshot: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSnapshotsRoutes serves GET /snapshots and POST /snapshots/{id}/restore.
func (s *Server) handleSnapshotsRoutes(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "snapshot store not configured", http.StatusInternalServerError)
		return
	}

	switch {
	case r.URL.Path == "/snapshots" && r.Method == http.MethodGet:
		entries, err := s.store.List(r.Context())
		if err != nil {
			http.Error(w, "failed to list snapshots: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": entries})
	case strings.HasPrefix(r.URL.Path, "/snapshots/") && strings.HasSuffix(r.URL.Path, "/restore") &&
		r.Method == http.MethodPost:
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/snapshots/"), "/restore")
		s.handleRestore(w, r, reactor.ReactorID(id))
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// handleRestore rebuilds a reactor from its latest snapshot. A reactor with
// the same ID must not be registered.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request, id reactor.ReactorID) {
	if id == "" {
		http.Error(w, "reactor ID is required in path: /snapshots/{id}/restore", http.StatusBadRequest)
		return
	}

	snap, err := s.store.Latest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	rc := config.ReactorConfig{ID: string(id)}
	for _, declared := range s.cfg.Reactors {
		if declared.ID == string(id) {
			rc = declared
			break
		}
	}
	core, err := s.restoreReactor(snap, rc)
	if err != nil {
		s.logger.Warnf("Failed to restore reactor: reactor_id=%s error=%v", id, err)
		writeError(w, err)
		return
	}
	s.logger.Infof("Reactor restored: reactor_id=%s tick=%d", id, snap.Tick)
	writeJSON(w, http.StatusOK, core.State())
}

// GET /radiation
// Reports the leak level each reactor contributes to the shared grid.
func (s *Server) handleRadiation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	grid := s.manager.Radiation()
	levels := make(map[string]float64)
	for _, id := range grid.Sources() {
		levels[string(id)] = grid.Level(id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"levels": levels})
}

// handleNotifiersRoutes handles notifier management endpoints
func (s *Server) handleNotifiersRoutes(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/notifiers" && r.Method == http.MethodGet:
		s.handleListNotifiers(w, r)
	case r.URL.Path == "/notifiers" && r.Method == http.MethodPost:
		s.handleRegisterNotifier(w, r)
	case strings.HasPrefix(r.URL.Path, "/notifiers/") && r.Method == http.MethodDelete:
		s.handleUnregisterNotifier(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GET /notifiers
func (s *Server) handleListNotifiers(w http.ResponseWriter, _ *http.Request) {
	ids := s.notifications.ListNotifiers()
	out := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		if n, exists := s.notifications.GetNotifier(id); exists {
			out = append(out, map[string]string{"id": id, "type": n.Type()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifiers": out})
}

// POST /notifiers
// Body: { "type": "webhook", "id": "my-webhook", "url": "http://...", "secret": "...", "headers": {...} }
func (s *Server) handleRegisterNotifier(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var nc config.NotifierConfig
	if err := json.NewDecoder(r.Body).Decode(&nc); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if nc.ID == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}
	if nc.Type == config.NotifierWebhook && nc.URL == "" {
		http.Error(w, "webhook URL is required", http.StatusBadRequest)
		return
	}

	if err := s.addNotifier(nc); err != nil {
		http.Error(w, "cannot register notifier: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("notifier registered"))
}

// DELETE /notifiers/{id}
func (s *Server) handleUnregisterNotifier(w http.ResponseWriter, r *http.Request) {
	notifierID := strings.TrimPrefix(r.URL.Path, "/notifiers/")
	if notifierID == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}
	if notifierID == wsNotifierID {
		http.Error(w, "the websocket stream cannot be unregistered", http.StatusBadRequest)
		return
	}

	if err := s.notifications.UnregisterNotifier(notifierID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("notifier unregistered"))
}
