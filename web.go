package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/mux"
)

// ============================================================================
// Web Dashboard
// ============================================================================

const (
	MsgWebStarting     = "Dashboard listening on %s"
	MsgWebStopped      = "Dashboard stopped"
	MsgWebServeError   = "Dashboard serve error: %v"
	MsgWebGuildInvalid = "invalid guild id"
	MsgWebGuildNoQueue = "no active session for this guild"
)

func init() {
	RegisterDaemon(LogWeb, startWebDaemon)
}

func startWebDaemon(ctx context.Context) (bool, func(), func()) {
	addr := GlobalConfig.WebAddr
	if addr == "" {
		return false, nil, nil
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", handleWebStatus).Methods(http.MethodGet)
	api.HandleFunc("/stats", handleWebStats).Methods(http.MethodGet)
	api.HandleFunc("/guilds", handleWebGuilds).Methods(http.MethodGet)
	api.HandleFunc("/queue/{guildID}", handleWebQueue).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	run := func() {
		LogWeb(MsgWebStarting, addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			LogWeb(MsgWebServeError, err)
		}
	}
	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		LogWeb(MsgWebStopped)
	}
	return true, run, shutdown
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type webTrack struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	URI        string `json:"uri"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	Source     string `json:"source"`
	DurationMs int64  `json:"durationMs"`
	Requester  string `json:"requester"`
	Autoplay   bool   `json:"autoplay,omitempty"`
}

func webTrackOf(t *Track) webTrack {
	return webTrack{
		Title:      t.Info.Title,
		Author:     t.Info.Author,
		URI:        t.Info.URI,
		ArtworkURL: t.Info.ArtworkURL,
		Source:     t.Info.SourceName,
		DurationMs: t.Info.Length,
		Requester:  t.Requester.String(),
		Autoplay:   t.IsAutoplay,
	}
}

func handleWebStatus(w http.ResponseWriter, _ *http.Request) {
	ps := GetPlayerManager()
	node := ps.Node()

	writeJSON(w, http.StatusOK, map[string]any{
		"name":          GetProjectName(),
		"uptimeSeconds": int64(time.Since(StartupTime).Seconds()),
		"nodeConnected": node != nil && node.Connected(),
		"sessions":      len(ps.Sessions()),
	})
}

func handleWebStats(w http.ResponseWriter, _ *http.Request) {
	node := GetPlayerManager().Node()
	if node == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "node not connected")
		return
	}
	writeJSON(w, http.StatusOK, node.Stats())
}

func handleWebGuilds(w http.ResponseWriter, _ *http.Request) {
	type guildEntry struct {
		GuildID string    `json:"guildId"`
		Playing bool      `json:"playing"`
		Paused  bool      `json:"paused"`
		Queue   int       `json:"queueLength"`
		Current *webTrack `json:"current,omitempty"`
	}

	entries := []guildEntry{}
	for _, s := range GetPlayerManager().Sessions() {
		playing, paused, _, _, _, _ := s.State()
		entry := guildEntry{
			GuildID: s.GuildID.String(),
			Playing: playing,
			Paused:  paused,
			Queue:   len(s.Queue()),
		}
		if current := s.Current(); current != nil {
			t := webTrackOf(current)
			entry.Current = &t
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, entries)
}

func handleWebQueue(w http.ResponseWriter, r *http.Request) {
	guildID, err := snowflake.Parse(mux.Vars(r)["guildID"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, MsgWebGuildInvalid)
		return
	}

	s := GetPlayerManager().GetSession(guildID)
	if s == nil {
		writeJSONError(w, http.StatusNotFound, MsgWebGuildNoQueue)
		return
	}

	playing, paused, loop, autoplay, tfs, volume := s.State()
	queue := s.Queue()
	tracks := make([]webTrack, 0, len(queue))
	for _, t := range queue {
		tracks = append(tracks, webTrackOf(t))
	}

	body := map[string]any{
		"guildId":         guildID.String(),
		"playing":         playing,
		"paused":          paused,
		"loop":            loop.String(),
		"autoplay":        autoplay,
		"twentyFourSeven": tfs,
		"volume":          volume,
		"positionMs":      s.Position().Milliseconds(),
		"queue":           tracks,
	}
	if current := s.Current(); current != nil {
		body["current"] = webTrackOf(current)
	}
	writeJSON(w, http.StatusOK, body)
}
