package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
)

// ============================================================================
// Audio Node
// ============================================================================

const (
	MsgNodeConnecting     = "Connecting to node %s..."
	MsgNodeReady          = "Node ready (session: %s, resumed: %v)"
	MsgNodeDisconnected   = "Node connection lost: %v"
	MsgNodeReconnecting   = "Reconnecting to node in %s (attempt %d)"
	MsgNodeGaveUp         = "Node reconnect aborted: %v"
	MsgNodeDecodeFail     = "Failed to decode node message: %v"
	MsgNodeUnknownOp      = "Unknown node op: %s"
	MsgNodeLoadFail       = "failed to load tracks for %q: %w"
	MsgNodeStatusError    = "node returned status %d: %s"
	MsgNodeNotConnected   = "audio node is not connected"
	MsgNodeResumeFail     = "Failed to configure session resuming: %v"
	MsgNodeUpdateFail     = "failed to update player for guild %s: %w"
	MsgNodeDestroyFail    = "failed to destroy player for guild %s: %w"
	MsgNodeEventBadGuild  = "Node event with invalid guild ID %q: %v"
	MsgNodeSessionMissing = "node session not established"
)

// ErrConnectionFailure reports that the audio node rejected or dropped the
// control connection.
var ErrConnectionFailure = errors.New(MsgNodeNotConnected)

const (
	opReady        = "ready"
	opPlayerUpdate = "playerUpdate"
	opStats        = "stats"
	opEvent        = "event"

	EventTrackStart      = "TrackStartEvent"
	EventTrackEnd        = "TrackEndEvent"
	EventTrackException  = "TrackExceptionEvent"
	EventTrackStuck      = "TrackStuckEvent"
	EventWebSocketClosed = "WebSocketClosedEvent"

	// Track end reasons
	EndReasonFinished   = "finished"
	EndReasonLoadFailed = "loadFailed"
	EndReasonStopped    = "stopped"
	EndReasonReplaced   = "replaced"
	EndReasonCleanup    = "cleanup"
)

// NodeHandlers receives decoded node events. All callbacks are invoked from
// the read loop goroutine.
type NodeHandlers struct {
	OnReady        func(resumed bool)
	OnPlayerUpdate func(guildID snowflake.ID, state PlayerState)
	OnTrackStart   func(guildID snowflake.ID, track *Track)
	OnTrackEnd     func(guildID snowflake.ID, track *Track, reason string)
	OnTrackError   func(guildID snowflake.ID, track *Track, message string)
	OnSocketClosed func(guildID snowflake.ID, code int, reason string, byRemote bool)
}

type Node struct {
	host     string
	port     string
	password string
	secure   bool
	userID   snowflake.ID

	handlers NodeHandlers

	mu        sync.RWMutex
	conn      *websocket.Conn
	sessionID string
	connected bool
	stats     NodeStats
}

type NodeStats struct {
	Players        int   `json:"players"`
	PlayingPlayers int   `json:"playingPlayers"`
	Uptime         int64 `json:"uptime"`
	Memory         struct {
		Free       int64 `json:"free"`
		Used       int64 `json:"used"`
		Allocated  int64 `json:"allocated"`
		Reservable int64 `json:"reservable"`
	} `json:"memory"`
	CPU struct {
		Cores        int     `json:"cores"`
		SystemLoad   float64 `json:"systemLoad"`
		LavalinkLoad float64 `json:"lavalinkLoad"`
	} `json:"cpu"`
}

// PlayerState is the periodic position report for one guild player.
type PlayerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int   `json:"ping"`
}

func NewNode(cfg *Config, userID snowflake.ID, handlers NodeHandlers) *Node {
	return &Node{
		host:     cfg.LavalinkHost,
		port:     cfg.LavalinkPort,
		password: cfg.LavalinkPassword,
		secure:   cfg.LavalinkSecure,
		userID:   userID,
		handlers: handlers,
	}
}

func (n *Node) restURL(path string) string {
	scheme := "http"
	if n.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%s%s", scheme, n.host, n.port, path)
}

func (n *Node) wsURL() string {
	scheme := "ws"
	if n.secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%s/v4/websocket", scheme, n.host, n.port)
}

func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

func (n *Node) Connected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

func (n *Node) Stats() NodeStats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

// Connect dials the node and keeps the control connection alive until ctx is
// cancelled, reconnecting with linear backoff on failure.
func (n *Node) Connect(ctx context.Context) {
	safeGo(func() {
		attempt := 0
		for {
			if ctx.Err() != nil {
				return
			}

			LogNode(MsgNodeConnecting, n.host)
			if err := n.dial(ctx); err != nil {
				attempt++
				backoff := time.Duration(attempt) * 2 * time.Second
				if backoff > 30*time.Second {
					backoff = 30 * time.Second
				}
				LogNode(MsgNodeReconnecting, backoff, attempt)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				continue
			}
			attempt = 0

			// dial succeeded; readLoop returns when the connection dies
			err := n.readLoop(ctx)
			n.mu.Lock()
			n.connected = false
			n.conn = nil
			n.mu.Unlock()

			if ctx.Err() != nil {
				return
			}
			LogWarn(MsgNodeDisconnected, err)
		}
	})
}

func (n *Node) dial(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", n.password)
	header.Set("User-Id", n.userID.String())
	header.Set("Client-Name", GetProjectName()+"/1.0")

	n.mu.RLock()
	sessionID := n.sessionID
	n.mu.RUnlock()
	if sessionID != "" {
		header.Set("Session-Id", sessionID)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, n.wsURL(), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return err
	}

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()
	return nil
}

func (n *Node) readLoop(ctx context.Context) error {
	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()
	if conn == nil {
		return ErrConnectionFailure
	}

	// Close the socket when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	safeGo(func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		n.handleMessage(ctx, data)
	}
}

func (n *Node) handleMessage(ctx context.Context, data []byte) {
	var envelope struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		LogWarn(MsgNodeDecodeFail, err)
		return
	}

	switch envelope.Op {
	case opReady:
		var msg struct {
			Resumed   bool   `json:"resumed"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			LogWarn(MsgNodeDecodeFail, err)
			return
		}
		n.mu.Lock()
		n.sessionID = msg.SessionID
		n.connected = true
		n.mu.Unlock()
		LogNode(MsgNodeReady, msg.SessionID, msg.Resumed)

		if err := n.configureResuming(ctx); err != nil {
			LogWarn(MsgNodeResumeFail, err)
		}
		if n.handlers.OnReady != nil {
			n.handlers.OnReady(msg.Resumed)
		}

	case opPlayerUpdate:
		var msg struct {
			GuildID string      `json:"guildId"`
			State   PlayerState `json:"state"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			LogWarn(MsgNodeDecodeFail, err)
			return
		}
		guildID, err := snowflake.Parse(msg.GuildID)
		if err != nil {
			LogWarn(MsgNodeEventBadGuild, msg.GuildID, err)
			return
		}
		if n.handlers.OnPlayerUpdate != nil {
			n.handlers.OnPlayerUpdate(guildID, msg.State)
		}

	case opStats:
		var stats NodeStats
		if err := json.Unmarshal(data, &stats); err != nil {
			LogWarn(MsgNodeDecodeFail, err)
			return
		}
		n.mu.Lock()
		n.stats = stats
		n.mu.Unlock()

	case opEvent:
		n.handleEvent(data)

	default:
		LogDebug(MsgNodeUnknownOp, envelope.Op)
	}
}

type nodeEvent struct {
	Type    string `json:"type"`
	GuildID string `json:"guildId"`
	Track   *Track `json:"track"`

	// TrackEndEvent
	Reason string `json:"reason"`

	// TrackExceptionEvent
	Exception *struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
		Cause    string `json:"cause"`
	} `json:"exception"`

	// TrackStuckEvent
	ThresholdMs int64 `json:"thresholdMs"`

	// WebSocketClosedEvent
	Code     int  `json:"code"`
	ByRemote bool `json:"byRemote"`
}

func (n *Node) handleEvent(data []byte) {
	var ev nodeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		LogWarn(MsgNodeDecodeFail, err)
		return
	}
	guildID, err := snowflake.Parse(ev.GuildID)
	if err != nil {
		LogWarn(MsgNodeEventBadGuild, ev.GuildID, err)
		return
	}

	switch ev.Type {
	case EventTrackStart:
		if n.handlers.OnTrackStart != nil {
			n.handlers.OnTrackStart(guildID, ev.Track)
		}
	case EventTrackEnd:
		if n.handlers.OnTrackEnd != nil {
			n.handlers.OnTrackEnd(guildID, ev.Track, ev.Reason)
		}
	case EventTrackException:
		message := "unknown exception"
		if ev.Exception != nil {
			message = ev.Exception.Message
		}
		if n.handlers.OnTrackError != nil {
			n.handlers.OnTrackError(guildID, ev.Track, message)
		}
	case EventTrackStuck:
		if n.handlers.OnTrackError != nil {
			n.handlers.OnTrackError(guildID, ev.Track, fmt.Sprintf("track stuck for %dms", ev.ThresholdMs))
		}
	case EventWebSocketClosed:
		if n.handlers.OnSocketClosed != nil {
			n.handlers.OnSocketClosed(guildID, ev.Code, ev.Reason, ev.ByRemote)
		}
	}
}

// ============================================================================
// Node REST
// ============================================================================

func (n *Node) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.restURL(path), reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", n.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := HttpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf(MsgNodeStatusError, resp.StatusCode, string(data))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// LoadTracks asks the node to resolve an identifier (URL or search query).
func (n *Node) LoadTracks(ctx context.Context, identifier string) (*LoadResult, error) {
	var result LoadResult
	path := "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)
	if err := n.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf(MsgNodeLoadFail, identifier, err)
	}
	return &result, nil
}

// UpdateTrack carries the track portion of a player update. A nil Encoded
// pointer inside a present update stops the player.
type UpdateTrack struct {
	Encoded *string `json:"encoded"`
}

type VoiceServer struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

type Filters struct {
	Volume    *float64           `json:"volume,omitempty"`
	Equalizer []EqualizerBand    `json:"equalizer,omitempty"`
	Karaoke   map[string]float64 `json:"karaoke,omitempty"`
	Timescale map[string]float64 `json:"timescale,omitempty"`
	Tremolo   map[string]float64 `json:"tremolo,omitempty"`
	Vibrato   map[string]float64 `json:"vibrato,omitempty"`
	Rotation  map[string]float64 `json:"rotation,omitempty"`
	LowPass   map[string]float64 `json:"lowPass,omitempty"`
}

type EqualizerBand struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

// PlayerUpdate is a partial player patch. Absent fields are left untouched by
// the node, which is why every field is omittable.
type PlayerUpdate struct {
	Track    omit.Omit[UpdateTrack] `json:"track,omitzero"`
	Position omit.Omit[int64]       `json:"position,omitzero"`
	Paused   omit.Omit[bool]        `json:"paused,omitzero"`
	Volume   omit.Omit[int]         `json:"volume,omitzero"`
	Filters  omit.Omit[Filters]     `json:"filters,omitzero"`
	Voice    omit.Omit[VoiceServer] `json:"voice,omitzero"`
}

func (n *Node) UpdatePlayer(ctx context.Context, guildID snowflake.ID, update PlayerUpdate, noReplace bool) error {
	sessionID := n.SessionID()
	if sessionID == "" {
		return fmt.Errorf(MsgNodeUpdateFail, guildID, errors.New(MsgNodeSessionMissing))
	}
	path := fmt.Sprintf("/v4/sessions/%s/players/%s?noReplace=%v", sessionID, guildID, noReplace)
	if err := n.do(ctx, http.MethodPatch, path, update, nil); err != nil {
		return fmt.Errorf(MsgNodeUpdateFail, guildID, err)
	}
	return nil
}

func (n *Node) DestroyPlayer(ctx context.Context, guildID snowflake.ID) error {
	sessionID := n.SessionID()
	if sessionID == "" {
		return fmt.Errorf(MsgNodeDestroyFail, guildID, errors.New(MsgNodeSessionMissing))
	}
	path := fmt.Sprintf("/v4/sessions/%s/players/%s", sessionID, guildID)
	if err := n.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf(MsgNodeDestroyFail, guildID, err)
	}
	return nil
}

func (n *Node) configureResuming(ctx context.Context) error {
	sessionID := n.SessionID()
	if sessionID == "" {
		return errors.New(MsgNodeSessionMissing)
	}
	body := map[string]any{
		"resuming": true,
		"timeout":  60,
	}
	return n.do(ctx, http.MethodPatch, "/v4/sessions/"+sessionID, body, nil)
}
