package main

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Player System
// ============================================================================

const (
	MsgPlayerSessionCreated  = "Session created for guild %s (channel %s)"
	MsgPlayerSessionDestroy  = "Session destroyed for guild %s"
	MsgPlayerTrackStart      = "Now playing %q in guild %s"
	MsgPlayerTrackEnd        = "Track ended in guild %s (reason: %s)"
	MsgPlayerTrackError      = "Track error in guild %s: %s"
	MsgPlayerRetrying        = "Retrying %q in guild %s (attempt %d/%d)"
	MsgPlayerRetryGiveUp     = "Dropping %q in guild %s after %d attempts"
	MsgPlayerAutoplayPicked  = "Autoplay picked %q in guild %s"
	MsgPlayerAutoplayFail    = "Autoplay lookup failed in guild %s: %v"
	MsgPlayerIdleLeave       = "Leaving guild %s (idle timeout)"
	MsgPlayerEmptyLeave      = "Leaving guild %s (channel empty)"
	MsgPlayerEmptyPause      = "Pausing playback in guild %s (no listeners)"
	MsgPlayerEmptyResume     = "Resuming playback in guild %s"
	MsgPlayerKicked          = "Bot disconnected by external event in guild %s"
	MsgPlayerMoved           = "Bot moved from %s to %s in guild %s"
	MsgPlayerVoicePushFail   = "Failed to push voice credentials for guild %s: %v"
	MsgPlayerCommandFail     = "Node command failed for guild %s: %v"
	MsgPlayerRebinding       = "Rebinding %d live sessions after node reconnect"
	MsgPlayerSocketClosed    = "Voice socket closed in guild %s (code %d, remote %v): %s"
	MsgPlayerSettingsRestore = "Failed to load settings for guild %s: %v"
	MsgPlayerShutdown        = "Shutting down Player Manager..."
)

const (
	maxTrackRetries = 3
	retryBackoff    = 2 * time.Second
)

type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopTrack
	LoopQueue
)

func (m LoopMode) String() string {
	switch m {
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	}
	return "off"
}

// PlayerCommander is the node command surface a session drives.
type PlayerCommander interface {
	UpdatePlayer(ctx context.Context, guildID snowflake.ID, update PlayerUpdate, noReplace bool) error
	DestroyPlayer(ctx context.Context, guildID snowflake.ID) error
}

// AutoplaySource finds a related follow-up track for a seed.
type AutoplaySource interface {
	Autoplay(ctx context.Context, seed *Track) (*Track, error)
}

var (
	PlayerManager *PlayerSystem
	OncePlayer    sync.Once
)

type PlayerSystem struct {
	mu       sync.Mutex
	sessions map[snowflake.ID]*PlayerSession

	client   bot.Client
	node     *Node
	cascade  *Cascade
	commands PlayerCommander
	autoplay AutoplaySource
}

func init() {
	OnClientReady(func(ctx context.Context, client bot.Client) {
		ps := GetPlayerManager()
		ps.start(ctx, client)

		RegisterVoiceStateUpdateHandler(ps.onVoiceStateUpdate)
		RegisterVoiceServerUpdateHandler(ps.onVoiceServerUpdate)

		RegisterDaemon(LogPlayer, func(ctx context.Context) (bool, func(), func()) {
			return true, func() {}, func() {
				LogPlayer(MsgPlayerShutdown)
				ps.Shutdown(context.Background())
			}
		})
	})
}

// GetPlayerManager returns the singleton PlayerSystem instance
func GetPlayerManager() *PlayerSystem {
	OncePlayer.Do(func() {
		PlayerManager = &PlayerSystem{
			sessions: make(map[snowflake.ID]*PlayerSession),
		}
	})
	return PlayerManager
}

func (ps *PlayerSystem) start(ctx context.Context, client bot.Client) {
	ps.client = client

	node := NewNode(GlobalConfig, client.ApplicationID, NodeHandlers{
		OnReady: func(resumed bool) {
			safeGo(func() { ps.onNodeReady(resumed) })
		},
		OnPlayerUpdate: func(guildID snowflake.ID, state PlayerState) {
			if s := ps.GetSession(guildID); s != nil {
				s.handlePlayerUpdate(state)
			}
		},
		OnTrackStart: func(guildID snowflake.ID, track *Track) {
			if s := ps.GetSession(guildID); s != nil {
				safeGo(func() { s.handleTrackStart(track) })
			}
		},
		OnTrackEnd: func(guildID snowflake.ID, track *Track, reason string) {
			if s := ps.GetSession(guildID); s != nil {
				safeGo(func() { s.handleTrackEnd(reason) })
			}
		},
		OnTrackError: func(guildID snowflake.ID, track *Track, message string) {
			if s := ps.GetSession(guildID); s != nil {
				safeGo(func() { s.handleTrackError(message) })
			}
		},
		OnSocketClosed: func(guildID snowflake.ID, code int, reason string, byRemote bool) {
			LogWarn(MsgPlayerSocketClosed, guildID, code, byRemote, reason)
			if s := ps.GetSession(guildID); s != nil && code != 4014 {
				safeGo(func() { s.pushVoice(AppContext) })
			}
		},
	})
	node.Connect(ctx)

	ps.node = node
	ps.commands = node
	ps.cascade = NewCascade(node, NewSpotifyClient(GlobalConfig), GlobalConfig)
	ps.autoplay = ps.cascade
}

func (ps *PlayerSystem) Node() *Node       { return ps.node }
func (ps *PlayerSystem) Cascade() *Cascade { return ps.cascade }

// GetSession retrieves the playback session for a guild
func (ps *PlayerSystem) GetSession(guildID snowflake.ID) *PlayerSession {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.sessions[guildID]
}

// Sessions returns a snapshot of all live sessions.
func (ps *PlayerSystem) Sessions() []*PlayerSession {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make([]*PlayerSession, 0, len(ps.sessions))
	for _, s := range ps.sessions {
		out = append(out, s)
	}
	return out
}

// Connect creates or reuses a session and joins the voice channel.
func (ps *PlayerSystem) Connect(ctx context.Context, guildID, channelID, textChannelID snowflake.ID) (*PlayerSession, error) {
	ps.mu.Lock()
	s, ok := ps.sessions[guildID]
	if !ok {
		s = &PlayerSession{
			GuildID:       guildID,
			ChannelID:     channelID,
			TextChannelID: textChannelID,
			system:        ps,
			volume:        GlobalConfig.DefaultVolume,
		}
		if settings, err := GetGuildSettings(ctx, guildID); err == nil {
			s.volume = settings.Volume
			s.twentyFourSeven = settings.TwentyFourSeven
		} else {
			LogWarn(MsgPlayerSettingsRestore, guildID, err)
		}
		ps.sessions[guildID] = s
		LogPlayer(MsgPlayerSessionCreated, guildID, channelID)
	}
	ps.mu.Unlock()

	s.mu.Lock()
	s.ChannelID = channelID
	s.TextChannelID = textChannelID
	s.mu.Unlock()

	if err := ps.client.UpdateVoiceState(ctx, guildID, &channelID, false, true); err != nil {
		return nil, err
	}
	return s, nil
}

// Destroy tears a session down. Safe to call for guilds without one.
func (ps *PlayerSystem) Destroy(ctx context.Context, guildID snowflake.ID) {
	ps.mu.Lock()
	s, ok := ps.sessions[guildID]
	if ok {
		delete(ps.sessions, guildID)
	}
	ps.mu.Unlock()

	if !ok {
		return
	}
	s.teardown(ctx)
	LogPlayer(MsgPlayerSessionDestroy, guildID)
}

func (ps *PlayerSystem) Shutdown(ctx context.Context) {
	ps.mu.Lock()
	sessions := make([]*PlayerSession, 0, len(ps.sessions))
	for _, s := range ps.sessions {
		sessions = append(sessions, s)
	}
	ps.sessions = make(map[snowflake.ID]*PlayerSession)
	ps.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *PlayerSession) {
			defer wg.Done()
			s.teardown(ctx)
		}(s)
	}
	wg.Wait()
}

// onNodeReady re-binds live players after the node accepted a fresh session.
func (ps *PlayerSystem) onNodeReady(resumed bool) {
	if resumed {
		return
	}
	sessions := ps.Sessions()
	live := 0
	for _, s := range sessions {
		if s.Current() != nil {
			live++
		}
	}
	if live > 0 {
		LogPlayer(MsgPlayerRebinding, live)
	}
	for _, s := range sessions {
		s.rebind(AppContext)
	}
}

// ============================================================================
// Voice Gateway Plumbing
// ============================================================================

func (ps *PlayerSystem) onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	s := ps.GetSession(event.VoiceState.GuildID)

	if event.VoiceState.UserID == event.Client().ApplicationID {
		ps.handleBotVoiceStateUpdate(event, s)
		return
	}
	if s != nil {
		s.updatePresenceState(event)
	}
}

func (ps *PlayerSystem) handleBotVoiceStateUpdate(event *events.GuildVoiceStateUpdate, s *PlayerSession) {
	if s == nil {
		return
	}

	if event.VoiceState.ChannelID == nil {
		LogPlayer(MsgPlayerKicked, event.VoiceState.GuildID)
		ps.Destroy(AppContext, event.VoiceState.GuildID)
		return
	}

	s.mu.Lock()
	if s.ChannelID != *event.VoiceState.ChannelID {
		LogPlayer(MsgPlayerMoved, s.ChannelID, *event.VoiceState.ChannelID, event.VoiceState.GuildID)
		s.ChannelID = *event.VoiceState.ChannelID
	}
	s.voiceSessionID = event.VoiceState.SessionID
	ready := s.voiceToken != "" && s.voiceEndpoint != ""
	s.mu.Unlock()

	if ready {
		s.pushVoice(AppContext)
	}
}

func (ps *PlayerSystem) onVoiceServerUpdate(event *events.VoiceServerUpdate) {
	s := ps.GetSession(event.GuildID)
	if s == nil || event.Endpoint == nil {
		return
	}

	s.mu.Lock()
	s.voiceToken = event.Token
	s.voiceEndpoint = *event.Endpoint
	ready := s.voiceSessionID != ""
	s.mu.Unlock()

	if ready {
		s.pushVoice(AppContext)
	}
}

// ============================================================================
// Player Session
// ============================================================================

// PlayerSession is the per-guild playback state machine. All mutable state is
// guarded by mu; node events and commands are serialized through it.
type PlayerSession struct {
	GuildID       snowflake.ID
	ChannelID     snowflake.ID
	TextChannelID snowflake.ID

	system *PlayerSystem

	mu       sync.Mutex
	queue    []*Track
	current  *Track
	previous *Track

	loopMode        LoopMode
	autoplay        bool
	twentyFourSeven bool
	playing         bool
	paused          bool
	pausedByEmpty   bool
	volume          int
	filterName      string
	retryCount      int
	position        time.Duration
	destroyed       bool

	voiceSessionID string
	voiceToken     string
	voiceEndpoint  string

	idleTimer  *time.Timer
	emptyTimer *time.Timer
}

func (s *PlayerSession) Current() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *PlayerSession) Previous() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previous
}

func (s *PlayerSession) Queue() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Track, len(s.queue))
	copy(out, s.queue)
	return out
}

func (s *PlayerSession) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *PlayerSession) State() (playing bool, paused bool, loop LoopMode, autoplay bool, tfs bool, volume int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing, s.paused, s.loopMode, s.autoplay, s.twentyFourSeven, s.volume
}

// Enqueue appends tracks (or inserts them at the head with next) and starts
// playback when idle. Returns the queue position of the first added track, 0
// meaning it started immediately.
func (s *PlayerSession) Enqueue(ctx context.Context, tracks []*Track, next bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || len(tracks) == 0 {
		return 0
	}

	if next {
		s.queue = append(append([]*Track{}, tracks...), s.queue...)
	} else {
		s.queue = append(s.queue, tracks...)
	}

	if s.current == nil {
		s.advanceLocked(ctx)
		return 0
	}
	if next {
		return 1
	}
	return len(s.queue)
}

// advanceLocked pops the next track and plays it, or finishes playback when
// the queue is exhausted. Caller holds s.mu.
func (s *PlayerSession) advanceLocked(ctx context.Context) {
	if s.destroyed {
		return
	}
	if len(s.queue) == 0 {
		s.current = nil
		s.playing = false
		s.position = 0
		s.stopPlayerLocked(ctx)
		s.finishLocked(ctx)
		return
	}

	s.current = s.queue[0]
	s.queue = s.queue[1:]
	s.playLocked(ctx, s.current, 0)
}

// finishLocked handles queue exhaustion: autoplay extension or idle timer.
// Caller holds s.mu.
func (s *PlayerSession) finishLocked(ctx context.Context) {
	if s.autoplay && s.previous != nil {
		seed := s.previous
		safeGo(func() { s.runAutoplay(ctx, seed) })
		return
	}
	s.startIdleTimerLocked()
	safeGo(func() {
		s.setVoiceStatus("")
		s.system.updatePresence(ctx, nil)
	})
}

func (s *PlayerSession) runAutoplay(ctx context.Context, seed *Track) {
	track, err := s.system.autoplay.Autoplay(ctx, seed)
	if err != nil {
		LogPlayer(MsgPlayerAutoplayFail, s.GuildID, err)
		s.mu.Lock()
		s.startIdleTimerLocked()
		s.mu.Unlock()
		return
	}
	LogPlayer(MsgPlayerAutoplayPicked, track.Info.Title, s.GuildID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || s.current != nil {
		return
	}
	s.current = track
	s.playLocked(ctx, track, 0)
}

// playLocked submits a track to the node. Any pending departure timer is
// cancelled, playback is about to resume. Caller holds s.mu.
func (s *PlayerSession) playLocked(ctx context.Context, track *Track, position time.Duration) {
	s.stopTimersLocked()
	s.paused = false
	update := PlayerUpdate{
		Track:  omit.New(UpdateTrack{Encoded: &track.Encoded}),
		Volume: omit.New(s.volume),
	}
	if position > 0 {
		update.Position = omit.New(position.Milliseconds())
	}
	if err := s.system.commands.UpdatePlayer(ctx, s.GuildID, update, false); err != nil {
		LogError(MsgPlayerCommandFail, s.GuildID, err)
	}
}

// stopPlayerLocked stops the node player without destroying it. Caller holds
// s.mu.
func (s *PlayerSession) stopPlayerLocked(ctx context.Context) {
	update := PlayerUpdate{Track: omit.New(UpdateTrack{Encoded: nil})}
	if err := s.system.commands.UpdatePlayer(ctx, s.GuildID, update, false); err != nil {
		LogError(MsgPlayerCommandFail, s.GuildID, err)
	}
}

// ============================================================================
// Node Event Handling
// ============================================================================

func (s *PlayerSession) handleTrackStart(track *Track) {
	s.mu.Lock()
	s.retryCount = 0
	s.playing = true
	s.paused = false
	s.position = 0
	s.stopTimersLocked()
	current := s.current
	s.mu.Unlock()

	if current == nil {
		current = track
	}
	LogPlayer(MsgPlayerTrackStart, current.Info.Title, s.GuildID)

	announceNowPlaying(s, current)
	s.setVoiceStatus("🎵 " + current.Info.Author + " - " + current.Info.Title)
	s.system.updatePresence(AppContext, current)
}

func (s *PlayerSession) handleTrackEnd(reason string) {
	LogPlayer(MsgPlayerTrackEnd, s.GuildID, reason)

	switch reason {
	case EndReasonReplaced, EndReasonStopped, EndReasonCleanup:
		// the action that caused these already decided what happens next
		return
	case EndReasonLoadFailed:
		s.retryCurrent()
		return
	}

	// finished
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}

	ended := s.current
	s.previous = ended

	switch {
	case s.loopMode == LoopTrack && ended != nil:
		s.playLocked(AppContext, ended, 0)
	case s.loopMode == LoopQueue && ended != nil:
		s.queue = append(s.queue, ended)
		s.advanceLocked(AppContext)
	default:
		s.advanceLocked(AppContext)
	}
}

func (s *PlayerSession) handleTrackError(message string) {
	LogWarn(MsgPlayerTrackError, s.GuildID, message)
	s.retryCurrent()
}

// retryCurrent resubmits the failing track with a fixed backoff until the
// consecutive failure count reaches maxTrackRetries, then drops it and moves
// on.
func (s *PlayerSession) retryCurrent() {
	s.mu.Lock()
	if s.destroyed || s.current == nil {
		s.mu.Unlock()
		return
	}

	s.retryCount++
	track := s.current
	if s.retryCount >= maxTrackRetries {
		LogWarn(MsgPlayerRetryGiveUp, track.Info.Title, s.GuildID, maxTrackRetries)
		s.retryCount = 0
		s.previous = track
		s.advanceLocked(AppContext)
		s.mu.Unlock()
		announceTrackDropped(s, track)
		return
	}
	attempt := s.retryCount
	s.mu.Unlock()

	LogPlayer(MsgPlayerRetrying, track.Info.Title, s.GuildID, attempt, maxTrackRetries)
	time.AfterFunc(retryBackoff, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.destroyed || s.current != track {
			return
		}
		s.playLocked(AppContext, track, 0)
	})
}

func (s *PlayerSession) handlePlayerUpdate(state PlayerState) {
	s.mu.Lock()
	s.position = time.Duration(state.Position) * time.Millisecond
	s.mu.Unlock()
}

// rebind re-pushes voice credentials and resubmits the current track after a
// node reconnect established a fresh session.
func (s *PlayerSession) rebind(ctx context.Context) {
	s.pushVoice(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || s.current == nil {
		return
	}
	s.playLocked(ctx, s.current, s.position)
}

// ============================================================================
// Commands
// ============================================================================

// Skip moves to the next track. Queue loop keeps the skipped track by pushing
// it to the tail.
func (s *PlayerSession) Skip(ctx context.Context) *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil
	}

	skipped := s.current
	if s.loopMode == LoopQueue && skipped != nil {
		s.queue = append(s.queue, skipped)
	}
	s.previous = skipped
	s.advanceLocked(ctx)
	return skipped
}

// Stop clears the queue and stops playback without leaving the channel.
func (s *PlayerSession) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}

	s.queue = nil
	s.previous = s.current
	s.current = nil
	s.playing = false
	s.paused = false
	s.position = 0
	s.stopPlayerLocked(ctx)
	s.startIdleTimerLocked()

	safeGo(func() {
		s.setVoiceStatus("")
		s.system.updatePresence(ctx, nil)
	})
}

func (s *PlayerSession) SetPaused(ctx context.Context, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || s.paused == paused {
		return
	}
	s.paused = paused
	s.pausedByEmpty = false
	update := PlayerUpdate{Paused: omit.New(paused)}
	if err := s.system.commands.UpdatePlayer(ctx, s.GuildID, update, false); err != nil {
		LogError(MsgPlayerCommandFail, s.GuildID, err)
	}
}

func (s *PlayerSession) Seek(ctx context.Context, position time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || s.current == nil || s.current.Info.IsStream {
		return false
	}
	if position < 0 {
		position = 0
	}
	if max := s.current.Duration(); max > 0 && position > max {
		position = max
	}
	s.position = position
	update := PlayerUpdate{Position: omit.New(position.Milliseconds())}
	if err := s.system.commands.UpdatePlayer(ctx, s.GuildID, update, false); err != nil {
		LogError(MsgPlayerCommandFail, s.GuildID, err)
		return false
	}
	return true
}

// SetVolume clamps and applies the volume, persisting it per guild.
func (s *PlayerSession) SetVolume(ctx context.Context, volume int) int {
	if volume < 0 {
		volume = 0
	}
	if volume > GlobalConfig.MaxVolume {
		volume = GlobalConfig.MaxVolume
	}

	s.mu.Lock()
	s.volume = volume
	update := PlayerUpdate{Volume: omit.New(volume)}
	if err := s.system.commands.UpdatePlayer(ctx, s.GuildID, update, false); err != nil {
		LogError(MsgPlayerCommandFail, s.GuildID, err)
	}
	s.mu.Unlock()

	if err := SetGuildVolume(ctx, s.GuildID, volume); err != nil {
		LogWarn(MsgPlayerSettingsRestore, s.GuildID, err)
	}
	return volume
}

func (s *PlayerSession) SetLoop(mode LoopMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopMode = mode
}

func (s *PlayerSession) ToggleAutoplay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoplay = !s.autoplay
	return s.autoplay
}

// SetTwentyFourSeven toggles 24/7 mode. Enabling it cancels any pending
// departure timers.
func (s *PlayerSession) SetTwentyFourSeven(ctx context.Context, enabled bool) {
	s.mu.Lock()
	s.twentyFourSeven = enabled
	if enabled {
		s.stopTimersLocked()
	} else if s.current == nil {
		s.startIdleTimerLocked()
	}
	s.mu.Unlock()

	if err := SetGuildTwentyFourSeven(ctx, s.GuildID, enabled); err != nil {
		LogWarn(MsgPlayerSettingsRestore, s.GuildID, err)
	}
}

func (s *PlayerSession) Shuffle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	rand.Shuffle(len(s.queue), func(i, j int) {
		s.queue[i], s.queue[j] = s.queue[j], s.queue[i]
	})
}

// Remove deletes the 1-based queue entry and returns it.
func (s *PlayerSession) Remove(index int) *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 1 || index > len(s.queue) {
		return nil
	}
	track := s.queue[index-1]
	s.queue = append(s.queue[:index-1], s.queue[index:]...)
	return track
}

// Jump drops everything before the 1-based queue entry and plays it.
func (s *PlayerSession) Jump(ctx context.Context, index int) *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || index < 1 || index > len(s.queue) {
		return nil
	}
	s.queue = s.queue[index-1:]
	s.previous = s.current
	s.advanceLocked(ctx)
	return s.current
}

// Move relocates a 1-based queue entry to another position.
func (s *PlayerSession) Move(from, to int) *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from < 1 || from > len(s.queue) || to < 1 || to > len(s.queue) {
		return nil
	}
	track := s.queue[from-1]
	s.queue = append(s.queue[:from-1], s.queue[from:]...)
	tail := append([]*Track{}, s.queue[to-1:]...)
	s.queue = append(s.queue[:to-1], track)
	s.queue = append(s.queue, tail...)
	return track
}

// Clear empties the queue but keeps the current track playing.
func (s *PlayerSession) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	s.queue = nil
	return n
}

// Replay restarts the current track from the beginning.
func (s *PlayerSession) Replay(ctx context.Context) bool {
	return s.Seek(ctx, 0)
}

// ApplyFilter sets a named filter preset on the player.
func (s *PlayerSession) ApplyFilter(ctx context.Context, name string, filters Filters) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return false
	}
	s.filterName = name
	update := PlayerUpdate{Filters: omit.New(filters)}
	if err := s.system.commands.UpdatePlayer(ctx, s.GuildID, update, false); err != nil {
		LogError(MsgPlayerCommandFail, s.GuildID, err)
		return false
	}
	return true
}

func (s *PlayerSession) FilterName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterName
}

// ============================================================================
// Timers & Presence
// ============================================================================

// startIdleTimerLocked arms the idle departure timer. 24/7 mode suppresses
// it. Caller holds s.mu.
func (s *PlayerSession) startIdleTimerLocked() {
	s.stopTimersLocked()
	if s.twentyFourSeven || s.destroyed {
		return
	}
	guildID := s.GuildID
	var timer *time.Timer
	timer = time.AfterFunc(GlobalConfig.LeaveTimeout, func() {
		s.mu.Lock()
		// playback may have resumed while the timer was in flight
		expired := s.idleTimer == timer && !s.destroyed && !s.twentyFourSeven && s.current == nil
		s.mu.Unlock()
		if !expired {
			return
		}
		LogPlayer(MsgPlayerIdleLeave, guildID)
		s.system.Destroy(AppContext, guildID)
	})
	s.idleTimer = timer
}

// startEmptyTimerLocked arms the empty-channel departure timer. Caller holds
// s.mu.
func (s *PlayerSession) startEmptyTimerLocked() {
	s.stopTimersLocked()
	if s.twentyFourSeven || s.destroyed {
		return
	}
	guildID := s.GuildID
	var timer *time.Timer
	timer = time.AfterFunc(GlobalConfig.LeaveTimeout, func() {
		s.mu.Lock()
		// a listener join disarms the timer; only a stale fire gets here
		expired := s.emptyTimer == timer && !s.destroyed && !s.twentyFourSeven
		s.mu.Unlock()
		if !expired {
			return
		}
		LogPlayer(MsgPlayerEmptyLeave, guildID)
		s.system.Destroy(AppContext, guildID)
	})
	s.emptyTimer = timer
}

func (s *PlayerSession) stopTimersLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	if s.emptyTimer != nil {
		s.emptyTimer.Stop()
		s.emptyTimer = nil
	}
}

// updatePresenceState counts the humans left in the session's channel and
// feeds the result to the listener state machine.
func (s *PlayerSession) updatePresenceState(event *events.GuildVoiceStateUpdate) {
	s.mu.Lock()
	channelID := s.ChannelID
	s.mu.Unlock()

	if channelID == 0 {
		return
	}

	humanCount := 0
	for state := range event.Client().Caches.VoiceStates(event.VoiceState.GuildID) {
		if state.ChannelID == nil || *state.ChannelID != channelID || state.UserID == event.Client().ApplicationID {
			continue
		}
		if m, ok := event.Client().Caches.Member(event.VoiceState.GuildID, state.UserID); !ok || !m.User.Bot {
			humanCount++
		}
	}

	s.handleListenerChange(humanCount)
}

// handleListenerChange pauses playback and arms the empty-channel timer when
// the last listener leaves, and undoes exactly that when one returns. Only a
// pause issued here is resumed on join; a user's own pause stays put.
func (s *PlayerSession) handleListenerChange(humanCount int) {
	s.mu.Lock()
	playing := s.playing
	paused := s.paused
	tfs := s.twentyFourSeven
	s.mu.Unlock()

	if humanCount == 0 {
		if tfs || !playing || paused {
			return
		}
		LogPlayer(MsgPlayerEmptyPause, s.GuildID)
		s.SetPaused(AppContext, true)
		s.mu.Lock()
		s.pausedByEmpty = true
		s.startEmptyTimerLocked()
		s.mu.Unlock()
		return
	}

	// someone is listening again; the empty timer never survives a join
	s.mu.Lock()
	resume := s.pausedByEmpty
	s.pausedByEmpty = false
	if s.emptyTimer != nil {
		s.emptyTimer.Stop()
		s.emptyTimer = nil
	}
	s.mu.Unlock()

	if resume {
		LogPlayer(MsgPlayerEmptyResume, s.GuildID)
		s.SetPaused(AppContext, false)
	}
}

// pushVoice forwards the gateway voice credentials to the node player.
func (s *PlayerSession) pushVoice(ctx context.Context) {
	s.mu.Lock()
	if s.voiceSessionID == "" || s.voiceToken == "" || s.voiceEndpoint == "" {
		s.mu.Unlock()
		return
	}
	voice := VoiceServer{
		Token:     s.voiceToken,
		Endpoint:  s.voiceEndpoint,
		SessionID: s.voiceSessionID,
	}
	s.mu.Unlock()

	update := PlayerUpdate{Voice: omit.New(voice)}
	if err := s.system.commands.UpdatePlayer(ctx, s.GuildID, update, false); err != nil {
		LogWarn(MsgPlayerVoicePushFail, s.GuildID, err)
	}
}

// setVoiceStatus updates the voice channel status line.
func (s *PlayerSession) setVoiceStatus(status string) {
	s.mu.Lock()
	channelID := s.ChannelID
	s.mu.Unlock()
	if channelID == 0 {
		return
	}
	route := rest.NewEndpoint(http.MethodPut, "/channels/"+channelID.String()+"/voice-status")
	_ = s.system.client.Rest.Do(route.Compile(nil), map[string]string{"status": Truncate(status, 500)}, nil)
}

func (ps *PlayerSystem) updatePresence(ctx context.Context, track *Track) {
	if ps.client.Gateway == nil {
		return
	}
	if track == nil {
		_ = ps.client.SetPresence(ctx, gateway.WithListeningActivity("/play"))
		return
	}
	_ = ps.client.SetPresence(ctx, gateway.WithListeningActivity(Truncate(track.Info.Title, 100)))
}

// teardown releases everything a session holds. Idempotent.
func (s *PlayerSession) teardown(ctx context.Context) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.stopTimersLocked()
	s.queue = nil
	s.current = nil
	s.playing = false
	s.mu.Unlock()

	s.setVoiceStatus("")
	if err := s.system.commands.DestroyPlayer(ctx, s.GuildID); err != nil {
		LogWarn(MsgPlayerCommandFail, s.GuildID, err)
	}
	if s.system.client.Gateway != nil {
		_ = s.system.client.UpdateVoiceState(ctx, s.GuildID, nil, false, false)
	}
	s.system.updatePresence(ctx, nil)
}
