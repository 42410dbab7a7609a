package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	InitLogger(true, false)
	GlobalConfig = &Config{
		Token:           "test-token",
		LavalinkHost:    "127.0.0.1",
		LavalinkPort:    "2333",
		SearchPlatforms: DefaultPlatformOrder(),
		DefaultVolume:   50,
		MaxVolume:       100,
		LeaveTimeout:    2 * time.Minute,
	}
	if err := InitDatabase(context.Background(), "file::memory:?cache=shared"); err != nil {
		panic(err)
	}
	code := m.Run()
	CloseDatabase()
	os.Exit(code)
}

// -- Fakes -------------------------------------------------------------------

type fakeCommander struct {
	mu       sync.Mutex
	updates  []PlayerUpdate
	destroys int
	err      error
}

func (f *fakeCommander) UpdatePlayer(_ context.Context, _ snowflake.ID, update PlayerUpdate, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
	return f.err
}

func (f *fakeCommander) DestroyPlayer(_ context.Context, _ snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroys++
	return f.err
}

func (f *fakeCommander) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

// lastUpdateJSON renders the most recent player patch the node saw.
func (f *fakeCommander) lastUpdateJSON(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.updates)
	raw, err := json.Marshal(f.updates[len(f.updates)-1])
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

type fakeAutoplay struct {
	mu    sync.Mutex
	track *Track
	err   error
	calls int
}

func (f *fakeAutoplay) Autoplay(_ context.Context, _ *Track) (*Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.track, f.err
}

func newTestSession(commander PlayerCommander, autoplay AutoplaySource) (*PlayerSystem, *PlayerSession) {
	sys := &PlayerSystem{
		sessions: make(map[snowflake.ID]*PlayerSession),
		commands: commander,
		autoplay: autoplay,
	}
	guildID := snowflake.ID(100)
	s := &PlayerSession{
		GuildID: guildID,
		system:  sys,
		volume:  GlobalConfig.DefaultVolume,
	}
	sys.sessions[guildID] = s
	return sys, s
}

func testTrack(title string) *Track {
	return &Track{
		Encoded: "enc-" + title,
		Info: TrackInfo{
			Identifier: "id-" + title,
			Title:      title,
			Author:     "Artist",
			Length:     180000,
			URI:        "https://example.com/" + title,
			IsSeekable: true,
			SourceName: "deezer",
		},
	}
}

// -- Queue & playback --------------------------------------------------------

func TestEnqueueStartsPlaybackWhenIdle(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	t1, t2 := testTrack("one"), testTrack("two")
	pos := s.Enqueue(context.Background(), []*Track{t1, t2}, false)

	assert.Equal(t, 0, pos)
	assert.Equal(t, t1, s.Current())
	require.Len(t, s.Queue(), 1)
	assert.Equal(t, t2, s.Queue()[0])

	update := commander.lastUpdateJSON(t)
	track, ok := update["track"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "enc-one", track["encoded"])
	assert.Equal(t, float64(50), update["volume"])
}

func TestEnqueueNextInsertsAtHead(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{testTrack("playing"), testTrack("queued")}, false)
	pos := s.Enqueue(context.Background(), []*Track{testTrack("urgent")}, true)

	assert.Equal(t, 1, pos)
	queue := s.Queue()
	require.Len(t, queue, 2)
	assert.Equal(t, "urgent", queue[0].Info.Title)
	assert.Equal(t, "queued", queue[1].Info.Title)
}

func TestEnqueueAppendReportsPosition(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{testTrack("playing")}, false)
	pos := s.Enqueue(context.Background(), []*Track{testTrack("later")}, false)

	assert.Equal(t, 1, pos)
}

// -- Track end handling ------------------------------------------------------

func TestTrackEndExternalReasonsAreIgnored(t *testing.T) {
	for _, reason := range []string{EndReasonReplaced, EndReasonStopped, EndReasonCleanup} {
		commander := &fakeCommander{}
		_, s := newTestSession(commander, nil)

		s.Enqueue(context.Background(), []*Track{testTrack("one"), testTrack("two")}, false)
		before := commander.updateCount()

		s.handleTrackEnd(reason)

		assert.Equal(t, "one", s.Current().Info.Title, "reason %s must not advance", reason)
		assert.Len(t, s.Queue(), 1, "reason %s must not touch the queue", reason)
		assert.Equal(t, before, commander.updateCount(), "reason %s must not issue commands", reason)
	}
}

func TestTrackEndFinishedAdvances(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	t1 := testTrack("one")
	s.Enqueue(context.Background(), []*Track{t1, testTrack("two")}, false)
	s.handleTrackEnd(EndReasonFinished)

	assert.Equal(t, "two", s.Current().Info.Title)
	assert.Equal(t, t1, s.Previous())
	assert.Empty(t, s.Queue())
}

func TestLoopTrackResubmitsSameTrack(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{testTrack("looped"), testTrack("waiting")}, false)
	s.SetLoop(LoopTrack)
	s.handleTrackEnd(EndReasonFinished)

	assert.Equal(t, "looped", s.Current().Info.Title)
	assert.Len(t, s.Queue(), 1, "queue must be untouched by track loop")

	update := commander.lastUpdateJSON(t)
	track := update["track"].(map[string]any)
	assert.Equal(t, "enc-looped", track["encoded"])
}

func TestLoopQueueRequeuesFinishedTrack(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{testTrack("first"), testTrack("second")}, false)
	s.SetLoop(LoopQueue)
	s.handleTrackEnd(EndReasonFinished)

	assert.Equal(t, "second", s.Current().Info.Title)
	queue := s.Queue()
	require.Len(t, queue, 1)
	assert.Equal(t, "first", queue[0].Info.Title)
}

func TestSkipWithLoopQueueKeepsSkippedTrack(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{testTrack("first"), testTrack("second")}, false)
	s.SetLoop(LoopQueue)

	skipped := s.Skip(context.Background())

	require.NotNil(t, skipped)
	assert.Equal(t, "first", skipped.Info.Title)
	assert.Equal(t, "second", s.Current().Info.Title)
	queue := s.Queue()
	require.Len(t, queue, 1)
	assert.Equal(t, "first", queue[0].Info.Title)
}

func TestSkipWithoutLoopDropsTrack(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{testTrack("first"), testTrack("second")}, false)
	skipped := s.Skip(context.Background())

	require.NotNil(t, skipped)
	assert.Equal(t, "second", s.Current().Info.Title)
	assert.Empty(t, s.Queue())
	assert.Equal(t, skipped, s.Previous())
}

// -- Retry handling ----------------------------------------------------------

func TestLoadFailureResubmitsAfterBackoff(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{testTrack("flaky")}, false)
	before := commander.updateCount()

	s.handleTrackEnd(EndReasonLoadFailed)

	s.mu.Lock()
	assert.Equal(t, 1, s.retryCount)
	s.mu.Unlock()
	assert.Equal(t, "flaky", s.Current().Info.Title, "track must stay current while retrying")

	assert.Eventually(t, func() bool {
		return commander.updateCount() > before
	}, 4*time.Second, 50*time.Millisecond, "resubmit must happen after the backoff")
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	failing := testTrack("broken")
	s.Enqueue(context.Background(), []*Track{failing, testTrack("next")}, false)

	for i := 1; i < maxTrackRetries; i++ {
		s.handleTrackError("decode failure")
		assert.Equal(t, "broken", s.Current().Info.Title, "attempt %d must keep the track current", i)
	}
	s.handleTrackError("decode failure")

	assert.Equal(t, "next", s.Current().Info.Title, "the final failure must drop the track")
	assert.Equal(t, failing, s.Previous())
	s.mu.Lock()
	assert.Equal(t, 0, s.retryCount, "retry budget resets for the next track")
	s.mu.Unlock()
}

func TestTrackStartResetsRetryCount(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	track := testTrack("recovered")
	s.Enqueue(context.Background(), []*Track{track}, false)
	s.mu.Lock()
	s.retryCount = 2
	s.mu.Unlock()

	s.handleTrackStart(track)

	playing, paused, _, _, _, _ := s.State()
	assert.True(t, playing)
	assert.False(t, paused)
	s.mu.Lock()
	assert.Equal(t, 0, s.retryCount)
	s.mu.Unlock()
}

// -- Autoplay ----------------------------------------------------------------

func TestAutoplayExtendsExhaustedQueue(t *testing.T) {
	related := testTrack("related")
	related.IsAutoplay = true
	commander := &fakeCommander{}
	autoplay := &fakeAutoplay{track: related}
	_, s := newTestSession(commander, autoplay)

	s.Enqueue(context.Background(), []*Track{testTrack("seed")}, false)
	s.ToggleAutoplay()
	s.handleTrackEnd(EndReasonFinished)

	assert.Eventually(t, func() bool {
		current := s.Current()
		return current != nil && current.Info.Title == "related"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAutoplayFailureArmsIdleTimer(t *testing.T) {
	commander := &fakeCommander{}
	autoplay := &fakeAutoplay{err: errors.New("nothing related")}
	_, s := newTestSession(commander, autoplay)

	s.Enqueue(context.Background(), []*Track{testTrack("seed")}, false)
	s.ToggleAutoplay()
	s.handleTrackEnd(EndReasonFinished)

	assert.Nil(t, s.Current())
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.idleTimer != nil
	}, 2*time.Second, 10*time.Millisecond)
}

// -- Timers ------------------------------------------------------------------

func TestDepartureTimersAreMutuallyExclusive(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.mu.Lock()
	s.startIdleTimerLocked()
	require.NotNil(t, s.idleTimer)
	s.startEmptyTimerLocked()
	assert.Nil(t, s.idleTimer, "arming the empty timer must cancel the idle timer")
	assert.NotNil(t, s.emptyTimer)
	s.startIdleTimerLocked()
	assert.Nil(t, s.emptyTimer, "arming the idle timer must cancel the empty timer")
	assert.NotNil(t, s.idleTimer)
	s.mu.Unlock()
}

func TestTwentyFourSevenSuppressesTimers(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.SetTwentyFourSeven(context.Background(), true)

	s.mu.Lock()
	s.startIdleTimerLocked()
	assert.Nil(t, s.idleTimer)
	s.startEmptyTimerLocked()
	assert.Nil(t, s.emptyTimer)
	s.mu.Unlock()
}

func TestDisablingTwentyFourSevenWhileIdleArmsTimer(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.SetTwentyFourSeven(context.Background(), true)
	s.SetTwentyFourSeven(context.Background(), false)

	s.mu.Lock()
	assert.NotNil(t, s.idleTimer)
	s.mu.Unlock()
}

func TestTrackStartCancelsTimers(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.mu.Lock()
	s.startIdleTimerLocked()
	s.mu.Unlock()

	track := testTrack("fresh")
	s.Enqueue(context.Background(), []*Track{track}, false)
	s.handleTrackStart(track)

	s.mu.Lock()
	assert.Nil(t, s.idleTimer)
	assert.Nil(t, s.emptyTimer)
	s.mu.Unlock()
}

func TestEnqueueCancelsArmedIdleTimer(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{testTrack("only")}, false)
	s.handleTrackEnd(EndReasonFinished)
	s.mu.Lock()
	require.NotNil(t, s.idleTimer, "queue exhaustion must arm the idle timer")
	s.mu.Unlock()

	s.Enqueue(context.Background(), []*Track{testTrack("more")}, false)

	s.mu.Lock()
	assert.Nil(t, s.idleTimer, "resubmitting playback must disarm the idle timer")
	s.mu.Unlock()
}

func TestIdleTimeoutSparesResumedSession(t *testing.T) {
	commander := &fakeCommander{}
	sys, s := newTestSession(commander, nil)

	old := GlobalConfig.LeaveTimeout
	GlobalConfig.LeaveTimeout = 50 * time.Millisecond
	defer func() { GlobalConfig.LeaveTimeout = old }()

	s.Enqueue(context.Background(), []*Track{testTrack("only")}, false)
	s.handleTrackEnd(EndReasonFinished)
	s.Enqueue(context.Background(), []*Track{testTrack("again")}, false)

	time.Sleep(200 * time.Millisecond)

	assert.NotNil(t, sys.GetSession(s.GuildID), "a session that resumed playback must survive the idle timeout")
	assert.Equal(t, 0, commander.destroys)
}

func TestIdleTimeoutRechecksBeforeLeaving(t *testing.T) {
	commander := &fakeCommander{}
	sys, s := newTestSession(commander, nil)

	old := GlobalConfig.LeaveTimeout
	GlobalConfig.LeaveTimeout = 50 * time.Millisecond
	defer func() { GlobalConfig.LeaveTimeout = old }()

	// playback resumes between the timer firing and the callback running
	s.mu.Lock()
	s.startIdleTimerLocked()
	s.current = testTrack("raced")
	s.mu.Unlock()

	time.Sleep(200 * time.Millisecond)

	assert.NotNil(t, sys.GetSession(s.GuildID))
	assert.Equal(t, 0, commander.destroys)
}

// -- Listener presence -------------------------------------------------------

func TestLastListenerLeavingPausesAndArmsTimer(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	track := testTrack("one")
	s.Enqueue(context.Background(), []*Track{track}, false)
	s.handleTrackStart(track)

	s.handleListenerChange(0)

	_, paused, _, _, _, _ := s.State()
	assert.True(t, paused)
	s.mu.Lock()
	assert.True(t, s.pausedByEmpty)
	assert.NotNil(t, s.emptyTimer)
	s.mu.Unlock()
}

func TestListenerReturnResumesEmptyPause(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	track := testTrack("one")
	s.Enqueue(context.Background(), []*Track{track}, false)
	s.handleTrackStart(track)
	s.handleListenerChange(0)

	s.handleListenerChange(1)

	_, paused, _, _, _, _ := s.State()
	assert.False(t, paused)
	s.mu.Lock()
	assert.False(t, s.pausedByEmpty)
	assert.Nil(t, s.emptyTimer)
	s.mu.Unlock()
}

func TestManualPauseSurvivesListenerJoin(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	track := testTrack("one")
	s.Enqueue(context.Background(), []*Track{track}, false)
	s.handleTrackStart(track)
	s.SetPaused(context.Background(), true)

	s.handleListenerChange(1)

	_, paused, _, _, _, _ := s.State()
	assert.True(t, paused, "a user's own pause must not be resumed by a join")
}

func TestJoinAfterRemoteResumeDisarmsEmptyTimer(t *testing.T) {
	commander := &fakeCommander{}
	sys, s := newTestSession(commander, nil)

	old := GlobalConfig.LeaveTimeout
	GlobalConfig.LeaveTimeout = 50 * time.Millisecond
	defer func() { GlobalConfig.LeaveTimeout = old }()

	track := testTrack("one")
	s.Enqueue(context.Background(), []*Track{track}, false)
	s.handleTrackStart(track)
	s.handleListenerChange(0)
	s.SetPaused(context.Background(), false)

	s.handleListenerChange(1)

	s.mu.Lock()
	assert.Nil(t, s.emptyTimer)
	s.mu.Unlock()

	time.Sleep(200 * time.Millisecond)
	assert.NotNil(t, sys.GetSession(s.GuildID), "an actively listened session must not be destroyed")
	assert.Equal(t, 0, commander.destroys)
}

func TestTwentyFourSevenSkipsEmptyPause(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	track := testTrack("one")
	s.Enqueue(context.Background(), []*Track{track}, false)
	s.handleTrackStart(track)
	s.SetTwentyFourSeven(context.Background(), true)

	s.handleListenerChange(0)

	_, paused, _, _, _, _ := s.State()
	assert.False(t, paused, "persistent sessions keep playing to an empty channel")
	s.mu.Lock()
	assert.Nil(t, s.emptyTimer)
	s.mu.Unlock()
}

// -- Commands ----------------------------------------------------------------

func TestStopClearsEverything(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{testTrack("one"), testTrack("two")}, false)
	s.Stop(context.Background())

	assert.Nil(t, s.Current())
	assert.Empty(t, s.Queue())
	playing, _, _, _, _, _ := s.State()
	assert.False(t, playing)

	update := commander.lastUpdateJSON(t)
	track := update["track"].(map[string]any)
	assert.Nil(t, track["encoded"], "stop must submit a nil encoded track")

	s.mu.Lock()
	assert.NotNil(t, s.idleTimer)
	s.mu.Unlock()
}

func TestSetVolumeClampsAndPersists(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	assert.Equal(t, 100, s.SetVolume(context.Background(), 500))
	assert.Equal(t, 0, s.SetVolume(context.Background(), -10))
	assert.Equal(t, 75, s.SetVolume(context.Background(), 75))

	settings, err := GetGuildSettings(context.Background(), s.GuildID)
	require.NoError(t, err)
	assert.Equal(t, 75, settings.Volume)
}

func TestSeekClampsToTrackBounds(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{testTrack("three-minutes")}, false)

	require.True(t, s.Seek(context.Background(), 10*time.Minute))
	assert.Equal(t, 3*time.Minute, s.Position())

	require.True(t, s.Seek(context.Background(), -5*time.Second))
	assert.Equal(t, time.Duration(0), s.Position())
}

func TestSeekRefusesStreams(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	stream := testTrack("radio")
	stream.Info.IsStream = true
	s.Enqueue(context.Background(), []*Track{stream}, false)

	assert.False(t, s.Seek(context.Background(), time.Minute))
}

func TestQueueEditing(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{
		testTrack("playing"), testTrack("a"), testTrack("b"), testTrack("c"), testTrack("d"),
	}, false)

	assert.Nil(t, s.Remove(0))
	assert.Nil(t, s.Remove(5))

	removed := s.Remove(2)
	require.NotNil(t, removed)
	assert.Equal(t, "b", removed.Info.Title)

	moved := s.Move(1, 3)
	require.NotNil(t, moved)
	assert.Equal(t, "a", moved.Info.Title)
	queue := s.Queue()
	require.Len(t, queue, 3)
	assert.Equal(t, "c", queue[0].Info.Title)
	assert.Equal(t, "d", queue[1].Info.Title)
	assert.Equal(t, "a", queue[2].Info.Title)

	assert.Equal(t, 3, s.Clear())
	assert.Empty(t, s.Queue())
	assert.NotNil(t, s.Current(), "clear must not stop the current track")
}

func TestJumpDropsPrecedingEntries(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{
		testTrack("playing"), testTrack("a"), testTrack("b"), testTrack("c"),
	}, false)

	target := s.Jump(context.Background(), 2)
	require.NotNil(t, target)
	assert.Equal(t, "b", target.Info.Title)
	queue := s.Queue()
	require.Len(t, queue, 1)
	assert.Equal(t, "c", queue[0].Info.Title)
}

func TestPauseIsIdempotent(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{testTrack("one")}, false)
	before := commander.updateCount()

	s.SetPaused(context.Background(), true)
	s.SetPaused(context.Background(), true)

	assert.Equal(t, before+1, commander.updateCount(), "repeated pause must not reissue commands")
	_, paused, _, _, _, _ := s.State()
	assert.True(t, paused)
}

func TestApplyFilterRecordsName(t *testing.T) {
	commander := &fakeCommander{}
	_, s := newTestSession(commander, nil)

	require.True(t, s.ApplyFilter(context.Background(), "nightcore", filterPresets["nightcore"]))
	assert.Equal(t, "nightcore", s.FilterName())

	update := commander.lastUpdateJSON(t)
	filters, ok := update["filters"].(map[string]any)
	require.True(t, ok)
	timescale := filters["timescale"].(map[string]any)
	assert.Equal(t, 1.2, timescale["speed"])
}

func TestDestroyUnknownGuildIsNoop(t *testing.T) {
	commander := &fakeCommander{}
	sys, _ := newTestSession(commander, nil)

	sys.Destroy(context.Background(), snowflake.ID(999))
	assert.Equal(t, 0, commander.destroys)
}

func TestDestroyTearsDownOnce(t *testing.T) {
	commander := &fakeCommander{}
	sys, s := newTestSession(commander, nil)

	s.Enqueue(context.Background(), []*Track{testTrack("one")}, false)

	sys.Destroy(context.Background(), s.GuildID)
	sys.Destroy(context.Background(), s.GuildID)

	assert.Equal(t, 1, commander.destroys)
	assert.Nil(t, sys.GetSession(s.GuildID))
	assert.Nil(t, s.Current())

	// a destroyed session rejects further work
	assert.Equal(t, 0, s.Enqueue(context.Background(), []*Track{testTrack("late")}, false))
	assert.Nil(t, s.Skip(context.Background()))
}

func TestGuildSettingsRoundTrip(t *testing.T) {
	guildID := snowflake.ID(424242)

	settings, err := GetGuildSettings(context.Background(), guildID)
	require.NoError(t, err)
	assert.Equal(t, GlobalConfig.DefaultVolume, settings.Volume)
	assert.False(t, settings.TwentyFourSeven)

	require.NoError(t, SetGuildVolume(context.Background(), guildID, 80))
	require.NoError(t, SetGuildTwentyFourSeven(context.Background(), guildID, true))

	settings, err = GetGuildSettings(context.Background(), guildID)
	require.NoError(t, err)
	assert.Equal(t, 80, settings.Volume)
	assert.True(t, settings.TwentyFourSeven)

	guilds, err := GetTwentyFourSevenGuilds(context.Background())
	require.NoError(t, err)
	assert.Contains(t, guilds, guildID)
}
