package main

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

// ============================================================================
// Music Commands
// ============================================================================

const (
	MsgMusicNotInGuild     = "This command can only be used in a server."
	MsgMusicNotInVoice     = "You need to be in a voice channel."
	MsgMusicNoSession      = "Nothing is playing in this server."
	MsgMusicNothingPlaying = "No track is currently playing."
	MsgMusicJoinFail       = "Failed to join your voice channel: %v"
	MsgMusicNotFound       = "No results found for %q."
	MsgMusicSearchError    = "Search failed: %v"
	MsgMusicQueuedTrack    = "Queued at position %d"
	MsgMusicQueuedList     = "Queued %d tracks from **%s**"
	MsgMusicSkipped        = "Skipped **%s**."
	MsgMusicSkipEmpty      = "Nothing to skip."
	MsgMusicStopped        = "Playback stopped and queue cleared."
	MsgMusicPaused         = "Playback paused."
	MsgMusicResumed        = "Playback resumed."
	MsgMusicSeeked         = "Jumped to `%s`."
	MsgMusicSeekFail       = "Cannot seek this track."
	MsgMusicSeekInvalid    = "Invalid position format (use 1m30s, 45s etc)."
	MsgMusicVolumeSet      = "Volume set to **%d%%**."
	MsgMusicLoopSet        = "Loop mode: **%s**."
	MsgMusicShuffled       = "Queue shuffled (%d tracks)."
	MsgMusicRemoved        = "Removed **%s** from the queue."
	MsgMusicMoved          = "Moved **%s** to position %d."
	MsgMusicJumped         = "Jumped to **%s**."
	MsgMusicInvalidIndex   = "No queue entry at position %d."
	MsgMusicCleared        = "Cleared %d tracks from the queue."
	MsgMusicQueueEmpty     = "The queue is empty."
	MsgMusicAutoplayOn     = "Autoplay is now **enabled**."
	MsgMusicAutoplayOff    = "Autoplay is now **disabled**."
	MsgMusic247On          = "24/7 mode **enabled**. I will stay in the channel."
	MsgMusic247Off         = "24/7 mode **disabled**."
	MsgMusicFilterApplied  = "Filter **%s** applied."
	MsgMusicFilterCleared  = "Filters cleared."
	MsgMusicFilterUnknown  = "Unknown filter: %s"
	MsgMusicFilterFail     = "Failed to apply filter."
	MsgMusicReplayed       = "Replaying **%s**."
	MsgMusicGrabbed        = "Sent you the track details."
	MsgMusicGrabFail       = "Could not DM you. Are your DMs open?"
	MsgMusicDroppedAnnounce = "Skipped **%s** after repeated playback failures."
)

var filterPresets = map[string]Filters{
	"bassboost": {Equalizer: []EqualizerBand{
		{Band: 0, Gain: 0.2}, {Band: 1, Gain: 0.15}, {Band: 2, Gain: 0.1}, {Band: 3, Gain: 0.05},
	}},
	"nightcore": {Timescale: map[string]float64{"speed": 1.2, "pitch": 1.2, "rate": 1.0}},
	"vaporwave": {Timescale: map[string]float64{"speed": 0.85, "pitch": 0.85, "rate": 1.0}},
	"8d":        {Rotation: map[string]float64{"rotationHz": 0.2}},
	"karaoke":   {Karaoke: map[string]float64{"level": 1.0, "monoLevel": 1.0, "filterBand": 220.0, "filterWidth": 100.0}},
	"tremolo":   {Tremolo: map[string]float64{"frequency": 2.0, "depth": 0.5}},
	"vibrato":   {Vibrato: map[string]float64{"frequency": 2.0, "depth": 0.5}},
	"lowpass":   {LowPass: map[string]float64{"smoothing": 20.0}},
}

func init() {
	adminPerm := discord.PermissionAdministrator

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "play",
		Description: "Play a song or playlist",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:         "query",
				Description:  "Song name or URL",
				Required:     true,
				Autocomplete: true,
			},
			discord.ApplicationCommandOptionBool{
				Name:        "next",
				Description: "Insert at the front of the queue",
				Required:    false,
			},
		},
	}, handlePlay)
	RegisterAutocompleteHandler("play", handlePlayAutocomplete)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "skip",
		Description: "Skip the current track",
	}, handleSkip)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "stop",
		Description: "Stop playback and clear the queue",
	}, handleStop)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "pause",
		Description: "Pause playback",
	}, handlePause)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "resume",
		Description: "Resume playback",
	}, handleResume)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "seek",
		Description: "Jump to a position in the current track",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "position",
				Description: "Position to jump to (e.g. 1m30s)",
				Required:    true,
			},
		},
	}, handleSeek)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "replay",
		Description: "Restart the current track",
	}, handleReplay)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "volume",
		Description: "Set the playback volume",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "level",
				Description: "Volume percentage",
				Required:    true,
				MinValue:    intPtr(0),
				MaxValue:    intPtr(200),
			},
		},
	}, handleVolume)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "loop",
		Description: "Set the loop mode",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "mode",
				Description: "Loop mode",
				Required:    true,
				Choices: []discord.ApplicationCommandOptionChoiceString{
					{Name: "Off", Value: "off"},
					{Name: "Track", Value: "track"},
					{Name: "Queue", Value: "queue"},
				},
			},
		},
	}, handleLoop)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "shuffle",
		Description: "Shuffle the queue",
	}, handleShuffle)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "remove",
		Description: "Remove a track from the queue",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "position",
				Description: "Queue position to remove",
				Required:    true,
				MinValue:    intPtr(1),
			},
		},
	}, handleRemove)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "move",
		Description: "Move a queue entry to another position",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "from",
				Description: "Current position",
				Required:    true,
				MinValue:    intPtr(1),
			},
			discord.ApplicationCommandOptionInt{
				Name:        "to",
				Description: "Target position",
				Required:    true,
				MinValue:    intPtr(1),
			},
		},
	}, handleMove)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "jump",
		Description: "Jump to a queue entry, dropping everything before it",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "position",
				Description: "Queue position to jump to",
				Required:    true,
				MinValue:    intPtr(1),
			},
		},
	}, handleJump)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "clear",
		Description: "Clear the queue without stopping the current track",
	}, handleClear)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "queue",
		Description: "Show the current queue",
	}, handleQueue)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "nowplaying",
		Description: "Show the current track",
	}, handleNowPlaying)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "autoplay",
		Description: "Toggle autoplay of related tracks",
	}, handleAutoplay)

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "247",
		Description:              "Keep the bot in the voice channel around the clock (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
	}, handle247)

	filterChoices := []discord.ApplicationCommandOptionChoiceString{{Name: "Clear", Value: "clear"}}
	for name := range filterPresets {
		filterChoices = append(filterChoices, discord.ApplicationCommandOptionChoiceString{Name: name, Value: name})
	}
	RegisterCommand(discord.SlashCommandCreate{
		Name:        "filter",
		Description: "Apply an audio filter",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "name",
				Description: "Filter preset",
				Required:    true,
				Choices:     filterChoices,
			},
		},
	}, handleFilter)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "grab",
		Description: "Send the current track to your DMs",
	}, handleGrab)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "lyrics",
		Description: "Fetch lyrics for the current track or a search",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "query",
				Description: "Song to look up (defaults to the current track)",
				Required:    false,
			},
		},
	}, handleLyrics)
}

// ============================================================================
// Handler Helpers
// ============================================================================

func reply(event *events.ApplicationCommandInteractionCreate, content string, ephemeral bool) {
	msg := discord.MessageCreate{Content: content}
	if ephemeral {
		msg.Flags = discord.MessageFlagEphemeral
	}
	_ = event.CreateMessage(msg)
}

func replyEmbed(event *events.ApplicationCommandInteractionCreate, embed discord.Embed) {
	_ = event.CreateMessage(discord.MessageCreate{Embeds: []discord.Embed{embed}})
}

func editReply(event *events.ApplicationCommandInteractionCreate, content string) {
	_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(),
		discord.MessageUpdate{Content: strPtr(content)})
}

func editReplyEmbed(event *events.ApplicationCommandInteractionCreate, embed discord.Embed) {
	_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(),
		discord.MessageUpdate{Embeds: &[]discord.Embed{embed}})
}

// requireSession resolves the guild's live session or replies with an error.
func requireSession(event *events.ApplicationCommandInteractionCreate) *PlayerSession {
	if event.GuildID() == nil {
		reply(event, MsgMusicNotInGuild, true)
		return nil
	}
	s := GetPlayerManager().GetSession(*event.GuildID())
	if s == nil {
		reply(event, MsgMusicNoSession, true)
		return nil
	}
	return s
}

// userVoiceChannel returns the channel the invoking user is connected to.
func userVoiceChannel(event *events.ApplicationCommandInteractionCreate) (snowflake.ID, bool) {
	if event.GuildID() == nil {
		return 0, false
	}
	vs, ok := event.Client().Caches.VoiceState(*event.GuildID(), event.User().ID)
	if !ok || vs.ChannelID == nil {
		return 0, false
	}
	return *vs.ChannelID, true
}

func trackLine(t *Track) string {
	return fmt.Sprintf("[%s](%s) `%s`",
		Truncate(t.Info.Title, 60), t.Info.URI, FormatTrackDuration(t.Duration()))
}

func trackEmbed(title string, t *Track) discord.Embed {
	platform := MatchPlatformByName(t.Info.SourceName)
	return discord.Embed{
		Title:       title,
		Description: fmt.Sprintf("%s **[%s](%s)**\nby %s", platform.Emoji, Truncate(t.Info.Title, 100), t.Info.URI, t.Info.Author),
		Color:       platform.Color,
		Thumbnail:   embedThumbnail(t.Info.ArtworkURL),
		Footer: &discord.EmbedFooter{
			Text: fmt.Sprintf("%s • requested by", platform.Name),
		},
		Fields: []discord.EmbedField{
			{Name: "Duration", Value: FormatTrackDuration(t.Duration()), Inline: boolPtr(true)},
			{Name: "Requester", Value: "<@" + t.Requester.String() + ">", Inline: boolPtr(true)},
		},
	}
}

func embedThumbnail(url string) *discord.EmbedResource {
	if url == "" {
		return nil
	}
	return &discord.EmbedResource{URL: url}
}

// announceNowPlaying posts the track-start embed to the session's text
// channel. Autoplay picks are labelled as such.
func announceNowPlaying(s *PlayerSession, t *Track) {
	if s.TextChannelID == 0 {
		return
	}
	title := "Now Playing"
	if t.IsAutoplay {
		title = "Now Playing (Autoplay)"
	}
	embed := trackEmbed(title, t)
	_, _ = s.system.client.Rest.CreateMessage(s.TextChannelID,
		discord.MessageCreate{Embeds: []discord.Embed{embed}})
}

// announceTrackDropped tells the text channel a track was abandoned after the
// retry budget ran out.
func announceTrackDropped(s *PlayerSession, t *Track) {
	if s.TextChannelID == 0 {
		return
	}
	_, _ = s.system.client.Rest.CreateMessage(s.TextChannelID,
		discord.MessageCreate{Content: fmt.Sprintf(MsgMusicDroppedAnnounce, Truncate(t.Info.Title, 100))})
}

// ============================================================================
// Handlers
// ============================================================================

func handlePlay(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	query := data.String("query")
	next, _ := data.OptBool("next")

	if event.GuildID() == nil {
		reply(event, MsgMusicNotInGuild, true)
		return
	}
	channelID, ok := userVoiceChannel(event)
	if !ok {
		reply(event, MsgMusicNotInVoice, true)
		return
	}

	_ = event.DeferCreateMessage(false)

	ps := GetPlayerManager()
	ctx, cancel := context.WithTimeout(AppContext, 60*time.Second)
	defer cancel()

	result := ps.Cascade().Resolve(ctx, query, event.User().ID)
	switch result.Outcome {
	case OutcomeError:
		editReply(event, fmt.Sprintf(MsgMusicSearchError, result.Err))
		return
	case OutcomeNotFound:
		editReply(event, fmt.Sprintf(MsgMusicNotFound, Truncate(query, 80)))
		return
	}

	// join voice only once there is something to play
	session, err := ps.Connect(AppContext, *event.GuildID(), channelID, event.Channel().ID())
	if err != nil {
		editReply(event, fmt.Sprintf(MsgMusicJoinFail, err))
		return
	}

	tracks := result.Tracks
	if result.Playlist == nil && len(tracks) > 1 {
		tracks = tracks[:1]
	}
	position := session.Enqueue(AppContext, tracks, next)

	if result.Playlist != nil {
		embed := discord.Embed{
			Title:       "Playlist Queued",
			Description: fmt.Sprintf(MsgMusicQueuedList, len(tracks), Truncate(result.Playlist.Name, 80)),
			Color:       result.Platform.Color,
			Thumbnail:   embedThumbnail(result.Playlist.ArtworkURL),
		}
		if result.Playlist.TotalTracks > len(tracks) {
			embed.Footer = &discord.EmbedFooter{
				Text: fmt.Sprintf("%d of %d tracks resolved", len(tracks), result.Playlist.TotalTracks),
			}
		}
		editReplyEmbed(event, embed)
		return
	}

	track := tracks[0]
	if position == 0 {
		embed := trackEmbed("Now Playing", track)
		editReplyEmbed(event, embed)
		return
	}
	embed := trackEmbed(fmt.Sprintf(MsgMusicQueuedTrack, position), track)
	editReplyEmbed(event, embed)
}

func handleSkip(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	skipped := s.Skip(AppContext)
	if skipped == nil {
		reply(event, MsgMusicSkipEmpty, true)
		return
	}
	reply(event, fmt.Sprintf(MsgMusicSkipped, Truncate(skipped.Info.Title, 100)), false)
}

func handleStop(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	s.Stop(AppContext)
	reply(event, MsgMusicStopped, false)
}

func handlePause(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	s.SetPaused(AppContext, true)
	reply(event, MsgMusicPaused, false)
}

func handleResume(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	s.SetPaused(AppContext, false)
	reply(event, MsgMusicResumed, false)
}

func handleSeek(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	raw := event.SlashCommandInteractionData().String("position")
	position, err := time.ParseDuration(raw)
	if err != nil {
		if parsed, perr := ParseDuration(raw); perr == nil {
			position = parsed
		} else {
			reply(event, MsgMusicSeekInvalid, true)
			return
		}
	}
	if !s.Seek(AppContext, position) {
		reply(event, MsgMusicSeekFail, true)
		return
	}
	reply(event, fmt.Sprintf(MsgMusicSeeked, FormatTrackDuration(position)), false)
}

func handleReplay(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	current := s.Current()
	if current == nil {
		reply(event, MsgMusicNothingPlaying, true)
		return
	}
	if !s.Replay(AppContext) {
		reply(event, MsgMusicSeekFail, true)
		return
	}
	reply(event, fmt.Sprintf(MsgMusicReplayed, Truncate(current.Info.Title, 100)), false)
}

func handleVolume(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	level := event.SlashCommandInteractionData().Int("level")
	applied := s.SetVolume(AppContext, level)
	reply(event, fmt.Sprintf(MsgMusicVolumeSet, applied), false)
}

func handleLoop(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	mode := LoopNone
	switch event.SlashCommandInteractionData().String("mode") {
	case "track":
		mode = LoopTrack
	case "queue":
		mode = LoopQueue
	}
	s.SetLoop(mode)
	reply(event, fmt.Sprintf(MsgMusicLoopSet, mode), false)
}

func handleShuffle(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	s.Shuffle()
	reply(event, fmt.Sprintf(MsgMusicShuffled, len(s.Queue())), false)
}

func handleRemove(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	position := event.SlashCommandInteractionData().Int("position")
	removed := s.Remove(position)
	if removed == nil {
		reply(event, fmt.Sprintf(MsgMusicInvalidIndex, position), true)
		return
	}
	reply(event, fmt.Sprintf(MsgMusicRemoved, Truncate(removed.Info.Title, 100)), false)
}

func handleMove(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	data := event.SlashCommandInteractionData()
	from, to := data.Int("from"), data.Int("to")
	moved := s.Move(from, to)
	if moved == nil {
		reply(event, fmt.Sprintf(MsgMusicInvalidIndex, from), true)
		return
	}
	reply(event, fmt.Sprintf(MsgMusicMoved, Truncate(moved.Info.Title, 100), to), false)
}

func handleJump(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	position := event.SlashCommandInteractionData().Int("position")
	target := s.Jump(AppContext, position)
	if target == nil {
		reply(event, fmt.Sprintf(MsgMusicInvalidIndex, position), true)
		return
	}
	reply(event, fmt.Sprintf(MsgMusicJumped, Truncate(target.Info.Title, 100)), false)
}

func handleClear(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	reply(event, fmt.Sprintf(MsgMusicCleared, s.Clear()), false)
}

func handleQueue(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}

	current := s.Current()
	queue := s.Queue()
	if current == nil && len(queue) == 0 {
		reply(event, MsgMusicQueueEmpty, true)
		return
	}

	var sb strings.Builder
	if current != nil {
		sb.WriteString("**Now Playing**\n")
		sb.WriteString(trackLine(current))
		sb.WriteString("\n")
		sb.WriteString(ProgressBar(s.Position(), current.Duration(), 14))
		sb.WriteString(fmt.Sprintf(" `%s / %s`\n",
			FormatTrackDuration(s.Position()), FormatTrackDuration(current.Duration())))
	}
	if len(queue) > 0 {
		sb.WriteString("\n**Up Next**\n")
		total := time.Duration(0)
		for i, t := range queue {
			if i < 10 {
				sb.WriteString(fmt.Sprintf("`%d.` %s\n", i+1, trackLine(t)))
			}
			total += t.Duration()
		}
		if len(queue) > 10 {
			sb.WriteString(fmt.Sprintf("...and %d more\n", len(queue)-10))
		}
		sb.WriteString(fmt.Sprintf("\n%d tracks • %s total", len(queue), FormatTrackDuration(total)))
	}

	_, _, loop, autoplay, tfs, volume := s.State()
	footer := fmt.Sprintf("Loop: %s • Autoplay: %v • 24/7: %v • Volume: %d%%", loop, autoplay, tfs, volume)

	replyEmbed(event, discord.Embed{
		Title:       "Queue",
		Description: sb.String(),
		Color:       UnknownPlatform.Color,
		Footer:      &discord.EmbedFooter{Text: footer},
	})
}

func handleNowPlaying(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	current := s.Current()
	if current == nil {
		reply(event, MsgMusicNothingPlaying, true)
		return
	}

	embed := trackEmbed("Now Playing", current)
	position := s.Position()
	embed.Description += fmt.Sprintf("\n\n%s `%s / %s`",
		ProgressBar(position, current.Duration(), 14),
		FormatTrackDuration(position), FormatTrackDuration(current.Duration()))
	replyEmbed(event, embed)
}

func handleAutoplay(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	if s.ToggleAutoplay() {
		reply(event, MsgMusicAutoplayOn, false)
		return
	}
	reply(event, MsgMusicAutoplayOff, false)
}

func handle247(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	_, _, _, _, tfs, _ := s.State()
	s.SetTwentyFourSeven(AppContext, !tfs)
	if !tfs {
		reply(event, MsgMusic247On, false)
		return
	}
	reply(event, MsgMusic247Off, false)
}

func handleFilter(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	name := event.SlashCommandInteractionData().String("name")

	if name == "clear" {
		if !s.ApplyFilter(AppContext, "", Filters{}) {
			reply(event, MsgMusicFilterFail, true)
			return
		}
		reply(event, MsgMusicFilterCleared, false)
		return
	}

	preset, ok := filterPresets[name]
	if !ok {
		reply(event, fmt.Sprintf(MsgMusicFilterUnknown, name), true)
		return
	}
	if !s.ApplyFilter(AppContext, name, preset) {
		reply(event, MsgMusicFilterFail, true)
		return
	}
	reply(event, fmt.Sprintf(MsgMusicFilterApplied, name), false)
}

func handleGrab(event *events.ApplicationCommandInteractionCreate) {
	s := requireSession(event)
	if s == nil {
		return
	}
	current := s.Current()
	if current == nil {
		reply(event, MsgMusicNothingPlaying, true)
		return
	}

	channel, err := event.Client().Rest.CreateDMChannel(event.User().ID)
	if err != nil {
		reply(event, MsgMusicGrabFail, true)
		return
	}
	embed := trackEmbed("Grabbed Track", current)
	if _, err := event.Client().Rest.CreateMessage(channel.ID(),
		discord.MessageCreate{Embeds: []discord.Embed{embed}}); err != nil {
		reply(event, MsgMusicGrabFail, true)
		return
	}
	reply(event, MsgMusicGrabbed, true)
}

func handleLyrics(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	query, hasQuery := data.OptString("query")

	var artist, title string
	if hasQuery && strings.TrimSpace(query) != "" {
		artist, title = SplitLyricsQuery(query)
	} else {
		s := requireSession(event)
		if s == nil {
			return
		}
		current := s.Current()
		if current == nil {
			reply(event, MsgMusicNothingPlaying, true)
			return
		}
		artist, title = current.Info.Author, CleanLyricsTitle(current.Info.Title)
	}

	_ = event.DeferCreateMessage(false)

	ctx, cancel := context.WithTimeout(AppContext, 15*time.Second)
	defer cancel()

	lyrics, err := FetchLyrics(ctx, artist, title)
	if err != nil {
		editReply(event, fmt.Sprintf(MsgLyricsNotFound, title))
		return
	}

	body := lyrics.Body
	if len(body) > 4000 {
		body = body[:4000] + "\n..."
	}
	editReplyEmbed(event, discord.Embed{
		Title:       Truncate(lyrics.Artist+" - "+lyrics.Title, 250),
		Description: body,
		Color:       UnknownPlatform.Color,
		Footer:      &discord.EmbedFooter{Text: "Lyrics via Musixmatch"},
	})
}

// ============================================================================
// Play Autocomplete
// ============================================================================

type suggestion struct {
	Title string
	URL   string
}

// handlePlayAutocomplete suggests tracks from two concurrent searches, music
// catalog results first.
func handlePlayAutocomplete(event *events.AutocompleteInteractionCreate) {
	f := event.Data.Focused()
	if f.Name != "query" {
		return
	}
	q := strings.TrimSpace(f.String())
	if q == "" || strings.Contains(q, "http") {
		_ = event.AutocompleteResult(nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2600*time.Millisecond)
	defer cancel()

	var mu sync.Mutex
	var ytm, yt []suggestion
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	wg.Add(2)
	safeGo(func() {
		defer wg.Done()
		s := ytmusic.TrackSearch(q)
		r, err := s.Next()
		if err != nil {
			return
		}
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			title := v.Title
			if len(v.Artists) > 0 {
				title = v.Artists[0].Name + " - " + title
			}
			mu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				ytm = append(ytm, suggestion{Title: title, URL: "https://music.youtube.com/watch?v=" + v.VideoID})
			}
			mu.Unlock()
		}
	})
	safeGo(func() {
		defer wg.Done()
		c := ytsearch.NewClient(nil)
		r, err := c.Search(ctx, q)
		if err != nil {
			return
		}
		for _, v := range r.Results {
			mu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				yt = append(yt, suggestion{Title: v.Title, URL: "https://www.youtube.com/watch?v=" + v.VideoID})
			}
			mu.Unlock()
		}
	})

	done := make(chan struct{})
	safeGo(func() {
		wg.Wait()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2300 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	merged := append(ytm, yt...)
	if len(merged) > 25 {
		merged = merged[:25]
	}

	var choices []discord.AutocompleteChoice
	for _, r := range merged {
		name := r.Title
		if len(name) > 100 {
			name = name[:97] + "..."
		}
		value := r.URL
		if len(value) > 100 {
			value = name
		}
		choices = append(choices, discord.AutocompleteChoiceString{Name: name, Value: value})
	}
	_ = event.AutocompleteResult(choices)
}

// ============================================================================
// Shared Helpers
// ============================================================================

func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

var durationPattern = regexp.MustCompile(`^(\d+)(s|m|h)?$`)

func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "∞"
	}
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func ParseDuration(duration string) (time.Duration, error) {
	if duration == "" || duration == "0" {
		return 0, nil
	}
	m := durationPattern.FindStringSubmatch(strings.ToLower(duration))
	if m == nil {
		return 0, fmt.Errorf("invalid format")
	}
	v, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "m":
		return time.Duration(v) * time.Minute, nil
	case "h":
		return time.Duration(v) * time.Hour, nil
	default:
		return time.Duration(v) * time.Second, nil
	}
}
