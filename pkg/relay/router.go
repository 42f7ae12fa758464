// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/telegram-discord-relay/pkg/relay/store"
)

// CorrelationStore is the router's view of the durable correlation store.
// Absence is expressed as a nil record, never as an error.
type CorrelationStore interface {
	GetMapping(ctx context.Context, telegramMsgID int64) (*store.MessageMapping, error)
	PutMapping(ctx context.Context, m *store.MessageMapping) error
	MaxSignalNumber(ctx context.Context) (int64, error)
	PutSignal(ctx context.Context, s *store.SignalRecord) error
	IncrementSignalUpdate(ctx context.Context, signalNumber int64, when time.Time) error
	PutRecap(ctx context.Context, w *store.WeeklyRecap) error
}

// Router is the orchestrator: it consumes normalized inbound events one at
// a time, classifies them, issues destination posts/edits, and records the
// resulting correlations. All mutable state (dedup set, signal counter) is
// owned here; the store is the only cross-process source of truth.
type Router struct {
	log       zerolog.Logger
	dest      DestinationGateway
	source    SourceGateway
	store     CorrelationStore
	sequencer *SignalSequencer
	dedup     *Deduplicator
	stats     *Stats

	enabled         bool
	sampleRate      int
	vipChannel      string
	freeChannel     string
	analysisChannel string
	analysisRouting bool
}

// NewRouter constructs a Router, seeding the signal sequencer from the
// store's persisted maximum so sequencing survives restarts.
func NewRouter(ctx context.Context, cfg *Config, log zerolog.Logger, cs CorrelationStore, dest DestinationGateway, source SourceGateway) (*Router, error) {
	maxSignal, err := cs.MaxSignalNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load signal sequence seed: %w", err)
	}
	log.Info().Int64("max_signal_number", maxSignal).Msg("Seeded signal sequencer")

	return &Router{
		log:       log,
		dest:      dest,
		source:    source,
		store:     cs,
		sequencer: NewSignalSequencer(maxSignal, cfg.Relay.FreeSampleRate),
		dedup:     NewDeduplicator(DefaultDedupCapacity, DefaultDedupEvictBatch),
		stats:     NewStats(),

		enabled:         cfg.Relay.Enabled,
		sampleRate:      cfg.Relay.FreeSampleRate,
		vipChannel:      cfg.Discord.Channels.VIPSignals,
		freeChannel:     cfg.Discord.Channels.FreeSignals,
		analysisChannel: cfg.Discord.Channels.Analysis,
		analysisRouting: cfg.Relay.EnableAnalysisRouting,
	}, nil
}

// Stats returns the router's outcome counters.
func (r *Router) Stats() *Stats {
	return r.stats
}

// VerifyChannels resolves every configured destination channel and logs the
// ones that are unreachable. An unreachable channel is not fatal: affected
// events will fail individually.
func (r *Router) VerifyChannels(ctx context.Context) {
	for _, ch := range []string{r.vipChannel, r.freeChannel, r.analysisChannel} {
		if err := r.dest.ResolveChannel(ctx, ch); err != nil {
			r.log.Warn().Err(err).Str("channel_id", ch).Msg("Destination channel not reachable")
		}
	}
}

// Run consumes events sequentially until ctx is canceled or the channel is
// closed. The in-flight event always finishes its full dispatch sequence:
// Handle runs on a context that survives cancellation, so shutdown never
// leaves a post issued but unrecorded.
func (r *Router) Run(ctx context.Context, events <-chan *InboundMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			r.Handle(context.WithoutCancel(ctx), msg)
		}
	}
}

// Handle processes one inbound event through the full state machine and
// returns its terminal outcome. It never returns an error: failures are
// logged and counted, not propagated, and the router never retries.
func (r *Router) Handle(ctx context.Context, msg *InboundMessage) Outcome {
	log := r.log.With().
		Int64("telegram_msg_id", msg.MessageID).
		Bool("edit", msg.IsEdit).
		Logger()
	r.stats.received.Add(1)

	outcome := r.process(ctx, log, msg)
	r.stats.countOutcome(outcome)
	log.Debug().Stringer("outcome", outcome).Msg("Event settled")
	return outcome
}

func (r *Router) process(ctx context.Context, log zerolog.Logger, msg *InboundMessage) Outcome {
	if !r.enabled {
		log.Debug().Msg("Relay disabled, suppressing event")
		return OutcomeSuppressed
	}

	key := DedupKey(msg.ChatID, msg.MessageID)
	if !msg.IsEdit {
		if r.dedup.Seen(key) {
			log.Debug().Msg("Duplicate delivery, suppressing")
			return OutcomeSuppressed
		}
		r.dedup.Remember(key)
	}

	// Reply correlation overrides content classification: a reply to a
	// forwarded message is always treated as an update to it.
	if msg.ReplyToID != 0 {
		target, err := r.store.GetMapping(ctx, msg.ReplyToID)
		if err != nil {
			log.Warn().Err(err).Int64("reply_to_id", msg.ReplyToID).
				Msg("Failed to resolve reply target, treating as standalone message")
		} else if target != nil {
			return r.handleReplyUpdate(ctx, log, msg, target)
		}
		// Unresolvable reply target: fall through to normal classification.
	}

	if msg.Text == "" && !msg.HasMedia() {
		log.Debug().Msg("Empty message, suppressing")
		return OutcomeSuppressed
	}

	if msg.IsEdit {
		existing, err := r.store.GetMapping(ctx, msg.MessageID)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to look up mapping for edit")
		} else if existing != nil {
			return r.handleEdit(ctx, log, msg, existing)
		}
		// No mapping for the edited message: forward it as a fresh post.
	}

	cls := Classify(msg.Text, msg.Media)
	log = log.With().
		Str("category", string(cls.Category)).
		Float64("confidence", cls.Confidence).
		Logger()

	switch cls.Category {
	case CategoryTradingSignal:
		return r.handleTradingSignal(ctx, log, msg)
	case CategoryWeeklyRecap:
		return r.handleWeeklyRecap(ctx, log, msg)
	case CategoryAdminAnnouncement:
		return r.handleAnnouncement(ctx, log, msg)
	case CategoryAnalysisVideo, CategoryChartPreview, CategoryMarketCommentary:
		return r.handleSimplePost(ctx, log, msg, cls.Category, r.analysisTarget())
	case CategorySignalUpdate:
		// An update with no resolvable reply target still belongs next to
		// the signals it talks about.
		return r.handleSimplePost(ctx, log, msg, cls.Category, r.vipChannel)
	case CategoryVoiceMessage, CategoryVideoContent, CategoryImageContent:
		return r.handleSimplePost(ctx, log, msg, cls.Category, r.vipChannel)
	default:
		if msg.HasMedia() {
			// Unclassifiable text with media: forward the payload rather
			// than dropping it.
			return r.handleSimplePost(ctx, log, msg, CategoryImageContent, r.vipChannel)
		}
		log.Debug().Msg("Unroutable message without media, suppressing")
		return OutcomeSuppressed
	}
}

// analysisTarget returns the channel analysis content goes to, honoring the
// analysis-routing toggle.
func (r *Router) analysisTarget() string {
	if r.analysisRouting {
		return r.analysisChannel
	}
	return r.vipChannel
}

// fetchMedia downloads the attachment for a message, or returns nil when
// the message has none. Each call downloads a fresh copy: destination
// attachments are single-use.
func (r *Router) fetchMedia(ctx context.Context, log zerolog.Logger, msg *InboundMessage) (*Attachment, error) {
	if !msg.HasMedia() {
		return nil, nil
	}
	att, err := r.source.DownloadMedia(ctx, msg.MessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	if att.Filename == "" {
		att.Filename = msg.Filename
	}
	log.Debug().Int("size", len(att.Data)).Str("filename", att.Filename).Msg("Downloaded media")
	return att, nil
}

// recordMapping writes a mapping, logging store failures without undoing
// the forward: the message already reached users, so a duplicate post after
// a restart is preferred over a lost mapping.
func (r *Router) recordMapping(ctx context.Context, log zerolog.Logger, m *store.MessageMapping) {
	if err := r.store.PutMapping(ctx, m); err != nil {
		log.Error().Err(err).Msg("Store write failed, message delivered but unrecorded")
	}
}

// handleReplyUpdate forwards a reply to a previously forwarded message as a
// destination reply, mirroring to the free copy when one exists. The reply
// relationship overrides whatever the classifier would have said.
func (r *Router) handleReplyUpdate(ctx context.Context, log zerolog.Logger, msg *InboundMessage, target *store.MessageMapping) Outcome {
	log = log.With().
		Int64("reply_to_id", target.TelegramMsgID).
		Str("category", string(CategorySignalUpdate)).
		Logger()

	text := CleanText(msg.Text)
	if text == "" && msg.HasMedia() {
		text = mediaPlaceholder
	}

	att, err := r.fetchMedia(ctx, log, msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch media for update")
		return OutcomeFailed
	}

	replyID, err := r.dest.Reply(ctx, target.DiscordChannelID, target.DiscordVIPMsgID, text, att)
	if err != nil {
		log.Error().Err(err).Msg("Failed to post update reply")
		return OutcomeFailed
	}

	if target.DiscordFreeMsgID != "" {
		freeAtt, err := r.fetchMedia(ctx, log, msg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to re-fetch media for free mirror")
		} else if _, err = r.dest.Reply(ctx, r.freeChannel, target.DiscordFreeMsgID, text, freeAtt); err != nil {
			log.Warn().Err(err).Msg("Failed to mirror update to free channel")
		}
	}

	if target.SignalNumber != 0 {
		if err = r.store.IncrementSignalUpdate(ctx, target.SignalNumber, time.Now().UTC()); err != nil {
			log.Error().Err(err).Int64("signal_number", target.SignalNumber).
				Msg("Failed to record signal update count")
		}
	}

	r.recordMapping(ctx, log, &store.MessageMapping{
		TelegramMsgID:    msg.MessageID,
		DiscordVIPMsgID:  replyID,
		DiscordChannelID: target.DiscordChannelID,
		Category:         string(CategorySignalUpdate),
	})
	log.Info().Msg("Forwarded reply update")
	return OutcomeForwarded
}

// handleEdit propagates a source edit to the previously posted destination
// message(s) in place.
func (r *Router) handleEdit(ctx context.Context, log zerolog.Logger, msg *InboundMessage, m *store.MessageMapping) Outcome {
	text := CleanText(msg.Text)
	if text == "" && msg.HasMedia() {
		text = mediaPlaceholder
	}

	if err := r.dest.Edit(ctx, m.DiscordChannelID, m.DiscordVIPMsgID, text); err != nil {
		log.Error().Err(err).Str("discord_msg_id", m.DiscordVIPMsgID).Msg("Failed to edit destination message")
		return OutcomeFailed
	}

	if m.DiscordFreeMsgID != "" {
		freeText := text
		switch Category(m.Category) {
		case CategoryTradingSignal:
			freeText = FormatFreeSignal(msg.Text, m.SignalNumber, r.sampleRate)
		case CategoryWeeklyRecap:
			freeText = FormatFreeRecap(msg.Text)
		}
		if err := r.dest.Edit(ctx, r.freeChannel, m.DiscordFreeMsgID, freeText); err != nil {
			log.Warn().Err(err).Str("discord_msg_id", m.DiscordFreeMsgID).Msg("Failed to edit free channel copy")
		}
	}

	// Re-put to bump updated_at; ids and category stay as recorded.
	r.recordMapping(ctx, log, m)
	log.Info().Str("category", m.Category).Msg("Propagated edit")
	return OutcomeForwarded
}

// handleTradingSignal allocates a signal number, posts to the VIP channel,
// mirrors every Nth signal to the free channel with a disclosure footer,
// and persists both the signal record and the mapping.
func (r *Router) handleTradingSignal(ctx context.Context, log zerolog.Logger, msg *InboundMessage) Outcome {
	signalNumber := r.sequencer.Allocate()
	log = log.With().Int64("signal_number", signalNumber).Logger()

	info := ExtractSignalInfo(msg.Text)
	log.Info().
		Str("symbol", info.Symbol).
		Str("action", info.Action).
		Float64("entry", info.Entry).
		Float64("stop_loss", info.StopLoss).
		Float64("take_profit", info.TakeProfit).
		Msg("Processing trading signal")

	att, err := r.fetchMedia(ctx, log, msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch signal media")
		return OutcomeFailed
	}

	vipID, err := r.dest.Post(ctx, r.vipChannel, CleanText(msg.Text), att)
	if err != nil {
		log.Error().Err(err).Msg("Failed to post signal to VIP channel")
		return OutcomeFailed
	}

	var freeID string
	sampled := r.sequencer.SampleToFree(signalNumber)
	if sampled {
		freeAtt, err := r.fetchMedia(ctx, log, msg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to re-fetch media for free channel")
		} else if freeID, err = r.dest.Post(ctx, r.freeChannel, FormatFreeSignal(msg.Text, signalNumber, r.sampleRate), freeAtt); err != nil {
			log.Warn().Err(err).Msg("Failed to mirror signal to free channel")
			freeID = ""
		}
	}

	if err = r.store.PutSignal(ctx, &store.SignalRecord{
		SignalNumber:          signalNumber,
		OriginalTelegramID:    msg.MessageID,
		OriginalDiscordVIPID:  vipID,
		OriginalDiscordFreeID: freeID,
		ForwardedToFree:       freeID != "",
	}); err != nil {
		log.Error().Err(err).Msg("Store write failed, signal delivered but unrecorded")
	}

	r.recordMapping(ctx, log, &store.MessageMapping{
		TelegramMsgID:    msg.MessageID,
		DiscordVIPMsgID:  vipID,
		DiscordFreeMsgID: freeID,
		DiscordChannelID: r.vipChannel,
		Category:         string(CategoryTradingSignal),
		SignalNumber:     signalNumber,
	})
	log.Info().Bool("sampled_to_free", sampled).Msg("Forwarded trading signal")
	return OutcomeForwarded
}

// handleWeeklyRecap posts the recap to both channels with channel-specific
// framing and records a recap row plus the mapping.
func (r *Router) handleWeeklyRecap(ctx context.Context, log zerolog.Logger, msg *InboundMessage) Outcome {
	att, err := r.fetchMedia(ctx, log, msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch recap media")
		return OutcomeFailed
	}

	vipID, err := r.dest.Post(ctx, r.vipChannel, FormatVIPRecap(msg.Text), att)
	if err != nil {
		log.Error().Err(err).Msg("Failed to post recap to VIP channel")
		return OutcomeFailed
	}

	var freeID string
	freeAtt, err := r.fetchMedia(ctx, log, msg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to re-fetch media for free channel")
	} else if freeID, err = r.dest.Post(ctx, r.freeChannel, FormatFreeRecap(msg.Text), freeAtt); err != nil {
		log.Warn().Err(err).Msg("Failed to post recap to free channel")
		freeID = ""
	}

	if err = r.store.PutRecap(ctx, &store.WeeklyRecap{
		TelegramMsgID:    msg.MessageID,
		DiscordVIPMsgID:  vipID,
		DiscordFreeMsgID: freeID,
		WeekStart:        weekStart(time.Now().UTC()),
	}); err != nil {
		log.Error().Err(err).Msg("Store write failed, recap delivered but unrecorded")
	}

	r.recordMapping(ctx, log, &store.MessageMapping{
		TelegramMsgID:    msg.MessageID,
		DiscordVIPMsgID:  vipID,
		DiscordFreeMsgID: freeID,
		DiscordChannelID: r.vipChannel,
		Category:         string(CategoryWeeklyRecap),
	})
	log.Info().Msg("Forwarded weekly recap")
	return OutcomeForwarded
}

// handleAnnouncement posts identical content to the VIP signals channel and
// the analysis channel. Only one mapping is kept, pointing at the first
// successful post; the duplicate copy is not individually correlatable.
func (r *Router) handleAnnouncement(ctx context.Context, log zerolog.Logger, msg *InboundMessage) Outcome {
	text := CleanText(msg.Text)

	var firstID, firstChannel string
	for _, ch := range []string{r.vipChannel, r.analysisChannel} {
		att, err := r.fetchMedia(ctx, log, msg)
		if err != nil {
			log.Warn().Err(err).Str("channel_id", ch).Msg("Failed to fetch announcement media")
			att = nil
		}
		id, err := r.dest.Post(ctx, ch, text, att)
		if err != nil {
			log.Error().Err(err).Str("channel_id", ch).Msg("Failed to post announcement")
			continue
		}
		if firstID == "" {
			firstID, firstChannel = id, ch
		}
	}
	if firstID == "" {
		return OutcomeFailed
	}

	r.recordMapping(ctx, log, &store.MessageMapping{
		TelegramMsgID:    msg.MessageID,
		DiscordVIPMsgID:  firstID,
		DiscordChannelID: firstChannel,
		Category:         string(CategoryAdminAnnouncement),
	})
	log.Info().Msg("Forwarded admin announcement")
	return OutcomeForwarded
}

// handleSimplePost forwards a message to a single destination channel and
// records the mapping.
func (r *Router) handleSimplePost(ctx context.Context, log zerolog.Logger, msg *InboundMessage, category Category, channelID string) Outcome {
	text := CleanText(msg.Text)

	att, err := r.fetchMedia(ctx, log, msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch media")
		return OutcomeFailed
	}

	id, err := r.dest.Post(ctx, channelID, text, att)
	if err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to post message")
		return OutcomeFailed
	}

	r.recordMapping(ctx, log, &store.MessageMapping{
		TelegramMsgID:    msg.MessageID,
		DiscordVIPMsgID:  id,
		DiscordChannelID: channelID,
		Category:         string(category),
	})
	log.Info().Str("channel_id", channelID).Msg("Forwarded message")
	return OutcomeForwarded
}

// weekStart returns the Monday 00:00 UTC of the week containing t.
func weekStart(t time.Time) time.Time {
	t = t.UTC().Truncate(24 * time.Hour)
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week started the previous Monday
	}
	return t.AddDate(0, 0, -(weekday - 1))
}
