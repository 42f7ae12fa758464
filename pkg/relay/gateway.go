// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
)

// MediaKind identifies the kind of attachment carried by an inbound message.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaImage
	MediaVideo
	MediaVoice
	MediaDocument
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	case MediaVoice:
		return "voice"
	case MediaDocument:
		return "document"
	default:
		return "none"
	}
}

// InboundMessage is a normalized event from the source platform. It is
// immutable once constructed; media is carried as a re-fetchable descriptor
// (message id + kind) rather than a one-shot handle, so the router can
// download the payload once per destination post.
type InboundMessage struct {
	ChatID    int64
	MessageID int64
	Text      string
	ReplyToID int64 // 0 when the message is not a reply
	Media     MediaKind
	Filename  string // filename hint for the attachment, may be empty
	IsEdit    bool
}

// HasMedia reports whether the message carries an attachment.
func (m *InboundMessage) HasMedia() bool {
	return m.Media != MediaNone
}

// Attachment is a downloaded media payload ready for a destination upload.
// Destination attachments are single-use, so the router requests a fresh
// Attachment from the source gateway for every post that needs one.
type Attachment struct {
	Filename string
	Data     []byte
}

// Sentinel errors for the destination gateway. Adapters wrap platform
// errors into these so the router can log a stable taxonomy.
var (
	// ErrGatewayUnavailable means the destination or source channel is
	// unreachable or does not exist.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	// ErrPermissionDenied means the destination rejected the operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrMessageNotFound means the referenced destination message does
	// not exist (anymore).
	ErrMessageNotFound = errors.New("message not found")
)

// DestinationGateway is the narrow interface the router uses to talk to the
// destination platform. Implementations own retry and timeout policy; the
// router never retries.
type DestinationGateway interface {
	// ResolveChannel verifies that the channel exists and is reachable.
	ResolveChannel(ctx context.Context, channelID string) error
	// Post sends a message to a channel and returns the destination
	// message id. att may be nil.
	Post(ctx context.Context, channelID, text string, att *Attachment) (string, error)
	// Edit replaces the text of a previously posted message in place.
	Edit(ctx context.Context, channelID, messageID, text string) error
	// Reply posts a message as a reply to an existing destination message
	// and returns the new destination message id. att may be nil.
	Reply(ctx context.Context, channelID, messageID, text string, att *Attachment) (string, error)
	// FetchMessage reports whether the destination message still exists.
	FetchMessage(ctx context.Context, channelID, messageID string) (bool, error)
}

// SourceGateway is the narrow interface the router uses to fetch media from
// the source platform. The event stream itself reaches the router as a
// channel of InboundMessage, outside this interface.
type SourceGateway interface {
	// DownloadMedia fetches the attachment bytes for a source message.
	DownloadMedia(ctx context.Context, messageID int64) (*Attachment, error)
}

// Outcome is the terminal state of one inbound event.
type Outcome int

const (
	// OutcomeForwarded means one or more destination posts or edits were
	// issued and recorded.
	OutcomeForwarded Outcome = iota
	// OutcomeSuppressed means the event was intentionally not forwarded
	// (duplicate, empty, or unroutable category). Not an error.
	OutcomeSuppressed
	// OutcomeFailed means a destination or store error interrupted the
	// dispatch. Logged, never retried by the router.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeForwarded:
		return "forwarded"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
