// Copyright 2024-2026 Aiku AI

package telegramgw

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/aiku/telegram-discord-relay/pkg/relay"
)

// defaultMediaCacheSize bounds the number of media descriptors kept for
// re-download. Descriptors are tiny; the payload itself is never cached,
// every DownloadMedia call fetches fresh bytes.
const defaultMediaCacheSize = 200

// mediaCache maps source message ids to their media descriptors so the
// router can download the same attachment once per destination post.
type mediaCache struct {
	mu       sync.Mutex
	entries  map[int64]tg.MessageMediaClass
	order    []int64
	capacity int
}

func newMediaCache(capacity int) *mediaCache {
	return &mediaCache{
		entries:  make(map[int64]tg.MessageMediaClass, capacity),
		capacity: capacity,
	}
}

func (mc *mediaCache) put(msgID int64, media tg.MessageMediaClass) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.entries[msgID]; ok {
		mc.entries[msgID] = media
		return
	}
	if len(mc.order) >= mc.capacity {
		oldest := mc.order[0]
		mc.order = mc.order[1:]
		delete(mc.entries, oldest)
	}
	mc.entries[msgID] = media
	mc.order = append(mc.order, msgID)
}

func (mc *mediaCache) get(msgID int64) (tg.MessageMediaClass, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	media, ok := mc.entries[msgID]
	return media, ok
}

// describeMedia maps a Telegram media object to the relay's media kind and
// a filename hint.
func describeMedia(media tg.MessageMediaClass) (relay.MediaKind, string) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		if photoNotEmpty(m) == nil {
			return relay.MediaNone, ""
		}
		return relay.MediaImage, "photo.jpg"
	case *tg.MessageMediaDocument:
		doc := documentNotEmpty(m)
		if doc == nil {
			return relay.MediaNone, ""
		}
		return describeDocument(doc)
	default:
		return relay.MediaNone, ""
	}
}

// photoNotEmpty returns the photo behind the media, or nil when the field
// is unset or the empty variant.
func photoNotEmpty(m *tg.MessageMediaPhoto) *tg.Photo {
	raw, ok := m.GetPhoto()
	if !ok || raw == nil {
		return nil
	}
	photo, ok := raw.AsNotEmpty()
	if !ok {
		return nil
	}
	return photo
}

func documentNotEmpty(m *tg.MessageMediaDocument) *tg.Document {
	raw, ok := m.GetDocument()
	if !ok || raw == nil {
		return nil
	}
	doc, ok := raw.AsNotEmpty()
	if !ok {
		return nil
	}
	return doc
}

func describeDocument(doc *tg.Document) (relay.MediaKind, string) {
	kind := relay.MediaDocument
	filename := ""
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeFilename:
			filename = a.FileName
		case *tg.DocumentAttributeVideo:
			kind = relay.MediaVideo
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				kind = relay.MediaVoice
			}
		}
	}
	if kind == relay.MediaDocument {
		switch {
		case strings.HasPrefix(doc.MimeType, "video/"):
			kind = relay.MediaVideo
		case strings.HasPrefix(doc.MimeType, "audio/"):
			kind = relay.MediaVoice
		case strings.HasPrefix(doc.MimeType, "image/"):
			kind = relay.MediaImage
		}
	}
	if filename == "" {
		filename = defaultFilename(kind)
	}
	return kind, filename
}

func defaultFilename(kind relay.MediaKind) string {
	switch kind {
	case relay.MediaImage:
		return "image.jpg"
	case relay.MediaVideo:
		return "video.mp4"
	case relay.MediaVoice:
		return "voice.ogg"
	default:
		return "file.bin"
	}
}

// DownloadMedia fetches the attachment bytes for a source message. The
// media descriptor must have been observed on the event stream; downloads
// for unknown messages fail rather than guessing.
func (c *Client) DownloadMedia(ctx context.Context, messageID int64) (*relay.Attachment, error) {
	media, ok := c.media.get(messageID)
	if !ok {
		return nil, fmt.Errorf("%w: no media descriptor for message %d", relay.ErrMessageNotFound, messageID)
	}

	loc, filename, err := fileLocation(media)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var buf bytes.Buffer
	if _, err = downloader.NewDownloader().Download(c.client.API(), loc).Stream(ctx, &buf); err != nil {
		return nil, fmt.Errorf("%w: media download failed: %v", relay.ErrGatewayUnavailable, err)
	}

	c.log.Debug().Int64("telegram_msg_id", messageID).Int("size", buf.Len()).Msg("Downloaded media")
	return &relay.Attachment{Filename: filename, Data: buf.Bytes()}, nil
}

// fileLocation builds the MTProto file location for a media descriptor.
func fileLocation(media tg.MessageMediaClass) (tg.InputFileLocationClass, string, error) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		photo := photoNotEmpty(m)
		if photo == nil {
			return nil, "", fmt.Errorf("photo media is empty")
		}
		return &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     largestPhotoSize(photo),
		}, "photo.jpg", nil
	case *tg.MessageMediaDocument:
		doc := documentNotEmpty(m)
		if doc == nil {
			return nil, "", fmt.Errorf("document media is empty")
		}
		_, filename := describeDocument(doc)
		return &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}, filename, nil
	default:
		return nil, "", fmt.Errorf("unsupported media type %T", media)
	}
}

// largestPhotoSize picks the type of the last (largest) progressive size.
func largestPhotoSize(photo *tg.Photo) string {
	size := ""
	for _, s := range photo.Sizes {
		switch v := s.(type) {
		case *tg.PhotoSize:
			size = v.Type
		case *tg.PhotoSizeProgressive:
			size = v.Type
		}
	}
	return size
}
