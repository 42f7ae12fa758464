// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/telegram-discord-relay/pkg/relay/store"
)

const (
	testVIPChannel      = "vip-channel"
	testFreeChannel     = "free-channel"
	testAnalysisChannel = "analysis-channel"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Discord.Channels = ChannelsConfig{
		VIPSignals:  testVIPChannel,
		FreeSignals: testFreeChannel,
		Analysis:    testAnalysisChannel,
	}
	return &cfg
}

// destCall records one call against the fake destination gateway.
type destCall struct {
	Channel   string
	MessageID string // target message for edits and replies
	Text      string
	HasMedia  bool
}

// fakeDest is an in-memory destination gateway that records calls and hands
// out sequential message ids.
type fakeDest struct {
	mu      sync.Mutex
	posts   []destCall
	edits   []destCall
	replies []destCall
	nextID  int

	failPost  bool
	failEdit  bool
	failReply bool
}

var errFakeDest = errors.New("fake destination failure")

func (f *fakeDest) ResolveChannel(context.Context, string) error {
	return nil
}

func (f *fakeDest) Post(_ context.Context, channelID, text string, att *Attachment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPost {
		return "", errFakeDest
	}
	f.nextID++
	f.posts = append(f.posts, destCall{Channel: channelID, Text: text, HasMedia: att != nil})
	return fmt.Sprintf("dmsg-%d", f.nextID), nil
}

func (f *fakeDest) Edit(_ context.Context, channelID, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEdit {
		return errFakeDest
	}
	f.edits = append(f.edits, destCall{Channel: channelID, MessageID: messageID, Text: text})
	return nil
}

func (f *fakeDest) Reply(_ context.Context, channelID, messageID, text string, att *Attachment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReply {
		return "", errFakeDest
	}
	f.nextID++
	f.replies = append(f.replies, destCall{Channel: channelID, MessageID: messageID, Text: text, HasMedia: att != nil})
	return fmt.Sprintf("dmsg-%d", f.nextID), nil
}

func (f *fakeDest) FetchMessage(context.Context, string, string) (bool, error) {
	return true, nil
}

func (f *fakeDest) postsTo(channelID string) []destCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []destCall
	for _, call := range f.posts {
		if call.Channel == channelID {
			out = append(out, call)
		}
	}
	return out
}

// fakeSource serves canned media and counts downloads, so tests can assert
// that each destination post re-fetches the payload.
type fakeSource struct {
	mu        sync.Mutex
	downloads int
	fail      bool
}

func (f *fakeSource) DownloadMedia(_ context.Context, messageID int64) (*Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("fake source failure")
	}
	f.downloads++
	return &Attachment{Filename: "photo.jpg", Data: []byte("payload")}, nil
}

func (f *fakeSource) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads
}

// memStore is an in-memory correlation store.
type memStore struct {
	mu       sync.Mutex
	mappings map[int64]store.MessageMapping
	signals  map[int64]store.SignalRecord
	recaps   []store.WeeklyRecap

	failWrites bool
}

var errFakeStore = errors.New("fake store failure")

func newMemStore() *memStore {
	return &memStore{
		mappings: make(map[int64]store.MessageMapping),
		signals:  make(map[int64]store.SignalRecord),
	}
}

func (m *memStore) GetMapping(_ context.Context, telegramMsgID int64) (*store.MessageMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mapping, ok := m.mappings[telegramMsgID]; ok {
		return &mapping, nil
	}
	return nil, nil
}

func (m *memStore) PutMapping(_ context.Context, mapping *store.MessageMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errFakeStore
	}
	m.mappings[mapping.TelegramMsgID] = *mapping
	return nil
}

func (m *memStore) MaxSignalNumber(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max int64
	for n := range m.signals {
		if n > max {
			max = n
		}
	}
	return max, nil
}

func (m *memStore) PutSignal(_ context.Context, s *store.SignalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errFakeStore
	}
	m.signals[s.SignalNumber] = *s
	return nil
}

func (m *memStore) IncrementSignalUpdate(_ context.Context, signalNumber int64, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errFakeStore
	}
	s := m.signals[signalNumber]
	s.SignalNumber = signalNumber
	s.UpdateCount++
	s.LastUpdateTime = when
	m.signals[signalNumber] = s
	return nil
}

func (m *memStore) PutRecap(_ context.Context, w *store.WeeklyRecap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errFakeStore
	}
	w.ID = int64(len(m.recaps) + 1)
	m.recaps = append(m.recaps, *w)
	return nil
}

func (m *memStore) mapping(telegramMsgID int64) (store.MessageMapping, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mapping, ok := m.mappings[telegramMsgID]
	return mapping, ok
}

func (m *memStore) signal(n int64) (store.SignalRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[n]
	return s, ok
}

// newTestRouter wires a Router with fakes and returns the pieces tests
// assert against.
func newTestRouter(t interface{ Fatalf(string, ...any) }, cfg *Config) (*Router, *fakeDest, *fakeSource, *memStore) {
	if cfg == nil {
		cfg = testConfig()
	}
	dest := &fakeDest{}
	source := &fakeSource{}
	st := newMemStore()
	router, err := NewRouter(context.Background(), cfg, zerolog.Nop(), st, dest, source)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router, dest, source, st
}
