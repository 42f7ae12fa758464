// Copyright 2024-2026 Aiku AI

package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	"github.com/aiku/telegram-discord-relay/pkg/relay/store"
)

func newTestDB(t *testing.T) *store.Database {
	t.Helper()
	rawDB, err := dbutil.NewFromConfig("relay-test", dbutil.Config{
		PoolConfig: dbutil.PoolConfig{
			Type:         "sqlite3",
			URI:          fmt.Sprintf("file:%s?_txlock=immediate", filepath.Join(t.TempDir(), "relay.db")),
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
	}, dbutil.ZeroLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() {
		_ = rawDB.Close()
	})
	db := store.New(rawDB)
	if err = db.Upgrade(context.Background()); err != nil {
		t.Fatalf("upgrade schema: %v", err)
	}
	return db
}

func TestMappingRoundTrip(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	got, err := db.GetMapping(ctx, 100)
	if err != nil {
		t.Fatalf("get absent mapping: %v", err)
	}
	if got != nil {
		t.Fatalf("absent mapping should be nil, got %+v", got)
	}

	m := &store.MessageMapping{
		TelegramMsgID:    100,
		DiscordVIPMsgID:  "dmsg-1",
		DiscordFreeMsgID: "dmsg-2",
		DiscordChannelID: "111",
		Category:         "trading_signal",
		SignalNumber:     7,
	}
	if err = db.PutMapping(ctx, m); err != nil {
		t.Fatalf("put mapping: %v", err)
	}

	got, err = db.GetMapping(ctx, 100)
	if err != nil {
		t.Fatalf("get mapping: %v", err)
	}
	if got == nil {
		t.Fatal("mapping not found after put")
	}
	if got.DiscordVIPMsgID != "dmsg-1" || got.DiscordFreeMsgID != "dmsg-2" {
		t.Errorf("message ids: got %q/%q", got.DiscordVIPMsgID, got.DiscordFreeMsgID)
	}
	if got.Category != "trading_signal" || got.SignalNumber != 7 {
		t.Errorf("category/number: got %q/%d", got.Category, got.SignalNumber)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps should be populated")
	}
}

func TestMappingUpsertOverwrites(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	first := &store.MessageMapping{
		TelegramMsgID:   200,
		DiscordVIPMsgID: "dmsg-1",
		Category:        "other",
	}
	if err := db.PutMapping(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &store.MessageMapping{
		TelegramMsgID:   200,
		DiscordVIPMsgID: "dmsg-9",
		Category:        "signal_update",
	}
	if err := db.PutMapping(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetMapping(ctx, 200)
	if err != nil {
		t.Fatal(err)
	}
	if got.DiscordVIPMsgID != "dmsg-9" || got.Category != "signal_update" {
		t.Errorf("upsert did not overwrite: got %q/%q", got.DiscordVIPMsgID, got.Category)
	}
}

func TestMappingNullableFields(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	m := &store.MessageMapping{
		TelegramMsgID:   300,
		DiscordVIPMsgID: "dmsg-1",
		Category:        "voice_message",
	}
	if err := db.PutMapping(ctx, m); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetMapping(ctx, 300)
	if err != nil {
		t.Fatal(err)
	}
	if got.DiscordFreeMsgID != "" {
		t.Errorf("free msg id should stay empty, got %q", got.DiscordFreeMsgID)
	}
	if got.SignalNumber != 0 {
		t.Errorf("signal number should stay zero, got %d", got.SignalNumber)
	}
}

func TestSignalMaxNumber(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	max, err := db.MaxSignalNumber(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if max != 0 {
		t.Errorf("empty table max: got %d, want 0", max)
	}

	for _, n := range []int64{3, 1, 7} {
		err = db.PutSignal(ctx, &store.SignalRecord{
			SignalNumber:         n,
			OriginalTelegramID:   n * 10,
			OriginalDiscordVIPID: fmt.Sprintf("dmsg-%d", n),
		})
		if err != nil {
			t.Fatalf("put signal %d: %v", n, err)
		}
	}

	max, err = db.MaxSignalNumber(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if max != 7 {
		t.Errorf("max signal number: got %d, want 7", max)
	}
}

func TestSignalRoundTrip(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	s := &store.SignalRecord{
		SignalNumber:          10,
		OriginalTelegramID:    500,
		OriginalDiscordVIPID:  "dmsg-1",
		OriginalDiscordFreeID: "dmsg-2",
		ForwardedToFree:       true,
	}
	if err := db.PutSignal(ctx, s); err != nil {
		t.Fatal(err)
	}

	got, err := db.Signal.Get(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("signal not found after put")
	}
	if !got.ForwardedToFree || got.OriginalDiscordFreeID != "dmsg-2" {
		t.Errorf("free copy fields: got %v/%q", got.ForwardedToFree, got.OriginalDiscordFreeID)
	}
	if got.UpdateCount != 0 {
		t.Errorf("fresh signal update count: got %d, want 0", got.UpdateCount)
	}
	if !got.LastUpdateTime.IsZero() {
		t.Errorf("fresh signal last update should be zero, got %v", got.LastUpdateTime)
	}
}

func TestIncrementSignalUpdate(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	err := db.PutSignal(ctx, &store.SignalRecord{
		SignalNumber:         5,
		OriginalTelegramID:   400,
		OriginalDiscordVIPID: "dmsg-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	when := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	if err = db.IncrementSignalUpdate(ctx, 5, when); err != nil {
		t.Fatal(err)
	}
	if err = db.IncrementSignalUpdate(ctx, 5, when.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	got, err := db.Signal.Get(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got.UpdateCount != 2 {
		t.Errorf("update count: got %d, want 2", got.UpdateCount)
	}
	if !got.LastUpdateTime.Equal(when.Add(time.Hour)) {
		t.Errorf("last update time: got %v, want %v", got.LastUpdateTime, when.Add(time.Hour))
	}
}

func TestRecapAutoIncrement(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	week := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	for i := range 2 {
		err := db.PutRecap(ctx, &store.WeeklyRecap{
			TelegramMsgID:    int64(600 + i),
			DiscordVIPMsgID:  fmt.Sprintf("dmsg-%d", i*2+1),
			DiscordFreeMsgID: fmt.Sprintf("dmsg-%d", i*2+2),
			WeekStart:        week,
		})
		if err != nil {
			t.Fatalf("put recap %d: %v", i, err)
		}
	}

	got, err := db.Recap.GetLatest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("no recap found")
	}
	if got.ID != 2 {
		t.Errorf("autoincrement id: got %d, want 2", got.ID)
	}
	if got.TelegramMsgID != 601 {
		t.Errorf("latest recap source id: got %d, want 601", got.TelegramMsgID)
	}
	if !got.WeekStart.Equal(week) {
		t.Errorf("week start: got %v, want %v", got.WeekStart, week)
	}
}
