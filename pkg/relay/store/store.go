// Copyright 2024-2026 Aiku AI

// Package store is the durable correlation store: it owns the mapping
// between source messages and the destination messages they produced, the
// signal sequence, and the weekly recap log. All writes are upserts keyed
// by the natural key, so re-processing a message never creates duplicate
// rows.
package store

import (
	"context"
	"database/sql"
	"time"

	"go.mau.fi/util/dbutil"

	"github.com/aiku/telegram-discord-relay/pkg/relay/store/upgrades"
)

// VersionTableName tracks the applied schema revision.
const VersionTableName = "relay_version"

// Database wraps the relay database with typed query helpers for the three
// correlation tables.
type Database struct {
	*dbutil.Database
	Mapping *MappingQuery
	Signal  *SignalQuery
	Recap   *RecapQuery
}

// New wraps a dbutil database and wires up the schema upgrade table. Call
// Upgrade before first use.
func New(db *dbutil.Database) *Database {
	db.UpgradeTable = upgrades.Table
	db.VersionTable = VersionTableName
	return &Database{
		Database: db,
		Mapping:  &MappingQuery{dbutil.MakeQueryHelper(db, newMapping)},
		Signal:   &SignalQuery{dbutil.MakeQueryHelper(db, newSignal)},
		Recap:    &RecapQuery{dbutil.MakeQueryHelper(db, newRecap)},
	}
}

// Flat accessors matching the router's store interface.

// GetMapping returns the mapping for a source message id, or nil.
func (db *Database) GetMapping(ctx context.Context, telegramMsgID int64) (*MessageMapping, error) {
	return db.Mapping.Get(ctx, telegramMsgID)
}

// PutMapping upserts a mapping.
func (db *Database) PutMapping(ctx context.Context, m *MessageMapping) error {
	return db.Mapping.Put(ctx, m)
}

// MaxSignalNumber returns the highest persisted signal number, or 0.
func (db *Database) MaxSignalNumber(ctx context.Context) (int64, error) {
	return db.Signal.MaxNumber(ctx)
}

// PutSignal upserts a signal record.
func (db *Database) PutSignal(ctx context.Context, s *SignalRecord) error {
	return db.Signal.Put(ctx, s)
}

// IncrementSignalUpdate bumps a signal's update counter.
func (db *Database) IncrementSignalUpdate(ctx context.Context, signalNumber int64, when time.Time) error {
	return db.Signal.IncrementUpdate(ctx, signalNumber, when)
}

// PutRecap inserts a weekly recap record.
func (db *Database) PutRecap(ctx context.Context, w *WeeklyRecap) error {
	return db.Recap.Put(ctx, w)
}

func newMapping(_ *dbutil.QueryHelper[*MessageMapping]) *MessageMapping {
	return &MessageMapping{}
}

func newSignal(_ *dbutil.QueryHelper[*SignalRecord]) *SignalRecord {
	return &SignalRecord{}
}

func newRecap(_ *dbutil.QueryHelper[*WeeklyRecap]) *WeeklyRecap {
	return &WeeklyRecap{}
}

// MessageMapping correlates one source message with the destination
// message(s) it produced. A row exists iff at least one destination post
// succeeded for that source message.
type MessageMapping struct {
	TelegramMsgID    int64
	DiscordVIPMsgID  string
	DiscordFreeMsgID string // empty when the message was not mirrored
	DiscordChannelID string
	Category         string
	SignalNumber     int64 // 0 when the message is not a numbered signal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (m *MessageMapping) Scan(row dbutil.Scannable) (*MessageMapping, error) {
	var freeMsgID sql.NullString
	var signalNumber sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(
		&m.TelegramMsgID, &m.DiscordVIPMsgID, &freeMsgID,
		&m.DiscordChannelID, &m.Category, &signalNumber,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.DiscordFreeMsgID = freeMsgID.String
	m.SignalNumber = signalNumber.Int64
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	m.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return m, nil
}

// MappingQuery provides access to the message_mapping table.
type MappingQuery struct {
	*dbutil.QueryHelper[*MessageMapping]
}

const (
	getMappingQuery = `
		SELECT telegram_msg_id, discord_vip_msg_id, discord_free_msg_id,
		       discord_channel_id, message_category, signal_number,
		       created_at, updated_at
		FROM message_mapping WHERE telegram_msg_id=$1
	`
	putMappingQuery = `
		INSERT INTO message_mapping (
			telegram_msg_id, discord_vip_msg_id, discord_free_msg_id,
			discord_channel_id, message_category, signal_number,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (telegram_msg_id) DO UPDATE SET
			discord_vip_msg_id=excluded.discord_vip_msg_id,
			discord_free_msg_id=excluded.discord_free_msg_id,
			discord_channel_id=excluded.discord_channel_id,
			message_category=excluded.message_category,
			signal_number=excluded.signal_number,
			updated_at=excluded.updated_at
	`
)

// Get returns the mapping for a source message id, or nil if none exists.
func (mq *MappingQuery) Get(ctx context.Context, telegramMsgID int64) (*MessageMapping, error) {
	return mq.QueryOne(ctx, getMappingQuery, telegramMsgID)
}

// Put upserts a mapping. On conflict the non-key fields are overwritten and
// updated_at is bumped; created_at keeps the original insert time.
func (mq *MappingQuery) Put(ctx context.Context, m *MessageMapping) error {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return mq.Exec(ctx, putMappingQuery,
		m.TelegramMsgID, m.DiscordVIPMsgID, nullString(m.DiscordFreeMsgID),
		m.DiscordChannelID, m.Category, nullInt64(m.SignalNumber),
		now.Unix(),
	)
}

// SignalRecord tracks one numbered trading signal.
type SignalRecord struct {
	SignalNumber          int64
	OriginalTelegramID    int64
	OriginalDiscordVIPID  string
	OriginalDiscordFreeID string // empty when the signal was not sampled
	ForwardedToFree       bool
	UpdateCount           int
	LastUpdateTime        time.Time // zero when no update has arrived
	CreatedAt             time.Time
}

func (s *SignalRecord) Scan(row dbutil.Scannable) (*SignalRecord, error) {
	var freeID sql.NullString
	var lastUpdate sql.NullInt64
	var createdAt int64
	err := row.Scan(
		&s.SignalNumber, &s.OriginalTelegramID, &s.OriginalDiscordVIPID,
		&freeID, &s.ForwardedToFree, &s.UpdateCount, &lastUpdate, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	s.OriginalDiscordFreeID = freeID.String
	if lastUpdate.Valid {
		s.LastUpdateTime = time.Unix(lastUpdate.Int64, 0).UTC()
	}
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return s, nil
}

// SignalQuery provides access to the signal_tracking table.
type SignalQuery struct {
	*dbutil.QueryHelper[*SignalRecord]
}

const (
	getSignalQuery = `
		SELECT signal_number, original_telegram_id, original_discord_vip_id,
		       original_discord_free_id, forwarded_to_free, update_count,
		       last_update_time, created_at
		FROM signal_tracking WHERE signal_number=$1
	`
	maxSignalQuery = `SELECT COALESCE(MAX(signal_number), 0) FROM signal_tracking`
	putSignalQuery = `
		INSERT INTO signal_tracking (
			signal_number, original_telegram_id, original_discord_vip_id,
			original_discord_free_id, forwarded_to_free, update_count,
			last_update_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (signal_number) DO UPDATE SET
			original_telegram_id=excluded.original_telegram_id,
			original_discord_vip_id=excluded.original_discord_vip_id,
			original_discord_free_id=excluded.original_discord_free_id,
			forwarded_to_free=excluded.forwarded_to_free
	`
	incrementSignalUpdateQuery = `
		UPDATE signal_tracking
		SET update_count=update_count+1, last_update_time=$2
		WHERE signal_number=$1
	`
)

// Get returns the record for a signal number, or nil if none exists.
func (sq *SignalQuery) Get(ctx context.Context, signalNumber int64) (*SignalRecord, error) {
	return sq.QueryOne(ctx, getSignalQuery, signalNumber)
}

// MaxNumber returns the highest persisted signal number, or 0 if no signal
// has been recorded. The sequencer is seeded from this at startup so the
// sequence survives restarts.
func (sq *SignalQuery) MaxNumber(ctx context.Context) (int64, error) {
	var max int64
	err := sq.GetDB().QueryRow(ctx, maxSignalQuery).Scan(&max)
	return max, err
}

// Put upserts a signal record.
func (sq *SignalQuery) Put(ctx context.Context, s *SignalRecord) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	var lastUpdate sql.NullInt64
	if !s.LastUpdateTime.IsZero() {
		lastUpdate = sql.NullInt64{Int64: s.LastUpdateTime.Unix(), Valid: true}
	}
	return sq.Exec(ctx, putSignalQuery,
		s.SignalNumber, s.OriginalTelegramID, s.OriginalDiscordVIPID,
		nullString(s.OriginalDiscordFreeID), s.ForwardedToFree, s.UpdateCount,
		lastUpdate, s.CreatedAt.Unix(),
	)
}

// IncrementUpdate bumps a signal's update counter and last-update time.
func (sq *SignalQuery) IncrementUpdate(ctx context.Context, signalNumber int64, when time.Time) error {
	return sq.Exec(ctx, incrementSignalUpdateQuery, signalNumber, when.UTC().Unix())
}

// WeeklyRecap records one dual posting of a weekly recap.
type WeeklyRecap struct {
	ID               int64
	TelegramMsgID    int64
	DiscordVIPMsgID  string
	DiscordFreeMsgID string
	WeekStart        time.Time
	CreatedAt        time.Time
}

func (w *WeeklyRecap) Scan(row dbutil.Scannable) (*WeeklyRecap, error) {
	var weekStart string
	var createdAt int64
	err := row.Scan(
		&w.ID, &w.TelegramMsgID, &w.DiscordVIPMsgID, &w.DiscordFreeMsgID,
		&weekStart, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	w.WeekStart, err = time.Parse(time.DateOnly, weekStart)
	if err != nil {
		return nil, err
	}
	w.CreatedAt = time.Unix(createdAt, 0).UTC()
	return w, nil
}

// RecapQuery provides access to the weekly_recap_tracking table.
type RecapQuery struct {
	*dbutil.QueryHelper[*WeeklyRecap]
}

const (
	putRecapQuery = `
		INSERT INTO weekly_recap_tracking (
			telegram_msg_id, discord_vip_msg_id, discord_free_msg_id,
			week_start, created_at
		) VALUES ($1, $2, $3, $4, $5)
	`
	getLatestRecapQuery = `
		SELECT id, telegram_msg_id, discord_vip_msg_id, discord_free_msg_id,
		       week_start, created_at
		FROM weekly_recap_tracking ORDER BY id DESC LIMIT 1
	`
)

// Put inserts a recap record. The id column auto-increments.
func (rq *RecapQuery) Put(ctx context.Context, w *WeeklyRecap) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	return rq.Exec(ctx, putRecapQuery,
		w.TelegramMsgID, w.DiscordVIPMsgID, w.DiscordFreeMsgID,
		w.WeekStart.UTC().Format(time.DateOnly), w.CreatedAt.Unix(),
	)
}

// GetLatest returns the most recently recorded recap, or nil if none.
func (rq *RecapQuery) GetLatest(ctx context.Context) (*WeeklyRecap, error) {
	return rq.QueryOne(ctx, getLatestRecapQuery)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
