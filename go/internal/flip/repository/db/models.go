package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sqlc-dev/pqtype"
)

type FlipSession struct {
	ID           string
	Phase        string
	CurrentRound int32
	Winner       sql.NullString
	CancelReason sql.NullString
	EventSeq     int64
	State        json.RawMessage
	History      pqtype.NullRawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
	EndedAt      sql.NullTime
}

type FlipEntry struct {
	GameID      string
	PlayerID    string
	Status      string
	Cosmetic    pqtype.NullRawMessage
	ConfirmedAt sql.NullTime
	JoinedAt    sql.NullTime
	CreatedAt   time.Time
}
