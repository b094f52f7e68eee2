// Package model defines the database models used throughout the application.
// These models work with both PostgreSQL and SQLite via GORM.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Musician represents a player eligible to receive staffing requests.
type Musician struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Name      string    `gorm:"not null;type:text" json:"name"`
	Email     string    `gorm:"uniqueIndex;not null;type:text" json:"email"`
	Phone     *string   `gorm:"type:text" json:"phone,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Musician) TableName() string { return "musicians" }

func (m *Musician) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Project represents a performance project (concert, tour, production).
type Project struct {
	ID        string     `gorm:"primaryKey;type:text" json:"id"`
	Name      string     `gorm:"not null;type:text" json:"name"`
	StartDate *time.Time `gorm:"column:start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `gorm:"column:end_date" json:"end_date,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Needs []Need `gorm:"foreignKey:ProjectID" json:"-"`
}

func (Project) TableName() string { return "projects" }

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// Position represents an instrument/section slot that musicians can fill
// (e.g. "Violin 2", "Principal Horn").
type Position struct {
	ID         string    `gorm:"primaryKey;type:text" json:"id"`
	Name       string    `gorm:"not null;type:text" json:"name"`
	Instrument string    `gorm:"not null;type:text" json:"instrument"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	RankingLists []RankingList `gorm:"foreignKey:PositionID" json:"-"`
}

func (Position) TableName() string { return "positions" }

func (p *Position) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// Need status constants representing the lifecycle of a staffing need.
const (
	NeedStatusActive    = "active"
	NeedStatusPaused    = "paused"
	NeedStatusCompleted = "completed"
	NeedStatusArchived  = "archived"
)

// Need represents a staffing requirement: N musicians for one position
// within a project. The fulfillment count is always derived from accepted
// requests, never stored.
type Need struct {
	ID         string    `gorm:"primaryKey;type:text" json:"id"`
	ProjectID  string    `gorm:"column:project_id;not null;type:text;index" json:"project_id"`
	PositionID string    `gorm:"column:position_id;not null;type:text;index" json:"position_id"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	Status     string    `gorm:"not null;type:text;default:active" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Project      *Project          `gorm:"foreignKey:ProjectID" json:"-"`
	Position     *Position         `gorm:"foreignKey:PositionID" json:"-"`
	RankingLists []NeedRankingList `gorm:"foreignKey:NeedID" json:"-"`
	Requests     []Request         `gorm:"foreignKey:NeedID" json:"-"`
}

func (Need) TableName() string { return "needs" }

func (n *Need) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// IsSelectable reports whether the selection pipeline may act on this need.
// Paused, completed and archived needs never receive new requests.
func (n *Need) IsSelectable() bool {
	return n.Status == NeedStatusActive
}

// RankingList is an ordered list of musicians for one position, uniquely
// identified by (position, list type).
type RankingList struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"`
	PositionID  string    `gorm:"column:position_id;not null;type:text;uniqueIndex:idx_position_list_type" json:"position_id"`
	ListType    string    `gorm:"column:list_type;not null;type:text;uniqueIndex:idx_position_list_type" json:"list_type"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Position *Position `gorm:"foreignKey:PositionID" json:"-"`
	Rankings []Ranking `gorm:"foreignKey:RankingListID" json:"-"`
}

func (RankingList) TableName() string { return "ranking_lists" }

func (l *RankingList) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// Ranking places one musician at one rank within a ranking list. Rank is a
// dense, 1-based ordinal; the store re-sequences ranks whenever an entry is
// removed.
type Ranking struct {
	ID            string    `gorm:"primaryKey;type:text" json:"id"`
	RankingListID string    `gorm:"column:ranking_list_id;not null;type:text;uniqueIndex:idx_list_musician;index" json:"ranking_list_id"`
	MusicianID    string    `gorm:"column:musician_id;not null;type:text;uniqueIndex:idx_list_musician" json:"musician_id"`
	Rank          int       `gorm:"not null" json:"rank"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`

	RankingList *RankingList `gorm:"foreignKey:RankingListID" json:"-"`
	Musician    *Musician    `gorm:"foreignKey:MusicianID" json:"-"`
}

func (Ranking) TableName() string { return "rankings" }

func (r *Ranking) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// NeedRankingList binds a need to the ranking lists used for its selection,
// in precedence order (position 0 is consulted first by first-list-wins).
type NeedRankingList struct {
	ID            string `gorm:"primaryKey;type:text" json:"id"`
	NeedID        string `gorm:"column:need_id;not null;type:text;uniqueIndex:idx_need_list;index" json:"need_id"`
	RankingListID string `gorm:"column:ranking_list_id;not null;type:text;uniqueIndex:idx_need_list" json:"ranking_list_id"`
	Precedence    int    `gorm:"not null;default:0" json:"precedence"`

	Need        *Need        `gorm:"foreignKey:NeedID" json:"-"`
	RankingList *RankingList `gorm:"foreignKey:RankingListID" json:"-"`
}

func (NeedRankingList) TableName() string { return "need_ranking_lists" }

func (n *NeedRankingList) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// Request status constants. Transitions are monotonic: a request never
// re-enters pending once it has left it.
const (
	RequestStatusPending   = "pending"
	RequestStatusAccepted  = "accepted"
	RequestStatusDeclined  = "declined"
	RequestStatusTimeout   = "timeout"
	RequestStatusCancelled = "cancelled"
)

// TerminalRequestStatuses lists every status a request cannot leave.
var TerminalRequestStatuses = []string{
	RequestStatusAccepted,
	RequestStatusDeclined,
	RequestStatusTimeout,
	RequestStatusCancelled,
}

// Request is one outbound staffing offer to one musician for one need.
type Request struct {
	ID          string          `gorm:"primaryKey;type:text" json:"id"`
	NeedID      string          `gorm:"column:need_id;not null;type:text;index" json:"need_id"`
	MusicianID  string          `gorm:"column:musician_id;not null;type:text;index" json:"musician_id"`
	Status      string          `gorm:"not null;type:text;default:pending;index" json:"status"`
	SentAt      time.Time       `gorm:"column:sent_at;not null" json:"sent_at"`
	RespondedAt *time.Time      `gorm:"column:responded_at" json:"responded_at,omitempty"`
	Response    json.RawMessage `gorm:"type:text" json:"response,omitempty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Need     *Need     `gorm:"foreignKey:NeedID" json:"-"`
	Musician *Musician `gorm:"foreignKey:MusicianID" json:"-"`
}

func (Request) TableName() string { return "requests" }

func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// IsTerminal reports whether the request has reached a final status.
func (r *Request) IsTerminal() bool {
	return r.Status != RequestStatusPending
}

// ResponseToken is the single-use secret a musician presents to answer a
// request. Only the SHA-256 hash of the token is stored.
type ResponseToken struct {
	ID        string     `gorm:"primaryKey;type:text" json:"id"`
	RequestID string     `gorm:"column:request_id;uniqueIndex;not null;type:text" json:"request_id"`
	TokenHash string     `gorm:"column:token_hash;uniqueIndex;not null;type:text" json:"-"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null;index" json:"expires_at"`
	UsedAt    *time.Time `gorm:"column:used_at" json:"used_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`

	Request *Request `gorm:"foreignKey:RequestID" json:"-"`
}

func (ResponseToken) TableName() string { return "response_tokens" }

func (t *ResponseToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// Communication log kinds.
const (
	CommunicationKindRequest  = "request"
	CommunicationKindReminder = "reminder"
)

// CommunicationLog is an append-only record of notification dispatch events
// keyed to a request. The unique (request, kind) index is what guarantees
// at most one reminder per request.
type CommunicationLog struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	RequestID string    `gorm:"column:request_id;not null;type:text;uniqueIndex:idx_request_kind;index" json:"request_id"`
	Kind      string    `gorm:"not null;type:text;uniqueIndex:idx_request_kind" json:"kind"`
	SentAt    time.Time `gorm:"column:sent_at;not null" json:"sent_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Request *Request `gorm:"foreignKey:RequestID" json:"-"`
}

func (CommunicationLog) TableName() string { return "communication_logs" }

func (c *CommunicationLog) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// Well-known setting keys.
const (
	SettingReminderPercentage      = "reminder_percentage"
	SettingRankingConflictStrategy = "ranking_conflict_strategy"
	SettingResponseWindowHours     = "response_window_hours"
)

// Setting is a tenant-scoped key/value configuration entry.
type Setting struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null;type:text" json:"key"`
	Value     string    `gorm:"not null;type:text" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }

func (s *Setting) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// AllModels returns all model types for migration.
func AllModels() []interface{} {
	return []interface{}{
		&Musician{},
		&Project{},
		&Position{},
		&Need{},
		&RankingList{},
		&Ranking{},
		&NeedRankingList{},
		&Request{},
		&ResponseToken{},
		&CommunicationLog{},
		&Setting{},
	}
}
