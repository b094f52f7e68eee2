// Package store provides database operations using GORM. A Store is bound
// to exactly one tenant's database handle; cross-tenant access is impossible
// through it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ensemblehq/chairfill/internal/model"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a conditional mutation lost a race: the row was
	// already in a terminal state or the token was already consumed.
	ErrConflict = errors.New("conflicting state change")
	// ErrDuplicatePending indicates a musician already has a pending request
	// for the need.
	ErrDuplicatePending = errors.New("pending request already exists for musician")
)

// Store wraps GORM DB for database operations.
type Store struct {
	db *gorm.DB
}

// New creates a new Store with the given GORM DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying GORM DB for advanced queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// --- Musicians ---

func (s *Store) GetMusicianByID(ctx context.Context, id string) (*model.Musician, error) {
	var musician model.Musician
	if err := s.db.WithContext(ctx).First(&musician, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &musician, nil
}

func (s *Store) CreateMusician(ctx context.Context, musician *model.Musician) error {
	return s.db.WithContext(ctx).Create(musician).Error
}

// --- Projects ---

func (s *Store) GetProjectByID(ctx context.Context, id string) (*model.Project, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (s *Store) CreateProject(ctx context.Context, project *model.Project) error {
	return s.db.WithContext(ctx).Create(project).Error
}

// --- Positions ---

func (s *Store) CreatePosition(ctx context.Context, position *model.Position) error {
	return s.db.WithContext(ctx).Create(position).Error
}

// --- Needs ---

func (s *Store) GetNeedByID(ctx context.Context, id string) (*model.Need, error) {
	var need model.Need
	if err := s.db.WithContext(ctx).First(&need, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &need, nil
}

func (s *Store) CreateNeed(ctx context.Context, need *model.Need) error {
	return s.db.WithContext(ctx).Create(need).Error
}

func (s *Store) UpdateNeedStatus(ctx context.Context, id, status string) error {
	result := s.db.WithContext(ctx).Model(&model.Need{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveNeedsByProject returns all needs of a project that the selection
// pipeline may act on.
func (s *Store) ListActiveNeedsByProject(ctx context.Context, projectID string) ([]*model.Need, error) {
	var needs []*model.Need
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, model.NeedStatusActive).
		Order("created_at ASC").
		Find(&needs).Error
	return needs, err
}

// --- Ranking lists ---

func (s *Store) CreateRankingList(ctx context.Context, list *model.RankingList) error {
	return s.db.WithContext(ctx).Create(list).Error
}

func (s *Store) CreateRanking(ctx context.Context, ranking *model.Ranking) error {
	return s.db.WithContext(ctx).Create(ranking).Error
}

func (s *Store) BindNeedRankingList(ctx context.Context, binding *model.NeedRankingList) error {
	return s.db.WithContext(ctx).Create(binding).Error
}

// ListRankingListsForNeed returns the ranking lists bound to a need in
// precedence order, each with its rankings ordered by rank.
func (s *Store) ListRankingListsForNeed(ctx context.Context, needID string) ([]*model.RankingList, error) {
	var bindings []*model.NeedRankingList
	err := s.db.WithContext(ctx).
		Where("need_id = ?", needID).
		Order("precedence ASC").
		Find(&bindings).Error
	if err != nil {
		return nil, err
	}

	lists := make([]*model.RankingList, 0, len(bindings))
	for _, b := range bindings {
		var list model.RankingList
		err := s.db.WithContext(ctx).
			Preload("Rankings", func(db *gorm.DB) *gorm.DB {
				return db.Order("rank ASC")
			}).
			First(&list, "id = ?", b.RankingListID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		lists = append(lists, &list)
	}
	return lists, nil
}

// RemoveRanking deletes a ranking entry and re-sequences the remaining ranks
// of its list so they stay dense and 1-based.
func (s *Store) RemoveRanking(ctx context.Context, rankingID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ranking model.Ranking
		if err := tx.First(&ranking, "id = ?", rankingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := tx.Delete(&model.Ranking{}, "id = ?", rankingID).Error; err != nil {
			return err
		}

		var remaining []*model.Ranking
		if err := tx.Where("ranking_list_id = ?", ranking.RankingListID).
			Order("rank ASC").
			Find(&remaining).Error; err != nil {
			return err
		}
		for i, r := range remaining {
			if r.Rank != i+1 {
				if err := tx.Model(&model.Ranking{}).Where("id = ?", r.ID).Update("rank", i+1).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// --- Requests ---

func (s *Store) GetRequestByID(ctx context.Context, id string) (*model.Request, error) {
	var request model.Request
	if err := s.db.WithContext(ctx).First(&request, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &request, nil
}

// ListRequestsByNeed returns all requests for a need, oldest first.
func (s *Store) ListRequestsByNeed(ctx context.Context, needID string) ([]*model.Request, error) {
	var requests []*model.Request
	err := s.db.WithContext(ctx).
		Where("need_id = ?", needID).
		Order("sent_at ASC, created_at ASC").
		Find(&requests).Error
	return requests, err
}

// CountAcceptedRequests returns the need's derived fulfillment count.
func (s *Store) CountAcceptedRequests(ctx context.Context, needID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Request{}).
		Where("need_id = ? AND status = ?", needID, model.RequestStatusAccepted).
		Count(&count).Error
	return int(count), err
}

// CreateRequestWithToken persists a request and its response token in one
// transaction. It fails with ErrDuplicatePending if the musician already has
// a pending request for the need.
func (s *Store) CreateRequestWithToken(ctx context.Context, request *model.Request, token *model.ResponseToken) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending int64
		err := tx.Model(&model.Request{}).
			Where("need_id = ? AND musician_id = ? AND status = ?",
				request.NeedID, request.MusicianID, model.RequestStatusPending).
			Count(&pending).Error
		if err != nil {
			return err
		}
		if pending > 0 {
			return ErrDuplicatePending
		}

		if err := tx.Create(request).Error; err != nil {
			return err
		}
		token.RequestID = request.ID
		return tx.Create(token).Error
	})
}

// ResolveRequest atomically consumes the response token and transitions the
// request to a terminal status. Exactly one caller wins; losers get
// ErrConflict and must treat the request as already responded.
func (s *Store) ResolveRequest(ctx context.Context, tokenID, requestID, status string, respondedAt time.Time, payload json.RawMessage) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.ResponseToken{}).
			Where("id = ? AND used_at IS NULL", tokenID).
			Update("used_at", respondedAt)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}

		updates := map[string]interface{}{
			"status":       status,
			"responded_at": respondedAt,
		}
		if payload != nil {
			updates["response"] = payload
		}
		result = tx.Model(&model.Request{}).
			Where("id = ? AND status = ?", requestID, model.RequestStatusPending).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	})
}

// TimeoutRequest transitions a pending request to timeout and burns its
// token. Returns ErrConflict if the request already reached a terminal state
// through a response that won the race.
func (s *Store) TimeoutRequest(ctx context.Context, requestID string, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Request{}).
			Where("id = ? AND status = ?", requestID, model.RequestStatusPending).
			Updates(map[string]interface{}{
				"status":       model.RequestStatusTimeout,
				"responded_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}

		// The token is dead either way once the request is terminal; marking
		// it used keeps the validator's expiry check honest.
		return tx.Model(&model.ResponseToken{}).
			Where("request_id = ? AND used_at IS NULL", requestID).
			Update("used_at", now).Error
	})
}

// CancelRequest transitions a pending request to cancelled. Cancelled
// musicians remain eligible for later automatic selection.
func (s *Store) CancelRequest(ctx context.Context, requestID string, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Request{}).
			Where("id = ? AND status = ?", requestID, model.RequestStatusPending).
			Updates(map[string]interface{}{
				"status":       model.RequestStatusCancelled,
				"responded_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}
		return tx.Model(&model.ResponseToken{}).
			Where("request_id = ? AND used_at IS NULL", requestID).
			Update("used_at", now).Error
	})
}

// --- Response tokens ---

func (s *Store) GetTokenByHash(ctx context.Context, tokenHash string) (*model.ResponseToken, error) {
	var token model.ResponseToken
	err := s.db.WithContext(ctx).
		Preload("Request").
		First(&token, "token_hash = ?", tokenHash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

func (s *Store) GetTokenByRequestID(ctx context.Context, requestID string) (*model.ResponseToken, error) {
	var token model.ResponseToken
	if err := s.db.WithContext(ctx).First(&token, "request_id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

// ListPendingTokens returns the tokens of all pending requests with the
// request preloaded. The sweeps derive reminder thresholds and deadlines
// from each token's own window.
func (s *Store) ListPendingTokens(ctx context.Context) ([]*model.ResponseToken, error) {
	var tokens []*model.ResponseToken
	err := s.db.WithContext(ctx).
		Preload("Request").
		Joins("JOIN requests ON requests.id = response_tokens.request_id").
		Where("requests.status = ?", model.RequestStatusPending).
		Order("response_tokens.expires_at ASC").
		Find(&tokens).Error
	return tokens, err
}

// --- Communication log ---

// ClaimCommunication records a dispatch event for a request. It returns
// false when an entry of the same kind already exists, which is what bounds
// reminders to one per request even under overlapping sweeps.
func (s *Store) ClaimCommunication(ctx context.Context, requestID, kind string, sentAt time.Time) (bool, error) {
	claimed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&model.CommunicationLog{}).
			Where("request_id = ? AND kind = ?", requestID, kind).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		entry := &model.CommunicationLog{
			RequestID: requestID,
			Kind:      kind,
			SentAt:    sentAt,
		}
		if err := tx.Create(entry).Error; err != nil {
			// The unique (request, kind) index catches races between two
			// transactions that both saw no prior entry. The loser simply
			// reports not-claimed.
			return nil
		}
		claimed = true
		return nil
	})
	return claimed, err
}

func (s *Store) HasCommunication(ctx context.Context, requestID, kind string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.CommunicationLog{}).
		Where("request_id = ? AND kind = ?", requestID, kind).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) ListCommunicationsByRequest(ctx context.Context, requestID string) ([]*model.CommunicationLog, error) {
	var entries []*model.CommunicationLog
	err := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("sent_at ASC").
		Find(&entries).Error
	return entries, err
}

// --- Settings ---

func (s *Store) GetSetting(ctx context.Context, key string) (*model.Setting, error) {
	var setting model.Setting
	if err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &setting, nil
}

func (s *Store) ListSettings(ctx context.Context) ([]*model.Setting, error) {
	var settings []*model.Setting
	err := s.db.WithContext(ctx).Order("key ASC").Find(&settings).Error
	return settings, err
}

// SetSetting creates or updates a setting (upsert).
func (s *Store) SetSetting(ctx context.Context, setting *model.Setting) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Setting
		err := tx.First(&existing, "key = ?", setting.Key).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(setting).Error
		}

		existing.Value = setting.Value
		setting.ID = existing.ID
		setting.CreatedAt = existing.CreatedAt
		return tx.Save(&existing).Error
	})
}
