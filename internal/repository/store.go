package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hisyeo/kennings/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("kenning not found")
	ErrInvalidTransition  = errors.New("kenning is not in a state that allows this change")
	ErrUnknownVoteType    = errors.New("unknown vote type")
)

// KenningRepository is the read/write surface the request handlers need.
type KenningRepository interface {
	FetchRecentPublished(ctx context.Context, limit int) ([]model.KenningRow, error)
	FetchByConcepts(ctx context.Context, concepts []string) ([]model.KenningRow, error)
	FetchByIDs(ctx context.Context, ids []int64) ([]model.KenningRow, error)
	FetchAllPublished(ctx context.Context) ([]model.KenningRow, error)
	FetchVoteSums(ctx context.Context, kenningIDs []int64) ([]model.VoteSum, error)
	InsertKenning(ctx context.Context, k NewKenning) (int64, error)
	AppendVersion(ctx context.Context, id int64, definition string, words []WordRef, spans datatypes.JSON) (int, error)
	FindWords(ctx context.Context, latins []string) (map[string]model.HisyeoWord, error)
	SetType(ctx context.Context, id int64, to int, from ...int) error
	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
	ListForReview(ctx context.Context, limit int) ([]model.Kenning, error)
	VoteTypes(ctx context.Context) ([]model.VoteType, error)
	CastVote(ctx context.Context, v Vote) error
}

var _ KenningRepository = (*Store)(nil)

// WordRef is one token of a kenning: a known word, or the raw literal when
// the token did not resolve.
type WordRef struct {
	WordID  *int64
	Literal string
}

type NewKenning struct {
	Concept    string
	Definition string
	CreatedBy  string
	Type       int
	Words      []WordRef
	Spans      datatypes.JSON
}

type Vote struct {
	KenningID int64
	TypeName  string
	Voter     string
	Weight    int
}

// UnresolvedWord is a current-version kenning word with no word id.
type UnresolvedWord struct {
	KenningID int64
	Concept   string
	Version   int
	Position  int
	Literal   string
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

const currentRowsSQL = `
	SELECT k.id, k.concept, k.definition, k.type, k.created_by, k.created_at, k.updated_at,
		kw.version, kw.position, kw.word_id,
		COALESCE(w.latin, kw.literal) AS latin,
		COALESCE(w.abugida, '') AS abugida,
		COALESCE(w.syllabary, '') AS syllabary,
		COALESCE(w.kind, '') AS kind
	FROM kennings k
	INNER JOIN kenning_words kw ON kw.kenning_id = k.id
	LEFT JOIN hisyeo_words w ON w.id = kw.word_id
	WHERE kw.version = (SELECT MAX(v.version) FROM kenning_words v WHERE v.kenning_id = k.id)
`

const rowOrder = ` ORDER BY k.updated_at DESC, k.id DESC, kw.position ASC`

func (s *Store) currentRows(ctx context.Context, op, where string, args ...interface{}) ([]model.KenningRow, error) {
	rows := make([]model.KenningRow, 0)
	if err := s.db.WithContext(ctx).Raw(currentRowsSQL+where+rowOrder, args...).Scan(&rows).Error; err != nil {
		return nil, unavailable(op, err)
	}
	return rows, nil
}

// FetchRecentPublished returns the current words of the most recently
// updated published kennings. The limit counts kennings, not rows.
func (s *Store) FetchRecentPublished(ctx context.Context, limit int) ([]model.KenningRow, error) {
	return s.currentRows(ctx, "fetch recent published", `
		AND k.id IN (
			SELECT r.id FROM kennings r
			WHERE r.type = ? AND r.is_deleted = ?
			ORDER BY r.updated_at DESC, r.id DESC
			LIMIT ?
		)`, model.TypePublished, false, limit)
}

func (s *Store) FetchByConcepts(ctx context.Context, concepts []string) ([]model.KenningRow, error) {
	if len(concepts) == 0 {
		return []model.KenningRow{}, nil
	}
	return s.currentRows(ctx, "fetch by concepts",
		` AND k.type = ? AND k.is_deleted = ? AND k.concept IN ?`,
		model.TypePublished, false, concepts)
}

// FetchByIDs returns current words for the given kennings in any state.
func (s *Store) FetchByIDs(ctx context.Context, ids []int64) ([]model.KenningRow, error) {
	if len(ids) == 0 {
		return []model.KenningRow{}, nil
	}
	return s.currentRows(ctx, "fetch by ids", ` AND k.id IN ?`, ids)
}

func (s *Store) FetchAllPublished(ctx context.Context) ([]model.KenningRow, error) {
	return s.currentRows(ctx, "fetch all published",
		` AND k.type = ? AND k.is_deleted = ?`, model.TypePublished, false)
}

func (s *Store) FetchVoteSums(ctx context.Context, kenningIDs []int64) ([]model.VoteSum, error) {
	sums := make([]model.VoteSum, 0)
	if len(kenningIDs) == 0 {
		return sums, nil
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT uv.kenning_id, vt.name AS vote_type, vt.emoji, vt.description, SUM(uv.weight) AS total
		FROM user_votes uv
		INNER JOIN vote_types vt ON vt.id = uv.vote_type_id
		WHERE uv.kenning_id IN ?
		GROUP BY uv.kenning_id, vt.id, vt.name, vt.emoji, vt.description
		ORDER BY uv.kenning_id, vt.id
	`, kenningIDs).Scan(&sums).Error
	if err != nil {
		return nil, unavailable("fetch vote sums", err)
	}
	return sums, nil
}

func wordRows(kenningID int64, version int, words []WordRef) []model.KenningWord {
	rows := make([]model.KenningWord, len(words))
	for i, w := range words {
		rows[i] = model.KenningWord{
			KenningID: kenningID,
			Version:   version,
			Position:  i,
			WordID:    w.WordID,
			Literal:   w.Literal,
		}
	}
	return rows
}

// InsertKenning stores a kenning and its first word version in one transaction.
func (s *Store) InsertKenning(ctx context.Context, nk NewKenning) (int64, error) {
	if nk.Type == 0 {
		nk.Type = model.TypeSubmitted
	}
	kenning := model.Kenning{
		Concept:    nk.Concept,
		Type:       nk.Type,
		Definition: nk.Definition,
		CreatedBy:  nk.CreatedBy,
		Spans:      nk.Spans,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&kenning).Error; err != nil {
			return err
		}
		if len(nk.Words) == 0 {
			return nil
		}
		words := wordRows(kenning.ID, 1, nk.Words)
		return tx.Create(&words).Error
	})
	if err != nil {
		return 0, unavailable("insert kenning", err)
	}
	return kenning.ID, nil
}

// AppendVersion writes words as a new version of the kenning and returns the
// new version number. Older versions are kept.
func (s *Store) AppendVersion(ctx context.Context, id int64, definition string, words []WordRef, spans datatypes.JSON) (int, error) {
	var version int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var kenning model.Kenning
		if err := tx.First(&kenning, id).Error; err != nil {
			return err
		}

		var current int
		if err := tx.Model(&model.KenningWord{}).
			Where("kenning_id = ?", id).
			Select("COALESCE(MAX(version), 0)").
			Scan(&current).Error; err != nil {
			return err
		}
		version = current + 1

		if len(words) > 0 {
			rows := wordRows(id, version, words)
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}

		updates := map[string]interface{}{"updated_at": time.Now()}
		if definition != "" {
			updates["definition"] = definition
		}
		if spans != nil {
			updates["spans"] = spans
		}
		return tx.Model(&kenning).Updates(updates).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return 0, unavailable("append version", err)
	}
	return version, nil
}

// FindWords looks up known words by exact latin spelling.
func (s *Store) FindWords(ctx context.Context, latins []string) (map[string]model.HisyeoWord, error) {
	known := make(map[string]model.HisyeoWord, len(latins))
	if len(latins) == 0 {
		return known, nil
	}
	var words []model.HisyeoWord
	if err := s.db.WithContext(ctx).Where("latin IN ?", latins).Find(&words).Error; err != nil {
		return nil, unavailable("find words", err)
	}
	for _, w := range words {
		known[w.Latin] = w
	}
	return known, nil
}

// SetType moves a kenning to a new type if its current type is one of from.
func (s *Store) SetType(ctx context.Context, id int64, to int, from ...int) error {
	q := s.db.WithContext(ctx).Model(&model.Kenning{}).Where("id = ?", id)
	if len(from) > 0 {
		q = q.Where("type IN ?", from)
	}
	result := q.Updates(map[string]interface{}{"type": to, "updated_at": time.Now()})
	if result.Error != nil {
		return unavailable("set type", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.missingOr(ctx, id, ErrInvalidTransition)
	}
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	now := time.Now()
	return s.setDeleted(ctx, id, map[string]interface{}{
		"is_deleted": true,
		"deleted_at": now,
		"updated_at": now,
	})
}

func (s *Store) Restore(ctx context.Context, id int64) error {
	now := time.Now()
	return s.setDeleted(ctx, id, map[string]interface{}{
		"is_deleted":  false,
		"restored_at": now,
		"updated_at":  now,
	})
}

func (s *Store) setDeleted(ctx context.Context, id int64, updates map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&model.Kenning{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return unavailable("set deleted", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// missingOr returns ErrNotFound when the kenning does not exist, otherwise fallback.
func (s *Store) missingOr(ctx context.Context, id int64, fallback error) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Kenning{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return unavailable("find kenning", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return fmt.Errorf("%w: %d", fallback, id)
}

// ListForReview returns the most recently updated kennings that are not
// published, deleted ones included so they can be restored.
func (s *Store) ListForReview(ctx context.Context, limit int) ([]model.Kenning, error) {
	kennings := make([]model.Kenning, 0)
	err := s.db.WithContext(ctx).
		Where("type IN ?", []int{model.TypeSubmitted, model.TypeUnpublished}).
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&kennings).Error
	if err != nil {
		return nil, unavailable("list for review", err)
	}
	return kennings, nil
}

func (s *Store) VoteTypes(ctx context.Context) ([]model.VoteType, error) {
	types := make([]model.VoteType, 0)
	if err := s.db.WithContext(ctx).Order("id").Find(&types).Error; err != nil {
		return nil, unavailable("vote types", err)
	}
	return types, nil
}

// CastVote records a vote on a published kenning.
func (s *Store) CastVote(ctx context.Context, v Vote) error {
	db := s.db.WithContext(ctx)

	var kenning model.Kenning
	err := db.Where("id = ? AND type = ? AND is_deleted = ?", v.KenningID, model.TypePublished, false).First(&kenning).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %d", ErrNotFound, v.KenningID)
	}
	if err != nil {
		return unavailable("cast vote", err)
	}

	var voteType model.VoteType
	err = db.Where("name = ?", v.TypeName).First(&voteType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownVoteType, v.TypeName)
	}
	if err != nil {
		return unavailable("cast vote", err)
	}

	weight := v.Weight
	if weight == 0 {
		weight = 1
	}
	vote := model.UserVote{
		KenningID:  v.KenningID,
		VoteTypeID: voteType.ID,
		Weight:     weight,
		Voter:      v.Voter,
	}
	if err := db.Create(&vote).Error; err != nil {
		return unavailable("cast vote", err)
	}
	return nil
}

// FetchUnresolved returns every current-version word that has no word id.
func (s *Store) FetchUnresolved(ctx context.Context) ([]UnresolvedWord, error) {
	words := make([]UnresolvedWord, 0)
	err := s.db.WithContext(ctx).Raw(`
		SELECT kw.kenning_id, k.concept, kw.version, kw.position, kw.literal
		FROM kenning_words kw
		INNER JOIN kennings k ON k.id = kw.kenning_id
		WHERE kw.word_id IS NULL
			AND kw.version = (SELECT MAX(v.version) FROM kenning_words v WHERE v.kenning_id = kw.kenning_id)
		ORDER BY kw.kenning_id, kw.position
	`).Scan(&words).Error
	if err != nil {
		return nil, unavailable("fetch unresolved", err)
	}
	return words, nil
}

// CurrentWords returns the current version's words of one kenning in order.
func (s *Store) CurrentWords(ctx context.Context, kenningID int64) ([]model.KenningWord, error) {
	words := make([]model.KenningWord, 0)
	err := s.db.WithContext(ctx).
		Where("kenning_id = ? AND version = (?)", kenningID,
			s.db.Model(&model.KenningWord{}).Select("MAX(version)").Where("kenning_id = ?", kenningID)).
		Order("position").
		Find(&words).Error
	if err != nil {
		return nil, unavailable("current words", err)
	}
	return words, nil
}

// UpsertWords inserts or refreshes known words keyed by latin spelling.
func (s *Store) UpsertWords(ctx context.Context, words []model.HisyeoWord) (int64, error) {
	if len(words) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "latin"}},
		DoUpdates: clause.AssignmentColumns([]string{"abugida", "syllabary", "kind", "type_ref"}),
	}).CreateInBatches(&words, 500)
	if result.Error != nil {
		return 0, unavailable("upsert words", result.Error)
	}
	return result.RowsAffected, nil
}

// EnsureVoteTypes inserts any vote types that are not stored yet.
func (s *Store) EnsureVoteTypes(ctx context.Context, types []model.VoteType) error {
	if len(types) == 0 {
		return nil
	}
	rows := make([]model.VoteType, len(types))
	copy(rows, types)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return unavailable("ensure vote types", err)
	}
	return nil
}
