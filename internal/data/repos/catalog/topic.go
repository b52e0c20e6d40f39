package catalog

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

type TopicRepo interface {
	// FindOrCreate resolves a topic by its normalized name, creating it when absent.
	FindOrCreate(dbc dbctx.Context, name, domain string) (*types.Topic, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Topic, error)
	IncrementSearchCount(dbc dbctx.Context, id uuid.UUID) error
}

type topicRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTopicRepo(db *gorm.DB, baseLog *logger.Logger) TopicRepo {
	return &topicRepo{db: db, log: baseLog.With("repo", "TopicRepo")}
}

// NormalizeTopicName lowercases, trims and collapses internal whitespace.
func NormalizeTopicName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func (r *topicRepo) FindOrCreate(dbc dbctx.Context, name, domain string) (*types.Topic, error) {
	normalized := NormalizeTopicName(name)
	if normalized == "" {
		return nil, errors.New("topic name is required")
	}
	conn := dbc.Conn(r.db)
	row := &types.Topic{
		Name:           strings.TrimSpace(name),
		NormalizedName: normalized,
		Domain:         domain,
	}
	if err := conn.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "normalized_name"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	var out types.Topic
	if err := conn.Where("normalized_name = ?", normalized).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *topicRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Topic, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var t types.Topic
	err := dbc.Conn(r.db).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *topicRepo) IncrementSearchCount(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.Topic{}).
		Where("id = ?", id).
		UpdateColumn("search_count", gorm.Expr("search_count + 1")).Error
}
