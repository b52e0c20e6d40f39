package catalog

import (
	"sort"
	"strings"

	"gorm.io/gorm"

	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

// DefaultCandidateLimit caps how many resources FindByTags returns.
const DefaultCandidateLimit = 10

type ResourceRepo interface {
	Create(dbc dbctx.Context, rows []*types.Resource) ([]*types.Resource, error)
	// FindByTags returns resources in domain that share at least one tag,
	// best quality first. An empty domain matches every domain.
	FindByTags(dbc dbctx.Context, tags []string, domain string, limit int) ([]*types.Resource, error)
}

type resourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResourceRepo(db *gorm.DB, baseLog *logger.Logger) ResourceRepo {
	return &resourceRepo{db: db, log: baseLog.With("repo", "ResourceRepo")}
}

func (r *resourceRepo) Create(dbc dbctx.Context, rows []*types.Resource) ([]*types.Resource, error) {
	if len(rows) == 0 {
		return []*types.Resource{}, nil
	}
	if err := dbc.Conn(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *resourceRepo) FindByTags(dbc dbctx.Context, tags []string, domain string, limit int) ([]*types.Resource, error) {
	want := map[string]struct{}{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			want[t] = struct{}{}
		}
	}
	out := []*types.Resource{}
	if len(want) == 0 {
		return out, nil
	}
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	// Tags are a JSON array, which postgres and sqlite query differently;
	// filter by domain in SQL and by tag overlap here.
	q := dbc.Conn(r.db).Model(&types.Resource{})
	if strings.TrimSpace(domain) != "" {
		q = q.Where("domain = ?", domain)
	}
	var rows []*types.Resource
	if err := q.Order("quality_score DESC, created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if overlaps(row.TagList(), want) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].QualityScore > out[j].QualityScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func overlaps(tags []string, want map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := want[strings.ToLower(strings.TrimSpace(t))]; ok {
			return true
		}
	}
	return false
}
