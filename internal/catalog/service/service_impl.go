package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/toolhub/internal/cache"
	"github.com/smallbiznis/toolhub/internal/catalog/domain"
	"github.com/smallbiznis/toolhub/internal/clock"
	"github.com/smallbiznis/toolhub/internal/realtime"
	"github.com/smallbiznis/toolhub/pkg/db/option"
	"github.com/smallbiznis/toolhub/pkg/db/pagination"
	"github.com/smallbiznis/toolhub/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	categoriesKey = "all"
	categoriesTTL = time.Minute
	maxSlugTries  = 50
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock
	Emitter realtime.Emitter `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	repo       domain.Repository
	store      repository.Repository[domain.Tool]
	genID      *snowflake.Node
	clock      clock.Clock
	emitter    realtime.Emitter
	categories cache.Cache[string, []domain.Category]
}

func New(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("catalog.service"),
		repo:       p.Repo,
		store:      repository.ProvideStore[domain.Tool](p.DB),
		genID:      p.GenID,
		clock:      p.Clock,
		emitter:    p.Emitter,
		categories: cache.NewTTLCache[string, []domain.Category](),
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	kind := req.Kind
	if kind == "" {
		kind = domain.ListPopular
	}
	if !kind.Valid() {
		return nil, domain.ErrInvalidKind
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return nil, err
	}
	limit := req.Limit()
	filter := domain.ListFilter{
		Kind:     kind,
		Category: req.Category,
		Cursor:   cursor,
		Limit:    limit + 1,
	}
	if kind == domain.ListTrending {
		since := s.clock.Now().Add(-domain.TrendingWindow)
		filter.CreatedAfter = &since
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	extract := newestCursor
	if kind == domain.ListPopular || kind == domain.ListTrending {
		extract = rankCursor
	}
	items, info, err := pagination.BuildCursorPageInfo(items, limit, extract)
	if err != nil {
		return nil, err
	}
	return &domain.ListResponse{Tools: items, PageInfo: info}, nil
}

func newestCursor(t *domain.Tool) pagination.Cursor {
	return pagination.Cursor{ID: t.ID.String(), CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano)}
}

func rankCursor(t *domain.Tool) pagination.Cursor {
	return pagination.Cursor{ID: t.ID.String(), Rank: t.Views}
}

// Get accepts either a snowflake id or a slug. Unapproved tools are hidden.
func (s *Service) Get(ctx context.Context, idOrSlug string) (*domain.Tool, error) {
	key := strings.TrimSpace(idOrSlug)
	if key == "" {
		return nil, domain.ErrInvalidID
	}

	var (
		tool *domain.Tool
		err  error
	)
	if id, parseErr := snowflake.ParseString(key); parseErr == nil {
		tool, err = s.repo.FindByID(ctx, id)
	} else {
		err = domain.ErrNotFound
	}
	if errors.Is(err, domain.ErrNotFound) {
		tool, err = s.repo.FindBySlug(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	if !tool.IsApproved {
		return nil, domain.ErrNotFound
	}
	return tool, nil
}

func (s *Service) Search(ctx context.Context, query string, limit int) ([]*domain.Tool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if limit <= 0 || limit > pagination.MaxPageSize {
		limit = pagination.DefaultPageSize
	}
	return s.repo.Search(ctx, query, limit)
}

func (s *Service) Categories(ctx context.Context) ([]domain.Category, error) {
	if cached, ok := s.categories.Get(categoriesKey); ok {
		return cached, nil
	}
	items, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, err
	}
	s.categories.Set(categoriesKey, items, categoriesTTL)
	return items, nil
}

func (s *Service) RecordView(ctx context.Context, id snowflake.ID) error {
	return s.repo.IncrementViews(ctx, id)
}

func (s *Service) Submit(ctx context.Context, submittedBy *snowflake.ID, req domain.SubmitRequest) (*domain.Tool, error) {
	tool, err := s.buildTool(req)
	if err != nil {
		return nil, err
	}
	tool.SubmittedBy = submittedBy

	tool.Slug, err = s.uniqueSlug(ctx, tool.Name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, tool); err != nil {
		return nil, err
	}
	s.log.Info("tool submitted", zap.String("tool_id", tool.ID.String()), zap.String("slug", tool.Slug))
	return tool, nil
}

func (s *Service) buildTool(req domain.SubmitRequest) (*domain.Tool, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || slug.Make(name) == "" {
		return nil, domain.ErrInvalidName
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, domain.ErrInvalidCategory
	}
	website, err := normalizeURL(req.WebsiteURL)
	if err != nil {
		return nil, err
	}
	logo, err := normalizeURL(req.LogoURL)
	if err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(req.Tags))
	for _, tag := range req.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	now := s.clock.Now()
	return &domain.Tool{
		ID:          s.genID.Generate(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Category:    category,
		LogoURL:     logo,
		WebsiteURL:  website,
		Pricing:     strings.TrimSpace(req.Pricing),
		Tags:        datatypes.NewJSONSlice(tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", domain.ErrInvalidURL
	}
	return u.String(), nil
}

func (s *Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := slug.Make(name)
	candidate := base
	for i := 2; i <= maxSlugTries+1; i++ {
		exists, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return base + "-" + strings.ToLower(s.genID.Generate().Base36()), nil
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID) (*domain.Tool, error) {
	if err := s.repo.Approve(ctx, id, s.clock.Now()); err != nil {
		return nil, err
	}
	tool, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.categories.Purge()
	s.emit(ctx, realtime.ChangeUpdate, tool)
	return tool, nil
}

func (s *Service) ListPending(ctx context.Context, page pagination.Pagination) (*domain.ListResponse, error) {
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, err
	}
	limit := page.Limit()
	opts := []option.QueryOption{
		option.WithWhere("is_approved = ?", false),
		option.WithOrder("created_at DESC, id DESC"),
		option.WithLimit(limit + 1),
	}
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		opts = append(opts, option.WithWhere("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id.Int64()))
	}

	items, err := s.store.Find(ctx, &domain.Tool{}, opts...)
	if err != nil {
		return nil, err
	}
	items, info, err := pagination.BuildCursorPageInfo(items, limit, newestCursor)
	if err != nil {
		return nil, err
	}
	return &domain.ListResponse{Tools: items, PageInfo: info}, nil
}

func (s *Service) Seed(ctx context.Context, tools []*domain.Tool) (int, error) {
	inserted := 0
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		if tool.Slug == "" {
			tool.Slug = slug.Make(tool.Name)
		}
		exists, err := s.repo.SlugExists(ctx, tool.Slug)
		if err != nil {
			return inserted, err
		}
		if exists {
			continue
		}
		now := s.clock.Now()
		if tool.ID == 0 {
			tool.ID = s.genID.Generate()
		}
		if tool.CreatedAt.IsZero() {
			tool.CreatedAt = now
		}
		tool.UpdatedAt = now
		if err := s.repo.Create(ctx, tool); err != nil {
			return inserted, fmt.Errorf("seed %s: %w", tool.Slug, err)
		}
		inserted++
		if tool.IsApproved {
			s.emit(ctx, realtime.ChangeInsert, tool)
		}
	}
	s.categories.Purge()
	return inserted, nil
}

func (s *Service) emit(ctx context.Context, changeType string, tool *domain.Tool) {
	if s.emitter == nil {
		return
	}
	change, err := realtime.NewRecordChange(realtime.TableTools, changeType, tool)
	if err == nil {
		err = s.emitter.Emit(ctx, change)
	}
	if err != nil {
		s.log.Warn("emit tool change failed", zap.String("tool_id", tool.ID.String()), zap.Error(err))
	}
}
