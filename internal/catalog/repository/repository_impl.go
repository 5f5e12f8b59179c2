package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/toolhub/internal/catalog/domain"
	"github.com/smallbiznis/toolhub/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, tool *domain.Tool) error {
	return r.db.WithContext(ctx).Create(tool).Error
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Tool, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repo) FindBySlug(ctx context.Context, slug string) (*domain.Tool, error) {
	return r.first(ctx, "slug = ?", strings.ToLower(strings.TrimSpace(slug)))
}

func (r *repo) first(ctx context.Context, query string, args ...any) (*domain.Tool, error) {
	var tool domain.Tool
	err := r.db.WithContext(ctx).Where(query, args...).First(&tool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tool, nil
}

func (r *repo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Tool{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *repo) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Tool, error) {
	stmt := r.db.WithContext(ctx).Model(&domain.Tool{})

	approved := true
	if filter.Approved != nil {
		approved = *filter.Approved
	}
	stmt = stmt.Where("is_approved = ?", approved)

	if category := strings.TrimSpace(filter.Category); category != "" {
		stmt = stmt.Where("LOWER(category) = ?", strings.ToLower(category))
	}
	if filter.CreatedAfter != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedAfter)
	}

	switch filter.Kind {
	case domain.ListPopular, domain.ListTrending:
		if c := filter.Cursor; c != nil {
			stmt = stmt.Where("(views < ?) OR (views = ? AND id < ?)", c.Rank, c.Rank, cursorID(c))
		}
		stmt = stmt.Order("views DESC").Order("id DESC")
	case domain.ListFeatured:
		stmt = stmt.Where("is_featured = ?", true)
		stmt = newestFirst(stmt, filter)
	default:
		stmt = newestFirst(stmt, filter)
	}

	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var items []*domain.Tool
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func newestFirst(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if c := filter.Cursor; c != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
		if err == nil {
			stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, cursorID(c))
		}
	}
	return stmt.Order("created_at DESC").Order("id DESC")
}

func cursorID(c *pagination.Cursor) int64 {
	id, err := strconv.ParseInt(c.ID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// likeEscaper makes user terms match literally. '!' is the escape character
// because backslash literals differ between sqlite and mysql.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (r *repo) Search(ctx context.Context, query string, limit int) ([]*domain.Tool, error) {
	query = strings.TrimSpace(query)
	stmt := r.db.WithContext(ctx).Model(&domain.Tool{}).Where("is_approved = ?", true)

	if r.db.Dialector.Name() == "postgres" {
		stmt = stmt.
			Where("search_vector @@ websearch_to_tsquery('english', ?)", query).
			Order(gorm.Expr("ts_rank(search_vector, websearch_to_tsquery('english', ?)) DESC", query))
	} else {
		var clauses []string
		var args []any
		for _, term := range strings.Fields(strings.ToLower(query)) {
			like := "%" + likeEscaper.Replace(term) + "%"
			clauses = append(clauses, "(LOWER(name) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!' OR LOWER(category) LIKE ? ESCAPE '!')")
			args = append(args, like, like, like)
		}
		if len(clauses) > 0 {
			stmt = stmt.Where(strings.Join(clauses, " OR "), args...)
		}
	}
	stmt = stmt.Order("views DESC").Order("id DESC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	var items []*domain.Tool
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Categories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	err := r.db.WithContext(ctx).
		Model(&domain.Tool{}).
		Select("category AS name, COUNT(*) AS count").
		Where("is_approved = ?", true).
		Group("category").
		Order("count DESC").
		Order("name ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) IncrementViews(ctx context.Context, id snowflake.ID) error {
	tx := r.db.WithContext(ctx).
		Model(&domain.Tool{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1"))
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) Approve(ctx context.Context, id snowflake.ID, at time.Time) error {
	tx := r.db.WithContext(ctx).
		Model(&domain.Tool{}).
		Where("id = ? AND is_approved = ?", id, false).
		Updates(map[string]any{"is_approved": true, "updated_at": at})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrAlreadyApproved
	}
	return nil
}
