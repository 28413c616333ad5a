package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"sponsorportal/pkg/auth"
	"sponsorportal/pkg/db/option"
	"sponsorportal/pkg/db/pagination"
	"sponsorportal/pkg/errutil"
	"sponsorportal/pkg/logger"
	"sponsorportal/pkg/repository"
	"sponsorportal/services/media"
)

const imageFolder = "diary-images"

type Storage interface {
	Upload(ctx context.Context, userID, folder string, file *multipart.FileHeader) (*media.Object, error)
	Delete(ctx context.Context, key string) error
}

type Service struct {
	node    *snowflake.Node
	storage Storage

	post repository.Repository[Post]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Storage *media.Service `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		node: p.Node,
		post: repository.ProvideStore[Post](p.DB),
	}
	if p.Storage != nil {
		s.storage = p.Storage
	}
	return s
}

// List returns public posts, newest first.
func (s *Service) List(ctx context.Context, page pagination.Pagination) ([]*Post, *pagination.PageInfo, error) {
	return s.list(ctx, &Post{Public: true}, page)
}

// ListByAuthor returns every post of one author, public or not.
func (s *Service) ListByAuthor(ctx context.Context, authorID string, page pagination.Pagination) ([]*Post, *pagination.PageInfo, error) {
	return s.list(ctx, &Post{AuthorID: authorID}, page)
}

func (s *Service) list(ctx context.Context, query *Post, page pagination.Pagination) ([]*Post, *pagination.PageInfo, error) {
	opts, err := page.Options()
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err)
	}

	rows, err := s.post.Find(ctx, query, opts...)
	if err != nil {
		return nil, nil, errutil.Internal("failed to list posts", err)
	}

	rows, info := pagination.BuildCursorPageInfo(rows, page.PageSize(), func(p *Post) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return rows, info, nil
}

func (s *Service) Create(ctx context.Context, author *auth.Identity, req CreatePost, image *multipart.FileHeader) (*Post, error) {
	log := logger.FromContext(ctx)

	p := s.newPost(author, req)

	if image != nil {
		if s.storage == nil {
			return nil, errutil.NotImplemented("image uploads are not configured", nil)
		}
		obj, err := s.storage.Upload(ctx, author.UserID, imageFolder, image)
		if err != nil {
			return nil, err
		}
		p.ImageKey = obj.Key
		p.ImageURL = obj.URL
	}

	if err := s.post.Create(ctx, p); err != nil {
		log.Error("failed to create post", zap.String("author_id", author.UserID), zap.Error(err))
		s.removeImage(ctx, p.ImageKey)
		return nil, errutil.Internal("failed to create post", err)
	}

	log.Info("post created", zap.String("post_id", p.ID), zap.String("slug", p.Slug))
	return p, nil
}

// Import stores text posts by author in one batch. Nothing is stored when any
// post has no title.
func (s *Service) Import(ctx context.Context, author *auth.Identity, reqs []CreatePost) ([]*Post, error) {
	posts := make([]*Post, 0, len(reqs))
	for i, req := range reqs {
		if strings.TrimSpace(req.Title) == "" {
			return nil, errutil.ValidationFailed("invalid post", nil, errutil.WithDetails(errutil.Detail{
				Field:   fmt.Sprintf("posts[%d].title", i),
				Message: "is required",
			}))
		}
		posts = append(posts, s.newPost(author, req))
	}

	if err := s.post.BatchCreate(ctx, posts); err != nil {
		logger.FromContext(ctx).Error("failed to import posts", zap.String("author_id", author.UserID), zap.Int("posts", len(posts)), zap.Error(err))
		return nil, errutil.Internal("failed to import posts", err)
	}
	return posts, nil
}

func (s *Service) newPost(author *auth.Identity, req CreatePost) *Post {
	id := s.node.Generate()
	tags, _ := json.Marshal(normalizeTags(req.Tags))

	p := &Post{
		ID:         id.String(),
		Slug:       makeSlug(req.Title, id),
		Title:      strings.TrimSpace(req.Title),
		Content:    req.Content,
		Location:   req.Location,
		AuthorName: req.AuthorName,
		AuthorID:   author.UserID,
		Public:     req.Public == nil || *req.Public,
		Tags:       datatypes.JSON(tags),
	}
	if p.AuthorName == "" {
		p.AuthorName = author.Email
	}
	return p
}

// Delete removes a post and its image. Only the author or an admin may delete.
func (s *Service) Delete(ctx context.Context, actor *auth.Identity, id string) error {
	p, err := s.post.FindOne(ctx, &Post{ID: id})
	if err != nil {
		return errutil.Internal("failed to load post", err)
	}
	if p == nil {
		return errutil.NotFound("post not found", nil)
	}
	if p.AuthorID != actor.UserID && actor.Role != auth.RoleAdmin {
		return errutil.Forbidden("only the author may delete this post", nil)
	}

	if err := s.post.Delete(ctx, p.ID); err != nil {
		return errutil.Internal("failed to delete post", err)
	}

	s.removeImage(ctx, p.ImageKey)
	return nil
}

// CountBetween counts posts created in [from, to).
func (s *Service) CountBetween(ctx context.Context, from, to time.Time) (int64, error) {
	return s.post.Count(ctx, nil, option.Between("created_at", from.UTC(), to.UTC()))
}

func (s *Service) removeImage(ctx context.Context, key string) {
	if key == "" || s.storage == nil {
		return
	}
	if err := s.storage.Delete(ctx, key); err != nil {
		logger.FromContext(ctx).Warn("failed to delete post image", zap.String("key", key), zap.Error(err))
	}
}

func makeSlug(title string, id snowflake.ID) string {
	base := slug.Make(title)
	if base == "" {
		return id.Base36()
	}
	if len(base) > 80 {
		base = strings.Trim(base[:80], "-")
	}
	return base + "-" + id.Base36()
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(t, "#")))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
