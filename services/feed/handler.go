package feed

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sponsorportal/pkg/auth"
	"sponsorportal/pkg/db/pagination"
	"sponsorportal/pkg/errutil"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type postView struct {
	*Post
	Tags []string `json:"tags"`
}

func render(rows []*Post) []postView {
	out := make([]postView, 0, len(rows))
	for _, p := range rows {
		out = append(out, postView{Post: p, Tags: p.TagList()})
	}
	return out
}

func (h *Handler) List(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(err)
		return
	}

	rows, info, err := h.service.List(c.Request.Context(), page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": render(rows), "page_info": info})
}

func (h *Handler) ListMine(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		c.Error(errutil.Unauthorized("authentication required", nil))
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(err)
		return
	}

	rows, info, err := h.service.ListByAuthor(c.Request.Context(), id.UserID, page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": render(rows), "page_info": info})
}

// Create accepts JSON or a multipart form with an optional "image" file.
func (h *Handler) Create(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)

	var req CreatePost
	if err := c.ShouldBind(&req); err != nil {
		c.Error(err)
		return
	}

	var image *multipart.FileHeader
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := c.FormFile("image")
		switch {
		case err == nil:
			image = file
		case !errors.Is(err, http.ErrMissingFile):
			c.Error(errutil.BadRequest("invalid image upload", err))
			return
		}
	}

	p, err := h.service.Create(c.Request.Context(), id, req, image)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, postView{Post: p, Tags: p.TagList()})
}

func (h *Handler) Delete(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)

	if err := h.service.Delete(c.Request.Context(), id, c.Param("id")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
