package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/preplay-ai/preplay/internal/knowledge"
)

// UploadDocument registers a document with the remote knowledge base.
// POST /v1/documents (multipart field "file")
func (h *Handler) UploadDocument(c echo.Context) error {
	ctx := c.Request().Context()

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file field is required"})
	}

	src, err := fh.Open()
	if err != nil {
		log.Printf("ERROR: failed to open uploaded file %s: %v", fh.Filename, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	defer src.Close()

	kf, err := h.svc.Knowledge().Upload(ctx, fh.Filename, fh.Size, src)
	if err != nil {
		log.Printf("ERROR: failed to upload document %s: %v", fh.Filename, err)
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, kf)
}

// ListDocuments lists knowledge documents; the remote service is the
// authority.
// GET /v1/documents
func (h *Handler) ListDocuments(c echo.Context) error {
	ctx := c.Request().Context()

	files, err := h.svc.Knowledge().List(ctx)
	if err != nil {
		log.Printf("ERROR: failed to list documents: %v", err)
		return errorJSON(c, err)
	}
	if files == nil {
		files = []knowledge.RemoteFile{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"documents": files})
}

// DeleteDocument removes a document remotely, then locally.
// DELETE /v1/documents/:file_id
func (h *Handler) DeleteDocument(c echo.Context) error {
	ctx := c.Request().Context()
	fileID := c.Param("file_id")

	if err := h.svc.Knowledge().Delete(ctx, fileID); err != nil {
		log.Printf("ERROR: failed to delete document %s: %v", fileID, err)
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// DeleteAllDocuments removes every document, remotely first.
// DELETE /v1/documents
func (h *Handler) DeleteAllDocuments(c echo.Context) error {
	ctx := c.Request().Context()

	n, err := h.svc.Knowledge().DeleteAll(ctx)
	if err != nil {
		log.Printf("ERROR: failed to delete all documents: %v", err)
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "deleted": n})
}
