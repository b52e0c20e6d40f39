package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/knowtree-backend/internal/data/repos"
	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/http/response"
	"github.com/yungbote/knowtree-backend/internal/modules/knowledge/ingest"
	"github.com/yungbote/knowtree-backend/internal/modules/knowledge/parser"
	"github.com/yungbote/knowtree-backend/internal/modules/knowledge/retrieval"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/ctxutil"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/platform/vectorstore"
)

// Ingestor is satisfied by *ingest.Service.
type Ingestor interface {
	Upload(ctx context.Context, req ingest.UploadRequest) (*types.KbDocument, error)
	RemoveDocument(ctx context.Context, kbID, documentID uuid.UUID) error
	RemoveKnowledgeBase(ctx context.Context, kbID uuid.UUID) error
	ReindexAllChunks(ctx context.Context) (ingest.ReindexResult, error)
}

// Retriever is satisfied by *retrieval.Engine.
type Retriever interface {
	Retrieve(ctx context.Context, query string, kbIDs []uuid.UUID, topK int) []retrieval.Result
	Mode() string
}

type KnowledgeHandler struct {
	log       *logger.Logger
	ingest    Ingestor
	retriever Retriever
	kbs       repos.KnowledgeBaseRepo
	docs      repos.KbDocumentRepo
	uploadDir string
}

func NewKnowledgeHandler(log *logger.Logger, ing Ingestor, retriever Retriever, kbs repos.KnowledgeBaseRepo, docs repos.KbDocumentRepo, uploadDir string) *KnowledgeHandler {
	return &KnowledgeHandler{
		log:       log.With("handler", "KnowledgeHandler"),
		ingest:    ing,
		retriever: retriever,
		kbs:       kbs,
		docs:      docs,
		uploadDir: uploadDir,
	}
}

type createKBRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

func (h *KnowledgeHandler) CreateKnowledgeBase(c *gin.Context) {
	var req createKBRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("name is required"))
		return
	}
	vis := strings.ToLower(strings.TrimSpace(req.Visibility))
	switch vis {
	case "":
		vis = types.VisibilityPrivate
	case types.VisibilityPrivate, types.VisibilityShared, types.VisibilityPublic:
	default:
		response.RespondError(c, http.StatusBadRequest, "invalid_visibility", fmt.Errorf("unknown visibility %q", req.Visibility))
		return
	}
	kb := &types.KnowledgeBase{
		OwnerID:     ctxutil.UserID(c.Request.Context()),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Visibility:  vis,
	}
	if err := h.kbs.Create(dbctx.New(c.Request.Context()), kb); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "create_kb_failed", err)
		return
	}
	c.JSON(http.StatusCreated, kb)
}

type retrieveRequest struct {
	Query            string      `json:"query"`
	KnowledgeBaseIDs []uuid.UUID `json:"knowledgeBaseIds"`
	TopK             int         `json:"topK"`
}

// Retrieve searches the requested knowledge bases the caller can read. With
// no ids it searches all of them.
func (h *KnowledgeHandler) Retrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	accessible, err := h.kbs.AccessibleIDs(dbctx.New(c.Request.Context()), ctxutil.UserID(c.Request.Context()))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "load_kbs_failed", err)
		return
	}
	kbIDs := accessible
	if len(req.KnowledgeBaseIDs) > 0 {
		kbIDs = slices.DeleteFunc(slices.Clone(req.KnowledgeBaseIDs), func(id uuid.UUID) bool {
			return !slices.Contains(accessible, id)
		})
	}
	mode := h.retriever.Mode()
	results := h.retriever.Retrieve(c.Request.Context(), req.Query, kbIDs, req.TopK)
	if len(results) == 0 && (len(kbIDs) == 0 || strings.TrimSpace(req.Query) == "") {
		mode = retrieval.ModeEmpty
	}
	response.RespondOK(c, gin.H{"results": results, "mode": mode})
}

func (h *KnowledgeHandler) Reindex(c *gin.Context) {
	res, err := h.ingest.ReindexAllChunks(c.Request.Context())
	switch {
	case errors.Is(err, vectorstore.ErrNotReady):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  response.APIError{Message: err.Error(), Code: "vector_store_unavailable"},
			"result": res,
		})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  response.APIError{Message: err.Error(), Code: "reindex_failed"},
			"result": res,
		})
	default:
		response.RespondOK(c, res)
	}
}

func (h *KnowledgeHandler) ListDocuments(c *gin.Context) {
	kbID, ok := h.accessibleKB(c)
	if !ok {
		return
	}
	docs, err := h.docs.ListByKB(dbctx.New(c.Request.Context()), kbID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_documents_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs})
}

// Upload stores the multipart "file" field and queues it for processing.
func (h *KnowledgeHandler) Upload(c *gin.Context) {
	kbID, ok := h.accessibleKB(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	if fh.Size > parser.MaxFileSize {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", fmt.Errorf("file exceeds %d bytes", parser.MaxFileSize))
		return
	}
	if _, err := parser.DetectType(fh.Filename); err != nil {
		response.RespondError(c, http.StatusBadRequest, "unsupported_file_type", err)
		return
	}

	dst, err := h.save(fh.Filename, func() (io.ReadCloser, error) { return fh.Open() })
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "store_file_failed", err)
		return
	}
	doc, err := h.ingest.Upload(c.Request.Context(), ingest.UploadRequest{
		KbID:     kbID,
		FileName: fh.Filename,
		FilePath: dst,
		FileSize: fh.Size,
	})
	if err != nil {
		_ = os.Remove(dst)
		switch {
		case errors.Is(err, parser.ErrUnsupportedType):
			response.RespondError(c, http.StatusBadRequest, "unsupported_file_type", err)
		case errors.Is(err, ingest.ErrKnowledgeBaseNotFound):
			response.RespondError(c, http.StatusNotFound, "kb_not_found", err)
		default:
			response.RespondError(c, http.StatusInternalServerError, "upload_failed", err)
		}
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

func (h *KnowledgeHandler) save(name string, open func() (io.ReadCloser, error)) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", err
	}
	src, err := open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst := filepath.Join(h.uploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return "", err
	}
	return dst, out.Close()
}

func (h *KnowledgeHandler) DeleteDocument(c *gin.Context) {
	kbID, ok := h.accessibleKB(c)
	if !ok {
		return
	}
	docID, ok := uuidParam(c, "docId")
	if !ok {
		return
	}
	if err := h.ingest.RemoveDocument(c.Request.Context(), kbID, docID); err != nil {
		if errors.Is(err, ingest.ErrDocumentNotFound) {
			response.RespondError(c, http.StatusNotFound, "document_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "delete_document_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteKnowledgeBase is limited to the owner.
func (h *KnowledgeHandler) DeleteKnowledgeBase(c *gin.Context) {
	kbID, ok := uuidParam(c, "kbId")
	if !ok {
		return
	}
	kb, err := h.kbs.GetByID(dbctx.New(c.Request.Context()), kbID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "load_kb_failed", err)
		return
	}
	if kb == nil {
		response.RespondError(c, http.StatusNotFound, "kb_not_found", ingest.ErrKnowledgeBaseNotFound)
		return
	}
	if kb.OwnerID != ctxutil.UserID(c.Request.Context()) {
		response.RespondError(c, http.StatusForbidden, "forbidden", errors.New("only the owner can delete a knowledge base"))
		return
	}
	if err := h.ingest.RemoveKnowledgeBase(c.Request.Context(), kbID); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "delete_kb_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// accessibleKB resolves :kbId and checks the caller can reach it.
func (h *KnowledgeHandler) accessibleKB(c *gin.Context) (uuid.UUID, bool) {
	kbID, ok := uuidParam(c, "kbId")
	if !ok {
		return uuid.Nil, false
	}
	ids, err := h.kbs.AccessibleIDs(dbctx.New(c.Request.Context()), ctxutil.UserID(c.Request.Context()))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "load_kbs_failed", err)
		return uuid.Nil, false
	}
	if !slices.Contains(ids, kbID) {
		response.RespondError(c, http.StatusNotFound, "kb_not_found", ingest.ErrKnowledgeBaseNotFound)
		return uuid.Nil, false
	}
	return kbID, true
}
