package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tasknotes/internal/apperr"
	"tasknotes/internal/ledger"
	"tasknotes/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

const notesRedirect = "/notes"

type noteForm struct {
	Title   string `form:"title" json:"title"`
	Content string `form:"content" json:"content"`
}

type summarizeRequest struct {
	Content string `json:"content"`
}

func (s *Server) bindNoteForm(c *gin.Context, redirect string) (ledger.NoteInput, bool) {
	var form noteForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "redirect": redirect})
		return ledger.NoteInput{}, false
	}
	return ledger.NoteInput{Title: form.Title, Content: form.Content}, true
}

// handleListNotes 返回笔记列表（新的在前）。
//
// GET /notes
func (s *Server) handleListNotes(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	notes, err := s.notes.ListNotes(c.Request.Context(), owner, ledger.NewestFirst)
	if err != nil {
		s.fail(c, "list notes", err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": notes})
}

func (s *Server) handleNoteForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fields": []string{"title", "content"}})
}

// handleCreateNote 创建笔记。
//
// POST /add_note
func (s *Server) handleCreateNote(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	in, ok := s.bindNoteForm(c, "/add_note")
	if !ok {
		return
	}
	note, err := s.notes.CreateNote(c.Request.Context(), owner, in)
	recordMutation("note", "create", err)
	if err != nil {
		redirect := notesRedirect
		if errors.Is(err, apperr.ErrValidation) {
			redirect = "/add_note"
		}
		s.fail(c, "create note", err, redirect)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"note": note, "redirect": notesRedirect})
}

// GET /edit_note/:id
func (s *Server) handleGetNote(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "Note not found.")
	if !ok {
		return
	}
	note, err := s.notes.GetNote(c.Request.Context(), owner, id)
	if err != nil {
		s.fail(c, "get note", err, notesRedirect)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": note})
}

// POST /edit_note/:id
func (s *Server) handleEditNote(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "Note not found.")
	if !ok {
		return
	}
	in, ok := s.bindNoteForm(c, notesRedirect)
	if !ok {
		return
	}
	note, err := s.notes.EditNote(c.Request.Context(), owner, id, in)
	recordMutation("note", "edit", err)
	if err != nil {
		s.fail(c, "edit note", err, notesRedirect)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": note, "redirect": notesRedirect})
}

// GET, POST /delete_note/:id
func (s *Server) handleDeleteNote(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "Note not found.")
	if !ok {
		return
	}
	err := s.notes.DeleteNote(c.Request.Context(), owner, id)
	recordMutation("note", "delete", err)
	if err != nil {
		s.fail(c, "delete note", err, notesRedirect)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id, "redirect": notesRedirect})
}

// handleSummaryPage 返回摘要页所需的用户与笔记。
//
// GET /summery
func (s *Server) handleSummaryPage(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	user, err := s.accounts.Get(c.Request.Context(), owner)
	if err != nil {
		s.fail(c, "load user", err, "")
		return
	}
	notes, err := s.notes.ListNotes(c.Request.Context(), owner, ledger.NewestFirst)
	if err != nil {
		s.fail(c, "list notes", err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "notes": notes})
}

// handleSummarizeNote 调用大模型生成笔记摘要。
//
// 顺序：校验内容 → 限流 → 查缓存 → 调用接口 → 写缓存。缓存与限流的 Redis 故障
// 只记录日志，不影响摘要本身。
//
// POST /api/summarize_note  body: {"content": "..."}
func (s *Server) handleSummarizeNote(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	var req summarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body."})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No content provided for summarization."})
		return
	}
	ctx := c.Request.Context()

	if s.limiter != nil {
		allowed, wait, err := s.limiter.Allow(ctx, strconv.FormatUint(uint64(owner), 10))
		if err != nil {
			s.logger.Warn("summarize rate limit check failed", slog.String("error", err.Error()))
		} else if !allowed {
			metrics.SummarizeRequestsTotal.WithLabelValues("rate_limited").Inc()
			retry := int(math.Ceil(wait.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many summarization requests. Please try again later.", "retry_after": retry})
			return
		}
	}

	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, req.Content)
		if err != nil {
			s.logger.Warn("summary cache get failed", slog.String("error", err.Error()))
		} else if hit {
			metrics.SummarizeRequestsTotal.WithLabelValues("cached").Inc()
			c.JSON(http.StatusOK, gin.H{"summary": cached})
			return
		}
	}

	start := time.Now()
	summary, err := s.summary.Summarize(ctx, req.Content)
	if err != nil {
		metrics.SummarizeRequestsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("summarize note failed",
			slog.Uint64("user_id", uint64(owner)),
			slog.String("latency", time.Since(start).String()),
			slog.String("error", err.Error()),
		)
		c.JSON(s.statusFor("summarize note", err), gin.H{"error": messageFor(err)})
		return
	}
	metrics.SummarizeRequestsTotal.WithLabelValues("ok").Inc()

	if s.cache != nil {
		if err := s.cache.Set(ctx, req.Content, summary); err != nil {
			s.logger.Warn("summary cache set failed", slog.String("error", err.Error()))
		}
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
