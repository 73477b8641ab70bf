package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasknotes/internal/apperr"
	"tasknotes/internal/model"

	"gorm.io/gorm"
)

const (
	msgNoteEmpty     = "Note title and content cannot be empty."
	msgNoteNotFound  = "Note not found."
	msgNoteTitleLong = "Note title must be at most 100 characters."
)

// NoteOrder selects the order of ListNotes.
type NoteOrder int

const (
	NewestFirst NoteOrder = iota
	OldestFirst
)

// NoteInput holds the note form.
type NoteInput struct {
	Title   string
	Content string
}

// Notes 是笔记账本。
type Notes struct {
	db  *gorm.DB
	now Clock
}

func NewNotes(db *gorm.DB) *Notes {
	return &Notes{db: db, now: time.Now}
}

// CreateNote 创建笔记，标题或内容为空时返回 ValidationError 且不写库。
func (n *Notes) CreateNote(ctx context.Context, owner uint, in NoteInput) (*model.Note, error) {
	title, content, err := validateNote(in)
	if err != nil {
		return nil, err
	}
	now := n.now().UTC()
	note := model.Note{
		UserID:    owner,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := n.db.WithContext(ctx).Create(&note).Error; err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	return &note, nil
}

// ListNotes 返回 owner 的全部笔记。
func (n *Notes) ListNotes(ctx context.Context, owner uint, order NoteOrder) ([]model.Note, error) {
	return listNotes(n.db.WithContext(ctx), owner, order)
}

// GetNote 读取待编辑的笔记。
func (n *Notes) GetNote(ctx context.Context, owner, id uint) (*model.Note, error) {
	return loadOwnedNote(n.db.WithContext(ctx), owner, id, "edit")
}

// EditNote 更新标题与内容。编辑后为空则拒绝，原记录保持不变。
func (n *Notes) EditNote(ctx context.Context, owner, id uint, in NoteInput) (*model.Note, error) {
	var note *model.Note
	err := n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		note, err = loadOwnedNote(tx, owner, id, "edit")
		if err != nil {
			return err
		}
		title, content, err := validateNote(in)
		if err != nil {
			return err
		}
		note.Title = title
		note.Content = content
		note.UpdatedAt = n.now().UTC()
		if err := tx.Save(note).Error; err != nil {
			return fmt.Errorf("save note: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// DeleteNote 删除笔记。不存在时返回 NotFoundError，与任务保持一致。
func (n *Notes) DeleteNote(ctx context.Context, owner, id uint) error {
	return n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := loadOwnedNote(tx, owner, id, "delete")
		if err != nil {
			return err
		}
		if err := tx.Delete(note).Error; err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		return nil
	})
}

func listNotes(db *gorm.DB, owner uint, order NoteOrder) ([]model.Note, error) {
	q := db.Where("user_id = ?", owner)
	if order == OldestFirst {
		q = q.Order("created_at ASC").Order("id ASC")
	} else {
		q = q.Order("created_at DESC").Order("id DESC")
	}
	notes := []model.Note{}
	if err := q.Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

func loadOwnedNote(tx *gorm.DB, owner, id uint, verb string) (*model.Note, error) {
	var note model.Note
	err := tx.First(&note, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(msgNoteNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load note %d: %w", id, err)
	}
	if note.UserID != owner {
		return nil, apperr.Forbidden(fmt.Sprintf("You are not authorized to %s this note.", verb))
	}
	return &note, nil
}

func validateNote(in NoteInput) (string, string, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" || content == "" {
		return "", "", apperr.Validation(msgNoteEmpty)
	}
	if tooLong(title, maxTitleLen) {
		return "", "", apperr.Validation(msgNoteTitleLong)
	}
	return title, in.Content, nil
}
