package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"tasknotes/internal/apperr"
	"tasknotes/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	msgTaskTitleEmpty = "Task title cannot be empty."
	msgTaskBadDate    = "Invalid date format for due date. Please use YYYY-MM-DD."
	msgTaskNotFound   = "Task not found."
	msgTaskTitleLong  = "Task title must be at most 100 characters."
	msgTaskPrioLong   = "Task priority must be at most 20 characters."
)

// SortKey selects the order of ListTasks.
type SortKey string

const (
	SortAddedDesc SortKey = "added_date_desc"
	SortAddedAsc  SortKey = "added_date_asc"
	SortDueAsc    SortKey = "due_date_asc"  // 无截止日期的排在最后
	SortDueDesc   SortKey = "due_date_desc" // 无截止日期的排在最前
)

// ParseSortKey maps the ?sort= query value to a SortKey. Unknown values fall
// back to SortAddedDesc.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortAddedAsc, SortDueAsc, SortDueDesc:
		return k
	default:
		return SortAddedDesc
	}
}

// TaskInput holds the task form. DueDate is the raw YYYY-MM-DD string; empty
// means no due date. Completed is only read by EditTask.
type TaskInput struct {
	Title     string
	DueDate   string
	Priority  string
	Completed bool
}

// Dashboard aggregates a user's tasks and notes.
type Dashboard struct {
	Today             model.Date   `json:"today"`
	TodayTasks        []model.Task `json:"todays_tasks"`
	UpcomingTasks     []model.Task `json:"upcoming_tasks"`
	NotesOldestFirst  []model.Note `json:"upcoming_notes"`
	NotesNewestFirst  []model.Note `json:"notes"`
	TotalTasks        int64        `json:"total_tasks"`
	CompletedTasks    int64        `json:"completed_tasks"`
	CompletionPercent int          `json:"progress"`
}

// Tasks 是任务账本。
type Tasks struct {
	db  *gorm.DB
	now Clock
	loc *time.Location
}

// NewTasks 创建任务账本。loc 用于计算仪表盘的“今天”，为 nil 时使用 UTC。
func NewTasks(db *gorm.DB, loc *time.Location) *Tasks {
	if loc == nil {
		loc = time.UTC
	}
	return &Tasks{db: db, now: time.Now, loc: loc}
}

// Today returns the current calendar date in the ledger's location.
func (t *Tasks) Today() model.Date {
	return model.DateOf(t.now().In(t.loc))
}

// CreateTask 创建任务。
//
// 参数:
//
//	owner: 调用者账户 ID
//	in: 表单字段；DueDate 为空表示无截止日期，Priority 为空时使用 "Normal"
//
// 返回值:
//
//	*model.Task: 已持久化的任务
//	error: 标题为空返回 ValidationError，日期无法解析返回 FormatError
func (t *Tasks) CreateTask(ctx context.Context, owner uint, in TaskInput) (*model.Task, error) {
	title, priority, due, err := validateTask(in)
	if err != nil {
		return nil, err
	}

	task := model.Task{
		UserID:      owner,
		Title:       title,
		DueDate:     due,
		Priority:    priority,
		IsCompleted: false,
		CreatedAt:   t.now().UTC(),
	}
	if err := t.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &task, nil
}

// ListTasks 返回 owner 的全部任务，按 key 排序。
func (t *Tasks) ListTasks(ctx context.Context, owner uint, key SortKey) ([]model.Task, error) {
	q := t.db.WithContext(ctx).Where("user_id = ?", owner)
	switch key {
	case SortAddedAsc:
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}}).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	case SortDueAsc:
		q = q.Order("due_date IS NULL").Order("due_date ASC").Order("id ASC")
	case SortDueDesc:
		q = q.Order("due_date IS NOT NULL").Order("due_date DESC").Order("id DESC")
	default:
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true})
	}

	tasks := []model.Task{}
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// GetTask 读取待编辑的任务。
func (t *Tasks) GetTask(ctx context.Context, owner, id uint) (*model.Task, error) {
	return loadOwnedTask(t.db.WithContext(ctx), owner, id, "edit")
}

// SetCompletion 设置任务完成状态。先确认任务存在，再确认归属。
func (t *Tasks) SetCompletion(ctx context.Context, owner, id uint, completed bool) (*model.Task, error) {
	var task *model.Task
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = loadOwnedTask(tx, owner, id, "update")
		if err != nil {
			return err
		}
		if err := tx.Model(task).Update("is_completed", completed).Error; err != nil {
			return fmt.Errorf("update task completion: %w", err)
		}
		task.IsCompleted = completed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// EditTask 覆盖任务的可编辑字段。
//
// DueDate 为空会清除截止日期；无法解析时整个编辑被拒绝，不写入任何字段。
func (t *Tasks) EditTask(ctx context.Context, owner, id uint, in TaskInput) (*model.Task, error) {
	var task *model.Task
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = loadOwnedTask(tx, owner, id, "edit")
		if err != nil {
			return err
		}

		title, priority, due, err := validateTask(in)
		if err != nil {
			return err
		}

		task.Title = title
		task.DueDate = due
		task.Priority = priority
		task.IsCompleted = in.Completed
		if err := tx.Save(task).Error; err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask 删除任务（不可恢复）。
func (t *Tasks) DeleteTask(ctx context.Context, owner, id uint) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadOwnedTask(tx, owner, id, "delete")
		if err != nil {
			return err
		}
		if err := tx.Delete(task).Error; err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

// Dashboard 汇总今天与之后到期的任务、两种顺序的笔记以及完成进度。
func (t *Tasks) Dashboard(ctx context.Context, owner uint) (*Dashboard, error) {
	db := t.db.WithContext(ctx)
	today := t.Today()

	d := &Dashboard{Today: today, TodayTasks: []model.Task{}, UpcomingTasks: []model.Task{}}
	if err := db.Where("user_id = ? AND due_date = ?", owner, today).
		Order("due_date ASC").Order("id ASC").
		Find(&d.TodayTasks).Error; err != nil {
		return nil, fmt.Errorf("query today tasks: %w", err)
	}
	if err := db.Where("user_id = ? AND due_date > ?", owner, today).
		Order("due_date ASC").Order("id ASC").
		Find(&d.UpcomingTasks).Error; err != nil {
		return nil, fmt.Errorf("query upcoming tasks: %w", err)
	}

	var err error
	if d.NotesOldestFirst, err = listNotes(db, owner, OldestFirst); err != nil {
		return nil, err
	}
	if d.NotesNewestFirst, err = listNotes(db, owner, NewestFirst); err != nil {
		return nil, err
	}

	if err := db.Model(&model.Task{}).Where("user_id = ?", owner).Count(&d.TotalTasks).Error; err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	if err := db.Model(&model.Task{}).Where("user_id = ? AND is_completed = ?", owner, true).Count(&d.CompletedTasks).Error; err != nil {
		return nil, fmt.Errorf("count completed tasks: %w", err)
	}
	d.CompletionPercent = CompletionPercent(d.CompletedTasks, d.TotalTasks)
	return d, nil
}

// CompletionPercent returns round(100*completed/total), or 0 when total is 0.
func CompletionPercent(completed, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) * 100 / float64(total)))
}

func loadOwnedTask(tx *gorm.DB, owner, id uint, verb string) (*model.Task, error) {
	var task model.Task
	err := tx.First(&task, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(msgTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load task %d: %w", id, err)
	}
	if task.UserID != owner {
		return nil, apperr.Forbidden(fmt.Sprintf("You are not authorized to %s this task.", verb))
	}
	return &task, nil
}

// validateTask 依次校验标题、截止日期与优先级，返回规范化后的字段。
func validateTask(in TaskInput) (string, string, *model.Date, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return "", "", nil, apperr.Validation(msgTaskTitleEmpty)
	}
	if tooLong(title, maxTitleLen) {
		return "", "", nil, apperr.Validation(msgTaskTitleLong)
	}
	due, err := parseDueDate(in.DueDate)
	if err != nil {
		return "", "", nil, err
	}
	priority := priorityOrDefault(in.Priority)
	if tooLong(priority, maxPriorityLen) {
		return "", "", nil, apperr.Validation(msgTaskPrioLong)
	}
	return title, priority, due, nil
}

func parseDueDate(s string) (*model.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, apperr.Format(msgTaskBadDate)
	}
	return &d, nil
}

func priorityOrDefault(p string) string {
	if p = strings.TrimSpace(p); p != "" {
		return p
	}
	return model.DefaultPriority
}
