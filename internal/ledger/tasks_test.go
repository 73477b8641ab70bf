package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tasknotes/internal/apperr"
	"tasknotes/internal/model"
)

func newTaskFixture(t *testing.T) (*Tasks, *Notes, *model.User, *model.User) {
	t.Helper()
	db := newTestDB(t)
	a := newAccounts(db)
	alice := mustRegister(t, a, "alice", "alice@example.com")
	bob := mustRegister(t, a, "bob", "bob@example.com")
	tasks := NewTasks(db, time.UTC)
	tasks.now = fixedClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	notes := NewNotes(db)
	notes.now = fixedClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	return tasks, notes, alice, bob
}

func dueStrings(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		if task.DueDate == nil {
			out[i] = "null"
			continue
		}
		out[i] = task.DueDate.String()
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCreateTask(t *testing.T) {
	tasks, _, alice, _ := newTaskFixture(t)
	ctx := context.Background()

	task, err := tasks.CreateTask(ctx, alice.ID, TaskInput{Title: "  write report ", DueDate: "2024-05-10"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Title != "write report" || task.Priority != model.DefaultPriority || task.IsCompleted {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", task.CreatedAt.Location())
	}

	got, err := tasks.GetTask(ctx, alice.ID, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DueDate == nil || got.DueDate.String() != "2024-05-10" {
		t.Fatalf("expected due date 2024-05-10, got %v", got.DueDate)
	}

	noDue, err := tasks.CreateTask(ctx, alice.ID, TaskInput{Title: "someday", DueDate: "", Priority: "High"})
	if err != nil {
		t.Fatalf("create without due: %v", err)
	}
	got, _ = tasks.GetTask(ctx, alice.ID, noDue.ID)
	if got.DueDate != nil {
		t.Fatalf("expected no due date, got %v", got.DueDate)
	}
	if got.Priority != "High" {
		t.Fatalf("expected priority High, got %q", got.Priority)
	}
}

func TestCreateTask_Errors(t *testing.T) {
	tasks, _, alice, _ := newTaskFixture(t)
	ctx := context.Background()

	if _, err := tasks.CreateTask(ctx, alice.ID, TaskInput{Title: "   "}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := tasks.CreateTask(ctx, alice.ID, TaskInput{Title: "x", DueDate: "05/10/2024"}); !errors.Is(err, apperr.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	if _, err := tasks.CreateTask(ctx, alice.ID, TaskInput{Title: strings.Repeat("任", 101)}); apperr.Message(err, "") != msgTaskTitleLong {
		t.Fatalf("expected title length error, got %v", err)
	}
	if _, err := tasks.CreateTask(ctx, alice.ID, TaskInput{Title: "x", Priority: strings.Repeat("p", 21)}); apperr.Message(err, "") != msgTaskPrioLong {
		t.Fatalf("expected priority length error, got %v", err)
	}
	list, _ := tasks.ListTasks(ctx, alice.ID, SortAddedDesc)
	if len(list) != 0 {
		t.Fatalf("rejected creates must not persist, got %d", len(list))
	}

	if _, err := tasks.CreateTask(ctx, alice.ID, TaskInput{Title: strings.Repeat("任", 100), Priority: strings.Repeat("p", 20)}); err != nil {
		t.Fatalf("values at the column width must be accepted: %v", err)
	}
}

func TestListTasks_Sorting(t *testing.T) {
	tasks, _, alice, bob := newTaskFixture(t)
	ctx := context.Background()

	for _, due := range []string{"", "2024-01-01", "2024-03-01"} {
		if _, err := tasks.CreateTask(ctx, alice.ID, TaskInput{Title: "t" + due, DueDate: due}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := tasks.CreateTask(ctx, bob.ID, TaskInput{Title: "bob's", DueDate: "2023-12-31"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	cases := []struct {
		key  SortKey
		want []string
	}{
		{SortDueAsc, []string{"2024-01-01", "2024-03-01", "null"}},
		{SortDueDesc, []string{"null", "2024-03-01", "2024-01-01"}},
		{SortAddedAsc, []string{"null", "2024-01-01", "2024-03-01"}},
		{SortAddedDesc, []string{"2024-03-01", "2024-01-01", "null"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.key), func(t *testing.T) {
			list, err := tasks.ListTasks(ctx, alice.ID, tc.key)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if got := dueStrings(list); !equalStrings(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestParseSortKey(t *testing.T) {
	cases := map[string]SortKey{
		"":                SortAddedDesc,
		"added_date_desc": SortAddedDesc,
		"added_date_asc":  SortAddedAsc,
		"DUE_DATE_ASC":    SortDueAsc,
		"due_date_desc":   SortDueDesc,
		"priority":        SortAddedDesc,
	}
	for in, want := range cases {
		if got := ParseSortKey(in); got != want {
			t.Fatalf("ParseSortKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetCompletion_Ownership(t *testing.T) {
	tasks, _, alice, bob := newTaskFixture(t)
	ctx := context.Background()
	task, _ := tasks.CreateTask(ctx, alice.ID, TaskInput{Title: "mine"})

	if _, err := tasks.SetCompletion(ctx, bob.ID, task.ID, true); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	got, _ := tasks.GetTask(ctx, alice.ID, task.ID)
	if got.IsCompleted {
		t.Fatalf("forbidden call must not mutate")
	}

	if _, err := tasks.SetCompletion(ctx, bob.ID, task.ID+999, true); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing id must be not found even for non owner, got %v", err)
	}

	updated, err := tasks.SetCompletion(ctx, alice.ID, task.ID, true)
	if err != nil || !updated.IsCompleted {
		t.Fatalf("owner completion: %v %+v", err, updated)
	}
	got, _ = tasks.GetTask(ctx, alice.ID, task.ID)
	if !got.IsCompleted {
		t.Fatalf("expected persisted completion")
	}
}

func TestEditTask(t *testing.T) {
	tasks, _, alice, bob := newTaskFixture(t)
	ctx := context.Background()
	task, _ := tasks.CreateTask(ctx, alice.ID, TaskInput{Title: "draft", DueDate: "2024-05-10", Priority: "Low"})

	edited, err := tasks.EditTask(ctx, alice.ID, task.ID, TaskInput{Title: "final", DueDate: "", Priority: "", Completed: true})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Title != "final" || edited.DueDate != nil || edited.Priority != model.DefaultPriority || !edited.IsCompleted {
		t.Fatalf("unexpected edit result %+v", edited)
	}
	got, _ := tasks.GetTask(ctx, alice.ID, task.ID)
	if got.DueDate != nil {
		t.Fatalf("empty due date must clear the stored one")
	}
	if !got.CreatedAt.Equal(task.CreatedAt) {
		t.Fatalf("edit must not touch the creation timestamp")
	}

	_, err = tasks.EditTask(ctx, alice.ID, task.ID, TaskInput{Title: "changed", DueDate: "tomorrow"})
	if !errors.Is(err, apperr.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	got, _ = tasks.GetTask(ctx, alice.ID, task.ID)
	if got.Title != "final" {
		t.Fatalf("rejected edit must not apply any field, title=%q", got.Title)
	}

	if _, err := tasks.EditTask(ctx, bob.ID, task.ID, TaskInput{Title: "hijack"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := tasks.EditTask(ctx, alice.ID, task.ID+50, TaskInput{Title: "x"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := tasks.EditTask(ctx, alice.ID, task.ID, TaskInput{Title: ""}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := tasks.EditTask(ctx, alice.ID, task.ID, TaskInput{Title: strings.Repeat("x", 101)}); apperr.Message(err, "") != msgTaskTitleLong {
		t.Fatalf("expected title length error, got %v", err)
	}
	if _, err := tasks.EditTask(ctx, alice.ID, task.ID, TaskInput{Title: "ok", Priority: strings.Repeat("p", 21)}); apperr.Message(err, "") != msgTaskPrioLong {
		t.Fatalf("expected priority length error, got %v", err)
	}
	if got, _ := tasks.GetTask(ctx, alice.ID, task.ID); got.Title != "final" {
		t.Fatalf("rejected edit must not apply any field, title=%q", got.Title)
	}
}

func TestDeleteTask(t *testing.T) {
	tasks, _, alice, bob := newTaskFixture(t)
	ctx := context.Background()
	task, _ := tasks.CreateTask(ctx, alice.ID, TaskInput{Title: "bye"})

	if err := tasks.DeleteTask(ctx, bob.ID, task.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := tasks.GetTask(ctx, alice.ID, task.ID); err != nil {
		t.Fatalf("task must survive a forbidden delete: %v", err)
	}
	if err := tasks.DeleteTask(ctx, alice.ID, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := tasks.GetTask(ctx, alice.ID, task.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := tasks.DeleteTask(ctx, alice.ID, task.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("second delete must be not found, got %v", err)
	}
}

func TestDashboard(t *testing.T) {
	tasks, notes, alice, bob := newTaskFixture(t)
	ctx := context.Background()

	empty, err := tasks.Dashboard(ctx, alice.ID)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if empty.CompletionPercent != 0 || empty.TotalTasks != 0 {
		t.Fatalf("expected 0%% with no tasks, got %+v", empty)
	}

	// 今天是 2024-03-01
	inputs := []TaskInput{
		{Title: "past", DueDate: "2024-02-28"},
		{Title: "today", DueDate: "2024-03-01"},
		{Title: "later", DueDate: "2024-04-01"},
		{Title: "soon", DueDate: "2024-03-02"},
		{Title: "undated"},
	}
	var ids []uint
	for _, in := range inputs {
		task, err := tasks.CreateTask(ctx, alice.ID, in)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, task.ID)
	}
	if _, err := tasks.SetCompletion(ctx, alice.ID, ids[0], true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := tasks.SetCompletion(ctx, alice.ID, ids[1], true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := tasks.CreateTask(ctx, bob.ID, TaskInput{Title: "bob today", DueDate: "2024-03-01"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	first, _ := notes.CreateNote(ctx, alice.ID, NoteInput{Title: "first", Content: "a"})
	second, _ := notes.CreateNote(ctx, alice.ID, NoteInput{Title: "second", Content: "b"})

	d, err := tasks.Dashboard(ctx, alice.ID)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.Today.String() != "2024-03-01" {
		t.Fatalf("unexpected today %s", d.Today)
	}
	if got := dueStrings(d.TodayTasks); !equalStrings(got, []string{"2024-03-01"}) {
		t.Fatalf("unexpected today tasks %v", got)
	}
	if got := dueStrings(d.UpcomingTasks); !equalStrings(got, []string{"2024-03-02", "2024-04-01"}) {
		t.Fatalf("unexpected upcoming tasks %v", got)
	}
	if len(d.NotesOldestFirst) != 2 || d.NotesOldestFirst[0].ID != first.ID {
		t.Fatalf("unexpected oldest-first notes %+v", d.NotesOldestFirst)
	}
	if len(d.NotesNewestFirst) != 2 || d.NotesNewestFirst[0].ID != second.ID {
		t.Fatalf("unexpected newest-first notes %+v", d.NotesNewestFirst)
	}
	if d.TotalTasks != 5 || d.CompletedTasks != 2 || d.CompletionPercent != 40 {
		t.Fatalf("unexpected progress %d/%d = %d%%", d.CompletedTasks, d.TotalTasks, d.CompletionPercent)
	}
}

func TestDashboard_TodayFollowsLocation(t *testing.T) {
	tasks, _, alice, _ := newTaskFixture(t)
	tasks.loc = time.FixedZone("UTC+10", 10*3600)
	tasks.now = func() time.Time { return time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC) }

	if got := tasks.Today().String(); got != "2024-03-02" {
		t.Fatalf("expected local calendar date 2024-03-02, got %s", got)
	}
	if _, err := tasks.CreateTask(context.Background(), alice.ID, TaskInput{Title: "x", DueDate: "2024-03-02"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	d, err := tasks.Dashboard(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(d.TodayTasks) != 1 {
		t.Fatalf("expected one task due today, got %d", len(d.TodayTasks))
	}
}

func TestCompletionPercent(t *testing.T) {
	cases := []struct {
		completed, total int64
		want             int
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{1, 8, 13},
		{3, 3, 100},
	}
	for _, tc := range cases {
		if got := CompletionPercent(tc.completed, tc.total); got != tc.want {
			t.Fatalf("CompletionPercent(%d, %d) = %d, want %d", tc.completed, tc.total, got, tc.want)
		}
	}
}
