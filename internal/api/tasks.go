package api

import (
	"net/http"

	"tasknotes/internal/ledger"
	"tasknotes/internal/model"

	"github.com/gin-gonic/gin"
)

const tasksRedirect = "/tasks"

// taskForm 对应任务表单。is_completed 在表单中按复选框语义处理：出现即为 true。
type taskForm struct {
	Title       string   `form:"title" json:"title"`
	DueDate     string   `form:"due_date" json:"due_date"`
	Priority    string   `form:"priority" json:"priority"`
	IsCompleted checkbox `form:"-" json:"is_completed"`
}

type completionRequest struct {
	IsCompleted checkbox `json:"is_completed"`
}

type dashboardResponse struct {
	User *model.User `json:"user"`
	*ledger.Dashboard
}

func (s *Server) bindTaskForm(c *gin.Context) (ledger.TaskInput, bool) {
	var form taskForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "redirect": tasksRedirect})
		return ledger.TaskInput{}, false
	}
	completed := bool(form.IsCompleted)
	if !isJSON(c) {
		_, completed = c.GetPostForm("is_completed")
	}
	return ledger.TaskInput{
		Title:     form.Title,
		DueDate:   form.DueDate,
		Priority:  form.Priority,
		Completed: completed,
	}, true
}

// handleDashboard 返回仪表盘汇总。
//
// GET /dashboard
func (s *Server) handleDashboard(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	user, err := s.accounts.Get(c.Request.Context(), owner)
	if err != nil {
		s.fail(c, "load user", err, "")
		return
	}
	d, err := s.tasks.Dashboard(c.Request.Context(), owner)
	if err != nil {
		s.fail(c, "dashboard", err, "")
		return
	}
	c.JSON(http.StatusOK, dashboardResponse{User: user, Dashboard: d})
}

// handleListTasks 返回任务列表。
//
// GET /tasks?sort=added_date_desc|added_date_asc|due_date_asc|due_date_desc
func (s *Server) handleListTasks(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	key := ledger.ParseSortKey(c.Query("sort"))
	tasks, err := s.tasks.ListTasks(c.Request.Context(), owner, key)
	if err != nil {
		s.fail(c, "list tasks", err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks":        tasks,
		"sort":         key,
		"current_date": s.tasks.Today(),
	})
}

// handleCreateTask 创建任务。
//
// POST /tasks
func (s *Server) handleCreateTask(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	in, ok := s.bindTaskForm(c)
	if !ok {
		return
	}
	task, err := s.tasks.CreateTask(c.Request.Context(), owner, in)
	recordMutation("task", "create", err)
	if err != nil {
		s.fail(c, "create task", err, tasksRedirect)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task, "redirect": tasksRedirect})
}

// handleUpdateTaskCompletion 切换任务完成状态（页面上的复选框通过 fetch 调用）。
//
// POST /update_task_completion/:id  body: {"is_completed": true}
func (s *Server) handleUpdateTaskCompletion(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "Task not found.")
	if !ok {
		return
	}
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	_, err := s.tasks.SetCompletion(c.Request.Context(), owner, id, bool(req.IsCompleted))
	recordMutation("task", "complete", err)
	if err != nil {
		s.failJSON(c, "update task completion", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleGetTask 读取待编辑的任务。
//
// GET /edit_task/:id
func (s *Server) handleGetTask(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "Task not found.")
	if !ok {
		return
	}
	task, err := s.tasks.GetTask(c.Request.Context(), owner, id)
	if err != nil {
		s.fail(c, "get task", err, tasksRedirect)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

// handleEditTask 覆盖任务字段。
//
// POST /edit_task/:id
func (s *Server) handleEditTask(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "Task not found.")
	if !ok {
		return
	}
	in, ok := s.bindTaskForm(c)
	if !ok {
		return
	}
	task, err := s.tasks.EditTask(c.Request.Context(), owner, id, in)
	recordMutation("task", "edit", err)
	if err != nil {
		s.fail(c, "edit task", err, tasksRedirect)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task, "redirect": tasksRedirect})
}

// handleDeleteTask 删除任务。
//
// POST /delete_task/:id
func (s *Server) handleDeleteTask(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "Task not found.")
	if !ok {
		return
	}
	err := s.tasks.DeleteTask(c.Request.Context(), owner, id)
	recordMutation("task", "delete", err)
	if err != nil {
		s.fail(c, "delete task", err, tasksRedirect)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id, "redirect": tasksRedirect})
}
