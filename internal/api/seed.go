package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tasknotes/internal/ledger"
	"tasknotes/internal/model"

	"gorm.io/gorm"
)

const (
	demoUsername = "demo"
	demoEmail    = "demo@tasknotes.local"
	demoPassword = "demo-password"
)

// SeedDemoData 初始化演示账户及示例任务、笔记。账户已存在时不做任何事。
func (s *Server) SeedDemoData(ctx context.Context) error {
	var existing model.User
	err := s.db.WithContext(ctx).Where("email = ?", demoEmail).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("query demo user: %w", err)
	}

	accounts := ledger.NewAccounts(s.db, s.cfg.Security.BcryptCost)
	user, err := accounts.Register(ctx, ledger.RegisterInput{
		Username:        demoUsername,
		Email:           demoEmail,
		Password:        demoPassword,
		ConfirmPassword: demoPassword,
	})
	if err != nil {
		return fmt.Errorf("create demo user: %w", err)
	}

	today := s.tasks.Today().Time()
	samples := []ledger.TaskInput{
		{Title: "Review pull requests", DueDate: model.DateOf(today).String(), Priority: "High"},
		{Title: "Plan next sprint", DueDate: model.DateOf(today.AddDate(0, 0, 3)).String()},
		{Title: "Read a chapter", Priority: "Low"},
	}
	for _, in := range samples {
		if _, err := s.tasks.CreateTask(ctx, user.ID, in); err != nil {
			return fmt.Errorf("create demo task: %w", err)
		}
	}
	if _, err := s.notes.CreateNote(ctx, user.ID, ledger.NoteInput{
		Title:   "Welcome",
		Content: "This is a demo note. Try the summarize button on a longer one.",
	}); err != nil {
		return fmt.Errorf("create demo note: %w", err)
	}

	s.logger.Info("demo data seeded", slog.String("email", demoEmail))
	return nil
}
