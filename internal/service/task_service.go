package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"wagerledger/internal/apperr"
	"wagerledger/internal/model"
	"wagerledger/pkg/idgen"

	"go.uber.org/zap"
)

// TaskService 运营待办
type TaskService struct {
	mu        sync.RWMutex
	tasks     []model.Task // 从新到旧
	directory *SessionService
	infra     Infra
	now       func() time.Time
}

func NewTaskService(directory *SessionService, infra Infra) *TaskService {
	return &TaskService{
		directory: directory,
		infra:     infra.withDefaults(),
		now:       time.Now,
	}
}

type AddTaskRequest struct {
	Title       string
	Description string
	Priority    string
}

func (s *TaskService) Restore(tasks []model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append([]model.Task(nil), tasks...)
}

func (s *TaskService) AddTask(ctx context.Context, operatorID string, req AddTaskRequest) (*model.Task, error) {
	if err := s.directory.RequireOperator(ctx, operatorID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if err := requireNonEmpty("标题", title); err != nil {
		return nil, err
	}
	priority := strings.ToUpper(strings.TrimSpace(req.Priority))
	if priority == "" {
		priority = model.TaskPriorityMedium
	}
	if !model.IsValidTaskPriority(priority) {
		return nil, apperr.Newf(apperr.KindValidation, "无效的优先级: %s", req.Priority)
	}

	task := model.Task{
		ID:          idgen.GenerateTaskNo(),
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Status:      model.TaskStatusPending,
		Priority:    priority,
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	s.tasks = append([]model.Task{task}, s.tasks...)
	s.mu.Unlock()

	s.infra.Persister.MarkDirty(model.RecordTasks)
	s.infra.Logger.Info("新增待办", zap.String("task_id", task.ID), zap.String("operator_id", operatorID))
	return &task, nil
}

func (s *TaskService) UpdateTaskStatus(ctx context.Context, operatorID, taskID, status string) (*model.Task, error) {
	if err := s.directory.RequireOperator(ctx, operatorID); err != nil {
		return nil, err
	}
	if !model.IsValidTaskStatus(status) {
		return nil, apperr.Newf(apperr.KindValidation, "无效的待办状态: %s", status)
	}

	s.mu.Lock()
	i := s.indexLocked(taskID)
	if i < 0 {
		s.mu.Unlock()
		return nil, apperr.Newf(apperr.KindNotFound, "待办不存在: %s", taskID)
	}
	s.tasks[i].Status = status
	out := s.tasks[i]
	s.mu.Unlock()

	s.infra.Persister.MarkDirty(model.RecordTasks)
	return &out, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, operatorID, taskID string) error {
	if err := s.directory.RequireOperator(ctx, operatorID); err != nil {
		return err
	}

	s.mu.Lock()
	i := s.indexLocked(taskID)
	if i < 0 {
		s.mu.Unlock()
		return apperr.Newf(apperr.KindNotFound, "待办不存在: %s", taskID)
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	s.mu.Unlock()

	s.infra.Persister.MarkDirty(model.RecordTasks)
	s.infra.Logger.Info("删除待办", zap.String("task_id", taskID), zap.String("operator_id", operatorID))
	return nil
}

func (s *TaskService) ListTasks(ctx context.Context, operatorID string) ([]model.Task, error) {
	if err := s.directory.RequireOperator(ctx, operatorID); err != nil {
		return nil, err
	}
	return s.AllTasks(), nil
}

func (s *TaskService) AllTasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Task(nil), s.tasks...)
}

func (s *TaskService) indexLocked(taskID string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}
