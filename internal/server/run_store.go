package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"telematrix/internal/domain"
)

// RunStatus представляет статус запуска пайплайна
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunKind различает виды запусков
type RunKind string

const (
	RunKindInvite RunKind = "invite"
	RunKindScrape RunKind = "scrape"
)

// Run представляет собой один запуск пайплайна
type Run struct {
	ID     string
	Kind   RunKind
	Phone  string
	ChatID int64
	Status RunStatus
	// Stats обновляется по ходу запуска и читается конкурентно для
	// отображения прогресса.
	Stats        domain.StatsSnapshot
	Users        []domain.ParsedUser
	ErrorMessage string
	CreatedAt    time.Time
	ExpiresAt    time.Time // Для автоматической очистки

	cancel context.CancelFunc
}

// RunStore управляет хранением запусков и их сигналами остановки
type RunStore struct {
	runs  map[string]*Run
	mutex sync.RWMutex
}

// NewRunStore создает новый экземпляр RunStore
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*Run),
	}
}

// CreateRun регистрирует новый запуск со статусом 'pending' и возвращает его
// идентификатор. cancel — сигнал остановки запуска.
func (rs *RunStore) CreateRun(kind RunKind, phone string, ttl time.Duration, cancel context.CancelFunc) string {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	now := time.Now()
	id := uuid.NewString()
	rs.runs[id] = &Run{
		ID:        id,
		Kind:      kind,
		Phone:     phone,
		Status:    RunStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		cancel:    cancel,
	}
	return id
}

// UpdateStatus обновляет статус запуска
func (rs *RunStore) UpdateStatus(runID string, status RunStatus) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	run, exists := rs.runs[runID]
	if !exists {
		return fmt.Errorf("запуск с ID %s не найден", runID)
	}

	run.Status = status
	return nil
}

// UpdateStats обновляет счётчики прогресса запуска
func (rs *RunStore) UpdateStats(runID string, stats domain.StatsSnapshot) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	run, exists := rs.runs[runID]
	if !exists {
		return fmt.Errorf("запуск с ID %s не найден", runID)
	}

	run.Stats = stats
	return nil
}

// CompleteInvite переводит запуск инвайта в 'completed' с итоговыми счётчиками
func (rs *RunStore) CompleteInvite(runID string, stats domain.StatsSnapshot) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	run, exists := rs.runs[runID]
	if !exists {
		return fmt.Errorf("запуск с ID %s не найден", runID)
	}

	run.Status = RunStatusCompleted
	run.Stats = stats
	return nil
}

// CompleteScrape переводит запуск парсинга в 'completed' с собранными участниками
func (rs *RunStore) CompleteScrape(runID string, users []domain.ParsedUser) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	run, exists := rs.runs[runID]
	if !exists {
		return fmt.Errorf("запуск с ID %s не найден", runID)
	}

	run.Status = RunStatusCompleted
	run.Users = users
	return nil
}

// Fail переводит запуск в 'failed' с сообщением об ошибке
func (rs *RunStore) Fail(runID string, errorMessage string) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	run, exists := rs.runs[runID]
	if !exists {
		return fmt.Errorf("запуск с ID %s не найден", runID)
	}

	run.Status = RunStatusFailed
	run.ErrorMessage = errorMessage
	return nil
}

// MarkCancelled фиксирует остановку с сохранением накопленного прогресса
func (rs *RunStore) MarkCancelled(runID string, stats domain.StatsSnapshot, users []domain.ParsedUser) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	run, exists := rs.runs[runID]
	if !exists {
		return fmt.Errorf("запуск с ID %s не найден", runID)
	}

	run.Status = RunStatusCancelled
	run.Stats = stats
	run.Users = users
	return nil
}

// Get извлекает копию запуска по его ID
func (rs *RunStore) Get(runID string) (*Run, error) {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()

	run, exists := rs.runs[runID]
	if !exists {
		return nil, fmt.Errorf("запуск с ID %s не найден", runID)
	}

	cp := *run
	return &cp, nil
}

// Cancel подаёт сигнал остановки запуску. Возвращает false, если запуска нет
// или он уже завершён. Статус выставит сам запуск, когда остановится.
func (rs *RunStore) Cancel(runID string) bool {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	run, exists := rs.runs[runID]
	if !exists || run.cancel == nil {
		return false
	}
	if run.Status != RunStatusPending && run.Status != RunStatusRunning {
		return false
	}

	run.cancel()
	return true
}

// CleanupExpired удаляет просроченные запуски из хранилища
func (rs *RunStore) CleanupExpired() {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	now := time.Now()
	for runID, run := range rs.runs {
		if now.After(run.ExpiresAt) {
			delete(rs.runs, runID)
		}
	}
}

// StartCleanupTicker запускает тикер для периодической очистки просроченных запусков
func (rs *RunStore) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rs.CleanupExpired()
			}
		}
	}()
}
