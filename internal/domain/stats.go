package domain

import "sync/atomic"

// Stats — счётчики исходов одного запуска пайплайна. Счётчики обнуляются
// при создании и монотонно растут в течение запуска. Чтение безопасно из
// любой горутины: UI опрашивает прогресс, пока пайплайн работает.
type Stats struct {
	success atomic.Uint64
	errs    atomic.Uint64
	skipped atomic.Uint64
}

// NewStats создаёт обнулённые счётчики для нового запуска.
func NewStats() *Stats {
	return &Stats{}
}

// AddSuccess увеличивает счётчик успешных элементов.
func (s *Stats) AddSuccess() { s.success.Add(1) }

// AddError увеличивает счётчик элементов, завершившихся ошибкой.
func (s *Stats) AddError() { s.errs.Add(1) }

// AddSkipped увеличивает счётчик пропущенных элементов.
func (s *Stats) AddSkipped() { s.skipped.Add(1) }

// Snapshot возвращает согласованный на момент вызова срез счётчиков.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Success: s.success.Load(),
		Error:   s.errs.Load(),
		Skipped: s.skipped.Load(),
	}
}

// StatsSnapshot — значение счётчиков, пригодное для сериализации.
type StatsSnapshot struct {
	Success uint64 `json:"success"`
	Error   uint64 `json:"error"`
	Skipped uint64 `json:"skipped"`
}

// Total возвращает суммарное число обработанных элементов.
func (s StatsSnapshot) Total() uint64 {
	return s.Success + s.Error + s.Skipped
}
