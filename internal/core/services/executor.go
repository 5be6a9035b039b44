package services

import (
	"context"
	"log/slog"
	"time"
)

// executor выполняет один протокольный вызов с единой политикой обработки
// флуд-контроля: при требовании подождать он засыпает ровно на указанное
// сервером время и повторяет вызов ровно один раз. Повторное требование или
// любая другая ошибка повтора отдаются вызывающей стороне — бесконечных
// циклов ожидания здесь нет. Одна и та же политика используется
// авторизацией, инвайтами и парсингом.
type executor struct {
	log *slog.Logger
	// sleep подменяется в тестах, чтобы не ждать реальные секунды.
	sleep func(ctx context.Context, d time.Duration) error
}

func newExecutor(log *slog.Logger) *executor {
	return &executor{log: log, sleep: sleepCtx}
}

// Do выполняет вызов и классифицирует его исход. Ожидание флуд-контроля
// прерывается отменой контекста.
func (e *executor) Do(ctx context.Context, op string, call func(ctx context.Context) error) callResult {
	res := classify(call(ctx))
	if res.outcome != outcomeThrottled {
		return res
	}

	e.log.WarnContext(ctx, "Flood wait received, sleeping before retry",
		"operation", op,
		"wait", res.wait,
	)
	if err := e.sleep(ctx, res.wait); err != nil {
		return callResult{outcome: outcomeFail, code: "FLOOD_WAIT", wait: res.wait, err: err}
	}

	res = classify(call(ctx))
	if res.outcome == outcomeThrottled {
		// Второе требование подождать на том же вызове — неуспех вызова.
		e.log.WarnContext(ctx, "Flood wait received again, giving up",
			"operation", op,
			"wait", res.wait,
		)
		return callResult{outcome: outcomeFail, code: "FLOOD_WAIT", wait: res.wait, err: res.err}
	}
	return res
}

// sleepCtx приостанавливает выполнение на d с возможностью отмены. Пауза в
// несколько минут должна прерываться сигналом остановки сразу, а не по
// истечении всего срока.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
