package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gotd/td/tgerr"
)

// callOutcome — вердикт по одному протокольному вызову.
type callOutcome int

const (
	outcomeSuccess callOutcome = iota
	// outcomeThrottled — сервер потребовал подождать; ожидание и повтор
	// выполняет executor, наружу этот вердикт не выходит.
	outcomeThrottled
	// outcomeSkip — элемент невозможно обработать, но запуск продолжается.
	outcomeSkip
	// outcomeFail — ошибка элемента; запуск продолжается, элемент учитывается
	// как error.
	outcomeFail
)

// callResult — классифицированный результат протокольного вызова. Единая
// классификация потребляется циклами инвайта и парсинга одинаково, поэтому
// ветвления по кодам ошибок не расползаются по вызывающему коду.
type callResult struct {
	outcome callOutcome
	// wait — требуемая сервером пауза при outcomeThrottled.
	wait time.Duration
	// code — тип ошибки RPC (например "USER_PRIVACY_RESTRICTED"), если вызов
	// завершился ошибкой протокола.
	code string
	err  error
}

// Коды, при которых элемент пропускается без эскалации.
var skipCodes = []string{
	"USER_PRIVACY_RESTRICTED",
	"USER_ALREADY_PARTICIPANT",
	"CHAT_NOT_MODIFIED",
	"USERNAME_NOT_OCCUPIED",
	"USERNAME_INVALID",
}

// classify переводит ошибку протокольного вызова в вердикт.
func classify(err error) callResult {
	if err == nil {
		return callResult{outcome: outcomeSuccess}
	}

	if wait, ok := tgerr.AsFloodWait(err); ok {
		return callResult{outcome: outcomeThrottled, wait: wait, code: "FLOOD_WAIT", err: err}
	}

	var code string
	if rpc, ok := tgerr.As(err); ok {
		code = rpc.Type
	}

	if tgerr.Is(err, skipCodes...) {
		return callResult{outcome: outcomeSkip, code: code, err: err}
	}
	return callResult{outcome: outcomeFail, code: code, err: err}
}

// cancelled сообщает, вызван ли неуспех отменой контекста (в том числе во
// время ожидания флуд-контроля), а не ответом сервера.
func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// status возвращает строку исхода для журнала инвайтов.
func (r callResult) status() string {
	switch r.outcome {
	case outcomeSuccess:
		return "success"
	case outcomeSkip:
		return "skipped: " + strings.ToLower(r.code)
	default:
		if r.code != "" {
			return "error: " + strings.ToLower(r.code)
		}
		return "error: unexpected"
	}
}
