package log

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// PhoneMaskerHandler - обертка для slog.Handler, которая маскирует номера
// телефонов в логах. Номера аккаунтов - чувствительные данные, и попадать в
// журналы целиком они не должны.
type PhoneMaskerHandler struct {
	handler slog.Handler
}

// NewPhoneMaskerHandler создает новый обработчик с маскировкой номеров.
func NewPhoneMaskerHandler(handler slog.Handler) *PhoneMaskerHandler {
	return &PhoneMaskerHandler{
		handler: handler,
	}
}

// маскируем номера в международном формате: плюс и 7-15 цифр
var phoneRegex = regexp.MustCompile(`\+\d{7,15}\b`)

// maskPhones заменяет середину каждого найденного номера на звёздочки,
// оставляя первые три и последние две цифры для сопоставления с аккаунтом.
func maskPhones(text string) string {
	return phoneRegex.ReplaceAllStringFunc(text, func(m string) string {
		digits := m[1:]
		if len(digits) <= 5 {
			return "+*****"
		}
		return "+" + digits[:3] + strings.Repeat("*", len(digits)-5) + digits[len(digits)-2:]
	})
}

// Enabled реализует интерфейс slog.Handler
func (h *PhoneMaskerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle реализует интерфейс slog.Handler
func (h *PhoneMaskerHandler) Handle(ctx context.Context, record slog.Record) error {
	// Исходящая запись собирается с нуля: копия через Clone сохраняет
	// исходные атрибуты, и добавление масок рядом с ними оставило бы
	// немаскированный номер в выводе.
	r := slog.NewRecord(record.Time, record.Level, maskPhones(record.Message), record.PC)

	record.Attrs(func(a slog.Attr) bool {
		r.AddAttrs(slog.Attr{
			Key:   a.Key,
			Value: maskAttributeValue(a.Value),
		})
		return true
	})

	return h.handler.Handle(ctx, r)
}

// WithAttrs реализует интерфейс slog.Handler
func (h *PhoneMaskerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	maskedAttrs := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		maskedAttrs[i] = slog.Attr{
			Key:   attr.Key,
			Value: maskAttributeValue(attr.Value),
		}
	}
	return &PhoneMaskerHandler{
		handler: h.handler.WithAttrs(maskedAttrs),
	}
}

// WithGroup реализует интерфейс slog.Handler
func (h *PhoneMaskerHandler) WithGroup(name string) slog.Handler {
	return &PhoneMaskerHandler{
		handler: h.handler.WithGroup(name),
	}
}

// maskAttributeValue рекурсивно маскирует значения атрибутов
func maskAttributeValue(value slog.Value) slog.Value {
	switch value.Kind() {
	case slog.KindString:
		return slog.StringValue(maskPhones(value.String()))
	case slog.KindAny:
		// Ошибки тоже могут содержать номер: преобразуем в строку и маскируем.
		if err, ok := value.Any().(error); ok {
			return slog.StringValue(maskPhones(err.Error()))
		}
		return value
	case slog.KindGroup:
		group := value.Group()
		maskedGroup := make([]slog.Attr, len(group))
		for i, attr := range group {
			maskedGroup[i] = slog.Attr{
				Key:   attr.Key,
				Value: maskAttributeValue(attr.Value),
			}
		}
		return slog.GroupValue(maskedGroup...)
	default:
		return value
	}
}

// NewMaskedLogger создает новый экземпляр slog.Logger с маскировкой номеров.
func NewMaskedLogger(handler slog.Handler) *slog.Logger {
	return slog.New(NewPhoneMaskerHandler(handler))
}
