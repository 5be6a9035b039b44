// Package export собирает результаты парсинга в файлы для выгрузки оператору.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"telematrix/internal/domain"
)

// ExcelFileName возвращает имя файла выгрузки с отметкой времени.
func ExcelFileName(now time.Time) string {
	return fmt.Sprintf("parsed_users_%s.xlsx", now.Format("2006-01-02_15-04-05"))
}

// WriteExcel записывает собранных участников в XLSX. Колонки повторяют поля
// записи; пустой список даёт файл с одной строкой заголовков.
func WriteExcel(w io.Writer, users []domain.ParsedUser) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Участники"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("создание листа: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("удаление листа по умолчанию: %w", err)
	}

	// Заголовки
	headers := []string{"User ID", "Chat ID", "Username", "Имя", "Фамилия", "Телефон", "Дата сбора"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("адрес ячейки заголовка: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("запись заголовка: %w", err)
		}
	}

	// Данные
	for i, user := range users {
		row := i + 2
		values := []any{
			user.UserID,
			user.ChatID,
			user.Username,
			user.FirstName,
			user.LastName,
			user.Phone,
			user.ParsedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("адрес ячейки данных: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("запись строки %d: %w", row, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("запись файла: %w", err)
	}
	return nil
}
