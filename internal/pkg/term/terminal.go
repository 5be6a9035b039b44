// Package term обеспечивает интерактивный ввод кода и пароля через терминал.
package term

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"golang.org/x/xerrors"

	"telematrix/internal/ports"
)

// Terminal запрашивает у оператора код подтверждения и пароль второго
// фактора. Пустой ввод означает отказ от продолжения попытки.
type Terminal struct {
	in      *bufio.Reader
	out     io.Writer
	stdinfd int
}

// NewTerminal создает новый экземпляр Terminal поверх стандартного ввода.
func NewTerminal() *Terminal {
	return &Terminal{
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		stdinfd: int(os.Stdin.Fd()),
	}
}

// Code запрашивает код подтверждения для номера.
func (t *Terminal) Code(_ context.Context, phone string) (string, error) {
	fmt.Fprintf(t.out, "Enter code for %s: ", phone)
	code, err := t.in.ReadString('\n')
	if err != nil {
		return "", xerrors.Errorf("failed to read code: %w", err)
	}
	return strings.TrimSpace(code), nil
}

// Password запрашивает пароль 2FA. Ввод не отображается на экране.
func (t *Terminal) Password(_ context.Context, phone string) (string, error) {
	fmt.Fprintf(t.out, "Enter 2FA password for %s: ", phone)
	bytePwd, err := term.ReadPassword(t.stdinfd)
	if err != nil {
		return "", xerrors.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(t.out) // Новая строка после ввода
	return string(bytePwd), nil
}

// Providers возвращает колбэки терминала в форме, которую принимает
// контроллер авторизации.
func (t *Terminal) Providers() (ports.CodeProvider, ports.PasswordProvider) {
	return t.Code, t.Password
}
