package telegram

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// login authorizes a fresh session as a bot when botToken is set and as a
// user through the phone code flow otherwise. Restored sessions skip both.
type login struct {
	botToken string
	phone    string
	password string
	code     string
	timeout  time.Duration
	logger   *slog.Logger
	// prompt asks the operator for the login code when none is configured.
	prompt func() (string, error)
}

func (l login) authorize(ctx context.Context, client *auth.Client) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	if status.Authorized {
		l.logger.InfoContext(ctx, "telegram session restored")
		return nil
	}

	if l.botToken != "" {
		if _, err := client.Bot(ctx, l.botToken); err != nil {
			return fmt.Errorf("bot login: %w", err)
		}
		l.logger.InfoContext(ctx, "telegram logged in as bot")

		return nil
	}
	if l.phone == "" {
		return fmt.Errorf("login: bot_token or phone is required")
	}

	codes := auth.CodeAuthenticatorFunc(func(context.Context, *tg.AuthSentCode) (string, error) {
		if l.code != "" {
			return l.code, nil
		}
		return l.prompt()
	})
	var user auth.UserAuthenticator = auth.CodeOnly(l.phone, codes)
	if l.password != "" {
		user = auth.Constant(l.phone, l.password, codes)
	}
	if err := client.IfNecessary(ctx, auth.NewFlow(user, auth.SendCodeOptions{})); err != nil {
		return fmt.Errorf("user login: %w", err)
	}
	l.logger.InfoContext(ctx, "telegram logged in as user", "phone", l.phone)

	return nil
}

// promptCode reads a login code from the terminal. It refuses to block on
// a non-interactive stdin.
func promptCode(in *os.File, out io.Writer) func() (string, error) {
	return func() (string, error) {
		info, err := in.Stat()
		if err != nil {
			return "", fmt.Errorf("stat stdin: %w", err)
		}
		if info.Mode()&os.ModeCharDevice == 0 {
			return "", fmt.Errorf("no login code configured and stdin is not a terminal")
		}

		fmt.Fprint(out, "Telegram login code: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read login code: %w", err)
		}
		code := strings.TrimSpace(line)
		if code == "" {
			return "", fmt.Errorf("empty login code")
		}

		return code, nil
	}
}

// fileSession stores the MTProto session at path, creating its directory.
func fileSession(path string) (*session.FileStorage, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("session file %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return nil, fmt.Errorf("session directory: %w", err)
	}

	return &session.FileStorage{Path: abs}, nil
}

// clientSession logs the client in before handing control to the driver.
type clientSession struct {
	client *gotdtelegram.Client
	login  login
}

func (s clientSession) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.client.Run(ctx, func(ctx context.Context) error {
		if err := s.login.authorize(ctx, s.client.Auth()); err != nil {
			return err
		}

		return fn(ctx)
	})
}
