package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"jobalert-engine/internal/config"
)

const (
	// “Service” groups this app’s secrets in the OS keychain.
	KeyringService = "jobalert"

	envIMAPPassword  = "EMAIL_PASS"
	envTelegramToken = "TELEGRAM_BOT_TOKEN"
)

func GetIMAPPassword(keyringAccount string) (string, error) {
	// 1) Keyring first (recommended)
	if strings.TrimSpace(keyringAccount) != "" {
		pw, err := keyring.Get(KeyringService, keyringAccount)
		if err == nil && strings.TrimSpace(pw) != "" {
			return pw, nil
		}
	}

	// 2) Env fallback (dev / headless)
	if pw := strings.TrimSpace(os.Getenv(envIMAPPassword)); pw != "" {
		return pw, nil
	}

	return "", errors.New("IMAP password not found (set it in keychain or via EMAIL_PASS)")
}

func SetIMAPPassword(keyringAccount string, password string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(KeyringService, keyringAccount, password)
}

func DeleteIMAPPassword(keyringAccount string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, keyringAccount)
}

func IMAPKeyringAccount(cfg config.Config) string {
	return fmt.Sprintf(
		"jobalert:imap:%s@%s",
		cfg.Email.Username,
		cfg.Email.IMAPHost,
	)
}

func GetTelegramToken() (string, error) {
	tok, err := keyring.Get(KeyringService, "jobalert:telegram:bot_token")
	if err == nil && strings.TrimSpace(tok) != "" {
		return tok, nil
	}
	if tok := strings.TrimSpace(os.Getenv(envTelegramToken)); tok != "" {
		return tok, nil
	}
	return "", errors.New("telegram bot token not found (set it in keychain or via TELEGRAM_BOT_TOKEN)")
}

func SetTelegramToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("token is empty")
	}
	return keyring.Set(KeyringService, "jobalert:telegram:bot_token", token)
}
