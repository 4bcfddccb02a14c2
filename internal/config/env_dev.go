//go:build dev

package config

import (
	"os"

	"github.com/joho/godotenv"
)

// loadDotEnv reads .env (or DOTENV_PATH) without overriding variables already set.
func loadDotEnv() error {
	path := os.Getenv("DOTENV_PATH")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}
