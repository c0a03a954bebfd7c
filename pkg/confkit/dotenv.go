package confkit

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce loads variables from a .env file. CHARTD_ENV_FILE names the
// file explicitly; otherwise .env files are read from the working directory
// up to the module root. Existing variables win unless DOTENV_OVERLOAD=1.
// NO_DOTENV=1 disables loading.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}
	overload := os.Getenv("DOTENV_OVERLOAD") == "1"
	load := func(path string) {
		if !fileExists(path) {
			return
		}
		if overload {
			_ = godotenv.Overload(path)
		} else {
			_ = godotenv.Load(path)
		}
	}

	if envFile := os.Getenv("CHARTD_ENV_FILE"); envFile != "" {
		load(envFile)
		return
	}
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	root, ok := FindUp(wd, "go.mod", ".git")
	for dir := wd; ; dir = filepath.Dir(dir) {
		load(filepath.Join(dir, ".env"))
		if !ok || dir == root || dir == filepath.Dir(dir) {
			return
		}
	}
}
