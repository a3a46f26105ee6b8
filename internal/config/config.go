package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	APIBaseURL   string
	APITimeout   time.Duration
	KeychainPath string
	KeychainKey  string
	DeviceName   string
	ScreenSize   string
	OSVersion    string
	HasHaptics   bool
	PageLimit    int

	// Mock backend settings, used by cmd/mockserver only.
	ListenAddr      string
	MockJWTSecret   string
	MockAccessTTL   time.Duration
	MockPairingCode string
	MockMaxDevices  int
}

func Load() Config {
	return Config{
		APIBaseURL:   getEnv("NEXZY_API_BASE_URL", "https://api.nexzy.app"),
		APITimeout:   getDuration("NEXZY_API_TIMEOUT", 30*time.Second),
		KeychainPath: getEnv("NEXZY_KEYCHAIN_PATH", defaultKeychainPath()),
		KeychainKey:  getEnv("NEXZY_KEYCHAIN_KEY", ""),
		DeviceName:   getEnv("NEXZY_DEVICE_NAME", "Nexzy Watch"),
		ScreenSize:   getEnv("NEXZY_SCREEN_SIZE", "45mm"),
		OSVersion:    getEnv("NEXZY_OS_VERSION", "watchOS 11"),
		HasHaptics:   getBool("NEXZY_HAS_HAPTICS", true),
		PageLimit:    getInt("NEXZY_PAGE_LIMIT", 10),

		ListenAddr:      getEnv("MOCK_LISTEN_ADDR", ":18090"),
		MockJWTSecret:   getEnv("MOCK_JWT_SECRET", "change-this-secret"),
		MockAccessTTL:   getDuration("MOCK_ACCESS_TTL", 15*time.Minute),
		MockPairingCode: getEnv("MOCK_PAIRING_CODE", "123456"),
		MockMaxDevices:  getInt("MOCK_MAX_DEVICES", 3),
	}
}

func defaultKeychainPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nexzy-keychain"
	}
	return filepath.Join(home, ".nexzy", "keychain")
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
