package keychain

// Storage keys for the four persisted session entries. All entries live under
// the nexzy namespace; tokens and user id are cleared on logout, the device id
// only on explicit unpair.
const (
	KeyAccessToken  = "nexzy.authToken"
	KeyRefreshToken = "nexzy.refreshToken"
	KeyUserID       = "nexzy.userId"
	KeyDeviceID     = "nexzy.deviceId"
)

// Store is the secure key/value contract backing session credentials.
// Set reports success; a failed write degrades to "entry not found" on the
// next Get rather than surfacing an error to callers.
type Store interface {
	Set(key, value string) bool
	Get(key string) (string, bool)
	Remove(key string)
}
