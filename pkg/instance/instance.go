package instance

import "os"

var envKeys = []string{"SETTLE_INSTANCE_ID", "DYNO", "HOSTNAME"}

// GetID returns the process instance identifier used in logs and lock owners.
func GetID() string {
	for _, key := range envKeys {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
