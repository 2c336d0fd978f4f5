package models

import "time"

// OfflineScope describes what the offline cache currently holds: the
// municipality that was downloaded and when. Stored under the
// well-known metadata key "offline_scope".
type OfflineScope struct {
	Municipality string    `json:"municipality"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// MetaKeyOfflineScope is the metadata key holding the OfflineScope record.
const MetaKeyOfflineScope = "offline_scope"
