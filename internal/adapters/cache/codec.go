package cache

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/mikey/mail-triage/internal/core"
)

// storedVerdict is the serialized form shared by the SQL and Redis caches
type storedVerdict struct {
	Key        string               `json:"key"`
	Classifier string               `json:"classifier"`
	Verdict    core.CombinedVerdict `json:"verdict"`
	CreatedAt  time.Time            `json:"createdAt"`
	ExpiresAt  time.Time            `json:"expiresAt"`
}

func encodeVerdict(entry *core.CachedVerdict) ([]byte, error) {
	return json.Marshal(storedVerdict{
		Key:        entry.Key,
		Classifier: entry.Classifier,
		Verdict:    entry.Verdict,
		CreatedAt:  entry.CreatedAt,
		ExpiresAt:  entry.ExpiresAt,
	})
}

func decodeVerdict(data []byte) (*core.CachedVerdict, error) {
	var s storedVerdict
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &core.CachedVerdict{
		Key:        s.Key,
		Classifier: s.Classifier,
		Verdict:    s.Verdict,
		CreatedAt:  s.CreatedAt,
		ExpiresAt:  s.ExpiresAt,
	}, nil
}
