package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"brotherowl/internal/application/port"
)

type Repo struct {
	rdb         *redis.Client
	prefix      string
	ttl         time.Duration
	keyLatest   string // prefix + ":chain:latest"
	alertStream string
	alertChan   string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, alertStream, alertChan string) *Repo {
	if strings.TrimSpace(alertStream) == "" {
		alertStream = prefix + ":alerts"
	}
	if strings.TrimSpace(alertChan) == "" {
		alertChan = prefix + ":alerts:pub"
	}
	return &Repo{
		rdb:         rdb,
		prefix:      prefix,
		ttl:         ttl,
		keyLatest:   prefix + ":chain:latest",
		alertStream: alertStream,
		alertChan:   alertChan,
	}
}

// SaveChainSnapshot keeps one json document per source in a hash.
func (r *Repo) SaveChainSnapshot(ctx context.Context, snap port.ChainSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, snap.Source, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repo) LatestChainSnapshot(ctx context.Context) (*port.ChainSnapshot, error) {
	all, err := r.rdb.HGetAll(ctx, r.keyLatest).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var latest *port.ChainSnapshot
	for _, v := range all {
		var s port.ChainSnapshot
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			continue
		}
		if latest == nil || s.Ts > latest.Ts {
			latest = &s
		}
	}
	return latest, nil
}

func (r *Repo) InsertAlert(ctx context.Context, a port.ChainAlert) error {
	// 1) Stream: XADD <stream> * id kind current message ts_ms
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.alertStream,
		Values: map[string]any{
			"id":      a.ID,
			"kind":    a.Kind,
			"current": a.Current,
			"message": a.Message,
			"ts_ms":   a.Ts,
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.alertChan, string(b)).Err()
}

var _ port.ChainRepository = (*Repo)(nil)
