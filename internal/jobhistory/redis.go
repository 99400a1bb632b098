package jobhistory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"report-scheduler/internal/models"
)

const defaultKeyPrefix = "jobhistory:"

// RedisClaimer stores last-run markers as unix milliseconds under one key per job.
type RedisClaimer struct {
	client *redis.Client
	prefix string
}

func NewRedisClaimer(client *redis.Client) *RedisClaimer {
	return &RedisClaimer{client: client, prefix: defaultKeyPrefix}
}

func (c *RedisClaimer) key(jobName string) string {
	return c.prefix + jobName
}

func (c *RedisClaimer) Claim(ctx context.Context, jobName string, now time.Time, window time.Duration) (Claim, error) {
	res, err := claimScript.Run(ctx, c.client, []string{c.key(jobName)}, now.UnixMilli(), window.Milliseconds()).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("claim %s: %w", jobName, err)
	}
	return parseClaim(res)
}

func (c *RedisClaimer) ForceClaim(ctx context.Context, jobName string, now time.Time) (Claim, error) {
	res, err := claimScript.Run(ctx, c.client, []string{c.key(jobName)}, now.UnixMilli(), -1).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("force claim %s: %w", jobName, err)
	}
	return parseClaim(res)
}

func (c *RedisClaimer) History(ctx context.Context) ([]models.JobHistory, error) {
	var out []models.JobHistory
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ms, err := c.client.Get(ctx, key).Int64()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		out = append(out, models.JobHistory{
			JobName:   strings.TrimPrefix(key, c.prefix),
			LastRunAt: time.UnixMilli(ms).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan job history: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobName < out[j].JobName })
	return out, nil
}

func parseClaim(res interface{}) (Claim, error) {
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return Claim{}, fmt.Errorf("unexpected claim reply %v", res)
	}
	granted, _ := arr[0].(int64)
	claim := Claim{Granted: granted == 1}
	if last, _ := arr[1].(string); last != "" {
		ms, err := strconv.ParseInt(last, 10, 64)
		if err != nil {
			return Claim{}, fmt.Errorf("parse last run %q: %w", last, err)
		}
		prev := time.UnixMilli(ms).UTC()
		claim.PreviousRun = &prev
	}
	return claim, nil
}

// A negative window forces the claim.
var claimScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local last = redis.call('GET', key)
if last and window >= 0 and now - tonumber(last) < window then
  return {0, last}
end

redis.call('SET', key, ARGV[1])
if last then
  return {1, last}
end
return {1, ''}
`)
