package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/id"
	"github.com/outreachlab/cadence/job"
)

// transitionScript performs the compare-and-set state transition
// atomically. Returns 1 on success, 0 on a lost race, -1 when the job
// hash does not exist.
var transitionScript = goredis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == false then
	return -1
end
if state ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[2], 'updated_at', ARGV[3])
return 1
`)

// InsertJob stores the job as a Hash and indexes it in the due set.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("cadence/redis: insert check exists: %w", err)
	}
	if exists > 0 {
		return cadence.ErrJobAlreadyExists
	}

	seq, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return fmt.Errorf("cadence/redis: insert seq: %w", err)
	}

	fields, err := jobToMap(j, seq)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, jobIDsKey, jID)
	if j.State == job.StatePending {
		pipe.ZAdd(ctx, dueKey, goredis.Z{Score: float64(j.FireAt.UnixMilli()), Member: jID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cadence/redis: insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, _, err := s.getJobByKey(ctx, jobKey(jobID.String()))
	return j, err
}

// DueJobs returns pending jobs whose fire instant has passed, ordered by
// fire instant then insertion order.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]*job.Job, error) {
	ids, err := s.client.ZRangeByScore(ctx, dueKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("cadence/redis: due jobs: %w", err)
	}

	type ordered struct {
		j   *job.Job
		seq int64
	}
	var due []ordered
	for _, jID := range ids {
		j, seq, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // removed between index read and load
		}
		if j.State != job.StatePending {
			continue
		}
		due = append(due, ordered{j: j, seq: seq})
	}

	// Equal scores come back in member-lexical order; re-sort so jobs
	// sharing a fire instant keep insertion order.
	sort.SliceStable(due, func(a, b int) bool {
		if !due[a].j.FireAt.Equal(due[b].j.FireAt) {
			return due[a].j.FireAt.Before(due[b].j.FireAt)
		}
		return due[a].seq < due[b].seq
	})

	jobs := make([]*job.Job, len(due))
	for i, o := range due {
		jobs[i] = o.j
	}
	return jobs, nil
}

// TransitionJob atomically moves a job from one state to another via a
// Lua compare-and-set. Returns false when another dispatch won the race.
func (s *Store) TransitionJob(ctx context.Context, jobID id.JobID, from, to job.State) (bool, error) {
	jID := jobID.String()
	res, err := transitionScript.Run(ctx, s.client, []string{jobKey(jID)},
		string(from), string(to), time.Now().UTC().Format(time.RFC3339Nano)).Int()
	if err != nil {
		return false, fmt.Errorf("cadence/redis: transition job: %w", err)
	}
	switch res {
	case -1:
		return false, cadence.ErrJobNotFound
	case 0:
		return false, nil
	}
	// Terminal states leave the due index for good.
	if to.Terminal() {
		if err := s.client.ZRem(ctx, dueKey, jID).Err(); err != nil {
			return true, fmt.Errorf("cadence/redis: transition zrem: %w", err)
		}
	}
	return true, nil
}

// RecordAttempt increments the attempt counter, stores the error text,
// and reschedules the job in the due index.
func (s *Store) RecordAttempt(ctx context.Context, jobID id.JobID, lastError string, nextFireAt time.Time) (int, error) {
	jID := jobID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cadence/redis: record attempt exists: %w", err)
	}
	if exists == 0 {
		return 0, cadence.ErrJobNotFound
	}

	attempts, err := s.client.HIncrBy(ctx, key, "attempts", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("cadence/redis: record attempt incr: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"last_error", lastError,
		"fire_at", nextFireAt.UTC().Format(time.RFC3339Nano),
		"updated_at", now,
	)
	pipe.ZAdd(ctx, dueKey, goredis.Z{Score: float64(nextFireAt.UnixMilli()), Member: jID})
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("cadence/redis: record attempt: %w", err)
	}
	return int(attempts), nil
}

// MarkSent records the delivery instant.
func (s *Store) MarkSent(ctx context.Context, jobID id.JobID, at time.Time) error {
	key := jobKey(jobID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("cadence/redis: mark sent exists: %w", err)
	}
	if exists == 0 {
		return cadence.ErrJobNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"sent_at", at.UTC().Format(time.RFC3339Nano),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("cadence/redis: mark sent: %w", err)
	}
	return nil
}

// ListJobs returns jobs matching the given options in insertion order.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("cadence/redis: list jobs smembers: %w", err)
	}

	type ordered struct {
		j   *job.Job
		seq int64
	}
	var all []ordered
	for _, jID := range ids {
		j, seq, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.SequenceID != "" && j.SequenceID != opts.SequenceID {
			continue
		}
		all = append(all, ordered{j: j, seq: seq})
	}
	sort.Slice(all, func(a, b int) bool { return all[a].seq < all[b].seq })

	jobs := make([]*job.Job, 0, len(all))
	for _, o := range all {
		jobs = append(jobs, o.j)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// CountJobs returns job totals grouped by state.
func (s *Store) CountJobs(ctx context.Context) (job.Counts, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return job.Counts{}, fmt.Errorf("cadence/redis: count smembers: %w", err)
	}

	var counts job.Counts
	for _, jID := range ids {
		state, getErr := s.client.HGet(ctx, jobKey(jID), "state").Result()
		if getErr != nil {
			continue
		}
		counts.Total++
		switch job.State(state) {
		case job.StatePending:
			counts.Pending++
		case job.StateSending:
			counts.Sending++
		case job.StateSent:
			counts.Sent++
		case job.StateFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

// PurgeSent deletes delivered jobs.
func (s *Store) PurgeSent(ctx context.Context) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("cadence/redis: purge smembers: %w", err)
	}

	var purged int64
	for _, jID := range ids {
		state, getErr := s.client.HGet(ctx, jobKey(jID), "state").Result()
		if getErr != nil {
			continue
		}
		if job.State(state) != job.StateSent {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, jobKey(jID))
		pipe.SRem(ctx, jobIDsKey, jID)
		pipe.ZRem(ctx, dueKey, jID)
		if _, err := pipe.Exec(ctx); err != nil {
			return purged, fmt.Errorf("cadence/redis: purge job: %w", err)
		}
		purged++
	}
	return purged, nil
}

// ── hash conversion ──────────────────────────────────────────────

func jobToMap(j *job.Job, seq int64) (map[string]any, error) {
	bindings, err := json.Marshal(j.Bindings)
	if err != nil {
		return nil, fmt.Errorf("cadence/redis: marshal bindings: %w", err)
	}
	m := map[string]any{
		"id":           j.ID.String(),
		"seq":          strconv.FormatInt(seq, 10),
		"trigger_id":   j.TriggerID.String(),
		"entity_id":    j.EntityID,
		"sequence_id":  j.SequenceID,
		"step_id":      j.StepID,
		"bindings":     string(bindings),
		"state":        string(j.State),
		"fire_at":      j.FireAt.UTC().Format(time.RFC3339Nano),
		"attempts":     strconv.Itoa(j.Attempts),
		"max_attempts": strconv.Itoa(j.MaxAttempts),
		"last_error":   j.LastError,
		"created_at":   j.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   j.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if j.SentAt != nil {
		m["sent_at"] = j.SentAt.UTC().Format(time.RFC3339Nano)
	}
	return m, nil
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, int64, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, 0, cadence.ErrJobNotFound
		}
		return nil, 0, fmt.Errorf("cadence/redis: get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, 0, cadence.ErrJobNotFound
	}
	return mapToJob(fields)
}

func mapToJob(fields map[string]string) (*job.Job, int64, error) {
	var j job.Job
	var err error

	if j.ID, err = id.Parse(fields["id"]); err != nil {
		return nil, 0, fmt.Errorf("cadence/redis: parse id: %w", err)
	}
	if j.TriggerID, err = id.Parse(fields["trigger_id"]); err != nil {
		return nil, 0, fmt.Errorf("cadence/redis: parse trigger id: %w", err)
	}
	j.EntityID = fields["entity_id"]
	j.SequenceID = fields["sequence_id"]
	j.StepID = fields["step_id"]
	j.State = job.State(fields["state"])
	j.LastError = fields["last_error"]

	if raw := fields["bindings"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &j.Bindings); err != nil {
			return nil, 0, fmt.Errorf("cadence/redis: unmarshal bindings: %w", err)
		}
	}

	seq, _ := strconv.ParseInt(fields["seq"], 10, 64)
	j.Attempts, _ = strconv.Atoi(fields["attempts"])
	j.MaxAttempts, _ = strconv.Atoi(fields["max_attempts"])

	if j.FireAt, err = time.Parse(time.RFC3339Nano, fields["fire_at"]); err != nil {
		return nil, 0, fmt.Errorf("cadence/redis: parse fire_at: %w", err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, 0, fmt.Errorf("cadence/redis: parse created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"]); err != nil {
		return nil, 0, fmt.Errorf("cadence/redis: parse updated_at: %w", err)
	}
	if raw, ok := fields["sent_at"]; ok && raw != "" {
		t, parseErr := time.Parse(time.RFC3339Nano, raw)
		if parseErr != nil {
			return nil, 0, fmt.Errorf("cadence/redis: parse sent_at: %w", parseErr)
		}
		j.SentAt = &t
	}
	return &j, seq, nil
}
