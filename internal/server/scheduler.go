package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/briefops/briefer/internal/brief"
	"github.com/briefops/briefer/internal/index"
	"github.com/briefops/briefer/internal/store"
)

// Scheduler refreshes standing topics on their cron schedules. A redis
// lock per topic keeps multiple server instances from firing duplicate
// runs.
type Scheduler struct {
	Store        *store.Store
	Engine       Runner
	Index        *index.Index
	Rdb          *redis.Client
	Stop         chan struct{}
	TickInterval time.Duration
	LockTTL      time.Duration
	Logger       *log.Logger
}

func (s *Scheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	if s.TickInterval <= 0 {
		s.TickInterval = time.Hour
	}
	if s.LockTTL <= 0 {
		s.LockTTL = 2 * time.Minute
	}
	ticker := time.NewTicker(s.TickInterval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	topics, err := s.Store.ListAllTopics(ctx)
	if err != nil {
		s.Logger.Printf("list topics: %v", err)
		return
	}
	for _, t := range topics {
		last, err := s.Store.LatestBriefTime(ctx, t.UserID, t.Name)
		if err != nil {
			// A read failure must not masquerade as "never run".
			s.Logger.Printf("topic %s: last brief time: %v", t.ID, err)
			continue
		}
		if !isDue(t.ScheduleCron, last) {
			continue
		}

		lockKey := "sched:lock:" + t.ID
		if s.Rdb != nil {
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", s.LockTTL).Result()
			if !ok {
				continue
			}
		}

		go func(topic store.Topic) {
			defer func() {
				if s.Rdb != nil {
					s.Rdb.Del(ctx, lockKey)
				}
			}()
			// jitter to avoid stampedes
			time.Sleep(time.Duration(250+int64(time.Now().UnixNano()%250)) * time.Millisecond)

			state := brief.NewPipelineState(topic.Name, topic.UserID, brief.ParseDepth(topic.Depth), false, "", nil)
			result := s.Engine.Run(ctx, state)

			id, err := s.Store.SaveBrief(ctx, topic.UserID, topic.Depth, result)
			if err != nil {
				s.Logger.Printf("topic %s: save brief: %v", topic.ID, err)
				return
			}
			if s.Index != nil {
				if err := s.Index.IndexBrief(id, topic.UserID, result); err != nil {
					s.Logger.Printf("topic %s: index brief: %v", topic.ID, err)
				}
			}
			s.Logger.Printf("topic %s: refreshed brief %s", topic.ID, id)
		}(t)
	}
}

// isDue determines whether a topic with cronSpec should run now given
// its last refresh time. Supports "@daily", "@hourly" and standard
// 5-field cron expressions; an invalid spec falls back to @daily.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
