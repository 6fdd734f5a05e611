package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/careloop/appointment-lifecycle/internal/appointment"
	"github.com/careloop/appointment-lifecycle/internal/batch"
	"github.com/careloop/appointment-lifecycle/internal/config"
	"github.com/careloop/appointment-lifecycle/internal/db"
	"github.com/careloop/appointment-lifecycle/internal/dispatch"
	"github.com/careloop/appointment-lifecycle/internal/notification"
	redisclient "github.com/careloop/appointment-lifecycle/internal/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("dispatch-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running dispatch worker in env=%s reminder_interval=%s review_interval=%s sweep_interval=%s",
		cfg.Env, cfg.ReminderInterval, cfg.ReviewInterval, cfg.SweepInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	appts := appointment.NewPgRepository(pgPool)
	notifs := notification.NewPgRepository(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	svc := dispatch.NewService(appts, notifs, locker, dispatch.SystemClock{}, cfg)

	jobs := []struct {
		name     string
		interval time.Duration
		run      func(ctx context.Context) (batch.Result, error)
	}{
		{"reminders", cfg.ReminderInterval, svc.DispatchReminders},
		{"review-prompts", cfg.ReviewInterval, svc.DispatchReviewPrompts},
		{"missed-sweep", cfg.SweepInterval, svc.SweepMissedAppointments},
	}

	// Each job ticks on its own cadence. The jobs share no state, so they
	// run concurrently without coordination; overlapping runs of the same
	// job are safe because dispatch is idempotent per candidate.
	for _, job := range jobs {
		job := job
		go func() {
			runOnce(rootCtx, job.name, job.run)

			ticker := time.NewTicker(job.interval)
			defer ticker.Stop()

			for {
				select {
				case <-rootCtx.Done():
					return
				case <-ticker.C:
					runOnce(rootCtx, job.name, job.run)
				}
			}
		}()
	}

	<-rootCtx.Done()
	log.Println("shutdown signal received, stopping dispatch worker")
}

func runOnce(ctx context.Context, name string, run func(ctx context.Context) (batch.Result, error)) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	result, err := run(runCtx)
	if err != nil {
		log.Printf("%s run error: %v", name, err)
		return
	}

	log.Printf("%s run complete in %s attempted=%d succeeded=%d failed=%d",
		name, time.Since(start), result.Attempted, result.Succeeded, len(result.Failures))

	for _, f := range result.Failures {
		log.Printf("%s candidate %s failed: %s", name, f.CandidateID, f.Err)
	}
}
