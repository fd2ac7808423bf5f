// cmd/vecna/main.go
package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/keshon/vecna/internal/ai"
	"github.com/keshon/vecna/internal/chat"
	"github.com/keshon/vecna/internal/config"
	"github.com/keshon/vecna/internal/storage"
	"github.com/keshon/vecna/internal/vecna"
)

func main() {
	log.Println("[INFO] Starting vecna...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.New()

	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	provider := ai.NewProvider(cfg.AIProvider)
	client := ai.NewClient(provider, cfg.GenerationTimeout)

	hub := chat.NewHub()
	logger := vecna.NewActivationLogger(store)
	orch := vecna.NewOrchestrator(client, vecna.OrchestratorConfig{
		CorruptionMin: cfg.CorruptionLevelMin,
		CorruptionMax: cfg.CorruptionLevelMax,
	}, chat.LogSink{}, logger)

	detector := vecna.NewDetector(vecna.DetectorConfig{
		SpamWindow:          cfg.SpamWindow,
		SpamCount:           cfg.SpamCount,
		SpamSimilarity:      0.8,
		RepetitionWindow:    cfg.RepetitionWindow,
		RepetitionCount:     cfg.RepetitionCount,
		AnomalyWindow:       time.Minute,
		AnomalyDeviation:    cfg.AnomalyDeviation,
		AnomalyAbsoluteRate: 30,
	})
	governor := vecna.NewGovernor(cfg.MaxActivationsHour, time.Duration(cfg.CooldownSeconds)*time.Second)
	machine := vecna.NewMachine(vecna.MachineConfig{
		GripMin:          cfg.GripDurationMin,
		GripMax:          cfg.GripDurationMax,
		Cooldown:         time.Duration(cfg.CooldownSeconds) * time.Second,
		RejectDuringGrip: cfg.RejectDuringGrip,
	}, nil, store, nil)

	router := vecna.NewRouter(hub, vecna.NewClassifier(cfg.SentimentThreshold),
		detector, governor, machine, orch, nil, logger)

	reconcile(store, governor, machine)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		storage.RunCooldownCleaner(gctx, store)
		return nil
	})
	g.Go(func() error {
		readLoop(gctx, router)
		cancel()
		return nil
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Printf("[INFO] Received signal %s, shutting down...\n", s)
		cancel()
	case <-gctx.Done():
	}

	machine.Shutdown()
	_ = g.Wait()
	log.Println("[INFO] vecna exited cleanly")
}

// reconcile restores grips persisted before the last shutdown. Grips whose
// planned end has passed are force-expired immediately; the governor window
// is pre-warmed from persisted activation history.
func reconcile(store *storage.Storage, governor *vecna.Governor, machine *vecna.Machine) {
	now := time.Now()
	for _, id := range store.KnownUserIDs() {
		if times, cooldownUntil, err := store.ActivationHistory(id); err == nil {
			governor.Preload(id, times, cooldownUntil)
		}
	}
	for _, rec := range store.OpenActivations() {
		log.Printf("[INFO] Restoring activation user=%s kind=%s end=%s", rec.UserID, rec.TriggerKind, rec.PlannedEnd())
		machine.Restore(rec, now)
	}
}

// readLoop feeds stdin lines formatted "user room text..." (or
// "user room /command") through the control router. Minimal stand-in for a
// real transport.
func readLoop(ctx context.Context, router *vecna.Router) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		parts := strings.SplitN(strings.TrimSpace(scanner.Text()), " ", 3)
		if len(parts) < 3 {
			log.Println("[WARN] Expected: <user> <room> <text>")
			continue
		}
		msg := chat.Message{
			ID:       uuid.NewString(),
			UserID:   parts[0],
			Username: parts[0],
			RoomID:   parts[1],
			Content:  parts[2],
			At:       time.Now(),
		}
		if strings.HasPrefix(parts[2], "/") {
			msg.Command = strings.TrimPrefix(strings.Fields(parts[2])[0], "/")
		}
		res, err := router.HandleMessage(ctx, msg)
		if err != nil {
			log.Println("[ERR] Routing error:", err)
			continue
		}
		switch {
		case res.Withheld:
			log.Printf("[INFO] msg=%s withheld (rejected=%t)", msg.ID, res.Rejected)
		case res.Event != nil:
			log.Printf("[INFO] msg=%s decision=%s event=%s", msg.ID, res.Decision.Kind, res.Event.Kind)
		}
	}
}
