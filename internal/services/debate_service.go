package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"debate-arena/internal/realtime"
	"debate-arena/internal/status"
	"debate-arena/internal/store"
	"debate-arena/models"
	"debate-arena/monitoring"
	"debate-arena/utils"
)

// deadlineKey is the Redis sorted set of debate ids scored by their
// current turn deadline. One centralized ticker drains it instead of one
// timer goroutine per debate.
const deadlineKey = "debate:deadlines"

const conflictRetries = 3

// DebateConfig tunes the session defaults and the timeout sweep.
type DebateConfig struct {
	MaxRounds       int
	TimePerTurn     time.Duration
	TimeoutInterval time.Duration
}

func DefaultDebateConfig() DebateConfig {
	return DebateConfig{
		MaxRounds:       5,
		TimePerTurn:     120 * time.Second,
		TimeoutInterval: time.Second,
	}
}

// DebateService owns the session state machine: roster and activation,
// the turn/round cycle, timeout enforcement, and the terminal judging
// and rating settlement. Every mutation goes read → compute → UpdateIf
// so concurrent writers collide detectably.
type DebateService struct {
	store    store.Store
	ratings  *RatingService
	judge    *JudgeService
	notifier realtime.Notifier
	monitor  *monitoring.Monitor
	redis    *redis.Client
	cfg      DebateConfig

	leaderboard  *LeaderboardService
	turnListener func(*models.Debate)

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// AttachLeaderboard mirrors settled ratings into the leaderboard set.
func (s *DebateService) AttachLeaderboard(lb *LeaderboardService) {
	s.leaderboard = lb
}

// AttachTurnListener registers a callback invoked after every turn
// change, including activation. The machine opponent hangs off this to
// answer when the turn lands on it. Called synchronously; attach before
// Start and wrap slow work in a goroutine.
func (s *DebateService) AttachTurnListener(fn func(*models.Debate)) {
	s.turnListener = fn
}

func (s *DebateService) notifyTurn(d *models.Debate) {
	if s.turnListener != nil {
		s.turnListener(d)
	}
}

func NewDebateService(st store.Store, ratings *RatingService, judge *JudgeService, notifier realtime.Notifier, monitor *monitoring.Monitor, redisClient *redis.Client, cfg DebateConfig) *DebateService {
	def := DefaultDebateConfig()
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.TimePerTurn <= 0 {
		cfg.TimePerTurn = def.TimePerTurn
	}
	if cfg.TimeoutInterval <= 0 {
		cfg.TimeoutInterval = def.TimeoutInterval
	}

	return &DebateService{
		store:    st,
		ratings:  ratings,
		judge:    judge,
		notifier: notifier,
		monitor:  monitor,
		redis:    redisClient,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start launches the centralized timeout manager.
func (s *DebateService) Start() {
	s.wg.Add(1)
	go s.timeoutManager()
}

// Shutdown stops the background goroutines and waits for them.
func (s *DebateService) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// Create persists a new session document in the waiting state and
// returns its id.
func (s *DebateService) Create(ctx context.Context, d *models.Debate) (string, error) {
	if d.MaxRounds <= 0 {
		d.MaxRounds = s.cfg.MaxRounds
	}
	if d.TimePerTurn <= 0 {
		d.TimePerTurn = int(s.cfg.TimePerTurn.Seconds())
	}
	if d.ExpectedCount <= 0 {
		d.ExpectedCount = 2
	}
	d.Status = models.StatusWaiting
	d.CurrentRound = 1
	d.CreatedAt = time.Now().UTC()
	d.Version = 0

	doc, err := d.ToDocument()
	if err != nil {
		return "", err
	}

	id := utils.NewRecordID()
	if err := s.store.Set(ctx, store.CollectionDebates, id, doc); err != nil {
		s.monitor.TrackDebate("create", "error")
		return "", fmt.Errorf("create debate: %w", err)
	}
	d.ID = id

	s.monitor.TrackDebate("create", "success")
	slog.Info("debate created", "debate_id", id, "topic_id", d.TopicID, "expected", d.ExpectedCount)
	return id, nil
}

// Session loads one debate.
func (s *DebateService) Session(ctx context.Context, debateID string) (*models.Debate, error) {
	doc, err := s.store.Get(ctx, store.CollectionDebates, debateID)
	if err != nil {
		return nil, err
	}
	return models.DebateFromDocument(debateID, doc)
}

// Watch streams document changes for one debate. The returned func
// cancels the watch.
func (s *DebateService) Watch(debateID string, onChange func(*models.Debate)) func() {
	return s.store.Subscribe(store.CollectionDebates, debateID, func(doc store.Document) {
		d, err := models.DebateFromDocument(debateID, doc)
		if err != nil {
			slog.Warn("dropping malformed debate update", "debate_id", debateID, "error", err)
			return
		}
		onChange(d)
	})
}

// RegisterParticipant adds the user to a waiting session, or marks an
// existing roster member as present. Once the roster reaches the
// expected size the session activates: turn order is fixed by
// interleaving stances and the first deadline starts ticking.
func (s *DebateService) RegisterParticipant(ctx context.Context, debateID string, p models.Participant) (*models.Debate, error) {
	activated := false
	d, err := s.mutate(ctx, debateID, func(d *models.Debate) error {
		activated = false
		if d.Terminal() {
			return status.ErrDebateCompleted
		}

		if existing := d.Participant(p.UserID); existing != nil {
			existing.IsOnline = true
			existing.LastSeen = time.Now().Unix()
		} else {
			if d.Status != models.StatusWaiting {
				return status.ErrDebateNotActive
			}
			if len(d.Participants) >= d.ExpectedCount {
				return status.ErrDebateFull
			}
			if p.Stance == "" {
				p.Stance = s.balancingStance(d)
			}
			p.IsOnline = true
			p.LastSeen = time.Now().Unix()
			d.Participants = append(d.Participants, p)
			if d.Ratings == nil {
				d.Ratings = map[string]int{}
			}
			d.Ratings[p.UserID] = p.Rating
			// the first joiner holds the turn while the room fills;
			// activation recomputes it from the interleaved order
			if d.CurrentTurn == "" {
				d.CurrentTurn = p.UserID
			}
		}

		if d.Status == models.StatusWaiting && len(d.Participants) == d.ExpectedCount {
			s.activate(d)
			activated = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if activated {
		s.scheduleDeadline(ctx, d.ID, d.TurnDeadline)
		s.notifier.PublishToDebate(d.ID, map[string]any{
			"type":          "debate_started",
			"current_turn":  d.CurrentTurn,
			"turn_order":    d.TurnOrder,
			"deadline":      d.TurnDeadline,
			"current_round": d.CurrentRound,
		})
		s.notifyTurn(d)
	}
	return d, nil
}

// balancingStance assigns the side with fewer members, pro first.
func (s *DebateService) balancingStance(d *models.Debate) string {
	pro, con := 0, 0
	for _, p := range d.Participants {
		if p.Stance == models.StancePro {
			pro++
		} else {
			con++
		}
	}
	if pro <= con {
		return models.StancePro
	}
	return models.StanceCon
}

func (s *DebateService) activate(d *models.Debate) {
	now := time.Now().UTC()
	d.Status = models.StatusActive
	d.StartedAt = &now
	d.TurnOrder = models.InterleaveByStance(d.Participants)
	d.CurrentTurn = d.TurnOrder[0]
	d.CurrentRound = 1
	d.TurnDeadline = now.Add(time.Duration(d.TimePerTurn) * time.Second).Unix()

	slog.Info("debate activated", "debate_id", d.ID, "turn_order", d.TurnOrder)
}

// SubmitArgument appends the caller's argument for the current turn and
// advances the cycle. Crossing the last speaker advances the round;
// crossing the final round completes the session.
func (s *DebateService) SubmitArgument(ctx context.Context, debateID, userID, content string) (*models.Debate, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, status.ErrEmptyArgument
	}

	d, err := s.mutate(ctx, debateID, func(d *models.Debate) error {
		if err := s.checkSubmittable(d, userID); err != nil {
			return err
		}
		s.appendArgument(d, userID, content, false)
		return nil
	})
	if err != nil {
		s.monitor.TrackDebate("submit", "error")
		return nil, err
	}

	s.monitor.TrackDebate("submit", "success")
	return s.afterAdvance(ctx, d)
}

func (s *DebateService) checkSubmittable(d *models.Debate, userID string) error {
	if d.Terminal() {
		return status.ErrDebateCompleted
	}
	if d.Status != models.StatusActive {
		return status.ErrDebateNotActive
	}
	if d.Participant(userID) == nil {
		return status.ErrNotParticipant
	}
	if d.CurrentTurn != userID {
		return status.ErrNotYourTurn
	}
	return nil
}

// appendArgument records the argument and moves the turn pointer. The
// round increments when the turn wraps back to the first speaker.
func (s *DebateService) appendArgument(d *models.Debate, userID, content string, auto bool) {
	d.Arguments = append(d.Arguments, models.Argument{
		ID:          utils.NewRecordID(),
		UserID:      userID,
		Content:     content,
		Round:       d.CurrentRound,
		WordCount:   models.CountWords(content),
		SubmittedAt: time.Now().UTC(),
		Auto:        auto,
	})

	next := d.NextTurn(userID)
	if next == d.TurnOrder[0] {
		d.CurrentRound++
	}
	d.CurrentTurn = next
	d.TurnDeadline = time.Now().Add(time.Duration(d.TimePerTurn) * time.Second).Unix()
}

// afterAdvance runs the post-write effects of a turn change: completing
// the session when rounds are exhausted, otherwise rescheduling the
// deadline and pushing the turn event.
func (s *DebateService) afterAdvance(ctx context.Context, d *models.Debate) (*models.Debate, error) {
	if d.CurrentRound > d.MaxRounds {
		if err := s.finalize(ctx, d.ID, models.EndReasonRounds); err != nil {
			return nil, err
		}
		return s.Session(ctx, d.ID)
	}

	s.scheduleDeadline(ctx, d.ID, d.TurnDeadline)
	s.notifier.PublishToDebate(d.ID, map[string]any{
		"type":          "turn_changed",
		"current_turn":  d.CurrentTurn,
		"current_round": d.CurrentRound,
		"deadline":      d.TurnDeadline,
	})
	s.notifyTurn(d)
	return d, nil
}

// EndDebate is the manual termination path. It refuses while rounds
// remain; judging and settlement run exactly as the automatic path.
func (s *DebateService) EndDebate(ctx context.Context, debateID string) error {
	d, err := s.Session(ctx, debateID)
	if err != nil {
		return err
	}
	if d.Terminal() {
		return nil
	}
	if d.CurrentRound <= d.MaxRounds {
		return status.ErrRoundsRemaining
	}
	return s.finalize(ctx, debateID, models.EndReasonManual)
}

// LeaveDebate abandons a non-terminal session on behalf of userID.
// Leaving an already-terminal session is a no-op.
func (s *DebateService) LeaveDebate(ctx context.Context, debateID, userID string) error {
	current, err := s.Session(ctx, debateID)
	if err != nil {
		return err
	}
	if current.Participant(userID) == nil {
		return status.ErrNotParticipant
	}
	if current.Terminal() {
		return nil
	}

	_, err = s.mutate(ctx, debateID, func(d *models.Debate) error {
		if d.Participant(userID) == nil {
			return status.ErrNotParticipant
		}
		if d.Terminal() {
			return nil
		}
		now := time.Now().UTC()
		d.Status = models.StatusAbandoned
		d.AbandonedBy = userID
		d.EndedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	s.clearDeadline(ctx, debateID)
	s.monitor.TrackDebate("abandon", "success")
	s.notifier.PublishToDebate(debateID, map[string]any{
		"type":         "debate_abandoned",
		"abandoned_by": userID,
	})
	slog.Info("debate abandoned", "debate_id", debateID, "user_id", userID)
	return nil
}

// finalize drives the single active→completed transition: judging,
// rating settlement, and stats. Re-entry on an already-terminal session
// is a no-op, so settlement applies at most once.
func (s *DebateService) finalize(ctx context.Context, debateID, trigger string) error {
	d, err := s.Session(ctx, debateID)
	if err != nil {
		return err
	}
	if d.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	fields := store.Document{
		"status":   models.StatusCompleted,
		"ended_at": now,
	}

	var outcomes map[string]RatingOutcome

	if len(d.Arguments) < 2 {
		fields["end_reason"] = models.EndReasonInsufficient
	} else {
		judgment, judgeErr := s.judgeWithMetrics(ctx, d)
		if judgeErr != nil {
			slog.Error("judging failed, completing without judgment",
				"debate_id", debateID, "error", judgeErr)
			fields["end_reason"] = models.EndReasonError
		} else if d.Practice() {
			// practice sessions keep the verdict but never touch ratings
			fields["end_reason"] = trigger
			fields["judgment"] = judgment
		} else {
			fields["end_reason"] = trigger
			fields["judgment"] = judgment

			outcomes, err = s.ratings.SettleRatings(d.Participants, judgment.Winner)
			if err != nil {
				if errors.Is(err, status.ErrUnsupportedCardinality) {
					slog.Warn("rating settlement skipped for non-pair debate",
						"debate_id", debateID, "participants", len(d.Participants))
					outcomes = nil
				} else {
					return err
				}
			}
			if outcomes != nil {
				ratings := make(map[string]int, len(outcomes))
				changes := make(map[string]int, len(outcomes))
				for userID, o := range outcomes {
					ratings[userID] = o.After
					changes[userID] = o.Change
				}
				fields["ratings"] = ratings
				fields["rating_changes"] = changes
			}
		}
	}

	if err := s.store.UpdateIf(ctx, store.CollectionDebates, debateID, d.Version, fields); err != nil {
		if errors.Is(err, status.ErrConflict) {
			// another finalizer or a late submit won the version race;
			// re-check and let the winner's settlement stand
			fresh, freshErr := s.Session(ctx, debateID)
			if freshErr == nil && fresh.Terminal() {
				return nil
			}
			return err
		}
		return err
	}

	s.clearDeadline(ctx, debateID)
	s.applyStats(ctx, outcomes)

	s.monitor.TrackDebate("complete", "success")
	s.notifier.PublishToDebate(debateID, map[string]any{
		"type":       "debate_completed",
		"end_reason": fields["end_reason"],
	})
	slog.Info("debate completed", "debate_id", debateID, "end_reason", fields["end_reason"])
	return nil
}

func (s *DebateService) judgeWithMetrics(ctx context.Context, d *models.Debate) (*models.Judgment, error) {
	started := time.Now()
	judgment, err := s.judge.Judge(ctx, d)
	if err != nil {
		s.monitor.TrackJudgeDuration("error", time.Since(started))
		return nil, err
	}
	s.monitor.TrackJudgeDuration("success", time.Since(started))
	return judgment, nil
}

// applyStats folds each participant's outcome into user_debate_stats.
// Only the finalizer that won the completed transition reaches here, so
// deltas apply once.
func (s *DebateService) applyStats(ctx context.Context, outcomes map[string]RatingOutcome) {
	for userID, outcome := range outcomes {
		stats := &models.UserStats{UserID: userID, Rating: outcome.Before}
		doc, err := s.store.Get(ctx, store.CollectionStats, userID)
		if err == nil {
			if loaded, loadErr := models.UserStatsFromDocument(doc); loadErr == nil {
				stats = loaded
			}
		} else if !errors.Is(err, status.ErrNotFound) {
			slog.Error("failed to load user stats", "user_id", userID, "error", err)
			continue
		}

		stats.Record(outcome.After, outcome.Result)

		updated, err := stats.ToDocument()
		if err != nil {
			continue
		}
		if err := s.store.Set(ctx, store.CollectionStats, userID, updated); err != nil {
			slog.Error("failed to save user stats", "user_id", userID, "error", err)
		}

		if s.leaderboard != nil {
			if err := s.leaderboard.Record(ctx, userID, outcome.After); err != nil {
				slog.Error("failed to update leaderboard", "user_id", userID, "error", err)
			}
		}
	}
}

// mutate runs a read-modify-conditional-write cycle with bounded retry
// on version conflicts.
func (s *DebateService) mutate(ctx context.Context, debateID string, apply func(*models.Debate) error) (*models.Debate, error) {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		d, err := s.Session(ctx, debateID)
		if err != nil {
			return nil, err
		}

		if err := apply(d); err != nil {
			return nil, err
		}

		doc, err := d.ToDocument()
		if err != nil {
			return nil, err
		}
		delete(doc, "version")

		if err := s.store.UpdateIf(ctx, store.CollectionDebates, debateID, d.Version, doc); err != nil {
			if errors.Is(err, status.ErrConflict) {
				s.monitor.TrackConflictRetry()
				lastErr = err
				continue
			}
			return nil, err
		}

		d.Version++
		return d, nil
	}
	return nil, lastErr
}

// --- timeout enforcement ---

func (s *DebateService) scheduleDeadline(ctx context.Context, debateID string, deadline int64) {
	if err := s.redis.ZAdd(ctx, deadlineKey, redis.Z{
		Score:  float64(deadline),
		Member: debateID,
	}).Err(); err != nil {
		slog.Error("failed to schedule turn deadline", "debate_id", debateID, "error", err)
	}
}

func (s *DebateService) clearDeadline(ctx context.Context, debateID string) {
	if err := s.redis.ZRem(ctx, deadlineKey, debateID).Err(); err != nil {
		slog.Error("failed to clear turn deadline", "debate_id", debateID, "error", err)
	}
}

// ScheduleActiveDeadline registers an activated debate with the timeout
// manager. Called after RegisterParticipant flips the session active.
func (s *DebateService) ScheduleActiveDeadline(ctx context.Context, d *models.Debate) {
	if d.Status == models.StatusActive && d.TurnDeadline > 0 {
		s.scheduleDeadline(ctx, d.ID, d.TurnDeadline)
	}
}

// timeoutManager is the one goroutine enforcing all turn deadlines,
// following the centralized-ticker shape of the queue timeout sweep.
func (s *DebateService) timeoutManager() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TimeoutInterval)
	defer ticker.Stop()

	slog.Info("turn timeout manager started", "interval", s.cfg.TimeoutInterval)

	for {
		select {
		case <-ticker.C:
			s.sweepDeadlines(context.Background())
		case <-s.stopChan:
			slog.Info("turn timeout manager stopping")
			return
		}
	}
}

func (s *DebateService) sweepDeadlines(ctx context.Context) {
	now := time.Now().Unix()
	expired, err := s.redis.ZRangeByScore(ctx, deadlineKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		slog.Error("deadline sweep failed", "error", err)
		return
	}

	for _, debateID := range expired {
		s.enforceDeadline(ctx, debateID, now)
	}
}

// enforceDeadline auto-submits a placeholder for the overdue speaker.
// The debate document is the source of truth: a deadline that moved
// after this sweep read the set is rescheduled, not fired.
func (s *DebateService) enforceDeadline(ctx context.Context, debateID string, now int64) {
	d, err := s.Session(ctx, debateID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			s.clearDeadline(ctx, debateID)
		}
		return
	}

	if d.Status != models.StatusActive {
		s.clearDeadline(ctx, debateID)
		return
	}
	if d.TurnDeadline > now {
		s.scheduleDeadline(ctx, debateID, d.TurnDeadline)
		return
	}

	overdue := d.CurrentTurn
	updated, err := s.mutate(ctx, debateID, func(d *models.Debate) error {
		if d.Status != models.StatusActive || d.CurrentTurn != overdue || d.TurnDeadline > now {
			// a submit slipped in between the read and the write
			return nil
		}
		s.appendArgument(d, overdue, models.AutoArgumentContent, true)
		return nil
	})
	if err != nil {
		slog.Error("failed to enforce turn deadline", "debate_id", debateID, "error", err)
		return
	}
	if updated.CurrentTurn == overdue && !updated.Terminal() {
		// the guard inside mutate skipped the append
		s.scheduleDeadline(ctx, debateID, updated.TurnDeadline)
		return
	}

	s.monitor.TrackTurnTimeout()
	slog.Info("turn timed out, auto-submitted", "debate_id", debateID, "user_id", overdue)

	if _, err := s.afterAdvance(ctx, updated); err != nil {
		slog.Error("failed to advance after timeout", "debate_id", debateID, "error", err)
	}
}
