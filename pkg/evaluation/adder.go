package evaluation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evermem/evermem-go/pkg/core"
	"github.com/evermem/evermem-go/pkg/logging"
)

const (
	// writeRetries bounds how often a failed Write is retried before the
	// whole conversation is abandoned.
	writeRetries = 3

	// writeRetryPause is the wait between Write retries.
	writeRetryPause = time.Second
)

// Adder ingests LOCOMO conversations into a memory client, one user id per
// speaker per conversation.
type Adder struct {
	client *core.Client
	logger *logging.Logger

	retries int
	pause   time.Duration
}

// NewAdder returns an Adder over the given client. A nil logger disables
// logging.
func NewAdder(client *core.Client, logger *logging.Logger) *Adder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Adder{
		client:  client,
		logger:  logger,
		retries: writeRetries,
		pause:   writeRetryPause,
	}
}

// ProcessAll ingests every conversation of the dataset in order.
func (a *Adder) ProcessAll(ctx context.Context, items []Item) error {
	for idx, item := range items {
		a.logger.Info("ingesting conversation",
			"conversation", idx,
			"sessions", len(item.Conversation.Sessions),
		)
		if err := a.ProcessConversation(ctx, item, idx); err != nil {
			return fmt.Errorf("conversation %d: %w", idx, err)
		}
	}
	return nil
}

// ProcessConversation wipes both speakers' memories and re-ingests the
// conversation session by session. Each session is rendered twice, once
// from each speaker's perspective with the roles mirrored, and the two
// ingest streams run concurrently under their own user ids.
func (a *Adder) ProcessConversation(ctx context.Context, item Item, idx int) error {
	conv := item.Conversation
	aID := SpeakerUserID(conv.SpeakerA, idx)
	bID := SpeakerUserID(conv.SpeakerB, idx)

	// Start from a clean slate so reruns stay deterministic.
	if _, err := a.client.ForgetUser(ctx, aID); err != nil {
		return fmt.Errorf("forget %s: %w", aID, err)
	}
	if _, err := a.client.ForgetUser(ctx, bID); err != nil {
		return fmt.Errorf("forget %s: %w", bID, err)
	}

	for _, session := range conv.Sessions {
		pairsA := perspectivePairs(session.Chats, conv.SpeakerA)
		pairsB := perspectivePairs(session.Chats, conv.SpeakerB)
		a.logger.Info("ingesting session",
			"conversation", idx,
			"session", session.Key,
			"pairs_a", len(pairsA),
			"pairs_b", len(pairsB),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return a.addPairsForSpeaker(gctx, aID, pairsA)
		})
		g.Go(func() error {
			return a.addPairsForSpeaker(gctx, bID, pairsB)
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("session %s: %w", session.Key, err)
		}
	}
	return nil
}

// addPairsForSpeaker writes each pair under the given user id, passing all
// earlier pairs of the session as conversation history.
func (a *Adder) addPairsForSpeaker(ctx context.Context, userID string, pairs []core.Turn) error {
	for i, pair := range pairs {
		recent := pairs[:i]

		var err error
		for attempt := 1; attempt <= a.retries; attempt++ {
			_, err = a.client.Write(ctx, recent, pair.User, pair.Assistant, core.WithUserID(userID))
			if err == nil {
				break
			}
			a.logger.Warn("write failed, retrying",
				"user_id", userID,
				"pair", i,
				"attempt", attempt,
				"error", err,
			)
			if attempt < a.retries {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(a.pause):
				}
			}
		}
		if err != nil {
			return fmt.Errorf("write pair %d for %s: %w", i, userID, err)
		}
	}
	return nil
}

// perspectivePairs renders a session's chats as ordered user/assistant pairs
// from one speaker's perspective: that speaker's utterances take the user
// slot and the partner's the assistant slot, so the same session yields
// mirrored streams for the two speakers. Every chat keeps its speaker name
// as a prefix so attribution survives extraction. Consecutive utterances by
// the same side fold into one slot; a turn closes when the speaker talks
// again after the partner has replied. Either slot may be empty when a
// session opens or closes one-sided.
func perspectivePairs(chats []Chat, speaker string) []core.Turn {
	var pairs []core.Turn
	var current core.Turn
	for _, chat := range chats {
		line := fmt.Sprintf("%s: %s", chat.Speaker, chat.Text)
		if chat.Speaker == speaker {
			if current.Assistant != "" {
				pairs = append(pairs, current)
				current = core.Turn{}
			}
			current.User = joinLines(current.User, line)
		} else {
			current.Assistant = joinLines(current.Assistant, line)
		}
	}
	if current != (core.Turn{}) {
		pairs = append(pairs, current)
	}
	return pairs
}

func joinLines(existing, line string) string {
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}
