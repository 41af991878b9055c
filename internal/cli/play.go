package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quizroom/internal/api"
	"quizroom/internal/config"
	"quizroom/internal/domain"
	"quizroom/internal/phase"
	"quizroom/internal/session"
	"quizroom/internal/token"
	"quizroom/internal/transport/ws"
)

// NewPlayCmd builds the subcommand that joins a room and plays it from the
// terminal. The rendering here is a deliberately plain harness around the
// session core: one line per phase change, answers typed as option numbers.
func NewPlayCmd(configPath, serverURL *string) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "play <room-id>",
		Short: "Join a room and play from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runPlay(cmd.Context(), cfg, resolveServerURL(cfg, *serverURL), args[0], name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (required on first join)")
	return cmd
}

func runPlay(ctx context.Context, cfg config.Config, base, roomID, name string) error {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)
	client := api.NewClient(base, api.WithLogger(log))

	store, err := token.Open(tokenPath(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	playerID, playerToken, err := resolvePlayer(ctx, client, store, roomID, name)
	if err != nil {
		return err
	}

	sess := session.New(roomID, wsURL(base, roomID), playerID, playerToken, client,
		session.WithLogger(log),
		session.WithReconnectDelay(config.Duration(cfg.Transport.ReconnectDelay, ws.DefaultReconnectDelay)))
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Stop()

	answers := readAnswers(ctx)
	return renderLoop(ctx, sess, answers)
}

// resolvePlayer loads the stored token for the room, joining first when none
// exists. Playing without a token and without a name is a hard precondition
// failure, not a session error.
func resolvePlayer(ctx context.Context, client *api.Client, store *token.Store, roomID, name string) (string, string, error) {
	stored, err := store.Get(roomID)
	if err == nil {
		id, tok, ok := splitStoredToken(stored)
		if ok {
			return id, tok, nil
		}
	}
	if err != nil && !errors.Is(err, domain.ErrNoToken) {
		return "", "", err
	}
	if name == "" {
		return "", "", fmt.Errorf("%w: pass --name to join", domain.ErrNoToken)
	}

	joined, err := client.JoinRoom(ctx, roomID, name)
	if err != nil {
		return "", "", err
	}
	if err := store.Save(roomID, joined.Player.ID+"|"+joined.Token); err != nil {
		return "", "", err
	}
	return joined.Player.ID, joined.Token, nil
}

// Tokens are stored as "playerID|token" so a rejoin restores identity too.
func splitStoredToken(stored string) (string, string, bool) {
	parts := strings.SplitN(stored, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// readAnswers feeds typed option numbers (1-based) from stdin.
func readAnswers(ctx context.Context) <-chan int {
	ch := make(chan int)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			n, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
			if err != nil {
				continue
			}
			select {
			case ch <- n - 1:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func renderLoop(ctx context.Context, sess *session.Session, answers <-chan int) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var lastLine string
	print := func(line string) {
		if line != lastLine {
			fmt.Println(line)
			lastLine = line
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case idx := <-answers:
			if err := sess.SubmitAnswer(ctx, idx); err != nil {
				print("could not submit: " + err.Error())
			}
		case <-ticker.C:
			snap := sess.Snapshot()
			switch snap.State {
			case phase.StateLoading:
				print("waiting for the game to start...")
			case phase.StateQuestion:
				print(questionLine(snap))
			case phase.StateWaiting:
				print("answer locked in, waiting for reveal...")
			case phase.StateSubmitted:
				print(revealLine(snap))
			case phase.StateRoundFinished:
				print(fmt.Sprintf("round finished! next round in %ds\n%s",
					snap.BreakSecondsLeft, leaderboardLines(snap.Context.Leaderboard)))
			case phase.StateNewRound:
				print("new round starting...")
			case phase.StateFinished:
				fmt.Println("game over!")
				fmt.Println(leaderboardLines(snap.Context.Leaderboard))
				return nil
			case phase.StateError:
				return fmt.Errorf("could not load game: %s", snap.Context.ErrMessage)
			}
		}
	}
}

func questionLine(snap session.Snapshot) string {
	room := snap.Context.Room
	if !room.HasQuestions() || snap.Tick.QuestionIndex >= len(room.Questions) {
		return "waiting for question data..."
	}
	q := room.Questions[snap.Tick.QuestionIndex]
	var b strings.Builder
	fmt.Fprintf(&b, "[%ds] Q%d: %s\n", snap.Tick.SecondsLeft, snap.Tick.QuestionIndex+1, q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(&b, "  %d) %s\n", i+1, opt)
	}
	return strings.TrimRight(b.String(), "\n")
}

func revealLine(snap session.Snapshot) string {
	room := snap.Context.Room
	if !room.HasQuestions() || snap.Tick.QuestionIndex >= len(room.Questions) {
		return "review..."
	}
	q := room.Questions[snap.Tick.QuestionIndex]
	verdict := "wrong"
	if snap.Context.LastCorrect {
		verdict = "correct"
	}
	// Server data is untrusted here; an out-of-range index must not crash
	// the player.
	answer := "?"
	if q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
		answer = q.Options[q.CorrectIndex]
	}
	line := fmt.Sprintf("[%ds] %s! answer: %s", snap.Tick.SecondsLeft, verdict, answer)
	if q.Explanation != "" {
		line += " (" + q.Explanation + ")"
	}
	return line
}

func leaderboardLines(entries []domain.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "  (no scores yet)"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "  #%d %s: %d\n", e.Rank, e.Name, e.Points)
	}
	return strings.TrimRight(b.String(), "\n")
}

func wsURL(base, roomID string) string {
	u := strings.Replace(base, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	return strings.TrimRight(u, "/") + "/ws/" + roomID
}

func tokenPath(cfg config.Config) string {
	if cfg.Token.Path != "" {
		return cfg.Token.Path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "quizroom-tokens.db"
	}
	dir := filepath.Join(home, ".quizroom")
	_ = os.MkdirAll(dir, 0o700)
	return filepath.Join(dir, "tokens.db")
}
