package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"quizroom/internal/api"
	"quizroom/internal/config"
)

// NewCreateCmd builds the subcommand that creates (and optionally starts) a
// room on the backend.
func NewCreateCmd(configPath, serverURL *string) *cobra.Command {
	var (
		timePerQuestion   int
		numRounds         int
		questionsPerRound int
		start             bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new trivia room",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			base := resolveServerURL(cfg, *serverURL)
			client := api.NewClient(base)

			if timePerQuestion == 0 {
				timePerQuestion = cfg.Game.TimePerQuestion
			}
			if numRounds == 0 {
				numRounds = cfg.Game.NumRounds
			}
			if questionsPerRound == 0 {
				questionsPerRound = cfg.Game.QuestionsPerRound
			}
			room, err := client.CreateRoom(cmd.Context(), api.CreateRoomRequest{
				TimePerQuestion:   timePerQuestion,
				NumRounds:         numRounds,
				QuestionsPerRound: questionsPerRound,
			})
			if err != nil {
				return err
			}
			if start {
				room, err = client.StartRoom(cmd.Context(), room.ID)
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "room %s (%s), %d round(s), %ds per question\n",
				room.ID, room.Status, room.NumRounds, room.TimePerQuestion)
			return nil
		},
	}
	cmd.Flags().IntVar(&timePerQuestion, "time-per-question", 0, "seconds per question (0: config/default)")
	cmd.Flags().IntVar(&numRounds, "rounds", 0, "number of rounds (0: config/default)")
	cmd.Flags().IntVar(&questionsPerRound, "questions-per-round", 0, "questions per round (0: config/default)")
	cmd.Flags().BoolVar(&start, "start", false, "start the game immediately")
	return cmd
}

func resolveServerURL(cfg config.Config, flag string) string {
	if flag != "" {
		return flag
	}
	if cfg.Server.URL != "" {
		return cfg.Server.URL
	}
	return "http://localhost:8080"
}
