package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"novelnest/internal/cli/scheme/colours"
	"novelnest/internal/config"
	"novelnest/internal/story/nest"

	"github.com/spf13/cobra"
)

func main() {

	if err := config.Init(); err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}
	config.ApplyLogging(cfg.Log)

	app := nest.NewNovelNest(cfg)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		app.Cancel()
		app.Stop()
		fmt.Println("\n" + colours.Warning.Sprint("👋 Goodbye! Until the next chapter 🌙"))
		os.Exit(0)
	}()

	rootCmd := &cobra.Command{
		Use:   "novelnest",
		Short: "🌙 A narrated visual novel that writes itself",
		Long: `
┌─────────────────────────────────────┐
│  📖 Welcome to NovelNest! 🌙        │
│  Stories imagined as you choose     │
│  Narrated, scored and replayable    │
└─────────────────────────────────────┘

NovelNest generates a branching story from a setting of your choice,
narrates every scene, scores it with music and records the path you
took so it can be replayed later.
		`,
		Run: func(cmd *cobra.Command, args []string) {
			app.ShowWelcome()
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "🛰️ Run the story server",
		Long:  "Serve the story API, generated assets and the public web player",
		Run:   app.Serve,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "📋 List recorded stories",
		Long:  "Display the stories recorded on the server, newest first",
		Run:   app.ListStories,
	}

	playCmd := &cobra.Command{
		Use:   "play <setting>",
		Short: "📖 Start a new story",
		Long:  "Generate a new story from a setting and play it with narration",
		Args:  cobra.MinimumNArgs(1),
		Run:   app.Play,
	}

	replayCmd := &cobra.Command{
		Use:   "replay <story-id>",
		Short: "🔁 Replay a recorded story",
		Long:  "Play back a recorded story; only the recorded choices advance it",
		Args:  cobra.ExactArgs(1),
		Run:   app.Replay,
	}

	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "🎙️ List narration engines and voices",
		Long:  "Show the TTS engines usable here and the voices the selected engine offers",
		Run:   app.Voices,
	}

	musicCmd := &cobra.Command{
		Use:   "music",
		Short: "🎵 Inspect music generation",
	}
	musicStatusCmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the raw provider status of a music task",
		Args:  cobra.ExactArgs(1),
		Run:   app.MusicStatus,
	}
	musicCmd.AddCommand(musicStatusCmd)

	// Add flags
	playCmd.Flags().StringSliceP("image", "i", nil, "Reference image to upload (repeatable)")
	replayCmd.Flags().BoolP("local", "l", false, "Read the story from the local stories directory")
	voicesCmd.Flags().StringP("engine", "e", "", "TTS engine to query (defaults to the configured one)")
	voicesCmd.Flags().String("check", "", "Confirm that the engine accepts this voice")

	rootCmd.AddCommand(serveCmd, listCmd, playCmd, replayCmd, voicesCmd, musicCmd)

	if err := rootCmd.Execute(); err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}
	app.Stop()
}
