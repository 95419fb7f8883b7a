package nest

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"novelnest/internal/cli/scheme/colours"
	"novelnest/internal/domain/story"
	"novelnest/internal/playback"
	"novelnest/internal/replay"
	"novelnest/internal/story/assets"
	"novelnest/internal/story/music"
	"novelnest/internal/story/tts"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var errQuit = errors.New("quit")

func (nn *NovelNest) Serve(cmd *cobra.Command, args []string) {
	srv, err := BuildServer(nn.cfg)
	if err != nil {
		colours.Error.Printf("❌ %v\n", err)
		return
	}
	addr := fmt.Sprintf(":%d", nn.cfg.Server.Port)
	colours.Success.Printf("🌙 Serving stories on http://localhost%s\n", addr)
	if err := srv.ListenAndServe(nn.ctx, addr); err != nil {
		colours.Error.Printf("❌ Server stopped: %v\n", err)
	}
}

func (nn *NovelNest) ListStories(cmd *cobra.Command, args []string) {
	lib, err := nn.client.Stories(nn.ctx)
	if err != nil {
		colours.Error.Printf("❌ Could not reach the story server: %v\n", err)
		return
	}

	fmt.Println()
	colours.Title.Println("📚 Recorded Stories 📚")
	fmt.Println()

	for i, s := range lib.Stories {
		fmt.Printf("  %d. ", i+1)
		colours.Title.Printf("%s", s.Title)
		fmt.Printf("\n     🗓  %s | 🎬 %d scenes\n", s.Date.Local().Format("2006-01-02 15:04"), s.Scenes)
		colours.Info.Printf("     ID: %s\n", s.ID)
		fmt.Println()
	}

	if len(lib.Stories) == 0 {
		colours.Warning.Println("🔍 No stories recorded yet.")
	} else {
		colours.Success.Printf("✨ Found %d stories ✨\n", len(lib.Stories))
	}
	if !lib.CreatorMode {
		colours.Muted.Println("Creator mode is disabled on this server; only replay is available.")
	}
}

func (nn *NovelNest) Play(cmd *cobra.Command, args []string) {
	setting := strings.Join(args, " ")
	paths, _ := cmd.Flags().GetStringSlice("image")

	images, err := readImages(paths)
	if err != nil {
		colours.Error.Printf("❌ %v\n", err)
		return
	}

	colours.Info.Println("✨ Imagining your story...")
	scene, storyID, err := nn.client.Start(nn.ctx, setting, images)
	if err != nil {
		colours.Error.Printf("❌ Failed to start story: %v\n", err)
		return
	}
	colours.Title.Printf("\n📖 %s\n", titleOf(scene, setting))
	colours.Muted.Printf("   ID: %s\n", storyID)

	player := nn.engine(playback.Resolver{Fetcher: nn.client})
	go nn.awaitMusic(player, storyID, scene)

	history := []story.Turn{}
	in := bufio.NewReader(os.Stdin)
	for {
		if err := player.Render(nn.ctx, scene, false); err != nil {
			return
		}
		history = append(history, story.Turn{Role: "model", Text: scene.Text()})
		if len(scene.Options) == 0 {
			return
		}

		choice, err := prompt(in, scene.Options)
		if err != nil {
			player.Stop()
			return
		}
		history = append(history, story.Turn{Role: "user", Text: choice})

		colours.Info.Println("✨ The story continues...")
		next, err := nn.client.Next(nn.ctx, storyID, history, choice)
		if err != nil {
			colours.Error.Printf("❌ Failed to continue the story: %v\n", err)
			return
		}
		scene = next
	}
}

// awaitMusic polls for the story's track and starts it once ready.
func (nn *NovelNest) awaitMusic(player *playback.Engine, storyID string, first story.Scene) {
	mc := nn.cfg.Music
	ref, ok := music.Await(nn.ctx, func(ctx context.Context) (music.Result, error) {
		return nn.client.Music(ctx, storyID, first.MusicStyle, first.MusicTitle)
	}, mc.RetryInterval, mc.RetryAttempts)
	if !ok {
		return
	}
	if err := player.PlayMusic(nn.ctx, ref); err != nil {
		logrus.WithError(err).Warn("Could not start music")
	}
}

func (nn *NovelNest) Replay(cmd *cobra.Command, args []string) {
	local, _ := cmd.Flags().GetBool("local")
	storyID := args[0]

	resolver := playback.Resolver{Fetcher: nn.client}
	var (
		st  *story.Story
		err error
	)
	if local {
		store := assets.NewStore(nn.cfg.Server.StoriesDir)
		st, err = store.LoadStory(nn.ctx, storyID)
		resolver.Local = store
	} else {
		st, err = nn.client.LoadStory(nn.ctx, storyID)
	}
	if err != nil {
		colours.Error.Printf("❌ Story '%s' could not be loaded: %v\n", storyID, err)
		return
	}

	player := nn.engine(resolver)
	engine, err := replay.New(st, player, replay.ToneCues{})
	if err != nil {
		colours.Error.Printf("❌ %v\n", err)
		return
	}

	colours.Title.Printf("\n📖 %s\n", st.DisplayTitle())
	if err := player.PlayMusic(nn.ctx, st.Music()); err != nil {
		logrus.WithError(err).Warn("Could not start music")
	}
	if err := engine.Start(nn.ctx); err != nil {
		return
	}

	in := bufio.NewReader(os.Stdin)
	for !engine.Ended() {
		choice, err := prompt(in, story.ReplayOptions(engine.Current()))
		if err != nil {
			player.Stop()
			return
		}
		out, err := engine.Choose(nn.ctx, choice)
		if err != nil {
			return
		}
		switch out {
		case replay.Mismatch:
			colours.Warning.Println("🤔 That is not how this story went. Try again.")
		case replay.Ended:
			colours.Success.Println("✅ End of the recording.")
			return
		}
	}
}

func (nn *NovelNest) MusicStatus(cmd *cobra.Command, args []string) {
	raw, err := nn.client.MusicStatus(nn.ctx, args[0])
	if err != nil {
		colours.Error.Printf("❌ %v\n", err)
		return
	}
	fmt.Println(string(raw))
}

func (nn *NovelNest) Voices(cmd *cobra.Command, args []string) {
	cfg := ttsConfig(nn.cfg.TTS)
	if engine, _ := cmd.Flags().GetString("engine"); engine != "" {
		cfg.Type = engine
	}
	check, _ := cmd.Flags().GetString("check")

	if err := listVoices(nn.ctx, os.Stdout, cfg, check); err != nil {
		colours.Error.Printf("❌ %v\n", err)
	}
}

// listVoices prints the usable engines and the voices of the selected one.
// A non-empty check voice is applied to the engine to confirm it is accepted.
func listVoices(ctx context.Context, w io.Writer, cfg tts.Config, check string) error {
	fmt.Fprintln(w)
	colours.Title.Fprintln(w, "🎙️ Narration Engines 🎙️")
	for _, e := range tts.GetAvailableEngines(cfg) {
		fmt.Fprintf(w, "  • %s\n", e)
	}

	engine, err := tts.NewEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to create tts engine: %w", err)
	}
	if c, ok := engine.(io.Closer); ok {
		defer c.Close()
	}

	fmt.Fprintln(w)
	colours.Title.Fprintf(w, "🗣️ Voices (%s)\n", cfg.Type)
	if enhanced, ok := engine.(tts.EnhancedEngine); ok {
		infos, err := enhanced.GetVoiceInfo(ctx)
		if err != nil {
			return fmt.Errorf("failed to list voices: %w", err)
		}
		for _, v := range infos {
			fmt.Fprintf(w, "  • %s", v.Name)
			colours.Muted.Fprintf(w, " %s %s", v.LanguageCode, strings.ToLower(v.Gender))
			if v.Natural {
				colours.Success.Fprint(w, " ✨")
			}
			fmt.Fprintln(w)
		}
	} else {
		voices, err := engine.GetAvailableVoices(ctx)
		if err != nil {
			return fmt.Errorf("failed to list voices: %w", err)
		}
		for _, v := range voices {
			fmt.Fprintf(w, "  • %s\n", v)
		}
	}

	if check == "" {
		return nil
	}
	if err := engine.SetVoice(check); err != nil {
		return err
	}
	colours.Success.Fprintf(w, "✅ Voice '%s' is available\n", check)
	return nil
}

// prompt reads a choice: an option number or free text.
func prompt(in *bufio.Reader, opts []story.Option) (string, error) {
	for {
		fmt.Println()
		colours.Prompt.Print("👉 Choose an option (number or your own words, 'q' to quit): ")
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		choice, ok := resolveChoice(line, opts)
		if ok {
			return choice, nil
		}
		if strings.TrimSpace(line) == "q" {
			return "", errQuit
		}
	}
}

// resolveChoice maps an option number to its text; anything else is taken
// literally.
func resolveChoice(input string, opts []story.Option) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" || input == "q" {
		return "", false
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(opts) {
		return opts[n-1].Text, true
	}
	return input, true
}

// readImages turns local files into data URLs for upload.
func readImages(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open image %s: %w", p, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read image %s: %w", p, err)
		}
		mime := http.DetectContentType(data)
		out = append(out, "data:"+mime+";base64,"+base64.StdEncoding.EncodeToString(data))
	}
	return out, nil
}

func titleOf(scene story.Scene, setting string) string {
	if scene.Title != "" {
		return scene.Title
	}
	return setting
}
