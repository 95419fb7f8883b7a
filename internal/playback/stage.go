package playback

import (
	"fmt"
	"io"
	"strings"

	"novelnest/internal/cli/scheme/colours"
	"novelnest/internal/domain/story"
)

// Stage is where a scene becomes visible.
type Stage interface {
	ShowImage(ref story.AssetRef)
	AppendText(text string)
	ShowOption(i int, opt story.Option)
	FadeOut()
	RevealTitle(partial string)
	ShowEnd()
}

// TerminalStage renders scenes as coloured text.
type TerminalStage struct {
	w io.Writer
}

func NewTerminalStage(w io.Writer) *TerminalStage {
	return &TerminalStage{w: w}
}

func (t *TerminalStage) ShowImage(ref story.AssetRef) {
	label := "imagen incrustada"
	if ref.IsPath() {
		label = ref.String()
	}
	fmt.Fprintln(t.w)
	colours.Media.Fprintf(t.w, "🖼  %s\n", label)
	fmt.Fprintln(t.w)
}

func (t *TerminalStage) AppendText(text string) {
	fmt.Fprintln(t.w, text)
}

func (t *TerminalStage) ShowOption(i int, opt story.Option) {
	if i == 0 {
		fmt.Fprintln(t.w)
	}
	colours.Option.Fprintf(t.w, "  %d) ", i+1)
	fmt.Fprintln(t.w, opt.Text)
}

func (t *TerminalStage) FadeOut() {
	fmt.Fprint(t.w, strings.Repeat("\n", 3))
}

func (t *TerminalStage) RevealTitle(partial string) {
	colours.Title.Fprintf(t.w, "\r%s", partial)
}

func (t *TerminalStage) ShowEnd() {
	fmt.Fprintln(t.w)
	fmt.Fprintln(t.w)
	colours.Info.Fprintln(t.w, "Fin del contenido disponible.")
}
