package evolution

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	firstTurnTemplate = "Generate an image based on this prompt: '%s'. Provide a description of the image."

	evolvePrompt = "Based on the previous image, select one important detail for you independently of the rest of the image (e.g., a specific object, character, or element). " +
		"Describe your choice in text and then imagine a new story in which that detail is preserved as a detail of the story, not necessarily the main subject of the image. " +
		"Then, generate a new image from your story keeping only this detail recognizable."

	artistCaptionTemplate = "Visual response to director's guidance: %s"

	// prevTextWindow is how much of the previous turn's text goes into a directed prompt.
	prevTextWindow = 200
)

// FirstTurnPrompt is the prompt for the first generated turn.
func FirstTurnPrompt(initialPrompt string) string {
	return fmt.Sprintf(firstTurnTemplate, initialPrompt)
}

// EvolvePrompt is the fixed prompt for every later single-model turn.
func EvolvePrompt() string {
	return evolvePrompt
}

// Mode selects the phrasing of directed prompts.
type Mode string

const (
	ModeAutonomousStory  Mode = "Autonomous Story"
	ModeVisualEvolution  Mode = "Visual Evolution"
	ModeSurrealInjection Mode = "Surreal Injection"
	ModeFreeImagination  Mode = "Free Imagination"
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeAutonomousStory, ModeVisualEvolution, ModeSurrealInjection, ModeFreeImagination}

// ParseMode accepts a mode name case-insensitively. Unknown names are Free Imagination.
func ParseMode(s string) Mode {
	for _, m := range Modes {
		if strings.EqualFold(string(m), strings.TrimSpace(s)) {
			return m
		}
	}
	return ModeFreeImagination
}

// directedPrompt holds what a directed turn's prompt is built from.
type directedPrompt struct {
	ActorName    string
	DirectorName string
	Guidance     string
	PrevText     string
	PrevImage    string
	WorldBible   map[string]any
	Mode         Mode
	Style        string
}

func (p directedPrompt) base() string {
	return fmt.Sprintf("You are %s, directed by %s. %s", p.ActorName, p.DirectorName, p.Guidance)
}

func (p directedPrompt) prevTextWindow() string {
	r := []rune(p.PrevText)
	if len(r) > prevTextWindow {
		r = r[:prevTextWindow]
	}
	return string(r)
}

func (p directedPrompt) worldJSON() string {
	world := p.WorldBible
	if world == nil {
		world = map[string]any{}
	}
	raw, err := json.Marshal(world)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// artist returns the artist prompt and the description of the image it asks for.
func (p directedPrompt) artist() (prompt, description string) {
	switch p.Mode {
	case ModeAutonomousStory:
		prompt = fmt.Sprintf("%s Based on previous narrative: '%s...' and visual: '%s'. World bible: %s. Generate a new image visualizing the story progression in %s style, maintaining character and scene consistency. Focus only on the visual representation - no narrative text needed.",
			p.base(), p.prevTextWindow(), p.PrevImage, p.worldJSON(), p.Style)
		description = fmt.Sprintf("Visual representation of the directed story progression in %s style.", p.Style)
	case ModeVisualEvolution:
		prompt = fmt.Sprintf("%s Based on previous visual: '%s'. Evolve the image according to the direction provided. Generate the transformed visual in %s style. Focus solely on image generation.",
			p.base(), p.PrevImage, p.Style)
		description = fmt.Sprintf("Evolved image per director's guidance in %s style.", p.Style)
	case ModeSurrealInjection:
		prompt = fmt.Sprintf("%s Based on previous: '%s' and '%s'. Inject surreal elements visually. Generate the surreal image in %s style. Visual focus only.",
			p.base(), p.prevTextWindow(), p.PrevImage, p.Style)
		description = fmt.Sprintf("Surreal visual injection in %s style.", p.Style)
	default:
		prompt = fmt.Sprintf("%s Based on previous narrative: '%s' and visual: '%s', generate a new imaginative image in %s style. Purely visual output.",
			p.base(), p.prevTextWindow(), p.PrevImage, p.Style)
		description = fmt.Sprintf("Imaginative directed image in %s style.", p.Style)
	}
	return prompt, description
}

func (p directedPrompt) storyteller() string {
	switch p.Mode {
	case ModeAutonomousStory:
		return fmt.Sprintf("%s Provide a detailed narrative continuation or development of the story. Analyze: '%s...' and '%s'. World bible: %s. Focus on plot, characters, and tension without generating a new image.",
			p.base(), p.prevTextWindow(), p.PrevImage, p.worldJSON())
	case ModeVisualEvolution:
		return fmt.Sprintf("%s Describe how the visual elements should evolve in the story context. Analyze: '%s'. Provide narrative guidance for the artist.",
			p.base(), p.PrevImage)
	case ModeSurrealInjection:
		return fmt.Sprintf("%s Develop the surreal narrative twist. From '%s...' and '%s', create the story element.",
			p.base(), p.prevTextWindow(), p.PrevImage)
	default:
		return fmt.Sprintf("%s Provide imaginative narrative or conceptual development following this direction. Collaborate through story elements.",
			p.base())
	}
}

// ConversationContext renders turns as "<name>: <text>" and
// "<name> created: <image description>" lines.
func ConversationContext(turns []Turn) string {
	var lines []string
	for _, t := range turns {
		if t.Text != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", t.ActorName, t.Text))
		}
		if t.ImageDescription != "" {
			lines = append(lines, fmt.Sprintf("%s created: %s", t.ActorName, t.ImageDescription))
		}
	}
	return strings.Join(lines, "\n")
}
