package levels

import (
	"fmt"

	"github.com/pkg/errors"
	colors "gopkg.in/go-playground/colors.v1"

	"github.com/askiada/stelp/pkg/pipeline/model"
)

// ErrUnknownTheme is returned for a theme name NewColormap does not
// recognize.
var ErrUnknownTheme = errors.New("unknown levelmap theme")

// themes map level to hex color. The light theme uses darker tones for
// white terminal backgrounds.
var themes = map[string]map[Level]string{
	"default": {
		Trace: "#808080",
		Debug: "#00afff",
		Info:  "#00d700",
		Warn:  "#ffd700",
		Error: "#ff5f5f",
		Fatal: "#ff00af",
	},
	"light": {
		Trace: "#6c6c6c",
		Debug: "#005faf",
		Info:  "#008700",
		Warn:  "#af8700",
		Error: "#d70000",
		Fatal: "#af0087",
	},
}

// Colormap rewrites the severity token of each record with a 24-bit
// ANSI color taken from the selected theme.
type Colormap struct {
	name    string
	palette map[Level]*colors.RGBColor
}

// NewColormap builds the colorizing stage for a named theme.
func NewColormap(name, theme string) (*Colormap, error) {
	if theme == "" {
		theme = "default"
	}
	hexes, ok := themes[theme]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTheme, "%q", theme)
	}
	palette := make(map[Level]*colors.RGBColor, len(hexes))
	for level, hex := range hexes {
		parsed, err := colors.ParseHEX(hex)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to parse theme color %q", hex)
		}
		palette[level] = parsed.ToRGB()
	}
	return &Colormap{name: name, palette: palette}, nil
}

// Name implements pipeline.Stage.
func (c *Colormap) Name() string { return c.name }

// Reset implements pipeline.Stage.
func (c *Colormap) Reset() {}

// Process implements pipeline.Stage. Text records get their first
// severity token wrapped; structured records get the level field value
// wrapped. Records without a detectable level pass unchanged.
func (c *Colormap) Process(rec *model.Record, rctx *model.Context) model.Outcome {
	if rec.IsText() {
		content, err := rec.Text()
		if err != nil {
			return model.Fail(err)
		}
		replaced := false
		rewritten := tokenRe.ReplaceAllStringFunc(content, func(token string) string {
			if replaced {
				return token
			}
			level, ok := Parse(token)
			if !ok {
				return token
			}
			replaced = true
			return c.wrap(level, token)
		})
		if replaced {
			rec.ReplaceText(rewritten)
		}
		return model.Continue(rec)
	}

	fields, err := rec.Structured()
	if err != nil {
		return model.Fail(err)
	}
	for _, key := range levelKeys {
		raw, found := fields.Get(key)
		if !found {
			continue
		}
		s, isString := raw.(string)
		if !isString {
			continue
		}
		level, ok := Parse(s)
		if !ok {
			continue
		}
		fields.Set(key, c.wrap(level, s))
		break
	}
	return model.Continue(rec)
}

func (c *Colormap) wrap(level Level, token string) string {
	rgb, ok := c.palette[level]
	if !ok {
		return token
	}
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm%s\x1b[0m", rgb.R, rgb.G, rgb.B, token)
}
