package chainwatch

import (
	"fmt"
	"strings"
	"time"

	"brotherowl/internal/domain"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct {
	WarnTimeout time.Duration
}

func NewFormatter(warn time.Duration) *Formatter {
	return &Formatter{WarnTimeout: warn}
}

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

// Render draws one status line for the chain.
func (f *Formatter) Render(sum domain.ChainSummary, dir domain.Direction, src domain.Source, mode RenderMode) string {
	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}

	sb.WriteString(colorize("[OWL] ", ansiDim))

	count := "--"
	if sum.Known {
		count = fmt.Sprintf("%d", sum.Current)
		if sum.Max > 0 {
			count += fmt.Sprintf("/%d", sum.Max)
		}
	}
	cCol := ansiYellow
	switch dir {
	case domain.DirectionUp:
		cCol = ansiGreen
	case domain.DirectionDown:
		cCol = ansiRed
	}
	sb.WriteString("chain ")
	sb.WriteString(colorize(count, cCol))

	if sum.Known && sum.Current > 0 {
		tCol := ansiDim
		if time.Duration(sum.Timeout)*time.Second <= f.WarnTimeout {
			tCol = ansiRed
		}
		sb.WriteString(" ")
		sb.WriteString(colorize(fmt.Sprintf("timeout=%ds", sum.Timeout), tCol))
	}
	if sum.Cooldown > 0 {
		sb.WriteString(" ")
		sb.WriteString(colorize(fmt.Sprintf("cooldown=%ds", sum.Cooldown), ansiYellow))
	}

	sb.WriteString(colorize(" via "+string(src), ansiDim))

	if mode == RenderLive {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}
