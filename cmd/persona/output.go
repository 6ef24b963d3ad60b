package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kalambet/persona/internal/api"
	"github.com/kalambet/persona/internal/keypool"
	"github.com/kalambet/persona/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// notify writes a one-line marked message to stderr; stdout carries only
// command results.
func notify(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notify(colorGreen, "✓", format, args...) }
func printError(format string, args ...any) { notify(colorRed, "✗", format, args...) }
func printWarning(format string, args ...any) { notify(colorYellow, "⚠", format, args...) }

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printPools renders one header per pool followed by its credentials.
func printPools(w io.Writer, pools []api.PoolStatus) {
	for _, p := range pools {
		health := colorGreen
		switch {
		case p.Eligible == 0:
			health = colorRed
		case p.Eligible < p.Size:
			health = colorYellow
		}
		fmt.Fprintf(w, "%s  %s\n", colorize(colorBold, p.Provider),
			colorize(health, fmt.Sprintf("%d/%d eligible", p.Eligible, p.Size)))
		for _, c := range p.Credentials {
			fmt.Fprintln(w, formatCredential(c))
		}
	}
}

func formatCredential(c keypool.CredentialStatus) string {
	state := colorize(colorGreen, "ok")
	if !c.Eligible {
		state = colorize(colorYellow, "cooling down")
		if !c.CooldownUntil.IsZero() {
			state += " until " + c.CooldownUntil.Format("15:04:05")
		}
	}
	return fmt.Sprintf("  %-14s %s  uses=%d errors=%d  %s",
		c.Name, c.Secret, c.UsageCount, c.ErrorCount, state)
}

func formatSavedProfile(sp storage.SavedProfile) string {
	return fmt.Sprintf("%s  %s  %d followers",
		colorize(colorCyan, "@"+sp.Profile.Username),
		sp.Profile.Name,
		sp.Profile.FollowersCount,
	)
}
