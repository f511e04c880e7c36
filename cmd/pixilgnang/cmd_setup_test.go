package main

import (
	"bufio"
	"strings"
	"testing"

	"github.com/T1murKa41/pixilgnang/internal/config"
)

func TestPrompt(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("\n  custom  \n"))
	if got := prompt(scanner, "first", "default"); got != "default" {
		t.Errorf("expected default on empty input, got %q", got)
	}
	if got := prompt(scanner, "second", "default"); got != "custom" {
		t.Errorf("expected trimmed input, got %q", got)
	}
	if got := prompt(scanner, "eof", "fallback"); got != "fallback" {
		t.Errorf("expected default at EOF, got %q", got)
	}
}

func TestPromptInt(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("abc\n-100123\n"))
	if got := promptInt(scanner, "chat", 0); got != -100123 {
		t.Errorf("expected retry until a number, got %d", got)
	}
	if got := promptInt(scanner, "eof", 7); got != 7 {
		t.Errorf("expected default at EOF, got %d", got)
	}
}

func TestUpsertDestination(t *testing.T) {
	list := []config.Destination{{Key: "pg", ChatID: 1}}
	list = upsertDestination(list, config.Destination{Key: "memes", ChatID: 2})
	list = upsertDestination(list, config.Destination{Key: "pg", ChatID: 3})
	if len(list) != 2 || list[0].ChatID != 3 || list[1].Key != "memes" {
		t.Errorf("unexpected destinations %+v", list)
	}
}
