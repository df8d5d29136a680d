package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// handleFirstRunDownload offers to fetch a model whose files are missing
func handleFirstRunDownload(ctx context.Context, in io.Reader, cfg ModelConfig, store *ModelStore) error {
	fmt.Println()
	fmt.Println("\033[93m┌─────────────────────────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[93m│                     First-time Setup                        │\033[0m")
	fmt.Println("\033[93m└─────────────────────────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("Model \033[96m%s\033[0m is not in %s yet.\n", cfg.Name, store.Root())
	fmt.Println()
	fmt.Print("Download it now? [Y/n] ")

	if !confirm(in) {
		return fmt.Errorf("model download declined")
	}

	fmt.Println()
	if err := EnsureModelAssets(ctx, cfg, store, printProgress); err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("\033[92mModel ready!\033[0m")
	return nil
}

// confirm reads one line and treats empty, y and yes as consent
func confirm(in io.Reader) bool {
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "" || response == "y" || response == "yes"
}

// printProgress rewrites the current terminal line
func printProgress(msg string) {
	fmt.Printf("\r\033[K%s", msg)
}

// truncateText shortens text to at most n runes, marking the cut with "..."
func truncateText(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// wrapText wraps text to a specified width, preserving paragraph breaks
func wrapText(text string, width int) []string {
	var result []string
	paragraphs := strings.Split(text, "\n")

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			result = append(result, "")
			continue
		}

		words := strings.Fields(para)
		var line string
		for _, word := range words {
			if line == "" {
				line = word
			} else if utf8.RuneCountInString(line)+1+utf8.RuneCountInString(word) <= width {
				line += " " + word
			} else {
				result = append(result, line)
				line = word
			}
		}
		if line != "" {
			result = append(result, line)
		}
	}

	return result
}

// formatBytes renders a size with a binary unit
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
