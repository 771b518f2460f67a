// scraper bulk-downloads the if-archive's zcode directory into a local
// stories directory for gametest to chew on.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const indexURL = "https://www.ifarchive.org/indexes/if-archive/games/zcode/"

var storyFilePattern = regexp.MustCompile(`.*\.z[12345678]$`)

type game struct {
	name string
	url  string
}

func main() {
	outputDir := flag.String("output", "stories", "Directory to download story files into")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Printf("Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	c := &http.Client{Timeout: 30 * time.Second}

	games, err := fetchGameList(c)
	if err != nil {
		fmt.Printf("Failed to fetch index: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d games to download\n", len(games))

	downloaded := 0
	skipped := 0
	failed := 0

	for i, g := range games {
		destPath := filepath.Join(*outputDir, g.name)

		if _, err := os.Stat(destPath); err == nil {
			fmt.Printf("[%d/%d] Skipping %s (already exists)\n", i+1, len(games), g.name)
			skipped++
			continue
		}

		fmt.Printf("[%d/%d] Downloading %s... ", i+1, len(games), g.name)

		size, err := downloadGame(c, g, destPath)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failed++
			continue
		}

		fmt.Printf("OK (%d bytes)\n", size)
		downloaded++

		// Be nice to the server
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Printf("\nDone! Downloaded: %d, Skipped: %d, Failed: %d\n", downloaded, skipped, failed)

	writeManifest(filepath.Join(*outputDir, "manifest.txt"), games)
}

func fetchGameList(c *http.Client) ([]game, error) {
	res, err := c.Get(indexURL)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close() // nolint:errcheck

	if res.StatusCode != 200 {
		return nil, fmt.Errorf("bad status code: %d", res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, err
	}

	var games []game
	doc.Find("dl dt").Each(func(i int, s *goquery.Selection) {
		href, exists := s.Find("a").Attr("href")
		if !exists || !storyFilePattern.MatchString(href) {
			return
		}

		games = append(games, game{
			name: filepath.Base(href),
			url:  "https://www.ifarchive.org" + href,
		})
	})

	return games, nil
}

func downloadGame(c *http.Client, g game, destPath string) (int, error) {
	resp, err := c.Get(g.url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != 200 {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return 0, err
	}

	return len(data), nil
}

func writeManifest(path string, games []game) {
	var manifest strings.Builder
	for _, g := range games {
		manifest.WriteString(g.name + "\n")
	}
	os.WriteFile(path, []byte(manifest.String()), 0644) // nolint:errcheck
	fmt.Printf("Wrote manifest to %s\n", path)
}
