// Package portfolio builds the single HTTP response the server hands to
// every client: a static portfolio page listing projects.
package portfolio

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"
)

// Project is one entry of the portfolio.
type Project struct {
	Title string `yaml:"title"`
	Desc  string `yaml:"desc"`
	Href  string `yaml:"href"`
}

// Site is everything the page is rendered from.
type Site struct {
	Title    string    `yaml:"title"`
	Heading  string    `yaml:"heading"`
	Style    string    `yaml:"style"`
	Projects []Project `yaml:"projects"`
}

// DefaultSite returns the built-in portfolio.
func DefaultSite() Site {
	return Site{
		Title:   "shockham",
		Heading: "shockham",
		Projects: []Project{
			{Title: "flicke", Desc: "Initially intended to be a flickery fire ray march sketch", Href: "https://flicke.now.sh/"},
			{Title: "weive", Desc: "Rounded cube ray march sketch", Href: "https://weive.shockham.now.sh/"},
			{Title: "efferve", Desc: "Effervescent ray march sketch", Href: "https://efferve.shockham.now.sh/"},
			{Title: "effuse", Desc: "Drippy ray march sketch", Href: "https://effuse.shockham.now.sh/"},
			{Title: "botanea", Desc: "Botantical ray march sketch", Href: "https://botanea.shockham.now.sh/"},
			{Title: "rhombei", Desc: "Rhombus ray march sketch", Href: "https://rhombei.shockham.now.sh/"},
			{Title: "noiser", Desc: "FM Synth + step sequencer", Href: "https://noiser.shockham.now.sh/"},
			{Title: "infuse", Desc: "Minamalist wasm based webgl renderer", Href: "https://github.com/shockham/infuse"},
			{Title: "caper", Desc: "Minamalist game framework", Href: "https://github.com/shockham/caper"},
			{Title: "volition", Desc: "Minamalist input lib", Href: "https://github.com/shockham/volition"},
			{Title: "impose", Desc: "Minamalist audio lib", Href: "https://github.com/shockham/impose"},
		},
	}
}

// LoadSite reads a YAML site file. An empty path returns DefaultSite. Title
// and heading fall back to the defaults when the file leaves them empty.
//
// Parameters:
//   - path: Path to the YAML file, or ""
//
// Returns:
//   - The site, or an error if the file cannot be read or parsed
func LoadSite(path string) (Site, error) {
	if path == "" {
		return DefaultSite(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Site{}, fmt.Errorf("failed to read site file: %w", err)
	}

	var s Site
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Site{}, fmt.Errorf("failed to parse site file %s: %w", path, err)
	}

	def := DefaultSite()
	if s.Title == "" {
		s.Title = def.Title
	}
	if s.Heading == "" {
		s.Heading = s.Title
	}

	for i, p := range s.Projects {
		if p.Title == "" {
			return Site{}, fmt.Errorf("site file %s: project %d has no title", path, i)
		}
	}

	return s, nil
}

// Digest returns a stable hex key for the site contents. Sites that render
// identically have the same digest.
func Digest(s Site) string {
	h := xxhash.New()
	write := func(v string) {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(v)))
		_, _ = h.Write(n[:])
		_, _ = h.WriteString(v)
	}

	write(s.Title)
	write(s.Heading)
	write(s.Style)
	write(strconv.Itoa(len(s.Projects)))
	for _, p := range s.Projects {
		write(p.Title)
		write(p.Desc)
		write(p.Href)
	}

	return fmt.Sprintf("%016x", h.Sum64())
}
